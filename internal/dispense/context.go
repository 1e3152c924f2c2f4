package dispense

import (
	"sync"

	"github.com/glueworks/glue-cell-core/internal/glue"
	"github.com/glueworks/glue-cell-core/internal/robot"
)

// ExecutionContext is a single run's mutable state.
//
// It is exclusively owned by the Operation. Cursor indices are advanced
// only by the stepping goroutine (via Delta application); the pump
// goroutine never mutates them. Flags touched from other goroutines
// (pause request, validity) are guarded by the mutex.
type ExecutionContext struct {
	mu sync.Mutex

	runID string
	paths []glue.Path

	pathIndex  int
	pointIndex int

	// settings is the resolved snapshot for the active path; nil before
	// the first resolution.
	settings *glue.Segment

	sprayOn          bool
	isResuming       bool
	pumpStarted      bool
	generatorStarted bool
	fanStarted       bool

	pausedFrom     State
	pauseRequested bool
	valid          bool

	// run is the pump adjustment goroutine handle; nil when no goroutine
	// is associated. At most one per context at any time.
	run *pumpRun

	// Non-owning service references used by handlers.
	robot robot.Service
	pump  *PumpController
}

// NewExecutionContext constructs an empty, invalid context bound to the
// given services. Reset must be called before a run.
func NewExecutionContext(robotSvc robot.Service, pump *PumpController) *ExecutionContext {
	return &ExecutionContext{
		robot: robotSvc,
		pump:  pump,
	}
}

// Reset seeds the context for a fresh run, discarding previous state.
func (c *ExecutionContext) Reset(runID string, paths []glue.Path, sprayOn bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.runID = runID
	c.paths = paths
	c.pathIndex = 0
	c.pointIndex = 0
	c.settings = nil
	c.sprayOn = sprayOn
	c.isResuming = false
	c.pumpStarted = false
	c.generatorStarted = false
	c.fanStarted = false
	c.pausedFrom = ""
	c.pauseRequested = false
	c.valid = true
	c.run = nil
}

// Invalidate marks the context as discarded; a subsequent resume
// degenerates to a fresh start.
func (c *ExecutionContext) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
}

// HasValidContext reports whether the context still describes a
// resumable run.
func (c *ExecutionContext) HasValidContext() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.valid && len(c.paths) > 0
}

// RunID returns the current run identifier.
func (c *ExecutionContext) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}

// Cursor returns the current path and point indices.
func (c *ExecutionContext) Cursor() (pathIndex, pointIndex int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pathIndex, c.pointIndex
}

// PathCount returns the number of paths in the run.
func (c *ExecutionContext) PathCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.paths)
}

// CurrentPath returns the active path. The boolean is false when the
// cursor is past the last path.
func (c *ExecutionContext) CurrentPath() (glue.Path, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pathIndex < 0 || c.pathIndex >= len(c.paths) {
		return glue.Path{}, false
	}
	return c.paths[c.pathIndex], true
}

// RemainingPoints returns a copy of the active path's points from the
// current point index onward. The pump goroutine snapshot is built from
// this copy, keeping the live slice confined to the stepping goroutine.
func (c *ExecutionContext) RemainingPoints() []robot.Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pathIndex < 0 || c.pathIndex >= len(c.paths) {
		return nil
	}
	points := c.paths[c.pathIndex].Points
	if c.pointIndex >= len(points) {
		return nil
	}
	out := make([]robot.Point, len(points)-c.pointIndex)
	copy(out, points[c.pointIndex:])
	return out
}

// Settings returns the resolved segment for the active path. The boolean
// is false before the first resolution.
func (c *ExecutionContext) Settings() (glue.Segment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.settings == nil {
		return glue.Segment{}, false
	}
	return *c.settings, true
}

// SprayOn reports whether the pump should actively spray for this run.
func (c *ExecutionContext) SprayOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sprayOn
}

// IsResuming reports whether the run is re-entering from a checkpoint.
func (c *ExecutionContext) IsResuming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isResuming
}

// PumpStarted reports whether the pump was switched on this run.
func (c *ExecutionContext) PumpStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pumpStarted
}

// GeneratorStarted reports whether the generator was switched on this run.
func (c *ExecutionContext) GeneratorStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generatorStarted
}

// FanStarted reports whether the fan was switched on this run.
func (c *ExecutionContext) FanStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fanStarted
}

// RequestPause flags the run for pause; the sending loop observes the
// flag between points.
func (c *ExecutionContext) RequestPause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pauseRequested = true
}

// ClearPauseRequest resets the pause flag after it has been honoured.
func (c *ExecutionContext) ClearPauseRequest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pauseRequested = false
}

// PauseRequested reports whether a pause is pending.
func (c *ExecutionContext) PauseRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pauseRequested
}

// SetPausedFrom records the state interrupted by a pause.
func (c *ExecutionContext) SetPausedFrom(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pausedFrom = s
}

// PausedFrom returns the state the run was in before PAUSED.
func (c *ExecutionContext) PausedFrom() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pausedFrom
}

// SetResuming marks or clears the resume-in-progress flag.
func (c *ExecutionContext) SetResuming(resuming bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isResuming = resuming
}

// PumpRun returns the pump goroutine handle, nil when none is attached.
func (c *ExecutionContext) PumpRun() *pumpRun {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run
}

// Snapshot captures the context for a diagnostic checkpoint.
func (c *ExecutionContext) Snapshot(state State) Checkpoint {
	c.mu.Lock()
	defer c.mu.Unlock()

	var settings *glue.Segment
	if c.settings != nil {
		s := *c.settings
		settings = &s
	}

	return Checkpoint{
		RunID:            c.runID,
		State:            state,
		PathIndex:        c.pathIndex,
		PointIndex:       c.pointIndex,
		SprayOn:          c.sprayOn,
		IsResuming:       c.isResuming,
		PumpStarted:      c.pumpStarted,
		GeneratorStarted: c.generatorStarted,
		Settings:         settings,
	}
}

// Delta is the set of context mutations a handler requests. The step
// wrapper applies it after the handler returns; handlers never mutate
// the context directly, keeping side effects auditable.
type Delta struct {
	PathIndex  *int
	PointIndex *int

	Settings *glue.Segment

	IsResuming       *bool
	PumpStarted      *bool
	GeneratorStarted *bool
	FanStarted       *bool

	// PumpRun attaches a new pump goroutine handle.
	PumpRun *pumpRun

	// ClearPumpRun detaches the handle. Only legal after a join.
	ClearPumpRun bool
}

// Apply merges the delta into the context.
func (c *ExecutionContext) Apply(d Delta) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d.PathIndex != nil {
		c.pathIndex = *d.PathIndex
	}
	if d.PointIndex != nil {
		c.pointIndex = *d.PointIndex
	}
	if d.Settings != nil {
		s := *d.Settings
		c.settings = &s
	}
	if d.IsResuming != nil {
		c.isResuming = *d.IsResuming
	}
	if d.PumpStarted != nil {
		c.pumpStarted = *d.PumpStarted
	}
	if d.GeneratorStarted != nil {
		c.generatorStarted = *d.GeneratorStarted
	}
	if d.FanStarted != nil {
		c.fanStarted = *d.FanStarted
	}
	if d.PumpRun != nil {
		c.run = d.PumpRun
	}
	if d.ClearPumpRun {
		c.run = nil
	}
}
