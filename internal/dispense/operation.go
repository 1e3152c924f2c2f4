package dispense

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glueworks/glue-cell-core/internal/fsm"
	"github.com/glueworks/glue-cell-core/internal/glue"
	"github.com/glueworks/glue-cell-core/internal/robot"
	"github.com/glueworks/glue-cell-core/internal/spray"
)

// StateRecorder persists state transitions for later run analysis.
type StateRecorder interface {
	WriteStateTransition(runID, fromState, toState string)
}

// Config carries the operation's behavioural flags and timing bounds.
// Zero-value durations are replaced with defaults by NewOperation.
type Config struct {
	// UseSegmentSettings enables per-path overrides; when false every
	// path runs on the resolver's defaults.
	UseSegmentSettings bool

	// TurnOffPumpBetweenPaths stops adhesive flow during the travel
	// move from one path to the next.
	TurnOffPumpBetweenPaths bool

	// AdjustPumpWhileSpraying enables the velocity-coupled pump speed
	// loop; when false the pump holds its boost speed.
	AdjustPumpWhileSpraying bool

	StepDelay        time.Duration
	MoveTimeout      time.Duration
	PumpReadyTimeout time.Duration
	JoinTimeout      time.Duration
	AdjustInterval   time.Duration
}

func (c *Config) applyDefaults() {
	if c.StepDelay <= 0 {
		c.StepDelay = 10 * time.Millisecond
	}
	if c.MoveTimeout <= 0 {
		c.MoveTimeout = 30 * time.Second
	}
	if c.PumpReadyTimeout <= 0 {
		c.PumpReadyTimeout = 5 * time.Second
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = 5 * time.Second
	}
	if c.AdjustInterval <= 0 {
		c.AdjustInterval = defaultAdjustInterval
	}
}

// Deps names the collaborators an Operation is built from. Robot,
// Spray, Resolver and Logger are required; the rest are optional and
// default to no-ops.
type Deps struct {
	Robot    robot.Service
	Spray    spray.Service
	Resolver *glue.Resolver
	Logger   Logger

	// Checkpoints persists a recovery snapshot on every state entry.
	Checkpoints CheckpointRepository

	// Publisher receives state, progress and result events.
	Publisher fsm.Publisher

	// Telemetry receives pump and motion samples from the adjustment
	// loop.
	Telemetry TelemetrySink

	// Recorder receives state transitions for run analysis.
	Recorder StateRecorder

	// Topics the events go out on; unused when Publisher is nil.
	StateTopic       string
	ProgressTopic    string
	ResultTopic      string
	FaultTopic       string
	EngineStateTopic string
}

// OperationResult reports the outcome of a control command.
type OperationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// Operation drives dispensing runs through the process state machine.
// One Operation serves one robot cell; at most one run is active at a
// time.
type Operation struct {
	mu sync.Mutex

	cfg      Config
	robot    robot.Service
	spray    spray.Service
	pump     *PumpController
	resolver *glue.Resolver
	logger   Logger

	checkpoints CheckpointRepository
	publisher   fsm.Publisher
	telemetry   TelemetrySink
	recorder    StateRecorder

	progressTopic    string
	resultTopic      string
	faultTopic       string
	engineStateTopic string

	// runErr holds the handler error that faulted the current run.
	runErr error

	machine *fsm.Machine[State, *ExecutionContext]
	ec      *ExecutionContext

	lastState State

	// State-entry work (checkpoint save, transition record, progress
	// publish) is handed to a worker goroutine so slow storage or a
	// stalled broker never blocks the machine's transition lock.
	enterCh    chan enterEvent
	workerQuit chan struct{}
	workerDone chan struct{}
	closeOnce  sync.Once

	runCancel context.CancelFunc
	loopDone  chan struct{}
}

// enterEvent is one state entry's persistence workload.
type enterEvent struct {
	from      State
	to        State
	snapshot  Checkpoint
	pathCount int
}

// NewOperation wires the state machine, execution context and pump
// controller, and settles the machine into IDLE.
func NewOperation(deps Deps, cfg Config) (*Operation, error) {
	if deps.Robot == nil {
		return nil, fmt.Errorf("robot service is required")
	}
	if deps.Spray == nil {
		return nil, fmt.Errorf("spray service is required")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("settings resolver is required")
	}
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if deps.Telemetry == nil {
		deps.Telemetry = noopTelemetry{}
	}
	cfg.applyDefaults()

	o := &Operation{
		cfg:              cfg,
		robot:            deps.Robot,
		spray:            deps.Spray,
		pump:             NewPumpController(deps.Spray, deps.Logger),
		resolver:         deps.Resolver,
		logger:           deps.Logger,
		checkpoints:      deps.Checkpoints,
		publisher:        deps.Publisher,
		telemetry:        deps.Telemetry,
		recorder:         deps.Recorder,
		progressTopic:    deps.ProgressTopic,
		resultTopic:      deps.ResultTopic,
		faultTopic:       deps.FaultTopic,
		engineStateTopic: deps.EngineStateTopic,
		lastState:        StateInitializing,
		enterCh:          make(chan enterEvent, 64),
		workerQuit:       make(chan struct{}),
		workerDone:       make(chan struct{}),
	}
	o.ec = NewExecutionContext(deps.Robot, o.pump)
	go o.enterWorker()

	machine, err := fsm.New(fsm.Config[State, *ExecutionContext]{
		Initial:   StateInitializing,
		Fault:     StateError,
		Rules:     TransitionRules(),
		Defs:      o.stateDefs(),
		Context:   o.ec,
		Publisher: deps.Publisher,
		Topic:     deps.StateTopic,
		Logger:    deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("building process machine: %w", err)
	}
	o.machine = machine

	if err := machine.Transition(StateIdle); err != nil {
		return nil, fmt.Errorf("settling into idle: %w", err)
	}
	return o, nil
}

// stateDefs binds each state's handler through the step wrapper and
// attaches the checkpoint hook to every state entry.
func (o *Operation) stateDefs() map[State]fsm.Def[State, *ExecutionContext] {
	handlers := map[State]func(context.Context, *ExecutionContext) (Result, error){
		StateIdle:             o.handleIdle,
		StateStarting:         o.handleStarting,
		StateMovingToFirst:    o.handleMovingToFirst,
		StateExecutingPath:    o.handleExecutingPath,
		StatePumpInitialBoost: o.handlePumpInitialBoost,
		StateStartingPumpLoop: o.handleStartingPumpLoop,
		StateSendingPoints:    o.handleSendingPoints,
		StateWaitCompletion:   o.handleWaitCompletion,
		StatePathTransition:   o.handlePathTransition,
		StatePaused:           o.handlePaused,
		StateStopped:          o.handleStopped,
		StateCompleted:        o.handleCompleted,
		StateError:            o.handleError,
	}

	defs := make(map[State]fsm.Def[State, *ExecutionContext], len(handlers))
	for state, handler := range handlers {
		defs[state] = fsm.Def[State, *ExecutionContext]{
			Handler: o.wrap(handler),
			OnEnter: o.onEnter,
		}
	}
	return defs
}

// wrap adapts a Result-returning handler to the machine's signature,
// applying the returned Delta before the transition is taken. Deltas
// apply even when the handler errors, so partial progress (actuators
// already switched on, points already accepted) survives into the fault
// path.
func (o *Operation) wrap(h func(context.Context, *ExecutionContext) (Result, error)) fsm.Handler[State, *ExecutionContext] {
	return func(ctx context.Context, c *ExecutionContext) (State, error) {
		res, err := h(ctx, c)
		c.Apply(res.Delta)
		if err != nil {
			o.noteRunError(err)
			return "", err
		}
		return res.Next, nil
	}
}

func (o *Operation) noteRunError(err error) {
	o.mu.Lock()
	o.runErr = err
	o.mu.Unlock()
}

func (o *Operation) takeRunError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	err := o.runErr
	o.runErr = nil
	return err
}

// onEnter runs inside the machine's transition lock, so it only
// snapshots the context and hands the work off. The recording, the
// checkpoint save and the progress publish all happen on the worker;
// a slow repository or broker cannot stall an external Pause or Stop.
func (o *Operation) onEnter(state State, c *ExecutionContext) {
	from := o.lastState
	o.lastState = state

	if c.RunID() == "" {
		return
	}

	ev := enterEvent{
		from:      from,
		to:        state,
		snapshot:  c.Snapshot(state),
		pathCount: c.PathCount(),
	}
	select {
	case o.enterCh <- ev:
	default:
		o.logger.Warn("state entry backlog full, dropping snapshot",
			"run_id", ev.snapshot.RunID,
			"state", string(state),
		)
	}
}

// enterWorker drains state entry events in order. Everything here is
// best-effort; a run never fails because persistence or publishing did.
func (o *Operation) enterWorker() {
	defer close(o.workerDone)
	for {
		select {
		case ev := <-o.enterCh:
			o.processEnter(ev)
		case <-o.workerQuit:
			for {
				select {
				case ev := <-o.enterCh:
					o.processEnter(ev)
				default:
					return
				}
			}
		}
	}
}

func (o *Operation) processEnter(ev enterEvent) {
	if o.recorder != nil {
		o.recorder.WriteStateTransition(ev.snapshot.RunID, string(ev.from), string(ev.to))
	}

	if o.checkpoints != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := o.checkpoints.Save(ctx, ev.snapshot); err != nil {
			o.logger.Warn("checkpoint save failed",
				"run_id", ev.snapshot.RunID,
				"state", string(ev.to),
				"error", err,
			)
		}
		cancel()
	}

	o.publishProgress(ev)
}

type progressEvent struct {
	RunID      string `json:"run_id"`
	State      string `json:"state"`
	PathIndex  int    `json:"path_index"`
	PointIndex int    `json:"point_index"`
	PathCount  int    `json:"path_count"`
	Timestamp  string `json:"timestamp"`
}

func (o *Operation) publishProgress(ev enterEvent) {
	if o.publisher == nil || o.progressTopic == "" {
		return
	}

	payload, err := json.Marshal(progressEvent{
		RunID:      ev.snapshot.RunID,
		State:      string(ev.to),
		PathIndex:  ev.snapshot.PathIndex,
		PointIndex: ev.snapshot.PointIndex,
		PathCount:  ev.pathCount,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}
	if err := o.publisher.Publish(o.progressTopic, payload, 0, false); err != nil {
		o.logger.Warn("progress publish failed", "error", err)
	}
}

type faultEvent struct {
	RunID     string `json:"run_id"`
	State     string `json:"state"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// publishFault announces an aborted run on the fault topic.
func (o *Operation) publishFault(cause error) {
	if o.publisher == nil || o.faultTopic == "" {
		return
	}

	msg := "run aborted"
	if cause != nil {
		msg = cause.Error()
	}
	payload, err := json.Marshal(faultEvent{
		RunID:     o.ec.RunID(),
		State:     string(StateError),
		Error:     msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}
	if err := o.publisher.Publish(o.faultTopic, payload, 1, false); err != nil {
		o.logger.Warn("fault publish failed", "error", err)
	}
}

type engineStateEvent struct {
	RunID     string `json:"run_id,omitempty"`
	State     string `json:"state"`
	Timestamp string `json:"timestamp"`
}

// publishEngineState announces the engine's current phase, retained so
// late subscribers see it immediately.
func (o *Operation) publishEngineState() {
	if o.publisher == nil || o.engineStateTopic == "" {
		return
	}

	payload, err := json.Marshal(engineStateEvent{
		RunID:     o.ec.RunID(),
		State:     string(o.machine.State()),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}
	if err := o.publisher.Publish(o.engineStateTopic, payload, 1, true); err != nil {
		o.logger.Warn("engine state publish failed", "error", err)
	}
}

// State returns the machine's current process state.
func (o *Operation) State() State {
	return o.machine.State()
}

// Cursor returns the active path and point indices.
func (o *Operation) Cursor() (pathIndex, pointIndex int) {
	return o.ec.Cursor()
}

// Running reports whether a run's stepping loop is active. A paused run
// still counts as running.
func (o *Operation) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loopActive()
}

// loopActive reports whether a run loop has been launched and not yet
// exited. Caller holds o.mu.
func (o *Operation) loopActive() bool {
	if o.loopDone == nil {
		return false
	}
	select {
	case <-o.loopDone:
		return false
	default:
		return true
	}
}

// Done returns a channel closed when the current run's loop exits.
// Returns nil when no run was ever started.
func (o *Operation) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loopDone
}

// Start begins a dispensing run over the given paths. With resume true
// and a surviving execution context, the stored cursor is kept and the
// run continues from the recorded path and point; otherwise a fresh run
// starts from the beginning. Returns immediately; the run itself
// executes on a background loop.
func (o *Operation) Start(ctx context.Context, paths []glue.Path, sprayOn, resume bool) OperationResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.loopActive() {
		return o.fail("start", ErrAlreadyRunning)
	}

	o.runErr = nil

	// A prior fault parks the machine in ERROR; a new start recovers it.
	if o.machine.State() == StateError {
		if err := o.machine.Transition(StateIdle); err != nil {
			return o.fail("start", err)
		}
	}

	if resume && o.ec.HasValidContext() {
		o.ec.SetResuming(true)
		o.ec.ClearPauseRequest()
	} else {
		if len(paths) == 0 {
			return o.fail("start", ErrNoPaths)
		}
		o.ec.Reset(uuid.NewString(), paths, sprayOn)
	}

	o.robot.SetTrajectoryUpdates(true)

	if err := o.machine.Transition(StateStarting); err != nil {
		return o.fail("start", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	o.runCancel = cancel
	o.loopDone = make(chan struct{})

	go o.runLoop(runCtx, o.loopDone)
	o.publishEngineState()

	o.logger.Info("run started",
		"run_id", o.ec.RunID(),
		"paths", o.ec.PathCount(),
		"spray_on", o.ec.SprayOn(),
		"resume", resume,
	)
	return o.ok("start", fmt.Sprintf("run %s started", o.ec.RunID()))
}

func (o *Operation) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	err := o.machine.Run(ctx, o.cfg.StepDelay)
	if err != nil && !errors.Is(err, context.Canceled) {
		o.logger.Error("run loop exited with error",
			"state", string(o.machine.State()),
			"error", err,
		)
	}

	o.teardown()

	if o.machine.State() == StateError {
		o.publishFault(o.takeRunError())
	}
	o.publishEngineState()
}

// teardown is the loop's safety net: whatever state the loop died in,
// no actuator stays on. After a normal completion every flag is already
// clear and this is a no-op.
func (o *Operation) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if run := o.ec.PumpRun(); run != nil {
		run.join(o.cfg.JoinTimeout)
		o.ec.Apply(Delta{ClearPumpRun: true})
	}

	_ = o.pump.PumpOff(ctx, o.segmentFor(o.ec))

	if o.ec.GeneratorStarted() {
		if err := o.spray.GeneratorOff(ctx); err != nil {
			o.logger.Error("generator off failed during teardown", "error", err)
		}
	}
	if o.ec.FanStarted() {
		if err := o.spray.FanOff(ctx); err != nil {
			o.logger.Error("fan off failed during teardown", "error", err)
		}
	}
	o.ec.Apply(Delta{
		PumpStarted:      boolPtr(false),
		GeneratorStarted: boolPtr(false),
		FanStarted:       boolPtr(false),
	})
}

// Pause suspends a run at the next point boundary and disables
// trajectory updates so in-flight motion halts. Only pausable states
// accept a pause; a run in cleanup or at rest does not.
func (o *Operation) Pause(ctx context.Context) OperationResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	state := o.machine.State()
	if !Pausable(state) {
		return o.fail("pause", fmt.Errorf("%w: %s", ErrNotPausable, state))
	}

	o.ec.SetPausedFrom(state)
	o.ec.RequestPause()

	if err := o.machine.Transition(StatePaused); err != nil {
		o.ec.ClearPauseRequest()
		return o.fail("pause", err)
	}

	o.robot.SetTrajectoryUpdates(false)
	o.publishEngineState()

	o.logger.Info("run paused",
		"run_id", o.ec.RunID(),
		"paused_from", string(state),
	)
	return o.ok("pause", fmt.Sprintf("paused from %s", state))
}

// Resume re-enters the state the run was paused from, with the resume
// flag set so position-dependent states re-establish themselves rather
// than restart. Requires a surviving execution context.
func (o *Operation) Resume(ctx context.Context) OperationResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.machine.State() != StatePaused {
		return o.fail("resume", ErrNotPaused)
	}
	if !o.ec.HasValidContext() {
		return o.fail("resume", ErrContextInvalid)
	}

	o.ec.ClearPauseRequest()
	o.ec.SetResuming(true)

	o.robot.SetTrajectoryUpdates(true)

	target := o.ec.PausedFrom()
	if target == "" || !Pausable(target) {
		target = StateStarting
	}

	// States that depend on an attached pump loop or an in-flight
	// stream re-enter through STARTING so the pump loop is respawned
	// for the remaining points.
	switch target {
	case StateSendingPoints, StateWaitCompletion, StateStartingPumpLoop:
		if o.ec.PumpRun() == nil {
			target = StateStarting
		}
	}

	if err := o.machine.Transition(target); err != nil {
		return o.fail("resume", err)
	}
	o.publishEngineState()

	o.logger.Info("run resumed",
		"run_id", o.ec.RunID(),
		"target", string(target),
	)
	return o.ok("resume", fmt.Sprintf("resumed into %s", target))
}

// Stop aborts the run. The machine is routed into STOPPED, cleanup runs
// through COMPLETED, and the execution context is invalidated so a
// later resume degenerates to a fresh start.
func (o *Operation) Stop(ctx context.Context) OperationResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.loopActive() {
		return o.fail("stop", ErrNotRunning)
	}

	state := o.machine.State()
	switch state {
	case StateStopped, StateCompleted, StateIdle, StateError:
		return o.fail("stop", fmt.Errorf("%w: already in %s", ErrNotRunning, state))
	}

	o.ec.Invalidate()
	o.ec.RequestPause()

	if err := o.machine.Transition(StateStopped); err != nil {
		return o.fail("stop", err)
	}

	o.robot.SetTrajectoryUpdates(false)
	o.publishEngineState()

	o.logger.Info("run stopped", "run_id", o.ec.RunID(), "stopped_from", string(state))
	return o.ok("stop", fmt.Sprintf("stopped from %s", state))
}

// Close cancels any active run loop, waits for it to exit, and drains
// the state-entry worker so pending checkpoint saves and progress
// events land before return.
func (o *Operation) Close() {
	o.mu.Lock()
	cancel := o.runCancel
	done := o.loopDone
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	o.closeOnce.Do(func() { close(o.workerQuit) })
	<-o.workerDone
}

func (o *Operation) ok(command, message string) OperationResult {
	res := OperationResult{Success: true, Message: message}
	o.publishResult(command, res)
	return res
}

func (o *Operation) fail(command string, err error) OperationResult {
	o.logger.Warn("command rejected", "command", command, "error", err)
	res := OperationResult{Success: false, Message: command + " rejected", Error: err.Error()}
	o.publishResult(command, res)
	return res
}

type resultEvent struct {
	Command string `json:"command"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func (o *Operation) publishResult(command string, res OperationResult) {
	if o.publisher == nil || o.resultTopic == "" {
		return
	}

	payload, err := json.Marshal(resultEvent{
		Command: command,
		Success: res.Success,
		Message: res.Message,
		Error:   res.Error,
	})
	if err != nil {
		return
	}
	if err := o.publisher.Publish(o.resultTopic, payload, 1, false); err != nil {
		o.logger.Warn("result publish failed", "command", command, "error", err)
	}
}
