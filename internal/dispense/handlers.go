package dispense

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glueworks/glue-cell-core/internal/glue"
	"github.com/glueworks/glue-cell-core/internal/robot"
)

// segmentFor returns the resolved segment for the active path, falling
// back to glue defaults when none is bound yet.
func (o *Operation) segmentFor(c *ExecutionContext) glue.Segment {
	if settings, ok := c.Settings(); ok {
		return settings
	}
	return o.resolver.Defaults()
}

// Result is a handler's outcome: the next state plus the context
// mutations to apply. The step wrapper applies Delta after the handler
// returns; handlers never mutate the context directly.
type Result struct {
	Next  State
	Delta Delta
}

// sleepCtx sleeps for d unless ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

// handleStarting resolves the starting cursor and the active path's
// settings. Empty paths are skipped by advancing the path index in
// place; running out of paths completes the run.
func (o *Operation) handleStarting(ctx context.Context, c *ExecutionContext) (Result, error) {
	pathIdx, _ := c.Cursor()

	if pathIdx >= c.PathCount() {
		return Result{Next: StateCompleted}, nil
	}

	path, ok := c.CurrentPath()
	if !ok {
		return Result{}, fmt.Errorf("path index %d out of range", pathIdx)
	}

	if len(path.Points) == 0 {
		o.logger.Warn("skipping empty path", "path_index", pathIdx)
		return Result{
			Next: StateStarting,
			Delta: Delta{
				PathIndex:  intPtr(pathIdx + 1),
				PointIndex: intPtr(0),
			},
		}, nil
	}

	settings := o.resolver.Defaults()
	if o.cfg.UseSegmentSettings {
		settings = o.resolver.Resolve(path)
	}

	delta := Delta{Settings: &settings}
	if !c.IsResuming() {
		delta.PointIndex = intPtr(0)
	}

	return Result{Next: StateMovingToFirst, Delta: delta}, nil
}

// handleMovingToFirst issues a blocking move to the active point. When
// resuming, the cursor already points past the sprayed points, so the
// move naturally skips them. The move is retried once before
// escalating.
func (o *Operation) handleMovingToFirst(ctx context.Context, c *ExecutionContext) (Result, error) {
	settings, ok := c.Settings()
	if !ok {
		return Result{}, fmt.Errorf("no resolved settings for move")
	}

	path, ok := c.CurrentPath()
	if !ok {
		return Result{}, fmt.Errorf("no active path for move")
	}

	_, pointIdx := c.Cursor()
	if pointIdx >= len(path.Points) {
		pointIdx = len(path.Points) - 1
	}
	target := path.Points[pointIdx]

	if err := o.moveBlocking(ctx, target, settings.ReachStartThreshold); err != nil {
		return Result{}, err
	}

	// The resumed point has been reached; the resume window is over.
	return Result{
		Next:  StateExecutingPath,
		Delta: Delta{IsResuming: boolPtr(false)},
	}, nil
}

// moveBlocking performs a bounded blocking move with exactly one retry,
// then verifies arrival by position threshold.
func (o *Operation) moveBlocking(ctx context.Context, target robot.Point, threshold float64) error {
	moveCtx, cancel := context.WithTimeout(ctx, o.cfg.MoveTimeout)
	defer cancel()

	err := o.robot.MoveTo(moveCtx, target, true)
	if err != nil {
		o.logger.Warn("move failed, retrying once", "target", target, "error", err)
		if err = o.robot.MoveTo(moveCtx, target, true); err != nil {
			return fmt.Errorf("%w: %v", ErrMoveFailed, err)
		}
	}

	if err := o.robot.WaitForPosition(moveCtx, target, threshold, o.cfg.MoveTimeout); err != nil {
		return fmt.Errorf("position not reached: %w", err)
	}
	return nil
}

// handleExecutingPath is a pure dispatcher with no hardware action.
func (o *Operation) handleExecutingPath(ctx context.Context, c *ExecutionContext) (Result, error) {
	return Result{Next: StatePumpInitialBoost}, nil
}

// handlePumpInitialBoost primes adhesive flow: generator and fan on
// (once per run), the configured generator-to-glue delay, then the pump
// at its boosted speed for the boost duration. Skipped entirely when
// the run does not spray.
func (o *Operation) handlePumpInitialBoost(ctx context.Context, c *ExecutionContext) (Result, error) {
	if !c.SprayOn() {
		return Result{Next: StateStartingPumpLoop}, nil
	}

	settings, ok := c.Settings()
	if !ok {
		return Result{}, fmt.Errorf("no resolved settings for pump boost")
	}

	delta := Delta{}

	if !c.GeneratorStarted() {
		if err := o.spray.GeneratorOn(ctx); err != nil {
			return Result{}, fmt.Errorf("generator on: %w", err)
		}
		delta.GeneratorStarted = boolPtr(true)
	}

	if !c.FanStarted() {
		if err := o.spray.FanOn(ctx, settings.FanSpeed); err != nil {
			return Result{Delta: delta}, fmt.Errorf("fan on: %w", err)
		}
		delta.FanStarted = boolPtr(true)
	}

	if err := sleepCtx(ctx, settings.GeneratorGlueDelay); err != nil {
		return Result{Delta: delta}, err
	}

	if err := o.pump.PumpOn(ctx, settings.InitialBoostSpeed, settings); err != nil {
		return Result{Delta: delta}, fmt.Errorf("pump on: %w", err)
	}
	delta.PumpStarted = boolPtr(true)

	if err := sleepCtx(ctx, settings.InitialBoostDuration); err != nil {
		return Result{Delta: delta}, err
	}

	return Result{Next: StateStartingPumpLoop, Delta: delta}, nil
}

// handleStartingPumpLoop spawns the pump-adjustment goroutine and
// blocks until it signals readiness, guaranteeing the pump is already
// tracking before any point is streamed.
func (o *Operation) handleStartingPumpLoop(ctx context.Context, c *ExecutionContext) (Result, error) {
	if !c.SprayOn() || !o.cfg.AdjustPumpWhileSpraying {
		return Result{Next: StateSendingPoints}, nil
	}

	if c.PumpRun() != nil {
		return Result{}, fmt.Errorf("pump adjustment loop already attached")
	}

	settings, ok := c.Settings()
	if !ok {
		return Result{}, fmt.Errorf("no resolved settings for pump loop")
	}

	pathIdx, pointIdx := c.Cursor()
	run := startPumpAdjustment(adjustment{
		runID:      c.RunID(),
		pathIndex:  pathIdx,
		startPoint: pointIdx,
		points:     c.RemainingPoints(),
		segment:    settings,
		robot:      o.robot,
		pump:       o.pump,
		sink:       o.telemetry,
		logger:     o.logger,
		interval:   o.cfg.AdjustInterval,
	})

	if !run.waitReady(o.cfg.PumpReadyTimeout) {
		run.join(o.cfg.JoinTimeout)
		return Result{}, ErrPumpNotReady
	}

	return Result{
		Next:  StateSendingPoints,
		Delta: Delta{PumpRun: run},
	}, nil
}

// handleSendingPoints streams the remaining points of the active path,
// advancing the point cursor as each point is accepted. A rejected
// point is retried exactly once; a pause request is honoured between
// points, leaving the cursor at the last accepted point.
func (o *Operation) handleSendingPoints(ctx context.Context, c *ExecutionContext) (Result, error) {
	settings, ok := c.Settings()
	if !ok {
		return Result{}, fmt.Errorf("no resolved settings for sending")
	}

	path, ok := c.CurrentPath()
	if !ok {
		return Result{}, fmt.Errorf("no active path for sending")
	}

	_, idx := c.Cursor()
	points := path.Points

	for idx < len(points) {
		if c.PauseRequested() {
			return Result{
				Next:  StatePaused,
				Delta: Delta{PointIndex: intPtr(idx)},
			}, nil
		}

		err := o.robot.StreamPoint(ctx, points[idx], settings.Speed, settings.Acceleration)
		if errors.Is(err, robot.ErrTrajectoryDisabled) {
			// Pause landed between the flag check and the stream.
			return Result{
				Next:  StatePaused,
				Delta: Delta{PointIndex: intPtr(idx)},
			}, nil
		}
		if err != nil {
			o.logger.Warn("point rejected, retrying once",
				"point_index", idx,
				"error", err,
			)
			if err = o.robot.StreamPoint(ctx, points[idx], settings.Speed, settings.Acceleration); err != nil {
				return Result{
					Delta: Delta{PointIndex: intPtr(idx)},
				}, fmt.Errorf("%w: point %d: %v", ErrMoveFailed, idx, err)
			}
		}
		idx++
	}

	return Result{
		Next:  StateWaitCompletion,
		Delta: Delta{PointIndex: intPtr(len(points))},
	}, nil
}

// handleWaitCompletion waits until the path is physically finished and
// captures the final point index reached. With an adjustment goroutine
// attached it waits on the goroutine's completion; without one (no
// spray, or adjustment disabled) it falls back to polling the motion
// service directly.
func (o *Operation) handleWaitCompletion(ctx context.Context, c *ExecutionContext) (Result, error) {
	settings, ok := c.Settings()
	if !ok {
		return Result{}, fmt.Errorf("no resolved settings for wait")
	}

	path, ok := c.CurrentPath()
	if !ok {
		return Result{}, fmt.Errorf("no active path for wait")
	}

	last := path.Points[len(path.Points)-1]

	if run := c.PumpRun(); run != nil {
		select {
		case <-run.done:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(o.pathTimeout(path.Points, settings.Speed)):
			return Result{}, fmt.Errorf("path completion wait timed out")
		}

		completed, progress := run.result()
		delta := Delta{PointIndex: intPtr(progress)}
		if !completed {
			// Loop was cancelled rather than finishing the path; verify
			// final position before moving on.
			if err := o.robot.WaitForPosition(ctx, last, settings.ReachEndThreshold, o.cfg.MoveTimeout); err != nil {
				return Result{Delta: delta}, fmt.Errorf("path end not reached: %w", err)
			}
			delta.PointIndex = intPtr(len(path.Points))
		}
		return Result{Next: StatePathTransition, Delta: delta}, nil
	}

	if err := o.robot.WaitForPosition(ctx, last, settings.ReachEndThreshold, o.pathTimeout(path.Points, settings.Speed)); err != nil {
		return Result{}, fmt.Errorf("path end not reached: %w", err)
	}

	return Result{
		Next:  StatePathTransition,
		Delta: Delta{PointIndex: intPtr(len(path.Points))},
	}, nil
}

// pathTimeout bounds a path's physical completion: travel time at the
// segment speed plus a fixed margin.
func (o *Operation) pathTimeout(points []robot.Point, speed float64) time.Duration {
	if speed <= 0 {
		return o.cfg.MoveTimeout
	}

	var distance float64
	for i := 1; i < len(points); i++ {
		pose := robot.Pose{X: points[i-1].X(), Y: points[i-1].Y()}
		distance += pose.DistanceTo(points[i])
	}

	travel := time.Duration(distance / speed * float64(time.Second))
	return travel*2 + o.cfg.MoveTimeout
}

// handlePathTransition joins the pump goroutine, optionally turns the
// pump off between paths, and advances the path cursor. More paths loop
// back to STARTING; none left completes the run.
func (o *Operation) handlePathTransition(ctx context.Context, c *ExecutionContext) (Result, error) {
	delta := Delta{}

	if run := c.PumpRun(); run != nil {
		if !run.join(o.cfg.JoinTimeout) {
			return Result{}, fmt.Errorf("pump adjustment loop did not exit within %s", o.cfg.JoinTimeout)
		}
		delta.ClearPumpRun = true
	}

	if o.cfg.TurnOffPumpBetweenPaths && c.SprayOn() {
		if err := o.pump.PumpOff(ctx, o.segmentFor(c)); err != nil {
			return Result{Delta: delta}, err
		}
	}

	pathIdx, _ := c.Cursor()
	next := pathIdx + 1
	delta.PathIndex = intPtr(next)
	delta.PointIndex = intPtr(0)

	if next >= c.PathCount() {
		return Result{Next: StateCompleted, Delta: delta}, nil
	}
	return Result{Next: StateStarting, Delta: delta}, nil
}

// handlePaused self-loops while awaiting an external resume or stop.
// Trajectory updates were already disabled by the Pause operation.
func (o *Operation) handlePaused(ctx context.Context, c *ExecutionContext) (Result, error) {
	return Result{Next: StatePaused}, nil
}

// handleStopped is the cleanup entry point for an operator stop.
func (o *Operation) handleStopped(ctx context.Context, c *ExecutionContext) (Result, error) {
	return Result{Next: StateCompleted}, nil
}

// handleCompleted is the single guaranteed actuator-shutdown path:
// pump off, the configured pump-to-generator delay, then generator and
// fan off. Device failures here are logged, not escalated; shutdown
// always runs to the end.
func (o *Operation) handleCompleted(ctx context.Context, c *ExecutionContext) (Result, error) {
	delta := Delta{}

	if run := c.PumpRun(); run != nil {
		if !run.join(o.cfg.JoinTimeout) {
			o.logger.Error("pump adjustment loop stuck during shutdown")
		}
		delta.ClearPumpRun = true
	}

	// PumpOff is idempotent and best-effort.
	_ = o.pump.PumpOff(ctx, o.segmentFor(c))
	delta.PumpStarted = boolPtr(false)

	if c.GeneratorStarted() {
		delay := o.resolver.Defaults().PumpGeneratorDelay
		if settings, ok := c.Settings(); ok {
			delay = settings.PumpGeneratorDelay
		}
		if err := sleepCtx(ctx, delay); err != nil {
			o.logger.Warn("shutdown delay interrupted", "error", err)
		}

		if err := o.spray.GeneratorOff(ctx); err != nil {
			o.logger.Error("generator off failed", "error", err)
		}
		delta.GeneratorStarted = boolPtr(false)
	}

	if c.FanStarted() {
		if err := o.spray.FanOff(ctx); err != nil {
			o.logger.Error("fan off failed", "error", err)
		}
		delta.FanStarted = boolPtr(false)
	}

	return Result{Next: StateIdle, Delta: delta}, nil
}

// handleIdle is the rest state; reaching it after a run shuts the
// stepping loop down until the next external start.
func (o *Operation) handleIdle(ctx context.Context, c *ExecutionContext) (Result, error) {
	o.machine.Stop()
	return Result{Next: StateIdle}, nil
}

// handleError is terminal for the run; the loop stops and the fault is
// surfaced to the caller. Actuator shutdown happens in the operation's
// loop teardown.
func (o *Operation) handleError(ctx context.Context, c *ExecutionContext) (Result, error) {
	o.machine.Stop()
	return Result{Next: StateError}, nil
}
