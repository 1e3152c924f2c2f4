package dispense

import (
	"context"
	"sync"
	"time"

	"github.com/glueworks/glue-cell-core/internal/glue"
	"github.com/glueworks/glue-cell-core/internal/robot"
)

// TelemetrySink receives pump and motion samples from the adjustment
// loop. Satisfied by the infrastructure influxdb client; failures are
// the sink's problem, never the loop's.
type TelemetrySink interface {
	WritePumpMetric(runID string, pathIndex int, commandedSpeed, velocity, acceleration float64)
	WriteMotionMetric(runID string, pathIndex, pointIndex int, x, y float64)
}

type noopTelemetry struct{}

func (noopTelemetry) WritePumpMetric(string, int, float64, float64, float64) {}
func (noopTelemetry) WriteMotionMetric(string, int, int, float64, float64)  {}

// defaultAdjustInterval is the pump speed recompute period.
const defaultAdjustInterval = 50 * time.Millisecond

// pumpRun is the handle for one pump-adjustment goroutine.
//
// The ready channel closes after the first speed command is applied;
// the done channel closes when the goroutine exits. The goroutine owns
// the progress counter; the stepping goroutine reads it only after a
// join (or through the synchronised accessor).
type pumpRun struct {
	cancel context.CancelFunc
	ready  chan struct{}
	done   chan struct{}

	mu        sync.Mutex
	completed bool
	progress  int
}

// waitReady blocks until the first speed has been applied or the
// timeout elapses.
func (r *pumpRun) waitReady(timeout time.Duration) bool {
	select {
	case <-r.ready:
		return true
	case <-r.done:
		// Loop exited before ever applying a speed.
		return false
	case <-time.After(timeout):
		return false
	}
}

// join cancels the loop and waits for it to exit, bounded by timeout.
// Idempotent: joining an already-finished run returns true immediately.
func (r *pumpRun) join(timeout time.Duration) bool {
	r.cancel()
	select {
	case <-r.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// result returns whether the loop saw the path through to completion and
// the index of the last point reached.
func (r *pumpRun) result() (completed bool, progress int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed, r.progress
}

func (r *pumpRun) setProgress(i int) {
	r.mu.Lock()
	r.progress = i
	r.mu.Unlock()
}

func (r *pumpRun) setCompleted() {
	r.mu.Lock()
	r.completed = true
	r.mu.Unlock()
}

// adjustment bundles the read-only snapshot and collaborators given to
// one pump-adjustment goroutine. The points slice is copied at spawn;
// the goroutine never touches the live path.
type adjustment struct {
	runID      string
	pathIndex  int
	startPoint int // absolute point index of points[0]
	points     []robot.Point
	segment    glue.Segment

	robot    robot.Service
	pump     *PumpController
	sink     TelemetrySink
	logger   Logger
	interval time.Duration
}

// startPumpAdjustment spawns the adjustment goroutine and returns its
// handle.
//
// Each iteration reads the robot's velocity and acceleration, computes
//
//	speed = velocity*SpeedCoefficient + acceleration*AccelerationCoefficient
//
// (acceleration weighted at half the coefficient while decelerating),
// clamps it to the segment's pump range, and writes it through the
// controller. Readiness is signalled after the first applied speed.
// Progress is tracked by checkpoint proximity: a path point counts as
// reached once the pose is within ReachEndThreshold of it.
func startPumpAdjustment(a adjustment) *pumpRun {
	if a.sink == nil {
		a.sink = noopTelemetry{}
	}
	if a.logger == nil {
		a.logger = noopLogger{}
	}
	if a.interval <= 0 {
		a.interval = defaultAdjustInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &pumpRun{
		cancel:   cancel,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		progress: a.startPoint,
	}

	go adjustLoop(ctx, a, run)
	return run
}

func adjustLoop(ctx context.Context, a adjustment, run *pumpRun) {
	defer close(run.done)

	readySignalled := false
	checkpoint := 0

	for {
		if ctx.Err() != nil {
			return
		}

		velocity, err := a.robot.CurrentVelocity()
		if err != nil {
			a.logger.Warn("velocity read failed", "error", err)
			velocity = 0
		}
		acceleration, err := a.robot.CurrentAcceleration()
		if err != nil {
			acceleration = 0
		}

		accelCoeff := a.segment.AccelerationCoefficient
		if acceleration < 0 {
			// Deceleration contributes at half weight so the pump does
			// not starve the bead during braking.
			accelCoeff /= 2
		}
		speed := velocity*a.segment.SpeedCoefficient + acceleration*accelCoeff
		clamped := a.segment.ClampPumpSpeed(speed)

		if err := a.pump.SetSpeed(ctx, clamped, a.segment); err != nil {
			a.logger.Warn("pump speed write failed", "speed", clamped, "error", err)
		} else if !readySignalled {
			close(run.ready)
			readySignalled = true
		}

		a.sink.WritePumpMetric(a.runID, a.pathIndex, clamped, velocity, acceleration)

		if pose, err := a.robot.CurrentPose(); err == nil {
			for i := checkpoint; i < len(a.points); i++ {
				if pose.DistanceTo(a.points[i]) <= a.segment.ReachEndThreshold {
					checkpoint = i + 1
				}
			}
			run.setProgress(a.startPoint + checkpoint)
			a.sink.WriteMotionMetric(a.runID, a.pathIndex, a.startPoint+checkpoint, pose.X, pose.Y)
		}

		if checkpoint >= len(a.points) && a.robot.MotionComplete() {
			run.setCompleted()
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(a.interval):
		}
	}
}
