package dispense

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glueworks/glue-cell-core/internal/robot"
	"github.com/glueworks/glue-cell-core/internal/spray"
)

// fixedMotion reports constant velocity, acceleration and pose, which
// makes the adjustment formula directly observable.
type fixedMotion struct {
	mu sync.Mutex

	pose         robot.Pose
	velocity     float64
	acceleration float64
	complete     bool
}

func (f *fixedMotion) MoveTo(ctx context.Context, target robot.Point, blocking bool) error {
	return nil
}

func (f *fixedMotion) StreamPoint(ctx context.Context, target robot.Point, velocity, acceleration float64) error {
	return nil
}

func (f *fixedMotion) CurrentPose() (robot.Pose, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pose, nil
}

func (f *fixedMotion) CurrentVelocity() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.velocity, nil
}

func (f *fixedMotion) CurrentAcceleration() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acceleration, nil
}

func (f *fixedMotion) MotionComplete() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.complete
}

func (f *fixedMotion) SetTrajectoryUpdates(enabled bool) {}
func (f *fixedMotion) TrajectoryUpdates() bool           { return true }

func (f *fixedMotion) WaitForPosition(ctx context.Context, target robot.Point, threshold float64, timeout time.Duration) error {
	return nil
}

var _ robot.Service = (*fixedMotion)(nil)

func startedPump(t *testing.T, dev *spray.Sim) *PumpController {
	t.Helper()
	pc := NewPumpController(dev, nil)
	if err := pc.PumpOn(context.Background(), 60, testSegment()); err != nil {
		t.Fatalf("PumpOn: %v", err)
	}
	return pc
}

func TestAdjustLoopAppliesVelocityCoupledSpeed(t *testing.T) {
	dev := spray.NewSim()
	fm := &fixedMotion{velocity: 100, acceleration: 20}

	run := startPumpAdjustment(adjustment{
		runID:    "run",
		points:   []robot.Point{{500, 500}},
		segment:  testSegment(),
		robot:    fm,
		pump:     startedPump(t, dev),
		interval: time.Millisecond,
	})
	defer run.join(time.Second)

	if !run.waitReady(time.Second) {
		t.Fatal("loop never signalled readiness")
	}

	// speed = 100*0.1 + 20*0.05 = 11, inside the clamp range.
	if got := dev.PumpSpeed(); got != 11 {
		t.Fatalf("commanded speed = %v, want 11", got)
	}
}

func TestAdjustLoopHalvesDecelerationWeight(t *testing.T) {
	dev := spray.NewSim()
	fm := &fixedMotion{velocity: 100, acceleration: -20}

	run := startPumpAdjustment(adjustment{
		runID:    "run",
		points:   []robot.Point{{500, 500}},
		segment:  testSegment(),
		robot:    fm,
		pump:     startedPump(t, dev),
		interval: time.Millisecond,
	})
	defer run.join(time.Second)

	if !run.waitReady(time.Second) {
		t.Fatal("loop never signalled readiness")
	}

	// speed = 100*0.1 + (-20)*(0.05/2) = 9.5
	if got := dev.PumpSpeed(); got != 9.5 {
		t.Fatalf("commanded speed = %v, want 9.5", got)
	}
}

func TestAdjustLoopCompletesAtPathEnd(t *testing.T) {
	dev := spray.NewSim()
	fm := &fixedMotion{complete: true} // pose already at the only point

	run := startPumpAdjustment(adjustment{
		runID:      "run",
		startPoint: 3,
		points:     []robot.Point{{0, 0}},
		segment:    testSegment(),
		robot:      fm,
		pump:       startedPump(t, dev),
		interval:   time.Millisecond,
	})

	select {
	case <-run.done:
	case <-time.After(time.Second):
		t.Fatal("loop did not complete")
	}

	completed, progress := run.result()
	if !completed {
		t.Fatal("loop exited without marking completion")
	}
	if progress != 4 {
		t.Fatalf("progress = %d, want 4 (start point 3 plus one reached)", progress)
	}
}

func TestWaitReadyTimesOutWhenSpeedNeverApplies(t *testing.T) {
	dev := spray.NewSim()
	pc := startedPump(t, dev)
	dev.FailWith = errors.New("device unreachable")

	run := startPumpAdjustment(adjustment{
		runID:    "run",
		points:   []robot.Point{{500, 500}},
		segment:  testSegment(),
		robot:    &fixedMotion{velocity: 100},
		pump:     pc,
		interval: time.Millisecond,
	})
	defer run.join(time.Second)

	if run.waitReady(50 * time.Millisecond) {
		t.Fatal("readiness signalled despite failing speed writes")
	}
}

func TestJoinCancelsIncompleteLoop(t *testing.T) {
	dev := spray.NewSim()

	run := startPumpAdjustment(adjustment{
		runID:    "run",
		points:   []robot.Point{{500, 500}}, // never reached
		segment:  testSegment(),
		robot:    &fixedMotion{velocity: 100},
		pump:     startedPump(t, dev),
		interval: time.Millisecond,
	})

	if !run.waitReady(time.Second) {
		t.Fatal("loop never signalled readiness")
	}
	if !run.join(time.Second) {
		t.Fatal("join timed out")
	}

	completed, progress := run.result()
	if completed {
		t.Fatal("cancelled loop reported completion")
	}
	if progress != 0 {
		t.Fatalf("progress = %d, want 0", progress)
	}
}
