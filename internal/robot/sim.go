package robot

import (
	"context"
	"sync"
	"time"
)

// SimConfig controls the simulated robot's motion model.
type SimConfig struct {
	// Velocity is the simulated feed velocity in mm/s. Defaults to 100.
	Velocity float64

	// Acceleration is the reported TCP acceleration in mm/s². Defaults to 10.
	Acceleration float64

	// CycleTime is the polling resolution for WaitForPosition and the
	// minimum travel time per point. Defaults to 10ms.
	CycleTime time.Duration
}

// Sim is a simulated robot-motion service.
//
// It models travel time as distance divided by feed velocity, tracks a
// busy-until horizon for streamed points, and reports the feed velocity
// while motion is pending. Used by the sim driver and by tests.
//
// Thread Safety: all methods are safe for concurrent use.
type Sim struct {
	mu sync.Mutex

	pose              Pose
	lastTarget        Point
	busyUntil         time.Time
	trajectoryEnabled bool

	velocity     float64
	acceleration float64
	cycleTime    time.Duration
}

// NewSim constructs a simulated robot at the origin with trajectory
// updates enabled.
func NewSim(cfg SimConfig) *Sim {
	if cfg.Velocity <= 0 {
		cfg.Velocity = 100
	}
	if cfg.Acceleration <= 0 {
		cfg.Acceleration = 10
	}
	if cfg.CycleTime <= 0 {
		cfg.CycleTime = 10 * time.Millisecond
	}
	return &Sim{
		trajectoryEnabled: true,
		velocity:          cfg.Velocity,
		acceleration:      cfg.Acceleration,
		cycleTime:         cfg.CycleTime,
	}
}

// MoveTo commands a move to the target point.
//
// Blocking moves sleep the simulated travel time before updating the
// pose; non-blocking moves schedule the travel and return immediately.
func (s *Sim) MoveTo(ctx context.Context, target Point, blocking bool) error {
	travel := s.travelTime(target)

	if !blocking {
		s.mu.Lock()
		s.applyTarget(target, travel)
		s.mu.Unlock()
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(travel):
	}

	s.mu.Lock()
	s.applyTarget(target, 0)
	s.mu.Unlock()
	return nil
}

// StreamPoint accepts a trajectory point unless updates are disabled.
func (s *Sim) StreamPoint(ctx context.Context, target Point, velocity, acceleration float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.trajectoryEnabled {
		return ErrTrajectoryDisabled
	}

	s.applyTarget(target, s.travelTimeLocked(target))
	return nil
}

// applyTarget records target as reached and extends the busy horizon.
// Caller holds s.mu.
func (s *Sim) applyTarget(target Point, travel time.Duration) {
	s.lastTarget = target
	s.pose = Pose{X: target.X(), Y: target.Y()}

	from := time.Now()
	if s.busyUntil.After(from) {
		from = s.busyUntil
	}
	s.busyUntil = from.Add(travel)
}

// travelTime computes the simulated travel duration to target.
func (s *Sim) travelTime(target Point) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.travelTimeLocked(target)
}

func (s *Sim) travelTimeLocked(target Point) time.Duration {
	distance := s.pose.DistanceTo(target)
	travel := time.Duration(distance / s.velocity * float64(time.Second))
	if travel < s.cycleTime {
		travel = s.cycleTime
	}
	return travel
}

// CurrentPose returns the pose of the most recently accepted target.
func (s *Sim) CurrentPose() (Pose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pose, nil
}

// CurrentVelocity reports the feed velocity while motion is pending,
// zero when idle.
func (s *Sim) CurrentVelocity() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Now().Before(s.busyUntil) {
		return s.velocity, nil
	}
	return 0, nil
}

// CurrentAcceleration reports the configured TCP acceleration while
// motion is pending, zero when idle.
func (s *Sim) CurrentAcceleration() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Now().Before(s.busyUntil) {
		return s.acceleration, nil
	}
	return 0, nil
}

// MotionComplete reports whether all accepted points have been executed.
func (s *Sim) MotionComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !time.Now().Before(s.busyUntil)
}

// SetTrajectoryUpdates enables or disables acceptance of streamed points.
// Disabling halts pending motion immediately, mirroring a hardware pause.
func (s *Sim) SetTrajectoryUpdates(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trajectoryEnabled = enabled
	if !enabled {
		s.busyUntil = time.Now()
	}
}

// TrajectoryUpdates reports whether streamed points are accepted.
func (s *Sim) TrajectoryUpdates() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trajectoryEnabled
}

// WaitForPosition polls the pose until within threshold of target.
func (s *Sim) WaitForPosition(ctx context.Context, target Point, threshold float64, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		pose, err := s.CurrentPose()
		if err != nil {
			return err
		}
		if pose.DistanceTo(target) <= threshold && s.MotionComplete() {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrMoveTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cycleTime):
		}
	}
}

// compile-time interface check
var _ Service = (*Sim)(nil)
