package robot

import (
	"context"
	"math"
	"time"
)

// Point is a 2-D spray path point in millimetres.
type Point [2]float64

// X returns the point's horizontal coordinate.
func (p Point) X() float64 { return p[0] }

// Y returns the point's vertical coordinate.
func (p Point) Y() float64 { return p[1] }

// Pose is the robot tool-centre-point position and rotation.
type Pose struct {
	X  float64 // mm
	Y  float64 // mm
	Z  float64 // mm
	RZ float64 // degrees
}

// DistanceTo returns the planar distance from the pose to a path point,
// in millimetres.
func (p Pose) DistanceTo(target Point) float64 {
	dx := p.X - target.X()
	dy := p.Y - target.Y()
	return math.Hypot(dx, dy)
}

// Service is the motion boundary consumed by the execution engine.
//
// Implementations must return errors rather than panic past this
// boundary; blocking calls must honour ctx cancellation.
type Service interface {
	// MoveTo commands a move to the target point. When blocking is true
	// the call returns after the robot physically reaches the target;
	// otherwise it returns once the command is accepted.
	MoveTo(ctx context.Context, target Point, blocking bool) error

	// StreamPoint issues a non-blocking trajectory point with the given
	// velocity and acceleration. Returns ErrMoveRejected if the point is
	// not accepted and ErrTrajectoryDisabled while updates are off.
	StreamPoint(ctx context.Context, target Point, velocity, acceleration float64) error

	// CurrentPose returns the current tool-centre-point pose.
	CurrentPose() (Pose, error)

	// CurrentVelocity returns the current TCP velocity in mm/s.
	CurrentVelocity() (float64, error)

	// CurrentAcceleration returns the current TCP acceleration in mm/s².
	CurrentAcceleration() (float64, error)

	// MotionComplete reports whether all accepted points have been
	// physically executed.
	MotionComplete() bool

	// SetTrajectoryUpdates enables or disables acceptance of streamed
	// points. Pause disables it to halt motion without discarding the
	// run context.
	SetTrajectoryUpdates(enabled bool)

	// TrajectoryUpdates reports whether streamed points are accepted.
	TrajectoryUpdates() bool

	// WaitForPosition blocks until the robot is within threshold
	// millimetres of target or the timeout elapses.
	WaitForPosition(ctx context.Context, target Point, threshold float64, timeout time.Duration) error
}
