package robot

import "errors"

// Sentinel errors for robot-motion operations.
var (
	// ErrMoveRejected indicates the motion service refused a move or
	// streamed point.
	ErrMoveRejected = errors.New("robot: move rejected")

	// ErrMoveTimeout indicates the robot did not reach the target
	// position within the allowed time.
	ErrMoveTimeout = errors.New("robot: move timed out")

	// ErrTrajectoryDisabled indicates a streamed point was refused
	// because trajectory updates are disabled (paused).
	ErrTrajectoryDisabled = errors.New("robot: trajectory updates disabled")

	// ErrNotConnected indicates the motion service is unreachable.
	ErrNotConnected = errors.New("robot: not connected")
)
