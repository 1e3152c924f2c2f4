package spray

import "errors"

// Sentinel errors for spray hardware operations.
var (
	// ErrCommandFailed indicates a device command could not be delivered.
	ErrCommandFailed = errors.New("spray: command failed")

	// ErrInvalidSpeed indicates a speed value outside the device's range.
	ErrInvalidSpeed = errors.New("spray: invalid speed")
)
