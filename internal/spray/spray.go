package spray

import (
	"context"
	"time"
)

// PumpSettings carries the segment parameters the pump needs at start.
type PumpSettings struct {
	// Speed is the motor speed the pump ramps up to.
	Speed float64

	// RampSteps is the number of discrete steps used for the ramp-up.
	RampSteps int
}

// ReverseSettings carries the suck-back parameters applied at pump
// stop. The pump briefly spins in reverse to relieve nozzle pressure so
// the bead breaks cleanly instead of stringing.
type ReverseSettings struct {
	// Speed is the reverse motor speed.
	Speed float64

	// Duration is how long the reverse spin lasts.
	Duration time.Duration

	// RampSteps is the number of discrete steps used for the reverse ramp.
	RampSteps int
}

// Service is the spray hardware boundary consumed by the execution
// engine.
//
// All methods return an error instead of raising past the boundary.
// Implementations are not required to be idempotent; the dispense
// package's PumpController tracks on/off state above this interface.
type Service interface {
	// PumpOn starts the adhesive pump with the given settings.
	PumpOn(ctx context.Context, settings PumpSettings) error

	// PumpOff stops the adhesive pump, applying the given suck-back
	// parameters while winding down.
	PumpOff(ctx context.Context, reverse ReverseSettings) error

	// SetPumpSpeed adjusts the running pump's motor speed.
	SetPumpSpeed(ctx context.Context, speed float64) error

	// GeneratorOn starts the heat/air generator.
	GeneratorOn(ctx context.Context) error

	// GeneratorOff stops the heat/air generator.
	GeneratorOff(ctx context.Context) error

	// FanOn starts the fan at the given speed (percent).
	FanOn(ctx context.Context, speed float64) error

	// FanOff stops the fan.
	FanOff(ctx context.Context) error
}
