package dispense

import (
	"context"
	"sync"

	"github.com/glueworks/glue-cell-core/internal/glue"
	"github.com/glueworks/glue-cell-core/internal/spray"
)

// Logger is the minimal logging interface the engine needs.
// Satisfied by the infrastructure logging package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// PumpController owns pump on/off and speed commands against the spray
// service.
//
// It makes on/off idempotent: a duplicate PumpOff never re-issues a
// device command that could desynchronise state. PumpOff is best-effort,
// device errors are logged and nil is returned so shutdown paths cannot
// fail on an unreachable device.
type PumpController struct {
	mu      sync.Mutex
	running bool

	device spray.Service
	logger Logger
}

// NewPumpController constructs a controller with the pump considered off.
func NewPumpController(device spray.Service, logger Logger) *PumpController {
	if logger == nil {
		logger = noopLogger{}
	}
	return &PumpController{
		device: device,
		logger: logger,
	}
}

// PumpOn starts the pump at the segment's speed; a no-op if already
// running.
//
// Parameters:
//   - ctx: Cancellation for the device command
//   - speed: Motor speed to ramp to
//   - segment: Resolved segment providing the ramp step count
//
// Returns:
//   - error: Device failure starting the pump
func (p *PumpController) PumpOn(ctx context.Context, speed float64, segment glue.Segment) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	err := p.device.PumpOn(ctx, spray.PumpSettings{
		Speed:     speed,
		RampSteps: segment.ForwardRampSteps,
	})
	if err != nil {
		return err
	}

	p.running = true
	p.logger.Debug("pump on", "speed", speed)
	return nil
}

// PumpOff stops the pump, reversing briefly per the segment's suck-back
// parameters. Idempotent and best-effort: a duplicate call is a no-op,
// and a device failure is logged but never returned, so cleanup paths
// always proceed.
func (p *PumpController) PumpOff(ctx context.Context, segment glue.Segment) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}

	// Mark off before the device call: a failed off must not leave the
	// controller believing the pump is still commanded on.
	p.running = false

	err := p.device.PumpOff(ctx, spray.ReverseSettings{
		Speed:     segment.ReverseSpeed,
		Duration:  segment.ReverseDuration,
		RampSteps: segment.ReverseRampSteps,
	})
	if err != nil {
		p.logger.Warn("pump off failed, continuing", "error", err)
	}
	return nil
}

// SetSpeed writes a clamped speed command to the running pump.
// Returns without a device call when the pump is off.
func (p *PumpController) SetSpeed(ctx context.Context, speed float64, segment glue.Segment) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}

	return p.device.SetPumpSpeed(ctx, segment.ClampPumpSpeed(speed))
}

// Running reports whether the controller considers the pump on.
func (p *PumpController) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
