package spray

import (
	"context"
	"sync"
)

// Sim is an in-memory spray service that records every call.
//
// It serves as the sim driver's hardware stand-in and as a test double
// for the dispense package. Call counters expose exactly how many device
// commands were issued, which the stop-law and pump-cycle tests assert on.
//
// Thread Safety: all methods are safe for concurrent use.
type Sim struct {
	mu sync.Mutex

	pumpRunning      bool
	generatorRunning bool
	fanRunning       bool

	pumpSpeed   float64
	fanSpeed    float64
	lastReverse ReverseSettings

	PumpOnCalls       int
	PumpOffCalls      int
	SetSpeedCalls     int
	GeneratorOnCalls  int
	GeneratorOffCalls int
	FanOnCalls        int
	FanOffCalls       int

	// FailWith, when set, is returned by every subsequent call.
	FailWith error
}

// NewSim constructs a simulated spray service with all hardware off.
func NewSim() *Sim {
	return &Sim{}
}

// PumpOn starts the simulated pump.
func (s *Sim) PumpOn(ctx context.Context, settings PumpSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.PumpOnCalls++
	s.pumpRunning = true
	s.pumpSpeed = settings.Speed
	return nil
}

// PumpOff stops the simulated pump and records the suck-back parameters.
func (s *Sim) PumpOff(ctx context.Context, reverse ReverseSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.PumpOffCalls++
	s.pumpRunning = false
	s.pumpSpeed = 0
	s.lastReverse = reverse
	return nil
}

// SetPumpSpeed records the commanded pump speed.
func (s *Sim) SetPumpSpeed(ctx context.Context, speed float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.SetSpeedCalls++
	s.pumpSpeed = speed
	return nil
}

// GeneratorOn starts the simulated generator.
func (s *Sim) GeneratorOn(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.GeneratorOnCalls++
	s.generatorRunning = true
	return nil
}

// GeneratorOff stops the simulated generator.
func (s *Sim) GeneratorOff(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.GeneratorOffCalls++
	s.generatorRunning = false
	return nil
}

// FanOn starts the simulated fan.
func (s *Sim) FanOn(ctx context.Context, speed float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.FanOnCalls++
	s.fanRunning = true
	s.fanSpeed = speed
	return nil
}

// FanOff stops the simulated fan.
func (s *Sim) FanOff(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.FanOffCalls++
	s.fanRunning = false
	s.fanSpeed = 0
	return nil
}

// PumpRunning reports the simulated pump state.
func (s *Sim) PumpRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pumpRunning
}

// GeneratorRunning reports the simulated generator state.
func (s *Sim) GeneratorRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generatorRunning
}

// FanRunning reports the simulated fan state.
func (s *Sim) FanRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fanRunning
}

// LastReverse returns the suck-back parameters from the most recent
// pump-off command.
func (s *Sim) LastReverse() ReverseSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReverse
}

// PumpSpeed returns the last commanded pump speed.
func (s *Sim) PumpSpeed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pumpSpeed
}

// Counts returns a snapshot of all call counters.
func (s *Sim) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]int{
		"pump_on":       s.PumpOnCalls,
		"pump_off":      s.PumpOffCalls,
		"set_speed":     s.SetSpeedCalls,
		"generator_on":  s.GeneratorOnCalls,
		"generator_off": s.GeneratorOffCalls,
		"fan_on":        s.FanOnCalls,
		"fan_off":       s.FanOffCalls,
	}
}

var _ Service = (*Sim)(nil)
