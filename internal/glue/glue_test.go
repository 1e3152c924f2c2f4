package glue

import (
	"testing"
	"time"

	"github.com/glueworks/glue-cell-core/internal/infrastructure/config"
	"github.com/glueworks/glue-cell-core/internal/robot"
)

func floatPtr(v float64) *float64            { return &v }
func intPtr(v int) *int                      { return &v }
func durationPtr(v time.Duration) *time.Duration { return &v }

func testDefaults() Segment {
	return Segment{
		Speed:                   100,
		Acceleration:            10,
		PumpSpeed:               10000,
		MinPumpSpeed:            1000,
		MaxPumpSpeed:            15000,
		InitialBoostSpeed:       5000,
		InitialBoostDuration:    time.Second,
		ForwardRampSteps:        1,
		ReverseRampSteps:        1,
		ReverseSpeed:            1000,
		ReverseDuration:         time.Second,
		GeneratorGlueDelay:      time.Second,
		PumpGeneratorDelay:      time.Second,
		SprayWidth:              20,
		SprayHeight:             100,
		FanSpeed:                50,
		ReachStartThreshold:     1,
		ReachEndThreshold:       1,
		SpeedCoefficient:        80,
		AccelerationCoefficient: 10,
	}
}

func TestResolve_NoOverrides(t *testing.T) {
	resolver := NewResolver(testDefaults())

	got := resolver.Resolve(Path{Points: []robot.Point{{0, 0}, {10, 10}}})

	if got != testDefaults() {
		t.Errorf("Resolve() with no overrides = %+v, want defaults", got)
	}
}

func TestResolve_Overrides(t *testing.T) {
	resolver := NewResolver(testDefaults())

	path := Path{
		Points: []robot.Point{{0, 0}},
		Overrides: Overrides{
			Speed:              floatPtr(250),
			PumpSpeed:          floatPtr(12000),
			ForwardRampSteps:   intPtr(5),
			GeneratorGlueDelay: durationPtr(3 * time.Second),
		},
	}

	got := resolver.Resolve(path)

	if got.Speed != 250 {
		t.Errorf("Speed = %v, want 250", got.Speed)
	}
	if got.PumpSpeed != 12000 {
		t.Errorf("PumpSpeed = %v, want 12000", got.PumpSpeed)
	}
	if got.ForwardRampSteps != 5 {
		t.Errorf("ForwardRampSteps = %v, want 5", got.ForwardRampSteps)
	}
	if got.GeneratorGlueDelay != 3*time.Second {
		t.Errorf("GeneratorGlueDelay = %v, want 3s", got.GeneratorGlueDelay)
	}

	// Unoverridden fields keep the defaults.
	if got.Acceleration != 10 {
		t.Errorf("Acceleration = %v, want default 10", got.Acceleration)
	}
	if got.PumpGeneratorDelay != time.Second {
		t.Errorf("PumpGeneratorDelay = %v, want default 1s", got.PumpGeneratorDelay)
	}
}

func TestResolve_DelaysNeverSilentlyZero(t *testing.T) {
	resolver := NewResolver(testDefaults())

	// A path with no timing overrides must inherit the non-zero defaults.
	got := resolver.Resolve(Path{Points: []robot.Point{{0, 0}}})

	if got.GeneratorGlueDelay == 0 {
		t.Error("GeneratorGlueDelay resolved to zero without explicit configuration")
	}
	if got.InitialBoostDuration == 0 {
		t.Error("InitialBoostDuration resolved to zero without explicit configuration")
	}
	if got.PumpGeneratorDelay == 0 {
		t.Error("PumpGeneratorDelay resolved to zero without explicit configuration")
	}
}

func TestResolve_ExplicitZeroDelay(t *testing.T) {
	resolver := NewResolver(testDefaults())

	path := Path{
		Points:    []robot.Point{{0, 0}},
		Overrides: Overrides{GeneratorGlueDelay: durationPtr(0)},
	}

	got := resolver.Resolve(path)
	if got.GeneratorGlueDelay != 0 {
		t.Errorf("GeneratorGlueDelay = %v, explicit zero override must be honoured", got.GeneratorGlueDelay)
	}
}

func TestDefaultsFromConfig(t *testing.T) {
	glueCfg := config.GlueConfig{
		PumpSpeed:            10000,
		MinPumpSpeed:         1000,
		MaxPumpSpeed:         15000,
		InitialBoostSpeed:    5000,
		InitialBoostDuration: 1,
		ForwardRampSteps:     1,
		ReverseRampSteps:     1,
		ReverseSpeed:         1000,
		ReverseDuration:      1,
		GeneratorGlueDelay:   1.5,
		PumpGeneratorDelay:   1,
		SprayWidth:           20,
		SprayHeight:          100,
		FanSpeed:             50,
		ReachStartThreshold:  1,
		ReachEndThreshold:    1,
		SpeedCoefficient:     80,
		AccelerationCoefficient: 10,
	}
	robotCfg := config.RobotConfig{Velocity: 100, Acceleration: 10}

	got := DefaultsFromConfig(glueCfg, robotCfg)

	if got.Speed != 100 {
		t.Errorf("Speed = %v, want 100", got.Speed)
	}
	if got.GeneratorGlueDelay != 1500*time.Millisecond {
		t.Errorf("GeneratorGlueDelay = %v, want 1.5s", got.GeneratorGlueDelay)
	}
	if got.InitialBoostDuration != time.Second {
		t.Errorf("InitialBoostDuration = %v, want 1s", got.InitialBoostDuration)
	}
}

func TestClampPumpSpeed(t *testing.T) {
	s := Segment{MinPumpSpeed: 1000, MaxPumpSpeed: 15000}

	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"below minimum", 500, 1000},
		{"within range", 8000, 8000},
		{"above maximum", 20000, 15000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.ClampPumpSpeed(tt.in); got != tt.want {
				t.Errorf("ClampPumpSpeed(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestClampPumpSpeed_NoUpperBound(t *testing.T) {
	s := Segment{MinPumpSpeed: 1000}

	if got := s.ClampPumpSpeed(50000); got != 50000 {
		t.Errorf("ClampPumpSpeed(50000) = %v, want 50000 when max unset", got)
	}
}
