package glue

import (
	"time"

	"github.com/glueworks/glue-cell-core/internal/infrastructure/config"
	"github.com/glueworks/glue-cell-core/internal/robot"
)

// Segment is the fully resolved set of settings for one spray path.
//
// Every field has a concrete value after resolution; handlers never
// consult engine defaults directly.
type Segment struct {
	// Motion.
	Speed        float64 // mm/s
	Acceleration float64 // mm/s²

	// Pump.
	PumpSpeed            float64
	MinPumpSpeed         float64
	MaxPumpSpeed         float64
	InitialBoostSpeed    float64
	InitialBoostDuration time.Duration
	ForwardRampSteps     int
	ReverseRampSteps     int
	ReverseSpeed         float64
	ReverseDuration      time.Duration

	// Timing.
	GeneratorGlueDelay time.Duration
	PumpGeneratorDelay time.Duration

	// Spray geometry and air.
	SprayWidth  float64 // mm
	SprayHeight float64 // mm
	FanSpeed    float64 // percent

	// Position thresholds.
	ReachStartThreshold float64 // mm
	ReachEndThreshold   float64 // mm

	// Dynamic pump speed coefficients.
	SpeedCoefficient        float64
	AccelerationCoefficient float64
}

// Overrides carries per-path settings. A nil field means "use the
// engine default" for that parameter.
type Overrides struct {
	Speed        *float64
	Acceleration *float64

	PumpSpeed            *float64
	MinPumpSpeed         *float64
	MaxPumpSpeed         *float64
	InitialBoostSpeed    *float64
	InitialBoostDuration *time.Duration
	ForwardRampSteps     *int
	ReverseRampSteps     *int
	ReverseSpeed         *float64
	ReverseDuration      *time.Duration

	GeneratorGlueDelay *time.Duration
	PumpGeneratorDelay *time.Duration

	SprayWidth  *float64
	SprayHeight *float64
	FanSpeed    *float64

	ReachStartThreshold *float64
	ReachEndThreshold   *float64

	SpeedCoefficient        *float64
	AccelerationCoefficient *float64
}

// Path is one spray path: an ordered point sequence plus overrides.
type Path struct {
	Points    []robot.Point
	Overrides Overrides
}

// Resolver merges path overrides with engine defaults.
type Resolver struct {
	defaults Segment
}

// NewResolver constructs a resolver around the given default segment.
func NewResolver(defaults Segment) *Resolver {
	return &Resolver{defaults: defaults}
}

// DefaultsFromConfig builds the engine default Segment from the glue and
// robot configuration sections. Timing values configured in seconds are
// converted to durations here, once.
func DefaultsFromConfig(glueCfg config.GlueConfig, robotCfg config.RobotConfig) Segment {
	return Segment{
		Speed:        robotCfg.Velocity,
		Acceleration: robotCfg.Acceleration,

		PumpSpeed:            glueCfg.PumpSpeed,
		MinPumpSpeed:         glueCfg.MinPumpSpeed,
		MaxPumpSpeed:         glueCfg.MaxPumpSpeed,
		InitialBoostSpeed:    glueCfg.InitialBoostSpeed,
		InitialBoostDuration: secondsToDuration(glueCfg.InitialBoostDuration),
		ForwardRampSteps:     glueCfg.ForwardRampSteps,
		ReverseRampSteps:     glueCfg.ReverseRampSteps,
		ReverseSpeed:         glueCfg.ReverseSpeed,
		ReverseDuration:      secondsToDuration(glueCfg.ReverseDuration),

		GeneratorGlueDelay: secondsToDuration(glueCfg.GeneratorGlueDelay),
		PumpGeneratorDelay: secondsToDuration(glueCfg.PumpGeneratorDelay),

		SprayWidth:  glueCfg.SprayWidth,
		SprayHeight: glueCfg.SprayHeight,
		FanSpeed:    glueCfg.FanSpeed,

		ReachStartThreshold: glueCfg.ReachStartThreshold,
		ReachEndThreshold:   glueCfg.ReachEndThreshold,

		SpeedCoefficient:        glueCfg.SpeedCoefficient,
		AccelerationCoefficient: glueCfg.AccelerationCoefficient,
	}
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// Defaults returns the resolver's default segment.
func (r *Resolver) Defaults() Segment {
	return r.defaults
}

// Resolve produces the fully resolved Segment for a path: each override
// replaces the corresponding default; absent overrides fall back.
func (r *Resolver) Resolve(p Path) Segment {
	s := r.defaults
	o := p.Overrides

	applyFloat(&s.Speed, o.Speed)
	applyFloat(&s.Acceleration, o.Acceleration)

	applyFloat(&s.PumpSpeed, o.PumpSpeed)
	applyFloat(&s.MinPumpSpeed, o.MinPumpSpeed)
	applyFloat(&s.MaxPumpSpeed, o.MaxPumpSpeed)
	applyFloat(&s.InitialBoostSpeed, o.InitialBoostSpeed)
	applyDuration(&s.InitialBoostDuration, o.InitialBoostDuration)
	applyInt(&s.ForwardRampSteps, o.ForwardRampSteps)
	applyInt(&s.ReverseRampSteps, o.ReverseRampSteps)
	applyFloat(&s.ReverseSpeed, o.ReverseSpeed)
	applyDuration(&s.ReverseDuration, o.ReverseDuration)

	applyDuration(&s.GeneratorGlueDelay, o.GeneratorGlueDelay)
	applyDuration(&s.PumpGeneratorDelay, o.PumpGeneratorDelay)

	applyFloat(&s.SprayWidth, o.SprayWidth)
	applyFloat(&s.SprayHeight, o.SprayHeight)
	applyFloat(&s.FanSpeed, o.FanSpeed)

	applyFloat(&s.ReachStartThreshold, o.ReachStartThreshold)
	applyFloat(&s.ReachEndThreshold, o.ReachEndThreshold)

	applyFloat(&s.SpeedCoefficient, o.SpeedCoefficient)
	applyFloat(&s.AccelerationCoefficient, o.AccelerationCoefficient)

	return s
}

func applyFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func applyInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func applyDuration(dst *time.Duration, src *time.Duration) {
	if src != nil {
		*dst = *src
	}
}

// ClampPumpSpeed bounds a computed pump speed to the segment's range.
func (s Segment) ClampPumpSpeed(speed float64) float64 {
	if speed < s.MinPumpSpeed {
		return s.MinPumpSpeed
	}
	if s.MaxPumpSpeed > 0 && speed > s.MaxPumpSpeed {
		return s.MaxPumpSpeed
	}
	return speed
}
