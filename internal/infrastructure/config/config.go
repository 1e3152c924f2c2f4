package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Glue Cell Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Cell     CellConfig     `yaml:"cell"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Robot    RobotConfig    `yaml:"robot"`
	Glue     GlueConfig     `yaml:"glue"`
}

// CellConfig identifies the physical robot cell this instance controls.
type CellConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for process telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// RobotConfig contains robot-motion service settings.
type RobotConfig struct {
	// Driver selects the robot-motion backend. Currently only "sim" ships
	// with the core; vendor drivers register externally.
	Driver string `yaml:"driver"`

	// Velocity and Acceleration are the global motion defaults (mm/s, mm/s²)
	// used when a segment does not override them.
	Velocity     float64 `yaml:"velocity"`
	Acceleration float64 `yaml:"acceleration"`

	// MoveTimeout bounds a single blocking move (seconds).
	MoveTimeout int `yaml:"move_timeout"`

	// CycleTime is the position-poll interval in milliseconds.
	CycleTime int `yaml:"cycle_time"`
}

// GlueConfig contains glue process defaults and engine flags.
// Per-segment overrides on a spray path take precedence over these values.
type GlueConfig struct {
	// Engine flags.
	UseSegmentSettings      bool `yaml:"use_segment_settings"`
	TurnOffPumpBetweenPaths bool `yaml:"turn_off_pump_between_paths"`
	AdjustPumpWhileSpraying bool `yaml:"adjust_pump_while_spraying"`

	// StepDelayMs is the state machine inter-step delay in milliseconds.
	StepDelayMs int `yaml:"step_delay_ms"`

	// Pump defaults.
	PumpSpeed            float64 `yaml:"pump_speed"`
	MinPumpSpeed         float64 `yaml:"min_pump_speed"`
	MaxPumpSpeed         float64 `yaml:"max_pump_speed"`
	InitialBoostSpeed    float64 `yaml:"initial_boost_speed"`
	InitialBoostDuration float64 `yaml:"initial_boost_duration"`
	ForwardRampSteps     int     `yaml:"forward_ramp_steps"`
	ReverseRampSteps     int     `yaml:"reverse_ramp_steps"`
	ReverseSpeed         float64 `yaml:"reverse_speed"`
	ReverseDuration      float64 `yaml:"reverse_duration"`

	// Timing (seconds).
	GeneratorGlueDelay float64 `yaml:"generator_glue_delay"`
	PumpGeneratorDelay float64 `yaml:"pump_generator_delay"`

	// Spray geometry and air.
	SprayWidth  float64 `yaml:"spray_width"`
	SprayHeight float64 `yaml:"spray_height"`
	FanSpeed    float64 `yaml:"fan_speed"`

	// Path thresholds (mm).
	ReachStartThreshold float64 `yaml:"reach_start_threshold"`
	ReachEndThreshold   float64 `yaml:"reach_end_threshold"`

	// Dynamic pump speed coefficients.
	SpeedCoefficient        float64 `yaml:"speed_coefficient"`
	AccelerationCoefficient float64 `yaml:"acceleration_coefficient"`
}

// Load reads, parses, and validates configuration from the given YAML file.
//
// Order of precedence (lowest to highest):
//  1. Built-in defaults
//  2. YAML file values
//  3. Environment variable overrides (GLUECELL_*)
//
// Parameters:
//   - path: Filesystem path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
// Glue process defaults mirror the commissioning values used on the first cells.
func defaultConfig() *Config {
	return &Config{
		Cell: CellConfig{
			ID:   "cell-001",
			Name: "Glue Cell",
		},
		Database: DatabaseConfig{
			Path:        "./data/gluecell.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "gluecell-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Robot: RobotConfig{
			Driver:       "sim",
			Velocity:     100,
			Acceleration: 30,
			MoveTimeout:  30,
			CycleTime:    20,
		},
		Glue: GlueConfig{
			UseSegmentSettings:      true,
			TurnOffPumpBetweenPaths: true,
			AdjustPumpWhileSpraying: true,
			StepDelayMs:             200,
			PumpSpeed:               10000,
			MinPumpSpeed:            1000,
			MaxPumpSpeed:            15000,
			InitialBoostSpeed:       5000,
			InitialBoostDuration:    1,
			ForwardRampSteps:        1,
			ReverseRampSteps:        1,
			ReverseSpeed:            1000,
			ReverseDuration:         1,
			GeneratorGlueDelay:      1,
			PumpGeneratorDelay:      1,
			SprayWidth:              5,
			SprayHeight:             10,
			FanSpeed:                50,
			ReachStartThreshold:     1,
			ReachEndThreshold:       1,
			SpeedCoefficient:        80,
			AccelerationCoefficient: 10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GLUECELL_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GLUECELL_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("GLUECELL_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GLUECELL_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GLUECELL_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("GLUECELL_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("GLUECELL_ROBOT_DRIVER"); v != "" {
		cfg.Robot.Driver = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Cell.ID == "" {
		errs = append(errs, "cell.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Robot.Driver == "" {
		errs = append(errs, "robot.driver is required")
	}
	if c.Robot.Velocity <= 0 {
		errs = append(errs, "robot.velocity must be positive")
	}

	if c.Glue.StepDelayMs <= 0 {
		errs = append(errs, "glue.step_delay_ms must be positive")
	}
	if c.Glue.MinPumpSpeed < 0 {
		errs = append(errs, "glue.min_pump_speed must not be negative")
	}
	if c.Glue.MaxPumpSpeed > 0 && c.Glue.MaxPumpSpeed < c.Glue.MinPumpSpeed {
		errs = append(errs, "glue.max_pump_speed must be >= glue.min_pump_speed")
	}
	if c.Glue.FanSpeed < 0 || c.Glue.FanSpeed > 100 {
		errs = append(errs, "glue.fan_speed must be between 0 and 100")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// StepDelay returns the state machine inter-step delay as a Duration.
func (c *Config) StepDelay() time.Duration {
	return time.Duration(c.Glue.StepDelayMs) * time.Millisecond
}

// MoveTimeout returns the blocking-move timeout as a Duration.
func (c *Config) MoveTimeout() time.Duration {
	return time.Duration(c.Robot.MoveTimeout) * time.Second
}

// CycleTime returns the position-poll interval as a Duration.
func (c *Config) CycleTime() time.Duration {
	return time.Duration(c.Robot.CycleTime) * time.Millisecond
}
