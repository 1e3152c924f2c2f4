// Glue Cell Core - Adhesive Dispensing Cell Controller
//
// This is the main entry point for the Glue Cell Core application.
// It drives one robot cell: a 2-axis motion platform, an adhesive pump,
// a hot-air generator and a spray fan, coordinated by a stepping state
// machine. Operator consoles command the cell over MQTT; telemetry
// flows to InfluxDB and recovery snapshots to SQLite.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/glueworks/glue-cell-core/migrations"

	"github.com/glueworks/glue-cell-core/internal/dispense"
	"github.com/glueworks/glue-cell-core/internal/glue"
	"github.com/glueworks/glue-cell-core/internal/infrastructure/config"
	"github.com/glueworks/glue-cell-core/internal/infrastructure/database"
	"github.com/glueworks/glue-cell-core/internal/infrastructure/influxdb"
	"github.com/glueworks/glue-cell-core/internal/infrastructure/logging"
	"github.com/glueworks/glue-cell-core/internal/infrastructure/mqtt"
	"github.com/glueworks/glue-cell-core/internal/robot"
	"github.com/glueworks/glue-cell-core/internal/spray"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Glue Cell Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "cell", cfg.Cell.ID)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Select robot-motion driver
	robotSvc, err := buildRobotService(cfg)
	if err != nil {
		return fmt.Errorf("starting robot driver: %w", err)
	}
	log.Info("robot driver started", "driver", cfg.Robot.Driver)

	// Spray hardware bridge: pump/generator/fan commands over MQTT
	sprayBridge := spray.NewBridge(mqttClient, byte(cfg.MQTT.QoS), log)
	if err := sprayBridge.WatchHardware(mqttClient); err != nil {
		log.Warn("spray hardware feedback unavailable", "error", err)
	}

	// Build the execution engine
	topics := mqtt.Topics{}
	deps := dispense.Deps{
		Robot:            robotSvc,
		Spray:            sprayBridge,
		Resolver:         glue.NewResolver(glue.DefaultsFromConfig(cfg.Glue, cfg.Robot)),
		Logger:           log,
		Checkpoints:      dispense.NewSQLiteCheckpointRepository(db),
		Publisher:        mqttClient,
		StateTopic:       topics.ProcessState(),
		ProgressTopic:    topics.ProcessProgress(),
		ResultTopic:      topics.OperationResult(),
		FaultTopic:       topics.ProcessFault(),
		EngineStateTopic: topics.OperationState(),
	}
	if influxClient != nil {
		deps.Telemetry = influxClient
		deps.Recorder = influxClient
	}

	op, err := dispense.NewOperation(deps, dispense.Config{
		UseSegmentSettings:      cfg.Glue.UseSegmentSettings,
		TurnOffPumpBetweenPaths: cfg.Glue.TurnOffPumpBetweenPaths,
		AdjustPumpWhileSpraying: cfg.Glue.AdjustPumpWhileSpraying,
		StepDelay:               cfg.StepDelay(),
		MoveTimeout:             cfg.MoveTimeout(),
	})
	if err != nil {
		return fmt.Errorf("building execution engine: %w", err)
	}
	defer func() {
		log.Info("stopping execution engine")
		op.Close()
	}()

	// Accept operator commands over MQTT
	commandTopic := topics.OperationCommand()
	if err := mqttClient.Subscribe(commandTopic, byte(cfg.MQTT.QoS), commandHandler(op, log)); err != nil {
		return fmt.Errorf("subscribing to %s: %w", commandTopic, err)
	}
	log.Info("operator commands accepted", "topic", commandTopic)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Abort any active run before the infrastructure goes away
	if op.Running() {
		res := op.Stop(context.Background())
		if !res.Success {
			log.Warn("active run did not stop cleanly", "error", res.Error)
		}
	}

	log.Info("Glue Cell Core stopped")
	return nil
}

// buildRobotService constructs the configured robot-motion backend.
// Only the sim driver ships with the core; vendor drivers plug in behind
// the same interface.
func buildRobotService(cfg *config.Config) (robot.Service, error) {
	switch cfg.Robot.Driver {
	case "sim":
		return robot.NewSim(robot.SimConfig{
			Velocity:     cfg.Robot.Velocity,
			Acceleration: cfg.Robot.Acceleration,
			CycleTime:    cfg.CycleTime(),
		}), nil
	default:
		return nil, fmt.Errorf("unknown robot driver %q", cfg.Robot.Driver)
	}
}

// operationCommand is the JSON payload the operator console publishes on
// the operation command topic.
type operationCommand struct {
	Command string      `json:"command"`
	SprayOn bool        `json:"spray_on"`
	Resume  bool        `json:"resume"`
	Paths   []glue.Path `json:"paths,omitempty"`
}

// commandHandler dispatches start/pause/resume/stop commands to the
// execution engine. Malformed payloads are logged and dropped; the
// engine publishes the outcome of accepted commands itself.
func commandHandler(op *dispense.Operation, log *logging.Logger) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		var cmd operationCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			log.Warn("malformed operation command", "error", err)
			return nil
		}

		ctx := context.Background()
		var res dispense.OperationResult

		switch cmd.Command {
		case "start":
			res = op.Start(ctx, cmd.Paths, cmd.SprayOn, cmd.Resume)
		case "pause":
			res = op.Pause(ctx)
		case "resume":
			res = op.Resume(ctx)
		case "stop":
			res = op.Stop(ctx)
		default:
			log.Warn("unknown operation command", "command", cmd.Command)
			return nil
		}

		if !res.Success {
			log.Warn("operation command rejected",
				"command", cmd.Command,
				"error", res.Error,
			)
		}
		return nil
	}
}

// getConfigPath returns the configuration file path.
// Uses GLUECELL_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GLUECELL_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
