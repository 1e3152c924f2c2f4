package spray

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/glueworks/glue-cell-core/internal/infrastructure/mqtt"
)

// Publisher is the message-bus surface the bridge needs. Satisfied by
// the infrastructure mqtt client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Subscriber is the message-bus subscription surface the bridge uses
// for hardware feedback. Satisfied by the infrastructure mqtt client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Logger is the minimal logging interface the bridge needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// command is the JSON payload published to the spray hardware bridge.
// Off commands carry the suck-back parameters the pump applies while
// winding down.
type command struct {
	Action       string  `json:"action"`
	Speed        float64 `json:"speed,omitempty"`
	RampSteps    int     `json:"ramp_steps,omitempty"`
	ReverseSpeed float64 `json:"reverse_speed,omitempty"`
	ReverseMs    int64   `json:"reverse_ms,omitempty"`
}

// Bridge drives the spray hardware over MQTT.
//
// Each call publishes a JSON command to the actuator's command topic
// (gluecell/command/spray/{pump|generator|fan}). The hardware bridge on
// the other side of the broker translates commands into device register
// writes.
type Bridge struct {
	publisher Publisher
	qos       byte
	logger    Logger

	mu       sync.Mutex
	lastAck  map[string]time.Time
	healthy  bool
	healthAt time.Time
}

// NewBridge constructs an MQTT-backed spray service.
//
// Parameters:
//   - publisher: Message bus client used to deliver commands
//   - qos: QoS level for command publishes (1 recommended)
//   - logger: Diagnostics; nil for no logging
func NewBridge(publisher Publisher, qos byte, logger Logger) *Bridge {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bridge{
		publisher: publisher,
		qos:       qos,
		logger:    logger,
		lastAck:   make(map[string]time.Time),
	}
}

// WatchHardware subscribes to the spray hardware's acknowledgement and
// health topics so command delivery and device health can be observed.
func (b *Bridge) WatchHardware(sub Subscriber) error {
	topics := mqtt.Topics{}
	if err := sub.Subscribe(topics.AllSprayAcks(), b.qos, b.onAck); err != nil {
		return fmt.Errorf("subscribing to spray acks: %w", err)
	}
	if err := sub.Subscribe(topics.SprayHealth(), b.qos, b.onHealth); err != nil {
		return fmt.Errorf("subscribing to spray health: %w", err)
	}
	return nil
}

func (b *Bridge) onAck(topic string, payload []byte) error {
	var ack struct {
		Action string `json:"action"`
		OK     bool   `json:"ok"`
	}
	if err := json.Unmarshal(payload, &ack); err != nil {
		b.logger.Warn("malformed spray ack", "topic", topic, "error", err)
		return nil
	}

	actuator := topic[strings.LastIndexByte(topic, '/')+1:]
	b.mu.Lock()
	b.lastAck[actuator] = time.Now()
	b.mu.Unlock()

	if !ack.OK {
		b.logger.Warn("spray command refused by hardware",
			"actuator", actuator,
			"action", ack.Action,
		)
		return nil
	}
	b.logger.Debug("spray command acknowledged",
		"actuator", actuator,
		"action", ack.Action,
	)
	return nil
}

func (b *Bridge) onHealth(topic string, payload []byte) error {
	var report struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(payload, &report); err != nil {
		b.logger.Warn("malformed spray health report", "error", err)
		return nil
	}

	b.mu.Lock()
	b.healthy = report.Status == "ok"
	b.healthAt = time.Now()
	b.mu.Unlock()

	if report.Status != "ok" {
		b.logger.Warn("spray hardware unhealthy", "status", report.Status)
	}
	return nil
}

// LastAck returns when the actuator last acknowledged a command, and
// whether it ever has.
func (b *Bridge) LastAck(actuator string) (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	at, ok := b.lastAck[actuator]
	return at, ok
}

// HardwareHealthy reports the most recent health status and when it
// arrived. The zero time means no report has been seen.
func (b *Bridge) HardwareHealthy() (bool, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.healthy, b.healthAt
}

// PumpOn starts the adhesive pump.
func (b *Bridge) PumpOn(ctx context.Context, settings PumpSettings) error {
	if settings.Speed < 0 {
		return fmt.Errorf("%w: pump speed %v", ErrInvalidSpeed, settings.Speed)
	}
	return b.publish(ctx, "pump", command{
		Action:    "on",
		Speed:     settings.Speed,
		RampSteps: settings.RampSteps,
	})
}

// PumpOff stops the adhesive pump with the segment's suck-back
// parameters.
func (b *Bridge) PumpOff(ctx context.Context, reverse ReverseSettings) error {
	if reverse.Speed < 0 {
		return fmt.Errorf("%w: reverse speed %v", ErrInvalidSpeed, reverse.Speed)
	}
	return b.publish(ctx, "pump", command{
		Action:       "off",
		RampSteps:    reverse.RampSteps,
		ReverseSpeed: reverse.Speed,
		ReverseMs:    reverse.Duration.Milliseconds(),
	})
}

// SetPumpSpeed adjusts the running pump's motor speed.
func (b *Bridge) SetPumpSpeed(ctx context.Context, speed float64) error {
	if speed < 0 {
		return fmt.Errorf("%w: pump speed %v", ErrInvalidSpeed, speed)
	}
	return b.publish(ctx, "pump", command{Action: "speed", Speed: speed})
}

// GeneratorOn starts the heat/air generator.
func (b *Bridge) GeneratorOn(ctx context.Context) error {
	return b.publish(ctx, "generator", command{Action: "on"})
}

// GeneratorOff stops the heat/air generator.
func (b *Bridge) GeneratorOff(ctx context.Context) error {
	return b.publish(ctx, "generator", command{Action: "off"})
}

// FanOn starts the fan at the given speed (percent).
func (b *Bridge) FanOn(ctx context.Context, speed float64) error {
	if speed < 0 || speed > 100 {
		return fmt.Errorf("%w: fan speed %v", ErrInvalidSpeed, speed)
	}
	return b.publish(ctx, "fan", command{Action: "on", Speed: speed})
}

// FanOff stops the fan.
func (b *Bridge) FanOff(ctx context.Context) error {
	return b.publish(ctx, "fan", command{Action: "off"})
}

func (b *Bridge) publish(ctx context.Context, actuator string, cmd command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("%w: marshal: %w", ErrCommandFailed, err)
	}

	topic := mqtt.Topics{}.SprayCommand(actuator)
	if err := b.publisher.Publish(topic, payload, b.qos, false); err != nil {
		b.logger.Warn("spray command publish failed",
			"actuator", actuator,
			"action", cmd.Action,
			"error", err,
		)
		return fmt.Errorf("%w: %s %s: %w", ErrCommandFailed, actuator, cmd.Action, err)
	}

	b.logger.Debug("spray command sent",
		"actuator", actuator,
		"action", cmd.Action,
		"speed", cmd.Speed,
	)
	return nil
}

var _ Service = (*Bridge)(nil)
