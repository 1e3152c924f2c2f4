package spray

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glueworks/glue-cell-core/internal/infrastructure/mqtt"
)

type mockPublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
	failWith error
}

type publishedMessage struct {
	topic   string
	payload []byte
	qos     byte
}

func (p *mockPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.messages = append(p.messages, publishedMessage{topic: topic, payload: payload, qos: qos})
	return nil
}

func (p *mockPublisher) last(t *testing.T) publishedMessage {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.messages) == 0 {
		t.Fatal("no messages published")
	}
	return p.messages[len(p.messages)-1]
}

func decodeCommand(t *testing.T, payload []byte) map[string]interface{} {
	t.Helper()
	var cmd map[string]interface{}
	if err := json.Unmarshal(payload, &cmd); err != nil {
		t.Fatalf("payload unmarshal error = %v", err)
	}
	return cmd
}

func TestBridge_PumpOn(t *testing.T) {
	pub := &mockPublisher{}
	bridge := NewBridge(pub, 1, nil)

	err := bridge.PumpOn(context.Background(), PumpSettings{Speed: 10000, RampSteps: 1})
	if err != nil {
		t.Fatalf("PumpOn() error = %v", err)
	}

	msg := pub.last(t)
	if msg.topic != "gluecell/command/spray/pump" {
		t.Errorf("topic = %q, want gluecell/command/spray/pump", msg.topic)
	}

	cmd := decodeCommand(t, msg.payload)
	if cmd["action"] != "on" {
		t.Errorf("action = %v, want on", cmd["action"])
	}
	if cmd["speed"] != 10000.0 {
		t.Errorf("speed = %v, want 10000", cmd["speed"])
	}
}

func TestBridge_PumpOff(t *testing.T) {
	pub := &mockPublisher{}
	bridge := NewBridge(pub, 1, nil)

	reverse := ReverseSettings{Speed: 3000, Duration: 500 * time.Millisecond, RampSteps: 2}
	if err := bridge.PumpOff(context.Background(), reverse); err != nil {
		t.Fatalf("PumpOff() error = %v", err)
	}

	cmd := decodeCommand(t, pub.last(t).payload)
	if cmd["action"] != "off" {
		t.Errorf("action = %v, want off", cmd["action"])
	}
	if cmd["reverse_speed"] != 3000.0 {
		t.Errorf("reverse_speed = %v, want 3000", cmd["reverse_speed"])
	}
	if cmd["reverse_ms"] != 500.0 {
		t.Errorf("reverse_ms = %v, want 500", cmd["reverse_ms"])
	}
	if cmd["ramp_steps"] != 2.0 {
		t.Errorf("ramp_steps = %v, want 2", cmd["ramp_steps"])
	}
}

func TestBridge_PumpOffNoReverse(t *testing.T) {
	pub := &mockPublisher{}
	bridge := NewBridge(pub, 1, nil)

	if err := bridge.PumpOff(context.Background(), ReverseSettings{}); err != nil {
		t.Fatalf("PumpOff() error = %v", err)
	}

	cmd := decodeCommand(t, pub.last(t).payload)
	if cmd["action"] != "off" {
		t.Errorf("action = %v, want off", cmd["action"])
	}
	if _, present := cmd["reverse_speed"]; present {
		t.Errorf("reverse_speed present in payload without suck-back: %v", cmd)
	}
}

func TestBridge_SetPumpSpeed(t *testing.T) {
	pub := &mockPublisher{}
	bridge := NewBridge(pub, 1, nil)

	if err := bridge.SetPumpSpeed(context.Background(), 8500); err != nil {
		t.Fatalf("SetPumpSpeed() error = %v", err)
	}

	cmd := decodeCommand(t, pub.last(t).payload)
	if cmd["action"] != "speed" || cmd["speed"] != 8500.0 {
		t.Errorf("command = %v, want action=speed speed=8500", cmd)
	}
}

func TestBridge_GeneratorTopics(t *testing.T) {
	pub := &mockPublisher{}
	bridge := NewBridge(pub, 1, nil)

	if err := bridge.GeneratorOn(context.Background()); err != nil {
		t.Fatalf("GeneratorOn() error = %v", err)
	}
	if got := pub.last(t).topic; got != "gluecell/command/spray/generator" {
		t.Errorf("topic = %q, want gluecell/command/spray/generator", got)
	}

	if err := bridge.GeneratorOff(context.Background()); err != nil {
		t.Fatalf("GeneratorOff() error = %v", err)
	}
	cmd := decodeCommand(t, pub.last(t).payload)
	if cmd["action"] != "off" {
		t.Errorf("action = %v, want off", cmd["action"])
	}
}

func TestBridge_FanSpeedValidation(t *testing.T) {
	pub := &mockPublisher{}
	bridge := NewBridge(pub, 1, nil)

	if err := bridge.FanOn(context.Background(), 150); !errors.Is(err, ErrInvalidSpeed) {
		t.Errorf("FanOn(150) error = %v, want ErrInvalidSpeed", err)
	}
	if err := bridge.FanOn(context.Background(), -1); !errors.Is(err, ErrInvalidSpeed) {
		t.Errorf("FanOn(-1) error = %v, want ErrInvalidSpeed", err)
	}

	if err := bridge.FanOn(context.Background(), 50); err != nil {
		t.Fatalf("FanOn(50) error = %v", err)
	}
	if got := pub.last(t).topic; got != "gluecell/command/spray/fan" {
		t.Errorf("topic = %q, want gluecell/command/spray/fan", got)
	}
}

func TestBridge_NegativePumpSpeed(t *testing.T) {
	bridge := NewBridge(&mockPublisher{}, 1, nil)

	err := bridge.SetPumpSpeed(context.Background(), -100)
	if !errors.Is(err, ErrInvalidSpeed) {
		t.Errorf("SetPumpSpeed(-100) error = %v, want ErrInvalidSpeed", err)
	}
}

func TestBridge_PublishFailure(t *testing.T) {
	pub := &mockPublisher{failWith: errors.New("broker down")}
	bridge := NewBridge(pub, 1, nil)

	err := bridge.PumpOff(context.Background(), ReverseSettings{})
	if !errors.Is(err, ErrCommandFailed) {
		t.Errorf("PumpOff() error = %v, want ErrCommandFailed", err)
	}
}

func TestBridge_CancelledContext(t *testing.T) {
	bridge := NewBridge(&mockPublisher{}, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := bridge.PumpOff(ctx, ReverseSettings{}); !errors.Is(err, context.Canceled) {
		t.Errorf("PumpOff() error = %v, want context.Canceled", err)
	}
}

type mockSubscriber struct {
	handlers map[string]mqtt.MessageHandler
}

func (m *mockSubscriber) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	if m.handlers == nil {
		m.handlers = make(map[string]mqtt.MessageHandler)
	}
	m.handlers[topic] = handler
	return nil
}

func TestBridge_WatchHardware(t *testing.T) {
	bridge := NewBridge(&mockPublisher{}, 1, nil)
	sub := &mockSubscriber{}

	if err := bridge.WatchHardware(sub); err != nil {
		t.Fatalf("WatchHardware() error = %v", err)
	}

	ackHandler, ok := sub.handlers["gluecell/ack/spray/+"]
	if !ok {
		t.Fatal("no subscription for spray acks")
	}
	healthHandler, ok := sub.handlers["gluecell/health/spray"]
	if !ok {
		t.Fatal("no subscription for spray health")
	}

	if _, seen := bridge.LastAck("pump"); seen {
		t.Error("LastAck() reports an ack before any arrived")
	}

	if err := ackHandler("gluecell/ack/spray/pump", []byte(`{"action":"on","ok":true}`)); err != nil {
		t.Fatalf("ack handler error = %v", err)
	}
	if _, seen := bridge.LastAck("pump"); !seen {
		t.Error("LastAck() missing after pump ack")
	}

	if err := healthHandler("gluecell/health/spray", []byte(`{"status":"ok"}`)); err != nil {
		t.Fatalf("health handler error = %v", err)
	}
	healthy, at := bridge.HardwareHealthy()
	if !healthy || at.IsZero() {
		t.Errorf("HardwareHealthy() = %v at %v, want healthy with a report time", healthy, at)
	}

	if err := healthHandler("gluecell/health/spray", []byte(`{"status":"fault"}`)); err != nil {
		t.Fatalf("health handler error = %v", err)
	}
	if healthy, _ := bridge.HardwareHealthy(); healthy {
		t.Error("HardwareHealthy() = true after fault report")
	}

	// Malformed payloads are dropped, never propagated as handler errors.
	if err := ackHandler("gluecell/ack/spray/fan", []byte("{bad")); err != nil {
		t.Errorf("malformed ack returned error %v", err)
	}
}

func TestSim_TracksState(t *testing.T) {
	sim := NewSim()
	ctx := context.Background()

	if err := sim.PumpOn(ctx, PumpSettings{Speed: 10000}); err != nil {
		t.Fatalf("PumpOn() error = %v", err)
	}
	if !sim.PumpRunning() {
		t.Error("PumpRunning() = false after PumpOn")
	}
	if sim.PumpSpeed() != 10000 {
		t.Errorf("PumpSpeed() = %v, want 10000", sim.PumpSpeed())
	}

	reverse := ReverseSettings{Speed: 2000, Duration: 300 * time.Millisecond, RampSteps: 3}
	if err := sim.PumpOff(ctx, reverse); err != nil {
		t.Fatalf("PumpOff() error = %v", err)
	}
	if sim.PumpRunning() {
		t.Error("PumpRunning() = true after PumpOff")
	}
	if got := sim.LastReverse(); got != reverse {
		t.Errorf("LastReverse() = %+v, want %+v", got, reverse)
	}

	counts := sim.Counts()
	if counts["pump_on"] != 1 || counts["pump_off"] != 1 {
		t.Errorf("counts = %v, want one pump_on and one pump_off", counts)
	}
}

func TestSim_FailWith(t *testing.T) {
	sim := NewSim()
	sim.FailWith = errors.New("device unreachable")

	if err := sim.GeneratorOn(context.Background()); err == nil {
		t.Error("GeneratorOn() error = nil, want failure")
	}
	if sim.GeneratorRunning() {
		t.Error("GeneratorRunning() = true after failed command")
	}
}
