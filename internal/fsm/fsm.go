package fsm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Handler processes one step for a state and returns the next state.
//
// Handlers receive the machine's shared context value and may block (robot
// moves, timing delays). A returned error causes the stepping loop to
// transition the machine to the configured fault state.
type Handler[S ~string, C any] func(ctx context.Context, c C) (S, error)

// Hook is an optional on-enter/on-exit callback for a state. Hooks run
// synchronously inside Transition and should be cheap; they are intended
// for diagnostic checkpointing, not for control flow.
type Hook[S ~string, C any] func(state S, c C)

// Def binds a state to its handler and optional lifecycle hooks.
// Definitions are bound once at construction and immutable afterwards.
type Def[S ~string, C any] struct {
	Handler Handler[S, C]
	OnEnter Hook[S, C]
	OnExit  Hook[S, C]
}

// Publisher is the fire-and-forget event sink for state-change
// notifications. Satisfied by the infrastructure mqtt client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger is the minimal logging interface the machine needs.
// Satisfied by the infrastructure logging package.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is configured.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config describes a machine at construction time.
type Config[S ~string, C any] struct {
	// Initial is the state the machine starts in. Required.
	Initial S

	// Fault is the state entered when a handler returns an error.
	// A transition to Fault must be legal from every state with a handler.
	Fault S

	// Rules maps each state to its set of legal next states.
	Rules map[S][]S

	// Defs binds states to handlers and hooks. A state present in Rules
	// with outgoing transitions must have a definition; states without
	// definitions are terminal and cause Run to return when reached.
	Defs map[S]Def[S, C]

	// Context is the shared value passed to every handler invocation.
	Context C

	// Publisher receives state-change events. Optional.
	Publisher Publisher

	// Topic is the publish topic for state-change events.
	Topic string

	// Logger receives diagnostics. Optional; defaults to a no-op.
	Logger Logger
}

// stateEvent is the JSON payload published on every transition.
type stateEvent struct {
	State     string    `json:"state"`
	Previous  string    `json:"previous"`
	Timestamp time.Time `json:"timestamp"`
}

// Machine is a generic stepping state machine.
//
// Thread Safety:
//   - State, CanTransition, Transition, and Stop are safe to call from any
//     goroutine.
//   - Run must be driven by exactly one goroutine at a time.
type Machine[S ~string, C any] struct {
	mu    sync.RWMutex
	state S

	rules map[S]map[S]struct{}
	defs  map[S]Def[S, C]
	fault S
	c     C

	publisher Publisher
	topic     string
	logger    Logger

	stopped atomic.Bool
	running atomic.Bool
}

// New constructs a Machine from the given configuration.
//
// It validates that:
//   - Initial is non-empty and known to the transition table
//   - every transition target with outgoing rules has a definition
//   - every defined state's handler is non-nil
//
// Returns:
//   - *Machine: Ready to Run
//   - error: Describing the first validation failure
func New[S ~string, C any](cfg Config[S, C]) (*Machine[S, C], error) {
	if cfg.Initial == "" {
		return nil, ErrMissingInitial
	}

	rules := make(map[S]map[S]struct{}, len(cfg.Rules))
	for from, targets := range cfg.Rules {
		set := make(map[S]struct{}, len(targets))
		for _, to := range targets {
			set[to] = struct{}{}
		}
		rules[from] = set
	}

	if _, ok := rules[cfg.Initial]; !ok {
		if _, ok := cfg.Defs[cfg.Initial]; !ok {
			return nil, fmt.Errorf("%w: initial state %q", ErrUnknownState, cfg.Initial)
		}
	}

	for state, def := range cfg.Defs {
		if def.Handler == nil {
			return nil, fmt.Errorf("%w: state %q has nil handler", ErrMissingHandler, state)
		}
	}

	// Every rule target that itself has outgoing rules needs a handler;
	// targets without rules are terminal and legal to leave undefined.
	for from, targets := range cfg.Rules {
		for _, to := range targets {
			if _, defined := cfg.Defs[to]; defined {
				continue
			}
			if outgoing, ok := rules[to]; ok && len(outgoing) > 0 {
				return nil, fmt.Errorf("%w: state %q (reachable from %q)", ErrMissingHandler, to, from)
			}
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Machine[S, C]{
		state:     cfg.Initial,
		rules:     rules,
		defs:      cfg.Defs,
		fault:     cfg.Fault,
		c:         cfg.Context,
		publisher: cfg.Publisher,
		topic:     cfg.Topic,
		logger:    logger,
	}, nil
}

// State returns the current state.
func (m *Machine[S, C]) State() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// CanTransition reports whether a transition to the given state is legal
// from the current state.
func (m *Machine[S, C]) CanTransition(to S) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rules[m.state][to]
	return ok
}

// Transition moves the machine to the given state.
//
// The transition must be in the legal set for the current state; an
// illegal transition returns ErrInvalidTransition and leaves the machine
// unchanged. On success the old state's on-exit hook runs, the state
// changes, the new state's on-enter hook runs, and a state-change event
// is published (fire-and-forget).
//
// Parameters:
//   - to: Target state
//
// Returns:
//   - error: ErrInvalidTransition if the transition is not legal
func (m *Machine[S, C]) Transition(to S) error {
	m.mu.Lock()

	from := m.state
	if _, ok := m.rules[from][to]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q -> %q", ErrInvalidTransition, from, to)
	}

	if def, ok := m.defs[from]; ok && def.OnExit != nil {
		def.OnExit(from, m.c)
	}

	m.state = to

	if def, ok := m.defs[to]; ok && def.OnEnter != nil {
		def.OnEnter(to, m.c)
	}

	m.mu.Unlock()

	m.publishStateChange(from, to)
	return nil
}

// publishStateChange publishes a state-change event to the configured
// topic. Failures are logged and never propagated.
func (m *Machine[S, C]) publishStateChange(from, to S) {
	if m.publisher == nil || m.topic == "" {
		return
	}

	payload, err := json.Marshal(stateEvent{
		State:     string(to),
		Previous:  string(from),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		m.logger.Error("state event marshal failed", "error", err)
		return
	}

	if err := m.publisher.Publish(m.topic, payload, 1, false); err != nil {
		m.logger.Warn("state event publish failed",
			"topic", m.topic,
			"state", string(to),
			"error", err,
		)
	}
}

// Run drives the stepping loop until a terminal state is reached, Stop is
// called, or ctx is cancelled.
//
// Each step fetches the current state's handler, invokes it with the
// shared context, and applies the returned next state via Transition.
// A handler error is logged and converted into a transition to the fault
// state. Same-state returns are self-loops: their legality is checked but
// hooks do not re-fire and no event is published.
//
// Parameters:
//   - ctx: Cancels the loop between steps
//   - stepDelay: Sleep between steps (suspension point for pause polling)
//
// Returns:
//   - error: ctx.Err() on cancellation, ErrAlreadyRunning if re-entered,
//     or an error if the fault transition itself is illegal
func (m *Machine[S, C]) Run(ctx context.Context, stepDelay time.Duration) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer m.running.Store(false)

	m.stopped.Store(false)

	for {
		if m.stopped.Load() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		current := m.State()
		def, ok := m.defs[current]
		if !ok {
			// Terminal state: nothing left to execute.
			return nil
		}

		next, err := def.Handler(ctx, m.c)
		switch {
		case m.State() != current:
			// An external transition (pause/stop) won while the handler
			// ran; its result no longer applies.
		case err != nil:
			m.logger.Error("state handler failed",
				"state", string(current),
				"error", err,
			)
			if current != m.fault {
				if terr := m.Transition(m.fault); terr != nil {
					return fmt.Errorf("fault transition from %q: %w", current, terr)
				}
			}
		case next != current:
			if terr := m.Transition(next); terr != nil {
				return terr
			}
		case !m.CanTransition(next):
			return fmt.Errorf("%w: %q -> %q (self-loop)", ErrInvalidTransition, current, next)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(stepDelay):
		}
	}
}

// Stop requests the Run loop to exit after the in-flight step completes.
// Safe to call from any goroutine; cooperative, not preemptive.
func (m *Machine[S, C]) Stop() {
	m.stopped.Store(true)
}

// IsRunning reports whether a Run loop is currently active.
func (m *Machine[S, C]) IsRunning() bool {
	return m.running.Load()
}
