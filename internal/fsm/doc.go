// Package fsm provides a generic executable state machine.
//
// A Machine is parameterised over a state type S (a string enum) and a
// context type C carried into every handler. States are bound to handler
// functions once at construction; the transition table is immutable after
// New returns.
//
// # Execution Model
//
// One goroutine drives the machine via Run: it fetches the current state's
// handler, invokes it with the shared context, applies the returned next
// state through Transition, sleeps the step delay, and repeats. Handler
// errors are converted into a transition to the configured fault state so
// a failing handler can never leave the machine inconsistent.
//
// Stop is cooperative and callable from any goroutine: the in-flight step
// completes before the loop observes the stop flag and exits.
//
// # Transitions
//
// Transition enforces the legal-set check from the transition table. An
// illegal transition is a programming error and fails loudly with
// ErrInvalidTransition rather than silently no-opping. On success the
// on-exit hook of the old state runs, the state changes, the on-enter hook
// of the new state runs, and a state-change event is published to the
// configured topic. Publish failures are logged and never affect machine
// correctness.
//
// # Usage
//
//	machine, err := fsm.New(fsm.Config[MyState, *MyContext]{
//	    Initial: StateIdle,
//	    Fault:   StateError,
//	    Rules:   transitionRules(),
//	    Defs:    stateDefs(),
//	    Context: execCtx,
//	})
//	if err != nil {
//	    return err
//	}
//	go machine.Run(ctx, 200*time.Millisecond)
package fsm
