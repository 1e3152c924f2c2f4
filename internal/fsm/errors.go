package fsm

import "errors"

// Sentinel errors for state machine operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, fsm.ErrInvalidTransition) {
//	    // Programming error: transition not in the legal set
//	}
var (
	// ErrInvalidTransition indicates a transition that is not in the legal
	// set for the current state. This is a programming error, not a runtime
	// condition, and must never be swallowed.
	ErrInvalidTransition = errors.New("fsm: invalid transition")

	// ErrUnknownState indicates a state with no definition and no
	// transition rules.
	ErrUnknownState = errors.New("fsm: unknown state")

	// ErrMissingHandler indicates a non-terminal state was configured
	// without a handler.
	ErrMissingHandler = errors.New("fsm: missing handler for non-terminal state")

	// ErrMissingInitial indicates Config.Initial was left empty.
	ErrMissingInitial = errors.New("fsm: initial state is required")

	// ErrAlreadyRunning indicates Run was called while a previous Run loop
	// is still active.
	ErrAlreadyRunning = errors.New("fsm: machine is already running")
)
