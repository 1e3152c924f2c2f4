package dispense

import "errors"

// Sentinel errors for the execution engine.
var (
	// ErrNoPaths indicates Start was called without any spray paths.
	ErrNoPaths = errors.New("dispense: no paths provided")

	// ErrAlreadyRunning indicates Start was called while a run is active.
	ErrAlreadyRunning = errors.New("dispense: operation already running")

	// ErrNotRunning indicates Pause/Stop was called with no active run.
	ErrNotRunning = errors.New("dispense: no active run")

	// ErrNotPaused indicates Resume was called while not paused.
	ErrNotPaused = errors.New("dispense: not paused")

	// ErrNotPausable indicates Pause was requested from a state that
	// cannot be paused (ERROR, COMPLETED, IDLE).
	ErrNotPausable = errors.New("dispense: state is not pausable")

	// ErrPumpNotReady indicates the pump adjustment goroutine never
	// signalled readiness within the bounded wait.
	ErrPumpNotReady = errors.New("dispense: pump adjustment loop not ready")

	// ErrMoveFailed indicates a robot move failed after the single
	// permitted retry.
	ErrMoveFailed = errors.New("dispense: move failed after retry")

	// ErrContextInvalid indicates the run context was discarded (stop
	// between pause and resume); resume degenerates to a fresh start.
	ErrContextInvalid = errors.New("dispense: run context invalidated")
)
