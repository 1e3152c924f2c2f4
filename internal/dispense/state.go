package dispense

// State is the closed enumeration of dispensing process states.
type State string

// Process states. INITIALIZING and IDLE are entry states; ERROR and
// COMPLETED are terminal for a given run (COMPLETED returns the machine
// to IDLE for the next run).
const (
	StateInitializing     State = "INITIALIZING"
	StateIdle             State = "IDLE"
	StateStarting         State = "STARTING"
	StateMovingToFirst    State = "MOVING_TO_FIRST_POINT"
	StateExecutingPath    State = "EXECUTING_PATH"
	StatePumpInitialBoost State = "PUMP_INITIAL_BOOST"
	StateStartingPumpLoop State = "STARTING_PUMP_ADJUSTMENT_THREAD"
	StateSendingPoints    State = "SENDING_PATH_POINTS"
	StateWaitCompletion   State = "WAIT_FOR_PATH_COMPLETION"
	StatePathTransition   State = "TRANSITION_BETWEEN_PATHS"
	StatePaused           State = "PAUSED"
	StateStopped          State = "STOPPED"
	StateError            State = "ERROR"
	StateCompleted        State = "COMPLETED"
)

// pausableStates are the states from which Pause is accepted. Terminal
// and rest states cannot be paused.
var pausableStates = map[State]struct{}{
	StateStarting:         {},
	StateMovingToFirst:    {},
	StateExecutingPath:    {},
	StatePumpInitialBoost: {},
	StateStartingPumpLoop: {},
	StateSendingPoints:    {},
	StateWaitCompletion:   {},
	StatePathTransition:   {},
}

// Pausable reports whether Pause is legal from the given state.
func Pausable(s State) bool {
	_, ok := pausableStates[s]
	return ok
}

// TransitionRules returns the legal-transition table.
//
// Beyond the nominal run sequence, every active state may transition to
// PAUSED (operator pause), STOPPED (operator stop), and ERROR (handler
// fault). PAUSED self-loops until an external resume restores the state
// it interrupted, which is why every mid-run state appears in PAUSED's
// target set. ERROR recovers to IDLE so the cell can accept a new run
// after the fault is acknowledged.
func TransitionRules() map[State][]State {
	return map[State][]State{
		StateInitializing: {StateIdle},
		StateIdle:         {StateIdle, StateStarting},
		StateStarting: {
			StateStarting, // empty-path skip advances the cursor in place
			StateMovingToFirst,
			StateCompleted,
			StatePaused,
			StateStopped,
			StateError,
		},
		StateMovingToFirst: {
			StateExecutingPath,
			StatePaused,
			StateStopped,
			StateError,
		},
		StateExecutingPath: {
			StatePumpInitialBoost,
			StatePaused,
			StateStopped,
			StateError,
		},
		StatePumpInitialBoost: {
			StateStartingPumpLoop,
			StatePaused,
			StateStopped,
			StateError,
		},
		StateStartingPumpLoop: {
			StateSendingPoints,
			StatePaused,
			StateStopped,
			StateError,
		},
		StateSendingPoints: {
			StateWaitCompletion,
			StatePaused,
			StateStopped,
			StateError,
		},
		StateWaitCompletion: {
			StatePathTransition,
			StatePaused,
			StateStopped,
			StateError,
		},
		StatePathTransition: {
			StateStarting,
			StateCompleted,
			StatePaused,
			StateStopped,
			StateError,
		},
		StatePaused: {
			StatePaused, // self-loop while awaiting resume/stop
			StateStarting,
			StateMovingToFirst,
			StateExecutingPath,
			StatePumpInitialBoost,
			StateStartingPumpLoop,
			StateSendingPoints,
			StateWaitCompletion,
			StatePathTransition,
			StateStopped,
			StateError,
		},
		StateStopped:   {StateCompleted},
		StateCompleted: {StateIdle},
		StateError:     {StateError, StateIdle},
	}
}
