// Package dispense implements the glue-dispensing execution engine.
//
// The engine is a state machine (built on internal/fsm) that sequences
// robot motion, the adhesive pump, the heat/air generator, and the fan
// across a set of 2-D spray paths. It supports pause, resume (including
// mid-path resumption), stop, and fault recovery, and guarantees
// actuator shutdown on every exit path.
//
// # Structure
//
//   - State / TransitionRules: the closed state enumeration and its
//     legal-transition table.
//   - ExecutionContext: a single run's mutable state (paths, cursor
//     indices, resolved settings, flags, pump goroutine handle).
//   - PumpController: idempotent pump on/off tracking above the spray
//     service.
//   - pump adjustment goroutine: concurrently recomputes pump speed from
//     robot velocity while a path is being sprayed.
//   - Operation: the application-facing surface. Start seeds the context
//     and drives the machine loop; Pause/Resume/Stop mutate machine state
//     from outside the loop.
//
// # Concurrency
//
// One goroutine drives the stepping loop; one pump-adjustment goroutine
// runs only between PUMP_INITIAL_BOOST and TRANSITION_BETWEEN_PATHS.
// Cursor indices are written exclusively by the stepping goroutine (the
// Operation applies handler deltas); the pump goroutine works from a
// read-only snapshot taken at spawn and owns only its progress counter,
// exposed through the pumpRun handle. The goroutine is always joined
// before its handle is cleared from the context.
package dispense
