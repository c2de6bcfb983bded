// Package supervisor manages the lifecycle of the background services a test
// run depends on: launch, readiness and teardown.
package supervisor

// State represents the current state of a managed service.
type State int

const (
	// StateCreated is the initial state before the service has been started.
	StateCreated State = iota

	// StateStarting indicates the process was spawned and readiness is pending.
	StateStarting

	// StateReady indicates readiness resolved positively (match or timeout).
	StateReady

	// StateFailed indicates the process could not be spawned or exited
	// before it became ready.
	StateFailed

	// StateStopped indicates teardown has completed for this service.
	StateStopped
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IsResolved returns true once readiness has been decided one way or the other.
func (s State) IsResolved() bool {
	return s == StateReady || s == StateFailed || s == StateStopped
}

// IsTerminal returns true if the state is a terminal state (stopped).
func (s State) IsTerminal() bool {
	return s == StateStopped
}
