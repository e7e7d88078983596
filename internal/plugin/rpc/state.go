package rpc

// State represents the lifecycle state of a Runner.
type State int32

// Runner states.
const (
	// StateIdle - Runner has not started.
	StateIdle State = iota

	// StateAwaitingCommand - Runner is waiting for the next command.
	StateAwaitingCommand

	// StateExecuting - Runner is executing a command.
	StateExecuting

	// StateStopped - Runner has stopped and released the registry.
	StateStopped
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingCommand:
		return "awaiting_command"
	case StateExecuting:
		return "executing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IsRunning returns true if the runner is serving commands.
func (s State) IsRunning() bool {
	return s == StateAwaitingCommand || s == StateExecuting
}
