package types

// State represents the engine lifecycle state.
//
// States follow a defined progression:
//
//	StateInit → StateResyncing → StateRunning → StateStopping → StateStopped
type State int

const (
	// StateInit is the initial state before Start.
	StateInit State = iota

	// StateResyncing indicates the registry is being rebuilt from durable storage.
	StateResyncing

	// StateRunning indicates normal operation.
	StateRunning

	// StateStopping indicates graceful shutdown is in progress.
	StateStopping

	// StateStopped is terminal.
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateResyncing:
		return "Resyncing"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}
