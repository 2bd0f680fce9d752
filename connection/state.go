package connection

import "time"

// State is the connectivity of a Connection
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// StateChange describes a transition
type StateChange struct {
	From     State
	To       State
	Attempts int
	// Err is the client's reason for a disconnect, if any
	Err       error
	Timestamp time.Time
}

// StateHook observes state transitions. It runs on the dispatcher's logical thread.
type StateHook func(StateChange)
