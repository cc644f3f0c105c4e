package livefeed

// State is the lifecycle state of the live feed for the selected hive.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is the display form of a State.
type Status string

const (
	StatusLive    Status = "Live"
	StatusError   Status = "Error"
	StatusOffline Status = "Offline"
)

// StatusOf maps a connection state to its display status.
func StatusOf(s State) Status {
	switch s {
	case StateConnected:
		return StatusLive
	case StateError:
		return StatusError
	default:
		return StatusOffline
	}
}
