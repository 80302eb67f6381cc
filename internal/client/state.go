package client

// State is the lifecycle state of a Manager's transport.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
	StateErrored
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Status is the badge shown to the user.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnected
	StatusError
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot is the observable state of a Manager at one point in time.
type Snapshot struct {
	Address   string
	State     State
	LastError string
}

// Connected reports whether the transport is open.
func (s Snapshot) Connected() bool {
	return s.State == StateOpen
}

// Status derives the badge. A recorded error wins over the connection flag.
func (s Snapshot) Status() Status {
	switch {
	case s.LastError != "":
		return StatusError
	case s.Connected():
		return StatusConnected
	default:
		return StatusDisconnected
	}
}
