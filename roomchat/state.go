package roomchat

// ConnectionState represents the lifecycle of the streaming session.
type ConnectionState int

const (
	// StateIdle means no session exists and none is wanted.
	StateIdle ConnectionState = iota

	// StateConnecting means a dial is in flight.
	StateConnecting

	// StateOpen means the session is established and frames flow.
	StateOpen

	// StateClosing means a deliberate disconnect is in progress.
	StateClosing

	// StateReconnecting means the session dropped and a retry is pending.
	StateReconnecting

	// StateFailed means the reconnect ceiling was reached; only an
	// explicit Connect will try again.
	StateFailed
)

// String returns the string representation of a ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
