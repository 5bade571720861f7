package chat

// State is the connection lifecycle state. A Client holds exactly one State
// at any time, owned exclusively by the state machine.
type State int

const (
	// Idle means no transport exists and no connect is scheduled.
	Idle State = iota
	// Connecting means a transport is being dialed or awaiting its WelcomeEvent.
	Connecting
	// Connected means the handshake completed and the connection is usable.
	Connected
	// Closing means Close was requested and the transport close is pending.
	Closing
	// Closed is the terminal state of a close cycle.
	Closed
	// Reconnecting means a reconnect attempt is scheduled after a backoff delay.
	Reconnecting
	// Refreshing means Boot was requested while Closing; the connect resumes
	// once the close completes.
	Refreshing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	case Reconnecting:
		return "Reconnecting"
	case Refreshing:
		return "Refreshing"
	default:
		return "Unknown"
	}
}
