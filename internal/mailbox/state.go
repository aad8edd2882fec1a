package mailbox

// State is the connection lifecycle state owned by the Supervisor. No other
// component mutates it.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateMailboxOpen
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateMailboxOpen:
		return "mailbox-open"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}
