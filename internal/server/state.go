package server

// ConnState is the lifecycle state of a single pairing connection.
//
// The progression is Connecting -> Authenticating -> Authenticated ->
// Closed. There is no path from Authenticated back to Authenticating;
// re-pairing requires a fresh connection.
type ConnState int

const (
	// StateConnecting is the state at transport accept, before any
	// message has arrived.
	StateConnecting ConnState = iota

	// StateAuthenticating means at least one message has arrived but the
	// connection has not yet presented a valid token.
	StateAuthenticating

	// StateAuthenticated means the connection redeemed a valid token.
	// Authenticated connections receive snapshot broadcasts.
	StateAuthenticated

	// StateClosed is terminal. No event leaves this state.
	StateClosed
)

// String returns the state name for logging.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnEvent is an input to the connection state machine.
type ConnEvent int

const (
	// EventFirstMessage fires when the first inbound message arrives.
	EventFirstMessage ConnEvent = iota

	// EventAuthAccepted fires when a token is validated and consumed.
	EventAuthAccepted

	// EventAuthRejected fires when an auth attempt fails.
	EventAuthRejected

	// EventClose fires on disconnect, transport error, or server stop.
	EventClose
)

// String returns the event name for logging.
func (e ConnEvent) String() string {
	switch e {
	case EventFirstMessage:
		return "first_message"
	case EventAuthAccepted:
		return "auth_accepted"
	case EventAuthRejected:
		return "auth_rejected"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// Transition applies an event to a connection state and returns the next
// state plus whether the event was valid. Invalid events leave the state
// unchanged; callers ignore the message that produced them rather than
// closing the connection.
//
// This is a pure function so the full transition table is testable
// without sockets.
func Transition(state ConnState, event ConnEvent) (ConnState, bool) {
	if state == StateClosed {
		// Terminal: even a redundant close is not a valid transition.
		return StateClosed, false
	}

	switch event {
	case EventFirstMessage:
		if state == StateConnecting {
			return StateAuthenticating, true
		}
	case EventAuthAccepted:
		if state == StateAuthenticating {
			return StateAuthenticated, true
		}
	case EventAuthRejected:
		if state == StateAuthenticating {
			return StateClosed, true
		}
	case EventClose:
		return StateClosed, true
	}

	return state, false
}
