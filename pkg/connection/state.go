package connection

import "errors"

// Supervisor errors.
var (
	ErrNotConnected   = errors.New("connection: not connected")
	ErrAlreadyRunning = errors.New("connection: supervisor already running")
)

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no socket (initial state).
	StateDisconnected State = iota

	// StateConnecting indicates a socket is being opened or CONNECT was sent
	// and CONNECTED has not arrived yet.
	StateConnecting

	// StateConnected indicates an established STOMP session.
	StateConnected
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}
