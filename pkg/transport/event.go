package transport

import "fmt"

// EventType identifies a connector lifecycle event.
type EventType uint8

const (
	// EventOpen is emitted when the websocket handshake completed.
	EventOpen EventType = iota

	// EventFrame carries one received websocket message.
	EventFrame

	// EventError reports a dial or read failure.
	EventError

	// EventClose ends a connection attempt.
	EventClose
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventOpen:
		return "OPEN"
	case EventFrame:
		return "FRAME"
	case EventError:
		return "ERROR"
	case EventClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// Event is a connector lifecycle event.
type Event struct {
	Type EventType

	// ConnectionID identifies the attempt that produced the event.
	ConnectionID string

	// Data is the message payload (EventFrame).
	Data []byte

	// Err is the failure (EventError).
	Err error

	// Code and Reason describe the close (EventClose). Code is a websocket
	// status code; 1006 when the socket went away without a close frame.
	Code   int
	Reason string
}

func (e Event) String() string {
	switch e.Type {
	case EventFrame:
		return fmt.Sprintf("FRAME(%d bytes)", len(e.Data))
	case EventError:
		return fmt.Sprintf("ERROR(%v)", e.Err)
	case EventClose:
		return fmt.Sprintf("CLOSE(%d %s)", e.Code, e.Reason)
	default:
		return e.Type.String()
	}
}
