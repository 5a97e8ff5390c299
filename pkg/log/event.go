package log

import (
	"time"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the websocket connection attempt (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// URL is the websocket endpoint of the connection.
	URL string `cbor:"6,keyasint,omitempty"`

	// Topic is the STOMP destination the event relates to, if any.
	Topic string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // STOMP layer (decoded)
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Connection state
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"` // Heartbeat/open/close
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the websocket layer (raw text frames).
	LayerTransport Layer = 0
	// LayerStomp is the STOMP frame layer (decoded frames).
	LayerStomp Layer = 1
	// LayerClient is the subscription and dispatch layer.
	LayerClient Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerStomp:
		return "STOMP"
	case LayerClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a STOMP frame carrying a command.
	CategoryMessage Category = 0
	// CategoryControl indicates a control event (heartbeat/open/close).
	CategoryControl Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded STOMP frame.
type MessageEvent struct {
	// Command is the STOMP command (CONNECT, SUBSCRIBE, MESSAGE, ...).
	Command string `cbor:"1,keyasint"`

	// Destination is the destination header, if present.
	Destination string `cbor:"2,keyasint,omitempty"`

	// SubscriptionID is the id (SUBSCRIBE/UNSUBSCRIBE) or subscription (MESSAGE) header.
	SubscriptionID string `cbor:"3,keyasint,omitempty"`

	// Headers holds the remaining headers in wire order.
	Headers map[string]string `cbor:"4,keyasint,omitempty"`

	// BodySize is the body length in bytes.
	BodySize int `cbor:"5,keyasint,omitempty"`
}

// StateChangeEvent captures connection lifecycle events.
type StateChangeEvent struct {
	// OldState is the previous state (may be empty).
	OldState string `cbor:"1,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"2,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"3,keyasint,omitempty"`

	// RetryDelay is the delay before the next connection attempt, when scheduled.
	RetryDelay *time.Duration `cbor:"4,keyasint,omitempty"`
}

// ControlMsgEvent captures transport-level control events.
type ControlMsgEvent struct {
	// Type of control event.
	Type ControlMsgType `cbor:"1,keyasint"`

	// CloseCode is the websocket close status for close events.
	CloseCode *int `cbor:"2,keyasint,omitempty"`

	// Reason is the close reason text.
	Reason string `cbor:"3,keyasint,omitempty"`
}

// ControlMsgType indicates the type of control event.
type ControlMsgType uint8

const (
	// ControlMsgHeartbeat indicates an empty heartbeat frame.
	ControlMsgHeartbeat ControlMsgType = 0
	// ControlMsgOpen indicates the websocket opened.
	ControlMsgOpen ControlMsgType = 1
	// ControlMsgClose indicates the websocket closed.
	ControlMsgClose ControlMsgType = 2
)

// String returns the control message type name.
func (c ControlMsgType) String() string {
	switch c {
	case ControlMsgHeartbeat:
		return "HEARTBEAT"
	case ControlMsgOpen:
		return "OPEN"
	case ControlMsgClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
