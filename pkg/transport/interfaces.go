package transport

import "context"

// Connector is the transport seen by the reconnection supervisor.
// Implemented by WebsocketConnector.
type Connector interface {
	// Open starts a connection attempt. It is a no-op while one is active.
	Open(ctx context.Context)

	// Send writes one message on the open socket.
	Send(data []byte) error

	// Close closes the open socket, if any. The attempt then ends with
	// EventClose.
	Close() error

	// Events delivers lifecycle events for all attempts.
	Events() <-chan Event
}

// Compile-time interface satisfaction checks.
var _ Connector = (*WebsocketConnector)(nil)
