// Package transport owns the websocket under the STOMP client.
//
// A WebsocketConnector runs at most one connection attempt at a time. Each
// attempt dials, reads text messages until the socket fails or closes, and
// reports what happened as Events on a single channel:
//
//	EventOpen               socket is up, ready for CONNECT
//	EventFrame (repeated)   one websocket message, undecoded
//	EventError              dial or read failure (always followed by EventClose)
//	EventClose              attempt is over; Open may be called again
//
// Events of one attempt are delivered in order from one goroutine.
// Send never blocks on reads and fails with ErrNotConnected when no socket
// is open.
//
// # Keep-Alive
//
// Liveness is monitored with websocket pings and an idle timeout that fires
// when no message (heartbeats included) arrived for too long. Either failure
// closes the socket, which ends the attempt like any other close.
package transport
