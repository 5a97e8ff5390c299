// Package stomp implements the STOMP text frame format used over websockets.
//
// A frame is a command line, zero or more "key:value" header lines, a blank
// line, an optional body and a terminating NUL byte:
//
//	SUBSCRIBE
//	destination:/events
//	id:sub-0
//	ack:auto
//
//	^@
//
// # Heartbeats
//
// A websocket message that is empty or contains only whitespace (usually a
// single newline) is a heartbeat. Decode reports it as a Frame with
// IsHeartbeat set and never as an error.
//
// # Header Escaping
//
// Header keys and values are escaped as in STOMP 1.2 (\\, \n, \r, \c) on
// every frame except CONNECT and CONNECTED, which are sent before the
// protocol version is negotiated.
package stomp
