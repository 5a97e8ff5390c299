// Package connection keeps the STOMP session alive across websocket drops.
//
// A Supervisor owns the connection state machine and runs it on a single
// goroutine (Run). Connector events, subscribe requests, unsubscribe
// requests and retry timers are all handled by that loop, so the state, the
// wire subscription counter and dispatching never race each other.
//
//	DISCONNECTED --open--> CONNECTING --CONNECTED frame--> CONNECTED
//	      ^                    |                               |
//	      +------ close -------+------------- close -----------+
//
// On entering CONNECTED every topic without a wire id gets one SUBSCRIBE
// frame with ids sub-0, sub-1, ... counted per connection. Leaving
// CONNECTED clears every wire id so the next connection replays them.
//
// # Reconnection Strategy
//
// The first close after a CONNECTED period, and a close of the very first
// attempt, reconnect immediately: such a close is often just connection
// cleanup. Each further consecutive close waits a backoff interval
// (30 seconds by default, constant). Reaching CONNECTED resets both.
//
// # Jitter
//
// To avoid many clients reconnecting in lockstep:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
package connection
