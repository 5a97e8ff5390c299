// Package subscription tracks which callbacks want which STOMP destinations
// and delivers message bodies to them.
//
// # Registry
//
// A Registry holds one entry per topic: the callbacks registered for it, in
// registration order, and the wire subscription id the topic currently has
// on the open connection. There is no separate backlog. A topic whose wire id
// is empty still needs a SUBSCRIBE frame on the current (or next) connection.
//
//	reg := subscription.NewRegistry()
//	h, needsWire := reg.Register("/events", func(body string) { ... })
//	...
//	reg.MarkSubscribed("/events", "sub-0") // after sending SUBSCRIBE
//	reg.ClearAllWireIDs()                  // on every disconnect
//
// Callback lists only grow unless a Handle is revoked. Revoking the last
// callback of a topic removes the topic and reports its wire id through the
// OnEmpty hook so the owner can send UNSUBSCRIBE.
//
// # Dispatcher
//
// A Dispatcher delivers a message body to every callback of a topic on the
// calling goroutine, in registration order. A panicking callback is
// recovered and reported; the remaining callbacks still run.
package subscription
