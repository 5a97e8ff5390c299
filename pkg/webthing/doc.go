// Package webthing is a client for the realtime subscription endpoint of a
// Webthing server.
//
// A Client keeps one STOMP-over-websocket session to
// wss://<fqdn>/websocket-stomp alive for its whole lifetime. Topics are
// subscribed once per session no matter how many callbacks share them, and
// are re-subscribed automatically after every reconnect.
//
//	c, err := webthing.New("webthing.example.com", webthing.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	h := c.SubscribeToProperty("https://example.com/sensor/temp", func(o webthing.Observation) {
//	    fmt.Println(o.Timestamp, string(o.Value))
//	})
//	defer h.Unsubscribe()
//
// Callbacks run on the client's single event goroutine, in registration
// order. They must not block; a panicking callback is recovered and logged
// without affecting the others.
package webthing
