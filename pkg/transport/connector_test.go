package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer echoes text messages. A message "bye" makes it close with 4000.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		for {
			typ, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			if string(data) == "bye" {
				conn.Close(websocket.StatusCode(4000), "server says bye")
				return
			}
			if err := conn.Write(r.Context(), typ, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func nextEvent(t *testing.T, c *WebsocketConnector) Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no event")
		return Event{}
	}
}

func TestNewWebsocketConnectorRequiresURL(t *testing.T) {
	_, err := NewWebsocketConnector(Config{})
	assert.ErrorIs(t, err, ErrNoURL)
}

func TestConnectorEcho(t *testing.T) {
	srv := echoServer(t)
	c, err := NewWebsocketConnector(Config{URL: wsURL(srv)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.ErrorIs(t, c.Send([]byte("early")), ErrNotConnected)

	c.Open(ctx)
	c.Open(ctx) // no-op while active

	ev := nextEvent(t, c)
	require.Equal(t, EventOpen, ev.Type)
	assert.NotEmpty(t, ev.ConnectionID)
	assert.Equal(t, ev.ConnectionID, c.ConnectionID())
	assert.True(t, c.IsOpen())

	require.NoError(t, c.Send([]byte("CONNECT\n\n\x00")))
	ev = nextEvent(t, c)
	require.Equal(t, EventFrame, ev.Type)
	assert.Equal(t, "CONNECT\n\n\x00", string(ev.Data))

	require.NoError(t, c.Close())
	ev = nextEvent(t, c)
	require.Equal(t, EventClose, ev.Type, "got %v", ev)
	assert.Equal(t, int(websocket.StatusNormalClosure), ev.Code)
	assert.False(t, c.IsOpen())
	assert.ErrorIs(t, c.Send([]byte("late")), ErrNotConnected)
}

func TestConnectorServerClose(t *testing.T) {
	srv := echoServer(t)
	c, err := NewWebsocketConnector(Config{URL: wsURL(srv)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Open(ctx)
	require.Equal(t, EventOpen, nextEvent(t, c).Type)

	require.NoError(t, c.Send([]byte("bye")))

	ev := nextEvent(t, c)
	require.Equal(t, EventError, ev.Type)
	assert.Error(t, ev.Err)

	ev = nextEvent(t, c)
	require.Equal(t, EventClose, ev.Type)
	assert.Equal(t, 4000, ev.Code)
	assert.Equal(t, "server says bye", ev.Reason)

	// A new attempt is allowed once the previous one ended.
	first := ev.ConnectionID
	c.Open(ctx)
	ev = nextEvent(t, c)
	require.Equal(t, EventOpen, ev.Type)
	assert.NotEqual(t, first, ev.ConnectionID)
}

func TestConnectorDialFailure(t *testing.T) {
	srv := echoServer(t)
	url := wsURL(srv)
	srv.Close()

	c, err := NewWebsocketConnector(Config{URL: url, DialTimeout: time.Second})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Open(ctx)

	ev := nextEvent(t, c)
	require.Equal(t, EventError, ev.Type)
	assert.Contains(t, ev.Err.Error(), "dial")

	ev = nextEvent(t, c)
	require.Equal(t, EventClose, ev.Type)
	assert.Equal(t, StatusAbnormalClosure, ev.Code)
}

func TestConnectorIdleTimeout(t *testing.T) {
	srv := echoServer(t)
	c, err := NewWebsocketConnector(Config{
		URL:       wsURL(srv),
		KeepAlive: KeepAliveConfig{IdleTimeout: 50 * time.Millisecond},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Open(ctx)
	require.Equal(t, EventOpen, nextEvent(t, c).Type)

	ev := nextEvent(t, c)
	require.Equal(t, EventClose, ev.Type, "got %v", ev)
	assert.Equal(t, int(websocket.StatusGoingAway), ev.Code)
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "OPEN", Event{Type: EventOpen}.String())
	assert.Equal(t, "FRAME(3 bytes)", Event{Type: EventFrame, Data: []byte("abc")}.String())
	assert.Equal(t, "CLOSE(1000 bye)", Event{Type: EventClose, Code: 1000, Reason: "bye"}.String())
	assert.Equal(t, "UNKNOWN", EventType(42).String())
}
