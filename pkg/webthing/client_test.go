package webthing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webthing-client/webthing-go/internal/stomptest"
	"github.com/webthing-client/webthing-go/pkg/connection"
	"github.com/webthing-client/webthing-go/pkg/log"
	"github.com/webthing-client/webthing-go/pkg/stomp"
)

const waitFor = 3 * time.Second

type recordingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (l *recordingLogger) Log(e log.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *recordingLogger) errorsWithContext(ctx string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Error != nil && e.Error.Context == ctx {
			n++
		}
	}
	return n
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Insecure = true
	cfg.Backoff = connection.BackoffConfig{Initial: 50 * time.Millisecond, Jitter: -1}
	cfg.KeepAlive.PingInterval = 0
	return cfg
}

func newTestClient(t *testing.T, b *stomptest.Broker, cfg Config) *Client {
	t.Helper()
	c, err := New(b.Host(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitConnected(t *testing.T, c *Client) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.State() == connection.StateConnected
	}, waitFor, 5*time.Millisecond)
}

// waitFrame returns the next frame with the given command read by the broker.
func waitFrame(t *testing.T, b *stomptest.Broker, command string) stomp.Frame {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case r := <-b.Received():
			if r.Frame.Command == command {
				return r.Frame
			}
		case <-deadline:
			t.Fatalf("broker did not receive %s", command)
		}
	}
}

// drainCount counts buffered frames with the given command.
func drainCount(b *stomptest.Broker, command string) int {
	n := 0
	for {
		select {
		case r := <-b.Received():
			if r.Frame.Command == command {
				n++
			}
		default:
			return n
		}
	}
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for message")
	}
	var zero T
	return zero
}

func TestNewRejectsEmptyHost(t *testing.T) {
	_, err := New("  ", DefaultConfig())
	assert.ErrorIs(t, err, ErrEmptyHost)
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		name   string
		create func() (*Client, error)
		want   string
	}{
		{"secure fqdn", func() (*Client, error) { return New("127.0.0.1:1", DefaultConfig()) }, "wss://127.0.0.1:1/websocket-stomp"},
		{"insecure fqdn", func() (*Client, error) {
			cfg := DefaultConfig()
			cfg.Insecure = true
			return New("127.0.0.1:1", cfg)
		}, "ws://127.0.0.1:1/websocket-stomp"},
		{"http url", func() (*Client, error) { return NewFromURL("http://127.0.0.1:1", DefaultConfig()) }, "ws://127.0.0.1:1/websocket-stomp"},
		{"https url", func() (*Client, error) { return NewFromURL("https://127.0.0.1:1/", DefaultConfig()) }, "wss://127.0.0.1:1/websocket-stomp"},
		{"bare url", func() (*Client, error) { return NewFromURL("127.0.0.1:1", DefaultConfig()) }, "wss://127.0.0.1:1/websocket-stomp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := tt.create()
			require.NoError(t, err)
			defer c.Close()
			assert.Equal(t, tt.want, c.WebsocketURL())
		})
	}
}

func TestSubscribeReceivesMessages(t *testing.T) {
	b := stomptest.NewBroker()
	defer b.Close()
	c := newTestClient(t, b, testConfig())

	got := make(chan string, 4)
	c.Subscribe("/chat", func(body string) { got <- body })
	waitConnected(t, c)
	require.Eventually(t, func() bool { return b.Subscribed("/chat") }, waitFor, 5*time.Millisecond)

	b.Publish("/chat", "hello")
	assert.Equal(t, "hello", recv(t, got))
}

func TestSharedTopicSubscribesOnce(t *testing.T) {
	b := stomptest.NewBroker()
	defer b.Close()
	c := newTestClient(t, b, testConfig())
	waitConnected(t, c)

	first := make(chan string, 1)
	second := make(chan string, 1)
	c.Subscribe("/events", func(body string) { first <- body })
	c.Subscribe("/events", func(body string) { second <- body })
	require.Eventually(t, func() bool { return b.Subscribed("/events") }, waitFor, 5*time.Millisecond)

	b.Publish("/events", "e1")
	assert.Equal(t, "e1", recv(t, first))
	assert.Equal(t, "e1", recv(t, second))
	assert.Equal(t, 1, drainCount(b, stomp.CmdSubscribe))
	assert.Equal(t, []string{"/events"}, c.Topics())
}

func TestResubscribeAfterDrop(t *testing.T) {
	b := stomptest.NewBroker()
	defer b.Close()
	c := newTestClient(t, b, testConfig())

	got := make(chan string, 16)
	c.Subscribe("/chat", func(body string) { got <- body })
	waitConnected(t, c)
	require.Eventually(t, func() bool { return b.Subscribed("/chat") }, waitFor, 5*time.Millisecond)

	b.DropAll()
	require.Eventually(t, func() bool { return b.Connects() >= 2 }, waitFor, 5*time.Millisecond)

	// Publish until the new session's subscription picks it up.
	require.Eventually(t, func() bool {
		b.Publish("/chat", "after")
		select {
		case body := <-got:
			return body == "after"
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, waitFor, time.Millisecond)
}

func TestSendRoundTrip(t *testing.T) {
	b := stomptest.NewBroker()
	defer b.Close()
	c := newTestClient(t, b, testConfig())

	got := make(chan string, 1)
	c.Subscribe("/chat", func(body string) { got <- body })
	waitConnected(t, c)
	require.Eventually(t, func() bool { return b.Subscribed("/chat") }, waitFor, 5*time.Millisecond)

	c.Send("/chat", "ping")
	frame := waitFrame(t, b, stomp.CmdSend)
	assert.Equal(t, "/chat", frame.Destination())
	assert.Equal(t, "ping", recv(t, got))
}

func TestSendWhileDisconnectedIsDropped(t *testing.T) {
	b := stomptest.NewBroker()
	defer b.Close()
	b.SetReject(true)

	c := newTestClient(t, b, testConfig())
	c.Send("/chat", "lost")
	b.SetReject(false)
	waitConnected(t, c)

	c.Send("/chat", "kept")
	frame := waitFrame(t, b, stomp.CmdSend)
	assert.Equal(t, "kept", frame.Body)
}

func TestUnsubscribeLastHandle(t *testing.T) {
	b := stomptest.NewBroker()
	defer b.Close()
	c := newTestClient(t, b, testConfig())
	waitConnected(t, c)

	h1 := c.Subscribe("/actions", func(string) {})
	h2 := c.Subscribe("/actions", func(string) {})
	require.Eventually(t, func() bool { return b.Subscribed("/actions") }, waitFor, 5*time.Millisecond)

	h1.Unsubscribe()
	assert.True(t, b.Subscribed("/actions"))

	h2.Unsubscribe()
	h2.Unsubscribe()
	frame := waitFrame(t, b, stomp.CmdUnsubscribe)
	assert.Equal(t, "sub-0", frame.Headers.Get(stomp.HdrID))
	require.Eventually(t, func() bool { return !b.Subscribed("/actions") }, waitFor, 5*time.Millisecond)
	assert.Empty(t, c.Topics())
}

func TestSubscribeInvalidReturnsNilHandle(t *testing.T) {
	b := stomptest.NewBroker()
	defer b.Close()
	c := newTestClient(t, b, testConfig())

	assert.Nil(t, c.Subscribe("", func(string) {}))
	h := c.Subscribe("/x", nil)
	assert.Nil(t, h)
	assert.NotPanics(t, h.Unsubscribe)
}

func TestCloseSendsDisconnect(t *testing.T) {
	b := stomptest.NewBroker()
	defer b.Close()
	c, err := New(b.Host(), testConfig())
	require.NoError(t, err)
	waitConnected(t, c)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	waitFrame(t, b, stomp.CmdDisconnect)
	assert.Equal(t, connection.StateDisconnected, c.State())

	connects := b.Connects()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, connects, b.Connects(), "no reconnect after Close")
}

func TestCloseFromCallback(t *testing.T) {
	b := stomptest.NewBroker()
	defer b.Close()
	c := newTestClient(t, b, testConfig())

	returned := make(chan error, 1)
	c.Subscribe("/events", func(string) { returned <- c.Close() })
	waitConnected(t, c)
	require.Eventually(t, func() bool { return b.Subscribed("/events") }, waitFor, 5*time.Millisecond)

	b.Publish("/events", "x")
	require.NoError(t, recv(t, returned))

	waitFrame(t, b, stomp.CmdDisconnect)
	done := make(chan struct{})
	go func() {
		_ = c.Close()
		close(done)
	}()
	recv(t, done)
	assert.Equal(t, connection.StateDisconnected, c.State())
}

func TestSubscribeToProperty(t *testing.T) {
	b := stomptest.NewBroker()
	defer b.Close()
	c := newTestClient(t, b, testConfig())

	const iri = "https://example.com/sensor#temp"
	got := make(chan Observation, 1)
	c.SubscribeToProperty(iri, func(o Observation) { got <- o })
	waitConnected(t, c)

	topic := "/properties/https%3A%2F%2Fexample.com%2Fsensor%23temp"
	require.Eventually(t, func() bool { return b.Subscribed(topic) }, waitFor, 5*time.Millisecond)

	b.Publish(topic, `{"timestamp":"2024-05-01T12:00:00","value":21.5}`)
	o := recv(t, got)
	assert.True(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Equal(o.Timestamp))
	assert.JSONEq(t, "21.5", string(o.Value))
}

type event struct {
	IRI string `json:"iri"`
}

func TestTypedSubscriptionSkipsUndecodable(t *testing.T) {
	b := stomptest.NewBroker()
	defer b.Close()
	rec := &recordingLogger{}
	cfg := testConfig()
	cfg.ProtocolLogger = rec
	c := newTestClient(t, b, cfg)

	got := make(chan event, 2)
	SubscribeToEvents(c, func(e event) { got <- e })
	waitConnected(t, c)
	require.Eventually(t, func() bool { return b.Subscribed(TopicEvents) }, waitFor, 5*time.Millisecond)

	b.Publish(TopicEvents, "not json")
	b.Publish(TopicEvents, `{"iri":"urn:event:1"}`)
	assert.Equal(t, "urn:event:1", recv(t, got).IRI)
	assert.Equal(t, 1, rec.errorsWithContext("decode payload"))
}

func TestTypedHelperTopics(t *testing.T) {
	b := stomptest.NewBroker()
	defer b.Close()
	c := newTestClient(t, b, testConfig())

	SubscribeToActions(c, func(map[string]any) {})
	SubscribeToRequests(c, func(map[string]any) {})
	SubscribeToResolutions(c, func(map[string]any) {})
	SubscribeToEvents(c, func(map[string]any) {})

	assert.Equal(t, []string{TopicActions, TopicRequests, TopicResolutions, TopicEvents}, c.Topics())
}
