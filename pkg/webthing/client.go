package webthing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/webthing-client/webthing-go/pkg/connection"
	"github.com/webthing-client/webthing-go/pkg/log"
	"github.com/webthing-client/webthing-go/pkg/metrics"
	"github.com/webthing-client/webthing-go/pkg/stomp"
	"github.com/webthing-client/webthing-go/pkg/subscription"
	"github.com/webthing-client/webthing-go/pkg/transport"
)

// DefaultPath is the websocket endpoint path on a Webthing server.
const DefaultPath = "/websocket-stomp"

// ErrEmptyHost is returned when no server host is given.
var ErrEmptyHost = errors.New("webthing: empty host")

// Config configures a Client.
type Config struct {
	// Insecure selects ws:// instead of wss://.
	Insecure bool

	// Path is the websocket endpoint path (default: /websocket-stomp).
	Path string

	// Backoff configures the delay between consecutive failed attempts.
	Backoff connection.BackoffConfig

	// Heartbeat is announced in CONNECT.
	Heartbeat stomp.Heartbeat

	// KeepAlive configures websocket pings and the idle check.
	KeepAlive transport.KeepAliveConfig

	// DialOptions are passed to the websocket dialer. May be nil.
	DialOptions *websocket.DialOptions

	// MaxFrameSize bounds inbound frames (default: 1 MiB).
	MaxFrameSize int

	// ProtocolLogger receives every protocol event. May be nil.
	ProtocolLogger log.Logger

	// Logger is used for client diagnostics and, at debug level, for
	// protocol events. May be nil.
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// DefaultConfig returns the default client configuration: TLS, a constant
// 30s retry interval with jitter, and a 10s server heart-beat request.
func DefaultConfig() Config {
	return Config{
		Path:         DefaultPath,
		Backoff:      connection.DefaultBackoffConfig(),
		Heartbeat:    connection.DefaultHeartbeat,
		KeepAlive:    transport.DefaultKeepAliveConfig(),
		MaxFrameSize: stomp.DefaultMaxFrameSize,
	}
}

// Client is a resilient subscription client. All methods are safe for
// concurrent use.
type Client struct {
	url        string
	config     Config
	logger     *slog.Logger
	events     log.Logger
	registry   *subscription.Registry
	connector  *transport.WebsocketConnector
	supervisor *connection.Supervisor

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New creates a client for the server at fqdn (host or host:port) and starts
// connecting immediately.
func New(fqdn string, config Config) (*Client, error) {
	fqdn = strings.TrimRight(strings.TrimSpace(fqdn), "/")
	if fqdn == "" {
		return nil, ErrEmptyHost
	}
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if !strings.HasPrefix(config.Path, "/") {
		config.Path = "/" + config.Path
	}

	scheme := "wss"
	if config.Insecure {
		scheme = "ws"
	}
	url := scheme + "://" + fqdn + config.Path

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "webthing", "url", url)

	var sink log.Logger = log.NoopLogger{}
	if config.ProtocolLogger != nil || config.Logger != nil {
		var adapter log.Logger
		if config.Logger != nil {
			adapter = log.NewSlogAdapter(logger)
		}
		sink = log.NewMultiLogger(config.ProtocolLogger, adapter)
	}

	connector, err := transport.NewWebsocketConnector(transport.Config{
		URL:         url,
		DialOptions: config.DialOptions,
		KeepAlive:   config.KeepAlive,
		ReadLimit:   int64(max(config.MaxFrameSize, 0)),
		Logger:      sink,
		Metrics:     config.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create connector: %w", err)
	}

	registry := subscription.NewRegistry()
	supervisor := connection.NewSupervisor(connector, registry, connection.Config{
		Backoff:      config.Backoff,
		Connect:      stomp.ConnectOptions{Heartbeat: config.Heartbeat},
		MaxFrameSize: config.MaxFrameSize,
		Logger:       sink,
		Metrics:      config.Metrics,
	})

	c := &Client{
		url:        url,
		config:     config,
		logger:     logger,
		events:     sink,
		registry:   registry,
		connector:  connector,
		supervisor: supervisor,
	}

	supervisor.OnReconnecting(func(attempt int, delay time.Duration) {
		logger.Info("connection lost, reconnecting", "attempt", attempt, "delay", delay)
	})

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go func() {
		if err := supervisor.Run(ctx); err != nil {
			logger.Error("supervisor stopped", "error", err)
		}
	}()

	return c, nil
}

var schemeRE = regexp.MustCompile(`^https?://`)

// NewFromURL creates a client from a server URL such as
// https://webthing.example.com. Only an explicit http:// scheme selects an
// insecure connection.
func NewFromURL(url string, config Config) (*Client, error) {
	config.Insecure = strings.HasPrefix(url, "http://")
	return New(schemeRE.ReplaceAllString(url, ""), config)
}

// WebsocketURL returns the endpoint the client connects to.
func (c *Client) WebsocketURL() string {
	return c.url
}

// State returns the connection state.
func (c *Client) State() connection.State {
	return c.supervisor.State()
}

// IsConnected reports whether a STOMP session is established.
func (c *Client) IsConnected() bool {
	return c.supervisor.IsConnected()
}

// OnStateChange sets a callback for state transitions. It runs on the event
// goroutine and must not block.
func (c *Client) OnStateChange(fn func(oldState, newState connection.State)) {
	c.supervisor.OnStateChange(fn)
}

// OnConnected sets a callback invoked after every successful (re)connect,
// once subscriptions have been replayed.
func (c *Client) OnConnected(fn func()) {
	c.supervisor.OnConnected(fn)
}

// Subscribe registers cb for topic and returns a handle that revokes it.
// The topic is subscribed on the wire at most once per session. An empty
// topic or nil callback is logged and yields a nil handle, whose
// Unsubscribe is a no-op.
//
// Callbacks run one at a time on the event goroutine and must not block.
// They may call Subscribe, Unsubscribe, Send and Close.
func (c *Client) Subscribe(topic string, cb func(body string)) *subscription.Handle {
	h, needsWire, err := c.registry.Register(topic, cb)
	if err != nil {
		c.logger.Warn("subscribe ignored", "topic", topic, "error", err)
		return nil
	}
	c.config.Metrics.SetTopics(c.registry.Len())
	if needsWire {
		c.supervisor.RequestSubscribe()
	}
	return h
}

// Send publishes body to topic. While no session is established the message
// is dropped; it is never queued. The write happens on the caller's
// goroutine and blocks for at most transport.DefaultWriteTimeout.
func (c *Client) Send(topic, body string) {
	if err := c.supervisor.Send(topic, body); err != nil {
		c.logger.Debug("send dropped", "topic", topic, "error", err)
	}
}

// Topics returns the subscribed topics in first-subscription order.
func (c *Client) Topics() []string {
	return c.registry.Topics()
}

// Close stops reconnecting, sends DISCONNECT if a session is established and
// closes the socket. It blocks until the event goroutine has exited, except
// when called while a callback is running: the callback's own goroutine
// cannot be waited for, so Close then returns at once and the shutdown
// completes when the callback returns.
func (c *Client) Close() error {
	c.closeOnce.Do(c.cancel)
	if c.supervisor.InCallback() {
		return nil
	}
	<-c.supervisor.Done()
	return nil
}

func (c *Client) reportDecodeError(topic string, err error) {
	c.events.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.supervisor.ConnectionID(),
		Direction:    log.DirectionIn,
		Layer:        log.LayerClient,
		Category:     log.CategoryError,
		URL:          c.url,
		Topic:        topic,
		Error: &log.ErrorEventData{
			Layer:   log.LayerClient,
			Message: err.Error(),
			Context: "decode payload",
		},
	})
}
