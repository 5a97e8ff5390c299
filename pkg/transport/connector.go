package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/webthing-client/webthing-go/pkg/log"
	"github.com/webthing-client/webthing-go/pkg/metrics"
)

// Connector errors.
var (
	ErrNotConnected = errors.New("transport: not connected")
	ErrNoURL        = errors.New("transport: no URL configured")
)

// Connector defaults.
const (
	DefaultDialTimeout  = 10 * time.Second
	DefaultWriteTimeout = 5 * time.Second
	DefaultReadLimit    = 1 << 20
	DefaultEventBuffer  = 64

	// StatusAbnormalClosure is reported when a socket ends without a close frame.
	StatusAbnormalClosure = int(websocket.StatusAbnormalClosure)
)

// Config configures a WebsocketConnector.
type Config struct {
	// URL is the ws:// or wss:// endpoint.
	URL string

	// DialOptions are passed to websocket.Dial. May be nil.
	DialOptions *websocket.DialOptions

	// DialTimeout bounds the websocket handshake (default: 10s).
	DialTimeout time.Duration

	// WriteTimeout bounds each Send (default: 5s).
	WriteTimeout time.Duration

	// ReadLimit is the largest accepted message in bytes (default: 1 MiB).
	ReadLimit int64

	// KeepAlive configures liveness monitoring. The zero value disables it.
	KeepAlive KeepAliveConfig

	// EventBuffer is the capacity of the Events channel (default: 64).
	EventBuffer int

	// Logger receives protocol events. May be nil.
	Logger log.Logger

	// Metrics records connect attempts. May be nil.
	Metrics *metrics.Metrics
}

// WebsocketConnector is a Connector over github.com/coder/websocket.
type WebsocketConnector struct {
	config Config
	logger log.Logger
	events chan Event

	mu     sync.RWMutex
	active bool
	conn   *websocket.Conn
	connID string

	// localClose is set when this side closed the socket; it wins over
	// whatever error the read loop observes afterwards.
	localClose *Event
}

// NewWebsocketConnector creates a connector. No connection is made until Open.
func NewWebsocketConnector(config Config) (*WebsocketConnector, error) {
	if config.URL == "" {
		return nil, ErrNoURL
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = DefaultDialTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.ReadLimit == 0 {
		config.ReadLimit = DefaultReadLimit
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = DefaultEventBuffer
	}

	return &WebsocketConnector{
		config: config,
		logger: log.OrNoop(config.Logger),
		events: make(chan Event, config.EventBuffer),
	}, nil
}

// URL returns the endpoint the connector dials.
func (c *WebsocketConnector) URL() string {
	return c.config.URL
}

// Events delivers lifecycle events for all attempts.
func (c *WebsocketConnector) Events() <-chan Event {
	return c.events
}

// ConnectionID returns the id of the current or most recent attempt.
func (c *WebsocketConnector) ConnectionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connID
}

// IsOpen reports whether a socket is currently open.
func (c *WebsocketConnector) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Open starts a connection attempt on a new goroutine. It is a no-op while
// an attempt is active. Cancelling ctx ends the attempt and stops event
// delivery for it.
func (c *WebsocketConnector) Open(ctx context.Context) {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return
	}
	c.active = true
	c.localClose = nil
	c.connID = uuid.NewString()
	connID := c.connID
	c.mu.Unlock()

	c.config.Metrics.ConnectAttempt()
	go c.run(ctx, connID)
}

// Send writes data as one text message.
func (c *WebsocketConnector) Send(data []byte) error {
	c.mu.RLock()
	conn, connID := c.conn, c.connID
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.config.WriteTimeout)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	c.logFrame(connID, log.DirectionOut, data)
	return nil
}

// Close performs a normal websocket close on the open socket, if any.
func (c *WebsocketConnector) Close() error {
	return c.closeWith(websocket.StatusNormalClosure, "client closing")
}

func (c *WebsocketConnector) closeWith(code websocket.StatusCode, reason string) error {
	c.mu.Lock()
	conn := c.conn
	if conn != nil && c.localClose == nil {
		c.localClose = &Event{Code: int(code), Reason: reason}
	}
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close(code, reason)
	if err != nil && websocket.CloseStatus(err) == code {
		return nil
	}
	return err
}

// run is one connection attempt.
func (c *WebsocketConnector) run(ctx context.Context, connID string) {
	dialCtx, cancel := context.WithTimeout(ctx, c.config.DialTimeout)
	conn, _, err := websocket.Dial(dialCtx, c.config.URL, c.config.DialOptions)
	cancel()
	if err != nil {
		c.finish(ctx, connID, fmt.Errorf("transport: dial %s: %w", c.config.URL, err))
		return
	}
	conn.SetReadLimit(c.config.ReadLimit)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.logControl(connID, log.ControlMsgOpen, nil, "")
	c.emit(ctx, Event{Type: EventOpen, ConnectionID: connID})

	ka := NewKeepAlive(c.config.KeepAlive, conn.Ping, func(reason string) {
		_ = c.closeWith(websocket.StatusGoingAway, reason)
	})
	ka.Start(ctx)
	defer ka.Stop()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.finish(ctx, connID, err)
			return
		}
		ka.Touch()
		c.logFrame(connID, log.DirectionIn, data)
		c.emit(ctx, Event{Type: EventFrame, ConnectionID: connID, Data: data})
	}
}

// finish releases the socket and ends the attempt. A read error that is a
// normal close is not reported as EventError.
func (c *WebsocketConnector) finish(ctx context.Context, connID string, err error) {
	code := StatusAbnormalClosure
	reason := ""
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		code, reason = int(ce.Code), ce.Reason
	} else if err != nil {
		reason = err.Error()
	}

	c.mu.Lock()
	conn := c.conn
	if c.localClose != nil {
		code, reason = c.localClose.Code, c.localClose.Reason
	}
	c.conn = nil
	c.active = false
	c.mu.Unlock()

	if conn != nil {
		_ = conn.CloseNow()
	}

	if code != int(websocket.StatusNormalClosure) && code != int(websocket.StatusGoingAway) && err != nil {
		c.logError(connID, err)
		c.emit(ctx, Event{Type: EventError, ConnectionID: connID, Err: err})
	}
	c.logControl(connID, log.ControlMsgClose, &code, reason)
	c.emit(ctx, Event{Type: EventClose, ConnectionID: connID, Code: code, Reason: reason})
}

func (c *WebsocketConnector) emit(ctx context.Context, ev Event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

func (c *WebsocketConnector) logFrame(connID string, dir log.Direction, data []byte) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		URL:          c.config.URL,
		Frame:        log.NewFrameEvent(data),
	})
}

func (c *WebsocketConnector) logControl(connID string, typ log.ControlMsgType, code *int, reason string) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		URL:          c.config.URL,
		ControlMsg:   &log.ControlMsgEvent{Type: typ, CloseCode: code, Reason: reason},
	})
}

func (c *WebsocketConnector) logError(connID string, err error) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryError,
		URL:          c.config.URL,
		Error:        &log.ErrorEventData{Layer: log.LayerTransport, Message: err.Error(), Context: "read"},
	})
}
