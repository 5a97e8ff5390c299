package connection

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/webthing-client/webthing-go/pkg/log"
	"github.com/webthing-client/webthing-go/pkg/metrics"
	"github.com/webthing-client/webthing-go/pkg/stomp"
	"github.com/webthing-client/webthing-go/pkg/subscription"
	"github.com/webthing-client/webthing-go/pkg/transport"
)

// DefaultHeartbeat asks the server for a heartbeat every 10s and promises none.
var DefaultHeartbeat = stomp.Heartbeat{Receive: 10 * time.Second}

// Config configures a Supervisor.
type Config struct {
	// Backoff configures the delay between consecutive failed attempts.
	Backoff BackoffConfig

	// Connect configures the CONNECT frame.
	Connect stomp.ConnectOptions

	// MaxFrameSize bounds decoded frames (default: stomp.DefaultMaxFrameSize).
	MaxFrameSize int

	// Logger receives protocol events. May be nil.
	Logger log.Logger

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// DefaultConfig returns the default supervisor configuration.
func DefaultConfig() Config {
	return Config{
		Backoff:      DefaultBackoffConfig(),
		Connect:      stomp.ConnectOptions{Heartbeat: DefaultHeartbeat},
		MaxFrameSize: stomp.DefaultMaxFrameSize,
	}
}

type unsubscribeRequest struct {
	connID string
	wireID string
}

// Supervisor drives a Connector through the STOMP session lifecycle and
// replays the registry's subscriptions on every new session.
type Supervisor struct {
	connector  transport.Connector
	registry   *subscription.Registry
	dispatcher *subscription.Dispatcher
	backoff    *Backoff
	config     Config
	logger     log.Logger
	metrics    *metrics.Metrics

	mu     sync.RWMutex
	state  State
	connID string

	onStateChange  func(oldState, newState State)
	onConnected    func()
	onReconnecting func(attempt int, delay time.Duration)

	subscribeCh   chan struct{}
	unsubscribeCh chan struct{}
	running       atomic.Bool
	done          chan struct{}

	pendingMu sync.Mutex
	pending   []unsubscribeRequest

	// Non-zero while the loop runs user code.
	inCallback atomic.Int32

	// Owned by the Run goroutine.
	nextSubID  int
	retryFirst bool
	failures   int
}

// NewSupervisor creates a supervisor. Nothing happens until Run.
func NewSupervisor(connector transport.Connector, registry *subscription.Registry, config Config) *Supervisor {
	if config.MaxFrameSize == 0 {
		config.MaxFrameSize = stomp.DefaultMaxFrameSize
	}
	logger := log.OrNoop(config.Logger)

	s := &Supervisor{
		connector:     connector,
		registry:      registry,
		dispatcher:    subscription.NewDispatcher(registry, logger, config.Metrics),
		backoff:       NewBackoffWithConfig(config.Backoff),
		config:        config,
		logger:        logger,
		metrics:       config.Metrics,
		state:         StateDisconnected,
		subscribeCh:   make(chan struct{}, 1),
		unsubscribeCh: make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
	registry.OnEmpty(s.requestUnsubscribe)
	return s
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsConnected returns true if a STOMP session is established.
func (s *Supervisor) IsConnected() bool {
	return s.State() == StateConnected
}

// ConnectionID returns the id of the current connection attempt.
func (s *Supervisor) ConnectionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connID
}

// OnStateChange sets a callback for state transitions. It runs on the
// supervisor goroutine and must not block.
func (s *Supervisor) OnStateChange(fn func(oldState, newState State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStateChange = fn
}

// OnConnected sets a callback invoked after CONNECTED and the subscription
// replay.
func (s *Supervisor) OnConnected(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnected = fn
}

// OnReconnecting sets a callback invoked when a reconnect is scheduled.
// attempt counts consecutive closes since the last CONNECTED.
func (s *Supervisor) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReconnecting = fn
}

// Done is closed when Run returns.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// InCallback reports whether the loop is currently running a subscription
// callback or a hook. Waiting for Done from inside one would never return.
func (s *Supervisor) InCallback() bool {
	return s.inCallback.Load() > 0
}

// callback runs fn with InCallback set.
func (s *Supervisor) callback(fn func()) {
	s.inCallback.Add(1)
	defer s.inCallback.Add(-1)
	fn()
}

// RequestSubscribe asks the loop to send SUBSCRIBE for topics without a
// wire id. It never blocks; requests coalesce.
func (s *Supervisor) RequestSubscribe() {
	select {
	case s.subscribeCh <- struct{}{}:
	default:
	}
}

// requestUnsubscribe is the registry's OnEmpty hook.
func (s *Supervisor) requestUnsubscribe(topic, wireID string) {
	s.metrics.SetTopics(s.registry.Len())
	if wireID == "" {
		return
	}
	s.pendingMu.Lock()
	s.pending = append(s.pending, unsubscribeRequest{connID: s.ConnectionID(), wireID: wireID})
	s.pendingMu.Unlock()

	select {
	case s.unsubscribeCh <- struct{}{}:
	default:
	}
}

// flushUnsubscribes sends UNSUBSCRIBE for every pending request that
// belongs to the current session. Requests from older sessions are
// discarded; their subscriptions died with the socket.
func (s *Supervisor) flushUnsubscribes() {
	s.pendingMu.Lock()
	reqs := s.pending
	s.pending = nil
	s.pendingMu.Unlock()

	s.mu.RLock()
	connected := s.state == StateConnected
	connID := s.connID
	s.mu.RUnlock()

	for _, req := range reqs {
		if !connected || req.connID != connID {
			continue
		}
		_ = s.sendFrame(connID, stomp.CmdUnsubscribe, "", req.wireID, stomp.EncodeUnsubscribe(req.wireID), 0)
	}
}

// Send sends body to topic. It fails with ErrNotConnected unless a session
// is established; nothing is queued. The write runs on the caller's
// goroutine, bounded by the connector's write timeout.
func (s *Supervisor) Send(topic, body string) error {
	s.mu.RLock()
	state, connID := s.state, s.connID
	s.mu.RUnlock()

	if state != StateConnected {
		s.metrics.SendDropped()
		return ErrNotConnected
	}
	if err := s.sendFrame(connID, stomp.CmdSend, topic, "", stomp.EncodeSend(topic, body), len(body)); err != nil {
		s.metrics.SendDropped()
		return err
	}
	return nil
}

// Run drives the state machine until ctx is cancelled. On cancellation it
// sends DISCONNECT if a session is established and closes the socket.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(s.done)

	// The connector outlives ctx long enough for a graceful DISCONNECT.
	connCtx, stopConn := context.WithCancel(context.WithoutCancel(ctx))
	defer stopConn()

	var (
		retryTimer *time.Timer
		retryC     <-chan time.Time
	)
	defer func() {
		if retryTimer != nil {
			retryTimer.Stop()
		}
	}()

	s.retryFirst = true
	s.open(connCtx)

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil

		case ev := <-s.connector.Events():
			delay, reconnect := s.handleEvent(ev)
			if !reconnect {
				continue
			}
			if delay <= 0 {
				s.open(connCtx)
				continue
			}
			if retryTimer != nil {
				retryTimer.Stop()
			}
			retryTimer = time.NewTimer(delay)
			retryC = retryTimer.C

		case <-retryC:
			retryC = nil
			s.open(connCtx)

		case <-s.subscribeCh:
			if s.State() == StateConnected {
				s.replay()
			}

		case <-s.unsubscribeCh:
			s.flushUnsubscribes()
		}
	}
}

// open starts a connection attempt.
func (s *Supervisor) open(ctx context.Context) {
	s.setState(StateConnecting, "open")
	s.connector.Open(ctx)
}

// handleEvent processes one connector event. It reports whether a reconnect
// should be scheduled and after which delay.
func (s *Supervisor) handleEvent(ev transport.Event) (time.Duration, bool) {
	switch ev.Type {
	case transport.EventOpen:
		s.mu.Lock()
		s.connID = ev.ConnectionID
		s.mu.Unlock()
		s.dispatcher.SetConnectionID(ev.ConnectionID)
		_ = s.sendFrame(ev.ConnectionID, stomp.CmdConnect, "", "", stomp.EncodeConnect(s.config.Connect), 0)

	case transport.EventFrame:
		s.handleFrame(ev.ConnectionID, ev.Data)

	case transport.EventError:
		// Logged by the connector; EventClose follows.

	case transport.EventClose:
		return s.handleClose(ev), true
	}
	return 0, false
}

func (s *Supervisor) handleFrame(connID string, data []byte) {
	frame, err := stomp.DecodeLimit(data, s.config.MaxFrameSize)
	if err != nil {
		s.metrics.FrameDropped("decode")
		s.logError(connID, "", log.LayerStomp, err, "decode")
		return
	}
	if frame.IsHeartbeat() {
		s.metrics.FrameReceived("HEARTBEAT")
		s.logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: connID,
			Direction:    log.DirectionIn,
			Layer:        log.LayerStomp,
			Category:     log.CategoryControl,
			ControlMsg:   &log.ControlMsgEvent{Type: log.ControlMsgHeartbeat},
		})
		return
	}

	s.metrics.FrameReceived(frame.Command)
	s.logMessage(connID, log.DirectionIn, frame)

	switch frame.Command {
	case stomp.CmdConnected:
		if s.State() != StateConnecting {
			s.metrics.FrameDropped("unexpected")
			return
		}
		s.enterConnected(frame)

	case stomp.CmdMessage:
		if s.State() != StateConnected {
			s.metrics.FrameDropped("unexpected")
			return
		}
		s.callback(func() { s.dispatcher.Dispatch(frame.Destination(), frame.Body) })

	case stomp.CmdError:
		msg := frame.Headers.Get(stomp.HdrMessage)
		if frame.Body != "" {
			msg += ": " + frame.Body
		}
		s.logError(connID, frame.Destination(), log.LayerStomp, fmt.Errorf("server error: %s", msg), "ERROR frame")
	}
}

func (s *Supervisor) enterConnected(frame stomp.Frame) {
	s.retryFirst = true
	s.failures = 0
	s.backoff.Reset()
	s.nextSubID = 0
	s.setState(StateConnected, "CONNECTED version "+frame.Headers.Get(stomp.HdrVersion))

	s.replay()

	s.mu.RLock()
	fn := s.onConnected
	s.mu.RUnlock()
	if fn != nil {
		s.callback(fn)
	}
}

// replay sends SUBSCRIBE for every topic without a wire id.
func (s *Supervisor) replay() {
	connID := s.ConnectionID()
	for _, topic := range s.registry.TopicsNeedingSubscribe() {
		id := "sub-" + strconv.Itoa(s.nextSubID)
		s.nextSubID++
		if err := s.sendFrame(connID, stomp.CmdSubscribe, topic, id, stomp.EncodeSubscribe(topic, id), 0); err != nil {
			// The close that follows a failed write triggers a full replay.
			return
		}
		if !s.registry.MarkSubscribed(topic, id) {
			// Revoked while the frame was in flight.
			_ = s.sendFrame(connID, stomp.CmdUnsubscribe, topic, id, stomp.EncodeUnsubscribe(id), 0)
		}
	}
	s.metrics.SetTopics(s.registry.Len())
}

func (s *Supervisor) handleClose(ev transport.Event) time.Duration {
	s.registry.ClearAllWireIDs()

	var delay time.Duration
	if s.retryFirst {
		s.retryFirst = false
	} else {
		delay = s.backoff.Next()
	}
	s.failures++

	reason := fmt.Sprintf("closed %d", ev.Code)
	if ev.Reason != "" {
		reason += " " + ev.Reason
	}
	s.setStateWithDelay(StateDisconnected, reason, &delay)
	s.metrics.Reconnect()

	s.mu.RLock()
	fn := s.onReconnecting
	s.mu.RUnlock()
	if fn != nil {
		s.callback(func() { fn(s.failures, delay) })
	}
	return delay
}

func (s *Supervisor) shutdown() {
	if s.State() == StateConnected {
		_ = s.sendFrame(s.ConnectionID(), stomp.CmdDisconnect, "", "", stomp.EncodeDisconnect(), 0)
	}
	_ = s.connector.Close()
	s.registry.ClearAllWireIDs()
	s.setState(StateDisconnected, "shutdown")
}

func (s *Supervisor) setState(state State, reason string) {
	s.setStateWithDelay(state, reason, nil)
}

func (s *Supervisor) setStateWithDelay(state State, reason string, delay *time.Duration) {
	s.mu.Lock()
	old := s.state
	s.state = state
	connID := s.connID
	fn := s.onStateChange
	s.mu.Unlock()

	if old == state {
		return
	}
	s.metrics.SetConnectionState(int(state))
	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        log.LayerClient,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			OldState:   old.String(),
			NewState:   state.String(),
			Reason:     reason,
			RetryDelay: delay,
		},
	})
	if fn != nil {
		s.callback(func() { fn(old, state) })
	}
}

func (s *Supervisor) sendFrame(connID, command, destination, subID string, data []byte, bodySize int) error {
	if err := s.connector.Send(data); err != nil {
		s.logError(connID, destination, log.LayerTransport, err, "send "+command)
		return err
	}
	s.metrics.FrameSent(command)
	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionOut,
		Layer:        log.LayerStomp,
		Category:     log.CategoryMessage,
		Topic:        destination,
		Message: &log.MessageEvent{
			Command:        command,
			Destination:    destination,
			SubscriptionID: subID,
			BodySize:       bodySize,
		},
	})
	return nil
}

func (s *Supervisor) logMessage(connID string, dir log.Direction, f stomp.Frame) {
	me := &log.MessageEvent{
		Command:     f.Command,
		Destination: f.Destination(),
		BodySize:    len(f.Body),
	}
	for _, h := range f.Headers {
		switch h.Key {
		case stomp.HdrDestination:
		case stomp.HdrSubscription, stomp.HdrID:
			if me.SubscriptionID == "" {
				me.SubscriptionID = h.Value
			}
		default:
			if me.Headers == nil {
				me.Headers = make(map[string]string)
			}
			if _, dup := me.Headers[h.Key]; !dup {
				me.Headers[h.Key] = h.Value
			}
		}
	}
	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerStomp,
		Category:     log.CategoryMessage,
		Topic:        me.Destination,
		Message:      me,
	})
}

func (s *Supervisor) logError(connID, topic string, layer log.Layer, err error, op string) {
	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionIn,
		Layer:        layer,
		Category:     log.CategoryError,
		Topic:        topic,
		Error:        &log.ErrorEventData{Layer: layer, Message: err.Error(), Context: op},
	})
}
