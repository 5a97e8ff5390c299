// Package stomptest provides an in-process STOMP-over-websocket broker for
// tests. Topic fan-out goes through a cskr/pubsub bus, so a SEND from one
// session reaches every session subscribed to the destination.
package stomptest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/cskr/pubsub"

	"github.com/webthing-client/webthing-go/pkg/stomp"
)

// Path is the websocket endpoint served by the broker.
const Path = "/websocket-stomp"

// Received is a frame the broker read from a client session.
type Received struct {
	Session int
	Frame   stomp.Frame
}

// Broker is a minimal STOMP broker.
type Broker struct {
	srv *httptest.Server
	bus *pubsub.PubSub

	mu       sync.Mutex
	sessions map[int]*session
	nextID   int
	closed   bool
	wg       sync.WaitGroup

	received   chan Received
	reject     atomic.Bool
	silent     atomic.Bool
	connects   atomic.Int32
	msgCounter atomic.Int64
}

// NewBroker starts a broker on a loopback port. Call Close when done.
func NewBroker() *Broker {
	b := &Broker{
		bus:      pubsub.New(64),
		sessions: make(map[int]*session),
		received: make(chan Received, 1024),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(Path, b.handle)
	b.srv = httptest.NewServer(mux)
	return b
}

// Host returns host:port of the broker.
func (b *Broker) Host() string {
	return strings.TrimPrefix(b.srv.URL, "http://")
}

// HTTPURL returns the broker's http:// base URL.
func (b *Broker) HTTPURL() string {
	return b.srv.URL
}

// URL returns the ws:// endpoint.
func (b *Broker) URL() string {
	return "ws://" + b.Host() + Path
}

// Received delivers every frame read from clients, heartbeats excluded.
func (b *Broker) Received() <-chan Received {
	return b.received
}

// Connects returns how many CONNECT frames were answered.
func (b *Broker) Connects() int {
	return int(b.connects.Load())
}

// SetReject makes the broker refuse websocket upgrades with 503.
func (b *Broker) SetReject(reject bool) {
	b.reject.Store(reject)
}

// SetSilent makes the broker ignore CONNECT frames, leaving sessions stuck
// before CONNECTED.
func (b *Broker) SetSilent(silent bool) {
	b.silent.Store(silent)
}

// Publish delivers body to every session subscribed to topic.
func (b *Broker) Publish(topic, body string) {
	b.bus.Pub(body, topic)
}

// Sessions returns the number of open sessions.
func (b *Broker) Sessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// Subscribed reports whether any session holds a subscription to topic.
func (b *Broker) Subscribed(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.sessions {
		if s.hasTopic(topic) {
			return true
		}
	}
	return false
}

// DropAll closes every session without a close handshake.
func (b *Broker) DropAll() {
	b.mu.Lock()
	sessions := make([]*session, 0, len(b.sessions))
	for _, s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.mu.Unlock()

	for _, s := range sessions {
		_ = s.conn.CloseNow()
	}
}

// Close drops all sessions and stops the server.
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.srv.Close()
	b.DropAll()
	b.wg.Wait()
	b.bus.Shutdown()
}

func (b *Broker) handle(w http.ResponseWriter, r *http.Request) {
	if b.reject.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = conn.CloseNow()
		return
	}
	b.nextID++
	s := &session{id: b.nextID, broker: b, conn: conn, subs: make(map[string]subEntry)}
	b.sessions[s.id] = s
	b.wg.Add(1)
	b.mu.Unlock()
	defer b.wg.Done()

	defer func() {
		b.mu.Lock()
		delete(b.sessions, s.id)
		b.mu.Unlock()
		s.unsubscribeAll()
		_ = conn.CloseNow()
	}()

	s.serve(r.Context())
}

type subEntry struct {
	topic string
	ch    chan interface{}
}

type session struct {
	id     int
	broker *Broker
	conn   *websocket.Conn

	mu   sync.Mutex
	subs map[string]subEntry // by subscription id
}

func (s *session) serve(ctx context.Context) {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		frame, err := stomp.Decode(data)
		if err != nil {
			s.write(ctx, stomp.Frame{Command: stomp.CmdError, Headers: stomp.Headers{{Key: stomp.HdrMessage, Value: "malformed frame"}}, Body: err.Error()})
			continue
		}
		if frame.IsHeartbeat() {
			continue
		}
		select {
		case s.broker.received <- Received{Session: s.id, Frame: frame}:
		default:
		}

		switch frame.Command {
		case stomp.CmdConnect, stomp.CmdStomp:
			if s.broker.silent.Load() {
				continue
			}
			s.broker.connects.Add(1)
			s.write(ctx, stomp.Frame{Command: stomp.CmdConnected, Headers: stomp.Headers{
				{Key: stomp.HdrVersion, Value: "1.2"},
				{Key: stomp.HdrHeartBeat, Value: "0,0"},
			}})
		case stomp.CmdSubscribe:
			s.subscribe(ctx, frame.Headers.Get(stomp.HdrID), frame.Destination())
		case stomp.CmdUnsubscribe:
			s.unsubscribe(frame.Headers.Get(stomp.HdrID))
		case stomp.CmdSend:
			s.broker.Publish(frame.Destination(), frame.Body)
		case stomp.CmdDisconnect:
			if receipt := frame.Headers.Get(stomp.HdrReceipt); receipt != "" {
				s.write(ctx, stomp.Frame{Command: stomp.CmdReceipt, Headers: stomp.Headers{{Key: stomp.HdrReceiptID, Value: receipt}}})
			}
			_ = s.conn.Close(websocket.StatusNormalClosure, "bye")
			return
		}
	}
}

func (s *session) write(ctx context.Context, f stomp.Frame) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = s.conn.Write(ctx, websocket.MessageText, f.Bytes())
}

func (s *session) hasTopic(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.subs {
		if e.topic == topic {
			return true
		}
	}
	return false
}

func (s *session) subscribe(ctx context.Context, id, topic string) {
	ch := s.broker.bus.Sub(topic)
	s.mu.Lock()
	s.subs[id] = subEntry{topic: topic, ch: ch}
	s.mu.Unlock()

	go func() {
		// Drain until the bus closes ch so publishers never block.
		for msg := range ch {
			body, _ := msg.(string)
			n := s.broker.msgCounter.Add(1)
			s.write(ctx, stomp.Frame{
				Command: stomp.CmdMessage,
				Headers: stomp.Headers{
					{Key: stomp.HdrDestination, Value: topic},
					{Key: stomp.HdrSubscription, Value: id},
					{Key: stomp.HdrMessageID, Value: strconv.FormatInt(n, 10)},
				},
				Body: body,
			})
		}
	}()
}

func (s *session) unsubscribe(id string) {
	s.mu.Lock()
	e, ok := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()
	if ok {
		s.broker.bus.Unsub(e.ch, e.topic)
	}
}

func (s *session) unsubscribeAll() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[string]subEntry)
	s.mu.Unlock()
	for _, e := range subs {
		s.broker.bus.Unsub(e.ch, e.topic)
	}
}
