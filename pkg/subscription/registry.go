package subscription

import (
	"errors"
	"sync"
)

// Registry errors.
var (
	ErrEmptyTopic  = errors.New("subscription: empty topic")
	ErrNilCallback = errors.New("subscription: nil callback")
)

// Callback receives the raw body of a MESSAGE frame.
type Callback func(body string)

type registration struct {
	id uint64
	fn Callback
}

type topicEntry struct {
	callbacks []registration
	wireID    string
}

// Registry maps topics to callbacks and wire subscription ids.
// It is safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	topics map[string]*topicEntry
	order  []string // first-registration order
	nextID uint64

	onEmpty func(topic, wireID string)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		topics: make(map[string]*topicEntry),
	}
}

// OnEmpty sets a hook called (outside the lock) when the last callback of a
// topic is revoked. wireID is empty if the topic had no wire subscription.
func (r *Registry) OnEmpty(fn func(topic, wireID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEmpty = fn
}

// Register appends cb to topic's callbacks, creating the topic if needed.
// The returned bool reports whether the topic needs a wire subscribe: it is
// new, or it has no wire id yet.
func (r *Registry) Register(topic string, cb Callback) (*Handle, bool, error) {
	if topic == "" {
		return nil, false, ErrEmptyTopic
	}
	if cb == nil {
		return nil, false, ErrNilCallback
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.topics[topic]
	if !ok {
		e = &topicEntry{}
		r.topics[topic] = e
		r.order = append(r.order, topic)
	}
	r.nextID++
	e.callbacks = append(e.callbacks, registration{id: r.nextID, fn: cb})

	return &Handle{registry: r, topic: topic, id: r.nextID}, e.wireID == "", nil
}

// TopicsNeedingSubscribe returns topics without a wire id, in the order they
// were first registered.
func (r *Registry) TopicsNeedingSubscribe() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for _, topic := range r.order {
		if r.topics[topic].wireID == "" {
			out = append(out, topic)
		}
	}
	return out
}

// MarkSubscribed records the wire id sent for topic. Unknown topics are ignored
// and reported as false.
func (r *Registry) MarkSubscribed(topic, wireID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.topics[topic]
	if !ok {
		return false
	}
	e.wireID = wireID
	return true
}

// ClearAllWireIDs forgets every wire id, leaving callbacks untouched.
func (r *Registry) ClearAllWireIDs() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.topics {
		e.wireID = ""
	}
}

// WireID returns the wire id of topic, or "" if it has none.
func (r *Registry) WireID(topic string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.topics[topic]; ok {
		return e.wireID
	}
	return ""
}

// CallbacksFor returns a snapshot of topic's callbacks in registration order.
// Unknown topics yield an empty slice.
func (r *Registry) CallbacksFor(topic string) []Callback {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.topics[topic]
	if !ok {
		return nil
	}
	out := make([]Callback, len(e.callbacks))
	for i, reg := range e.callbacks {
		out[i] = reg.fn
	}
	return out
}

// Topics returns all registered topics in first-registration order.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Len returns the number of registered topics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}

// remove revokes one callback. It reports whether the callback was still
// registered.
func (r *Registry) remove(topic string, id uint64) bool {
	r.mu.Lock()

	e, ok := r.topics[topic]
	if !ok {
		r.mu.Unlock()
		return false
	}
	idx := -1
	for i, reg := range e.callbacks {
		if reg.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return false
	}
	e.callbacks = append(e.callbacks[:idx:idx], e.callbacks[idx+1:]...)

	if len(e.callbacks) > 0 {
		r.mu.Unlock()
		return true
	}

	delete(r.topics, topic)
	for i, t := range r.order {
		if t == topic {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	wireID := e.wireID
	onEmpty := r.onEmpty
	r.mu.Unlock()

	if onEmpty != nil {
		onEmpty(topic, wireID)
	}
	return true
}

// Handle revokes a single callback registration.
type Handle struct {
	registry *Registry
	topic    string
	id       uint64
	once     sync.Once
}

// Topic returns the topic the callback was registered for.
func (h *Handle) Topic() string {
	return h.topic
}

// Unsubscribe removes the callback. Only the first call has an effect.
// A nil Handle is a no-op.
func (h *Handle) Unsubscribe() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.registry.remove(h.topic, h.id)
	})
}
