package main

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/webthing-client/webthing-go/pkg/subscription"
	"github.com/webthing-client/webthing-go/pkg/webthing"
)

// Subscription sources.
const (
	sourceFlag   = "flag"
	sourceConfig = "config"
	sourceShell  = "shell"
)

type targetKind uint8

const (
	kindTopic targetKind = iota
	kindProperty
)

// target is something to subscribe to: a raw topic or a property IRI.
type target struct {
	kind targetKind
	name string
}

func topicTarget(topic string) target { return target{kind: kindTopic, name: topic} }
func propertyTarget(iri string) target { return target{kind: kindProperty, name: iri} }

func (t target) String() string {
	if t.kind == kindProperty {
		return "property " + t.name
	}
	return t.name
}

// subscriber is the part of *webthing.Client the CLI subscribes through.
type subscriber interface {
	Subscribe(topic string, cb func(body string)) *subscription.Handle
	SubscribeToProperty(iri string, cb func(webthing.Observation)) *subscription.Handle
}

type subEntry struct {
	ID     int
	Target target
	Source string
	handle *subscription.Handle
}

// subscriptionSet tracks the CLI's subscriptions and prints what arrives.
type subscriptionSet struct {
	client subscriber

	outMu sync.Mutex
	out   io.Writer

	mu      sync.Mutex
	entries []*subEntry
	nextID  int
}

var errUnknownSubscription = errors.New("no such subscription")

func newSubscriptionSet(client subscriber, out io.Writer) *subscriptionSet {
	return &subscriptionSet{client: client, out: out, nextID: 1}
}

// SetOutput redirects message printing.
func (s *subscriptionSet) SetOutput(w io.Writer) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	s.out = w
}

func (s *subscriptionSet) printf(format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

// Add subscribes to t and returns the entry id.
func (s *subscriptionSet) Add(t target, source string) (int, error) {
	var h *subscription.Handle
	switch t.kind {
	case kindProperty:
		iri := t.name
		h = s.client.SubscribeToProperty(iri, func(o webthing.Observation) {
			s.printf("[%s] %s %s\n", iri, o.Timestamp.Format(time.RFC3339Nano), o.Value)
		})
	default:
		topic := t.name
		h = s.client.Subscribe(topic, func(body string) {
			s.printf("[%s] %s\n", topic, body)
		})
	}
	if h == nil {
		return 0, fmt.Errorf("cannot subscribe to %q", t.name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.entries = append(s.entries, &subEntry{ID: id, Target: t, Source: source, handle: h})
	return id, nil
}

// Remove revokes the entry with the given id.
func (s *subscriptionSet) Remove(id int) error {
	s.mu.Lock()
	i := slices.IndexFunc(s.entries, func(e *subEntry) bool { return e.ID == id })
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", errUnknownSubscription, id)
	}
	e := s.entries[i]
	s.entries = slices.Delete(s.entries, i, i+1)
	s.mu.Unlock()

	e.handle.Unsubscribe()
	return nil
}

// Sync makes the entries of source match want: missing targets are added,
// targets no longer wanted are removed. Targets already held by another
// source are not added twice.
func (s *subscriptionSet) Sync(source string, want []target) (added, removed []target) {
	s.mu.Lock()
	var stale []int
	have := make(map[target]bool)
	for _, e := range s.entries {
		if e.Source != source || slices.Contains(want, e.Target) {
			have[e.Target] = true
			continue
		}
		stale = append(stale, e.ID)
		removed = append(removed, e.Target)
	}
	s.mu.Unlock()

	for _, id := range stale {
		_ = s.Remove(id)
	}
	for _, t := range want {
		if have[t] {
			continue
		}
		have[t] = true
		if _, err := s.Add(t, source); err == nil {
			added = append(added, t)
		}
	}
	return added, removed
}

// List returns a snapshot of the entries in id order.
func (s *subscriptionSet) List() []subEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]subEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = *e
	}
	return out
}

// Close revokes every entry.
func (s *subscriptionSet) Close() {
	for _, e := range s.List() {
		_ = s.Remove(e.ID)
	}
}
