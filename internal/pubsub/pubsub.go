// Package pubsub is the in-process change event bus. Mutations publish on
// their mutation name; subscriptions listen on a set of names.
package pubsub

import (
	"context"
	"sync"
	"time"
)

// Kind classifies a change event.
type Kind string

const (
	Created     Kind = "CREATED"
	BulkCreated Kind = "BULK_CREATED"
	Deleted     Kind = "DELETED"
	Updated     Kind = "UPDATED"
)

// Kinds lists every event kind in declaration order.
var Kinds = []Kind{Created, BulkCreated, Deleted, Updated}

// ChangeEvent is published once per successful top-level mutation.
type ChangeEvent struct {
	Name           string
	Kind           Kind
	Node           map[string]interface{}
	Nodes          []map[string]interface{}
	PreviousValues map[string]interface{}
	UpdatedFields  []string
	CorrelationID  string
	At             time.Time
}

// Predicate filters events for a single subscription.
type Predicate func(ChangeEvent) bool

// Observer receives delivery statistics. EngineMetrics implements it.
type Observer interface {
	EventPublished(ctx context.Context, name string, delivered int)
	EventDropped(ctx context.Context, name string)
}

// DefaultBuffer is the per-subscription channel capacity.
const DefaultBuffer = 64

// Bus fans events out to subscribers. The zero value is not usable; call New.
type Bus struct {
	mu       sync.RWMutex
	subs     map[string]map[uint64]*Subscription
	nextID   uint64
	buffer   int
	observer Observer
	closed   bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithBuffer sets the per-subscription channel capacity.
func WithBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithObserver attaches a delivery observer.
func WithObserver(o Observer) Option {
	return func(b *Bus) {
		b.observer = o
	}
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[string]map[uint64]*Subscription),
		buffer: DefaultBuffer,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers ev to every matching subscriber without blocking.
// Subscribers whose buffer is full miss the event. It returns the number of
// subscribers that received it.
func (b *Bus) Publish(ctx context.Context, name string, ev ChangeEvent) int {
	if ev.Name == "" {
		ev.Name = name
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0
	}

	delivered := 0
	for _, sub := range b.subs[name] {
		if sub.filter != nil && !sub.filter(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
			delivered++
		default:
			if b.observer != nil {
				b.observer.EventDropped(ctx, name)
			}
		}
	}
	if b.observer != nil {
		b.observer.EventPublished(ctx, name, delivered)
	}
	return delivered
}

// Subscribe registers interest in the given event names. A nil filter
// accepts every event.
func (b *Bus) Subscribe(names []string, filter Predicate) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		names:  append([]string(nil), names...),
		filter: filter,
		ch:     make(chan ChangeEvent, b.buffer),
		bus:    b,
	}
	if b.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}
	for _, name := range names {
		if b.subs[name] == nil {
			b.subs[name] = make(map[uint64]*Subscription)
		}
		b.subs[name][sub.id] = sub
	}
	return sub
}

// Close detaches every subscriber and closes their channels. Later
// publishes are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, byID := range b.subs {
		for _, sub := range byID {
			sub.closeLocked()
		}
	}
	b.subs = make(map[string]map[uint64]*Subscription)
}

// SubscriberCount returns the number of live subscriptions for name.
func (b *Bus) SubscriberCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}

// Subscription is a live registration on a Bus.
type Subscription struct {
	id     uint64
	names  []string
	filter Predicate
	ch     chan ChangeEvent
	bus    *Bus
	closed bool
}

// C returns the event channel. It is closed when the subscription or the bus
// is closed.
func (s *Subscription) C() <-chan ChangeEvent {
	return s.ch
}

// Close unregisters the subscription. It is safe to call more than once and
// concurrently with Publish.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.closeLocked()
}

func (s *Subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	for _, name := range s.names {
		if byID, ok := s.bus.subs[name]; ok {
			delete(byID, s.id)
			if len(byID) == 0 {
				delete(s.bus.subs, name)
			}
		}
	}
	close(s.ch)
}
