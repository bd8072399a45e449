// Package notify provides a synchronous, single-value observable.
//
// A Notifier holds a current value. Set replaces it and calls every
// registered subscriber, in registration order, on the caller's goroutine
// before returning. Nothing is buffered: a subscriber only sees values set
// while it is registered.
package notify

import (
	"sync"
	"sync/atomic"
)

// Func receives the new value and whether it differs from the previous one.
type Func[T any] func(v T, changed bool)

// Subscription identifies a registered subscriber.
type Subscription struct {
	id     uint64
	cancel func(uint64)
	once   *sync.Once
}

// Cancel unsubscribes. Calling it more than once is a no-op.
func (s Subscription) Cancel() {
	if s.cancel == nil {
		return
	}
	s.once.Do(func() { s.cancel(s.id) })
}

type subscriberEntry[T any] struct {
	id uint64
	fn Func[T]
}

// Notifier is a single-slot observable value.
type Notifier[T any] struct {
	mu     sync.Mutex
	value  T
	subs   []subscriberEntry[T]
	nextID uint64
	equal  func(a, b T) bool
}

// Option configures a Notifier.
type Option[T any] func(*Notifier[T])

// WithEqual sets the function used to compute the changed flag.
// Without it every Set reports a change.
func WithEqual[T any](eq func(a, b T) bool) Option[T] {
	return func(n *Notifier[T]) { n.equal = eq }
}

// New creates a Notifier holding initial.
func New[T any](initial T, opts ...Option[T]) *Notifier[T] {
	n := &Notifier[T]{value: initial}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Value returns the current value.
func (n *Notifier[T]) Value() T {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.value
}

// Set replaces the value and delivers it to the current subscribers.
// Subscribers registered during delivery are not called for this value.
func (n *Notifier[T]) Set(v T) {
	n.mu.Lock()
	changed := n.equal == nil || !n.equal(n.value, v)
	n.value = v
	subs := make([]subscriberEntry[T], len(n.subs))
	copy(subs, n.subs)
	n.mu.Unlock()

	for _, s := range subs {
		if n.active(s.id) {
			s.fn(v, changed)
		}
	}
}

// Subscribe registers fn and returns its Subscription.
func (n *Notifier[T]) Subscribe(fn Func[T]) Subscription {
	id := atomic.AddUint64(&n.nextID, 1)

	n.mu.Lock()
	n.subs = append(n.subs, subscriberEntry[T]{id: id, fn: fn})
	n.mu.Unlock()

	return Subscription{id: id, cancel: n.unsubscribe, once: &sync.Once{}}
}

// Unsubscribe removes the subscriber registered as s.
func (n *Notifier[T]) Unsubscribe(s Subscription) {
	s.Cancel()
}

// Len returns the number of registered subscribers.
func (n *Notifier[T]) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

func (n *Notifier[T]) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i, entry := range n.subs {
		if entry.id == id {
			n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
			return
		}
	}
}

// active reports whether id is still subscribed, so a subscriber removed
// by an earlier subscriber during delivery is skipped.
func (n *Notifier[T]) active(id uint64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, entry := range n.subs {
		if entry.id == id {
			return true
		}
	}
	return false
}
