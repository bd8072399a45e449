package session

import (
	"context"
	"sync"
)

// Lock serializes work per session id. Waiters are served in arrival order.
type Lock struct {
	mu     sync.Mutex
	active map[string]*lockState
}

type lockState struct {
	waiters []chan struct{}
}

// NewLock creates an empty per-session lock.
func NewLock() *Lock {
	return &Lock{active: make(map[string]*lockState)}
}

// Acquire blocks until the caller holds id or ctx is done. The returned
// release must be called exactly once.
func (l *Lock) Acquire(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	state, busy := l.active[id]
	if !busy {
		l.active[id] = &lockState{}
		l.mu.Unlock()
		return l.releaser(id), nil
	}

	waiter := make(chan struct{})
	state.waiters = append(state.waiters, waiter)
	l.mu.Unlock()

	select {
	case <-waiter:
		return l.releaser(id), nil
	case <-ctx.Done():
		l.mu.Lock()
		defer l.mu.Unlock()
		select {
		case <-waiter:
			// Handed over concurrently with cancellation; pass it on.
			l.handOff(id)
		default:
			l.removeWaiter(id, waiter)
		}
		return nil, ctx.Err()
	}
}

// Busy reports whether id is currently held.
func (l *Lock) Busy(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.active[id]
	return ok
}

func (l *Lock) releaser(id string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.handOff(id)
		})
	}
}

// handOff passes ownership of id to the next waiter. Callers hold l.mu.
func (l *Lock) handOff(id string) {
	state := l.active[id]
	if state == nil {
		return
	}
	if len(state.waiters) == 0 {
		delete(l.active, id)
		return
	}
	next := state.waiters[0]
	state.waiters = state.waiters[1:]
	close(next)
}

func (l *Lock) removeWaiter(id string, waiter chan struct{}) {
	state := l.active[id]
	if state == nil {
		return
	}
	for i, w := range state.waiters {
		if w == waiter {
			state.waiters = append(state.waiters[:i], state.waiters[i+1:]...)
			return
		}
	}
}
