package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/opencode-ai/chatsync/internal/notify"
	"github.com/opencode-ai/chatsync/pkg/types"
	"github.com/opencode-ai/chatsync/pkg/wire"
)

// ErrUnknownSession is returned by Apply for an update of a chat that is
// neither mirrored nor known to the server.
var ErrUnknownSession = errors.New("unknown session")

// Refresher lists the chats the server holds.
type Refresher interface {
	Refresh(ctx context.Context) (map[string]types.Context, error)
}

// Reassembler mirrors server contexts from the updates it is fed.
type Reassembler struct {
	mu        sync.Mutex
	known     map[string]types.Context
	refresher Refresher
	changes   *notify.Notifier[types.Context]
}

// NewReassembler creates an empty mirror set. refresher may be nil.
func NewReassembler(refresher Refresher) *Reassembler {
	return &Reassembler{
		known:     make(map[string]types.Context),
		refresher: refresher,
		changes:   notify.New(types.Context{}),
	}
}

// Apply merges u into the mirror of u.SessionID and returns the result.
//
// An unknown session triggers one refresh. If the server does not know it
// either, own decides: the update came from this client's own chat request,
// which created the session, so an empty mirror is seeded. Otherwise Apply
// returns ErrUnknownSession.
func (r *Reassembler) Apply(ctx context.Context, u types.Update, own bool) (types.Context, error) {
	if u.SessionID == "" {
		return types.Context{}, fmt.Errorf("%w: update without session id", ErrUnknownSession)
	}

	r.mu.Lock()
	_, ok := r.known[u.SessionID]
	r.mu.Unlock()

	if !ok {
		if err := r.refresh(ctx); err != nil {
			return types.Context{}, err
		}
		r.mu.Lock()
		_, ok = r.known[u.SessionID]
		if !ok && own {
			r.known[u.SessionID] = types.NewContext(u.SessionID)
			ok = true
		}
		r.mu.Unlock()
		if !ok {
			return types.Context{}, fmt.Errorf("%w: %s", ErrUnknownSession, u.SessionID)
		}
	}

	r.mu.Lock()
	merged := types.Merge(r.known[u.SessionID], u)
	r.known[u.SessionID] = merged
	r.mu.Unlock()

	r.changes.Set(merged)
	return merged, nil
}

func (r *Reassembler) refresh(ctx context.Context) error {
	if r.refresher == nil {
		return nil
	}
	chats, err := r.refresher.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh chats: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range chats {
		if _, ok := r.known[id]; !ok {
			r.known[id] = c
		}
	}
	return nil
}

// Consume applies every frame of body in order. Updates of unknown
// sessions are skipped; other errors stop it.
func (r *Reassembler) Consume(ctx context.Context, body io.Reader, own bool) error {
	var applyErr error
	err := wire.ReadAll(ctx, body, func(u types.Update) {
		if applyErr != nil {
			return
		}
		if _, err := r.Apply(ctx, u, own); err != nil && !errors.Is(err, ErrUnknownSession) {
			applyErr = err
		}
	})
	if applyErr != nil {
		return applyErr
	}
	return err
}

// Get returns the mirror of id.
func (r *Reassembler) Get(id string) (types.Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.known[id]
	if !ok {
		return types.Context{}, false
	}
	return c.Clone(), true
}

// Known returns the ids of every mirrored chat.
func (r *Reassembler) Known() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.known))
	for id := range r.known {
		ids = append(ids, id)
	}
	return ids
}

// Forget drops the mirror of id.
func (r *Reassembler) Forget(id string) {
	r.mu.Lock()
	delete(r.known, id)
	r.mu.Unlock()
}

// Subscribe calls fn with every mirror that changes, synchronously from
// Apply.
func (r *Reassembler) Subscribe(fn notify.Func[types.Context]) notify.Subscription {
	return r.changes.Subscribe(fn)
}
