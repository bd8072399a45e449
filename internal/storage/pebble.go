package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/opencode-ai/chatsync/internal/logging"
	"github.com/opencode-ai/chatsync/pkg/types"
)

const chatPrefix = "chat:"

// PebbleGateway stores chats in a pebble key-value store under "chat:<id>".
type PebbleGateway struct {
	db *pebble.DB
}

var _ Gateway = (*PebbleGateway)(nil)

// NewPebbleGateway opens (or creates) the store at path.
func NewPebbleGateway(path string) (*PebbleGateway, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logging.Error().Err(err).Str("path", path).Msg("pebble open failed")
		return nil, fmt.Errorf("open pebble store: %w", err)
	}
	logging.Debug().Str("path", path).Msg("pebble opened")
	return &PebbleGateway{db: db}, nil
}

func chatKey(id string) []byte {
	return []byte(chatPrefix + id)
}

// Read loads the chat with the given id.
func (g *PebbleGateway) Read(ctx context.Context, id string) (types.Context, error) {
	value, closer, err := g.db.Get(chatKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return types.Context{}, ErrNotFound
	}
	if err != nil {
		return types.Context{}, fmt.Errorf("read chat %s: %w", id, err)
	}
	defer closer.Close()

	var rec record
	if err := json.Unmarshal(value, &rec); err != nil {
		return types.Context{}, fmt.Errorf("decode chat %s: %w", id, err)
	}
	if rec.Context.History == nil {
		rec.Context.History = []types.Message{}
	}
	return rec.Context, nil
}

// Write stores c with a synced write.
func (g *PebbleGateway) Write(ctx context.Context, c types.Context) error {
	if !ValidID(c.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidID, c.ID)
	}
	data, err := json.Marshal(record{UpdatedAt: time.Now().UnixNano(), Context: c})
	if err != nil {
		return fmt.Errorf("encode chat: %w", err)
	}
	if err := g.db.Set(chatKey(c.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("write chat %s: %w", c.ID, err)
	}
	return nil
}

// Delete removes the chat key.
func (g *PebbleGateway) Delete(ctx context.Context, id string) error {
	if err := g.db.Delete(chatKey(id), pebble.Sync); err != nil {
		return fmt.Errorf("delete chat %s: %w", id, err)
	}
	return nil
}

// List scans the chat prefix and returns ids, most recently written first.
func (g *PebbleGateway) List(ctx context.Context) ([]string, error) {
	prefix := []byte(chatPrefix)
	iter, err := g.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer iter.Close()

	var items []listing
	for iter.First(); iter.Valid(); iter.Next() {
		var rec struct {
			UpdatedAt int64 `json:"updatedAt"`
		}
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		id := string(iter.Key()[len(prefix):])
		items = append(items, listing{id: id, updatedAt: rec.UpdatedAt})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return sortListing(items), nil
}

// Close closes the store.
func (g *PebbleGateway) Close() error {
	if g.db == nil {
		return nil
	}
	err := g.db.Close()
	g.db = nil
	return err
}

// prefixEnd returns the smallest key greater than every key with prefix p.
func prefixEnd(p []byte) []byte {
	end := append([]byte(nil), p...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
