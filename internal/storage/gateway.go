// Package storage persists chat contexts.
//
// Every backend implements Gateway. The file backend keeps one JSON document
// per chat, the sqlite and pebble backends keep the same document as a row
// or a key.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opencode-ai/chatsync/pkg/types"
)

var (
	// ErrNotFound is returned by Read for unknown ids.
	ErrNotFound = errors.New("not found")
	// ErrInvalidID is returned for ids that cannot name a chat.
	ErrInvalidID = errors.New("invalid chat id")
)

// Gateway is durable storage for chat contexts keyed by session id.
type Gateway interface {
	// Read returns the stored context or ErrNotFound.
	Read(ctx context.Context, id string) (types.Context, error)
	// Write stores c, replacing any previous version.
	Write(ctx context.Context, c types.Context) error
	// Delete removes the context. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
	// List returns the stored ids, most recently written first.
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Drivers accepted by Open.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverPebble = "pebble"
)

// Open creates the gateway selected by cfg.Driver rooted at cfg.Path.
func Open(cfg types.StorageConfig) (Gateway, error) {
	switch cfg.Driver {
	case DriverFile, "":
		return NewFileGateway(cfg.Path), nil
	case DriverSQLite:
		dsn, err := SQLiteDSNForFile(filepath.Join(cfg.Path, "chats.db"))
		if err != nil {
			return nil, err
		}
		return NewSQLiteGateway(dsn)
	case DriverPebble:
		return NewPebbleGateway(filepath.Join(cfg.Path, "pebble"))
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// ValidID reports whether id is usable as a storage key.
func ValidID(id string) bool {
	if id == "" || len(id) > 128 || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\:`+"\x00")
}

// record is the stored form of a context.
type record struct {
	UpdatedAt int64         `json:"updatedAt"`
	Context   types.Context `json:"context"`
}

type listing struct {
	id        string
	updatedAt int64
}

// sortListing orders newest first, then by id.
func sortListing(items []listing) []string {
	sort.Slice(items, func(i, j int) bool {
		if items[i].updatedAt != items[j].updatedAt {
			return items[i].updatedAt > items[j].updatedAt
		}
		return items[i].id < items[j].id
	})
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.id
	}
	return ids
}
