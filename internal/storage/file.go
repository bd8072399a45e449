package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/opencode-ai/chatsync/pkg/types"
)

// FileGateway stores each chat as <basePath>/chat/<id>.json.
type FileGateway struct {
	basePath string
	mu       sync.Mutex
	locks    map[string]*FileLock
}

var _ Gateway = (*FileGateway)(nil)

// NewFileGateway creates a FileGateway rooted at basePath.
func NewFileGateway(basePath string) *FileGateway {
	return &FileGateway{
		basePath: basePath,
		locks:    make(map[string]*FileLock),
	}
}

func (g *FileGateway) dir() string {
	return filepath.Join(g.basePath, "chat")
}

func (g *FileGateway) file(id string) string {
	return filepath.Join(g.dir(), id+".json")
}

// Read loads the chat with the given id.
func (g *FileGateway) Read(ctx context.Context, id string) (types.Context, error) {
	if !ValidID(id) {
		return types.Context{}, ErrNotFound
	}

	data, err := os.ReadFile(g.file(id))
	if err != nil {
		if os.IsNotExist(err) {
			return types.Context{}, ErrNotFound
		}
		return types.Context{}, fmt.Errorf("failed to read chat: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return types.Context{}, fmt.Errorf("failed to unmarshal chat %s: %w", id, err)
	}
	if rec.Context.History == nil {
		rec.Context.History = []types.Message{}
	}
	return rec.Context, nil
}

// Write stores c atomically: the document is written to a temp file and
// renamed over the previous version while holding the file lock.
func (g *FileGateway) Write(ctx context.Context, c types.Context) error {
	if !ValidID(c.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidID, c.ID)
	}
	if err := os.MkdirAll(g.dir(), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	filePath := g.file(c.ID)
	lock := g.getLock(filePath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(record{UpdatedAt: time.Now().UnixNano(), Context: c}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// Delete removes the chat file.
func (g *FileGateway) Delete(ctx context.Context, id string) error {
	if !ValidID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	filePath := g.file(id)
	lock := g.getLock(filePath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Unlock()

	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	return nil
}

// List returns chat ids ordered by the time they were last written.
func (g *FileGateway) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(g.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	items := make([]listing, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(g.dir(), name))
		if err != nil {
			continue
		}
		var rec struct {
			UpdatedAt int64 `json:"updatedAt"`
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		items = append(items, listing{id: strings.TrimSuffix(name, ".json"), updatedAt: rec.UpdatedAt})
	}
	return sortListing(items), nil
}

// Close is a no-op for the file backend.
func (g *FileGateway) Close() error {
	return nil
}

func (g *FileGateway) getLock(filePath string) *FileLock {
	g.mu.Lock()
	defer g.mu.Unlock()

	lock, ok := g.locks[filePath]
	if !ok {
		lock = NewFileLock(filePath)
		g.locks[filePath] = lock
	}
	return lock
}
