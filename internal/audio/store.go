package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/opencode-ai/chatsync/internal/storage"
)

// ErrNotFound is returned for a message without stored audio.
var ErrNotFound = errors.New("audio not found")

// Store keeps one MP3 file per message id in a directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir. The directory is created on the
// first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".mp3")
}

// Write stores the audio read from r under id, replacing any previous file.
func (s *Store) Write(id string, r io.Reader) (int64, error) {
	if !storage.ValidID(id) {
		return 0, fmt.Errorf("%w: %q", storage.ErrInvalidID, id)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create audio directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, id+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create audio file: %w", err)
	}
	n, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("failed to write audio: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(id)); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("failed to store audio: %w", err)
	}
	return n, nil
}

// Open returns the stored audio of id.
func (s *Store) Open(id string) (*os.File, error) {
	if !storage.ValidID(id) {
		return nil, ErrNotFound
	}
	f, err := os.Open(s.path(id))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return f, err
}

// Remove deletes the audio of every id. Missing files are ignored.
func (s *Store) Remove(ids ...string) error {
	var errs []error
	for _, id := range ids {
		if !storage.ValidID(id) {
			continue
		}
		if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
