package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opencode-ai/chatsync/internal/event"
	"github.com/opencode-ai/chatsync/internal/logging"
	"github.com/opencode-ai/chatsync/internal/mcp"
	"github.com/opencode-ai/chatsync/internal/provider"
	"github.com/opencode-ai/chatsync/internal/storage"
	"github.com/opencode-ai/chatsync/pkg/types"
)

// ToolProvisioner supplies the tools of one tool phase.
type ToolProvisioner interface {
	Acquire(ctx context.Context) (*mcp.ToolSet, error)
}

// Speaker turns finished assistant text into stored audio.
type Speaker interface {
	// Speak synthesizes text and stores it under messageID.
	Speak(ctx context.Context, messageID, text string) error
	// Remove deletes stored audio. Unknown ids are ignored.
	Remove(messageIDs ...string) error
}

// Publisher fans chat events out to live observers.
type Publisher interface {
	Publish(e event.Event) error
}

// Options configures a Service. Only Store and Models are required.
type Options struct {
	Store  storage.Gateway
	Models *provider.ModelCache

	Tools     ToolProvisioner
	Speaker   Speaker
	Publisher Publisher

	// Serialize queues concurrent exchanges on the same session.
	Serialize bool

	DefaultProvider string
	DefaultModel    string
	SystemPrompt    string

	// RetryInterval is the initial backoff interval when opening a stream.
	RetryInterval time.Duration
	// Now overrides the clock used for the world context.
	Now func() time.Time
}

// Service owns chat sessions: it validates chat requests, starts exchanges
// and serves the stored contexts.
type Service struct {
	opts Options
	lock *Lock
}

// NewService creates a session service.
func NewService(opts Options) *Service {
	if opts.DefaultProvider == "" {
		opts.DefaultProvider = string(provider.Groq)
	}
	if opts.DefaultModel == "" {
		opts.DefaultModel = "llama-3.1-8b-instant"
	}
	if opts.RetryInterval == 0 {
		opts.RetryInterval = RetryInitialInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Service{opts: opts}
	if opts.Serialize {
		s.lock = NewLock()
	}
	return s
}

// ChatRequest is the body of a chat request.
type ChatRequest = types.ChatRequest

// Prepare validates req and returns an exchange ready to run. It fails with
// ErrEmptyMessage, provider.ErrModelNotFound or ErrSessionNotFound before
// anything is written or stored. The caller must Run or Close the exchange.
func (s *Service) Prepare(ctx context.Context, req ChatRequest) (*Exchange, error) {
	if req.Message == "" {
		return nil, ErrEmptyMessage
	}
	providerName := req.Provider
	if providerName == "" {
		providerName = s.opts.DefaultProvider
	}
	modelID := req.Model
	if modelID == "" {
		modelID = s.opts.DefaultModel
	}

	model, err := s.opts.Models.Resolve(ctx, providerName, modelID)
	if err != nil {
		return nil, err
	}

	x := newExchange(s, model, types.NewUserMessage(req.Message))
	x.user.Provider = providerName
	x.user.Model = modelID

	if req.ChatID == "" {
		x.ctx = types.NewContext(types.NewSessionID())
		x.created = true
		return x, nil
	}

	if !storage.ValidID(req.ChatID) {
		return nil, ErrInvalidID
	}

	if s.lock != nil {
		release, err := s.lock.Acquire(ctx, req.ChatID)
		if err != nil {
			return nil, err
		}
		x.release = release
	}

	c, err := s.Get(ctx, req.ChatID)
	if err != nil {
		x.Close()
		return nil, err
	}
	x.ctx = c
	return x, nil
}

// Get returns the stored context of id.
func (s *Service) Get(ctx context.Context, id string) (types.Context, error) {
	c, err := s.opts.Store.Read(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return types.Context{}, ErrSessionNotFound
	}
	if errors.Is(err, storage.ErrInvalidID) {
		return types.Context{}, ErrInvalidID
	}
	if err != nil {
		return types.Context{}, fmt.Errorf("read chat %s: %w", id, err)
	}
	return c, nil
}

// List returns the stored chat ids, most recently updated first.
func (s *Service) List(ctx context.Context) ([]string, error) {
	ids, err := s.opts.Store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return ids, nil
}

// Delete removes a chat and its audio. Unknown ids are not an error.
func (s *Service) Delete(ctx context.Context, id string) error {
	if !storage.ValidID(id) {
		return ErrInvalidID
	}

	if s.opts.Speaker != nil {
		if c, err := s.opts.Store.Read(ctx, id); err == nil {
			ids := make([]string, 0, len(c.History))
			for _, m := range c.History {
				if m.HasAudio {
					ids = append(ids, m.ID)
				}
			}
			if err := s.opts.Speaker.Remove(ids...); err != nil {
				logging.Warn().Err(err).Str("sessionID", id).Msg("Failed to remove audio")
			}
		}
	}

	if err := s.opts.Store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete chat %s: %w", id, err)
	}

	if s.opts.Publisher != nil {
		if err := s.opts.Publisher.Publish(event.Event{Type: event.ChatDeleted, Update: types.NewUpdate(id)}); err != nil {
			logging.Debug().Err(err).Str("sessionID", id).Msg("Publish delete failed")
		}
	}
	return nil
}

// Models returns the model catalog.
func (s *Service) Models(ctx context.Context) (types.ModelCatalog, error) {
	return s.opts.Models.Catalog(ctx)
}
