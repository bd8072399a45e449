package provider

import (
	"fmt"
	"strings"
	"sync"

	"github.com/opencode-ai/chatsync/internal/logging"
	"github.com/opencode-ai/chatsync/pkg/types"
)

// Registry holds the configured providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[Kind]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[Kind]Provider),
	}
}

// Register adds a provider, replacing any provider of the same kind.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.Kind()] = provider
}

// Get retrieves a provider by kind name.
func (r *Registry) Get(name string) (Provider, bool) {
	kind, ok := ParseKind(name)
	if !ok {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[kind]
	return p, ok
}

// List returns the registered providers in catalog order.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.providers))
	for _, k := range Kinds {
		if p, ok := r.providers[k]; ok {
			providers = append(providers, p)
		}
	}
	return providers
}

// ParseModelString parses "provider/model". Model ids may contain
// slashes themselves, so only the first one separates.
func ParseModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}

// InitializeProviders creates and registers every provider with an API key.
// A provider that fails to initialize is logged and skipped.
func InitializeProviders(config *types.Config) *Registry {
	registry := NewRegistry()

	for _, kind := range Kinds {
		cfg, ok := config.Providers[string(kind)]
		if !ok || cfg.APIKey == "" || cfg.Disable {
			continue
		}
		p, err := newProvider(kind, cfg)
		if err != nil {
			logging.Warn().Err(err).Str("provider", string(kind)).Msg("Provider not initialized")
			continue
		}
		registry.Register(p)
		logging.Debug().Str("provider", string(kind)).Msg("Provider registered")
	}

	return registry
}

func newProvider(kind Kind, cfg types.ProviderConfig) (Provider, error) {
	switch kind {
	case Groq, OpenAI, OpenRouter:
		return NewOpenAICompatible(kind, cfg)
	case Anthropic:
		return NewAnthropicProvider(cfg)
	case Ark:
		return NewArkProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown provider %q", kind)
	}
}
