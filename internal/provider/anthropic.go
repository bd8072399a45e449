package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"

	"github.com/opencode-ai/chatsync/pkg/types"
)

// AnthropicProvider implements Provider for Anthropic Claude models.
type AnthropicProvider struct {
	apiKey  string
	baseURL string

	mu     sync.Mutex
	models map[string]model.ToolCallingChatModel
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(cfg types.ProviderConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: API key is required", Anthropic)
	}
	return &AnthropicProvider{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		models:  make(map[string]model.ToolCallingChatModel),
	}, nil
}

// Kind implements Provider.
func (p *AnthropicProvider) Kind() Kind { return Anthropic }

// Models implements Provider.
func (p *AnthropicProvider) Models(ctx context.Context) ([]types.ModelDescriptor, error) {
	return staticCatalog(anthropicModels, true), nil
}

// ChatModel implements Provider.
func (p *AnthropicProvider) ChatModel(ctx context.Context, modelID string) (model.ToolCallingChatModel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cm, ok := p.models[modelID]; ok {
		return cm, nil
	}

	temperature := DefaultParams.Temperature
	cfg := &claude.Config{
		APIKey:      p.apiKey,
		Model:       modelID,
		MaxTokens:   DefaultParams.MaxTokens,
		Temperature: &temperature,
	}
	if p.baseURL != "" {
		cfg.BaseURL = &p.baseURL
	}

	cm, err := claude.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: create chat model %s: %w", Anthropic, modelID, err)
	}
	p.models[modelID] = cm
	return cm, nil
}
