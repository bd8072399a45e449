package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/opencode-ai/chatsync/pkg/types"
)

// ArkProvider implements Provider for Volcengine ARK. ARK addresses models
// by endpoint id, so the catalog holds only the configured endpoint.
type ArkProvider struct {
	apiKey   string
	baseURL  string
	endpoint string

	mu     sync.Mutex
	models map[string]model.ToolCallingChatModel
}

// NewArkProvider creates a new ARK provider. cfg.Model names the endpoint.
func NewArkProvider(cfg types.ProviderConfig) (*ArkProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: API key is required", Ark)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%s: model (endpoint id) is required", Ark)
	}
	return &ArkProvider{
		apiKey:   cfg.APIKey,
		baseURL:  cfg.BaseURL,
		endpoint: cfg.Model,
		models:   make(map[string]model.ToolCallingChatModel),
	}, nil
}

// Kind implements Provider.
func (p *ArkProvider) Kind() Kind { return Ark }

// Models implements Provider.
func (p *ArkProvider) Models(ctx context.Context) ([]types.ModelDescriptor, error) {
	return []types.ModelDescriptor{{
		ID:            p.endpoint,
		DisplayName:   p.endpoint,
		SupportsTools: true,
	}}, nil
}

// ChatModel implements Provider.
func (p *ArkProvider) ChatModel(ctx context.Context, modelID string) (model.ToolCallingChatModel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cm, ok := p.models[modelID]; ok {
		return cm, nil
	}

	maxTokens := DefaultParams.MaxTokens
	temperature := DefaultParams.Temperature
	cm, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		APIKey:      p.apiKey,
		Model:       modelID,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
		BaseURL:     p.baseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: create chat model %s: %w", Ark, modelID, err)
	}
	p.models[modelID] = cm
	return cm, nil
}
