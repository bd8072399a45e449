package provider

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/opencode-ai/chatsync/pkg/types"
)

// Default endpoints of the OpenAI-compatible kinds.
const (
	GroqBaseURL       = "https://api.groq.com/openai/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// OpenAICompatible serves every kind that speaks the OpenAI chat
// completions protocol: groq, openai and openrouter.
type OpenAICompatible struct {
	kind    Kind
	apiKey  string
	baseURL string
	client  *http.Client

	mu     sync.Mutex
	models map[string]model.ToolCallingChatModel
}

// NewOpenAICompatible creates a provider of the given kind.
func NewOpenAICompatible(kind Kind, cfg types.ProviderConfig) (*OpenAICompatible, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: API key is required", kind)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		switch kind {
		case Groq:
			baseURL = GroqBaseURL
		case OpenRouter:
			baseURL = OpenRouterBaseURL
		case OpenAI:
			// eino-ext defaults to api.openai.com
		default:
			return nil, fmt.Errorf("%s is not OpenAI-compatible", kind)
		}
	}
	return &OpenAICompatible{
		kind:    kind,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  http.DefaultClient,
		models:  make(map[string]model.ToolCallingChatModel),
	}, nil
}

// Kind implements Provider.
func (p *OpenAICompatible) Kind() Kind { return p.kind }

// Models implements Provider.
func (p *OpenAICompatible) Models(ctx context.Context) ([]types.ModelDescriptor, error) {
	switch p.kind {
	case Groq:
		return groqModels(ctx, p.client, p.baseURL, p.apiKey), nil
	case OpenAI:
		return staticCatalog(openAIModels, false), nil
	default:
		return staticCatalog(openRouterModels, false), nil
	}
}

// ChatModel implements Provider.
func (p *OpenAICompatible) ChatModel(ctx context.Context, modelID string) (model.ToolCallingChatModel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cm, ok := p.models[modelID]; ok {
		return cm, nil
	}

	maxTokens := DefaultParams.MaxTokens
	temperature := DefaultParams.Temperature
	cfg := &openai.ChatModelConfig{
		APIKey:      p.apiKey,
		BaseURL:     p.baseURL,
		Model:       modelID,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
		HTTPClient:  p.client,
	}
	if p.kind.Capabilities().Penalties {
		presence := DefaultParams.PresencePenalty
		frequency := DefaultParams.FrequencyPenalty
		cfg.PresencePenalty = &presence
		cfg.FrequencyPenalty = &frequency
	}

	cm, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: create chat model %s: %w", p.kind, modelID, err)
	}
	p.models[modelID] = cm
	return cm, nil
}
