package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/opencode-ai/chatsync/internal/logging"
	"github.com/opencode-ai/chatsync/pkg/types"
)

var openAIModels = []string{
	"o3-mini-2025-01-31",
	"o3-mini",
	"o1-preview-2024-09-12",
	"gpt-4o-mini-search-preview",
	"gpt-4o-mini-search-preview-2025-03-11",
	"gpt-4o-2024-11-20",
	"gpt-3.5-turbo-0125",
	"gpt-4o-2024-05-13",
	"gpt-3.5-turbo-16k",
	"o1-preview",
	"gpt-4o-search-preview",
	"gpt-4o-search-preview-2025-03-11",
	"o1-2024-12-17",
	"o1",
	"o1-pro",
	"o1-pro-2025-03-19",
	"gpt-4o",
	"gpt-4o-mini",
	"gpt-4o-2024-08-06",
	"gpt-4o-mini-2024-07-18",
	"o1-mini",
	"o1-mini-2024-09-12",
}

var openRouterModels = []string{
	"openai/gpt-4o-mini",
	"anthropic/claude-3.5-sonnet",
	"google/gemini-2.0-flash-001",
	"meta-llama/llama-3.3-70b-instruct",
	"deepseek/deepseek-chat",
}

var anthropicModels = []string{
	"claude-sonnet-4-20250514",
	"claude-3-7-sonnet-20250219",
	"claude-3-5-haiku-20241022",
}

// groqFallbackModels is served when the live listing is unavailable.
var groqFallbackModels = []string{
	"llama-3.1-8b-instant",
	"llama-3.3-70b-versatile",
	"meta-llama/llama-4-scout-17b-16e-instruct",
	"meta-llama/llama-4-maverick-17b-128e-instruct",
	"qwen/qwen3-32b",
	"openai/gpt-oss-120b",
	"openai/gpt-oss-20b",
	"moonshotai/kimi-k2-instruct",
	"gemma2-9b-it",
}

// groqToolModels are the groq models known to handle tool calls.
var groqToolModels = map[string]bool{
	"llama-3.1-8b-instant":                          true,
	"llama-3.3-70b-versatile":                       true,
	"meta-llama/llama-4-scout-17b-16e-instruct":     true,
	"meta-llama/llama-4-maverick-17b-128e-instruct": true,
	"qwen/qwen3-32b":                                true,
	"openai/gpt-oss-120b":                           true,
	"openai/gpt-oss-20b":                            true,
	"moonshotai/kimi-k2-instruct":                   true,
}

func staticCatalog(ids []string, tools bool) []types.ModelDescriptor {
	out := make([]types.ModelDescriptor, len(ids))
	for i, id := range ids {
		out[i] = types.ModelDescriptor{ID: id, DisplayName: id, SupportsTools: tools}
	}
	return out
}

func groqCatalog(ids []string) []types.ModelDescriptor {
	out := make([]types.ModelDescriptor, 0, len(ids))
	for _, id := range ids {
		out = append(out, types.ModelDescriptor{ID: id, DisplayName: id, SupportsTools: groqToolModels[id]})
	}
	return out
}

// groqModels lists chat models from the OpenAI-compatible /models endpoint,
// falling back to a static list on any failure.
func groqModels(ctx context.Context, client *http.Client, baseURL, apiKey string) []types.ModelDescriptor {
	ids, err := listOpenAIModels(ctx, client, baseURL, apiKey)
	if err != nil || len(ids) == 0 {
		logging.Warn().Err(err).Str("provider", string(Groq)).Msg("Model listing unavailable, using fallback catalog")
		return groqCatalog(groqFallbackModels)
	}
	return groqCatalog(ids)
}

func listOpenAIModels(ctx context.Context, client *http.Client, baseURL, apiKey string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list models: status %d", resp.StatusCode)
	}

	var body struct {
		Data []struct {
			ID     string `json:"id"`
			Active *bool  `json:"active"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	var ids []string
	for _, m := range body.Data {
		if m.Active != nil && !*m.Active {
			continue
		}
		if !isChatModel(m.ID) {
			continue
		}
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// isChatModel filters out speech and moderation models.
func isChatModel(id string) bool {
	for _, skip := range []string{"whisper", "tts", "guard", "distil"} {
		if strings.Contains(id, skip) {
			return false
		}
	}
	return true
}
