// Package providertest provides test doubles for the provider package: an
// httptest server speaking the OpenAI chat completions protocol and
// in-memory fakes of Provider and eino chat models.
package providertest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Reply is a canned completion.
type Reply struct {
	Content   string
	ToolCalls []ToolCall
}

// ToolCall is a function call returned in a non-streaming reply.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Request records one completion request.
type Request struct {
	Path   string
	Stream bool
	Body   map[string]any
	Header http.Header
}

// LLMServer mimics an OpenAI-compatible API with deterministic responses.
// Replies are matched by a case-insensitive substring of the last user
// message; Fallback answers everything else.
type LLMServer struct {
	server *httptest.Server

	Replies  map[string]Reply
	Fallback string
	Models   []string
	// ChunkDelay is slept between streamed chunks.
	ChunkDelay time.Duration

	mu       sync.Mutex
	requests []Request
	seq      atomic.Int64
}

// NewLLMServer starts a mock server. Configure it before issuing requests.
func NewLLMServer() *LLMServer {
	m := &LLMServer{
		Replies:  make(map[string]Reply),
		Fallback: "Hello from the mock model.",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", m.handleChatCompletions)
	mux.HandleFunc("/v1/chat/completions", m.handleChatCompletions)
	mux.HandleFunc("/models", m.handleModels)
	mux.HandleFunc("/v1/models", m.handleModels)

	m.server = httptest.NewServer(mux)
	return m
}

// URL returns the base URL to configure as a provider's baseURL.
func (m *LLMServer) URL() string {
	return m.server.URL
}

// Close shuts down the server.
func (m *LLMServer) Close() {
	m.server.Close()
}

// Requests returns a copy of the recorded completion requests.
func (m *LLMServer) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

func (m *LLMServer) handleModels(w http.ResponseWriter, r *http.Request) {
	data := make([]map[string]any, len(m.Models))
	for i, id := range m.Models {
		data[i] = map[string]any{"id": id, "object": "model", "active": true}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
}

func (m *LLMServer) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req map[string]any
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	stream, _ := req["stream"].(bool)

	m.mu.Lock()
	m.requests = append(m.requests, Request{Path: r.URL.Path, Stream: stream, Body: req, Header: r.Header.Clone()})
	m.mu.Unlock()

	reply := m.find(lastUserPrompt(req))
	if stream {
		m.writeStream(w, reply)
		return
	}
	m.writeCompletion(w, reply)
}

func lastUserPrompt(req map[string]any) string {
	messages, _ := req["messages"].([]any)
	for i := len(messages) - 1; i >= 0; i-- {
		msg, ok := messages[i].(map[string]any)
		if !ok {
			continue
		}
		if role, _ := msg["role"].(string); role == "user" {
			content, _ := msg["content"].(string)
			return content
		}
	}
	return ""
}

func (m *LLMServer) find(prompt string) Reply {
	prompt = strings.ToLower(prompt)
	for key, reply := range m.Replies {
		if strings.Contains(prompt, strings.ToLower(key)) {
			return reply
		}
	}
	return Reply{Content: m.Fallback}
}

func (m *LLMServer) id() string {
	return fmt.Sprintf("chatcmpl-mock-%d", m.seq.Add(1))
}

func (m *LLMServer) writeCompletion(w http.ResponseWriter, reply Reply) {
	message := map[string]any{
		"role":    "assistant",
		"content": reply.Content,
	}
	finish := "stop"
	if len(reply.ToolCalls) > 0 {
		calls := make([]map[string]any, len(reply.ToolCalls))
		for i, tc := range reply.ToolCalls {
			calls[i] = map[string]any{
				"id":   tc.ID,
				"type": "function",
				"function": map[string]any{
					"name":      tc.Name,
					"arguments": tc.Arguments,
				},
			}
		}
		message["tool_calls"] = calls
		finish = "tool_calls"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":      m.id(),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   "mock",
		"choices": []map[string]any{{
			"index":         0,
			"message":       message,
			"finish_reason": finish,
		}},
		"usage": map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": 5,
			"total_tokens":      15,
		},
	})
}

// writeStream sends the reply word by word as server-sent events.
func (m *LLMServer) writeStream(w http.ResponseWriter, reply Reply) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)

	send := func(delta map[string]any, finish any) {
		data, _ := json.Marshal(map[string]any{
			"id":      m.id(),
			"object":  "chat.completion.chunk",
			"created": time.Now().Unix(),
			"model":   "mock",
			"choices": []map[string]any{{
				"index":         0,
				"delta":         delta,
				"finish_reason": finish,
			}},
		})
		w.Write([]byte("data: " + string(data) + "\n\n"))
		if flusher != nil {
			flusher.Flush()
		}
	}

	send(map[string]any{"role": "assistant"}, nil)
	words := strings.Fields(reply.Content)
	for i, word := range words {
		if i < len(words)-1 {
			word += " "
		}
		send(map[string]any{"content": word}, nil)
		if m.ChunkDelay > 0 {
			time.Sleep(m.ChunkDelay)
		}
	}
	send(map[string]any{}, "stop")
	w.Write([]byte("data: [DONE]\n\n"))
	if flusher != nil {
		flusher.Flush()
	}
}
