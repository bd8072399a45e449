package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultsPage = `<html><body>
<div class="result results_links result--ad">
  <a class="result__a" href="https://ads.example.com">Sponsored</a>
</div>
<div class="result results_links">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&rut=abc">Documentation - The Go Programming Language</a>
  <a class="result__snippet">Go is an open source programming language.</a>
</div>
<div class="result results_links">
  <a class="result__a" href="https://pkg.go.dev/">Go Packages</a>
  <a class="result__snippet">Discover packages.</a>
</div>
<div class="result results_links">
  <a class="result__a" href="https://tour.golang.org/">A Tour of Go</a>
</div>
</body></html>`

func invoke(t *testing.T, opts Options, name string, args map[string]any) (*mcp.CallToolResult, string) {
	t.Helper()
	s := NewServer(opts)
	tool := s.GetTool(name)
	require.NotNil(t, tool, "tool %s should exist", name)

	request := mcp.CallToolRequest{}
	request.Params.Name = name
	request.Params.Arguments = args

	result, err := tool.Handler(context.Background(), request)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "content should be text")
	return result, text.Text
}

func searchBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("q") == "nothing" {
			w.Write([]byte(`<html><body></body></html>`))
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(resultsPage))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWebSearch(t *testing.T) {
	srv := searchBackend(t)

	result, text := invoke(t, Options{SearchURL: srv.URL}, "web_search", map[string]any{"query": "golang", "limit": 2})
	assert.False(t, result.IsError)
	assert.Contains(t, text, "1. Documentation - The Go Programming Language\n   https://go.dev/doc/")
	assert.Contains(t, text, "Go is an open source programming language.")
	assert.Contains(t, text, "2. Go Packages")
	assert.NotContains(t, text, "Sponsored")
	assert.NotContains(t, text, "Tour")
}

func TestWebSearch_NoResults(t *testing.T) {
	srv := searchBackend(t)

	result, text := invoke(t, Options{SearchURL: srv.URL}, "web_search", map[string]any{"query": "nothing"})
	assert.False(t, result.IsError)
	assert.Equal(t, "No results found.", text)
}

func TestWebSearch_MissingQuery(t *testing.T) {
	result, _ := invoke(t, Options{SearchURL: "http://127.0.0.1:1"}, "web_search", map[string]any{})
	assert.True(t, result.IsError)
}

func TestWebSearch_BackendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	result, text := invoke(t, Options{SearchURL: srv.URL}, "web_search", map[string]any{"query": "x"})
	assert.True(t, result.IsError)
	assert.Contains(t, text, "status 502")
}

func TestFetchPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><script>var x;</script></head><body><h1>Title</h1>
<p>Some <b>bold</b> text.</p></body></html>`))
	}))
	defer srv.Close()

	result, text := invoke(t, Options{}, "fetch_page", map[string]any{"url": srv.URL})
	assert.False(t, result.IsError)
	assert.Contains(t, text, "# Title")
	assert.Contains(t, text, "**bold**")
	assert.NotContains(t, text, "var x")

	_, text = invoke(t, Options{}, "fetch_page", map[string]any{"url": srv.URL, "format": "text"})
	assert.Equal(t, "Title Some bold text.", text)

	_, text = invoke(t, Options{}, "fetch_page", map[string]any{"url": srv.URL, "format": "text", "max_length": 5})
	assert.Equal(t, "Title\n\n[truncated]", text)
}

func TestFetchPage_Errors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	result, text := invoke(t, Options{}, "fetch_page", map[string]any{"url": srv.URL})
	assert.True(t, result.IsError)
	assert.Contains(t, text, "404")

	result, _ = invoke(t, Options{}, "fetch_page", map[string]any{"url": "ftp://example.com"})
	assert.True(t, result.IsError)
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		op       string
		numbers  []any
		expected string
		isError  bool
	}{
		{op: "sum", numbers: []any{1.0, 2.0, 3.0, 4.0, 5.0}, expected: "15"},
		{op: "sum", numbers: []any{}, expected: "0"},
		{op: "sum", numbers: []any{10.0, -5.0, 3.5, -2.5}, expected: "6"},
		{op: "product", numbers: []any{2.0, 3.0, 4.0}, expected: "24"},
		{op: "min", numbers: []any{3.0, -1.0, 2.0}, expected: "-1"},
		{op: "max", numbers: []any{3.0, -1.0, 2.0}, expected: "3"},
		{op: "mean", numbers: []any{1.0, 2.0, 3.0, 4.0}, expected: "2.5"},
		{op: "mean", numbers: []any{}, isError: true},
		{op: "sqrt", numbers: []any{4.0}, isError: true},
		{op: "sum", numbers: []any{"x"}, isError: true},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			result, text := invoke(t, Options{}, "calculate", map[string]any{"operation": tt.op, "numbers": tt.numbers})
			assert.Equal(t, tt.isError, result.IsError, text)
			if !tt.isError {
				assert.Equal(t, tt.expected, text)
			}
		})
	}
}

func TestResolveRedirect(t *testing.T) {
	assert.Equal(t, "https://go.dev/", resolveRedirect("//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2F"))
	assert.Equal(t, "https://example.com/a", resolveRedirect("https://example.com/a"))
	assert.Equal(t, "https://example.com/a", resolveRedirect("//example.com/a"))
}
