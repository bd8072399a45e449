// Package search provides the built-in MCP tool server: web search, page
// fetching and a small calculator.
package search

import (
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"
)

// DefaultSearchURL is the DuckDuckGo HTML endpoint queried by web_search.
const DefaultSearchURL = "https://html.duckduckgo.com/html/"

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Options configures the tool server.
type Options struct {
	// SearchURL overrides DefaultSearchURL.
	SearchURL string
	// HTTPClient is used for outbound requests.
	HTTPClient *http.Client
}

type tools struct {
	searchURL string
	client    *http.Client
}

// NewServer creates the MCP server with all built-in tools registered.
func NewServer(opts Options) *server.MCPServer {
	t := &tools{
		searchURL: opts.SearchURL,
		client:    opts.HTTPClient,
	}
	if t.searchURL == "" {
		t.searchURL = DefaultSearchURL
	}
	if t.client == nil {
		t.client = &http.Client{Timeout: 30 * time.Second}
	}

	s := server.NewMCPServer(
		"chatsync-search",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.AddTool(webSearchTool, t.webSearch)
	s.AddTool(fetchPageTool, t.fetchPage)
	s.AddTool(calculateTool, calculate)
	return s
}

// NewHTTPHandler serves s over the streamable HTTP transport.
func NewHTTPHandler(s *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(s)
}
