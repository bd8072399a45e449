// Command search-mcp runs the built-in search tools as an MCP server over
// stdio, for use as a "local" MCP server by other clients.
package main

import (
	"log"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/opencode-ai/chatsync/pkg/mcpserver/search"
)

func main() {
	s := search.NewServer(search.Options{
		SearchURL: os.Getenv("CHATSYNC_SEARCH_URL"),
	})
	if err := server.ServeStdio(s); err != nil {
		log.Fatal(err)
	}
}
