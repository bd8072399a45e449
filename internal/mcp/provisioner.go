package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	einotool "github.com/cloudwego/eino/components/tool"

	"github.com/opencode-ai/chatsync/internal/logging"
	"github.com/opencode-ai/chatsync/pkg/types"
)

// ErrNoServers is returned by Acquire when no server could be connected.
var ErrNoServers = errors.New("no tool servers available")

// ToolSet is the set of tools acquired for one tool phase.
type ToolSet struct {
	Tools []einotool.InvokableTool

	once    sync.Once
	release func() error
	err     error
}

// NewToolSet creates a tool set; release runs on the first Close.
func NewToolSet(tools []einotool.InvokableTool, release func() error) *ToolSet {
	return &ToolSet{Tools: tools, release: release}
}

// Close releases the tools. Only the first call has an effect.
func (s *ToolSet) Close() error {
	s.once.Do(func() {
		if s.release != nil {
			s.err = s.release()
		}
	})
	return s.err
}

// Provisioner connects the configured MCP servers on demand.
type Provisioner struct {
	servers  map[string]types.MCPConfig
	patterns []string
}

// NewProvisioner creates a provisioner. patterns are doublestar globs matched
// against prefixed tool names; an empty list allows every tool.
func NewProvisioner(servers map[string]types.MCPConfig, patterns []string) (*Provisioner, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid tool pattern %q", p)
		}
	}
	return &Provisioner{servers: servers, patterns: patterns}, nil
}

// Acquire connects every enabled server and returns the allowed tools.
// Servers that fail to connect are logged and skipped. The returned set
// holds the connections open until Close.
func (p *Provisioner) Acquire(ctx context.Context) (*ToolSet, error) {
	client := NewClient()

	names := make([]string, 0, len(p.servers))
	for name := range p.servers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := client.AddServer(ctx, name, ConfigFrom(p.servers[name])); err != nil {
			logging.Warn().Err(err).Str("server", name).Msg("MCP server unavailable")
		}
	}

	if client.ConnectedCount() == 0 {
		client.Close()
		return nil, ErrNoServers
	}

	var tools []einotool.InvokableTool
	for _, t := range client.Tools() {
		if !p.Allowed(t.Name) {
			continue
		}
		tools = append(tools, EinoTool(t, client))
	}

	logging.Debug().Int("tools", len(tools)).Int("servers", client.ConnectedCount()).Msg("Tools acquired")
	return NewToolSet(tools, client.Close), nil
}

// Allowed reports whether a prefixed tool name passes the allow-list.
func (p *Provisioner) Allowed(name string) bool {
	if len(p.patterns) == 0 {
		return true
	}
	for _, pattern := range p.patterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
