package mcp

import (
	"encoding/json"

	"github.com/opencode-ai/chatsync/pkg/types"
)

// Config defines MCP server configuration.
type Config struct {
	Enabled     bool              `json:"enabled"`
	Type        TransportType     `json:"type"`
	URL         string            `json:"url,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Command     []string          `json:"command,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	Timeout     int               `json:"timeout,omitempty"` // milliseconds
}

// ConfigFrom converts a configuration file entry. Servers are enabled unless
// the entry says otherwise.
func ConfigFrom(c types.MCPConfig) *Config {
	cfg := &Config{
		Enabled:     c.Enabled == nil || *c.Enabled,
		Type:        TransportType(c.Type),
		URL:         c.URL,
		Headers:     c.Headers,
		Command:     c.Command,
		Environment: c.Environment,
		Timeout:     c.Timeout,
	}
	if cfg.Type == "" {
		if cfg.URL != "" {
			cfg.Type = TransportTypeRemote
		} else {
			cfg.Type = TransportTypeLocal
		}
	}
	return cfg
}

// TransportType represents the type of MCP transport.
type TransportType string

const (
	TransportTypeRemote TransportType = "remote"
	TransportTypeLocal  TransportType = "local"
	TransportTypeStdio  TransportType = "stdio"
)

// Tool represents an MCP tool.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ServerStatus represents the status of an MCP server.
type ServerStatus struct {
	Name      string  `json:"name"`
	Status    Status  `json:"status"`
	ToolCount int     `json:"toolCount"`
	Error     *string `json:"error,omitempty"`
}

// Status represents the connection status.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisabled     Status = "disabled"
	StatusFailed       Status = "failed"
	StatusConnecting   Status = "connecting"
	StatusDisconnected Status = "disconnected"
)
