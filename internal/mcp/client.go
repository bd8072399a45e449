package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/opencode-ai/chatsync/internal/logging"
)

const (
	// ConnectRetries is the number of reconnect attempts after a failed connect.
	ConnectRetries = 2
	// ConnectRetryInterval is the initial interval between connect attempts.
	ConnectRetryInterval = 200 * time.Millisecond

	defaultTimeout = 5 * time.Second
)

// Client manages MCP server connections using the official MCP SDK.
type Client struct {
	mu        sync.RWMutex
	servers   map[string]*mcpServer
	sdkClient *sdkmcp.Client
}

// mcpServer represents a connected MCP server.
type mcpServer struct {
	name    string
	config  *Config
	session *sdkmcp.ClientSession
	tools   []Tool
	status  Status
	error   string
}

// NewClient creates a new MCP client.
func NewClient() *Client {
	sdkClient := sdkmcp.NewClient(&sdkmcp.Implementation{
		Name:    "chatsync",
		Version: "1.0.0",
	}, nil)

	return &Client{
		servers:   make(map[string]*mcpServer),
		sdkClient: sdkClient,
	}
}

// AddServer adds and connects to an MCP server. Connecting is retried with
// exponential backoff before the server is marked failed.
func (c *Client) AddServer(ctx context.Context, name string, config *Config) error {
	c.mu.Lock()
	if _, ok := c.servers[name]; ok {
		c.mu.Unlock()
		return fmt.Errorf("server already exists: %s", name)
	}
	c.servers[name] = &mcpServer{name: name, config: config, status: StatusConnecting}
	c.mu.Unlock()

	if !config.Enabled {
		c.setServer(&mcpServer{name: name, config: config, status: StatusDisabled})
		return nil
	}

	var server *mcpServer
	op := func() error {
		s, err := c.connectServer(ctx, name, config)
		if err != nil {
			logging.Debug().Err(err).Str("server", name).Msg("MCP connect attempt failed")
			return err
		}
		server = s
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = ConnectRetryInterval
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, ConnectRetries), ctx)); err != nil {
		c.setServer(&mcpServer{name: name, config: config, status: StatusFailed, error: err.Error()})
		return err
	}

	c.setServer(server)
	return nil
}

func (c *Client) setServer(s *mcpServer) {
	c.mu.Lock()
	c.servers[s.name] = s
	c.mu.Unlock()
}

// connectServer establishes connection to an MCP server using the SDK.
func (c *Client) connectServer(ctx context.Context, name string, config *Config) (*mcpServer, error) {
	timeout := time.Duration(config.Timeout) * time.Millisecond
	if timeout == 0 {
		timeout = defaultTimeout
	}

	server := &mcpServer{
		name:   name,
		config: config,
		status: StatusConnecting,
	}

	switch config.Type {
	case TransportTypeRemote:
		httpClient := httpClientWithHeaders(nil, config.Headers)
		transports := []struct {
			name      string
			transport sdkmcp.Transport
		}{
			{name: "streamable", transport: &sdkmcp.StreamableClientTransport{Endpoint: config.URL, HTTPClient: httpClient}},
			{name: "sse", transport: &sdkmcp.SSEClientTransport{Endpoint: config.URL, HTTPClient: httpClient}},
		}

		var lastErr error
		for _, candidate := range transports {
			session, err := c.connectWithTransport(ctx, candidate.transport, timeout, server)
			if err != nil {
				lastErr = fmt.Errorf("%s transport: %w", candidate.name, err)
				continue
			}
			server.session = session
			server.status = StatusConnected
			return server, nil
		}
		return nil, lastErr

	case TransportTypeLocal, TransportTypeStdio:
		if len(config.Command) == 0 {
			return nil, backoff.Permanent(fmt.Errorf("empty command"))
		}

		cmd := exec.Command(config.Command[0], config.Command[1:]...)
		cmd.Env = os.Environ()
		for k, v := range config.Environment {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}

		session, err := c.connectWithTransport(ctx, &sdkmcp.CommandTransport{Command: cmd}, timeout, server)
		if err != nil {
			return nil, err
		}
		server.session = session
		server.status = StatusConnected
		return server, nil

	default:
		return nil, backoff.Permanent(fmt.Errorf("unknown transport type: %s", config.Type))
	}
}

func (c *Client) connectWithTransport(ctx context.Context, transport sdkmcp.Transport, timeout time.Duration, server *mcpServer) (*sdkmcp.ClientSession, error) {
	// The session outlives ctx; only the initial listing is bounded.
	session, err := c.sdkClient.Connect(context.WithoutCancel(ctx), transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	listCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	server.session = session
	if err := server.listTools(listCtx); err != nil {
		session.Close()
		return nil, fmt.Errorf("list tools: %w", err)
	}
	return session, nil
}

func httpClientWithHeaders(base *http.Client, headers map[string]string) *http.Client {
	if base == nil {
		base = &http.Client{}
	}

	client := *base
	client.Timeout = 0 // per-request contexts bound every call

	if len(headers) == 0 {
		return &client
	}

	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client.Transport = &headerRoundTripper{
		headers: headers,
		next:    transport,
	}
	return &client
}

type headerRoundTripper struct {
	headers map[string]string
	next    http.RoundTripper
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	for k, v := range h.headers {
		cloned.Header.Set(k, v)
	}
	return h.next.RoundTrip(cloned)
}

// listTools lists available tools from the server using the SDK.
func (s *mcpServer) listTools(ctx context.Context) error {
	if s.session == nil {
		return fmt.Errorf("not connected")
	}

	result, err := s.session.ListTools(ctx, nil)
	if err != nil {
		return err
	}

	s.tools = make([]Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		var inputSchema json.RawMessage
		if t.InputSchema != nil {
			inputSchema, _ = json.Marshal(t.InputSchema)
		}
		s.tools = append(s.tools, Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: inputSchema,
		})
	}
	return nil
}

// Tools returns all tools from all connected servers, sorted by name.
func (c *Client) Tools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var allTools []Tool
	for name, server := range c.servers {
		if server.status != StatusConnected {
			continue
		}
		for _, tool := range server.tools {
			allTools = append(allTools, Tool{
				Name:        sanitizeToolName(name) + "_" + sanitizeToolName(tool.Name),
				Description: tool.Description,
				InputSchema: tool.InputSchema,
			})
		}
	}
	sort.Slice(allTools, func(i, j int) bool { return allTools[i].Name < allTools[j].Name })
	return allTools
}

// ExecuteTool executes a prefixed tool on the server that owns it.
func (c *Client) ExecuteTool(ctx context.Context, toolName string, args json.RawMessage) (string, error) {
	c.mu.RLock()
	var targetServer *mcpServer
	var originalToolName string
	for name, server := range c.servers {
		if server.status != StatusConnected {
			continue
		}
		prefix := sanitizeToolName(name) + "_"
		if !strings.HasPrefix(toolName, prefix) {
			continue
		}
		for _, t := range server.tools {
			if prefix+sanitizeToolName(t.Name) == toolName {
				targetServer = server
				originalToolName = t.Name
				break
			}
		}
		if targetServer != nil {
			break
		}
	}
	c.mu.RUnlock()

	if targetServer == nil {
		return "", fmt.Errorf("no server found for tool: %s", toolName)
	}

	var argsMap map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &argsMap); err != nil {
			return "", fmt.Errorf("parse arguments: %w", err)
		}
	}

	result, err := targetServer.session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      originalToolName,
		Arguments: argsMap,
	})
	if err != nil {
		return "", err
	}

	var output strings.Builder
	for _, content := range result.Content {
		if textContent, ok := content.(*sdkmcp.TextContent); ok {
			output.WriteString(textContent.Text)
		}
	}

	if result.IsError {
		if output.Len() > 0 {
			return "", fmt.Errorf("tool error: %s", output.String())
		}
		return "", fmt.Errorf("tool execution failed")
	}
	return output.String(), nil
}

// Status returns status of all MCP servers, sorted by name.
func (c *Client) Status() []ServerStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := make([]ServerStatus, 0, len(c.servers))
	for name, server := range c.servers {
		s := ServerStatus{
			Name:      name,
			Status:    server.status,
			ToolCount: len(server.tools),
		}
		if server.error != "" {
			errText := server.error
			s.Error = &errText
		}
		status = append(status, s)
	}
	sort.Slice(status, func(i, j int) bool { return status[i].Name < status[j].Name })
	return status
}

// ConnectedCount returns the number of connected servers.
func (c *Client) ConnectedCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for _, server := range c.servers {
		if server.status == StatusConnected {
			count++
		}
	}
	return count
}

// Close disconnects all servers.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, server := range c.servers {
		if server.session != nil {
			server.session.Close()
		}
	}
	c.servers = make(map[string]*mcpServer)
	return nil
}

// sanitizeToolName replaces non-alphanumeric chars with underscore.
func sanitizeToolName(name string) string {
	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			result.WriteRune(r)
		} else {
			result.WriteRune('_')
		}
	}
	return result.String()
}
