package mcp

import (
	"context"
	"encoding/json"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/opencode-ai/chatsync/internal/provider"
)

// einoTool implements eino's InvokableTool for one MCP tool.
type einoTool struct {
	tool   Tool
	client *Client
}

var _ einotool.InvokableTool = (*einoTool)(nil)

// EinoTool wraps a prefixed tool of client.
func EinoTool(t Tool, client *Client) einotool.InvokableTool {
	return &einoTool{tool: t, client: client}
}

// Info returns the tool information.
func (e *einoTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return provider.ToolInfoFromSchema(e.tool.Name, e.tool.Description, e.tool.InputSchema), nil
}

// InvokableRun executes the tool.
func (e *einoTool) InvokableRun(ctx context.Context, argsJSON string, opts ...einotool.Option) (string, error) {
	return e.client.ExecuteTool(ctx, e.tool.Name, json.RawMessage(argsJSON))
}
