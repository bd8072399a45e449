package mcp

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/chatsync/pkg/mcpserver/search"
	"github.com/opencode-ai/chatsync/pkg/types"
)

func searchServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(search.NewHTTPHandler(search.NewServer(search.Options{})))
	t.Cleanup(srv.Close)
	return srv
}

func toolNames(tools []Tool) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}

func TestSanitizeToolName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"search", "search"},
		{"my-server", "my_server"},
		{"a.b/c d", "a_b_c_d"},
		{"web_search", "web_search"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeToolName(tt.in))
	}
}

func TestConfigFrom(t *testing.T) {
	off := false

	remote := ConfigFrom(types.MCPConfig{URL: "http://x/mcp"})
	assert.True(t, remote.Enabled)
	assert.Equal(t, TransportTypeRemote, remote.Type)

	local := ConfigFrom(types.MCPConfig{Command: []string{"search-mcp"}, Enabled: &off})
	assert.False(t, local.Enabled)
	assert.Equal(t, TransportTypeLocal, local.Type)
}

func TestClient_StreamableHTTP(t *testing.T) {
	srv := searchServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := NewClient()
	defer client.Close()

	err := client.AddServer(ctx, "search", &Config{Enabled: true, Type: TransportTypeRemote, URL: srv.URL, Timeout: 5000})
	require.NoError(t, err)
	assert.Equal(t, 1, client.ConnectedCount())

	tools := client.Tools()
	assert.Equal(t, []string{"search_calculate", "search_fetch_page", "search_web_search"}, toolNames(tools))

	args, _ := json.Marshal(map[string]any{"operation": "sum", "numbers": []float64{1, 2, 3}})
	out, err := client.ExecuteTool(ctx, "search_calculate", args)
	require.NoError(t, err)
	assert.Equal(t, "6", out)

	args, _ = json.Marshal(map[string]any{"operation": "mean", "numbers": []float64{}})
	_, err = client.ExecuteTool(ctx, "search_calculate", args)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty array")

	_, err = client.ExecuteTool(ctx, "other_tool", nil)
	assert.Error(t, err)
}

func TestClient_DuplicateAndDisabledServers(t *testing.T) {
	client := NewClient()
	defer client.Close()
	ctx := context.Background()

	require.NoError(t, client.AddServer(ctx, "off", &Config{Enabled: false, Type: TransportTypeRemote, URL: "http://127.0.0.1:1"}))
	assert.Error(t, client.AddServer(ctx, "off", &Config{Enabled: false}))

	status := client.Status()
	require.Len(t, status, 1)
	assert.Equal(t, StatusDisabled, status[0].Status)
	assert.Empty(t, client.Tools())
}

func TestClient_FailedServer(t *testing.T) {
	client := NewClient()
	defer client.Close()

	err := client.AddServer(context.Background(), "bad", &Config{Enabled: true, Type: "carrier-pigeon"})
	require.Error(t, err)

	status := client.Status()
	require.Len(t, status, 1)
	assert.Equal(t, StatusFailed, status[0].Status)
	require.NotNil(t, status[0].Error)
	assert.Contains(t, *status[0].Error, "unknown transport type")
}

func TestProvisioner_Acquire(t *testing.T) {
	srv := searchServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p, err := NewProvisioner(map[string]types.MCPConfig{
		"search": {Type: "remote", URL: srv.URL},
	}, []string{"search_calc*"})
	require.NoError(t, err)

	set, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.Len(t, set.Tools, 1)

	info, err := set.Tools[0].Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "search_calculate", info.Name)
	assert.NotNil(t, info.ParamsOneOf)

	out, err := set.Tools[0].InvokableRun(ctx, `{"operation":"product","numbers":[2,5]}`)
	require.NoError(t, err)
	assert.Equal(t, "10", out)

	require.NoError(t, set.Close())
	require.NoError(t, set.Close())
}

func TestProvisioner_NoServers(t *testing.T) {
	off := false
	p, err := NewProvisioner(map[string]types.MCPConfig{
		"search": {Type: "remote", URL: "http://127.0.0.1:1", Enabled: &off},
	}, nil)
	require.NoError(t, err)

	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrNoServers)
}

func TestProvisioner_InvalidPattern(t *testing.T) {
	_, err := NewProvisioner(nil, []string{"search_[a"})
	assert.Error(t, err)
}

func TestProvisioner_Allowed(t *testing.T) {
	p, err := NewProvisioner(nil, []string{"search_*", "calc_sum"})
	require.NoError(t, err)

	assert.True(t, p.Allowed("search_web_search"))
	assert.True(t, p.Allowed("calc_sum"))
	assert.False(t, p.Allowed("calc_product"))

	all, err := NewProvisioner(nil, nil)
	require.NoError(t, err)
	assert.True(t, all.Allowed("anything"))
}

func TestToolSet_CloseOnce(t *testing.T) {
	calls := 0
	set := NewToolSet(nil, func() error {
		calls++
		return nil
	})
	set.Close()
	set.Close()
	assert.Equal(t, 1, calls)
}
