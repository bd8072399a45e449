// Package client is a Go client for the chatsync HTTP API.
//
// Client covers every endpoint. Chat responses and live observers are
// streams of wire frames; a Reassembler folds them into local mirrors of
// the server's chat contexts.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/opencode-ai/chatsync/pkg/types"
)

// ClientOptions configures the client.
type ClientOptions struct {
	// BaseURL is the server URL (e.g., "http://localhost:48678")
	BaseURL string
	// Timeout applies to non-streaming requests (default: 30s).
	Timeout time.Duration
	// HTTPClient overrides the transport. Streaming requests use it without
	// a timeout.
	HTTPClient *http.Client
}

// Client talks to one chatsync server.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// NewClient creates a client.
func NewClient(opts ClientOptions) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		timeout: opts.Timeout,
		http:    hc,
	}
}

// BaseURL returns the server URL.
func (c *Client) BaseURL() string { return c.baseURL }

// APIError is a non-2xx answer of the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("chatsync: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("chatsync: %s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 answer.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var payload struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error.Code != "" {
		apiErr.Code = payload.Error.Code
		apiErr.Message = payload.Error.Message
		apiErr.Details = payload.Error.Details
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do performs a JSON request and decodes the answer into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// openStream performs a request whose answer is a frame stream.
func (c *Client) openStream(ctx context.Context, method, path string, body any) (*Stream, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return newStream(resp.Body), nil
}

// SendMessage posts a chat message and returns the stream of its updates.
// Request errors such as an unknown model are returned before any frame.
func (c *Client) SendMessage(ctx context.Context, req types.ChatRequest) (*Stream, error) {
	return c.openStream(ctx, http.MethodPost, "/chat", req)
}

// GetChat fetches the stored context of a chat.
func (c *Client) GetChat(ctx context.Context, id string) (types.Context, error) {
	var out types.Context
	err := c.do(ctx, http.MethodGet, "/chat/"+url.PathEscape(id), nil, &out)
	return out, err
}

// ListChats returns the chat ids, most recently updated first.
func (c *Client) ListChats(ctx context.Context) ([]string, error) {
	var out []string
	err := c.do(ctx, http.MethodGet, "/chats", nil, &out)
	return out, err
}

// DeleteChat deletes a chat. Deleting an unknown chat succeeds.
func (c *Client) DeleteChat(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/chat/"+url.PathEscape(id), nil, nil)
}

// Models returns the model catalog.
func (c *Client) Models(ctx context.Context) (types.ModelCatalog, error) {
	var out types.ModelCatalog
	err := c.do(ctx, http.MethodGet, "/models", nil, &out)
	return out, err
}

// Audio returns the synthesized speech of a message.
func (c *Client) Audio(ctx context.Context, messageID string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/audio/"+url.PathEscape(messageID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp.Body, nil
}

// Events observes a chat. The stream carries every update published for it
// after the call returns, until ctx is done or the chat is deleted.
func (c *Client) Events(ctx context.Context, id string) (*Stream, error) {
	return c.openStream(ctx, http.MethodGet, "/chat/"+url.PathEscape(id)+"/events", nil)
}

// EventsWS observes a chat over a WebSocket. The channel is closed when the
// connection ends.
func (c *Client) EventsWS(ctx context.Context, id string) (<-chan types.Update, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/chat/" + url.PathEscape(id) + "/events"

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, decodeError(resp)
		}
		return nil, fmt.Errorf("dial events: %w", err)
	}

	out := make(chan types.Update, 16)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var u types.Update
			if err := conn.ReadJSON(&u); err != nil {
				return
			}
			select {
			case out <- u:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// refreshConcurrency bounds the chat fetches of one Refresh.
const refreshConcurrency = 4

// Refresh fetches every chat from the server. It makes Client a Refresher.
// Chats deleted while refreshing are left out.
func (c *Client) Refresh(ctx context.Context) (map[string]types.Context, error) {
	ids, err := c.ListChats(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	out := make(map[string]types.Context, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			chat, err := c.GetChat(gctx, id)
			if IsNotFound(err) {
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			out[id] = chat
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
