package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/chatsync/pkg/types"
	"github.com/opencode-ai/chatsync/pkg/wire"
)

func frames(t *testing.T, updates ...types.Update) string {
	t.Helper()
	var sb strings.Builder
	for _, u := range updates {
		b, err := wire.Encode(u)
		require.NoError(t, err)
		sb.Write(b)
	}
	return sb.String()
}

func msg(id, text string, finished bool) types.Message {
	return types.Message{ID: id, Role: types.RoleAssistant, Text: text, Finished: finished}
}

func TestClient_SendMessageStreams(t *testing.T) {
	var got types.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, frames(t,
			types.NewUpdate("s1", types.Message{ID: "u", Role: types.RoleUser, Text: "hi", Finished: true}),
			types.NewUpdate("s1", msg("a", "Hel", false)),
		))
		w.(http.Flusher).Flush()
		io.WriteString(w, frames(t, types.NewUpdate("s1", msg("a", "Hello!", true))))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL})
	stream, err := c.SendMessage(context.Background(), types.ChatRequest{Message: "hi", Provider: "groq"})
	require.NoError(t, err)
	defer stream.Close()

	updates, err := stream.All()
	require.NoError(t, err)
	require.Len(t, updates, 3)
	assert.Equal(t, "hi", got.Message)
	assert.Equal(t, "groq", got.Provider)
	assert.Equal(t, "Hello!", updates[2].Messages[0].Text)

	_, err = stream.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":{"code":"MODEL_NOT_FOUND","message":"model not found: groq/x","details":{"suggestion":"groq/y"}}}`)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL})
	_, err := c.SendMessage(context.Background(), types.ChatRequest{Message: "hi", Model: "x"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "MODEL_NOT_FOUND", apiErr.Code)
	assert.Equal(t, "groq/y", apiErr.Details["suggestion"])
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "MODEL_NOT_FOUND")
}

func TestClient_PlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(ClientOptions{BaseURL: srv.URL}).ListChats(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "upstream down", apiErr.Message)
	assert.False(t, IsNotFound(err))
}

func TestClient_JSONEndpoints(t *testing.T) {
	chat := types.Context{ID: "s1", History: []types.Message{msg("a", "x", true)}}
	var deleted string
	mux := http.NewServeMux()
	mux.HandleFunc("/chats", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]string{"s1", "gone"})
	})
	mux.HandleFunc("/chat/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/chat/")
		switch {
		case r.Method == http.MethodDelete:
			deleted = id
			json.NewEncoder(w).Encode(map[string]bool{"success": true})
		case id == "s1":
			json.NewEncoder(w).Encode(chat)
		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error":{"code":"NOT_FOUND","message":"chat not found"}}`)
		}
	})
	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(types.ModelCatalog{"groq": {{ID: "m", DisplayName: "M", SupportsTools: true}}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL + "/"})
	ctx := context.Background()

	ids, err := c.ListChats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "gone"}, ids)

	got, err := c.GetChat(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "x", got.History[0].Text)

	_, err = c.GetChat(ctx, "gone")
	assert.True(t, IsNotFound(err))

	require.NoError(t, c.DeleteChat(ctx, "s1"))
	assert.Equal(t, "s1", deleted)

	models, err := c.Models(ctx)
	require.NoError(t, err)
	assert.True(t, models["groq"][0].SupportsTools)

	// Refresh skips chats that vanish between list and get.
	all, err := c.Refresh(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Contains(t, all, "s1")
}

func TestClient_EventsWS(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/s1/events", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		conn.WriteJSON(types.NewUpdate("s1", msg("a", "live", false)))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := NewClient(ClientOptions{BaseURL: srv.URL}).EventsWS(ctx, "s1")
	require.NoError(t, err)

	u, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, "live", u.Messages[0].Text)

	_, ok = <-ch
	assert.False(t, ok)
}

func TestStream_ReadError(t *testing.T) {
	boom := errors.New("reset")
	s := newStream(io.NopCloser(io.MultiReader(
		strings.NewReader(frames(t, types.NewUpdate("s"))),
		&errReader{err: boom},
	)))

	_, err := s.Next()
	require.NoError(t, err)
	_, err = s.Next()
	assert.ErrorIs(t, err, boom)
}

type errReader struct{ err error }

func (r *errReader) Read([]byte) (int, error) { return 0, r.err }
