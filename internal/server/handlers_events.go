package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/opencode-ai/chatsync/internal/event"
	"github.com/opencode-ai/chatsync/internal/logging"
	"github.com/opencode-ai/chatsync/internal/storage"
	"github.com/opencode-ai/chatsync/pkg/wire"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// chatEvents handles GET /chat/{chatID}/events. The observer receives every
// update published for the chat after it subscribed, as wire frames or, on
// an upgraded connection, as one WebSocket text message per update.
// Deleting the chat ends the stream.
func (s *Server) chatEvents(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	if !storage.ValidID(chatID) {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid chat id")
		return
	}
	if s.bus == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "live updates are disabled")
		return
	}

	if websocket.IsWebSocketUpgrade(r) {
		s.chatEventsWS(w, r, chatID)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, err := s.bus.Subscribe(ctx, chatID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	s.metrics.observers.Inc()
	defer s.metrics.observers.Dec()
	log := logging.Component("events").With().Str("sessionID", chatID).Logger()
	log.Debug().Msg("Observer connected")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	rc.Flush()

	enc := wire.NewEncoder(w)
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Observer disconnected")
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if e.Type == event.ChatDeleted {
				return
			}
			if err := enc.Write(e.Update); err != nil {
				return
			}
		case <-ticker.C:
			// An empty segment keeps idle connections open; decoders skip it.
			if _, err := w.Write(wire.Terminator); err != nil {
				return
			}
			rc.Flush()
		}
	}
}

func (s *Server) chatEventsWS(w http.ResponseWriter, r *http.Request, chatID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request.
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	events, err := s.bus.Subscribe(ctx, chatID)
	if err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(wsWriteTimeout))
		return
	}

	s.metrics.observers.Inc()
	defer s.metrics.observers.Dec()

	// The read loop only notices the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if e.Type == event.ChatDeleted {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "chat deleted"))
				return
			}
			if err := conn.WriteJSON(e.Update); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}
