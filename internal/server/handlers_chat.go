package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opencode-ai/chatsync/internal/logging"
	"github.com/opencode-ai/chatsync/internal/provider"
	"github.com/opencode-ai/chatsync/internal/session"
)

// maxChatBody caps the size of a chat request body.
const maxChatBody = 1 << 20

// chat handles POST /chat. Request errors are answered with JSON before
// any frame; after that the response is a stream of update frames.
func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req session.ChatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxChatBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	x, err := s.sessions.Prepare(r.Context(), req)
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := http.NewResponseController(w).Flush(); err != nil {
		logging.Debug().Err(err).Msg("Response does not support flushing")
	}

	s.metrics.activeExchanges.Inc()
	defer s.metrics.activeExchanges.Dec()

	start := time.Now()
	runErr := x.Run(r.Context(), w)

	outcome := "ok"
	switch {
	case runErr != nil:
		outcome = "persist_error"
		logging.Error().Err(runErr).
			Str("requestID", middleware.GetReqID(r.Context())).
			Str("sessionID", x.SessionID()).
			Msg("Exchange finished with persistence errors")
	case x.Final().Text == "":
		outcome = "empty"
	}
	s.metrics.observeExchange(string(x.Model().Kind()), outcome, time.Since(start))
}

func (s *Server) writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	var notFound *provider.ModelNotFoundError
	switch {
	case errors.Is(err, session.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
	case errors.Is(err, session.ErrInvalidID):
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
	case errors.As(err, &notFound):
		var details map[string]any
		if notFound.Suggestion != "" {
			details = map[string]any{"suggestion": notFound.Suggestion}
		}
		writeErrorWithDetails(w, http.StatusNotFound, ErrCodeModelNotFound, err.Error(), details)
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, context.Canceled):
		// The client left while waiting for the session.
		logging.Debug().Str("requestID", middleware.GetReqID(r.Context())).Msg("Chat request cancelled")
	default:
		logging.Error().Err(err).Msg("Failed to prepare chat")
		writeError(w, http.StatusBadGateway, ErrCodeProviderError, err.Error())
	}
}

// getChat handles GET /chat/{chatID}.
func (s *Server) getChat(w http.ResponseWriter, r *http.Request) {
	c, err := s.sessions.Get(r.Context(), chi.URLParam(r, "chatID"))
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrInvalidID):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "chat not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	default:
		writeJSON(w, http.StatusOK, c)
	}
}

// listChats handles GET /chats.
func (s *Server) listChats(w http.ResponseWriter, r *http.Request) {
	ids, err := s.sessions.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

// deleteChat handles DELETE /chat/{chatID}. Unknown ids succeed.
func (s *Server) deleteChat(w http.ResponseWriter, r *http.Request) {
	err := s.sessions.Delete(r.Context(), chi.URLParam(r, "chatID"))
	switch {
	case errors.Is(err, session.ErrInvalidID):
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	default:
		writeSuccess(w)
	}
}

func (s *Server) missingChatID(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "chat id is required")
}

// listModels handles GET /models.
func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	catalog, err := s.sessions.Models(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeProviderError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, catalog)
}

// getAudio handles GET /audio/{messageID}.
func (s *Server) getAudio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "messageID")
	f, err := s.audio.Open(id)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "audio not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	http.ServeContent(w, r, id+".mp3", info.ModTime(), f)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
