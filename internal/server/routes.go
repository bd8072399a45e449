package server

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Chat
	r.With(s.rateLimit).Post("/chat", s.chat)
	r.Get("/chat/", s.missingChatID)
	r.Delete("/chat/", s.missingChatID)
	r.Get("/chat/{chatID}", s.getChat)
	r.Delete("/chat/{chatID}", s.deleteChat)
	r.Get("/chat/{chatID}/events", s.chatEvents)
	r.Get("/chats", s.listChats)

	// Models
	r.Get("/models", s.listModels)

	// Audio
	if s.audio != nil {
		r.Get("/audio/{messageID}", s.getAudio)
	}

	// Built-in tool server
	if s.tools != nil {
		r.Handle("/mcp/search", s.tools)
	}

	r.Handle("/metrics", s.metrics.Handler())
	r.Get("/health", s.health)
}
