package types

// ChatRequest is the body of POST /chat. Provider and Model default to the
// server's configured model; an empty ChatID starts a new session.
type ChatRequest struct {
	Message  string `json:"message"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	ChatID   string `json:"chatId,omitempty"`
}
