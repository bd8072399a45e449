package event

import "github.com/opencode-ai/chatsync/pkg/types"

// EventType represents the type of event.
type EventType string

const (
	ChatUpdated EventType = "chat.updated"
	ChatDeleted EventType = "chat.deleted"
)

// Event is what the bus carries. Update.SessionID names the chat.
type Event struct {
	Type   EventType    `json:"type"`
	Update types.Update `json:"update"`
}

// SessionID returns the chat the event belongs to.
func (e Event) SessionID() string {
	return e.Update.SessionID
}
