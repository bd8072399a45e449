// Package types provides the core data types shared by the chatsync server and client.
package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn in a conversation.
//
// A Message is a value. A newer version of a message carries the same ID and
// replaces the older one in a Context; it is never edited in place.
type Message struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Text        string       `json:"text"`
	Timestamp   int64        `json:"timestamp"` // Unix milliseconds
	Finished    bool         `json:"finished"`
	Provider    string       `json:"provider,omitempty"`
	Model       string       `json:"model,omitempty"`
	References  []Reference  `json:"references"`
	Attachments []Attachment `json:"attachments"`
	HasAudio    bool         `json:"hasAudio"`

	// ToolName is set on tool-role messages only.
	ToolName string `json:"toolName,omitempty"`
}

// Reference points at an external source cited by a message.
type Reference struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
}

// Attachment is a file attached to a message.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitempty"`
	URL      string `json:"url,omitempty"`
}

// NewMessageID returns a new, lexically sortable message identifier.
func NewMessageID() string {
	return ulid.Make().String()
}

// NewSessionID returns a new session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Now returns the current time in Unix milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// NewUserMessage creates a finished user message with a fresh id.
func NewUserMessage(text string) Message {
	return Message{
		ID:          NewMessageID(),
		Role:        RoleUser,
		Text:        text,
		Timestamp:   Now(),
		Finished:    true,
		References:  []Reference{},
		Attachments: []Attachment{},
	}
}

// NewAssistantMessage creates an empty, unfinished assistant message
// attributed to the given provider and model.
func NewAssistantMessage(provider, model string) Message {
	return Message{
		ID:          NewMessageID(),
		Role:        RoleAssistant,
		Timestamp:   Now(),
		Provider:    provider,
		Model:       model,
		References:  []Reference{},
		Attachments: []Attachment{},
	}
}

// Clone returns a copy of m that shares no slices with it.
func (m Message) Clone() Message {
	c := m
	if m.References != nil {
		c.References = make([]Reference, len(m.References))
		copy(c.References, m.References)
	}
	if m.Attachments != nil {
		c.Attachments = make([]Attachment, len(m.Attachments))
		copy(c.Attachments, m.Attachments)
	}
	return c
}
