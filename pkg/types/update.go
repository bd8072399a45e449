package types

// Update describes messages to merge into the context identified by
// SessionID. Updates only exist on the wire and are never persisted.
type Update struct {
	SessionID string    `json:"sessionId"`
	Timestamp int64     `json:"timestamp"`
	Messages  []Message `json:"messages"`
}

// NewUpdate creates an update stamped with the current time.
func NewUpdate(sessionID string, messages ...Message) Update {
	if messages == nil {
		messages = []Message{}
	}
	return Update{
		SessionID: sessionID,
		Timestamp: Now(),
		Messages:  messages,
	}
}

// SnapshotUpdate creates an update carrying the full history of c.
func SnapshotUpdate(c Context) Update {
	return NewUpdate(c.ID, append([]Message(nil), c.History...)...)
}
