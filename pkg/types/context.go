package types

// Context is the full state of one conversation.
//
// Message ids in History are unique. Existing entries keep their position;
// new messages are only ever appended.
type Context struct {
	ID      string    `json:"id"`
	History []Message `json:"history"`
}

// NewContext creates an empty context with the given id.
func NewContext(id string) Context {
	return Context{ID: id, History: []Message{}}
}

// Clone returns a deep copy of c.
func (c Context) Clone() Context {
	out := Context{ID: c.ID, History: make([]Message, len(c.History))}
	for i, m := range c.History {
		out.History[i] = m.Clone()
	}
	return out
}

// Find returns the message with the given id.
func (c Context) Find(id string) (Message, bool) {
	for _, m := range c.History {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// Last returns the most recent message, if any.
func (c Context) Last() (Message, bool) {
	if len(c.History) == 0 {
		return Message{}, false
	}
	return c.History[len(c.History)-1], true
}

// Merge folds u into c and returns the result.
//
// Each message of u replaces the entry of c with the same id at its existing
// position, or is appended when c has no such entry. Merge does not modify c,
// and merging the same update twice gives the same result as merging it once.
// Routing updates to the context with the matching session id is the
// caller's job.
func Merge(c Context, u Update) Context {
	out := Context{ID: c.ID, History: make([]Message, len(c.History), len(c.History)+len(u.Messages))}
	copy(out.History, c.History)

	index := make(map[string]int, len(out.History))
	for i, m := range out.History {
		index[m.ID] = i
	}

	for _, m := range u.Messages {
		if i, ok := index[m.ID]; ok {
			out.History[i] = m
			continue
		}
		index[m.ID] = len(out.History)
		out.History = append(out.History, m)
	}
	return out
}
