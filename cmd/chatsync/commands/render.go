package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/opencode-ai/chatsync/pkg/types"
)

// renderer prints chat updates as they arrive. Streaming text is printed
// incrementally; every message is printed once.
type renderer struct {
	out     io.Writer
	printed map[string]int
	done    map[string]bool
	current string
}

func newRenderer(out io.Writer) *renderer {
	color.NoColor = color.NoColor || noColor
	return &renderer{out: out, printed: make(map[string]int), done: make(map[string]bool)}
}

var (
	userLabel      = color.New(color.FgCyan, color.Bold)
	assistantLabel = color.New(color.FgGreen, color.Bold)
	toolLabel      = color.New(color.FgYellow)
	dimmed         = color.New(color.FgHiBlack)
)

func (r *renderer) label(m types.Message) string {
	switch m.Role {
	case types.RoleUser:
		return userLabel.Sprint("you ›")
	case types.RoleTool:
		return toolLabel.Sprintf("tool %s ›", m.ToolName)
	default:
		return assistantLabel.Sprint("assistant ›")
	}
}

// Update prints what is new in u.
func (r *renderer) Update(u types.Update) {
	for _, m := range u.Messages {
		r.message(m)
	}
}

func (r *renderer) message(m types.Message) {
	if r.done[m.ID] {
		return
	}

	// Tool output is printed whole once finished.
	if m.Role == types.RoleTool && !m.Finished {
		return
	}

	n, started := r.printed[m.ID]
	if !started {
		r.endLine()
		fmt.Fprintf(r.out, "%s ", r.label(m))
		r.current = m.ID
	} else if r.current != m.ID {
		r.endLine()
		r.current = m.ID
	}

	text := m.Text
	if m.Role == types.RoleTool {
		text = dimmed.Sprint(truncate(text, 400))
		n = 0
	}
	if n < len(text) {
		fmt.Fprint(r.out, text[n:])
	}
	r.printed[m.ID] = len(text)

	if m.Finished {
		if m.Role == types.RoleAssistant && m.Text == "" {
			fmt.Fprint(r.out, dimmed.Sprint("(no reply)"))
		}
		r.endLine()
		r.done[m.ID] = true
	}
}

func (r *renderer) endLine() {
	if r.current != "" {
		fmt.Fprintln(r.out)
		r.current = ""
	}
}

// Context prints a whole chat.
func (r *renderer) Context(c types.Context) {
	fmt.Fprintln(r.out, dimmed.Sprintf("chat %s (%d messages)", c.ID, len(c.History)))
	for _, m := range c.History {
		r.message(m)
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
