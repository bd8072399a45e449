package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/opencode-ai/chatsync/pkg/types"
)

const basePrompt = `You are a helpful assistant in a chat application. Answer concisely and use markdown where it helps readability.`

const toolPrompt = `You can call tools to look things up or compute results. Call a tool only when it is needed to answer the latest user message; otherwise reply without calling any tool.`

// WorldContext describes the moment the prompt is built.
func WorldContext(now time.Time) string {
	return fmt.Sprintf("Current date and time: %s (%s).", now.Format("Monday, 2 January 2006 15:04"), now.Location())
}

// SystemPrompt joins the base prompt, the world context and the configured
// system prompt.
func SystemPrompt(now time.Time, configured string) string {
	parts := []string{basePrompt, WorldContext(now)}
	if configured = strings.TrimSpace(configured); configured != "" {
		parts = append(parts, configured)
	}
	return strings.Join(parts, "\n\n")
}

// PromptMessages converts history into model input behind a system prompt.
func PromptMessages(history []types.Message, system string) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(history)+1)
	if system != "" {
		msgs = append(msgs, schema.SystemMessage(system))
	}
	for _, m := range history {
		if em := toEino(m); em != nil {
			msgs = append(msgs, em)
		}
	}
	return msgs
}

// ToolPromptMessages builds the input of the tool phase generation.
func ToolPromptMessages(history []types.Message, now time.Time) []*schema.Message {
	return PromptMessages(history, toolPrompt+"\n\n"+WorldContext(now))
}

// toEino maps one message. Tool results become user-visible text because
// providers only accept tool messages that answer a pending tool call.
func toEino(m types.Message) *schema.Message {
	if m.Text == "" {
		return nil
	}
	switch m.Role {
	case types.RoleUser:
		return schema.UserMessage(m.Text)
	case types.RoleAssistant:
		return schema.AssistantMessage(m.Text, nil)
	case types.RoleTool:
		name := m.ToolName
		if name == "" {
			name = "tool"
		}
		return schema.UserMessage(fmt.Sprintf("[Result of %s]\n%s", name, m.Text))
	default:
		return nil
	}
}
