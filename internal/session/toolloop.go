package session

import (
	"context"
	"fmt"
	"reflect"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/opencode-ai/chatsync/internal/notify"
	"github.com/opencode-ai/chatsync/internal/provider"
	"github.com/opencode-ai/chatsync/pkg/types"
)

// runToolPhase lets the model call tools once before it answers. Tool
// messages are streamed while they run and appended, finished, when the
// phase ends. An error means no tool message was published.
func (x *Exchange) runToolPhase(ctx context.Context) error {
	set, err := x.svc.opts.Tools.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire tools: %w", err)
	}
	defer func() {
		if err := set.Close(); err != nil {
			x.log.Debug().Err(err).Msg("Releasing tools failed")
		}
	}()

	if len(set.Tools) == 0 {
		return nil
	}

	results, err := x.callTools(ctx, set.Tools)
	if err != nil {
		return err
	}
	if len(results) > 0 {
		x.emit(ctx, true, results...)
	}
	return nil
}

// callTools runs one tool-enabled generation and invokes every tool call
// it returns. Pending tool messages go through a history notifier whose
// relay writes the full history on each change.
func (x *Exchange) callTools(ctx context.Context, tools []einotool.InvokableTool) ([]types.Message, error) {
	history := notify.New(x.ctx.Clone(), notify.WithEqual(func(a, b types.Context) bool {
		return reflect.DeepEqual(a, b)
	}))
	sub := history.Subscribe(func(c types.Context, changed bool) {
		if !changed {
			return
		}
		u := types.SnapshotUpdate(c)
		x.write(u)
		x.ctx = types.Merge(x.ctx, u)
	})
	defer sub.Cancel()

	byName := make(map[string]einotool.InvokableTool, len(tools))
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			x.log.Warn().Err(err).Msg("Skipping tool without info")
			continue
		}
		byName[info.Name] = t
		infos = append(infos, info)
	}

	prompt := ToolPromptMessages(x.ctx.History, x.svc.opts.Now())
	reply, err := x.model.Generate(ctx, prompt, provider.DefaultParams, infos)
	if err != nil {
		return nil, fmt.Errorf("tool generation: %w", err)
	}
	if len(reply.ToolCalls) == 0 {
		x.log.Debug().Msg("Model called no tools")
		return nil, nil
	}

	results := make([]types.Message, 0, len(reply.ToolCalls))
	for _, call := range reply.ToolCalls {
		name := call.Function.Name
		pending := newToolMessage(name)
		history.Set(types.Merge(history.Value(), types.NewUpdate(x.ctx.ID, pending)))

		text := x.invoke(ctx, byName[name], name, call.Function.Arguments)

		done := pending.Clone()
		done.Text = text
		done.Finished = true
		results = append(results, done)
	}
	return results, nil
}

func (x *Exchange) invoke(ctx context.Context, t einotool.InvokableTool, name, args string) string {
	log := x.log.With().Str("tool", name).Logger()
	if t == nil {
		log.Warn().Msg("Model called an unknown tool")
		return fmt.Sprintf("Error: unknown tool %q", name)
	}
	if args == "" {
		args = "{}"
	}
	out, err := t.InvokableRun(ctx, args)
	if err != nil {
		log.Warn().Err(err).Msg("Tool call failed")
		return "Error: " + err.Error()
	}
	log.Debug().Int("bytes", len(out)).Msg("Tool call finished")
	return out
}

func newToolMessage(name string) types.Message {
	return types.Message{
		ID:          types.NewMessageID(),
		Role:        types.RoleTool,
		Timestamp:   types.Now(),
		ToolName:    name,
		References:  []types.Reference{},
		Attachments: []types.Attachment{},
	}
}
