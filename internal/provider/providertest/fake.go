package providertest

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/opencode-ai/chatsync/internal/provider"
	"github.com/opencode-ai/chatsync/pkg/types"
)

// ChatModel is a scripted eino chat model.
type ChatModel struct {
	mu sync.Mutex

	// Fragments are streamed in order by Stream.
	Fragments []string
	// StreamErr, when set, is sent after the fragments instead of EOF.
	StreamErr error
	// OpenFailures makes the first n Stream calls fail with ErrOpen.
	OpenFailures int
	// Reply is returned by Generate when no tools are bound.
	Reply string
	// ToolCalls are returned by Generate when tools are bound.
	ToolCalls []schema.ToolCall
	// GenerateErr fails every Generate call.
	GenerateErr error

	streamCalls   int
	generateCalls int
	inputs        [][]*schema.Message
	boundTools    []*schema.ToolInfo
}

// ErrOpen is returned by Stream while OpenFailures remain.
var ErrOpen = errors.New("providertest: stream unavailable")

var _ model.ToolCallingChatModel = (*ChatModel)(nil)

// Generate implements model.BaseChatModel.
func (c *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return c.generate(input, nil)
}

func (c *ChatModel) generate(input []*schema.Message, tools []*schema.ToolInfo) (*schema.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generateCalls++
	c.inputs = append(c.inputs, input)
	if tools != nil {
		c.boundTools = tools
	}
	if c.GenerateErr != nil {
		return nil, c.GenerateErr
	}
	if len(tools) > 0 {
		return &schema.Message{Role: schema.Assistant, ToolCalls: c.ToolCalls}, nil
	}
	return schema.AssistantMessage(c.Reply, nil), nil
}

// Stream implements model.BaseChatModel.
func (c *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	c.mu.Lock()
	c.streamCalls++
	c.inputs = append(c.inputs, input)
	if c.OpenFailures > 0 {
		c.OpenFailures--
		c.mu.Unlock()
		return nil, ErrOpen
	}
	fragments := append([]string(nil), c.Fragments...)
	streamErr := c.StreamErr
	c.mu.Unlock()

	sr, sw := schema.Pipe[*schema.Message](len(fragments) + 1)
	go func() {
		defer sw.Close()
		for _, f := range fragments {
			if sw.Send(schema.AssistantMessage(f, nil), nil) {
				return
			}
		}
		if streamErr != nil {
			sw.Send(nil, streamErr)
		}
	}()
	return sr, nil
}

// WithTools implements model.ToolCallingChatModel.
func (c *ChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return &boundModel{parent: c, tools: tools}, nil
}

// StreamCalls returns the number of Stream invocations.
func (c *ChatModel) StreamCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamCalls
}

// GenerateCalls returns the number of Generate invocations.
func (c *ChatModel) GenerateCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generateCalls
}

// Inputs returns the prompts passed to the model so far.
func (c *ChatModel) Inputs() [][]*schema.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]*schema.Message(nil), c.inputs...)
}

// BoundTools returns the tools of the last tool-bound Generate call.
func (c *ChatModel) BoundTools() []*schema.ToolInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.boundTools
}

type boundModel struct {
	parent *ChatModel
	tools  []*schema.ToolInfo
}

func (b *boundModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return b.parent.generate(input, b.tools)
}

func (b *boundModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return b.parent.Stream(ctx, input, opts...)
}

func (b *boundModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return &boundModel{parent: b.parent, tools: tools}, nil
}

// Provider is an in-memory provider serving one scripted chat model for
// every model id.
type Provider struct {
	ProviderKind provider.Kind
	Catalog      []types.ModelDescriptor
	Model        *ChatModel
	ModelsErr    error

	mu          sync.Mutex
	modelsCalls int
}

var _ provider.Provider = (*Provider)(nil)

// NewProvider creates a fake provider of kind k with the given catalog.
func NewProvider(k provider.Kind, catalog ...types.ModelDescriptor) *Provider {
	return &Provider{ProviderKind: k, Catalog: catalog, Model: &ChatModel{}}
}

// Kind implements provider.Provider.
func (p *Provider) Kind() provider.Kind { return p.ProviderKind }

// Models implements provider.Provider.
func (p *Provider) Models(ctx context.Context) ([]types.ModelDescriptor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modelsCalls++
	if p.ModelsErr != nil {
		return nil, p.ModelsErr
	}
	return p.Catalog, nil
}

// ChatModel implements provider.Provider.
func (p *Provider) ChatModel(ctx context.Context, modelID string) (model.ToolCallingChatModel, error) {
	return p.Model, nil
}

// ModelsCalls returns how often the catalog was listed.
func (p *Provider) ModelsCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.modelsCalls
}

// Stream is a FragmentStream over a fixed slice.
type Stream struct {
	Fragments []string
	// Err is returned after the fragments instead of io.EOF.
	Err error

	pos    int
	closed bool
}

// NewStream returns a stream yielding fragments then io.EOF.
func NewStream(fragments ...string) *Stream {
	return &Stream{Fragments: fragments}
}

// Next implements provider.FragmentStream.
func (s *Stream) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.closed {
		return "", io.EOF
	}
	if s.pos < len(s.Fragments) {
		s.pos++
		return s.Fragments[s.pos-1], nil
	}
	if s.Err != nil {
		return "", s.Err
	}
	return "", io.EOF
}

// Close implements provider.FragmentStream.
func (s *Stream) Close() { s.closed = true }

// Closed reports whether Close was called.
func (s *Stream) Closed() bool { return s.closed }
