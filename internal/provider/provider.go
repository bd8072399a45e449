package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/opencode-ai/chatsync/pkg/types"
)

// Provider is one configured LLM backend.
type Provider interface {
	// Kind returns the provider variant.
	Kind() Kind

	// Models returns the provider's model catalog.
	Models(ctx context.Context) ([]types.ModelDescriptor, error)

	// ChatModel returns the eino chat model for modelID. Implementations
	// cache one instance per model id.
	ChatModel(ctx context.Context, modelID string) (model.ToolCallingChatModel, error)
}

// FragmentStream is a single-consumption iterator over generated text.
type FragmentStream interface {
	// Next returns the next non-empty fragment. It returns io.EOF when the
	// generation ended normally.
	Next(ctx context.Context) (string, error)

	// Close releases the underlying stream. It is safe to call more than once.
	Close()
}

// Model is a resolved provider and model pair.
type Model struct {
	Provider   Provider
	Descriptor types.ModelDescriptor
}

// Kind returns the provider kind of m.
func (m Model) Kind() Kind { return m.Provider.Kind() }

// ID returns the model id.
func (m Model) ID() string { return m.Descriptor.ID }

// SupportsTools reports whether the tool phase may run for m.
func (m Model) SupportsTools() bool { return m.Descriptor.SupportsTools }

func (m Model) String() string { return string(m.Kind()) + "/" + m.ID() }

// Stream opens a streaming generation.
func (m Model) Stream(ctx context.Context, msgs []*schema.Message, p Params) (FragmentStream, error) {
	cm, err := m.Provider.ChatModel(ctx, m.ID())
	if err != nil {
		return nil, err
	}
	reader, err := cm.Stream(ctx, msgs, callOptions(p)...)
	if err != nil {
		return nil, fmt.Errorf("%s: open stream: %w", m, err)
	}
	return NewEinoStream(reader), nil
}

// Generate runs one non-streaming generation. When tools is non-empty they
// are bound to the model and the reply may carry tool calls.
func (m Model) Generate(ctx context.Context, msgs []*schema.Message, p Params, tools []*schema.ToolInfo) (*schema.Message, error) {
	cm, err := m.Provider.ChatModel(ctx, m.ID())
	if err != nil {
		return nil, err
	}
	if len(tools) > 0 {
		cm, err = cm.WithTools(tools)
		if err != nil {
			return nil, fmt.Errorf("%s: bind tools: %w", m, err)
		}
	}
	msg, err := cm.Generate(ctx, msgs, callOptions(p)...)
	if err != nil {
		return nil, fmt.Errorf("%s: generate: %w", m, err)
	}
	return msg, nil
}

func callOptions(p Params) []model.Option {
	var opts []model.Option
	if p.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(p.MaxTokens))
	}
	if p.Temperature > 0 {
		opts = append(opts, model.WithTemperature(p.Temperature))
	}
	return opts
}

// EinoStream adapts an eino stream reader to FragmentStream.
type EinoStream struct {
	reader *schema.StreamReader[*schema.Message]
	done   bool
}

// NewEinoStream wraps reader.
func NewEinoStream(reader *schema.StreamReader[*schema.Message]) *EinoStream {
	return &EinoStream{reader: reader}
}

// Next implements FragmentStream.
func (s *EinoStream) Next(ctx context.Context) (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		chunk, err := s.reader.Recv()
		if errors.Is(err, io.EOF) {
			s.done = true
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		return chunk.Content, nil
	}
}

// Close implements FragmentStream.
func (s *EinoStream) Close() {
	s.done = true
	s.reader.Close()
}

// ToolInfoFromSchema builds an eino tool definition from a JSON Schema
// object describing the tool's input.
func ToolInfoFromSchema(name, desc string, inputSchema json.RawMessage) *schema.ToolInfo {
	info := &schema.ToolInfo{Name: name, Desc: desc}
	if params := parseJSONSchemaToParams(inputSchema); len(params) > 0 {
		info.ParamsOneOf = schema.NewParamsOneOfByParams(params)
	}
	return info
}

// parseJSONSchemaToParams converts JSON Schema properties to eino parameters.
func parseJSONSchemaToParams(schemaJSON json.RawMessage) map[string]*schema.ParameterInfo {
	if len(schemaJSON) == 0 {
		return nil
	}
	var jsonSchema struct {
		Properties map[string]struct {
			Type        string   `json:"type"`
			Description string   `json:"description"`
			Enum        []string `json:"enum"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schemaJSON, &jsonSchema); err != nil {
		return nil
	}

	required := make(map[string]bool, len(jsonSchema.Required))
	for _, r := range jsonSchema.Required {
		required[r] = true
	}

	params := make(map[string]*schema.ParameterInfo, len(jsonSchema.Properties))
	for name, prop := range jsonSchema.Properties {
		paramType := schema.String
		switch prop.Type {
		case "integer":
			paramType = schema.Integer
		case "number":
			paramType = schema.Number
		case "boolean":
			paramType = schema.Boolean
		case "array":
			paramType = schema.Array
		case "object":
			paramType = schema.Object
		}
		params[name] = &schema.ParameterInfo{
			Type:     paramType,
			Desc:     prop.Description,
			Enum:     prop.Enum,
			Required: required[name],
		}
	}
	return params
}
