package provider

import "fmt"

// Kind identifies one of the supported providers.
type Kind string

const (
	Groq       Kind = "groq"
	OpenAI     Kind = "openai"
	OpenRouter Kind = "openrouter"
	Anthropic  Kind = "anthropic"
	Ark        Kind = "ark"
)

// Kinds lists every provider in catalog order.
var Kinds = []Kind{Groq, OpenAI, OpenRouter, Anthropic, Ark}

// Capabilities describes what the session layer may ask of a provider.
type Capabilities struct {
	// Streaming providers emit fragments; others answer in one piece.
	Streaming bool
	// Penalties reports support for presence and frequency penalties.
	Penalties bool
}

// Capabilities returns the capability flags of k.
func (k Kind) Capabilities() Capabilities {
	switch k {
	case Groq, OpenAI:
		return Capabilities{Streaming: true, Penalties: true}
	case OpenRouter:
		return Capabilities{Streaming: false, Penalties: true}
	case Anthropic, Ark:
		return Capabilities{Streaming: true}
	default:
		panic(fmt.Sprintf("provider: unknown kind %q", string(k)))
	}
}

// DisplayName returns a human-readable provider name.
func (k Kind) DisplayName() string {
	switch k {
	case Groq:
		return "Groq"
	case OpenAI:
		return "OpenAI"
	case OpenRouter:
		return "OpenRouter"
	case Anthropic:
		return "Anthropic"
	case Ark:
		return "ARK"
	default:
		return string(k)
	}
}

// ParseKind returns the Kind named by s.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Params are the sampling settings of one generation.
type Params struct {
	MaxTokens        int
	Temperature      float32
	PresencePenalty  float32
	FrequencyPenalty float32
}

// DefaultParams are used for the streamed reply.
var DefaultParams = Params{
	MaxTokens:        1000,
	Temperature:      0.9,
	PresencePenalty:  0.6,
	FrequencyPenalty: 0.6,
}
