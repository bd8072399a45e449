// Package audio synthesizes speech for finished assistant replies and keeps
// the resulting audio files by message id.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/opencode-ai/chatsync/internal/logging"
	"github.com/opencode-ai/chatsync/pkg/types"
)

// Defaults for the speech endpoint.
const (
	DefaultModel = string(openai.TTSModel1)
	DefaultVoice = string(openai.VoiceAlloy)
	// MaxInputLength is the longest text the speech endpoint accepts.
	MaxInputLength = 4096
)

// ErrNoAPIKey is returned by NewSynthesizer without an API key.
var ErrNoAPIKey = errors.New("audio: no API key configured")

// Synthesizer turns text into MP3 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
}

// OpenAISynthesizer calls the OpenAI speech endpoint.
type OpenAISynthesizer struct {
	client *openai.Client
	model  openai.SpeechModel
	voice  openai.SpeechVoice
}

// NewSynthesizer creates a synthesizer from the audio configuration.
func NewSynthesizer(cfg types.AudioConfig) (*OpenAISynthesizer, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model, voice := cfg.Model, cfg.Voice
	if model == "" {
		model = DefaultModel
	}
	if voice == "" {
		voice = DefaultVoice
	}
	return &OpenAISynthesizer{
		client: openai.NewClientWithConfig(clientCfg),
		model:  openai.SpeechModel(model),
		voice:  openai.SpeechVoice(voice),
	}, nil
}

// Synthesize implements Synthesizer. Text longer than MaxInputLength is cut.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	if r := []rune(text); len(r) > MaxInputLength {
		text = string(r[:MaxInputLength])
	}
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("create speech: %w", err)
	}
	return resp, nil
}

// Speaker synthesizes replies and stores them. It satisfies the session
// package's speaker contract.
type Speaker struct {
	synth Synthesizer
	store *Store
}

// NewSpeaker pairs a synthesizer with a store.
func NewSpeaker(synth Synthesizer, store *Store) *Speaker {
	return &Speaker{synth: synth, store: store}
}

// Speak synthesizes text and stores it under messageID.
func (s *Speaker) Speak(ctx context.Context, messageID, text string) error {
	audio, err := s.synth.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	defer audio.Close()

	n, err := s.store.Write(messageID, audio)
	if err != nil {
		return err
	}
	logging.Debug().Str("messageID", messageID).Int64("bytes", n).Msg("Stored speech audio")
	return nil
}

// Remove deletes the audio of the given messages.
func (s *Speaker) Remove(messageIDs ...string) error {
	return s.store.Remove(messageIDs...)
}

// Store returns the underlying store.
func (s *Speaker) Store() *Store { return s.store }
