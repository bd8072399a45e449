package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/chatsync/internal/event"
	"github.com/opencode-ai/chatsync/internal/logging"
	"github.com/opencode-ai/chatsync/internal/notify"
	"github.com/opencode-ai/chatsync/internal/provider"
	"github.com/opencode-ai/chatsync/pkg/types"
	"github.com/opencode-ai/chatsync/pkg/wire"
)

const (
	// MaxRetries is the number of retries when opening a provider stream.
	MaxRetries = 3
	// RetryInitialInterval is the default initial backoff interval.
	RetryInitialInterval = 500 * time.Millisecond
	// RetryMaxInterval caps the backoff interval.
	RetryMaxInterval = 10 * time.Second
)

// State is the phase an exchange is in.
type State int

const (
	StateInit State = iota
	StateToolPhase
	StateResponsePhase
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateToolPhase:
		return "TOOL_PHASE"
	case StateResponsePhase:
		return "RESPONSE_PHASE"
	case StateFinalized:
		return "FINALIZED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// FrameWriter writes Update frames to one observer. After the first write
// error, or once its context is done, it drops every further frame.
// It is not safe for concurrent use.
type FrameWriter struct {
	ctx    context.Context
	enc    *wire.Encoder
	err    error
	frames int
}

// NewFrameWriter writes frames to w until ctx is done.
func NewFrameWriter(ctx context.Context, w io.Writer) *FrameWriter {
	return &FrameWriter{ctx: ctx, enc: wire.NewEncoder(w)}
}

// Write sends u and reports whether it was written.
func (f *FrameWriter) Write(u types.Update) bool {
	if f.err != nil {
		return false
	}
	if err := f.ctx.Err(); err != nil {
		f.err = err
		return false
	}
	if err := f.enc.Write(u); err != nil {
		f.err = err
		return false
	}
	f.frames++
	return true
}

// Err returns the error that closed the writer, if any.
func (f *FrameWriter) Err() error { return f.err }

// Frames returns the number of frames written.
func (f *FrameWriter) Frames() int { return f.frames }

// Exchange is one chat request against one session.
type Exchange struct {
	svc   *Service
	model provider.Model
	user  types.Message

	ctx     types.Context
	created bool
	state   State
	writer  *FrameWriter
	release func()
	final   types.Message
	errs    []error
	log     zerolog.Logger
}

func newExchange(svc *Service, model provider.Model, user types.Message) *Exchange {
	return &Exchange{
		svc:   svc,
		model: model,
		user:  user,
		log:   logging.Component("exchange"),
	}
}

// SessionID returns the id of the session the exchange runs against.
func (x *Exchange) SessionID() string { return x.ctx.ID }

// Model returns the model the exchange answers with.
func (x *Exchange) Model() provider.Model { return x.model }

// Created reports whether the exchange creates a new session.
func (x *Exchange) Created() bool { return x.created }

// State returns the current phase.
func (x *Exchange) State() State { return x.state }

// Context returns the exchange's view of the session.
func (x *Exchange) Context() types.Context { return x.ctx.Clone() }

// Final returns the terminal assistant message once the response phase ended.
func (x *Exchange) Final() types.Message { return x.final }

// Close releases the session lock. Run calls it; it is safe to call again.
func (x *Exchange) Close() {
	if x.release != nil {
		x.release()
		x.release = nil
	}
}

// Run drives the exchange to completion, writing frames to w. Model and tool
// calls are not cancelled when ctx is; ctx only bounds the writes. The
// returned error joins every persistence failure.
func (x *Exchange) Run(ctx context.Context, w io.Writer) error {
	defer x.Close()

	x.writer = NewFrameWriter(ctx, w)
	x.log = x.log.With().Str("sessionID", x.ctx.ID).Str("model", x.model.String()).Logger()
	work := context.WithoutCancel(ctx)
	start := time.Now()

	x.init(work)

	if x.model.SupportsTools() && x.svc.opts.Tools != nil {
		x.setState(StateToolPhase)
		if err := x.runToolPhase(work); err != nil {
			x.log.Warn().Err(err).Msg("Tool phase aborted, answering without tools")
		}
	}

	x.setState(StateResponsePhase)
	x.respond(work)

	x.setState(StateFinalized)
	x.finalize(work)

	if err := x.writer.Err(); err != nil {
		x.log.Debug().Err(err).Msg("Observer went away before the end of the exchange")
	}
	x.log.Info().
		Int("frames", x.writer.Frames()).
		Dur("duration", time.Since(start)).
		Msg("Exchange finished")

	return errors.Join(x.errs...)
}

func (x *Exchange) setState(s State) {
	x.state = s
	x.log.Debug().Str("state", s.String()).Msg("Exchange state")
}

// init appends the user message and announces it. A new session announces
// just that message, an existing one its whole history.
func (x *Exchange) init(ctx context.Context) {
	x.setState(StateInit)

	x.ctx = types.Merge(x.ctx, types.NewUpdate(x.ctx.ID, x.user))

	if x.created {
		x.write(types.NewUpdate(x.ctx.ID, x.user))
		return
	}
	x.write(types.SnapshotUpdate(x.ctx))
}

// respond runs the response phase. It always publishes a finished
// assistant message, empty when the provider failed before any text.
func (x *Exchange) respond(ctx context.Context) {
	base := types.NewAssistantMessage(string(x.model.Kind()), x.model.ID())
	msgs := notify.New(base)
	sub := msgs.Subscribe(func(m types.Message, _ bool) {
		x.emit(ctx, m.Finished, m)
		if m.Finished {
			x.final = m
		}
	})
	defer sub.Cancel()

	prompt := PromptMessages(x.ctx.History, SystemPrompt(x.svc.opts.Now(), x.svc.opts.SystemPrompt))

	if !x.model.Kind().Capabilities().Streaming {
		text := ""
		reply, err := x.model.Generate(ctx, prompt, provider.DefaultParams, nil)
		if err != nil {
			x.log.Error().Err(err).Msg("Generation failed")
		} else {
			text = reply.Content
		}
		ProduceOnce(base, text, msgs)
		return
	}

	stream, err := x.openStream(ctx, prompt)
	if err != nil {
		x.log.Error().Err(err).Msg("Failed to open response stream")
		ProduceOnce(base, "", msgs)
		return
	}
	if err := Produce(ctx, base, stream, msgs); err != nil {
		x.log.Error().Err(err).Msg("Response stream failed")
	}
}

func (x *Exchange) openStream(ctx context.Context, prompt []*schema.Message) (provider.FragmentStream, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = x.svc.opts.RetryInterval
	b.MaxInterval = RetryMaxInterval
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()

	attempt := 0
	return backoff.RetryWithData(func() (provider.FragmentStream, error) {
		attempt++
		stream, err := x.model.Stream(ctx, prompt, provider.DefaultParams)
		if err != nil {
			x.log.Warn().Err(err).Int("attempt", attempt).Msg("Opening response stream failed")
		}
		return stream, err
	}, backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries), ctx))
}

// finalize attaches audio to the final message when speech is enabled.
func (x *Exchange) finalize(ctx context.Context) {
	speaker := x.svc.opts.Speaker
	if speaker == nil || x.final.Role != types.RoleAssistant || x.final.Text == "" {
		return
	}
	if err := speaker.Speak(ctx, x.final.ID, x.final.Text); err != nil {
		x.log.Error().Err(err).Str("messageID", x.final.ID).Msg("Speech synthesis failed")
		return
	}
	m := x.final.Clone()
	m.HasAudio = true
	x.final = m
	x.emit(ctx, true, m)
}

// emit writes an update carrying msgs, folds it into the context and
// persists the result when persist is set.
func (x *Exchange) emit(ctx context.Context, persist bool, msgs ...types.Message) {
	u := types.NewUpdate(x.ctx.ID, msgs...)
	x.write(u)
	x.ctx = types.Merge(x.ctx, u)
	if persist {
		x.persist(ctx)
	}
}

func (x *Exchange) write(u types.Update) {
	x.writer.Write(u)
	if p := x.svc.opts.Publisher; p != nil {
		if err := p.Publish(event.Event{Type: event.ChatUpdated, Update: u}); err != nil {
			x.log.Debug().Err(err).Msg("Publish update failed")
		}
	}
}

func (x *Exchange) persist(ctx context.Context) {
	if err := x.svc.opts.Store.Write(ctx, x.ctx); err != nil {
		x.log.Error().Err(err).Msg("Failed to persist chat")
		x.errs = append(x.errs, fmt.Errorf("persist chat %s: %w", x.ctx.ID, err))
	}
}
