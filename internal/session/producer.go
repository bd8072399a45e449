package session

import (
	"context"
	"errors"
	"io"

	"github.com/opencode-ai/chatsync/internal/notify"
	"github.com/opencode-ai/chatsync/internal/provider"
	"github.com/opencode-ai/chatsync/pkg/types"
)

// Produce streams base through n as the fragments of stream arrive.
//
// Every published value is a new Message with the same id. base itself is
// not published: each fragment publishes the accumulated text, and the last
// value, published on end of stream or on error, has Finished set. Exactly
// one finished value is published. Produce closes stream and returns the error
// that ended it, or nil on a normal end.
func Produce(ctx context.Context, base types.Message, stream provider.FragmentStream, n *notify.Notifier[types.Message]) error {
	defer stream.Close()

	current := base.Clone()
	current.Text = ""
	current.Finished = false

	for {
		fragment, err := stream.Next(ctx)
		if err != nil {
			final := current.Clone()
			final.Finished = true
			n.Set(final)
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		next := current.Clone()
		next.Text += fragment
		n.Set(next)
		current = next
	}
}

// ProduceOnce publishes a single finished value carrying text. It serves
// providers without streaming.
func ProduceOnce(base types.Message, text string, n *notify.Notifier[types.Message]) {
	final := base.Clone()
	final.Text = text
	final.Finished = true
	n.Set(final)
}
