package client

import (
	"errors"
	"io"
	"sync"

	"github.com/opencode-ai/chatsync/pkg/types"
	"github.com/opencode-ai/chatsync/pkg/wire"
)

// Stream reads updates from a frame stream.
type Stream struct {
	body    io.ReadCloser
	dec     *wire.Decoder
	pending []types.Update
	buf     []byte
	err     error

	closeOnce sync.Once
}

func newStream(body io.ReadCloser) *Stream {
	return &Stream{body: body, dec: wire.NewDecoder(), buf: make([]byte, 32*1024)}
}

// Next returns the next update. It returns io.EOF once the server ended
// the stream.
func (s *Stream) Next() (types.Update, error) {
	for len(s.pending) == 0 {
		if s.err != nil {
			return types.Update{}, s.err
		}
		n, err := s.body.Read(s.buf)
		if n > 0 {
			s.pending = append(s.pending, s.dec.Feed(s.buf[:n])...)
		}
		if err != nil {
			s.err = err
		}
	}
	u := s.pending[0]
	s.pending = s.pending[1:]
	return u, nil
}

// All reads the stream to its end.
func (s *Stream) All() ([]types.Update, error) {
	var out []types.Update
	for {
		u, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, u)
	}
}

// Body returns the raw frame stream.
func (s *Stream) Body() io.Reader { return s.body }

// Close releases the connection.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.body.Close() })
	return err
}
