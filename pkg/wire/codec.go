// Package wire frames Updates onto a continuous byte stream.
//
// Each frame is the compact JSON encoding of one Update followed by
// Terminator. encoding/json escapes every control byte inside strings and
// emits no raw newlines, so Terminator never occurs inside a payload.
package wire

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/chatsync/internal/logging"
	"github.com/opencode-ai/chatsync/pkg/types"
)

// Terminator delimits successive frames: ASCII record separator, newline.
var Terminator = []byte{0x1e, '\n'}

// Encode serializes u into a single frame.
func Encode(u types.Update) ([]byte, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("encode update: %w", err)
	}
	return append(data, Terminator...), nil
}

// Encoder writes frames to an underlying writer.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Write encodes u, writes the frame and flushes w when it supports flushing.
func (e *Encoder) Write(u types.Update) error {
	frame, err := Encode(u)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(frame); err != nil {
		return err
	}
	if f, ok := e.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// Decoder reassembles Updates from arbitrarily split chunks of a stream.
type Decoder struct {
	buf []byte
	log zerolog.Logger

	// Skipped counts segments that failed to decode.
	Skipped int
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{log: logging.Component("wire")}
}

// Feed appends chunk to the pending bytes and returns every Update completed
// by it, in stream order. A trailing partial frame stays buffered for the
// next call. Segments that are not valid Updates are logged and skipped.
func (d *Decoder) Feed(chunk []byte) []types.Update {
	d.buf = append(d.buf, chunk...)

	var out []types.Update
	for {
		i := bytes.Index(d.buf, Terminator)
		if i < 0 {
			break
		}
		segment := d.buf[:i]
		d.buf = d.buf[i+len(Terminator):]

		segment = bytes.TrimSpace(segment)
		if len(segment) == 0 {
			continue
		}

		var u types.Update
		if err := json.Unmarshal(segment, &u); err != nil {
			d.Skipped++
			d.log.Warn().Err(err).Int("bytes", len(segment)).Msg("skipping malformed frame")
			continue
		}
		out = append(out, u)
	}

	// Compact so consumed frames can be collected.
	if len(d.buf) > 0 {
		d.buf = append([]byte(nil), d.buf...)
	} else {
		d.buf = nil
	}
	return out
}

// Buffered returns the number of bytes waiting for a terminator.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// ReadAll reads r to the end, calling fn for every decoded Update in order.
// It returns nil at EOF, the context's error when ctx is done, or the read
// error. Bytes left without a terminator at EOF are discarded.
func ReadAll(ctx context.Context, r io.Reader, fn func(types.Update)) error {
	d := NewDecoder()
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			for _, u := range d.Feed(buf[:n]) {
				fn(u)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if d.Buffered() > 0 {
					d.log.Debug().Int("bytes", d.Buffered()).Msg("discarding unterminated trailing frame")
				}
				return nil
			}
			return err
		}
	}
}
