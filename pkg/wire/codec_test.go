package wire

import (
	"bytes"
	"context"
	"math/rand"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/chatsync/pkg/types"
)

func sampleUpdates() []types.Update {
	return []types.Update{
		{SessionID: "s1", Timestamp: 1, Messages: []types.Message{{ID: "m1", Role: types.RoleUser, Text: "hi", Finished: true}}},
		{SessionID: "s1", Timestamp: 2, Messages: []types.Message{{ID: "m2", Role: types.RoleAssistant, Text: "line one\nline two\x1e\n"}}},
		{SessionID: "s1", Timestamp: 3, Messages: []types.Message{{ID: "m2", Role: types.RoleAssistant, Text: "unicode ✓ \"quoted\"", Finished: true}}},
		{SessionID: "s2", Timestamp: 4, Messages: []types.Message{}},
	}
}

func encodeAll(t *testing.T, updates []types.Update) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, u := range updates {
		require.NoError(t, enc.Write(u))
	}
	return buf.Bytes()
}

func TestEncode_TerminatorNeverInPayload(t *testing.T) {
	for _, u := range sampleUpdates() {
		frame, err := Encode(u)
		require.NoError(t, err)

		assert.True(t, bytes.HasSuffix(frame, Terminator))
		payload := frame[:len(frame)-len(Terminator)]
		assert.False(t, bytes.Contains(payload, Terminator), "payload contains terminator: %q", payload)
		assert.False(t, bytes.Contains(payload, []byte{'\n'}), "payload contains raw newline: %q", payload)
	}
}

func TestDecoder_WholeStream(t *testing.T) {
	want := sampleUpdates()
	got := NewDecoder().Feed(encodeAll(t, want))
	assert.Equal(t, want, got)
}

func TestDecoder_ArbitrarySplits(t *testing.T) {
	want := sampleUpdates()
	stream := encodeAll(t, want)
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		d := NewDecoder()
		var got []types.Update
		rest := stream
		for len(rest) > 0 {
			n := 1 + rng.Intn(len(rest))
			got = append(got, d.Feed(rest[:n])...)
			rest = rest[n:]
		}
		require.Equal(t, want, got, "trial %d", trial)
		assert.Zero(t, d.Buffered())
	}
}

func TestDecoder_SplitInsideTerminator(t *testing.T) {
	frame, err := Encode(sampleUpdates()[0])
	require.NoError(t, err)

	d := NewDecoder()
	assert.Empty(t, d.Feed(frame[:len(frame)-1]))
	assert.Equal(t, len(frame)-1, d.Buffered())

	got := d.Feed(frame[len(frame)-1:])
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].Messages[0].ID)
}

func TestDecoder_SkipsMalformedSegments(t *testing.T) {
	good, err := Encode(sampleUpdates()[0])
	require.NoError(t, err)

	var stream []byte
	stream = append(stream, []byte(`{"sessionId": broken`)...)
	stream = append(stream, Terminator...)
	stream = append(stream, Terminator...) // empty segment
	stream = append(stream, good...)

	d := NewDecoder()
	got := d.Feed(stream)

	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].SessionID)
	assert.Equal(t, 1, d.Skipped)
}

func TestReadAll_OneByteAtATime(t *testing.T) {
	want := sampleUpdates()
	stream := encodeAll(t, want)
	// Trailing bytes without a terminator are dropped at EOF.
	stream = append(stream, []byte(`{"sessionId":"partial"`)...)

	var got []types.Update
	err := ReadAll(context.Background(), iotest.OneByteReader(bytes.NewReader(stream)), func(u types.Update) {
		got = append(got, u)
	})

	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReadAll_ReadError(t *testing.T) {
	err := ReadAll(context.Background(), iotest.ErrReader(assert.AnError), func(types.Update) {})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestReadAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ReadAll(ctx, strings.NewReader("never read"), func(types.Update) {})
	assert.ErrorIs(t, err, context.Canceled)
}
