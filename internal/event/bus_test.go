package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/chatsync/pkg/types"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "channel closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBus_DeliversInOrderForSession(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.Subscribe(ctx, "s1")
	require.NoError(t, err)

	for i, text := range []string{"H", "He", "Hel"} {
		require.NoError(t, bus.Publish(Event{Type: ChatUpdated, Update: types.Update{
			SessionID: "s1",
			Timestamp: int64(i),
			Messages:  []types.Message{{ID: "m", Text: text}},
		}}))
	}

	for _, want := range []string{"H", "He", "Hel"} {
		e := receive(t, events)
		assert.Equal(t, ChatUpdated, e.Type)
		assert.Equal(t, want, e.Update.Messages[0].Text)
	}
}

func TestBus_FiltersOtherSessions(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mine, err := bus.Subscribe(ctx, "mine")
	require.NoError(t, err)
	all, err := bus.Subscribe(ctx, "")
	require.NoError(t, err)

	bus.PublishUpdate(types.NewUpdate("other"))
	bus.PublishUpdate(types.NewUpdate("mine"))

	assert.Equal(t, "mine", receive(t, mine).SessionID())
	assert.Equal(t, "other", receive(t, all).SessionID())
	assert.Equal(t, "mine", receive(t, all).SessionID())
}

func TestBus_NoReplayForLateSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	bus.PublishUpdate(types.NewUpdate("s1"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := bus.Subscribe(ctx, "s1")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(Event{Type: ChatDeleted, Update: types.NewUpdate("s1")}))
	assert.Equal(t, ChatDeleted, receive(t, events).Type)
}

func TestBus_SubscriptionClosesWithContext(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := bus.Subscribe(ctx, "s1")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}

func TestBus_PublishAfterClose(t *testing.T) {
	bus := NewBus()
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())
	assert.NoError(t, bus.Publish(Event{Type: ChatUpdated}))
}
