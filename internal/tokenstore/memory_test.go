package tokenstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemory_SetKeepsRefreshToken(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	require.NoError(t, store.Set(ctx, "A1", "R1"))
	require.NoError(t, store.Set(ctx, "A2", ""))

	pair, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, Pair{AccessToken: "A2", RefreshToken: "R1"}, pair)
}

func TestMemory_ClearRemovesEverything(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	require.NoError(t, store.Set(ctx, "A1", "R1"))
	require.NoError(t, store.SetUser(ctx, []byte(`{"email":"a@b.c"}`)))
	require.NoError(t, store.Clear(ctx))

	pair, err := store.Get(ctx)
	require.NoError(t, err)
	assert.True(t, pair.Empty())

	user, err := store.User(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestMemory_EventsReachOtherHandlesOnly(t *testing.T) {
	ctx := context.Background()
	shared := NewShared()
	tabA, tabB := shared.Open(), shared.Open()
	defer tabA.Close()
	defer tabB.Close()

	eventsA, stopA := tabA.Subscribe()
	defer stopA()
	eventsB, stopB := tabB.Subscribe()
	defer stopB()

	require.NoError(t, tabA.Set(ctx, "A1", ""))

	ev := receive(t, eventsB)
	assert.Equal(t, KeyAccessToken, ev.Key)
	assert.Equal(t, tabA.Origin(), ev.Origin)
	assert.True(t, ev.IsSessionKey())
	assertNoEvent(t, eventsA)

	pair, err := tabB.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A1", pair.AccessToken)
}

func TestMemory_SlowSubscriberStillSeesChange(t *testing.T) {
	ctx := context.Background()
	shared := NewShared()
	writer, reader := shared.Open(), shared.Open()

	events, stop := reader.Subscribe()
	defer stop()

	for i := 0; i < subscriberBuffer*3; i++ {
		require.NoError(t, writer.Set(ctx, fmt.Sprintf("A%d", i), "R"))
	}

	assert.Len(t, events, subscriberBuffer)
}

func TestMemory_UnchangedWritesAreSilent(t *testing.T) {
	ctx := context.Background()
	shared := NewShared()
	writer, reader := shared.Open(), shared.Open()

	events, stop := reader.Subscribe()
	defer stop()

	require.NoError(t, writer.SetUser(ctx, []byte(`{"id":1}`)))
	receive(t, events)

	require.NoError(t, writer.SetUser(ctx, []byte(`{"id":1}`)))
	require.NoError(t, reader.SetUser(ctx, []byte(`{"id":1}`)))
	require.NoError(t, writer.Clear(ctx))

	ev := receive(t, events)
	assert.Equal(t, KeyUser, ev.Key)
	assertNoEvent(t, events)
}

func TestMemory_UnsubscribeClosesChannel(t *testing.T) {
	store := NewMemory()
	events, stop := store.Subscribe()
	stop()
	stop()

	_, ok := <-events
	assert.False(t, ok)
}
