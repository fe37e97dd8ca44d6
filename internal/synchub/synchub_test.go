package synchub

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"match-connect/internal/metrics"
	"match-connect/internal/tokenstore"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

func startHub(t *testing.T) (*Hub, string, *metrics.Metrics) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	_, m := metrics.NewRegistry()
	hub := NewHub(nil, m)
	r := gin.New()
	r.GET("/ws/storage", hub.Handler())

	server := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return hub, "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/storage", m
}

type process struct {
	relay *Relay
	store *Synced
}

func startProcess(t *testing.T, ctx context.Context, hubURL, room string) process {
	t.Helper()
	relay, err := NewRelay(hubURL, room, 20*time.Millisecond, nil, nil)
	require.NoError(t, err)
	store := NewSynced(tokenstore.NewMemory(), relay, nil)

	go relay.Run(ctx)
	go store.Run(ctx)
	return process{relay: relay, store: store}
}

func collectKeys(t *testing.T, events <-chan tokenstore.Event, want int) map[string]string {
	t.Helper()
	keys := make(map[string]string)
	deadline := time.After(waitFor)
	for len(keys) < want {
		select {
		case ev := <-events:
			keys[ev.Key] = ev.Origin
		case <-deadline:
			t.Fatalf("got %d of %d events: %v", len(keys), want, keys)
		}
	}
	return keys
}

func TestSynced_PropagatesAcrossProcesses(t *testing.T) {
	hub, url, m := startHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := startProcess(t, ctx, url, "alice")
	b := startProcess(t, ctx, url, "alice")

	require.Eventually(t, func() bool {
		return hub.Clients("alice") == 2 && a.relay.Connected() && b.relay.Connected()
	}, waitFor, tick)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.HubConnections))

	events, unsubscribe := b.store.Subscribe()
	defer unsubscribe()

	require.NoError(t, a.store.Set(ctx, "A1", "R1"))
	require.NoError(t, a.store.SetUser(ctx, []byte(`{"id":1,"role":"recruiter"}`)))

	require.Eventually(t, func() bool {
		pair, _ := b.store.Get(ctx)
		user, _ := b.store.User(ctx)
		return pair == tokenstore.Pair{AccessToken: "A1", RefreshToken: "R1"} && len(user) > 0
	}, waitFor, tick)

	keys := collectKeys(t, events, 3)
	assert.Equal(t, a.store.Origin(), keys[tokenstore.KeyAccessToken])
	assert.Contains(t, keys, tokenstore.KeyUser)

	require.NoError(t, a.store.Clear(ctx))
	require.Eventually(t, func() bool {
		pair, _ := b.store.Get(ctx)
		user, _ := b.store.User(ctx)
		return pair.Empty() && user == nil
	}, waitFor, tick)
}

func TestSynced_RoomsAreIsolated(t *testing.T) {
	hub, url, _ := startHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := startProcess(t, ctx, url, "alice")
	other := startProcess(t, ctx, url, "bob")

	require.Eventually(t, func() bool {
		return hub.Clients("alice") == 1 && hub.Clients("bob") == 1
	}, waitFor, tick)

	require.NoError(t, a.store.Set(ctx, "A1", "R1"))
	assert.Never(t, func() bool {
		pair, _ := other.store.Get(ctx)
		return !pair.Empty()
	}, 200*time.Millisecond, tick)
}

func TestRelay_Reconnects(t *testing.T) {
	hub, url, _ := startHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := startProcess(t, ctx, url, "alice")
	b := startProcess(t, ctx, url, "alice")
	require.Eventually(t, func() bool { return hub.Clients("alice") == 2 }, waitFor, tick)

	hub.Close()
	require.Eventually(t, func() bool { return hub.Clients("alice") == 2 && a.relay.Connected() }, waitFor, tick)

	require.NoError(t, a.store.Set(ctx, "A9", "R9"))
	require.Eventually(t, func() bool {
		pair, _ := b.store.Get(ctx)
		return pair.AccessToken == "A9"
	}, waitFor, tick)
}

func TestRelay_Validation(t *testing.T) {
	_, err := NewRelay("http://localhost/ws", "", 0, nil, nil)
	assert.Error(t, err)

	relay, err := NewRelay("ws://localhost/ws/storage", "alice", 0, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost/ws/storage?room=alice", relay.url)
	assert.False(t, relay.Connected())
	assert.ErrorIs(t, relay.Publish(Message{Origin: "x"}), ErrNotConnected)
}

func TestHub_DropsInvalidMessages(t *testing.T) {
	hub, url, _ := startHub(t)

	sender, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer sender.Close()
	receiver, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer receiver.Close()

	require.Eventually(t, func() bool { return hub.Clients(defaultRoom) == 2 }, waitFor, tick)

	require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, sender.WriteJSON(Message{Type: "hello", Origin: "x"}))
	require.NoError(t, sender.WriteJSON(Message{Type: TypeSnapshot, Origin: "x", AccessToken: "A1"}))

	receiver.SetReadDeadline(time.Now().Add(waitFor))
	var got Message
	require.NoError(t, receiver.ReadJSON(&got))
	assert.Equal(t, "A1", got.AccessToken)
	assert.Equal(t, "x", got.Origin)
}

type fakePublisher struct {
	mu        sync.Mutex
	published []Message
	err       error
	incoming  chan Message
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{incoming: make(chan Message, 4)}
}

func (f *fakePublisher) Publish(msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakePublisher) Messages() <-chan Message {
	return f.incoming
}

func (f *fakePublisher) last(t *testing.T) Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.published)
	return f.published[len(f.published)-1]
}

func TestSynced_PublishesSnapshots(t *testing.T) {
	ctx := context.Background()
	pub := newFakePublisher()
	store := NewSynced(tokenstore.NewMemory(), pub, nil)

	require.NoError(t, store.Set(ctx, "A1", "R1"))
	msg := pub.last(t)
	assert.Equal(t, TypeSnapshot, msg.Type)
	assert.Equal(t, store.Origin(), msg.Origin)
	assert.Equal(t, "A1", msg.AccessToken)
	assert.Equal(t, "R1", msg.RefreshToken)

	require.NoError(t, store.Set(ctx, "A2", ""))
	assert.Equal(t, "R1", pub.last(t).RefreshToken)

	pub.err = ErrNotConnected
	require.NoError(t, store.Clear(ctx))
	pair, err := store.Get(ctx)
	require.NoError(t, err)
	assert.True(t, pair.Empty())
}

func TestSynced_AppliesRemoteSnapshots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shared := tokenstore.NewShared()
	inner := shared.Open()
	sibling := shared.Open()
	pub := newFakePublisher()
	store := NewSynced(inner, pub, nil)

	events, unsubscribe := store.Subscribe()
	defer unsubscribe()
	go store.Run(ctx)

	require.NoError(t, store.Set(ctx, "A1", "R1"))
	require.NoError(t, store.SetUser(ctx, []byte(`{"id":1}`)))

	// dropping the refresh token and the user needs a clear underneath
	pub.incoming <- Message{Type: TypeSnapshot, Origin: "remote", AccessToken: "A2"}
	keys := collectKeys(t, events, 3)
	for _, origin := range keys {
		assert.Equal(t, "remote", origin)
	}

	pair, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, tokenstore.Pair{AccessToken: "A2"}, pair)
	user, err := store.User(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)

	// own snapshots echoed back are ignored
	pub.incoming <- Message{Type: TypeSnapshot, Origin: store.Origin()}
	// writes through a sibling handle are forwarded as local events
	require.NoError(t, sibling.Set(ctx, "A3", "R3"))
	keys = collectKeys(t, events, 2)
	assert.Equal(t, sibling.Origin(), keys[tokenstore.KeyAccessToken])

	pair, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A3", pair.AccessToken)
}
