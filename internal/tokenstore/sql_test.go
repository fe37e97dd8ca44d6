package tokenstore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"match-connect/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func openSQLStore(t *testing.T, db *database.DB, opts ...SQLOption) *SQL {
	t.Helper()
	store, err := NewSQL(db, 10*time.Millisecond, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func openSQLStores(t *testing.T) (*SQL, *SQL) {
	t.Helper()
	db := openSQLDB(t)
	return openSQLStore(t, db), openSQLStore(t, db)
}

func countEvents(t *testing.T, db *database.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM storage_events`).Scan(&n))
	return n
}

func TestSQL_GetSetClear(t *testing.T) {
	ctx := context.Background()
	store, _ := openSQLStores(t)

	pair, err := store.Get(ctx)
	require.NoError(t, err)
	assert.True(t, pair.Empty())

	require.NoError(t, store.Set(ctx, "A1", "R1"))
	require.NoError(t, store.Set(ctx, "A2", ""))
	pair, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, Pair{AccessToken: "A2", RefreshToken: "R1"}, pair)

	require.NoError(t, store.SetUser(ctx, []byte(`{"role":"candidate"}`)))
	user, err := store.User(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"candidate"}`, string(user))

	require.NoError(t, store.Clear(ctx))
	pair, err = store.Get(ctx)
	require.NoError(t, err)
	assert.True(t, pair.Empty())
	user, err = store.User(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestSQL_PollNowDeliversForeignChanges(t *testing.T) {
	ctx := context.Background()
	writer, reader := openSQLStores(t)

	require.NoError(t, reader.Start(ctx))
	reader.Stop()
	assert.False(t, reader.IsRunning())

	events, stop := reader.Subscribe()
	defer stop()

	require.NoError(t, reader.Set(ctx, "own", ""))
	require.NoError(t, writer.Set(ctx, "W1", "R1"))
	require.NoError(t, writer.Set(ctx, "W1", "R1"))
	require.NoError(t, writer.Clear(ctx))

	n, err := reader.PollNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	counts := map[string]int{}
	for i := 0; i < 4; i++ {
		ev := receive(t, events)
		assert.Equal(t, writer.Origin(), ev.Origin)
		counts[ev.Key]++
	}
	assert.Equal(t, map[string]int{KeyAccessToken: 2, KeyRefreshToken: 2}, counts)

	n, err = reader.PollNow(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQL_WatcherPublishes(t *testing.T) {
	ctx := context.Background()
	writer, reader := openSQLStores(t)

	require.NoError(t, writer.Set(ctx, "before-start", "R0"))

	require.NoError(t, reader.Start(ctx))
	assert.True(t, reader.IsRunning())
	assert.Error(t, reader.Start(ctx))

	events, stop := reader.Subscribe()
	defer stop()

	require.NoError(t, writer.Set(ctx, "A1", ""))

	ev := receive(t, events)
	assert.Equal(t, KeyAccessToken, ev.Key)
	assertNoEvent(t, events)

	pair, err := reader.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, Pair{AccessToken: "A1", RefreshToken: "R0"}, pair)
}

func TestSQL_ChangeLogIsBounded(t *testing.T) {
	ctx := context.Background()
	db := openSQLDB(t)
	store := openSQLStore(t, db, WithEventRetention(10))

	for i := 0; i < 30; i++ {
		require.NoError(t, store.Set(ctx, fmt.Sprintf("A%d", i), fmt.Sprintf("R%d", i)))
		assert.LessOrEqual(t, countEvents(t, db), 10)
	}
	require.NoError(t, store.Clear(ctx))
	assert.LessOrEqual(t, countEvents(t, db), 10)

	pair, err := store.Get(ctx)
	require.NoError(t, err)
	assert.True(t, pair.Empty())
}

func TestSQL_LateCommittedEventIsDelivered(t *testing.T) {
	ctx := context.Background()
	db := openSQLDB(t)
	reader := openSQLStore(t, db)

	require.NoError(t, reader.Start(ctx))
	reader.Stop()
	events, stop := reader.Subscribe()
	defer stop()

	insert := func(id int64, key string) {
		_, err := db.Exec(`INSERT INTO storage_events (id, storage_key, origin) VALUES (?, ?, ?)`, id, key, "other-tab")
		require.NoError(t, err)
	}

	// id 5 becomes visible before id 4, as with concurrent PostgreSQL commits
	insert(5, KeyAccessToken)
	n, err := reader.PollNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, KeyAccessToken, receive(t, events).Key)

	insert(4, KeyRefreshToken)
	n, err = reader.PollNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, KeyRefreshToken, receive(t, events).Key)

	n, err = reader.PollNow(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assertNoEvent(t, events)
}

func TestSQL_StartSkipsEarlierEvents(t *testing.T) {
	ctx := context.Background()
	db := openSQLDB(t)
	writer, reader := openSQLStore(t, db), openSQLStore(t, db)

	require.NoError(t, writer.Set(ctx, "A1", "R1"))
	require.NoError(t, reader.Start(ctx))
	reader.Stop()

	n, err := reader.PollNow(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
