package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ayo6706/trade-escrow/internal/repository/memory"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), memory.NewStore(), time.Hour), mr
}

func TestReserveFinalizeReplay(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	_, err := store.Lookup(ctx, "k1", "h1")
	require.ErrorIs(t, err, ErrNotFound)

	ok, err := store.Reserve(ctx, "k1", "h1", "POST", "/v1/payments")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Reserve(ctx, "k1", "h1", "POST", "/v1/payments")
	require.NoError(t, err)
	assert.False(t, ok, "second reservation loses")

	_, err = store.Lookup(ctx, "k1", "h1")
	require.ErrorIs(t, err, ErrInProgress)

	rec, err := store.Finalize(ctx, "k1", "h1", 201, []byte(`{"id":"p1"}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, 201, rec.Status)
	assert.True(t, mr.Exists(redisKey("k1")))
	assert.Equal(t, time.Hour, mr.TTL(redisKey("k1")))

	replay, err := store.Lookup(ctx, "k1", "h1")
	require.NoError(t, err)
	assert.Equal(t, "redis", replay.ServedBy)
	assert.JSONEq(t, `{"id":"p1"}`, string(replay.Body))

	_, err = store.Lookup(ctx, "k1", "other")
	require.ErrorIs(t, err, ErrHashMismatch)
}

func TestLookupFallsBackToDatabase(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	ok, err := store.Reserve(ctx, "k2", "h2", "POST", "/v1/payments")
	require.NoError(t, err)
	require.True(t, ok)
	_, err = store.Finalize(ctx, "k2", "h2", 400, []byte(`{}`), "application/problem+json")
	require.NoError(t, err)

	mr.FlushAll()
	rec, err := store.Lookup(ctx, "k2", "h2")
	require.NoError(t, err)
	assert.Equal(t, "database", rec.ServedBy)
	assert.Equal(t, 400, rec.Status)
	assert.True(t, mr.Exists(redisKey("k2")), "database hits repopulate the cache")

	mr.FlushAll()
	_, err = store.Lookup(ctx, "k2", "nope")
	require.ErrorIs(t, err, ErrHashMismatch)
}

func TestWaitForCompletion(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ok, err := store.Reserve(ctx, "k3", "h3", "POST", "/v1/payments")
	require.NoError(t, err)
	require.True(t, ok)

	go func() {
		time.Sleep(120 * time.Millisecond)
		_, _ = store.Finalize(context.Background(), "k3", "h3", 201, []byte(`{}`), "application/json")
	}()
	rec, err := store.WaitForCompletion(ctx, "k3", "h3")
	require.NoError(t, err)
	assert.Equal(t, 201, rec.Status)

	ok, err = store.Reserve(ctx, "k4", "h4", "POST", "/v1/payments")
	require.NoError(t, err)
	require.True(t, ok)
	short, cancel := context.WithTimeout(ctx, 80*time.Millisecond)
	defer cancel()
	_, err = store.WaitForCompletion(short, "k4", "h4")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStoreWithoutRedis(t *testing.T) {
	store := NewStore(nil, memory.NewStore(), 0)
	ctx := context.Background()

	ok, err := store.Reserve(ctx, "k5", "h5", "POST", "/v1/payments")
	require.NoError(t, err)
	require.True(t, ok)
	_, err = store.Finalize(ctx, "k5", "h5", 200, nil, "application/json")
	require.NoError(t, err)
	rec, err := store.Lookup(ctx, "k5", "h5")
	require.NoError(t, err)
	assert.Equal(t, "database", rec.ServedBy)
}

func TestReleaseFreesOnlyUnfinishedReservations(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ok, err := store.Reserve(ctx, "k6", "h6", "POST", "/v1/payments")
	require.NoError(t, err)
	require.True(t, ok)
	require.ErrorIs(t, store.Release(ctx, "k6", "other"), ErrNotFound, "only the holder's hash releases")
	require.NoError(t, store.Release(ctx, "k6", "h6"))

	_, err = store.Lookup(ctx, "k6", "h7")
	require.ErrorIs(t, err, ErrNotFound)
	ok, err = store.Reserve(ctx, "k6", "h7", "POST", "/v1/payments")
	require.NoError(t, err)
	assert.True(t, ok, "a released key takes a new request")

	_, err = store.Finalize(ctx, "k6", "h7", 201, []byte(`{}`), "application/json")
	require.NoError(t, err)
	require.ErrorIs(t, store.Release(ctx, "k6", "h7"), ErrNotFound)
	rec, err := store.Lookup(ctx, "k6", "h7")
	require.NoError(t, err)
	assert.Equal(t, 201, rec.Status)
}
