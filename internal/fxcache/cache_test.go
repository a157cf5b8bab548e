package fxcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ayo6706/trade-escrow/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return New(redis.NewClient(&redis.Options{Addr: mr.Addr()})), mr
}

func sampleQuote(expiresIn time.Duration) models.FXQuote {
	return models.FXQuote{
		ID:              uuid.New(),
		FromCurrency:    "CNY",
		ToCurrency:      "USD",
		Rate:            decimal.RequireFromString("0.138"),
		AmountMicros:    1_000_000_000,
		ConvertedMicros: 138_000_000,
		ExpiresAt:       time.Now().Add(expiresIn).UTC().Truncate(time.Microsecond),
		CreatedAt:       time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	q := sampleQuote(5 * time.Minute)

	require.NoError(t, cache.Put(ctx, q))
	got, err := cache.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, q.ID, got.ID)
	assert.True(t, q.Rate.Equal(got.Rate))
	assert.True(t, q.ExpiresAt.Equal(got.ExpiresAt))

	ttl := mr.TTL(key(q.ID))
	assert.Greater(t, ttl, 4*time.Minute)
	assert.LessOrEqual(t, ttl, 5*time.Minute)
}

func TestEntryExpiresWithQuote(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	q := sampleQuote(time.Minute)
	require.NoError(t, cache.Put(ctx, q))

	mr.FastForward(2 * time.Minute)
	_, err := cache.Get(ctx, q.ID)
	require.ErrorIs(t, err, ErrMiss)
}

func TestExpiredQuoteIsNotCached(t *testing.T) {
	cache, mr := newTestCache(t)
	q := sampleQuote(-time.Second)
	require.NoError(t, cache.Put(context.Background(), q))
	assert.False(t, mr.Exists(key(q.ID)))
}

func TestNilClientAlwaysMisses(t *testing.T) {
	cache := New(nil)
	q := sampleQuote(time.Minute)
	require.NoError(t, cache.Put(context.Background(), q))
	_, err := cache.Get(context.Background(), q.ID)
	require.ErrorIs(t, err, ErrMiss)
}

func TestUnavailableRedisDegradesToMiss(t *testing.T) {
	cache, mr := newTestCache(t)
	q := sampleQuote(time.Minute)
	mr.Close()
	_, err := cache.Get(context.Background(), q.ID)
	require.ErrorIs(t, err, ErrMiss)
}
