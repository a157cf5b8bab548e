package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ayo6706/trade-escrow/internal/domain"
	"github.com/ayo6706/trade-escrow/internal/fxcache"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteLocksRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	quote, err := f.fx.Quote(ctx, "usd", "eur", 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, "USD", quote.FromCurrency)
	assert.Equal(t, "EUR", quote.ToCurrency)
	assert.True(t, decimal.RequireFromString("0.92").Equal(quote.Rate))
	assert.Equal(t, int64(920_000), quote.ConvertedMicros)
	assert.Equal(t, f.now.Add(time.Minute), quote.ExpiresAt)

	got, err := f.fx.Resolve(ctx, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, quote.ID, got.ID)

	f.advance(time.Minute)
	_, err = f.fx.Resolve(ctx, quote.ID)
	require.ErrorIs(t, err, domain.ErrExpired, "expiry is inclusive of expires_at")

	_, err = f.fx.Resolve(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQuoteValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		from, to string
		amount   int64
	}{
		{"same currency", "USD", "usd", 1},
		{"zero amount", "USD", "EUR", 0},
		{"malformed code", "US", "EUR", 1},
		{"unsupported currency", "USD", "JPY", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.fx.Quote(ctx, tc.from, tc.to, tc.amount)
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestResolveServesCachedQuote(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	f := newFixtureWithCache(t, fxcache.New(redis.NewClient(&redis.Options{Addr: mr.Addr()})))
	// The cache computes its TTL from the wall clock.
	f.now = time.Now().UTC()
	ctx := context.Background()

	quote, err := f.fx.Quote(ctx, "GBP", "CNY", 2_000_000)
	require.NoError(t, err)
	require.Len(t, mr.Keys(), 1)

	// Drop the row so only the cache can answer.
	deleted, err := f.store.Queries().DeleteFXQuotesExpiredBefore(ctx, f.now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	got, err := f.fx.Resolve(ctx, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, quote.ConvertedMicros, got.ConvertedMicros)
	assert.True(t, quote.Rate.Equal(got.Rate))

	mr.FlushAll()
	_, err = f.fx.Resolve(ctx, quote.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.fx.Rates(ctx, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "USD", snap.Base)
	assert.Len(t, snap.Rates, 3)
	assert.True(t, decimal.RequireFromString("7.1").Equal(snap.Rates["CNY"]))

	snap, err = f.fx.Rates(ctx, "eur", []string{"usd", "EUR"})
	require.NoError(t, err)
	assert.Equal(t, "EUR", snap.Base)
	require.Len(t, snap.Rates, 1)
	assert.True(t, decimal.NewFromInt(1).DivRound(decimal.RequireFromString("0.92"), 12).Equal(snap.Rates["USD"]))

	_, err = f.fx.Rates(ctx, "USD", []string{"XYZ"})
	require.ErrorIs(t, err, domain.ErrValidation)
}
