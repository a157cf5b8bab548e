// Package fxcache keeps locked FX quotes in Redis for the rest of their validity window.
package fxcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/trade-escrow/internal/models"
	"github.com/ayo6706/trade-escrow/internal/observability"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "fxquote"

// ErrMiss is returned when the quote is not cached.
var ErrMiss = errors.New("fx quote not cached")

// Cache stores quotes keyed by id. A nil client turns every call into a miss.
type Cache struct {
	redis redis.Cmdable
	now   func() time.Time
}

func New(client redis.Cmdable) *Cache {
	return &Cache{redis: client, now: time.Now}
}

// Put caches q until it expires. Already-expired quotes are not cached.
func (c *Cache) Put(ctx context.Context, q models.FXQuote) error {
	if c == nil || c.redis == nil {
		return nil
	}
	ttl := q.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal fx quote: %w", err)
	}
	if err := c.redis.Set(ctx, key(q.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("cache fx quote: %w", err)
	}
	return nil
}

// Get returns a cached quote or ErrMiss. Redis failures are logged and reported as a miss
// so callers fall back to the store.
func (c *Cache) Get(ctx context.Context, id uuid.UUID) (models.FXQuote, error) {
	var q models.FXQuote
	if c == nil || c.redis == nil {
		return q, ErrMiss
	}
	data, err := c.redis.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.IncrementFXQuoteCache("miss")
		return q, ErrMiss
	}
	if err != nil {
		observability.IncrementFXQuoteCache("error")
		zap.L().Warn("redis fx quote lookup failed", zap.String("quote_id", id.String()), zap.Error(err))
		return q, ErrMiss
	}
	if err := json.Unmarshal(data, &q); err != nil {
		observability.IncrementFXQuoteCache("error")
		zap.L().Warn("decode cached fx quote", zap.String("quote_id", id.String()), zap.Error(err))
		return q, ErrMiss
	}
	observability.IncrementFXQuoteCache("hit")
	return q, nil
}

func key(id uuid.UUID) string {
	return fmt.Sprintf("%s:%s", keyPrefix, id)
}
