package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/trade-escrow/internal/domain"
	"github.com/ayo6706/trade-escrow/internal/events"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

func requireExactlyOne(rows int64, operation string) error {
	if rows != 1 {
		return fmt.Errorf("%s affected %d rows", operation, rows)
	}
	return nil
}

// lookupErr turns a missing row into domain.ErrNotFound and wraps anything else.
func lookupErr(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, what)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// publish hands committed events to the broker. Delivery is best effort; failures are logged.
func publish(ctx context.Context, pub events.Publisher, evts ...events.Event) {
	if pub == nil {
		return
	}
	for _, evt := range evts {
		if err := pub.Publish(ctx, evt); err != nil {
			zap.L().Warn("domain event not delivered",
				zap.String("event_type", evt.Type),
				zap.String("entity_id", evt.EntityID.String()),
				zap.Error(err),
			)
		}
	}
}

func pageSize(limit, offset int) (int32, int32) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return int32(limit), int32(offset)
}
