package service

import (
	"context"

	"github.com/ayo6706/trade-escrow/internal/repository"
)

// QueryStore defines the minimal data access contract required by services.
// Inside RunInTx, fn must use only the Querier it receives.
type QueryStore interface {
	Queries() repository.Querier
	RunInTx(ctx context.Context, fn func(q repository.Querier) error) error
}
