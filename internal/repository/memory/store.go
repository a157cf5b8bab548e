// Package memory is an in-process implementation of repository.Store for development and tests.
// Transactions are serialized and run against a copy of the state that replaces the committed
// state only when the callback succeeds.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ayo6706/trade-escrow/internal/models"
	"github.com/ayo6706/trade-escrow/internal/repository"
	"github.com/google/uuid"
)

type walletKey struct {
	org      uuid.UUID
	currency string
}

type state struct {
	rfqs      map[uuid.UUID]models.RFQ
	rfqOrder  []uuid.UUID
	offers    map[uuid.UUID]models.Offer
	offerSeq  []uuid.UUID
	orders    map[uuid.UUID]models.Order
	orderSeq  []uuid.UUID
	deals     map[uuid.UUID]models.Deal
	dealSeq   []uuid.UUID
	wallets   map[uuid.UUID]models.Wallet
	walletIdx map[walletKey]uuid.UUID
	entries   []models.WalletEntry
	quotes    map[uuid.UUID]models.FXQuote
	payments  map[uuid.UUID]models.Payment
	paySeq    []uuid.UUID
	logistics map[uuid.UUID]models.DealLogistics
	audit     []models.AuditLog
	idem      map[string]repository.IdempotencyKey
}

func newState() *state {
	return &state{
		rfqs:      map[uuid.UUID]models.RFQ{},
		offers:    map[uuid.UUID]models.Offer{},
		orders:    map[uuid.UUID]models.Order{},
		deals:     map[uuid.UUID]models.Deal{},
		wallets:   map[uuid.UUID]models.Wallet{},
		walletIdx: map[walletKey]uuid.UUID{},
		quotes:    map[uuid.UUID]models.FXQuote{},
		payments:  map[uuid.UUID]models.Payment{},
		logistics: map[uuid.UUID]models.DealLogistics{},
		idem:      map[string]repository.IdempotencyKey{},
	}
}

// clone copies every table. Row values are copied by assignment; slices inside rows are
// never mutated in place, so sharing them between snapshots is safe.
func (s *state) clone() *state {
	c := &state{
		rfqs:      copyMap(s.rfqs),
		rfqOrder:  append([]uuid.UUID(nil), s.rfqOrder...),
		offers:    copyMap(s.offers),
		offerSeq:  append([]uuid.UUID(nil), s.offerSeq...),
		orders:    copyMap(s.orders),
		orderSeq:  append([]uuid.UUID(nil), s.orderSeq...),
		deals:     copyMap(s.deals),
		dealSeq:   append([]uuid.UUID(nil), s.dealSeq...),
		wallets:   copyMap(s.wallets),
		walletIdx: copyMap(s.walletIdx),
		entries:   append([]models.WalletEntry(nil), s.entries...),
		quotes:    copyMap(s.quotes),
		payments:  copyMap(s.payments),
		paySeq:    append([]uuid.UUID(nil), s.paySeq...),
		logistics: copyMap(s.logistics),
		audit:     append([]models.AuditLog(nil), s.audit...),
		idem:      copyMap(s.idem),
	}
	return c
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store is a mutex-guarded in-memory database.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		st:  newState(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source used for created_at/updated_at columns.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Queries returns a query set where every call is its own transaction.
func (s *Store) Queries() repository.Querier {
	return &queries{store: s}
}

// RunInTx runs fn against a private copy of the state and commits it when fn returns nil.
// fn must only use the Querier it is given; calling back into the Store deadlocks.
func (s *Store) RunInTx(ctx context.Context, fn func(q repository.Querier) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.st.clone()
	if err := fn(&queries{store: s, tx: working}); err != nil {
		return err
	}
	s.st = working
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}
