package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/trade-escrow/internal/observability"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReconciliationService verifies ledger integrity invariants.
type ReconciliationService struct {
	store QueryStore
}

// NewReconciliationService creates a reconciliation service.
func NewReconciliationService(store QueryStore) *ReconciliationService {
	return &ReconciliationService{store: store}
}

// Imbalance describes a wallet whose journal disagrees with its balances.
type Imbalance struct {
	WalletID     uuid.UUID `json:"wallet_id"`
	OrgID        uuid.UUID `json:"org_id"`
	Currency     string    `json:"currency"`
	JournalNet   int64     `json:"journal_net_micros"`
	BalanceTotal int64     `json:"balance_total_micros"`
	JournalHeld  int64     `json:"journal_held_micros"`
	BalanceHeld  int64     `json:"balance_held_micros"`
}

// Run checks every wallet: credits minus captures equals available plus held, and reserves
// minus captures and releases equals held. Imbalances are logged and counted, not repaired.
func (s *ReconciliationService) Run(ctx context.Context) ([]Imbalance, error) {
	queries := s.store.Queries()
	wallets, err := queries.ListWallets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}

	var imbalances []Imbalance
	for _, w := range wallets {
		totals, err := queries.GetWalletEntryTotals(ctx, w.ID)
		if err != nil {
			return nil, fmt.Errorf("wallet %s totals: %w", w.ID, err)
		}
		net := totals.CreditMicros - totals.CaptureMicros
		held := totals.ReserveMicros - totals.CaptureMicros - totals.ReleaseMicros
		if net == w.AvailableMicros+w.HeldMicros && held == w.HeldMicros {
			continue
		}
		imb := Imbalance{
			WalletID:     w.ID,
			OrgID:        w.OrgID,
			Currency:     w.Currency,
			JournalNet:   net,
			BalanceTotal: w.AvailableMicros + w.HeldMicros,
			JournalHeld:  held,
			BalanceHeld:  w.HeldMicros,
		}
		imbalances = append(imbalances, imb)
		observability.IncrementLedgerImbalance(w.Currency)
		zap.L().Error("CRITICAL: ledger imbalance detected",
			zap.String("wallet_id", w.ID.String()),
			zap.String("currency", w.Currency),
			zap.Int64("journal_net_micros", net),
			zap.Int64("balance_total_micros", imb.BalanceTotal),
			zap.Int64("journal_held_micros", held),
			zap.Int64("balance_held_micros", w.HeldMicros),
		)
	}

	if len(imbalances) == 0 {
		zap.L().Info("Ledger Balanced", zap.Int("wallets", len(wallets)))
	}
	return imbalances, nil
}
