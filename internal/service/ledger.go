package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/trade-escrow/internal/domain"
	"github.com/ayo6706/trade-escrow/internal/models"
	"github.com/ayo6706/trade-escrow/internal/observability"
	"github.com/ayo6706/trade-escrow/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// LedgerService mutates wallet balances. Every mutation runs on a locked wallet row inside the
// caller's transaction and appends a journal entry.
type LedgerService struct {
	store QueryStore
}

func NewLedgerService(store QueryStore) *LedgerService {
	return &LedgerService{store: store}
}

// Posting identifies one ledger movement.
type Posting struct {
	OrgID        uuid.UUID
	Currency     string
	AmountMicros int64
	PaymentID    *uuid.UUID
	Reference    *string
}

// Reserve moves funds from available to held. A missing wallet has no funds.
func (l *LedgerService) Reserve(ctx context.Context, q repository.Querier, p Posting) error {
	if err := validatePosting(p); err != nil {
		return err
	}
	w, err := q.GetWalletForUpdate(ctx, repository.WalletKey{OrgID: p.OrgID, Currency: p.Currency})
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: no %s wallet", domain.ErrInsufficientFunds, p.Currency)
	}
	if err != nil {
		return fmt.Errorf("lock wallet: %w", err)
	}
	if w.AvailableMicros < p.AmountMicros {
		return fmt.Errorf("%w: available %d, requested %d", domain.ErrInsufficientFunds, w.AvailableMicros, p.AmountMicros)
	}
	return l.apply(ctx, q, w, domain.EntryKindReserve, -p.AmountMicros, p.AmountMicros, p)
}

// Capture consumes held funds. A shortfall means an earlier hold went missing and is a defect.
func (l *LedgerService) Capture(ctx context.Context, q repository.Querier, p Posting) error {
	w, err := l.lockHeld(ctx, q, "capture", p)
	if err != nil {
		return err
	}
	return l.apply(ctx, q, w, domain.EntryKindCapture, 0, -p.AmountMicros, p)
}

// Release returns held funds to available.
func (l *LedgerService) Release(ctx context.Context, q repository.Querier, p Posting) error {
	w, err := l.lockHeld(ctx, q, "release", p)
	if err != nil {
		return err
	}
	return l.apply(ctx, q, w, domain.EntryKindRelease, p.AmountMicros, -p.AmountMicros, p)
}

// Credit adds available funds, creating the wallet if needed.
func (l *LedgerService) Credit(ctx context.Context, q repository.Querier, p Posting) error {
	if err := validatePosting(p); err != nil {
		return err
	}
	key := repository.WalletKey{OrgID: p.OrgID, Currency: p.Currency}
	if err := q.EnsureWallet(ctx, key); err != nil {
		return fmt.Errorf("ensure wallet: %w", err)
	}
	w, err := q.GetWalletForUpdate(ctx, key)
	if err != nil {
		return fmt.Errorf("lock wallet: %w", err)
	}
	return l.apply(ctx, q, w, domain.EntryKindCredit, p.AmountMicros, 0, p)
}

// ListWallets returns the organization's wallets ordered by currency.
func (l *LedgerService) ListWallets(ctx context.Context, orgID uuid.UUID) ([]models.Wallet, error) {
	wallets, err := l.store.Queries().ListWalletsByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	return wallets, nil
}

func (l *LedgerService) lockHeld(ctx context.Context, q repository.Querier, op string, p Posting) (models.Wallet, error) {
	if err := validatePosting(p); err != nil {
		return models.Wallet{}, err
	}
	w, err := q.GetWalletForUpdate(ctx, repository.WalletKey{OrgID: p.OrgID, Currency: p.Currency})
	if errors.Is(err, pgx.ErrNoRows) {
		return w, invariantViolation(op, p, "wallet missing")
	}
	if err != nil {
		return w, fmt.Errorf("lock wallet: %w", err)
	}
	if w.HeldMicros < p.AmountMicros {
		return w, invariantViolation(op, p, fmt.Sprintf("held %d", w.HeldMicros))
	}
	return w, nil
}

func (l *LedgerService) apply(ctx context.Context, q repository.Querier, w models.Wallet, kind string, availableDelta, heldDelta int64, p Posting) error {
	available := w.AvailableMicros + availableDelta
	held := w.HeldMicros + heldDelta
	if available < 0 || held < 0 {
		return invariantViolation(kind, p, fmt.Sprintf("available %d held %d", available, held))
	}
	rows, err := q.UpdateWalletBalances(ctx, repository.UpdateWalletBalancesParams{
		ID:              w.ID,
		AvailableMicros: available,
		HeldMicros:      held,
	})
	if err != nil {
		return fmt.Errorf("update wallet balances: %w", err)
	}
	if err := requireExactlyOne(rows, "update wallet balances"); err != nil {
		return err
	}
	if err := q.InsertWalletEntry(ctx, &models.WalletEntry{
		ID:           uuid.New(),
		WalletID:     w.ID,
		Kind:         kind,
		AmountMicros: p.AmountMicros,
		PaymentID:    p.PaymentID,
		Reference:    p.Reference,
	}); err != nil {
		return fmt.Errorf("insert wallet entry: %w", err)
	}
	return nil
}

func validatePosting(p Posting) error {
	if p.AmountMicros <= 0 {
		return fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	if !domain.ValidCurrencyCode(p.Currency) {
		return fmt.Errorf("%w: invalid currency %q", domain.ErrValidation, p.Currency)
	}
	return nil
}

func invariantViolation(op string, p Posting, detail string) error {
	observability.IncrementLedgerInvariantViolation(op)
	zap.L().Error("ledger invariant violation",
		zap.String("operation", op),
		zap.String("org_id", p.OrgID.String()),
		zap.String("currency", p.Currency),
		zap.Int64("amount_micros", p.AmountMicros),
		zap.String("detail", detail),
	)
	return fmt.Errorf("%w: %s %s", domain.ErrInvariantViolation, op, detail)
}
