package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/trade-escrow/internal/domain"
	"github.com/ayo6706/trade-escrow/internal/observability"
	"github.com/ayo6706/trade-escrow/internal/repository"
	"go.uber.org/zap"
)

const janitorBatch = 100

// JanitorService removes expired FX quotes and releases holds of abandoned payments.
type JanitorService struct {
	store          QueryStore
	payments       *PaymentService
	quoteRetention time.Duration
	holdTTL        time.Duration
	now            func() time.Time
}

// JanitorReport counts what one sweep changed.
type JanitorReport struct {
	QuotesDeleted  int64
	PaymentsFailed int64
}

// NewJanitorService builds the sweeper. A zero holdTTL disables hold expiry.
func NewJanitorService(store QueryStore, payments *PaymentService, quoteRetention, holdTTL time.Duration) *JanitorService {
	return &JanitorService{
		store:          store,
		payments:       payments,
		quoteRetention: quoteRetention,
		holdTTL:        holdTTL,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source.
func (s *JanitorService) SetClock(now func() time.Time) {
	s.now = now
}

// Sweep runs both cleanup tasks. A failure in one task does not stop the other.
func (s *JanitorService) Sweep(ctx context.Context) (JanitorReport, error) {
	var report JanitorReport
	var errs []error

	deleted, err := s.store.Queries().DeleteFXQuotesExpiredBefore(ctx, s.now().Add(-s.quoteRetention))
	if err != nil {
		errs = append(errs, fmt.Errorf("delete expired fx quotes: %w", err))
	} else {
		report.QuotesDeleted = deleted
		observability.AddJanitorRows("fx_quotes", deleted)
	}

	if s.holdTTL > 0 {
		failed, err := s.expireHolds(ctx)
		report.PaymentsFailed = failed
		observability.AddJanitorRows("payment_holds", failed)
		if err != nil {
			errs = append(errs, err)
		}
	}

	if report.QuotesDeleted > 0 || report.PaymentsFailed > 0 {
		zap.L().Info("janitor sweep",
			zap.Int64("quotes_deleted", report.QuotesDeleted),
			zap.Int64("payments_failed", report.PaymentsFailed),
		)
	}
	return report, errors.Join(errs...)
}

func (s *JanitorService) expireHolds(ctx context.Context) (int64, error) {
	stale, err := s.store.Queries().ListStalePendingPayments(ctx, repository.StalePaymentsParams{
		Before: s.now().Add(-s.holdTTL),
		Limit:  janitorBatch,
	})
	if err != nil {
		return 0, fmt.Errorf("list stale payments: %w", err)
	}
	var failed int64
	for _, p := range stale {
		if _, err := s.payments.FailPayment(ctx, SystemActor, p.ID, domain.FailureHoldExpired); err != nil {
			// Completed by a receipt confirmation after we listed it.
			if errors.Is(err, domain.ErrInvalidState) {
				continue
			}
			return failed, fmt.Errorf("expire payment %s: %w", p.ID, err)
		}
		failed++
	}
	return failed, nil
}
