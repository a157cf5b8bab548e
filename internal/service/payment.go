package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/trade-escrow/internal/domain"
	"github.com/ayo6706/trade-escrow/internal/events"
	"github.com/ayo6706/trade-escrow/internal/models"
	"github.com/ayo6706/trade-escrow/internal/observability"
	"github.com/ayo6706/trade-escrow/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SystemActor is used by background jobs.
var SystemActor = Actor{Role: domain.RoleAdmin}

// PaymentService moves buyer funds into escrow holds and settles them to the supplier.
type PaymentService struct {
	store     QueryStore
	ledger    *LedgerService
	fx        *FXQuoteService
	audit     *AuditService
	publisher events.Publisher
	now       func() time.Time
}

func NewPaymentService(store QueryStore, ledger *LedgerService, fx *FXQuoteService, publisher events.Publisher) *PaymentService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &PaymentService{
		store:     store,
		ledger:    ledger,
		fx:        fx,
		audit:     NewAuditService(),
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type CreatePaymentInput struct {
	DealID       uuid.UUID
	AmountMicros int64
	Currency     string
	FXQuoteID    *uuid.UUID
}

type PaymentFilter struct {
	DealID *uuid.UUID
	Role   string
	Status string
	Limit  int
	Offset int
}

// dealChange is a committed deal status transition waiting to be announced.
type dealChange struct {
	DealID uuid.UUID `json:"deal_id"`
	From   string    `json:"from"`
	To     string    `json:"to"`
}

// CreatePayment reserves the buyer's funds and records a pending payment in one transaction.
// When the buyer cannot cover the amount the payment is still recorded, as failed with reason
// insufficient_funds, and returned together with an error wrapping domain.ErrInsufficientFunds.
func (s *PaymentService) CreatePayment(ctx context.Context, actor Actor, in CreatePaymentInput) (*models.Payment, error) {
	currency := domain.NormalizeCurrency(in.Currency)
	if !domain.ValidCurrencyCode(currency) {
		return nil, fmt.Errorf("%w: invalid currency %q", domain.ErrValidation, in.Currency)
	}
	if in.AmountMicros <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}

	var (
		payment *models.Payment
		changes []dealChange
		reserve error
	)
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		deal, err := q.GetDealForUpdate(ctx, in.DealID)
		if err != nil {
			return lookupErr(err, "deal")
		}
		if deal.BuyerOrgID != actor.OrgID {
			if deal.SupplierOrgID == actor.OrgID || actor.IsAdmin() {
				return fmt.Errorf("%w: only the buyer can pay a deal", domain.ErrForbidden)
			}
			return fmt.Errorf("%w: deal", domain.ErrNotFound)
		}
		if deal.Status == domain.DealStatusPaid || deal.Status == domain.DealStatusClosed {
			return fmt.Errorf("%w: deal is %s", domain.ErrInvalidState, deal.Status)
		}

		p := &models.Payment{
			ID:            uuid.New(),
			DealID:        deal.ID,
			PayerOrgID:    deal.BuyerOrgID,
			PayeeOrgID:    deal.SupplierOrgID,
			AmountMicros:  in.AmountMicros,
			Currency:      currency,
			Status:        domain.PaymentStatusPending,
			SettledMicros: in.AmountMicros,
		}
		if currency != deal.MainCurrency {
			if in.FXQuoteID == nil {
				return fmt.Errorf("%w: fx_quote_id is required to pay %s into a %s deal", domain.ErrValidation, currency, deal.MainCurrency)
			}
			quote, err := s.fx.resolveWith(ctx, q, *in.FXQuoteID)
			if err != nil {
				return err
			}
			if quote.FromCurrency != deal.MainCurrency || quote.ToCurrency != currency {
				return fmt.Errorf("%w: fx quote is %s->%s, payment needs %s->%s",
					domain.ErrValidation, quote.FromCurrency, quote.ToCurrency, deal.MainCurrency, currency)
			}
			rate := quote.Rate
			p.FXQuoteID = &quote.ID
			p.FXRate = &rate
			p.SettledMicros = domain.RoundToMicros(domain.MicrosToDecimal(in.AmountMicros).DivRound(rate, 12))
		} else if in.FXQuoteID != nil {
			return fmt.Errorf("%w: fx_quote_id is only valid for cross-currency payments", domain.ErrValidation)
		}

		reserve = s.ledger.Reserve(ctx, q, Posting{
			OrgID:        p.PayerOrgID,
			Currency:     p.Currency,
			AmountMicros: p.AmountMicros,
			PaymentID:    &p.ID,
		})
		if reserve != nil && !errors.Is(reserve, domain.ErrInsufficientFunds) {
			return reserve
		}
		if reserve != nil {
			reason := domain.FailureInsufficientFunds
			p.Status = domain.PaymentStatusFailed
			p.FailureReason = &reason
		}
		if err := q.InsertPayment(ctx, p); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		if err := s.audit.Write(ctx, q, "payment", p.ID, actor.userRef(), "created", "", p.Status, nil); err != nil {
			return err
		}
		payment = p
		if reserve != nil {
			return nil
		}
		changes, err = s.recomputeDeal(ctx, q, deal, actor.userRef())
		return err
	})
	if err != nil {
		return nil, err
	}

	observability.IncrementPaymentOutcome(payment.Status)
	if reserve != nil {
		zap.L().Info("payment failed on reservation",
			zap.String("payment_id", payment.ID.String()),
			zap.String("deal_id", payment.DealID.String()),
			zap.Int64("amount_micros", payment.AmountMicros),
		)
		publish(ctx, s.publisher, events.New(events.TypePaymentFailed, payment.ID, payment))
		return payment, reserve
	}
	publish(ctx, s.publisher, events.New(events.TypePaymentPending, payment.ID, payment))
	s.announce(ctx, changes)
	return payment, nil
}

// CompletePayment captures the held funds and credits the supplier.
func (s *PaymentService) CompletePayment(ctx context.Context, actor Actor, id uuid.UUID) (*models.Payment, error) {
	var (
		out     models.Payment
		changes []dealChange
	)
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		deal, p, err := s.lockPayment(ctx, q, id)
		if err != nil {
			return err
		}
		if err := s.completeIn(ctx, q, p, actor.userRef()); err != nil {
			return err
		}
		if changes, err = s.recomputeDeal(ctx, q, deal, actor.userRef()); err != nil {
			return err
		}
		out, err = q.GetPayment(ctx, p.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	observability.IncrementPaymentOutcome(out.Status)
	publish(ctx, s.publisher, events.New(events.TypePaymentCompleted, out.ID, out))
	s.announce(ctx, changes)
	return &out, nil
}

// FailPayment releases the hold of a pending payment back to the payer.
func (s *PaymentService) FailPayment(ctx context.Context, actor Actor, id uuid.UUID, reason string) (*models.Payment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", domain.ErrValidation)
	}
	var out models.Payment
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		_, p, err := s.lockPayment(ctx, q, id)
		if err != nil {
			return err
		}
		if p.Status != domain.PaymentStatusPending {
			return fmt.Errorf("%w: payment is %s", domain.ErrInvalidState, p.Status)
		}
		if err := s.ledger.Release(ctx, q, Posting{
			OrgID:        p.PayerOrgID,
			Currency:     p.Currency,
			AmountMicros: p.AmountMicros,
			PaymentID:    &p.ID,
		}); err != nil {
			return err
		}
		rows, err := q.FailPayment(ctx, repository.FailPaymentParams{ID: p.ID, Reason: reason})
		if err != nil {
			return fmt.Errorf("fail payment: %w", err)
		}
		if rows != 1 {
			return fmt.Errorf("%w: payment is no longer pending", domain.ErrInvalidState)
		}
		meta := []byte(fmt.Sprintf(`{"reason":%q}`, reason))
		if err := s.audit.Write(ctx, q, "payment", p.ID, actor.userRef(), "failed", p.Status, domain.PaymentStatusFailed, meta); err != nil {
			return err
		}
		out, err = q.GetPayment(ctx, p.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	observability.IncrementPaymentOutcome(out.Status)
	publish(ctx, s.publisher, events.New(events.TypePaymentFailed, out.ID, out))
	return &out, nil
}

func (s *PaymentService) Get(ctx context.Context, actor Actor, id uuid.UUID) (*models.Payment, error) {
	p, err := s.store.Queries().GetPayment(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "payment")
	}
	if !actor.IsAdmin() && p.PayerOrgID != actor.OrgID && p.PayeeOrgID != actor.OrgID {
		return nil, fmt.Errorf("%w: payment", domain.ErrNotFound)
	}
	return &p, nil
}

func (s *PaymentService) List(ctx context.Context, actor Actor, f PaymentFilter) ([]models.Payment, error) {
	if err := validateRoleFilter(f.Role); err != nil {
		return nil, err
	}
	limit, offset := pageSize(f.Limit, f.Offset)
	payments, err := s.store.Queries().ListPayments(ctx, repository.ListPaymentsParams{
		DealID: f.DealID,
		OrgID:  actor.OrgID,
		Role:   f.Role,
		Status: f.Status,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

// lockPayment locks the deal before the payment so it orders with CreatePayment and ConfirmReceipt.
func (s *PaymentService) lockPayment(ctx context.Context, q repository.Querier, id uuid.UUID) (models.Deal, models.Payment, error) {
	p, err := q.GetPayment(ctx, id)
	if err != nil {
		return models.Deal{}, p, lookupErr(err, "payment")
	}
	deal, err := q.GetDealForUpdate(ctx, p.DealID)
	if err != nil {
		return deal, p, lookupErr(err, "deal")
	}
	p, err = q.GetPaymentForUpdate(ctx, id)
	if err != nil {
		return deal, p, lookupErr(err, "payment")
	}
	return deal, p, nil
}

// completeIn settles one locked pending payment: capture from the payer hold, credit the payee.
func (s *PaymentService) completeIn(ctx context.Context, q repository.Querier, p models.Payment, actorID *uuid.UUID) error {
	if p.Status != domain.PaymentStatusPending {
		return fmt.Errorf("%w: payment is %s", domain.ErrInvalidState, p.Status)
	}
	posting := Posting{OrgID: p.PayerOrgID, Currency: p.Currency, AmountMicros: p.AmountMicros, PaymentID: &p.ID}
	if err := s.ledger.Capture(ctx, q, posting); err != nil {
		return err
	}
	posting.OrgID = p.PayeeOrgID
	if err := s.ledger.Credit(ctx, q, posting); err != nil {
		return err
	}
	rows, err := q.CompletePayment(ctx, repository.CompletePaymentParams{ID: p.ID, CompletedAt: s.now()})
	if err != nil {
		return fmt.Errorf("complete payment: %w", err)
	}
	if rows != 1 {
		return fmt.Errorf("%w: payment is no longer pending", domain.ErrInvalidState)
	}
	return s.audit.Write(ctx, q, "payment", p.ID, actorID, "completed", p.Status, domain.PaymentStatusCompleted, nil)
}

// recomputeDeal derives the deal status from its payments. Status never moves backwards: a
// pending payment makes the deal ordered, completed settlements make it paid_partially or paid.
func (s *PaymentService) recomputeDeal(ctx context.Context, q repository.Querier, deal models.Deal, actorID *uuid.UUID) ([]dealChange, error) {
	if deal.Status == domain.DealStatusClosed {
		return nil, nil
	}
	order, err := q.GetOrder(ctx, deal.OrderID)
	if err != nil {
		return nil, lookupErr(err, "order")
	}
	settled, err := q.SumCompletedSettledMicros(ctx, deal.ID)
	if err != nil {
		return nil, fmt.Errorf("sum settled payments: %w", err)
	}
	pending, err := q.ListPendingPaymentsByDealForUpdate(ctx, deal.ID)
	if err != nil {
		return nil, fmt.Errorf("list pending payments: %w", err)
	}

	target := deal.Status
	raise := func(status string) {
		if dealRank[status] > dealRank[target] {
			target = status
		}
	}
	if len(pending) > 0 || settled > 0 {
		raise(domain.DealStatusOrdered)
	}
	if settled > 0 {
		if settled >= order.TotalMicros {
			raise(domain.DealStatusPaid)
		} else {
			raise(domain.DealStatusPaidPartially)
		}
	}
	if target == deal.Status {
		return nil, nil
	}
	if !dealTransitions.allows(deal.Status, target) {
		return nil, fmt.Errorf("%w: deal cannot move from %s to %s", domain.ErrInvalidState, deal.Status, target)
	}
	if err := setDealStatus(ctx, q, s.audit, deal, target, actorID); err != nil {
		return nil, err
	}
	if order.Status == domain.OrderStatusConfirmed {
		if err := setOrderStatus(ctx, q, s.audit, order, domain.OrderStatusInProgress, actorID); err != nil {
			return nil, err
		}
	}
	return []dealChange{{DealID: deal.ID, From: deal.Status, To: target}}, nil
}

func (s *PaymentService) announce(ctx context.Context, changes []dealChange) {
	announceDealChanges(ctx, s.publisher, changes)
}

func announceDealChanges(ctx context.Context, pub events.Publisher, changes []dealChange) {
	for _, c := range changes {
		observability.IncrementDealTransition(c.From, c.To)
		zap.L().Info("deal status changed",
			zap.String("deal_id", c.DealID.String()),
			zap.String("from", c.From),
			zap.String("to", c.To),
		)
		publish(ctx, pub, events.New(events.TypeDealStatusChanged, c.DealID, c))
	}
}

func setDealStatus(ctx context.Context, q repository.Querier, audit *AuditService, deal models.Deal, next string, actorID *uuid.UUID) error {
	rows, err := q.UpdateDealStatus(ctx, repository.UpdateStatusParams{ID: deal.ID, Status: next})
	if err != nil {
		return fmt.Errorf("update deal status: %w", err)
	}
	if err := requireExactlyOne(rows, "update deal status"); err != nil {
		return err
	}
	return audit.Write(ctx, q, "deal", deal.ID, actorID, "status_changed", deal.Status, next, nil)
}

func setOrderStatus(ctx context.Context, q repository.Querier, audit *AuditService, order models.Order, next string, actorID *uuid.UUID) error {
	if !orderTransitions.allows(order.Status, next) {
		return fmt.Errorf("%w: order cannot move from %s to %s", domain.ErrInvalidState, order.Status, next)
	}
	rows, err := q.UpdateOrderStatus(ctx, repository.UpdateStatusParams{ID: order.ID, Status: next})
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if err := requireExactlyOne(rows, "update order status"); err != nil {
		return err
	}
	return audit.Write(ctx, q, "order", order.ID, actorID, "status_changed", order.Status, next, nil)
}
