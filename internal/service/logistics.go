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
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const stageDelivered = "delivered"

// LogisticsService gates escrow release on delivery and buyer confirmation. Funds are never
// released on a timer.
type LogisticsService struct {
	store     QueryStore
	payments  *PaymentService
	audit     *AuditService
	publisher events.Publisher
	now       func() time.Time
}

func NewLogisticsService(store QueryStore, payments *PaymentService, publisher events.Publisher) *LogisticsService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &LogisticsService{
		store:     store,
		payments:  payments,
		audit:     NewAuditService(),
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ReceiptResult reports what a receipt confirmation settled.
type ReceiptResult struct {
	Deal      models.Deal          `json:"deal"`
	Logistics models.DealLogistics `json:"logistics"`
	Completed []models.Payment     `json:"completed_payments"`
}

// MarkDelivered flags the deal as delivered. Calling it again is a no-op.
func (s *LogisticsService) MarkDelivered(ctx context.Context, actor Actor, dealID uuid.UUID) (*models.DealLogistics, error) {
	var (
		out     models.DealLogistics
		changed bool
	)
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		deal, err := s.lockDeal(ctx, q, actor, dealID, sideSupplier)
		if err != nil {
			return err
		}
		l, err := loadLogistics(ctx, q, deal.ID)
		if err != nil {
			return err
		}
		if l.Delivered {
			out = l
			return nil
		}
		now := s.now()
		prev := l.Current
		l.Delivered = true
		l.DeliveredAt = &now
		l.Current = stageDelivered
		if err := q.UpsertDealLogistics(ctx, &l); err != nil {
			return fmt.Errorf("upsert logistics: %w", err)
		}
		if err := s.audit.Write(ctx, q, "deal_logistics", deal.ID, actor.userRef(), "delivered", prev, l.Current, nil); err != nil {
			return err
		}
		out, changed = l, true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		zap.L().Info("deal delivered", zap.String("deal_id", dealID.String()))
		publish(ctx, s.publisher, events.New(events.TypeDealDelivered, dealID, out))
	}
	return &out, nil
}

// UpdateStatus records the free-text stage reported by the logistics feed.
func (s *LogisticsService) UpdateStatus(ctx context.Context, actor Actor, dealID uuid.UUID, current string) (*models.DealLogistics, error) {
	current = strings.TrimSpace(current)
	if current == "" {
		return nil, fmt.Errorf("%w: current is required", domain.ErrValidation)
	}
	if current == stageDelivered {
		return s.MarkDelivered(ctx, actor, dealID)
	}
	var out models.DealLogistics
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		deal, err := s.lockDeal(ctx, q, actor, dealID, sideSupplier)
		if err != nil {
			return err
		}
		l, err := loadLogistics(ctx, q, deal.ID)
		if err != nil {
			return err
		}
		if l.Delivered {
			return fmt.Errorf("%w: deal is already delivered", domain.ErrInvalidState)
		}
		prev := l.Current
		l.Current = current
		if err := q.UpsertDealLogistics(ctx, &l); err != nil {
			return fmt.Errorf("upsert logistics: %w", err)
		}
		if err := s.audit.Write(ctx, q, "deal_logistics", deal.ID, actor.userRef(), "stage_changed", prev, current, nil); err != nil {
			return err
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ConfirmReceipt is the buyer's acknowledgement. It requires delivery and settles every pending
// payment of the deal in one transaction.
func (s *LogisticsService) ConfirmReceipt(ctx context.Context, actor Actor, dealID uuid.UUID) (*ReceiptResult, error) {
	var (
		res     ReceiptResult
		changes []dealChange
	)
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		deal, err := s.lockDeal(ctx, q, actor, dealID, sideBuyer)
		if err != nil {
			return err
		}
		l, err := loadLogistics(ctx, q, deal.ID)
		if err != nil {
			return err
		}
		if !l.Delivered {
			return fmt.Errorf("%w: deal has not been delivered", domain.ErrInvalidState)
		}
		if l.ReceiptConfirmedAt == nil {
			now := s.now()
			l.ReceiptConfirmedAt = &now
			if err := q.UpsertDealLogistics(ctx, &l); err != nil {
				return fmt.Errorf("upsert logistics: %w", err)
			}
			if err := s.audit.Write(ctx, q, "deal_logistics", deal.ID, actor.userRef(), "receipt_confirmed", l.Current, l.Current, nil); err != nil {
				return err
			}
		}

		pending, err := q.ListPendingPaymentsByDealForUpdate(ctx, deal.ID)
		if err != nil {
			return fmt.Errorf("list pending payments: %w", err)
		}
		res.Completed = make([]models.Payment, 0, len(pending))
		for _, p := range pending {
			if p.PayerOrgID != deal.BuyerOrgID {
				continue
			}
			if err := s.payments.completeIn(ctx, q, p, actor.userRef()); err != nil {
				return err
			}
			done, err := q.GetPayment(ctx, p.ID)
			if err != nil {
				return lookupErr(err, "payment")
			}
			res.Completed = append(res.Completed, done)
		}
		if changes, err = s.payments.recomputeDeal(ctx, q, deal, actor.userRef()); err != nil {
			return err
		}
		if res.Deal, err = q.GetDeal(ctx, deal.ID); err != nil {
			return lookupErr(err, "deal")
		}
		res.Logistics = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, p := range res.Completed {
		observability.IncrementPaymentOutcome(p.Status)
		publish(ctx, s.publisher, events.New(events.TypePaymentCompleted, p.ID, p))
	}
	announceDealChanges(ctx, s.publisher, changes)
	return &res, nil
}

// CloseDeal ends a fully paid deal whose receipt has been confirmed and completes its order.
func (s *LogisticsService) CloseDeal(ctx context.Context, actor Actor, dealID uuid.UUID) (*models.Deal, error) {
	var (
		out     models.Deal
		changes []dealChange
	)
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		deal, err := s.lockDeal(ctx, q, actor, dealID, sideBuyer)
		if err != nil {
			return err
		}
		if !dealTransitions.allows(deal.Status, domain.DealStatusClosed) {
			return fmt.Errorf("%w: deal is %s", domain.ErrInvalidState, deal.Status)
		}
		l, err := loadLogistics(ctx, q, deal.ID)
		if err != nil {
			return err
		}
		if l.ReceiptConfirmedAt == nil {
			return fmt.Errorf("%w: receipt has not been confirmed", domain.ErrInvalidState)
		}
		if err := setDealStatus(ctx, q, s.audit, deal, domain.DealStatusClosed, actor.userRef()); err != nil {
			return err
		}
		order, err := q.GetOrder(ctx, deal.OrderID)
		if err != nil {
			return lookupErr(err, "order")
		}
		if order.Status == domain.OrderStatusConfirmed {
			if err := setOrderStatus(ctx, q, s.audit, order, domain.OrderStatusInProgress, actor.userRef()); err != nil {
				return err
			}
			order.Status = domain.OrderStatusInProgress
		}
		if err := setOrderStatus(ctx, q, s.audit, order, domain.OrderStatusCompleted, actor.userRef()); err != nil {
			return err
		}
		changes = []dealChange{{DealID: deal.ID, From: deal.Status, To: domain.DealStatusClosed}}
		out, err = q.GetDeal(ctx, deal.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	announceDealChanges(ctx, s.publisher, changes)
	return &out, nil
}

type dealSide int

const (
	sideBuyer dealSide = iota
	sideSupplier
)

// lockDeal locks the deal and checks the actor is on the required side. Admins act on either side.
func (s *LogisticsService) lockDeal(ctx context.Context, q repository.Querier, actor Actor, dealID uuid.UUID, side dealSide) (models.Deal, error) {
	deal, err := q.GetDealForUpdate(ctx, dealID)
	if err != nil {
		return deal, lookupErr(err, "deal")
	}
	if actor.IsAdmin() {
		return deal, nil
	}
	isBuyer, isSupplier := deal.BuyerOrgID == actor.OrgID, deal.SupplierOrgID == actor.OrgID
	switch {
	case side == sideBuyer && isBuyer, side == sideSupplier && isSupplier:
		return deal, nil
	case isBuyer || isSupplier:
		return deal, fmt.Errorf("%w: action not allowed for this side of the deal", domain.ErrForbidden)
	default:
		return deal, fmt.Errorf("%w: deal", domain.ErrNotFound)
	}
}

func loadLogistics(ctx context.Context, q repository.Querier, dealID uuid.UUID) (models.DealLogistics, error) {
	l, err := q.GetDealLogisticsForUpdate(ctx, dealID)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.DealLogistics{DealID: dealID}, nil
	}
	if err != nil {
		return l, fmt.Errorf("load logistics: %w", err)
	}
	return l, nil
}
