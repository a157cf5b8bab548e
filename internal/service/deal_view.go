package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/trade-escrow/internal/domain"
	"github.com/ayo6706/trade-escrow/internal/models"
	"github.com/ayo6706/trade-escrow/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DealView is the aggregate a client needs to render one deal.
type DealView struct {
	Deal      models.Deal           `json:"deal"`
	RFQ       models.RFQ            `json:"rfq"`
	Offer     models.Offer          `json:"offer"`
	Order     models.Order          `json:"order"`
	Payments  []models.Payment      `json:"payments"`
	Logistics *models.DealLogistics `json:"logistics,omitempty"`
}

// DealViewService serves read-only deal and order projections.
type DealViewService struct {
	store QueryStore
}

func NewDealViewService(store QueryStore) *DealViewService {
	return &DealViewService{store: store}
}

// Get assembles the deal with its RFQ, offer, order, payments and logistics from one snapshot.
func (s *DealViewService) Get(ctx context.Context, actor Actor, dealID uuid.UUID) (*DealView, error) {
	var view DealView
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		deal, err := q.GetDeal(ctx, dealID)
		if err != nil {
			return lookupErr(err, "deal")
		}
		if !partyTo(actor, deal.BuyerOrgID, deal.SupplierOrgID) {
			return fmt.Errorf("%w: deal", domain.ErrNotFound)
		}
		view.Deal = deal
		if view.RFQ, err = q.GetRFQ(ctx, deal.RFQID); err != nil {
			return lookupErr(err, "rfq")
		}
		if view.Offer, err = q.GetOffer(ctx, deal.OfferID); err != nil {
			return lookupErr(err, "offer")
		}
		if view.Order, err = q.GetOrder(ctx, deal.OrderID); err != nil {
			return lookupErr(err, "order")
		}
		// Every payment of a deal is paid by its buyer.
		view.Payments, err = q.ListPayments(ctx, repository.ListPaymentsParams{
			DealID: &deal.ID,
			OrgID:  deal.BuyerOrgID,
			Role:   domain.RoleBuyer,
			Limit:  500,
		})
		if err != nil {
			return fmt.Errorf("list payments: %w", err)
		}
		l, err := q.GetDealLogistics(ctx, deal.ID)
		switch {
		case err == nil:
			view.Logistics = &l
		case !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("load logistics: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (s *DealViewService) List(ctx context.Context, actor Actor, f ListFilter) ([]models.Deal, error) {
	if err := validateRoleFilter(f.Role); err != nil {
		return nil, err
	}
	limit, offset := pageSize(f.Limit, f.Offset)
	deals, err := s.store.Queries().ListDeals(ctx, repository.ListParams{
		OrgID:  actor.OrgID,
		Role:   f.Role,
		Status: f.Status,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	return deals, nil
}

func (s *DealViewService) GetOrder(ctx context.Context, actor Actor, id uuid.UUID) (*models.Order, error) {
	order, err := s.store.Queries().GetOrder(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "order")
	}
	if !partyTo(actor, order.BuyerOrgID, order.SupplierOrgID) {
		return nil, fmt.Errorf("%w: order", domain.ErrNotFound)
	}
	return &order, nil
}

func (s *DealViewService) ListOrders(ctx context.Context, actor Actor, f ListFilter) ([]models.Order, error) {
	if err := validateRoleFilter(f.Role); err != nil {
		return nil, err
	}
	limit, offset := pageSize(f.Limit, f.Offset)
	orders, err := s.store.Queries().ListOrders(ctx, repository.ListParams{
		OrgID:  actor.OrgID,
		Role:   f.Role,
		Status: f.Status,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// History returns the audit trail of an entity the actor can see.
func (s *DealViewService) History(ctx context.Context, actor Actor, dealID uuid.UUID) ([]models.AuditLog, error) {
	if _, err := s.Get(ctx, actor, dealID); err != nil {
		return nil, err
	}
	logs, err := s.store.Queries().ListAuditLogs(ctx, dealID)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return logs, nil
}

func partyTo(actor Actor, buyer, supplier uuid.UUID) bool {
	return actor.IsAdmin() || actor.OrgID == buyer || actor.OrgID == supplier
}
