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
	"github.com/shopspring/decimal"
)

// DealFactory turns an accepted offer into a confirmed order and a deal in negotiation.
type DealFactory struct {
	audit *AuditService
}

func NewDealFactory() *DealFactory {
	return &DealFactory{audit: NewAuditService()}
}

// Create runs inside the acceptance transaction with the RFQ row locked. An RFQ or offer that
// already has a deal is a conflict.
func (f *DealFactory) Create(ctx context.Context, q repository.Querier, rfq models.RFQ, offer models.Offer, actorID *uuid.UUID) (*models.Deal, *models.Order, error) {
	if _, err := q.GetDealByOfferID(ctx, offer.ID); err == nil {
		return nil, nil, fmt.Errorf("%w: offer %s already has a deal", domain.ErrConflict, offer.ID)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("check existing deal: %w", err)
	}
	if err := requireNoDeal(ctx, q, rfq.ID); err != nil {
		return nil, nil, err
	}

	items := make([]models.OfferItem, len(offer.Items))
	copy(items, offer.Items)
	total := orderTotal(items)

	order := &models.Order{
		ID:            uuid.New(),
		BuyerOrgID:    rfq.BuyerOrgID,
		SupplierOrgID: offer.SupplierOrgID,
		OfferID:       offer.ID,
		Status:        domain.OrderStatusConfirmed,
		Currency:      offer.Currency,
		Items:         items,
		TotalAmount:   domain.MicrosToDecimal(domain.RoundToMicros(total)),
		TotalMicros:   domain.RoundToMicros(total),
	}
	if err := q.InsertOrder(ctx, order); err != nil {
		if isUniqueViolation(err) {
			return nil, nil, fmt.Errorf("%w: offer %s already has an order", domain.ErrConflict, offer.ID)
		}
		return nil, nil, fmt.Errorf("insert order: %w", err)
	}
	if err := f.audit.Write(ctx, q, "order", order.ID, actorID, "created", "", order.Status, nil); err != nil {
		return nil, nil, err
	}

	deal := &models.Deal{
		ID:            uuid.New(),
		RFQID:         rfq.ID,
		OfferID:       offer.ID,
		OrderID:       order.ID,
		BuyerOrgID:    rfq.BuyerOrgID,
		SupplierOrgID: offer.SupplierOrgID,
		Status:        domain.DealStatusNegotiation,
		MainCurrency:  offer.Currency,
	}
	if err := q.InsertDeal(ctx, deal); err != nil {
		if isUniqueViolation(err) {
			return nil, nil, fmt.Errorf("%w: rfq %s already has a deal", domain.ErrConflict, rfq.ID)
		}
		return nil, nil, fmt.Errorf("insert deal: %w", err)
	}
	if err := f.audit.Write(ctx, q, "deal", deal.ID, actorID, "created", "", deal.Status, nil); err != nil {
		return nil, nil, err
	}
	return deal, order, nil
}

// requireNoDeal fails with ErrConflict once any offer of the RFQ has been turned into a deal.
func requireNoDeal(ctx context.Context, q repository.Querier, rfqID uuid.UUID) error {
	_, err := q.GetDealByRFQID(ctx, rfqID)
	switch {
	case err == nil:
		return fmt.Errorf("%w: rfq %s already has an accepted offer", domain.ErrConflict, rfqID)
	case errors.Is(err, pgx.ErrNoRows):
		return nil
	default:
		return fmt.Errorf("check rfq deal: %w", err)
	}
}

// orderTotal sums quantity*unit_price over the items. Client subtotals are not trusted here.
func orderTotal(items []models.OfferItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Quantity.Mul(item.UnitPrice))
	}
	return total
}
