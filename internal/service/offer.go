package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/trade-escrow/internal/domain"
	"github.com/ayo6706/trade-escrow/internal/events"
	"github.com/ayo6706/trade-escrow/internal/models"
	"github.com/ayo6706/trade-escrow/internal/observability"
	"github.com/ayo6706/trade-escrow/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var subtotalTolerance = decimal.RequireFromString(domain.SubtotalTolerance)

// OfferService owns the offer state machine: sent -> accepted | rejected.
type OfferService struct {
	store     QueryStore
	rfqs      *RFQService
	factory   *DealFactory
	audit     *AuditService
	publisher events.Publisher
	now       func() time.Time
}

func NewOfferService(store QueryStore, rfqs *RFQService, factory *DealFactory, publisher events.Publisher) *OfferService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &OfferService{
		store:     store,
		rfqs:      rfqs,
		factory:   factory,
		audit:     NewAuditService(),
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source used for valid_until checks.
func (s *OfferService) SetClock(now func() time.Time) {
	s.now = now
}

type CreateOfferInput struct {
	Currency     string
	Items        []models.OfferItem
	Incoterms    *string
	PaymentTerms *string
	ValidUntil   *time.Time
}

// AcceptResult is what acceptance produced.
type AcceptResult struct {
	Offer      models.Offer  `json:"offer"`
	Order      *models.Order `json:"order"`
	Deal       *models.Deal  `json:"deal"`
	Superseded []uuid.UUID   `json:"superseded_offer_ids,omitempty"`
}

// Create records the supplier's offer against a sent or responded RFQ and advances the RFQ.
func (s *OfferService) Create(ctx context.Context, actor Actor, rfqID uuid.UUID, in CreateOfferInput) (*models.Offer, error) {
	if !actor.CanSupply() {
		return nil, fmt.Errorf("%w: organization cannot act as supplier", domain.ErrForbidden)
	}
	currency := domain.NormalizeCurrency(in.Currency)
	if !domain.ValidCurrencyCode(currency) {
		return nil, fmt.Errorf("%w: invalid currency %q", domain.ErrValidation, in.Currency)
	}
	items, err := validateOfferItems(in.Items)
	if err != nil {
		return nil, err
	}
	if in.ValidUntil != nil && in.ValidUntil.Before(s.now()) {
		return nil, fmt.Errorf("%w: valid_until is in the past", domain.ErrValidation)
	}

	offer := &models.Offer{
		ID:            uuid.New(),
		RFQID:         rfqID,
		SupplierOrgID: actor.OrgID,
		Status:        domain.OfferStatusSent,
		Currency:      currency,
		Items:         items,
		Incoterms:     trimmedOrNil(in.Incoterms),
		PaymentTerms:  trimmedOrNil(in.PaymentTerms),
		ValidUntil:    in.ValidUntil,
	}
	err = s.store.RunInTx(ctx, func(q repository.Querier) error {
		rfq, err := q.GetRFQForUpdate(ctx, rfqID)
		if err != nil {
			return lookupErr(err, "rfq")
		}
		if !rfqVisibleTo(rfq, actor) {
			return fmt.Errorf("%w: rfq", domain.ErrNotFound)
		}
		if rfq.SupplierOrgID == nil || *rfq.SupplierOrgID != actor.OrgID {
			return fmt.Errorf("%w: only the addressed supplier can make an offer", domain.ErrForbidden)
		}
		if rfq.Status != domain.RFQStatusSent && rfq.Status != domain.RFQStatusResponded {
			return fmt.Errorf("%w: rfq is %s", domain.ErrInvalidState, rfq.Status)
		}
		if err := requireNoDeal(ctx, q, rfq.ID); err != nil {
			return err
		}
		for i, item := range items {
			if item.RFQItemIndex != nil && (*item.RFQItemIndex < 0 || *item.RFQItemIndex >= len(rfq.Items)) {
				return fmt.Errorf("%w: items[%d].rfq_item_index out of range", domain.ErrValidation, i)
			}
		}
		if err := q.InsertOffer(ctx, offer); err != nil {
			return fmt.Errorf("insert offer: %w", err)
		}
		if err := s.audit.Write(ctx, q, "offer", offer.ID, actor.userRef(), "created", "", offer.Status, nil); err != nil {
			return err
		}
		return s.rfqs.HandleOfferCreated(ctx, q, OfferCreated{
			RFQID:         rfq.ID,
			OfferID:       offer.ID,
			SupplierOrgID: actor.OrgID,
			ActorID:       actor.userRef(),
		})
	})
	if err != nil {
		return nil, err
	}
	return offer, nil
}

// Accept is a compare-and-set from sent to accepted on the locked offer row. The RFQ row is locked
// too, so among sibling offers only one acceptance wins. The order and deal are created in the same
// transaction and the RFQ's other sent offers are rejected.
func (s *OfferService) Accept(ctx context.Context, actor Actor, offerID uuid.UUID) (*AcceptResult, error) {
	var res AcceptResult
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		offer, rfq, err := s.lockForBuyer(ctx, q, actor, offerID)
		if err != nil {
			return err
		}
		if !offerTransitions.allows(offer.Status, domain.OfferStatusAccepted) {
			return fmt.Errorf("%w: offer is %s", domain.ErrConflict, offer.Status)
		}
		if rfq.Status == domain.RFQStatusClosed {
			return fmt.Errorf("%w: rfq is closed", domain.ErrInvalidState)
		}
		if offer.ValidUntil != nil && !s.now().Before(*offer.ValidUntil) {
			return fmt.Errorf("%w: offer was valid until %s", domain.ErrExpired, offer.ValidUntil.Format(time.RFC3339))
		}
		if err := s.setStatus(ctx, q, offer, domain.OfferStatusAccepted, actor.userRef()); err != nil {
			return err
		}
		offer.Status = domain.OfferStatusAccepted

		deal, order, err := s.factory.Create(ctx, q, rfq, offer, actor.userRef())
		if err != nil {
			return err
		}
		if res.Superseded, err = s.rejectSiblings(ctx, q, offer, actor.userRef()); err != nil {
			return err
		}
		res.Offer, res.Order, res.Deal = offer, order, deal
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.IncrementDealTransition("", domain.DealStatusNegotiation)
	zap.L().Info("offer accepted",
		zap.String("offer_id", offerID.String()),
		zap.String("deal_id", res.Deal.ID.String()),
		zap.Int64("order_total_micros", res.Order.TotalMicros),
	)
	if len(res.Superseded) > 0 {
		zap.L().Info("sibling offers rejected", zap.String("rfq_id", res.Deal.RFQID.String()), zap.Int("count", len(res.Superseded)))
	}
	publish(ctx, s.publisher, events.New(events.TypeDealCreated, res.Deal.ID, res.Deal))
	return &res, nil
}

// Reject closes a sent offer without creating anything.
func (s *OfferService) Reject(ctx context.Context, actor Actor, offerID uuid.UUID) (*models.Offer, error) {
	var out models.Offer
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		offer, _, err := s.lockForBuyer(ctx, q, actor, offerID)
		if err != nil {
			return err
		}
		if !offerTransitions.allows(offer.Status, domain.OfferStatusRejected) {
			return fmt.Errorf("%w: offer is %s", domain.ErrConflict, offer.Status)
		}
		if err := s.setStatus(ctx, q, offer, domain.OfferStatusRejected, actor.userRef()); err != nil {
			return err
		}
		out, err = q.GetOffer(ctx, offer.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *OfferService) Get(ctx context.Context, actor Actor, id uuid.UUID) (*models.Offer, error) {
	q := s.store.Queries()
	offer, err := q.GetOffer(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "offer")
	}
	rfq, err := q.GetRFQ(ctx, offer.RFQID)
	if err != nil {
		return nil, lookupErr(err, "rfq")
	}
	if !actor.IsAdmin() && rfq.BuyerOrgID != actor.OrgID && offer.SupplierOrgID != actor.OrgID {
		return nil, fmt.Errorf("%w: offer", domain.ErrNotFound)
	}
	return &offer, nil
}

func (s *OfferService) ListByRFQ(ctx context.Context, actor Actor, rfqID uuid.UUID) ([]models.Offer, error) {
	if _, err := s.rfqs.Get(ctx, actor, rfqID); err != nil {
		return nil, err
	}
	offers, err := s.store.Queries().ListOffersByRFQ(ctx, rfqID)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	return offers, nil
}

// rejectSiblings moves the RFQ's other sent offers to rejected once one of them is accepted.
func (s *OfferService) rejectSiblings(ctx context.Context, q repository.Querier, accepted models.Offer, actorID *uuid.UUID) ([]uuid.UUID, error) {
	offers, err := q.ListOffersByRFQ(ctx, accepted.RFQID)
	if err != nil {
		return nil, fmt.Errorf("list sibling offers: %w", err)
	}
	var rejected []uuid.UUID
	for _, o := range offers {
		if o.ID == accepted.ID || o.Status != domain.OfferStatusSent {
			continue
		}
		if err := s.setStatus(ctx, q, o, domain.OfferStatusRejected, actorID); err != nil {
			return nil, err
		}
		rejected = append(rejected, o.ID)
	}
	return rejected, nil
}

// lockForBuyer locks the RFQ and then the offer, the same order Create and rejectSiblings use, and
// checks the actor is the buyer.
func (s *OfferService) lockForBuyer(ctx context.Context, q repository.Querier, actor Actor, offerID uuid.UUID) (models.Offer, models.RFQ, error) {
	offer, err := q.GetOffer(ctx, offerID)
	if err != nil {
		return offer, models.RFQ{}, lookupErr(err, "offer")
	}
	rfq, err := q.GetRFQForUpdate(ctx, offer.RFQID)
	if err != nil {
		return offer, rfq, lookupErr(err, "rfq")
	}
	if offer, err = q.GetOfferForUpdate(ctx, offerID); err != nil {
		return offer, rfq, lookupErr(err, "offer")
	}
	if rfq.BuyerOrgID != actor.OrgID {
		if offer.SupplierOrgID == actor.OrgID || actor.IsAdmin() {
			return offer, rfq, fmt.Errorf("%w: only the buyer can decide on an offer", domain.ErrForbidden)
		}
		return offer, rfq, fmt.Errorf("%w: offer", domain.ErrNotFound)
	}
	return offer, rfq, nil
}

func (s *OfferService) setStatus(ctx context.Context, q repository.Querier, offer models.Offer, next string, actorID *uuid.UUID) error {
	rows, err := q.UpdateOfferStatus(ctx, repository.UpdateStatusParams{ID: offer.ID, Status: next})
	if err != nil {
		return fmt.Errorf("update offer status: %w", err)
	}
	if err := requireExactlyOne(rows, "update offer status"); err != nil {
		return err
	}
	return s.audit.Write(ctx, q, "offer", offer.ID, actorID, next, offer.Status, next, nil)
}

// validateOfferItems fills in zero subtotals and rejects supplied ones that drift from quantity*unit_price.
func validateOfferItems(items []models.OfferItem) ([]models.OfferItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: items must not be empty", domain.ErrValidation)
	}
	out := make([]models.OfferItem, len(items))
	for i, item := range items {
		item.Name = strings.TrimSpace(item.Name)
		item.Unit = strings.TrimSpace(item.Unit)
		if item.Name == "" {
			return nil, fmt.Errorf("%w: items[%d].name is required", domain.ErrValidation, i)
		}
		if item.Unit == "" {
			return nil, fmt.Errorf("%w: items[%d].unit is required", domain.ErrValidation, i)
		}
		if !item.Quantity.IsPositive() {
			return nil, fmt.Errorf("%w: items[%d].quantity must be positive", domain.ErrValidation, i)
		}
		if item.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: items[%d].unit_price must not be negative", domain.ErrValidation, i)
		}
		expected := item.Quantity.Mul(item.UnitPrice)
		switch {
		case item.Subtotal.IsZero():
			item.Subtotal = expected
		case item.Subtotal.Sub(expected).Abs().GreaterThan(subtotalTolerance):
			return nil, fmt.Errorf("%w: items[%d].subtotal %s does not match quantity*unit_price %s",
				domain.ErrValidation, i, item.Subtotal.String(), expected.String())
		}
		out[i] = item
	}
	return out, nil
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
