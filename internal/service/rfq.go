package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ayo6706/trade-escrow/internal/domain"
	"github.com/ayo6706/trade-escrow/internal/models"
	"github.com/ayo6706/trade-escrow/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RFQService owns the RFQ state machine: draft -> sent -> responded -> closed.
type RFQService struct {
	store QueryStore
	audit *AuditService
}

func NewRFQService(store QueryStore) *RFQService {
	return &RFQService{store: store, audit: NewAuditService()}
}

type CreateRFQInput struct {
	SupplierOrgID *uuid.UUID
	Items         []models.RFQItem
}

// UpdateRFQInput replaces the fields that are set. The supplier can only change while the RFQ is a draft.
type UpdateRFQInput struct {
	Items         []models.RFQItem
	SupplierOrgID *uuid.UUID
}

// ListFilter narrows list endpoints to one side of the record and an optional status.
type ListFilter struct {
	Role   string
	Status string
	Limit  int
	Offset int
}

// OfferCreated is emitted by the offer state machine and consumed here within the same transaction.
type OfferCreated struct {
	RFQID         uuid.UUID
	OfferID       uuid.UUID
	SupplierOrgID uuid.UUID
	ActorID       *uuid.UUID
}

func (s *RFQService) Create(ctx context.Context, actor Actor, in CreateRFQInput) (*models.RFQ, error) {
	if !actor.CanBuy() {
		return nil, fmt.Errorf("%w: organization cannot act as buyer", domain.ErrForbidden)
	}
	items, err := validateRFQItems(in.Items)
	if err != nil {
		return nil, err
	}
	if in.SupplierOrgID != nil && *in.SupplierOrgID == actor.OrgID {
		return nil, fmt.Errorf("%w: supplier must differ from buyer", domain.ErrValidation)
	}

	rfq := &models.RFQ{
		ID:            uuid.New(),
		BuyerOrgID:    actor.OrgID,
		SupplierOrgID: in.SupplierOrgID,
		Status:        domain.RFQStatusDraft,
		Items:         items,
	}
	err = s.store.RunInTx(ctx, func(q repository.Querier) error {
		if err := q.InsertRFQ(ctx, rfq); err != nil {
			return fmt.Errorf("insert rfq: %w", err)
		}
		return s.audit.Write(ctx, q, "rfq", rfq.ID, actor.userRef(), "created", "", rfq.Status, nil)
	})
	if err != nil {
		return nil, err
	}
	return rfq, nil
}

// Update edits items (and, in draft, the supplier). Allowed in draft and sent only. Once the first
// offer arrives the RFQ is responded and frozen, so offers never see their RFQ change underneath them.
func (s *RFQService) Update(ctx context.Context, actor Actor, id uuid.UUID, in UpdateRFQInput) (*models.RFQ, error) {
	if in.Items == nil && in.SupplierOrgID == nil {
		return nil, fmt.Errorf("%w: nothing to update", domain.ErrValidation)
	}
	var items []models.RFQItem
	if in.Items != nil {
		var err error
		if items, err = validateRFQItems(in.Items); err != nil {
			return nil, err
		}
	}

	var updated models.RFQ
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		rfq, err := s.lockOwned(ctx, q, actor, id)
		if err != nil {
			return err
		}
		if rfq.Status != domain.RFQStatusDraft && rfq.Status != domain.RFQStatusSent {
			return fmt.Errorf("%w: rfq is %s", domain.ErrInvalidState, rfq.Status)
		}
		if in.SupplierOrgID != nil && !sameOrg(rfq.SupplierOrgID, in.SupplierOrgID) {
			if rfq.Status != domain.RFQStatusDraft {
				return fmt.Errorf("%w: supplier can only change while draft", domain.ErrInvalidState)
			}
			if *in.SupplierOrgID == rfq.BuyerOrgID {
				return fmt.Errorf("%w: supplier must differ from buyer", domain.ErrValidation)
			}
			rfq.SupplierOrgID = in.SupplierOrgID
		}
		if items != nil {
			rfq.Items = items
		}

		rows, err := q.UpdateRFQ(ctx, repository.UpdateRFQParams{
			ID:            rfq.ID,
			SupplierOrgID: rfq.SupplierOrgID,
			Status:        rfq.Status,
			Items:         rfq.Items,
		})
		if err != nil {
			return fmt.Errorf("update rfq: %w", err)
		}
		if err := requireExactlyOne(rows, "update rfq"); err != nil {
			return err
		}
		meta, _ := json.Marshal(map[string]int{"items": len(rfq.Items)})
		if err := s.audit.Write(ctx, q, "rfq", rfq.ID, actor.userRef(), "updated", rfq.Status, rfq.Status, meta); err != nil {
			return err
		}
		updated, err = q.GetRFQ(ctx, rfq.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Send moves a draft to sent. A supplier must be set.
func (s *RFQService) Send(ctx context.Context, actor Actor, id uuid.UUID) (*models.RFQ, error) {
	return s.transitionOwned(ctx, actor, id, domain.RFQStatusSent, "sent", func(rfq models.RFQ) error {
		if rfq.SupplierOrgID == nil {
			return fmt.Errorf("%w: supplier_org_id is required before sending", domain.ErrValidation)
		}
		return nil
	})
}

// Close ends negotiation on a sent or responded RFQ. Existing deals are unaffected.
func (s *RFQService) Close(ctx context.Context, actor Actor, id uuid.UUID) (*models.RFQ, error) {
	return s.transitionOwned(ctx, actor, id, domain.RFQStatusClosed, "closed", nil)
}

func (s *RFQService) transitionOwned(ctx context.Context, actor Actor, id uuid.UUID, next, action string, check func(models.RFQ) error) (*models.RFQ, error) {
	var updated models.RFQ
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		rfq, err := s.lockOwned(ctx, q, actor, id)
		if err != nil {
			return err
		}
		if !rfqTransitions.allows(rfq.Status, next) {
			return fmt.Errorf("%w: rfq cannot move from %s to %s", domain.ErrInvalidState, rfq.Status, next)
		}
		if check != nil {
			if err := check(rfq); err != nil {
				return err
			}
		}
		if err := s.setStatus(ctx, q, rfq, next, actor.userRef(), action); err != nil {
			return err
		}
		updated, err = q.GetRFQ(ctx, rfq.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// HandleOfferCreated advances a sent RFQ to responded. It runs inside the offer's transaction and
// takes the RFQ row lock, so it serializes with Update.
func (s *RFQService) HandleOfferCreated(ctx context.Context, q repository.Querier, evt OfferCreated) error {
	rfq, err := q.GetRFQForUpdate(ctx, evt.RFQID)
	if err != nil {
		return lookupErr(err, "rfq")
	}
	if rfq.Status != domain.RFQStatusSent {
		return nil
	}
	if err := s.setStatus(ctx, q, rfq, domain.RFQStatusResponded, evt.ActorID, "offer_received"); err != nil {
		return err
	}
	zap.L().Debug("rfq responded", zap.String("rfq_id", rfq.ID.String()), zap.String("offer_id", evt.OfferID.String()))
	return nil
}

func (s *RFQService) setStatus(ctx context.Context, q repository.Querier, rfq models.RFQ, next string, actorID *uuid.UUID, action string) error {
	rows, err := q.UpdateRFQ(ctx, repository.UpdateRFQParams{
		ID:            rfq.ID,
		SupplierOrgID: rfq.SupplierOrgID,
		Status:        next,
		Items:         rfq.Items,
	})
	if err != nil {
		return fmt.Errorf("update rfq status: %w", err)
	}
	if err := requireExactlyOne(rows, "update rfq status"); err != nil {
		return err
	}
	return s.audit.Write(ctx, q, "rfq", rfq.ID, actorID, action, rfq.Status, next, nil)
}

// lockOwned loads the RFQ for update and checks the actor is its buyer.
func (s *RFQService) lockOwned(ctx context.Context, q repository.Querier, actor Actor, id uuid.UUID) (models.RFQ, error) {
	rfq, err := q.GetRFQForUpdate(ctx, id)
	if err != nil {
		return rfq, lookupErr(err, "rfq")
	}
	if rfq.BuyerOrgID != actor.OrgID {
		if rfqVisibleTo(rfq, actor) {
			return rfq, fmt.Errorf("%w: only the buyer can modify an rfq", domain.ErrForbidden)
		}
		return rfq, fmt.Errorf("%w: rfq", domain.ErrNotFound)
	}
	return rfq, nil
}

func (s *RFQService) Get(ctx context.Context, actor Actor, id uuid.UUID) (*models.RFQ, error) {
	rfq, err := s.store.Queries().GetRFQ(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "rfq")
	}
	if !rfqVisibleTo(rfq, actor) {
		return nil, fmt.Errorf("%w: rfq", domain.ErrNotFound)
	}
	return &rfq, nil
}

func (s *RFQService) List(ctx context.Context, actor Actor, f ListFilter) ([]models.RFQ, error) {
	if err := validateRoleFilter(f.Role); err != nil {
		return nil, err
	}
	limit, offset := pageSize(f.Limit, f.Offset)
	return s.store.Queries().ListRFQs(ctx, repository.ListParams{
		OrgID:  actor.OrgID,
		Role:   f.Role,
		Status: f.Status,
		Limit:  limit,
		Offset: offset,
	})
}

// rfqVisibleTo hides drafts from the addressed supplier.
func rfqVisibleTo(rfq models.RFQ, actor Actor) bool {
	if actor.IsAdmin() || rfq.BuyerOrgID == actor.OrgID {
		return true
	}
	return rfq.SupplierOrgID != nil && *rfq.SupplierOrgID == actor.OrgID && rfq.Status != domain.RFQStatusDraft
}

func validateRFQItems(items []models.RFQItem) ([]models.RFQItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: items must not be empty", domain.ErrValidation)
	}
	out := make([]models.RFQItem, len(items))
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
		if item.TargetPrice != nil && item.TargetPrice.IsNegative() {
			return nil, fmt.Errorf("%w: items[%d].target_price must not be negative", domain.ErrValidation, i)
		}
		out[i] = item
	}
	return out, nil
}

func validateRoleFilter(role string) error {
	switch role {
	case "", domain.RoleBuyer, domain.RoleSupplier:
		return nil
	default:
		return fmt.Errorf("%w: role must be buyer or supplier", domain.ErrValidation)
	}
}

func sameOrg(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
