package service

import (
	"context"
	"testing"

	"github.com/ayo6706/trade-escrow/internal/domain"
	"github.com/ayo6706/trade-escrow/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRFQCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := newActor(domain.RoleBuyer)

	cases := []struct {
		name  string
		actor Actor
		items []models.RFQItem
		want  error
	}{
		{"empty items", buyer, nil, domain.ErrValidation},
		{"zero quantity", buyer, []models.RFQItem{{Name: "Widget", Quantity: qty("0"), Unit: "pcs"}}, domain.ErrValidation},
		{"negative quantity", buyer, []models.RFQItem{{Name: "Widget", Quantity: qty("-1"), Unit: "pcs"}}, domain.ErrValidation},
		{"blank name", buyer, []models.RFQItem{{Name: "  ", Quantity: qty("1"), Unit: "pcs"}}, domain.ErrValidation},
		{"supplier only org", newActor(domain.RoleSupplier), []models.RFQItem{{Name: "Widget", Quantity: qty("1"), Unit: "pcs"}}, domain.ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.rfqs.Create(ctx, tc.actor, CreateRFQInput{Items: tc.items})
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRFQLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer, supplier := newActor(domain.RoleBuyer), newActor(domain.RoleSupplier)

	rfq, err := f.rfqs.Create(ctx, buyer, CreateRFQInput{
		Items: []models.RFQItem{{Name: " Widget ", Quantity: qty("100"), Unit: "piece"}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RFQStatusDraft, rfq.Status)
	assert.Equal(t, "Widget", rfq.Items[0].Name)

	_, err = f.rfqs.Send(ctx, buyer, rfq.ID)
	require.ErrorIs(t, err, domain.ErrValidation, "a supplier is required before sending")

	rfq, err = f.rfqs.Update(ctx, buyer, rfq.ID, UpdateRFQInput{SupplierOrgID: &supplier.OrgID})
	require.NoError(t, err)
	require.NotNil(t, rfq.SupplierOrgID)

	_, err = f.rfqs.Get(ctx, supplier, rfq.ID)
	require.ErrorIs(t, err, domain.ErrNotFound, "drafts are private to the buyer")

	rfq, err = f.rfqs.Send(ctx, buyer, rfq.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RFQStatusSent, rfq.Status)

	_, err = f.rfqs.Send(ctx, buyer, rfq.ID)
	require.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.rfqs.Send(ctx, supplier, rfq.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)

	other := newActor(domain.RoleBoth)
	_, err = f.rfqs.Get(ctx, other, rfq.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	seen, err := f.rfqs.Get(ctx, supplier, rfq.ID)
	require.NoError(t, err)
	assert.Equal(t, rfq.ID, seen.ID)

	rfq, err = f.rfqs.Close(ctx, buyer, rfq.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RFQStatusClosed, rfq.Status)

	_, err = f.offers.Create(ctx, supplier, rfq.ID, widgetOffer("USD", "1"))
	require.ErrorIs(t, err, domain.ErrInvalidState)

	logs, err := f.store.Queries().ListAuditLogs(ctx, rfq.ID)
	require.NoError(t, err)
	actions := make([]string, 0, len(logs))
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	assert.Equal(t, []string{"created", "updated", "sent", "closed"}, actions)
}

func TestRFQUpdateWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer, supplier := newActor(domain.RoleBuyer), newActor(domain.RoleSupplier)
	rfq := f.sentRFQ(t, buyer, supplier)

	updated, err := f.rfqs.Update(ctx, buyer, rfq.ID, UpdateRFQInput{
		Items: []models.RFQItem{{Name: "Widget", Quantity: qty("12"), Unit: "pcs"}},
	})
	require.NoError(t, err, "items can still change while sent")
	assert.True(t, updated.Items[0].Quantity.Equal(qty("12")))

	otherSupplier := uuid.New()
	_, err = f.rfqs.Update(ctx, buyer, rfq.ID, UpdateRFQInput{SupplierOrgID: &otherSupplier})
	require.ErrorIs(t, err, domain.ErrInvalidState, "supplier is fixed once sent")

	_, err = f.offers.Create(ctx, supplier, rfq.ID, widgetOffer("USD", "2"))
	require.NoError(t, err)

	got, err := f.rfqs.Get(ctx, buyer, rfq.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RFQStatusResponded, got.Status, "first offer advances the rfq")

	_, err = f.rfqs.Update(ctx, buyer, rfq.ID, UpdateRFQInput{
		Items: []models.RFQItem{{Name: "Widget", Quantity: qty("99"), Unit: "pcs"}},
	})
	require.ErrorIs(t, err, domain.ErrInvalidState, "offers freeze the rfq")
}

func TestRFQListByRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	both, partner := newActor(domain.RoleBoth), newActor(domain.RoleBoth)

	f.sentRFQ(t, both, partner)
	f.sentRFQ(t, partner, both)
	_, err := f.rfqs.Create(ctx, partner, CreateRFQInput{
		SupplierOrgID: &both.OrgID,
		Items:         []models.RFQItem{{Name: "Draft", Quantity: qty("1"), Unit: "pcs"}},
	})
	require.NoError(t, err)

	asBuyer, err := f.rfqs.List(ctx, both, ListFilter{Role: domain.RoleBuyer})
	require.NoError(t, err)
	assert.Len(t, asBuyer, 1)

	asSupplier, err := f.rfqs.List(ctx, both, ListFilter{Role: domain.RoleSupplier})
	require.NoError(t, err)
	assert.Len(t, asSupplier, 1, "the partner's draft is hidden")

	all, err := f.rfqs.List(ctx, both, ListFilter{Status: domain.RFQStatusSent})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.rfqs.List(ctx, both, ListFilter{Role: "admin"})
	require.ErrorIs(t, err, domain.ErrValidation)
}
