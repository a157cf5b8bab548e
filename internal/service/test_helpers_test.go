package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ayo6706/trade-escrow/internal/events"
	"github.com/ayo6706/trade-escrow/internal/fxcache"
	"github.com/ayo6706/trade-escrow/internal/models"
	"github.com/ayo6706/trade-escrow/internal/repository"
	"github.com/ayo6706/trade-escrow/internal/repository/memory"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// fixture wires every service against one in-memory store and a shared clock.
type fixture struct {
	store     *memory.Store
	events    *events.Recorder
	now       time.Time
	rfqs      *RFQService
	offers    *OfferService
	ledger    *LedgerService
	fx        *FXQuoteService
	payments  *PaymentService
	logistics *LogisticsService
	views     *DealViewService
	webhook   *WebhookService
	recon     *ReconciliationService
	janitor   *JanitorService
}

const webhookSecret = "test-secret"

func newFixture(t *testing.T) *fixture {
	return newFixtureWithCache(t, nil)
}

func newFixtureWithCache(t *testing.T, cache *fxcache.Cache) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.NewStore(),
		events: &events.Recorder{},
		now:    time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.store.SetClock(clock)

	f.rfqs = NewRFQService(f.store)
	f.ledger = NewLedgerService(f.store)
	f.fx = NewFXQuoteService(f.store, NewStaticRateOracle(nil), cache, time.Minute)
	f.fx.SetClock(clock)
	f.offers = NewOfferService(f.store, f.rfqs, NewDealFactory(), f.events)
	f.offers.SetClock(clock)
	f.payments = NewPaymentService(f.store, f.ledger, f.fx, f.events)
	f.payments.now = clock
	f.logistics = NewLogisticsService(f.store, f.payments, f.events)
	f.logistics.now = clock
	f.views = NewDealViewService(f.store)
	f.webhook = NewWebhookService(f.store, f.ledger, webhookSecret, false, f.events)
	f.recon = NewReconciliationService(f.store)
	f.janitor = NewJanitorService(f.store, f.payments, time.Hour, 30*time.Minute)
	f.janitor.SetClock(clock)
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func newActor(role string) Actor {
	return Actor{UserID: uuid.New(), OrgID: uuid.New(), Role: role}
}

func qty(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func (f *fixture) fund(t *testing.T, org uuid.UUID, currency string, micros int64) {
	t.Helper()
	require.NoError(t, f.store.RunInTx(context.Background(), func(q repository.Querier) error {
		return f.ledger.Credit(context.Background(), q, Posting{OrgID: org, Currency: currency, AmountMicros: micros})
	}))
}

// wallet returns the balances, treating a missing wallet as empty.
func (f *fixture) wallet(t *testing.T, org uuid.UUID, currency string) models.Wallet {
	t.Helper()
	w, err := f.store.Queries().GetWallet(context.Background(), repository.WalletKey{OrgID: org, Currency: currency})
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Wallet{OrgID: org, Currency: currency}
	}
	require.NoError(t, err)
	return w
}

// sentRFQ creates and sends an RFQ for 10 widgets.
func (f *fixture) sentRFQ(t *testing.T, buyer, supplier Actor) *models.RFQ {
	t.Helper()
	ctx := context.Background()
	rfq, err := f.rfqs.Create(ctx, buyer, CreateRFQInput{
		SupplierOrgID: &supplier.OrgID,
		Items:         []models.RFQItem{{Name: "Widget", Quantity: qty("10"), Unit: "pcs"}},
	})
	require.NoError(t, err)
	rfq, err = f.rfqs.Send(ctx, buyer, rfq.ID)
	require.NoError(t, err)
	return rfq
}

func widgetOffer(currency, unitPrice string) CreateOfferInput {
	idx := 0
	return CreateOfferInput{
		Currency: currency,
		Items: []models.OfferItem{{
			RFQItemIndex: &idx,
			Name:         "Widget",
			Quantity:     qty("10"),
			Unit:         "pcs",
			UnitPrice:    qty(unitPrice),
		}},
	}
}

// acceptedDeal runs RFQ -> offer -> accept and returns the factory output.
func (f *fixture) acceptedDeal(t *testing.T, buyer, supplier Actor, currency, unitPrice string) *AcceptResult {
	t.Helper()
	ctx := context.Background()
	rfq := f.sentRFQ(t, buyer, supplier)
	offer, err := f.offers.Create(ctx, supplier, rfq.ID, widgetOffer(currency, unitPrice))
	require.NoError(t, err)
	res, err := f.offers.Accept(ctx, buyer, offer.ID)
	require.NoError(t, err)
	return res
}

func (f *fixture) dealStatus(t *testing.T, id uuid.UUID) string {
	t.Helper()
	d, err := f.store.Queries().GetDeal(context.Background(), id)
	require.NoError(t, err)
	return d.Status
}
