package service

import (
	"time"

	"github.com/ayo6706/trade-escrow/internal/events"
	"github.com/ayo6706/trade-escrow/internal/fxcache"
)

// Options tunes the services built by New.
type Options struct {
	FXQuoteTTL           time.Duration
	FXQuoteRetention     time.Duration
	PaymentHoldTTL       time.Duration
	WebhookHMACKey       string
	WebhookSkipSignature bool
}

// Services is every escrow service wired against one store.
type Services struct {
	RFQs           *RFQService
	Offers         *OfferService
	Ledger         *LedgerService
	FX             *FXQuoteService
	Payments       *PaymentService
	Logistics      *LogisticsService
	Views          *DealViewService
	Webhook        *WebhookService
	Reconciliation *ReconciliationService
	Janitor        *JanitorService
}

// New wires the services. cache may be nil and publisher defaults to events.Noop.
func New(store QueryStore, oracle RateOracle, cache *fxcache.Cache, publisher events.Publisher, opts Options) *Services {
	if publisher == nil {
		publisher = events.Noop{}
	}
	s := &Services{
		RFQs:           NewRFQService(store),
		Ledger:         NewLedgerService(store),
		FX:             NewFXQuoteService(store, oracle, cache, opts.FXQuoteTTL),
		Views:          NewDealViewService(store),
		Reconciliation: NewReconciliationService(store),
	}
	s.Offers = NewOfferService(store, s.RFQs, NewDealFactory(), publisher)
	s.Payments = NewPaymentService(store, s.Ledger, s.FX, publisher)
	s.Logistics = NewLogisticsService(store, s.Payments, publisher)
	s.Webhook = NewWebhookService(store, s.Ledger, opts.WebhookHMACKey, opts.WebhookSkipSignature, publisher)
	s.Janitor = NewJanitorService(store, s.Payments, opts.FXQuoteRetention, opts.PaymentHoldTTL)
	return s
}
