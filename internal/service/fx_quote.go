package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/trade-escrow/internal/domain"
	"github.com/ayo6706/trade-escrow/internal/fxcache"
	"github.com/ayo6706/trade-escrow/internal/models"
	"github.com/ayo6706/trade-escrow/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultFXQuoteTTL = 5 * time.Minute

// FXQuoteService locks oracle rates into short-lived quotes.
type FXQuoteService struct {
	store  QueryStore
	oracle RateOracle
	cache  *fxcache.Cache
	ttl    time.Duration
	now    func() time.Time
}

func NewFXQuoteService(store QueryStore, oracle RateOracle, cache *fxcache.Cache, ttl time.Duration) *FXQuoteService {
	if ttl <= 0 {
		ttl = DefaultFXQuoteTTL
	}
	return &FXQuoteService{
		store:  store,
		oracle: oracle,
		cache:  cache,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source used for quote expiry.
func (s *FXQuoteService) SetClock(now func() time.Time) {
	s.now = now
}

// RatesSnapshot is the oracle's view for one base currency.
type RatesSnapshot struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
	AsOf  time.Time                  `json:"as_of"`
}

// Quote locks the current from->to rate for amountMicros of from.
func (s *FXQuoteService) Quote(ctx context.Context, from, to string, amountMicros int64) (*models.FXQuote, error) {
	from, to = domain.NormalizeCurrency(from), domain.NormalizeCurrency(to)
	if !domain.ValidCurrencyCode(from) || !domain.ValidCurrencyCode(to) {
		return nil, fmt.Errorf("%w: invalid currency pair %s/%s", domain.ErrValidation, from, to)
	}
	if from == to {
		return nil, fmt.Errorf("%w: from and to currency must differ", domain.ErrValidation)
	}
	if amountMicros <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	rate, err := s.oracle.GetExchangeRate(ctx, from, to)
	if err != nil {
		return nil, err
	}

	now := s.now()
	quote := &models.FXQuote{
		ID:              uuid.New(),
		FromCurrency:    from,
		ToCurrency:      to,
		Rate:            rate,
		AmountMicros:    amountMicros,
		ConvertedMicros: domain.RoundToMicros(domain.MicrosToDecimal(amountMicros).Mul(rate)),
		ExpiresAt:       now.Add(s.ttl),
	}
	if err := s.store.Queries().InsertFXQuote(ctx, quote); err != nil {
		return nil, fmt.Errorf("insert fx quote: %w", err)
	}
	if err := s.cache.Put(ctx, *quote); err != nil {
		zap.L().Warn("fx quote not cached", zap.String("quote_id", quote.ID.String()), zap.Error(err))
	}
	return quote, nil
}

// Resolve returns a live quote. A quote is expired from its expires_at instant onwards.
func (s *FXQuoteService) Resolve(ctx context.Context, id uuid.UUID) (*models.FXQuote, error) {
	return s.resolveWith(ctx, s.store.Queries(), id)
}

func (s *FXQuoteService) resolveWith(ctx context.Context, q repository.Querier, id uuid.UUID) (*models.FXQuote, error) {
	quote, err := s.cache.Get(ctx, id)
	if errors.Is(err, fxcache.ErrMiss) {
		quote, err = q.GetFXQuote(ctx, id)
		if err != nil {
			return nil, lookupErr(err, "fx quote")
		}
	} else if err != nil {
		return nil, err
	}
	if !s.now().Before(quote.ExpiresAt) {
		return nil, fmt.Errorf("%w: fx quote %s expired at %s", domain.ErrExpired, quote.ID, quote.ExpiresAt.Format(time.RFC3339))
	}
	return &quote, nil
}

// Rates reports the oracle's rates from base to each symbol. Empty symbols means every supported currency.
func (s *FXQuoteService) Rates(ctx context.Context, base string, symbols []string) (*RatesSnapshot, error) {
	base = domain.NormalizeCurrency(base)
	if base == "" {
		base = "USD"
	}
	if len(symbols) == 0 {
		symbols = s.oracle.Currencies()
	}
	snap := &RatesSnapshot{Base: base, Rates: make(map[string]decimal.Decimal, len(symbols)), AsOf: s.now()}
	for _, sym := range symbols {
		sym = domain.NormalizeCurrency(sym)
		if sym == base || sym == "" {
			continue
		}
		rate, err := s.oracle.GetExchangeRate(ctx, base, sym)
		if err != nil {
			return nil, err
		}
		snap.Rates[sym] = rate
	}
	return snap, nil
}
