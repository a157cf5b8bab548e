package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/ayo6706/trade-escrow/internal/domain"
	"github.com/shopspring/decimal"
)

// RateOracle is the source of FX rates.
type RateOracle interface {
	// GetExchangeRate returns how many units of target one unit of source buys.
	GetExchangeRate(ctx context.Context, source, target string) (decimal.Decimal, error)
	// Currencies lists the supported ISO codes.
	Currencies() []string
}

// StaticRateOracle derives cross rates from a fixed table of units per USD.
type StaticRateOracle struct {
	perUSD map[string]decimal.Decimal
}

// DefaultRates is used when no table is configured.
// USD -> EUR: 0.92
// USD -> GBP: 0.79
// USD -> CNY: 7.1
var DefaultRates = map[string]decimal.Decimal{
	"USD": decimal.NewFromInt(1),
	"EUR": decimal.RequireFromString("0.92"),
	"GBP": decimal.RequireFromString("0.79"),
	"CNY": decimal.RequireFromString("7.1"),
}

func NewStaticRateOracle(perUSD map[string]decimal.Decimal) *StaticRateOracle {
	if len(perUSD) == 0 {
		perUSD = DefaultRates
	}
	rates := make(map[string]decimal.Decimal, len(perUSD))
	for code, rate := range perUSD {
		rates[domain.NormalizeCurrency(code)] = rate
	}
	return &StaticRateOracle{perUSD: rates}
}

// GetExchangeRate returns target/source. e.g. EUR -> USD = 1.0 / 0.92 = 1.0869...
func (s *StaticRateOracle) GetExchangeRate(ctx context.Context, source, target string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	sourceRate, ok := s.perUSD[source]
	if !ok || !sourceRate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: unsupported currency %s", domain.ErrValidation, source)
	}
	targetRate, ok := s.perUSD[target]
	if !ok || !targetRate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: unsupported currency %s", domain.ErrValidation, target)
	}
	if source == target {
		return decimal.NewFromInt(1), nil
	}
	return targetRate.DivRound(sourceRate, 12), nil
}

func (s *StaticRateOracle) Currencies() []string {
	out := make([]string, 0, len(s.perUSD))
	for code := range s.perUSD {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
