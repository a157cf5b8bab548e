package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const microsPerUnit = 1_000_000

var microsFactor = decimal.NewFromInt(microsPerUnit)

// Money represents a monetary value in a specific currency.
// Amount is stored as BIGINT micros (10^-6) to avoid floating point errors.
type Money struct {
	Amount   int64  // micros
	Currency string // ISO 4217
}

// NewMoney creates a new Money instance from micros.
func NewMoney(amount int64, currency string) Money {
	return Money{
		Amount:   amount,
		Currency: currency,
	}
}

// ToDecimal converts the int64 micros to a shopspring/decimal.Decimal.
func (m Money) ToDecimal() decimal.Decimal {
	return MicrosToDecimal(m.Amount)
}

// MicrosToDecimal converts micros to a decimal amount in major units.
func MicrosToDecimal(micros int64) decimal.Decimal {
	return decimal.NewFromInt(micros).Div(microsFactor)
}

// FromDecimal converts a decimal.Decimal to int64 micros, truncating sub-micro precision.
func FromDecimal(d decimal.Decimal) int64 {
	return d.Mul(microsFactor).IntPart()
}

// RoundToMicros rounds a decimal half-up to micro precision and returns the micros.
func RoundToMicros(d decimal.Decimal) int64 {
	return d.Mul(microsFactor).Round(0).IntPart()
}

// Convert converts the money to a target currency using a given FX rate.
// The rate should be (Target / Source). The result is rounded down.
func (m Money) Convert(targetCurrency string, rate decimal.Decimal) Money {
	amountDec := m.ToDecimal().Mul(rate)
	return Money{
		Amount:   FromDecimal(amountDec),
		Currency: targetCurrency,
	}
}

// String returns the string representation of the money.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.ToDecimal().StringFixed(2), m.Currency)
}

// NormalizeCurrency upper-cases and trims an ISO 4217 code.
func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// ValidCurrencyCode reports whether code looks like an ISO 4217 alpha code.
func ValidCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
