/*
money.go - Exact monetary amounts

PURPOSE:
  Money is a decimal value plus a currency code. All arithmetic in the
  engine goes through decimal.Decimal - binary floats never touch a
  balance. This is a correctness requirement, not a style choice: the
  conservation property (netting neither creates nor destroys money)
  cannot be guaranteed with float64.

PRECISION:
  Amounts are quantized to the currency's minor unit on validation
  (cents for USD/EUR, whole units for JPY). Because every amount is a
  whole number of minor units, pairwise netting and the settlement plan
  terminate with residuals that are EXACTLY zero, not epsilon-close.

EPSILON:
  One minor unit. Used only to drop display-noise pairs in the
  aggregator and to partition debtors/creditors in the minimizer.

SEE ALSO:
  - aggregate.go: Folds Money amounts into net balances
  - minimize.go: Greedy matching over Money nets
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal amount with currency
// =============================================================================

type Money struct {
	Value    decimal.Decimal
	Currency string
}

func NewMoney(value decimal.Decimal, currency string) Money {
	return Money{Value: value, Currency: currency}
}

// ParseMoney parses a decimal string ("12.50") into Money.
// This is the only way amounts enter the engine from the wire.
func ParseMoney(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, &ValidationError{Field: "amount", Message: "not a decimal: " + s}
	}
	return Money{Value: d, Currency: currency}, nil
}

// MustMoney is a test/scenario helper. Panics on a bad literal.
func MustMoney(s, currency string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic("bad money literal: " + s)
	}
	return Money{Value: d, Currency: currency}
}

func Zero(currency string) Money {
	return Money{Value: decimal.Zero, Currency: currency}
}

func (m Money) Add(o Money) Money      { return Money{Value: m.Value.Add(o.Value), Currency: m.Currency} }
func (m Money) Sub(o Money) Money      { return Money{Value: m.Value.Sub(o.Value), Currency: m.Currency} }
func (m Money) Neg() Money             { return Money{Value: m.Value.Neg(), Currency: m.Currency} }
func (m Money) Abs() Money             { return Money{Value: m.Value.Abs(), Currency: m.Currency} }
func (m Money) IsZero() bool           { return m.Value.IsZero() }
func (m Money) IsPositive() bool       { return m.Value.IsPositive() }
func (m Money) IsNegative() bool       { return m.Value.IsNegative() }
func (m Money) GreaterThan(o Money) bool { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool  { return m.Value.LessThan(o.Value) }
func (m Money) Equal(o Money) bool     { return m.Currency == o.Currency && m.Value.Equal(o.Value) }

func (m Money) Min(o Money) Money {
	if m.LessThan(o) {
		return m
	}
	return o
}

// String renders the amount as a plain decimal string. Used for wire
// serialization and storage - never a float.
func (m Money) String() string { return m.Value.String() }

// =============================================================================
// MINOR UNITS
// =============================================================================

// zeroDecimalCurrencies have no minor unit (ISO 4217 exponent 0).
var zeroDecimalCurrencies = map[string]bool{
	"JPY": true,
	"KRW": true,
	"VND": true,
	"CLP": true,
	"ISK": true,
}

// CurrencyDecimals returns the number of decimal places for a currency.
func CurrencyDecimals(currency string) int32 {
	if zeroDecimalCurrencies[currency] {
		return 0
	}
	return 2
}

// MinorUnit returns the smallest representable amount in the currency
// (0.01 for USD, 1 for JPY). This is the engine's epsilon.
func MinorUnit(currency string) decimal.Decimal {
	return decimal.New(1, -CurrencyDecimals(currency))
}

// WithinEpsilon reports whether the amount is smaller than one minor
// unit in magnitude. For quantized amounts this means exactly zero.
func (m Money) WithinEpsilon() bool {
	return m.Value.Abs().LessThan(MinorUnit(m.Currency))
}

// validate checks the structural invariants shared by entries and
// settlements: positive amount, known currency, minor-unit precision.
func (m Money) validate() error {
	if m.Currency == "" {
		return &ValidationError{Field: "currency", Message: "currency is required"}
	}
	if !m.Value.IsPositive() {
		return &ValidationError{Field: "amount", Message: "amount must be positive"}
	}
	if !m.Value.Equal(m.Value.Round(CurrencyDecimals(m.Currency))) {
		return &ValidationError{
			Field:   "amount",
			Message: "amount has sub-minor-unit precision for " + m.Currency,
		}
	}
	return nil
}
