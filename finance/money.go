/*
Package finance provides the core P&L reconciliation engine.

PURPOSE:
  This package contains the domain-agnostic building blocks for restaurant
  financial reconciliation: exact-precision money and percentage values,
  monthly statement assembly with derived subtotals, variance comparison
  against budget or theoretical baselines, and health classification.

KEY CONCEPTS IN THIS FILE (money.go):
  - Money:   A currency amount carried at exact decimal precision
  - Percent: A percentage value (15.00 means 15.00%)
  - RoundHalfUp: The single rounding rule used everywhere (ties go up)
  - PercentOf: Null-safe percentage-of-revenue (nil when the base is zero)

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, never float64 for money
  2. One rounding rule: round-half-up at 2 decimal places, applied at the
     edges (formatting, persistence, classification), not mid-computation
  3. Null over NaN: a ratio with a zero denominator is nil, never NaN/Inf

USAGE:
  revenue := finance.NewMoney(12500.50)
  cogs := finance.NewMoney(4100.00)
  pct := finance.PercentOf(cogs, revenue) // *Percent, nil if revenue is zero

SEE ALSO:
  - builder.go: Statement assembly using these primitives
  - variance.go: Comparison and severity classification
*/
package finance

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// ROUNDING - one rule for the whole engine
// =============================================================================

var half = decimal.New(5, -1) // 0.5

// RoundHalfUp rounds to the given number of decimal places with ties always
// going toward positive infinity: 33.335 -> 33.34, -14.995 -> -14.99.
func RoundHalfUp(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Shift(places).Add(half).Floor().Shift(-places)
}

// =============================================================================
// MONEY - currency amount, 2 decimal places
// =============================================================================

type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money {
	return Money{Value: decimal.NewFromFloat(value)}
}

func NewMoneyFromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Value: d}, nil
}

// MustMoney parses a decimal string, returning zero on failure.
// For test fixtures and constants only.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}
	}
	return Money{Value: d}
}

func ZeroMoney() Money { return Money{Value: decimal.Zero} }

func (m Money) Add(o Money) Money        { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money        { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Neg() Money               { return Money{Value: m.Value.Neg()} }
func (m Money) IsNegative() bool         { return m.Value.IsNegative() }
func (m Money) IsZero() bool             { return m.Value.IsZero() }
func (m Money) Equal(o Money) bool       { return m.Value.Equal(o.Value) }
func (m Money) GreaterThan(o Money) bool { return m.Value.GreaterThan(o.Value) }

// MulPercent returns m scaled by a percentage: $1000 * 30% = $300.
func (m Money) MulPercent(p Percent) Money {
	return Money{Value: m.Value.Mul(p.Value).Div(decimal.NewFromInt(100))}
}

// Rounded returns the amount at 2 decimal places, round-half-up.
func (m Money) Rounded() Money {
	return Money{Value: RoundHalfUp(m.Value, 2)}
}

// String formats as currency: $33.34, -$120.00.
func (m Money) String() string {
	r := RoundHalfUp(m.Value, 2)
	if r.IsNegative() {
		return "-$" + r.Neg().StringFixed(2)
	}
	return "$" + r.StringFixed(2)
}

// =============================================================================
// PERCENT - 15.00 means 15.00%
// =============================================================================

type Percent struct {
	Value decimal.Decimal
}

func NewPercent(value float64) Percent {
	return Percent{Value: decimal.NewFromFloat(value)}
}

func (p Percent) Rounded() Percent   { return Percent{Value: RoundHalfUp(p.Value, 2)} }
func (p Percent) Abs() Percent       { return Percent{Value: p.Value.Abs()} }
func (p Percent) IsZero() bool       { return p.Value.IsZero() }
func (p Percent) IsNegative() bool   { return p.Value.IsNegative() }
func (p Percent) Sub(o Percent) Percent { return Percent{Value: p.Value.Sub(o.Value)} }
func (p Percent) String() string     { return RoundHalfUp(p.Value, 2).StringFixed(2) + "%" }

// PercentOf returns part as a percentage of whole, rounded to 2 decimal
// places. Returns nil when whole is zero: the metric is undefined, not an
// error, and the statement still gets produced.
func PercentOf(part, whole Money) *Percent {
	if whole.Value.IsZero() {
		return nil
	}
	pct := part.Value.Div(whole.Value).Mul(decimal.NewFromInt(100))
	return &Percent{Value: RoundHalfUp(pct, 2)}
}
