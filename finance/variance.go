/*
variance.go - Baseline-vs-actual comparison and severity classification

PURPOSE:
  One algorithm shape serves both comparisons the engine needs:
    - actual vs budget      (statement lines)
    - actual vs theoretical (inventory usage from recipes x sales)

  Compare(baseline, actual) returns the signed variance, the nullable
  variance percentage, a direction tag, and a severity band.

CLASSIFICATION RULES:
  variance    = actual - baseline
  variancePct = nil when baseline == 0, else variance/baseline*100,
                rounded half-up to 2 decimal places

  Severity is classified on the ROUNDED percentage - the same value that is
  persisted and displayed - so storage and classification always agree.
  14.995% rounds to 15.00% and therefore classifies as high.

    |variancePct| < 5    low
    |variancePct| < 15   medium
    |variancePct| < 30   high
    otherwise            critical

  When the baseline is zero the percentage is undefined: severity is low for
  a zero variance and critical otherwise (consumption appeared against no
  baseline at all, the most anomalous case).

  Direction is overage/shortage by sign, but any |variancePct| under the
  tolerance threshold (default 5%) is forced to within_tolerance.

SEE ALSO:
  - builder.go: statement-level comparisons
  - counting: per-item theoretical-vs-actual comparisons
*/
package finance

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// TAGS - closed enums, validated on ingress
// =============================================================================

type Direction string

const (
	DirectionOverage         Direction = "overage"
	DirectionShortage        Direction = "shortage"
	DirectionWithinTolerance Direction = "within_tolerance"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseDirection validates direction text from the boundary.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionOverage, DirectionShortage, DirectionWithinTolerance:
		return Direction(s), nil
	}
	return "", &InvalidInputError{Field: "direction", Reason: "unknown value " + s}
}

// ParseSeverity validates severity text from the boundary.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(s), nil
	}
	return "", &InvalidInputError{Field: "severity", Reason: "unknown value " + s}
}

// rank orders severities for comparisons (tie-breaks go toward higher).
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool { return s.rank() >= other.rank() }

// =============================================================================
// COMPARISON - the result of one baseline-vs-actual evaluation
// =============================================================================

type Comparison struct {
	Variance decimal.Decimal

	// VariancePct is nil when the baseline is zero. Rounded to 2dp.
	VariancePct *decimal.Decimal

	Direction Direction
	Severity  Severity
}

// DefaultTolerancePct is the within-tolerance threshold applied when the
// caller does not configure one.
var DefaultTolerancePct = decimal.NewFromInt(5)

var (
	sevMedium   = decimal.NewFromInt(5)
	sevHigh     = decimal.NewFromInt(15)
	sevCritical = decimal.NewFromInt(30)
	hundred     = decimal.NewFromInt(100)
)

// Compare evaluates actual against a baseline. tolerancePct forces the
// direction to within_tolerance when |variancePct| falls under it; pass
// DefaultTolerancePct unless configured otherwise.
func Compare(baseline, actual, tolerancePct decimal.Decimal) Comparison {
	variance := actual.Sub(baseline)

	if baseline.IsZero() {
		c := Comparison{Variance: variance, VariancePct: nil}
		switch {
		case variance.IsZero():
			c.Direction = DirectionWithinTolerance
			c.Severity = SeverityLow
		case variance.IsPositive():
			c.Direction = DirectionOverage
			c.Severity = SeverityCritical
		default:
			c.Direction = DirectionShortage
			c.Severity = SeverityCritical
		}
		return c
	}

	pct := RoundHalfUp(variance.Div(baseline).Mul(hundred), 2)
	c := Comparison{Variance: variance, VariancePct: &pct}
	c.Severity = classifySeverity(pct.Abs())

	switch {
	case pct.Abs().LessThan(tolerancePct):
		c.Direction = DirectionWithinTolerance
	case variance.IsPositive():
		c.Direction = DirectionOverage
	case variance.IsNegative():
		c.Direction = DirectionShortage
	default:
		c.Direction = DirectionWithinTolerance
	}
	return c
}

// CompareMoney is Compare over Money values.
func CompareMoney(baseline, actual Money, tolerancePct decimal.Decimal) Comparison {
	return Compare(baseline.Value, actual.Value, tolerancePct)
}

func classifySeverity(absPct decimal.Decimal) Severity {
	switch {
	case absPct.LessThan(sevMedium):
		return SeverityLow
	case absPct.LessThan(sevHigh):
		return SeverityMedium
	case absPct.LessThan(sevCritical):
		return SeverityHigh
	default:
		return SeverityCritical
	}
}
