/*
health.go - Dashboard health bands and alerts

PURPOSE:
  Classifies a derived statement into qualitative health bands for the
  dashboard: per-metric ratings, a list of alerts worth surfacing, and an
  overall 0-100 score. Everything here is a deterministic function of the
  derived statement and its targets.

BANDS:
  excellent / good / warning / critical

  Per-metric rating is driven by the delta between the actual percentage and
  its target (positive delta = favorable):
    delta >=  2   excellent
    delta >=  0   good
    delta >= -5   warning
    otherwise     critical

  Overall score starts at 100 and deducts per problem area, weighted the way
  operators read a P&L: cost control heaviest, then revenue and labor, then
  profitability.

  Metrics that are undefined (nil percentage, zero-revenue month) are rated
  warning and skipped by the score deductions.

SEE ALSO:
  - builder.go: calls AnalyzeHealth as the last derivation step
*/
package finance

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RATINGS
// =============================================================================

type Rating string

const (
	RatingExcellent Rating = "excellent"
	RatingGood      Rating = "good"
	RatingWarning   Rating = "warning"
	RatingCritical  Rating = "critical"
)

// Alert is a single dashboard callout.
type Alert struct {
	Category string
	Message  string
	Impact   string // "medium", "high", "critical"
}

// HealthAnalysis is the qualitative summary attached to every statement.
type HealthAnalysis struct {
	Revenue         Rating
	CostControl     Rating
	LaborEfficiency Rating
	Profitability   Rating

	Overall Rating
	Score   int

	Alerts []Alert
}

var (
	two  = decimal.NewFromInt(2)
	five = decimal.NewFromInt(5)
)

// rateDelta maps a favorable-positive delta onto a band.
func rateDelta(delta decimal.Decimal) Rating {
	switch {
	case delta.GreaterThanOrEqual(two):
		return RatingExcellent
	case delta.GreaterThanOrEqual(decimal.Zero):
		return RatingGood
	case delta.GreaterThanOrEqual(five.Neg()):
		return RatingWarning
	default:
		return RatingCritical
	}
}

// =============================================================================
// ANALYSIS
// =============================================================================

// AnalyzeHealth rates a derived statement against its targets.
func AnalyzeHealth(d DerivedStatement, targets TargetConfig) HealthAnalysis {
	h := HealthAnalysis{
		Revenue:         RatingWarning,
		CostControl:     RatingWarning,
		LaborEfficiency: RatingWarning,
		Profitability:   RatingWarning,
	}
	score := 100

	// Revenue vs budget.
	if d.Revenue.VariancePct != nil {
		pct := *d.Revenue.VariancePct
		h.Revenue = rateDelta(pct)
		if pct.LessThan(five.Neg()) {
			score -= 15
			h.Alerts = append(h.Alerts, Alert{
				Category: "Revenue",
				Message:  fmt.Sprintf("Revenue is %s%% below budget", pct.Abs().StringFixed(1)),
				Impact:   "high",
			})
		} else if pct.IsNegative() {
			score -= 5
		}
	}

	// Cost control: actual COGS pct vs food-cost target.
	if d.Actual.COGSPct != nil {
		delta := targets.FoodCostPct.Value.Sub(d.Actual.COGSPct.Value)
		h.CostControl = rateDelta(delta)
		over := d.Actual.COGSPct.Value.Sub(targets.FoodCostPct.Value)
		if over.GreaterThan(decimal.NewFromInt(3)) {
			score -= 20
		} else if over.IsPositive() {
			score -= 10
		}
		if over.GreaterThan(two) {
			h.Alerts = append(h.Alerts, Alert{
				Category: "Food Cost",
				Message:  fmt.Sprintf("Food cost is %s%% above target", over.StringFixed(1)),
				Impact:   "high",
			})
		}
	}

	// Labor efficiency.
	if d.Actual.LaborPct != nil {
		delta := targets.LaborCostPct.Value.Sub(d.Actual.LaborPct.Value)
		h.LaborEfficiency = rateDelta(delta)
		over := d.Actual.LaborPct.Value.Sub(targets.LaborCostPct.Value)
		if over.GreaterThan(decimal.NewFromInt(3)) {
			score -= 15
		} else if over.IsPositive() {
			score -= 8
		}
		if over.GreaterThan(two) {
			h.Alerts = append(h.Alerts, Alert{
				Category: "Labor",
				Message:  fmt.Sprintf("Labor cost is %s%% above target", over.StringFixed(1)),
				Impact:   "medium",
			})
		}
	}

	// Prime cost against its target.
	if d.Actual.PrimeCostPct != nil &&
		d.Actual.PrimeCostPct.Value.GreaterThan(targets.PrimeCostPct.Value) {
		h.Alerts = append(h.Alerts, Alert{
			Category: "Prime Cost",
			Message: fmt.Sprintf("Prime cost exceeds %s%% target at %s%%",
				targets.PrimeCostPct.Value.StringFixed(0), d.Actual.PrimeCostPct.Value.StringFixed(1)),
			Impact: "critical",
		})
	}

	// Profitability.
	if d.Actual.NetProfitPct != nil {
		delta := d.Actual.NetProfitPct.Value.Sub(targets.NetProfitPct.Value)
		h.Profitability = rateDelta(delta)
		if delta.LessThan(decimal.NewFromInt(-3)) {
			score -= 15
		} else if delta.IsNegative() {
			score -= 8
		}
		if delta.LessThan(two.Neg()) {
			h.Alerts = append(h.Alerts, Alert{
				Category: "Profitability",
				Message: fmt.Sprintf("Net profit margin below target: %s%% vs %s%%",
					d.Actual.NetProfitPct.Value.StringFixed(1), targets.NetProfitPct.Value.StringFixed(0)),
				Impact: "critical",
			})
		}
	}

	if score < 0 {
		score = 0
	}
	h.Score = score
	switch {
	case score >= 90:
		h.Overall = RatingExcellent
	case score >= 75:
		h.Overall = RatingGood
	case score >= 50:
		h.Overall = RatingWarning
	default:
		h.Overall = RatingCritical
	}
	return h
}
