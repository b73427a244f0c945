/*
Package benchmark supplies industry target percentages by restaurant concept.

PURPOSE:
  When a period opens without explicit targets, the statement builder needs
  something to judge actuals against. These presets are conventional
  full-service / quick-service benchmarks; operators override them per
  period once they know their own numbers.
*/
package benchmark

import (
	"sort"

	"github.com/tably/margin-engine/finance"
)

// Concept names a restaurant operating model.
type Concept string

const (
	CasualDining Concept = "casual_dining"
	FineDining   Concept = "fine_dining"
	FastCasual   Concept = "fast_casual"
	QuickService Concept = "quick_service"
	BarFocused   Concept = "bar_focused"
)

func pct(v float64) finance.Percent {
	return finance.NewPercent(v)
}

var presets = map[Concept]finance.TargetConfig{
	CasualDining: {
		FoodCostPct:     pct(30),
		BeverageCostPct: pct(22),
		LaborCostPct:    pct(30),
		PrimeCostPct:    pct(60),
		NetProfitPct:    pct(10),
	},
	FineDining: {
		FoodCostPct:     pct(34),
		BeverageCostPct: pct(26),
		LaborCostPct:    pct(33),
		PrimeCostPct:    pct(65),
		NetProfitPct:    pct(8),
	},
	FastCasual: {
		FoodCostPct:     pct(29),
		BeverageCostPct: pct(20),
		LaborCostPct:    pct(26),
		PrimeCostPct:    pct(55),
		NetProfitPct:    pct(12),
	},
	QuickService: {
		FoodCostPct:     pct(28),
		BeverageCostPct: pct(18),
		LaborCostPct:    pct(25),
		PrimeCostPct:    pct(53),
		NetProfitPct:    pct(14),
	},
	BarFocused: {
		FoodCostPct:     pct(32),
		BeverageCostPct: pct(24),
		LaborCostPct:    pct(28),
		PrimeCostPct:    pct(58),
		NetProfitPct:    pct(12),
	},
}

// Targets returns the preset for a concept. Unknown concepts fall back to
// casual dining, the most common fit.
func Targets(c Concept) finance.TargetConfig {
	if t, ok := presets[c]; ok {
		return t
	}
	return presets[CasualDining]
}

// DefaultTargets is the casual-dining preset, used when no concept is given.
func DefaultTargets() finance.TargetConfig {
	return presets[CasualDining]
}

// Concepts lists the supported concept names, sorted.
func Concepts() []Concept {
	out := make([]Concept, 0, len(presets))
	for c := range presets {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
