package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tably/margin-engine/counting"
	"github.com/tably/margin-engine/finance"
	"github.com/tably/margin-engine/store/memory"
)

// statement builds a minimal statement whose derived side carries every
// aliasable shape: percentage pointers, a comparison percentage, an alert.
func statement() *finance.Statement {
	cogsPct := finance.NewPercent(28)
	revPct := decimal.NewFromInt(-8)
	return &finance.Statement{
		ID: "st-1",
		Input: finance.StatementInput{
			Period: finance.PeriodKey{Restaurant: "r-1", Year: 2026, Month: time.March},
		},
		Derived: finance.DerivedStatement{
			Actual: finance.SideTotals{COGSPct: &cogsPct},
			Revenue: finance.Comparison{
				Variance:    decimal.NewFromInt(-8000),
				VariancePct: &revPct,
				Direction:   finance.DirectionShortage,
				Severity:    finance.SeverityMedium,
			},
			Health: finance.HealthAnalysis{
				Overall: finance.RatingWarning,
				Score:   70,
				Alerts:  []finance.Alert{{Category: "Revenue", Message: "Revenue is 8.0% below budget", Impact: "high"}},
			},
		},
	}
}

func TestGetStatement_ReturnsDeepCopy(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.SaveStatement(ctx, statement()))
	key := finance.PeriodKey{Restaurant: "r-1", Year: 2026, Month: time.March}

	// WHEN: a caller scribbles over everything reachable from its copy
	got, err := s.GetStatement(ctx, key)
	require.NoError(t, err)
	got.Derived.Actual.COGSPct.Value = decimal.NewFromInt(99)
	*got.Derived.Revenue.VariancePct = decimal.NewFromInt(99)
	got.Derived.Health.Alerts[0].Message = "tampered"

	// THEN: the stored row is untouched
	fresh, err := s.GetStatement(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "28", fresh.Derived.Actual.COGSPct.Value.String())
	assert.Equal(t, "-8", fresh.Derived.Revenue.VariancePct.String())
	assert.Equal(t, "Revenue is 8.0% below budget", fresh.Derived.Health.Alerts[0].Message)
}

func TestSaveStatement_DetachesFromCallerValue(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	// GIVEN: the caller keeps mutating its statement after saving it
	st := statement()
	require.NoError(t, s.SaveStatement(ctx, st))
	st.Derived.Actual.COGSPct.Value = decimal.NewFromInt(99)
	st.Derived.Health.Alerts[0].Impact = "tampered"

	fresh, err := s.GetStatement(ctx,
		finance.PeriodKey{Restaurant: "r-1", Year: 2026, Month: time.March})
	require.NoError(t, err)
	assert.Equal(t, "28", fresh.Derived.Actual.COGSPct.Value.String())
	assert.Equal(t, "high", fresh.Derived.Health.Alerts[0].Impact)
}

func TestGetReport_ReturnsDeepCopy(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	report := &counting.VarianceReport{ID: "vr-1", SessionID: "cs-1", TotalItems: 1}
	analysis := counting.VarianceAnalysis{
		ReportID:            "vr-1",
		ItemID:              "itm-beef",
		TheoreticalQuantity: decimal.NewFromInt(100),
		ActualQuantity:      decimal.NewFromInt(80),
		Quantity:            finance.Compare(decimal.NewFromInt(100), decimal.NewFromInt(80), finance.DefaultTolerancePct),
		PossibleCauses:      []string{"unrecorded usage or theft"},
	}
	require.NoError(t, s.SaveReport(ctx, report, []counting.VarianceAnalysis{analysis}))

	got, analyses, err := s.GetReport(ctx, "vr-1")
	require.NoError(t, err)
	require.Len(t, analyses, 1)
	*analyses[0].Quantity.VariancePct = decimal.NewFromInt(99)
	analyses[0].PossibleCauses[0] = "tampered"
	got.TotalItems = 99

	fresh, freshAnalyses, err := s.GetReport(ctx, "vr-1")
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.TotalItems)
	require.Len(t, freshAnalyses, 1)
	assert.Equal(t, "-20", freshAnalyses[0].Quantity.VariancePct.String())
	assert.Equal(t, []string{"unrecorded usage or theft"}, freshAnalyses[0].PossibleCauses)
}

func TestSaveReport_DetachesFromCallerAnalyses(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	analysis := counting.VarianceAnalysis{
		ReportID:       "vr-1",
		ItemID:         "itm-beef",
		Quantity:       finance.Compare(decimal.NewFromInt(100), decimal.NewFromInt(80), finance.DefaultTolerancePct),
		PossibleCauses: []string{"unrecorded usage or theft"},
	}
	in := []counting.VarianceAnalysis{analysis}
	require.NoError(t, s.SaveReport(ctx, &counting.VarianceReport{ID: "vr-1"}, in))

	*in[0].Quantity.VariancePct = decimal.NewFromInt(99)
	in[0].PossibleCauses[0] = "tampered"

	_, freshAnalyses, err := s.GetReport(ctx, "vr-1")
	require.NoError(t, err)
	require.Len(t, freshAnalyses, 1)
	assert.Equal(t, "-20", freshAnalyses[0].Quantity.VariancePct.String())
	assert.Equal(t, "unrecorded usage or theft", freshAnalyses[0].PossibleCauses[0])
}
