package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tably/margin-engine/counting"
	"github.com/tably/margin-engine/finance"
	"github.com/tably/margin-engine/parlevel"
	"github.com/tably/margin-engine/store/sqlite"
	"github.com/tably/margin-engine/waste"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func statement(t *testing.T, restaurant string, year int, month time.Month) *finance.Statement {
	t.Helper()
	in := finance.StatementInput{
		Period:    finance.PeriodKey{Restaurant: finance.RestaurantID(restaurant), Year: year, Month: month},
		FoodSales: finance.LineItem{Actual: finance.NewMoney(80000), Budget: finance.NewMoney(80000)},
		Targets: finance.TargetConfig{
			FoodCostPct:  finance.NewPercent(30),
			LaborCostPct: finance.NewPercent(30),
			PrimeCostPct: finance.NewPercent(60),
			NetProfitPct: finance.NewPercent(10),
		},
	}
	derived, err := finance.NewStatementBuilder().Build(in)
	require.NoError(t, err)
	return &finance.Statement{
		ID:      finance.StatementID("st-" + restaurant),
		Input:   in,
		Derived: derived,
	}
}

// =============================================================================
// STATEMENT STORE
// =============================================================================

func TestSaveStatement_InsertAndGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	st := statement(t, "r-1", 2026, time.March)

	require.NoError(t, s.SaveStatement(ctx, st))
	assert.Equal(t, int64(1), st.Version)

	got, err := s.GetStatement(ctx, st.Input.Period)
	require.NoError(t, err)
	assert.Equal(t, st.ID, got.ID)
	assert.Equal(t, int64(1), got.Version)
	assert.False(t, got.Locked)
	assert.True(t, got.Input.FoodSales.Actual.Equal(finance.NewMoney(80000)))
	assert.True(t, got.Derived.Actual.GrossRevenue.Equal(finance.NewMoney(80000)))
}

func TestGetStatement_NotFound(t *testing.T) {
	s := newStore(t)

	_, err := s.GetStatement(context.Background(),
		finance.PeriodKey{Restaurant: "r-none", Year: 2026, Month: time.March})

	assert.ErrorIs(t, err, finance.ErrNotFound)
}

func TestSaveStatement_UpdateAdvancesVersion(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	st := statement(t, "r-1", 2026, time.March)
	require.NoError(t, s.SaveStatement(ctx, st))

	// Carry the version we read; the save advances it.
	st.Input.FoodSales.Actual = finance.NewMoney(85000)
	require.NoError(t, s.SaveStatement(ctx, st))
	assert.Equal(t, int64(2), st.Version)

	got, err := s.GetStatement(ctx, st.Input.Period)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.True(t, got.Input.FoodSales.Actual.Equal(finance.NewMoney(85000)))
}

func TestSaveStatement_StaleVersionConflicts(t *testing.T) {
	// GIVEN: two readers of version 1
	s := newStore(t)
	ctx := context.Background()
	st := statement(t, "r-1", 2026, time.March)
	require.NoError(t, s.SaveStatement(ctx, st))

	first, err := s.GetStatement(ctx, st.Input.Period)
	require.NoError(t, err)
	second, err := s.GetStatement(ctx, st.Input.Period)
	require.NoError(t, err)

	// WHEN: the first writer lands, then the second tries with its stale read
	require.NoError(t, s.SaveStatement(ctx, first))
	err = s.SaveStatement(ctx, second)

	// THEN: the stale write fails loudly with both versions named
	require.Error(t, err)
	assert.ErrorIs(t, err, finance.ErrConcurrencyConflict)
	var cc *finance.ConcurrencyConflictError
	require.True(t, errors.As(err, &cc))
	assert.Equal(t, int64(1), cc.ExpectedVersion)
	assert.Equal(t, int64(2), cc.ActualVersion)
	// The stale statement's version is untouched; the caller re-reads.
	assert.Equal(t, int64(1), second.Version)
}

func TestSaveStatement_DuplicateInsertConflicts(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveStatement(ctx, statement(t, "r-1", 2026, time.March)))

	// A second Version-0 insert for the same period is a conflict, not an
	// overwrite.
	dup := statement(t, "r-1", 2026, time.March)
	err := s.SaveStatement(ctx, dup)

	assert.ErrorIs(t, err, finance.ErrConcurrencyConflict)
}

func TestSaveStatement_LockedPeriodRejectsWrites(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	st := statement(t, "r-1", 2026, time.March)
	require.NoError(t, s.SaveStatement(ctx, st))
	require.NoError(t, s.LockStatement(ctx, st.Input.Period))

	// Update with the correct version still fails once the period is closed.
	err := s.SaveStatement(ctx, st)
	assert.ErrorIs(t, err, finance.ErrPeriodLocked)

	// So does a fresh insert aimed at the locked period.
	err = s.SaveStatement(ctx, statement(t, "r-1", 2026, time.March))
	assert.ErrorIs(t, err, finance.ErrPeriodLocked)

	got, err := s.GetStatement(ctx, st.Input.Period)
	require.NoError(t, err)
	assert.True(t, got.Locked)
}

func TestLockStatement_Idempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	st := statement(t, "r-1", 2026, time.March)
	require.NoError(t, s.SaveStatement(ctx, st))

	require.NoError(t, s.LockStatement(ctx, st.Input.Period))
	require.NoError(t, s.LockStatement(ctx, st.Input.Period))
}

func TestLockStatement_NotFound(t *testing.T) {
	s := newStore(t)

	err := s.LockStatement(context.Background(),
		finance.PeriodKey{Restaurant: "r-none", Year: 2026, Month: time.March})

	assert.ErrorIs(t, err, finance.ErrNotFound)
}

func TestListStatements_NewestFirst(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, month := range []time.Month{time.January, time.March, time.February} {
		st := statement(t, "r-1", 2026, month)
		st.ID = finance.StatementID("st-" + month.String())
		require.NoError(t, s.SaveStatement(ctx, st))
	}
	// Another restaurant's statements stay out of the listing.
	require.NoError(t, s.SaveStatement(ctx, statement(t, "r-2", 2026, time.April)))

	out, err := s.ListStatements(ctx, "r-1")
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, time.March, out[0].Input.Period.Month)
	assert.Equal(t, time.February, out[1].Input.Period.Month)
	assert.Equal(t, time.January, out[2].Input.Period.Month)
}

// =============================================================================
// ITEM AND RECIPE CATALOG
// =============================================================================

func TestItems_UpsertAndList(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	beef := &counting.InventoryItem{
		ID: "itm-beef", Name: "Ground Beef", Category: "meat",
		Unit: "lbs", CostPerUnit: decimal.NewFromInt(10),
	}
	require.NoError(t, s.SaveItem(ctx, beef))

	// Upsert: a price change replaces the row.
	beef.CostPerUnit = decimal.NewFromFloat(11.25)
	require.NoError(t, s.SaveItem(ctx, beef))

	got, err := s.GetItem(ctx, "itm-beef")
	require.NoError(t, err)
	assert.Equal(t, "11.25", got.CostPerUnit.String())
	assert.True(t, got.Perishable())

	_, err = s.GetItem(ctx, "itm-none")
	assert.ErrorIs(t, err, finance.ErrNotFound)

	require.NoError(t, s.SaveItem(ctx, &counting.InventoryItem{
		ID: "itm-cheese", Name: "Cheddar", Category: "dairy", Unit: "lbs",
		CostPerUnit: decimal.NewFromInt(4),
	}))
	all, err := s.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, counting.ItemID("itm-beef"), all[0].ID)
}

func TestRecipes_Roundtrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	r := &counting.Recipe{
		ID: "rcp-burger", Name: "Burger",
		Ingredients: []counting.Ingredient{
			{ItemID: "itm-beef", QuantityPerServing: decimal.NewFromFloat(0.5), Unit: "lbs"},
			{ItemID: "itm-cheese", QuantityPerServing: decimal.NewFromFloat(0.25), Unit: "lbs"},
		},
	}
	require.NoError(t, s.SaveRecipe(ctx, r))

	all, err := s.ListRecipes(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Len(t, all[0].Ingredients, 2)
	assert.Equal(t, counting.ItemID("itm-beef"), all[0].Ingredients[0].ItemID)
	assert.True(t, all[0].Ingredients[0].QuantityPerServing.Equal(decimal.NewFromFloat(0.5)))
}

// =============================================================================
// COUNT SESSIONS
// =============================================================================

func countLine(item counting.ItemID, qty float64, at time.Time) counting.CountLine {
	return counting.CountLine{
		ItemID:          item,
		CountedQuantity: decimal.NewFromFloat(qty),
		Unit:            "lbs",
		CountedBy:       "sam",
		Method:          "physical",
		CountedAt:       at,
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	started := time.Date(2026, time.March, 2, 21, 0, 0, 0, time.UTC)

	session := counting.NewSession("cs-1", "kitchen", started)
	require.NoError(t, s.CreateSession(ctx, session))

	require.NoError(t, s.AppendLine(ctx, "cs-1", countLine("itm-beef", 80, started.Add(time.Minute))))
	require.NoError(t, s.AppendLine(ctx, "cs-1", countLine("itm-cheese", 49.5, started.Add(2*time.Minute))))

	got, err := s.GetSession(ctx, "cs-1")
	require.NoError(t, err)
	assert.Equal(t, counting.SessionActive, got.Status)
	assert.Equal(t, started, got.StartedAt)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, counting.ItemID("itm-beef"), got.Lines[0].ItemID)
	assert.Equal(t, "80", got.Lines[0].CountedQuantity.String())
	assert.Equal(t, "sam", got.Lines[0].CountedBy)

	closedAt := started.Add(2 * time.Hour)
	require.NoError(t, s.CloseSession(ctx, "cs-1", closedAt))
	// Closing again is a no-op.
	require.NoError(t, s.CloseSession(ctx, "cs-1", closedAt.Add(time.Hour)))

	got, err = s.GetSession(ctx, "cs-1")
	require.NoError(t, err)
	assert.Equal(t, counting.SessionCompleted, got.Status)
	require.NotNil(t, got.ClosedAt)
	assert.Equal(t, closedAt, *got.ClosedAt)

	// A completed session takes no more lines and cannot cancel.
	err = s.AppendLine(ctx, "cs-1", countLine("itm-napkins", 5, closedAt))
	assert.ErrorIs(t, err, finance.ErrSessionClosed)
	assert.ErrorIs(t, s.CancelSession(ctx, "cs-1", closedAt), finance.ErrSessionClosed)
}

func TestAppendLine_DuplicateItemRejected(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.March, 2, 21, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateSession(ctx, counting.NewSession("cs-1", "bar", now)))
	require.NoError(t, s.AppendLine(ctx, "cs-1", countLine("itm-vodka", 12, now)))

	err := s.AppendLine(ctx, "cs-1", countLine("itm-vodka", 11, now.Add(time.Minute)))

	assert.ErrorIs(t, err, finance.ErrInvalidInput)
}

func TestAppendLine_UnknownSession(t *testing.T) {
	s := newStore(t)

	err := s.AppendLine(context.Background(), "cs-none",
		countLine("itm-beef", 1, time.Now().UTC()))

	assert.ErrorIs(t, err, finance.ErrNotFound)
}

func TestCancelSession_Terminal(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.March, 2, 21, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateSession(ctx, counting.NewSession("cs-1", "kitchen", now)))

	require.NoError(t, s.CancelSession(ctx, "cs-1", now.Add(time.Hour)))

	// A cancelled session never completes.
	assert.ErrorIs(t, s.CloseSession(ctx, "cs-1", now.Add(2*time.Hour)), finance.ErrSessionClosed)
}

func TestListSessions_FilterByStatus(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, time.March, 2, 21, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateSession(ctx, counting.NewSession("cs-1", "kitchen", base)))
	require.NoError(t, s.CreateSession(ctx, counting.NewSession("cs-2", "bar", base.Add(time.Hour))))
	require.NoError(t, s.CloseSession(ctx, "cs-2", base.Add(2*time.Hour)))

	active, err := s.ListSessions(ctx, counting.SessionActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, counting.SessionID("cs-1"), active[0].ID)

	all, err := s.ListSessions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	// Newest first.
	assert.Equal(t, counting.SessionID("cs-2"), all[0].ID)
}

// =============================================================================
// VARIANCE REPORTS AND HISTORY
// =============================================================================

func analysisFixture(report counting.ReportID, item counting.ItemID,
	theoretical, actual float64, createdAt time.Time) counting.VarianceAnalysis {

	theo := decimal.NewFromFloat(theoretical)
	act := decimal.NewFromFloat(actual)
	return counting.VarianceAnalysis{
		ReportID:            report,
		ItemID:              item,
		TheoreticalQuantity: theo,
		ActualQuantity:      act,
		Quantity:            finance.Compare(theo, act, finance.DefaultTolerancePct),
		Value:               finance.Compare(theo, act, finance.DefaultTolerancePct),
		Trend:               counting.TrendStable,
		PossibleCauses:      []string{"count or receiving error"},
		Recommendations:     []string{"recount the item and verify recent deliveries"},
		CreatedAt:           createdAt,
	}
}

func TestSaveReport_Roundtrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	created := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)

	report := &counting.VarianceReport{
		ID:                  "vr-1",
		SessionID:           "cs-1",
		PeriodStart:         created.Add(-12 * time.Hour),
		PeriodEnd:           created,
		TotalItems:          2,
		ItemsWithVariance:   1,
		TotalValueVariance:  decimal.NewFromFloat(-150),
		AverageVariancePct:  decimal.NewFromFloat(10.5),
		SuspectedTheftCount: 1,
		CreatedAt:           created,
	}
	analyses := []counting.VarianceAnalysis{
		analysisFixture("vr-1", "itm-beef", 100, 80, created),
		analysisFixture("vr-1", "itm-cheese", 50, 49.5, created),
	}
	require.NoError(t, s.SaveReport(ctx, report, analyses))

	gotReport, gotAnalyses, err := s.GetReport(ctx, "vr-1")
	require.NoError(t, err)
	assert.Equal(t, counting.SessionID("cs-1"), gotReport.SessionID)
	assert.Equal(t, 2, gotReport.TotalItems)
	assert.Equal(t, "-150", gotReport.TotalValueVariance.String())
	assert.Equal(t, "10.5", gotReport.AverageVariancePct.String())
	assert.Equal(t, 1, gotReport.SuspectedTheftCount)

	require.Len(t, gotAnalyses, 2)
	beef := gotAnalyses[0]
	assert.Equal(t, counting.ItemID("itm-beef"), beef.ItemID)
	assert.Equal(t, finance.DirectionShortage, beef.Quantity.Direction)
	assert.Equal(t, finance.SeverityHigh, beef.Quantity.Severity)
	require.NotNil(t, beef.Quantity.VariancePct)
	assert.Equal(t, "-20", beef.Quantity.VariancePct.String())
	assert.Equal(t, []string{"count or receiving error"}, beef.PossibleCauses)
}

func TestGetReport_NotFound(t *testing.T) {
	s := newStore(t)

	_, _, err := s.GetReport(context.Background(), "vr-none")

	assert.ErrorIs(t, err, finance.ErrNotFound)
}

func TestHistoricalVariancePcts(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)

	// Three months of beef analyses plus one with an undefined pct.
	for i, actual := range []float64{92, 88, 80} {
		created := base.AddDate(0, i, 0)
		report := &counting.VarianceReport{
			ID: counting.ReportID("vr-" + created.Month().String()), SessionID: "cs-1",
			PeriodStart: created.Add(-12 * time.Hour), PeriodEnd: created, CreatedAt: created,
		}
		require.NoError(t, s.SaveReport(ctx, report, []counting.VarianceAnalysis{
			analysisFixture(report.ID, "itm-beef", 100, actual, created),
		}))
	}
	zeroBase := &counting.VarianceReport{
		ID: "vr-zero", SessionID: "cs-2",
		PeriodStart: base, PeriodEnd: base.AddDate(0, 3, 0), CreatedAt: base.AddDate(0, 3, 0),
	}
	require.NoError(t, s.SaveReport(ctx, zeroBase, []counting.VarianceAnalysis{
		analysisFixture("vr-zero", "itm-beef", 0, 5, base.AddDate(0, 3, 0)),
	}))

	// Full history, most-recent-last; the zero-baseline analysis is skipped.
	pcts, err := s.HistoricalVariancePcts(ctx, "itm-beef", 12)
	require.NoError(t, err)
	require.Len(t, pcts, 3)
	assert.Equal(t, "-8", pcts[0].String())
	assert.Equal(t, "-12", pcts[1].String())
	assert.Equal(t, "-20", pcts[2].String())

	// Limit trims the oldest entries first.
	pcts, err = s.HistoricalVariancePcts(ctx, "itm-beef", 2)
	require.NoError(t, err)
	require.Len(t, pcts, 2)
	assert.Equal(t, "-12", pcts[0].String())
	assert.Equal(t, "-20", pcts[1].String())

	// Unknown items have empty history, not an error.
	pcts, err = s.HistoricalVariancePcts(ctx, "itm-none", 12)
	require.NoError(t, err)
	assert.Empty(t, pcts)
}

// =============================================================================
// WASTE DETECTIONS
// =============================================================================

func detection(id waste.DetectionID) *waste.Detection {
	d := waste.NewDetection(id, "itm-beef", waste.WasteTheft,
		decimal.NewFromInt(100), decimal.NewFromInt(80),
		decimal.NewFromInt(10), decimal.NewFromInt(80),
		time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC))
	d.Metadata = map[string]any{"report_id": "vr-1"}
	return d
}

func TestDetection_SaveAndGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveDetection(ctx, detection("det-1")))

	got, err := s.GetDetection(ctx, "det-1")
	require.NoError(t, err)
	assert.Equal(t, waste.WasteTheft, got.WasteType)
	assert.Equal(t, waste.StatusDetected, got.Status)
	assert.Equal(t, "80", got.Confidence.String())
	assert.Equal(t, "vr-1", got.Metadata["report_id"])
	assert.Nil(t, got.ResolvedAt)

	_, err = s.GetDetection(ctx, "det-none")
	assert.ErrorIs(t, err, finance.ErrNotFound)
}

func TestUpdateDetectionStatus_GuardedTransitions(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveDetection(ctx, detection("det-1")))
	at := time.Date(2026, time.March, 5, 10, 0, 0, 0, time.UTC)

	// Skipping investigation is a disallowed edge.
	err := s.UpdateDetectionStatus(ctx, "det-1", waste.StatusDetected, waste.StatusResolved, at)
	assert.ErrorIs(t, err, finance.ErrInvalidTransition)

	require.NoError(t, s.UpdateDetectionStatus(ctx, "det-1", waste.StatusDetected, waste.StatusInvestigating, at))

	// A stale writer still holding "detected" loses the compare-and-set.
	err = s.UpdateDetectionStatus(ctx, "det-1", waste.StatusDetected, waste.StatusInvestigating, at)
	assert.ErrorIs(t, err, finance.ErrInvalidTransition)

	require.NoError(t, s.UpdateDetectionStatus(ctx, "det-1", waste.StatusInvestigating, waste.StatusConfirmed, at))
	require.NoError(t, s.UpdateDetectionStatus(ctx, "det-1", waste.StatusConfirmed, waste.StatusResolved, at))

	got, err := s.GetDetection(ctx, "det-1")
	require.NoError(t, err)
	assert.Equal(t, waste.StatusResolved, got.Status)
	require.NotNil(t, got.ResolvedAt)
	assert.Equal(t, at, *got.ResolvedAt)
}

func TestUpdateDetectionStatus_NotFound(t *testing.T) {
	s := newStore(t)

	err := s.UpdateDetectionStatus(context.Background(), "det-none",
		waste.StatusDetected, waste.StatusInvestigating, time.Now().UTC())

	assert.ErrorIs(t, err, finance.ErrNotFound)
}

func TestListDetections_Filters(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	d1 := detection("det-1")
	d2 := detection("det-2")
	d2.ItemID = "itm-vodka"
	require.NoError(t, s.SaveDetection(ctx, d1))
	require.NoError(t, s.SaveDetection(ctx, d2))
	require.NoError(t, s.UpdateDetectionStatus(ctx, "det-2",
		waste.StatusDetected, waste.StatusInvestigating, time.Now().UTC()))

	byItem, err := s.ListDetections(ctx, waste.DetectionFilter{ItemID: "itm-beef"})
	require.NoError(t, err)
	require.Len(t, byItem, 1)
	assert.Equal(t, waste.DetectionID("det-1"), byItem[0].ID)

	byStatus, err := s.ListDetections(ctx, waste.DetectionFilter{Status: waste.StatusInvestigating})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, waste.DetectionID("det-2"), byStatus[0].ID)

	all, err := s.ListDetections(ctx, waste.DetectionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// =============================================================================
// PAR RECOMMENDATIONS
// =============================================================================

func recommendation(id parlevel.RecommendationID, validFrom time.Time) *parlevel.Recommendation {
	return &parlevel.Recommendation{
		ID:             id,
		ItemID:         "itm-beef",
		RecommendedPar: decimal.NewFromFloat(45.37),
		SafetyStock:    decimal.NewFromFloat(5.37),
		Confidence:     decimal.NewFromFloat(0.3684),
		Rationale:      map[string]any{"service_level": "0.95"},
		ValidFrom:      validFrom,
		IsActive:       true,
		CreatedAt:      validFrom,
	}
}

func TestSupersedeRecommendation_SingleActive(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	first := time.Date(2026, time.February, 1, 6, 0, 0, 0, time.UTC)
	second := time.Date(2026, time.March, 1, 6, 0, 0, 0, time.UTC)

	require.NoError(t, s.SupersedeRecommendation(ctx, recommendation("par-1", first)))
	require.NoError(t, s.SupersedeRecommendation(ctx, recommendation("par-2", second)))

	// Only the newcomer is active.
	active, err := s.ActiveRecommendation(ctx, "itm-beef")
	require.NoError(t, err)
	assert.Equal(t, parlevel.RecommendationID("par-2"), active.ID)
	assert.True(t, active.IsActive)
	assert.Nil(t, active.ValidTo)
	assert.Equal(t, "45.37", active.RecommendedPar.String())
	assert.Equal(t, "0.95", active.Rationale["service_level"])

	// The superseded row keeps its history, closed out at the handover.
	all, err := s.ListRecommendations(ctx, "itm-beef")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, parlevel.RecommendationID("par-2"), all[0].ID)
	old := all[1]
	assert.Equal(t, parlevel.RecommendationID("par-1"), old.ID)
	assert.False(t, old.IsActive)
	require.NotNil(t, old.ValidTo)
	assert.Equal(t, second, *old.ValidTo)
}

func TestActiveRecommendation_NotFound(t *testing.T) {
	s := newStore(t)

	_, err := s.ActiveRecommendation(context.Background(), "itm-none")

	assert.ErrorIs(t, err, finance.ErrNotFound)
}

func TestSupersedeRecommendation_DuplicateID(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	at := time.Date(2026, time.March, 1, 6, 0, 0, 0, time.UTC)
	require.NoError(t, s.SupersedeRecommendation(ctx, recommendation("par-1", at)))

	// Reusing a primary key fails inside the transaction; the original
	// active row survives.
	err := s.SupersedeRecommendation(ctx, recommendation("par-1", at.AddDate(0, 1, 0)))
	require.Error(t, err)
	assert.ErrorIs(t, err, finance.ErrSupersessionFailed)

	active, err := s.ActiveRecommendation(ctx, "itm-beef")
	require.NoError(t, err)
	assert.Equal(t, parlevel.RecommendationID("par-1"), active.ID)
	assert.True(t, active.IsActive)
}
