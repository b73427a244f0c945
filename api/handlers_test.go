/*
handlers_test.go - HTTP-level tests for the API surface

Runs requests through the full chi router against the in-memory store, so
routing, JSON codecs, and domain error mapping are all exercised together.
*/
package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tably/margin-engine/api"
	"github.com/tably/margin-engine/benchmark"
	"github.com/tably/margin-engine/store/memory"
)

// =============================================================================
// TEST HARNESS
// =============================================================================

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	h := api.NewHandler(memory.New(), benchmark.DefaultTargets())
	return api.NewRouter(h, []string{"*"})
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(out),
		"body: %s", rec.Body.String())
}

func statementBody(version int64) api.SaveStatementRequest {
	return api.SaveStatementRequest{
		Version:       version,
		FoodSales:     api.LineItemDTO{Actual: 80000, Budget: 80000},
		BeverageSales: api.LineItemDTO{Actual: 20000, Budget: 20000},

		ActualFoodCost:        22000,
		ActualBeverageCost:    4000,
		BudgetFoodCostPct:     30,
		BudgetBeverageCostPct: 22,

		KitchenLabor:    api.LineItemDTO{Actual: 14000, Budget: 14000},
		FOHLabor:        api.LineItemDTO{Actual: 9000, Budget: 9000},
		ManagementLabor: api.LineItemDTO{Actual: 5000, Budget: 5000},
		PayrollTaxes:    api.LineItemDTO{Actual: 2000, Budget: 2000},

		Rent:      api.LineItemDTO{Actual: 9000, Budget: 9000},
		Utilities: api.LineItemDTO{Actual: 2200, Budget: 2200},
	}
}

// =============================================================================
// STATEMENT ENDPOINTS
// =============================================================================

func TestSaveStatement_Create(t *testing.T) {
	router := newRouter(t)

	rec := do(t, router, http.MethodPut, "/api/statements/r-1/2026/3", statementBody(0))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var dto api.StatementDTO
	decode(t, rec, &dto)
	assert.Equal(t, int64(1), dto.Version)
	assert.Equal(t, "r-1", dto.Restaurant)
	assert.Equal(t, 3, dto.Month)
	assert.Equal(t, "100000.00", dto.Actual.GrossRevenue)
	assert.Equal(t, "26000.00", dto.Actual.COGS)
	require.NotNil(t, dto.Actual.NetProfitPct)
	assert.False(t, dto.Locked)
}

func TestSaveStatement_UpdateWithFreshVersion(t *testing.T) {
	router := newRouter(t)
	require.Equal(t, http.StatusCreated,
		do(t, router, http.MethodPut, "/api/statements/r-1/2026/3", statementBody(0)).Code)

	body := statementBody(1)
	body.FoodSales.Actual = 85000
	rec := do(t, router, http.MethodPut, "/api/statements/r-1/2026/3", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var dto api.StatementDTO
	decode(t, rec, &dto)
	assert.Equal(t, int64(2), dto.Version)
	assert.Equal(t, "105000.00", dto.Actual.GrossRevenue)
}

func TestSaveStatement_StaleVersionConflicts(t *testing.T) {
	router := newRouter(t)
	require.Equal(t, http.StatusCreated,
		do(t, router, http.MethodPut, "/api/statements/r-1/2026/3", statementBody(0)).Code)
	require.Equal(t, http.StatusOK,
		do(t, router, http.MethodPut, "/api/statements/r-1/2026/3", statementBody(1)).Code)

	// A writer still holding version 1 must refetch.
	rec := do(t, router, http.MethodPut, "/api/statements/r-1/2026/3", statementBody(1))

	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestSaveStatement_LockedPeriod(t *testing.T) {
	router := newRouter(t)
	require.Equal(t, http.StatusCreated,
		do(t, router, http.MethodPut, "/api/statements/r-1/2026/3", statementBody(0)).Code)

	lock := do(t, router, http.MethodPost, "/api/statements/r-1/2026/3/lock", nil)
	require.Equal(t, http.StatusOK, lock.Code)
	var locked api.StatementDTO
	decode(t, lock, &locked)
	assert.True(t, locked.Locked)

	rec := do(t, router, http.MethodPut, "/api/statements/r-1/2026/3", statementBody(1))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
}

func TestSaveStatement_NegativeInputRejected(t *testing.T) {
	router := newRouter(t)
	body := statementBody(0)
	body.Rent.Actual = -100

	rec := do(t, router, http.MethodPut, "/api/statements/r-1/2026/3", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestSaveStatement_InvalidMonth(t *testing.T) {
	router := newRouter(t)

	rec := do(t, router, http.MethodPut, "/api/statements/r-1/2026/13", statementBody(0))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetStatement_NotFound(t *testing.T) {
	router := newRouter(t)

	rec := do(t, router, http.MethodGet, "/api/statements/r-1/2026/3", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListStatements(t *testing.T) {
	router := newRouter(t)
	require.Equal(t, http.StatusCreated,
		do(t, router, http.MethodPut, "/api/statements/r-1/2026/2", statementBody(0)).Code)
	require.Equal(t, http.StatusCreated,
		do(t, router, http.MethodPut, "/api/statements/r-1/2026/3", statementBody(0)).Code)

	rec := do(t, router, http.MethodGet, "/api/statements/r-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var dtos []api.StatementDTO
	decode(t, rec, &dtos)
	require.Len(t, dtos, 2)
	assert.Equal(t, 3, dtos[0].Month)
}

func TestDownloadStatementReport(t *testing.T) {
	router := newRouter(t)
	require.Equal(t, http.StatusCreated,
		do(t, router, http.MethodPut, "/api/statements/r-1/2026/3", statementBody(0)).Code)

	rec := do(t, router, http.MethodGet, "/api/statements/r-1/2026/3/report", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "pl-r-1-2026-03.xlsx")
	assert.NotZero(t, rec.Body.Len())
}

// =============================================================================
// COUNT-TO-DETECTION FLOW
// =============================================================================

func seedCatalog(t *testing.T, router http.Handler) {
	t.Helper()
	items := []api.CreateItemRequest{
		{ID: "itm-beef", Name: "Ground Beef", Category: "meat", Unit: "lbs", CostPerUnit: 10},
		{ID: "itm-cheese", Name: "Cheddar", Category: "dairy", Unit: "lbs", CostPerUnit: 4},
	}
	for _, item := range items {
		require.Equal(t, http.StatusCreated,
			do(t, router, http.MethodPost, "/api/items", item).Code)
	}
	recipe := api.CreateRecipeRequest{
		ID: "rcp-burger", Name: "Burger",
		Ingredients: []api.IngredientDTO{
			{ItemID: "itm-beef", QuantityPerServing: 0.5, Unit: "lbs"},
			{ItemID: "itm-cheese", QuantityPerServing: 0.25, Unit: "lbs"},
		},
	}
	require.Equal(t, http.StatusCreated,
		do(t, router, http.MethodPost, "/api/recipes", recipe).Code)
}

func openSession(t *testing.T, router http.Handler) string {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/count-sessions",
		api.OpenSessionRequest{Area: "kitchen"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var dto api.SessionDTO
	decode(t, rec, &dto)
	require.NotEmpty(t, dto.ID)
	return dto.ID
}

func appendLine(t *testing.T, router http.Handler, session, item string, qty float64) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, router, http.MethodPost,
		fmt.Sprintf("/api/count-sessions/%s/lines", session),
		api.AppendLineRequest{ItemID: item, CountedQuantity: qty, Unit: "lbs", CountedBy: "sam"})
}

func TestCountSessionFlow(t *testing.T) {
	router := newRouter(t)
	seedCatalog(t, router)
	session := openSession(t, router)

	require.Equal(t, http.StatusOK, appendLine(t, router, session, "itm-beef", 80).Code)
	require.Equal(t, http.StatusOK, appendLine(t, router, session, "itm-cheese", 49.5).Code)

	// A recount of the same item is rejected.
	assert.Equal(t, http.StatusBadRequest, appendLine(t, router, session, "itm-beef", 78).Code)

	closeRec := do(t, router, http.MethodPost, "/api/count-sessions/"+session+"/close", nil)
	require.Equal(t, http.StatusOK, closeRec.Code)
	var closed api.SessionDTO
	decode(t, closeRec, &closed)
	assert.Equal(t, "completed", closed.Status)
	require.NotNil(t, closed.ClosedAt)
	assert.Len(t, closed.Lines, 2)

	// No more lines after close.
	assert.Equal(t, http.StatusUnprocessableEntity,
		appendLine(t, router, session, "itm-napkins", 5).Code)

	// 200 burgers sold: theoretical beef 100 vs 80 counted.
	analyze := do(t, router, http.MethodPost, "/api/count-sessions/"+session+"/analyze",
		api.AnalyzeSessionRequest{Sales: map[string]float64{"rcp-burger": 200}})
	require.Equal(t, http.StatusCreated, analyze.Code, analyze.Body.String())
	var report api.ReportDTO
	decode(t, analyze, &report)
	assert.Equal(t, session, report.SessionID)
	assert.Equal(t, 2, report.TotalItems)
	assert.Equal(t, 1, report.ItemsWithVariance)
	require.Len(t, report.Analyses, 2)
	beef := report.Analyses[0]
	assert.Equal(t, "itm-beef", beef.ItemID)
	assert.Equal(t, "shortage", beef.Quantity.Direction)
	assert.Equal(t, "high", beef.Quantity.Severity)
	require.NotNil(t, beef.Quantity.VariancePct)
	assert.Equal(t, "-20.00", *beef.Quantity.VariancePct)

	// The report is retrievable afterwards.
	got := do(t, router, http.MethodGet, "/api/variance-reports/"+report.ID, nil)
	require.Equal(t, http.StatusOK, got.Code)
}

func TestAnalyzeSession_ActiveSessionRejected(t *testing.T) {
	router := newRouter(t)
	seedCatalog(t, router)
	session := openSession(t, router)
	require.Equal(t, http.StatusOK, appendLine(t, router, session, "itm-beef", 80).Code)

	rec := do(t, router, http.MethodPost, "/api/count-sessions/"+session+"/analyze",
		api.AnalyzeSessionRequest{Sales: map[string]float64{"rcp-burger": 200}})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
}

func TestAnalyzeSession_UnknownItemRejected(t *testing.T) {
	router := newRouter(t)
	seedCatalog(t, router)
	session := openSession(t, router)
	require.Equal(t, http.StatusOK, appendLine(t, router, session, "itm-mystery", 5).Code)
	require.Equal(t, http.StatusOK,
		do(t, router, http.MethodPost, "/api/count-sessions/"+session+"/close", nil).Code)

	rec := do(t, router, http.MethodPost, "/api/count-sessions/"+session+"/analyze",
		api.AnalyzeSessionRequest{Sales: map[string]float64{}})

	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestCancelSession_Terminal(t *testing.T) {
	router := newRouter(t)
	session := openSession(t, router)

	cancel := do(t, router, http.MethodPost, "/api/count-sessions/"+session+"/cancel", nil)
	require.Equal(t, http.StatusOK, cancel.Code)

	// A cancelled session never completes.
	rec := do(t, router, http.MethodPost, "/api/count-sessions/"+session+"/close", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

// =============================================================================
// WASTE DETECTION LIFECYCLE
// =============================================================================

// runTheftAnalysis drives enough shortage months through the analyzer for the
// classifier to open a theft detection.
func runTheftAnalysis(t *testing.T, router http.Handler) string {
	t.Helper()
	seedCatalog(t, router)

	// Three analysis rounds: the first two build shortage history, the third
	// carries a streak of 3 at high severity and flags.
	for _, counted := range []float64{92, 88, 80} {
		session := openSession(t, router)
		require.Equal(t, http.StatusOK, appendLine(t, router, session, "itm-beef", counted).Code)
		require.Equal(t, http.StatusOK,
			do(t, router, http.MethodPost, "/api/count-sessions/"+session+"/close", nil).Code)
		rec := do(t, router, http.MethodPost, "/api/count-sessions/"+session+"/analyze",
			api.AnalyzeSessionRequest{Sales: map[string]float64{"rcp-burger": 200}})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	list := do(t, router, http.MethodGet, "/api/waste-detections?item_id=itm-beef", nil)
	require.Equal(t, http.StatusOK, list.Code)
	var detections []api.DetectionDTO
	decode(t, list, &detections)
	require.NotEmpty(t, detections, "expected the shortage streak to open a detection")
	d := detections[0]
	assert.Equal(t, "theft", d.WasteType)
	assert.Equal(t, "detected", d.Status)
	return d.ID
}

func TestWasteDetectionLifecycle(t *testing.T) {
	router := newRouter(t)
	id := runTheftAnalysis(t, router)

	// Skipping investigation is a disallowed edge.
	bad := do(t, router, http.MethodPost, "/api/waste-detections/"+id+"/status",
		api.UpdateDetectionStatusRequest{From: "detected", To: "resolved"})
	assert.Equal(t, http.StatusUnprocessableEntity, bad.Code, bad.Body.String())

	ok := do(t, router, http.MethodPost, "/api/waste-detections/"+id+"/status",
		api.UpdateDetectionStatusRequest{From: "detected", To: "investigating"})
	require.Equal(t, http.StatusOK, ok.Code, ok.Body.String())
	var dto api.DetectionDTO
	decode(t, ok, &dto)
	assert.Equal(t, "investigating", dto.Status)

	// A stale writer still holding "detected" loses the compare-and-set.
	stale := do(t, router, http.MethodPost, "/api/waste-detections/"+id+"/status",
		api.UpdateDetectionStatusRequest{From: "detected", To: "investigating"})
	assert.Equal(t, http.StatusUnprocessableEntity, stale.Code)

	done := do(t, router, http.MethodPost, "/api/waste-detections/"+id+"/status",
		api.UpdateDetectionStatusRequest{From: "investigating", To: "false_positive"})
	require.Equal(t, http.StatusOK, done.Code)
	decode(t, done, &dto)
	assert.Equal(t, "false_positive", dto.Status)
}

func TestUpdateDetectionStatus_UnknownStatusText(t *testing.T) {
	router := newRouter(t)

	rec := do(t, router, http.MethodPost, "/api/waste-detections/det-1/status",
		api.UpdateDetectionStatusRequest{From: "detected", To: "closed"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// PAR RECOMMENDATIONS
// =============================================================================

func TestRecommendPar_Flow(t *testing.T) {
	router := newRouter(t)

	first := do(t, router, http.MethodPost, "/api/par-recommendations/itm-beef",
		api.RecommendParRequest{DailyUsage: []float64{8, 10, 12}, LeadDays: 4})
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	var rec1 api.RecommendationDTO
	decode(t, first, &rec1)
	assert.Equal(t, "45.37", rec1.RecommendedPar)
	assert.True(t, rec1.IsActive)

	second := do(t, router, http.MethodPost, "/api/par-recommendations/itm-beef",
		api.RecommendParRequest{DailyUsage: []float64{10, 10, 10, 10}, LeadDays: 4})
	require.Equal(t, http.StatusCreated, second.Code)
	var rec2 api.RecommendationDTO
	decode(t, second, &rec2)

	// Only the newcomer is active.
	active := do(t, router, http.MethodGet, "/api/par-recommendations/itm-beef/active", nil)
	require.Equal(t, http.StatusOK, active.Code)
	var got api.RecommendationDTO
	decode(t, active, &got)
	assert.Equal(t, rec2.ID, got.ID)

	history := do(t, router, http.MethodGet, "/api/par-recommendations/itm-beef", nil)
	require.Equal(t, http.StatusOK, history.Code)
	var all []api.RecommendationDTO
	decode(t, history, &all)
	assert.Len(t, all, 2)
}

func TestRecommendPar_TooFewObservations(t *testing.T) {
	router := newRouter(t)

	rec := do(t, router, http.MethodPost, "/api/par-recommendations/itm-beef",
		api.RecommendParRequest{DailyUsage: []float64{8, 10}, LeadDays: 4})

	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestActiveRecommendation_NotFound(t *testing.T) {
	router := newRouter(t)

	rec := do(t, router, http.MethodGet, "/api/par-recommendations/itm-none/active", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// MISC
// =============================================================================

func TestHealthz(t *testing.T) {
	router := newRouter(t)

	rec := do(t, router, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
