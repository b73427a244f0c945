/*
handlers.go - HTTP API handlers for the margin engine

PURPOSE:
  Exposes the reconciliation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Statements:
    PUT    /api/statements/{restaurant}/{year}/{month}        Create/update
    GET    /api/statements/{restaurant}/{year}/{month}        Get
    GET    /api/statements/{restaurant}                       List
    POST   /api/statements/{restaurant}/{year}/{month}/lock   Close period
    GET    /api/statements/{restaurant}/{year}/{month}/report Excel download

  Catalog:
    POST   /api/items         Upsert item
    GET    /api/items         List items
    POST   /api/recipes       Upsert recipe
    GET    /api/recipes       List recipes

  Count sessions:
    POST   /api/count-sessions                 Open session
    GET    /api/count-sessions                 List (?status=)
    GET    /api/count-sessions/{id}            Get with lines
    POST   /api/count-sessions/{id}/lines      Append count line
    POST   /api/count-sessions/{id}/close      Complete session
    POST   /api/count-sessions/{id}/cancel     Abandon session
    POST   /api/count-sessions/{id}/analyze    Run variance analysis

  Variance reports:
    GET    /api/variance-reports               List
    GET    /api/variance-reports/{id}          Get with analyses

  Waste detections:
    GET    /api/waste-detections               List (?item_id=&status=)
    GET    /api/waste-detections/{id}          Get
    POST   /api/waste-detections/{id}/status   Guarded status transition

  Par recommendations:
    POST   /api/par-recommendations/{item}         Compute + activate
    GET    /api/par-recommendations/{item}/active  Current active
    GET    /api/par-recommendations/{item}         Full history

ERROR HANDLING:
  Domain errors map onto HTTP status via sentinel checks:
  - 400: malformed body, invalid input
  - 404: not found
  - 409: optimistic-lock conflict (client refetches and retries)
  - 422: period locked, session closed, invalid status transition
  - 500: everything else

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tably/margin-engine/counting"
	"github.com/tably/margin-engine/finance"
	"github.com/tably/margin-engine/parlevel"
	"github.com/tably/margin-engine/report"
	"github.com/tably/margin-engine/waste"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store bundles every persistence interface the handlers need. Both
// store/sqlite and store/memory satisfy it.
type Store interface {
	finance.StatementStore
	counting.ItemStore
	counting.SessionStore
	waste.DetectionStore
	parlevel.RecommendationStore
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       Store
	Builder     *finance.StatementBuilder
	Analyzer    *counting.Analyzer
	Recommender *parlevel.Recommender

	// DefaultTargets backs statements saved without explicit targets.
	DefaultTargets finance.TargetConfig

	// HistoryWindow bounds how many past periods feed the classifier.
	HistoryWindow int
}

// NewHandler creates a handler with default engines wired in.
func NewHandler(store Store, targets finance.TargetConfig) *Handler {
	return &Handler{
		Store:          store,
		Builder:        finance.NewStatementBuilder(),
		Analyzer:       counting.NewAnalyzer(),
		Recommender:    parlevel.NewRecommender(),
		DefaultTargets: targets,
		HistoryWindow:  12,
	}
}

// =============================================================================
// STATEMENT HANDLERS
// =============================================================================

func periodFromURL(r *http.Request) (finance.PeriodKey, error) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		return finance.PeriodKey{}, fmt.Errorf("invalid year: %w", err)
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		return finance.PeriodKey{}, fmt.Errorf("invalid month: %w", err)
	}
	key := finance.PeriodKey{
		Restaurant: finance.RestaurantID(chi.URLParam(r, "restaurant")),
		Year:       year,
		Month:      time.Month(month),
	}
	return key, key.Validate()
}

func lineItem(dto LineItemDTO) finance.LineItem {
	return finance.LineItem{
		Actual: finance.NewMoney(dto.Actual),
		Budget: finance.NewMoney(dto.Budget),
	}
}

func (h *Handler) statementInput(key finance.PeriodKey, req SaveStatementRequest) finance.StatementInput {
	in := finance.StatementInput{
		Period: key,

		FoodSales:     lineItem(req.FoodSales),
		BeverageSales: lineItem(req.BeverageSales),
		OtherRevenue:  lineItem(req.OtherRevenue),

		ActualFoodCost:        finance.NewMoney(req.ActualFoodCost),
		ActualBeverageCost:    finance.NewMoney(req.ActualBeverageCost),
		BudgetFoodCostPct:     finance.NewPercent(req.BudgetFoodCostPct),
		BudgetBeverageCostPct: finance.NewPercent(req.BudgetBeverageCostPct),

		KitchenLabor:    lineItem(req.KitchenLabor),
		FOHLabor:        lineItem(req.FOHLabor),
		ManagementLabor: lineItem(req.ManagementLabor),
		PayrollTaxes:    lineItem(req.PayrollTaxes),

		Rent:           lineItem(req.Rent),
		Utilities:      lineItem(req.Utilities),
		Marketing:      lineItem(req.Marketing),
		Repairs:        lineItem(req.Repairs),
		Supplies:       lineItem(req.Supplies),
		Insurance:      lineItem(req.Insurance),
		CreditCardFees: lineItem(req.CreditCardFees),
		OtherExpenses:  lineItem(req.OtherExpenses),

		Targets: h.DefaultTargets,
	}
	if req.Targets != nil {
		in.Targets = finance.TargetConfig{
			FoodCostPct:     finance.NewPercent(req.Targets.FoodCostPct),
			BeverageCostPct: finance.NewPercent(req.Targets.BeverageCostPct),
			LaborCostPct:    finance.NewPercent(req.Targets.LaborCostPct),
			PrimeCostPct:    finance.NewPercent(req.Targets.PrimeCostPct),
			NetProfitPct:    finance.NewPercent(req.Targets.NetProfitPct),
		}
	}
	return in
}

// SaveStatement creates (version 0) or updates (version must match) the
// statement for a period, recomputing the derived side on every save.
// PUT /api/statements/{restaurant}/{year}/{month}
func (h *Handler) SaveStatement(w http.ResponseWriter, r *http.Request) {
	key, err := periodFromURL(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	var req SaveStatementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := h.statementInput(key, req)
	derived, err := h.Builder.Build(in)
	if err != nil {
		writeDomainError(w, "Failed to build statement", err)
		return
	}

	st := &finance.Statement{
		ID:      finance.StatementID(uuid.New().String()),
		Input:   in,
		Derived: derived,
		Version: req.Version,
	}
	if req.Version > 0 {
		existing, err := h.Store.GetStatement(r.Context(), key)
		if err != nil {
			writeDomainError(w, "Failed to load statement", err)
			return
		}
		st.ID = existing.ID
	}

	if err := h.Store.SaveStatement(r.Context(), st); err != nil {
		writeDomainError(w, "Failed to save statement", err)
		return
	}

	status := http.StatusOK
	if st.Version == 1 {
		status = http.StatusCreated
	}
	writeJSON(w, status, toStatementDTO(st))
}

// GetStatement returns the statement for a period.
// GET /api/statements/{restaurant}/{year}/{month}
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	key, err := periodFromURL(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	st, err := h.Store.GetStatement(r.Context(), key)
	if err != nil {
		writeDomainError(w, "Failed to get statement", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(st))
}

// ListStatements returns all statements for a restaurant, newest first.
// GET /api/statements/{restaurant}
func (h *Handler) ListStatements(w http.ResponseWriter, r *http.Request) {
	restaurant := finance.RestaurantID(chi.URLParam(r, "restaurant"))

	statements, err := h.Store.ListStatements(r.Context(), restaurant)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list statements", err)
		return
	}

	dtos := make([]StatementDTO, len(statements))
	for i, st := range statements {
		dtos[i] = toStatementDTO(st)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// LockStatement closes the period. Idempotent.
// POST /api/statements/{restaurant}/{year}/{month}/lock
func (h *Handler) LockStatement(w http.ResponseWriter, r *http.Request) {
	key, err := periodFromURL(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	if err := h.Store.LockStatement(r.Context(), key); err != nil {
		writeDomainError(w, "Failed to lock statement", err)
		return
	}

	st, err := h.Store.GetStatement(r.Context(), key)
	if err != nil {
		writeDomainError(w, "Failed to reload statement", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(st))
}

// DownloadStatementReport streams the statement as an Excel workbook.
// GET /api/statements/{restaurant}/{year}/{month}/report
func (h *Handler) DownloadStatementReport(w http.ResponseWriter, r *http.Request) {
	key, err := periodFromURL(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	st, err := h.Store.GetStatement(r.Context(), key)
	if err != nil {
		writeDomainError(w, "Failed to get statement", err)
		return
	}

	data, err := report.Generate(st)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate report", err)
		return
	}

	filename := fmt.Sprintf("pl-%s-%04d-%02d.xlsx", key.Restaurant, key.Year, int(key.Month))
	w.Header().Set("Content-Type",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// CreateItem upserts a catalog item.
// POST /api/items
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}
	if req.CostPerUnit < 0 {
		writeError(w, http.StatusBadRequest, "cost_per_unit must be non-negative", nil)
		return
	}

	item := &counting.InventoryItem{
		ID:          counting.ItemID(req.ID),
		Name:        req.Name,
		Category:    req.Category,
		Unit:        req.Unit,
		CostPerUnit: decimal.NewFromFloat(req.CostPerUnit),
	}
	if err := h.Store.SaveItem(r.Context(), item); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save item", err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemDTO(item))
}

// ListItems returns the item catalog.
// GET /api/items
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListItems(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list items", err)
		return
	}
	dtos := make([]ItemDTO, len(items))
	for i, item := range items {
		dtos[i] = toItemDTO(item)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func toItemDTO(item *counting.InventoryItem) ItemDTO {
	return ItemDTO{
		ID:          string(item.ID),
		Name:        item.Name,
		Category:    item.Category,
		Unit:        item.Unit,
		CostPerUnit: item.CostPerUnit.String(),
		Perishable:  item.Perishable(),
	}
}

// CreateRecipe upserts a recipe.
// POST /api/recipes
func (h *Handler) CreateRecipe(w http.ResponseWriter, r *http.Request) {
	var req CreateRecipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || len(req.Ingredients) == 0 {
		writeError(w, http.StatusBadRequest, "id and ingredients are required", nil)
		return
	}

	recipe := &counting.Recipe{
		ID:   counting.RecipeID(req.ID),
		Name: req.Name,
	}
	for _, ing := range req.Ingredients {
		if ing.QuantityPerServing < 0 {
			writeError(w, http.StatusBadRequest, "quantity_per_serving must be non-negative", nil)
			return
		}
		recipe.Ingredients = append(recipe.Ingredients, counting.Ingredient{
			ItemID:             counting.ItemID(ing.ItemID),
			QuantityPerServing: decimal.NewFromFloat(ing.QuantityPerServing),
			Unit:               ing.Unit,
		})
	}
	if err := h.Store.SaveRecipe(r.Context(), recipe); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save recipe", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// ListRecipes returns all recipes.
// GET /api/recipes
func (h *Handler) ListRecipes(w http.ResponseWriter, r *http.Request) {
	recipes, err := h.Store.ListRecipes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list recipes", err)
		return
	}

	dtos := make([]CreateRecipeRequest, len(recipes))
	for i, rec := range recipes {
		dto := CreateRecipeRequest{ID: string(rec.ID), Name: rec.Name}
		for _, ing := range rec.Ingredients {
			qty, _ := ing.QuantityPerServing.Float64()
			dto.Ingredients = append(dto.Ingredients, IngredientDTO{
				ItemID:             string(ing.ItemID),
				QuantityPerServing: qty,
				Unit:               ing.Unit,
			})
		}
		dtos[i] = dto
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// COUNT SESSION HANDLERS
// =============================================================================

// OpenSession starts a new count session.
// POST /api/count-sessions
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Area == "" {
		writeError(w, http.StatusBadRequest, "area is required", nil)
		return
	}

	session := counting.NewSession(
		counting.SessionID(uuid.New().String()), req.Area, time.Now().UTC())
	session.Notes = req.Notes

	if err := h.Store.CreateSession(r.Context(), session); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create session", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionDTO(session))
}

// ListSessions returns sessions, optionally filtered by status.
// GET /api/count-sessions?status=active
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	var status counting.SessionStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, err := counting.ParseSessionStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid status filter", err)
			return
		}
		status = parsed
	}

	sessions, err := h.Store.ListSessions(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions", err)
		return
	}
	dtos := make([]SessionDTO, len(sessions))
	for i, s := range sessions {
		dtos[i] = toSessionDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSession returns one session with its lines.
// GET /api/count-sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := counting.SessionID(chi.URLParam(r, "id"))
	session, err := h.Store.GetSession(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get session", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(session))
}

// AppendLine adds one count entry to an active session.
// POST /api/count-sessions/{id}/lines
func (h *Handler) AppendLine(w http.ResponseWriter, r *http.Request) {
	id := counting.SessionID(chi.URLParam(r, "id"))

	var req AppendLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ItemID == "" {
		writeError(w, http.StatusBadRequest, "item_id is required", nil)
		return
	}

	line := counting.CountLine{
		ItemID:          counting.ItemID(req.ItemID),
		CountedQuantity: decimal.NewFromFloat(req.CountedQuantity),
		Unit:            req.Unit,
		CountedBy:       req.CountedBy,
		Method:          req.Method,
		Notes:           req.Notes,
		CountedAt:       time.Now().UTC(),
	}
	if err := h.Store.AppendLine(r.Context(), id, line); err != nil {
		writeDomainError(w, "Failed to append line", err)
		return
	}

	session, err := h.Store.GetSession(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to reload session", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(session))
}

// CloseSession completes the session.
// POST /api/count-sessions/{id}/close
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	h.finishSession(w, r, h.Store.CloseSession)
}

// CancelSession abandons the session.
// POST /api/count-sessions/{id}/cancel
func (h *Handler) CancelSession(w http.ResponseWriter, r *http.Request) {
	h.finishSession(w, r, h.Store.CancelSession)
}

func (h *Handler) finishSession(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, id counting.SessionID, at time.Time) error) {

	id := counting.SessionID(chi.URLParam(r, "id"))
	if err := op(r.Context(), id, time.Now().UTC()); err != nil {
		writeDomainError(w, "Failed to update session", err)
		return
	}
	session, err := h.Store.GetSession(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to reload session", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(session))
}

// AnalyzeSession runs variance analysis on a completed session, persists the
// report, and opens waste detections for flagged items.
// POST /api/count-sessions/{id}/analyze
func (h *Handler) AnalyzeSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := counting.SessionID(chi.URLParam(r, "id"))

	var req AnalyzeSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	session, err := h.Store.GetSession(ctx, id)
	if err != nil {
		writeDomainError(w, "Failed to get session", err)
		return
	}

	items, err := h.Store.ListItems(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load items", err)
		return
	}
	recipes, err := h.Store.ListRecipes(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load recipes", err)
		return
	}

	actx := counting.AnalysisContext{
		Items:   make(map[counting.ItemID]counting.InventoryItem, len(items)),
		Sales:   make(counting.SalesVolume, len(req.Sales)),
		History: make(map[counting.ItemID][]decimal.Decimal, len(session.Lines)),
	}
	for _, item := range items {
		actx.Items[item.ID] = *item
	}
	for _, rec := range recipes {
		actx.Recipes = append(actx.Recipes, *rec)
	}
	for recipeID, sold := range req.Sales {
		actx.Sales[counting.RecipeID(recipeID)] = decimal.NewFromFloat(sold)
	}
	for _, line := range session.Lines {
		history, err := h.Store.HistoricalVariancePcts(ctx, line.ItemID, h.HistoryWindow)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load variance history", err)
			return
		}
		actx.History[line.ItemID] = history
	}

	now := time.Now().UTC()
	reportID := counting.ReportID(uuid.New().String())
	varianceReport, analyses, err := h.Analyzer.AnalyzeSession(session, actx, reportID, now)
	if err != nil {
		writeDomainError(w, "Failed to analyze session", err)
		return
	}

	if err := h.Store.SaveReport(ctx, varianceReport, analyses); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save report", err)
		return
	}

	// Open a detection for every analysis the classifier commits to.
	for _, a := range analyses {
		obs := waste.Observation{
			Direction:  a.Quantity.Direction,
			Severity:   a.Quantity.Severity,
			History:    actx.History[a.ItemID],
			Perishable: actx.Items[a.ItemID].Perishable(),
		}
		wasteType := h.Analyzer.Classifier.ClassifyType(a.Scores, obs)
		if wasteType == waste.WasteUnknown {
			continue
		}
		_, confidence := a.Scores.Dominant()
		detection := waste.NewDetection(
			waste.DetectionID(uuid.New().String()),
			waste.ItemID(a.ItemID), wasteType,
			a.TheoreticalQuantity, a.ActualQuantity,
			actx.Items[a.ItemID].CostPerUnit, confidence, now)
		detection.Metadata = map[string]any{
			"report_id":  string(varianceReport.ID),
			"session_id": string(session.ID),
		}
		if err := h.Store.SaveDetection(ctx, detection); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save detection", err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, toReportDTO(varianceReport, analyses))
}

// =============================================================================
// VARIANCE REPORT HANDLERS
// =============================================================================

// ListReports returns all variance reports, newest first.
// GET /api/variance-reports
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.Store.ListReports(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list reports", err)
		return
	}
	dtos := make([]ReportDTO, len(reports))
	for i, rep := range reports {
		dtos[i] = toReportDTO(rep, nil)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetReport returns one report with its per-item analyses.
// GET /api/variance-reports/{id}
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	id := counting.ReportID(chi.URLParam(r, "id"))
	rep, analyses, err := h.Store.GetReport(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get report", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(rep, analyses))
}

// =============================================================================
// WASTE DETECTION HANDLERS
// =============================================================================

// ListDetections returns detections, optionally filtered.
// GET /api/waste-detections?item_id=&status=
func (h *Handler) ListDetections(w http.ResponseWriter, r *http.Request) {
	filter := waste.DetectionFilter{
		ItemID: waste.ItemID(r.URL.Query().Get("item_id")),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := waste.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid status filter", err)
			return
		}
		filter.Status = status
	}

	detections, err := h.Store.ListDetections(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list detections", err)
		return
	}
	dtos := make([]DetectionDTO, len(detections))
	for i, d := range detections {
		dtos[i] = toDetectionDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetDetection returns one detection.
// GET /api/waste-detections/{id}
func (h *Handler) GetDetection(w http.ResponseWriter, r *http.Request) {
	id := waste.DetectionID(chi.URLParam(r, "id"))
	d, err := h.Store.GetDetection(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get detection", err)
		return
	}
	writeJSON(w, http.StatusOK, toDetectionDTO(d))
}

// UpdateDetectionStatus moves a detection along its lifecycle. The from
// status must match what the caller last read.
// POST /api/waste-detections/{id}/status
func (h *Handler) UpdateDetectionStatus(w http.ResponseWriter, r *http.Request) {
	id := waste.DetectionID(chi.URLParam(r, "id"))

	var req UpdateDetectionStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	from, err := waste.ParseStatus(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from status", err)
		return
	}
	to, err := waste.ParseStatus(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to status", err)
		return
	}

	if err := h.Store.UpdateDetectionStatus(r.Context(), id, from, to, time.Now().UTC()); err != nil {
		writeDomainError(w, "Failed to update status", err)
		return
	}

	d, err := h.Store.GetDetection(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to reload detection", err)
		return
	}
	writeJSON(w, http.StatusOK, toDetectionDTO(d))
}

// =============================================================================
// PAR RECOMMENDATION HANDLERS
// =============================================================================

// RecommendPar computes a new recommendation from supplied usage history and
// atomically supersedes the item's active one.
// POST /api/par-recommendations/{item}
func (h *Handler) RecommendPar(w http.ResponseWriter, r *http.Request) {
	item := counting.ItemID(chi.URLParam(r, "item"))

	var req RecommendParRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	usage := make([]decimal.Decimal, len(req.DailyUsage))
	for i, u := range req.DailyUsage {
		usage[i] = decimal.NewFromFloat(u)
	}

	rec, err := h.Recommender.Recommend(parlevel.UsageInput{
		ItemID:     item,
		DailyUsage: usage,
		LeadDays:   req.LeadDays,
	}, parlevel.RecommendationID(uuid.New().String()), time.Now().UTC())
	if err != nil {
		writeDomainError(w, "Failed to compute recommendation", err)
		return
	}

	if err := h.Store.SupersedeRecommendation(r.Context(), rec); err != nil {
		writeDomainError(w, "Failed to activate recommendation", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecommendationDTO(rec))
}

// GetActiveRecommendation returns the item's current active recommendation.
// GET /api/par-recommendations/{item}/active
func (h *Handler) GetActiveRecommendation(w http.ResponseWriter, r *http.Request) {
	item := counting.ItemID(chi.URLParam(r, "item"))
	rec, err := h.Store.ActiveRecommendation(r.Context(), item)
	if err != nil {
		writeDomainError(w, "Failed to get active recommendation", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecommendationDTO(rec))
}

// ListRecommendations returns the item's full recommendation history.
// GET /api/par-recommendations/{item}
func (h *Handler) ListRecommendations(w http.ResponseWriter, r *http.Request) {
	item := counting.ItemID(chi.URLParam(r, "item"))
	recs, err := h.Store.ListRecommendations(r.Context(), item)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list recommendations", err)
		return
	}
	dtos := make([]RecommendationDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = toRecommendationDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps sentinel errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case finance.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case finance.IsRetryable(err):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, finance.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, message, err)
	case finance.IsClientError(err):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
