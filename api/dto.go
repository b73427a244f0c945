/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY ON THE WIRE:
  Dollar amounts travel as JSON numbers (float64) at the API edge and are
  converted to decimals immediately on entry; all arithmetic stays decimal.
  Percentages in responses are pre-rounded strings ("12.50") or null when
  undefined (zero-revenue month).

SEE ALSO:
  - handlers.go: uses these types
  - finance/statement.go: the domain model behind StatementDTO
*/
package api

import (
	"time"

	"github.com/tably/margin-engine/counting"
	"github.com/tably/margin-engine/finance"
	"github.com/tably/margin-engine/parlevel"
	"github.com/tably/margin-engine/waste"
)

// =============================================================================
// STATEMENT TYPES
// =============================================================================

// LineItemDTO pairs an actual dollar value with its budget.
type LineItemDTO struct {
	Actual float64 `json:"actual"`
	Budget float64 `json:"budget"`
}

// TargetsDTO carries the target percentages a statement is judged against.
type TargetsDTO struct {
	FoodCostPct     float64 `json:"food_cost_pct"`
	BeverageCostPct float64 `json:"beverage_cost_pct"`
	LaborCostPct    float64 `json:"labor_cost_pct"`
	PrimeCostPct    float64 `json:"prime_cost_pct"`
	NetProfitPct    float64 `json:"net_profit_pct"`
}

// SaveStatementRequest is the request to create or update a statement.
// Version 0 creates; any other value must match the stored version.
type SaveStatementRequest struct {
	Version int64 `json:"version"`

	FoodSales     LineItemDTO `json:"food_sales"`
	BeverageSales LineItemDTO `json:"beverage_sales"`
	OtherRevenue  LineItemDTO `json:"other_revenue"`

	ActualFoodCost        float64 `json:"actual_food_cost"`
	ActualBeverageCost    float64 `json:"actual_beverage_cost"`
	BudgetFoodCostPct     float64 `json:"budget_food_cost_pct"`
	BudgetBeverageCostPct float64 `json:"budget_beverage_cost_pct"`

	KitchenLabor    LineItemDTO `json:"kitchen_labor"`
	FOHLabor        LineItemDTO `json:"foh_labor"`
	ManagementLabor LineItemDTO `json:"management_labor"`
	PayrollTaxes    LineItemDTO `json:"payroll_taxes"`

	Rent           LineItemDTO `json:"rent"`
	Utilities      LineItemDTO `json:"utilities"`
	Marketing      LineItemDTO `json:"marketing"`
	Repairs        LineItemDTO `json:"repairs"`
	Supplies       LineItemDTO `json:"supplies"`
	Insurance      LineItemDTO `json:"insurance"`
	CreditCardFees LineItemDTO `json:"credit_card_fees"`
	OtherExpenses  LineItemDTO `json:"other_expenses"`

	// Targets override the concept defaults when present.
	Targets *TargetsDTO `json:"targets,omitempty"`
}

// SideTotalsDTO is one computed side (actual or budget).
type SideTotalsDTO struct {
	GrossRevenue          string `json:"gross_revenue"`
	COGS                  string `json:"cogs"`
	LaborTotal            string `json:"labor_total"`
	PrimeCost             string `json:"prime_cost"`
	OperatingExpenseTotal string `json:"operating_expense_total"`
	NetProfit             string `json:"net_profit"`

	COGSPct             *string `json:"cogs_pct"`
	LaborPct            *string `json:"labor_pct"`
	PrimeCostPct        *string `json:"prime_cost_pct"`
	OperatingExpensePct *string `json:"operating_expense_pct"`
	NetProfitPct        *string `json:"net_profit_pct"`
}

// ComparisonDTO is one actual-vs-baseline result.
type ComparisonDTO struct {
	Variance    string  `json:"variance"`
	VariancePct *string `json:"variance_pct"`
	Direction   string  `json:"direction"`
	Severity    string  `json:"severity"`
}

// AlertDTO is a dashboard callout.
type AlertDTO struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Impact   string `json:"impact"`
}

// HealthDTO is the qualitative summary of a statement.
type HealthDTO struct {
	Revenue         string     `json:"revenue"`
	CostControl     string     `json:"cost_control"`
	LaborEfficiency string     `json:"labor_efficiency"`
	Profitability   string     `json:"profitability"`
	Overall         string     `json:"overall"`
	Score           int        `json:"score"`
	Alerts          []AlertDTO `json:"alerts"`
}

// StatementDTO is the full statement response.
type StatementDTO struct {
	ID         string `json:"id"`
	Restaurant string `json:"restaurant"`
	Year       int    `json:"year"`
	Month      int    `json:"month"`
	Version    int64  `json:"version"`
	Locked     bool   `json:"locked"`

	Actual SideTotalsDTO `json:"actual"`
	Budget SideTotalsDTO `json:"budget"`

	Revenue           ComparisonDTO `json:"revenue"`
	COGS              ComparisonDTO `json:"cogs"`
	Labor             ComparisonDTO `json:"labor"`
	PrimeCost         ComparisonDTO `json:"prime_cost"`
	OperatingExpenses ComparisonDTO `json:"operating_expenses"`
	NetProfit         ComparisonDTO `json:"net_profit"`

	Health HealthDTO `json:"health"`

	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// =============================================================================
// COUNTING TYPES
// =============================================================================

// CreateItemRequest upserts a catalog item.
type CreateItemRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Unit        string  `json:"unit"`
	CostPerUnit float64 `json:"cost_per_unit"`
}

// ItemDTO represents a catalog item.
type ItemDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Unit        string `json:"unit"`
	CostPerUnit string `json:"cost_per_unit"`
	Perishable  bool   `json:"perishable"`
}

// IngredientDTO is one recipe line.
type IngredientDTO struct {
	ItemID             string  `json:"item_id"`
	QuantityPerServing float64 `json:"quantity_per_serving"`
	Unit               string  `json:"unit"`
}

// CreateRecipeRequest upserts a recipe.
type CreateRecipeRequest struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Ingredients []IngredientDTO `json:"ingredients"`
}

// OpenSessionRequest opens a count session.
type OpenSessionRequest struct {
	Area  string `json:"area"`
	Notes string `json:"notes,omitempty"`
}

// AppendLineRequest adds one count line to an active session.
type AppendLineRequest struct {
	ItemID          string  `json:"item_id"`
	CountedQuantity float64 `json:"counted_quantity"`
	Unit            string  `json:"unit"`
	CountedBy       string  `json:"counted_by,omitempty"`
	Method          string  `json:"method,omitempty"`
	Notes           string  `json:"notes,omitempty"`
}

// CountLineDTO is one count entry in a session response.
type CountLineDTO struct {
	ItemID          string `json:"item_id"`
	CountedQuantity string `json:"counted_quantity"`
	Unit            string `json:"unit"`
	CountedBy       string `json:"counted_by,omitempty"`
	Method          string `json:"method,omitempty"`
	Notes           string `json:"notes,omitempty"`
	CountedAt       string `json:"counted_at"`
}

// SessionDTO represents a count session.
type SessionDTO struct {
	ID        string         `json:"id"`
	Area      string         `json:"area"`
	Status    string         `json:"status"`
	Notes     string         `json:"notes,omitempty"`
	StartedAt string         `json:"started_at"`
	ClosedAt  *string        `json:"closed_at,omitempty"`
	Lines     []CountLineDTO `json:"lines"`
}

// AnalyzeSessionRequest runs variance analysis against a closed session.
// Sales maps recipe id to units sold over the count window.
type AnalyzeSessionRequest struct {
	Sales map[string]float64 `json:"sales"`
}

// ScoresDTO carries the three classifier probabilities.
type ScoresDTO struct {
	Theft          string `json:"theft_probability"`
	PortionControl string `json:"portion_control_score"`
	Spoilage       string `json:"spoilage_score"`
}

// AnalysisDTO is one per-item analysis row.
type AnalysisDTO struct {
	ItemID string `json:"item_id"`

	TheoreticalQuantity string `json:"theoretical_quantity"`
	TheoreticalValue    string `json:"theoretical_value"`
	ActualQuantity      string `json:"actual_quantity"`
	ActualValue         string `json:"actual_value"`

	Quantity ComparisonDTO `json:"quantity"`
	Value    ComparisonDTO `json:"value"`

	Trend  string    `json:"trend"`
	Scores ScoresDTO `json:"scores"`

	PossibleCauses  []string `json:"possible_causes,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// ReportDTO is a variance report with its analyses.
type ReportDTO struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`

	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`

	TotalItems         int    `json:"total_items"`
	ItemsWithVariance  int    `json:"items_with_variance"`
	TotalValueVariance string `json:"total_value_variance"`
	AverageVariancePct string `json:"average_variance_pct"`

	SuspectedTheftCount       int `json:"suspected_theft_count"`
	PortionControlIssuesCount int `json:"portion_control_issues_count"`
	SpoilageRelatedCount      int `json:"spoilage_related_count"`

	Analyses []AnalysisDTO `json:"analyses,omitempty"`

	CreatedAt string `json:"created_at"`
}

// =============================================================================
// WASTE TYPES
// =============================================================================

// DetectionDTO represents a waste-detection event.
type DetectionDTO struct {
	ID     string `json:"id"`
	ItemID string `json:"item_id"`

	WasteType string `json:"waste_type"`

	ExpectedUsage string `json:"expected_usage"`
	ActualUsage   string `json:"actual_usage"`
	WasteAmount   string `json:"waste_amount"`
	WasteCost     string `json:"waste_cost"`
	Confidence    string `json:"confidence"`

	Metadata map[string]any `json:"metadata,omitempty"`

	Status     string  `json:"status"`
	Notes      string  `json:"notes,omitempty"`
	DetectedAt string  `json:"detected_at"`
	ResolvedAt *string `json:"resolved_at,omitempty"`
}

// UpdateDetectionStatusRequest moves a detection along its lifecycle. From
// must equal the status the caller last read (guarded transition).
type UpdateDetectionStatusRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// =============================================================================
// PAR RECOMMENDATION TYPES
// =============================================================================

// RecommendParRequest computes and activates a new par recommendation.
type RecommendParRequest struct {
	DailyUsage []float64 `json:"daily_usage"`
	LeadDays   int       `json:"lead_days"`
}

// RecommendationDTO represents a par-level recommendation.
type RecommendationDTO struct {
	ID     string `json:"id"`
	ItemID string `json:"item_id"`

	RecommendedPar string `json:"recommended_par"`
	SafetyStock    string `json:"safety_stock"`
	Confidence     string `json:"confidence"`

	Rationale map[string]any `json:"rationale,omitempty"`

	ValidFrom string  `json:"valid_from"`
	ValidTo   *string `json:"valid_to,omitempty"`
	IsActive  bool    `json:"is_active"`

	CreatedAt string `json:"created_at"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func moneyStr(m finance.Money) string { return m.Value.StringFixed(2) }

func pctPtr(p *finance.Percent) *string {
	if p == nil {
		return nil
	}
	s := p.Value.StringFixed(2)
	return &s
}

func timePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func toComparisonDTO(c finance.Comparison) ComparisonDTO {
	dto := ComparisonDTO{
		Variance:  c.Variance.StringFixed(2),
		Direction: string(c.Direction),
		Severity:  string(c.Severity),
	}
	if c.VariancePct != nil {
		s := c.VariancePct.StringFixed(2)
		dto.VariancePct = &s
	}
	return dto
}

func toSideTotalsDTO(s finance.SideTotals) SideTotalsDTO {
	return SideTotalsDTO{
		GrossRevenue:          moneyStr(s.GrossRevenue),
		COGS:                  moneyStr(s.COGS),
		LaborTotal:            moneyStr(s.LaborTotal),
		PrimeCost:             moneyStr(s.PrimeCost),
		OperatingExpenseTotal: moneyStr(s.OperatingExpenseTotal),
		NetProfit:             moneyStr(s.NetProfit),
		COGSPct:               pctPtr(s.COGSPct),
		LaborPct:              pctPtr(s.LaborPct),
		PrimeCostPct:          pctPtr(s.PrimeCostPct),
		OperatingExpensePct:   pctPtr(s.OperatingExpensePct),
		NetProfitPct:          pctPtr(s.NetProfitPct),
	}
}

func toStatementDTO(st *finance.Statement) StatementDTO {
	d := st.Derived
	h := d.Health
	alerts := make([]AlertDTO, len(h.Alerts))
	for i, a := range h.Alerts {
		alerts[i] = AlertDTO{Category: a.Category, Message: a.Message, Impact: a.Impact}
	}
	return StatementDTO{
		ID:         string(st.ID),
		Restaurant: string(st.Input.Period.Restaurant),
		Year:       st.Input.Period.Year,
		Month:      int(st.Input.Period.Month),
		Version:    st.Version,
		Locked:     st.Locked,

		Actual: toSideTotalsDTO(d.Actual),
		Budget: toSideTotalsDTO(d.Budget),

		Revenue:           toComparisonDTO(d.Revenue),
		COGS:              toComparisonDTO(d.COGS),
		Labor:             toComparisonDTO(d.Labor),
		PrimeCost:         toComparisonDTO(d.PrimeCost),
		OperatingExpenses: toComparisonDTO(d.OperatingExpenses),
		NetProfit:         toComparisonDTO(d.NetProfit),

		Health: HealthDTO{
			Revenue:         string(h.Revenue),
			CostControl:     string(h.CostControl),
			LaborEfficiency: string(h.LaborEfficiency),
			Profitability:   string(h.Profitability),
			Overall:         string(h.Overall),
			Score:           h.Score,
			Alerts:          alerts,
		},

		CreatedAt: st.CreatedAt.Format(time.RFC3339),
		UpdatedAt: st.UpdatedAt.Format(time.RFC3339),
	}
}

func toSessionDTO(s *counting.CountSession) SessionDTO {
	lines := make([]CountLineDTO, len(s.Lines))
	for i, l := range s.Lines {
		lines[i] = CountLineDTO{
			ItemID:          string(l.ItemID),
			CountedQuantity: l.CountedQuantity.String(),
			Unit:            l.Unit,
			CountedBy:       l.CountedBy,
			Method:          l.Method,
			Notes:           l.Notes,
			CountedAt:       l.CountedAt.Format(time.RFC3339),
		}
	}
	return SessionDTO{
		ID:        string(s.ID),
		Area:      s.Area,
		Status:    string(s.Status),
		Notes:     s.Notes,
		StartedAt: s.StartedAt.Format(time.RFC3339),
		ClosedAt:  timePtr(s.ClosedAt),
		Lines:     lines,
	}
}

func toAnalysisDTO(a counting.VarianceAnalysis) AnalysisDTO {
	return AnalysisDTO{
		ItemID:              string(a.ItemID),
		TheoreticalQuantity: a.TheoreticalQuantity.String(),
		TheoreticalValue:    a.TheoreticalValue.StringFixed(2),
		ActualQuantity:      a.ActualQuantity.String(),
		ActualValue:         a.ActualValue.StringFixed(2),
		Quantity:            toComparisonDTO(a.Quantity),
		Value:               toComparisonDTO(a.Value),
		Trend:               string(a.Trend),
		Scores: ScoresDTO{
			Theft:          a.Scores.Theft.String(),
			PortionControl: a.Scores.PortionControl.String(),
			Spoilage:       a.Scores.Spoilage.String(),
		},
		PossibleCauses:  a.PossibleCauses,
		Recommendations: a.Recommendations,
	}
}

func toReportDTO(r *counting.VarianceReport, analyses []counting.VarianceAnalysis) ReportDTO {
	dto := ReportDTO{
		ID:                        string(r.ID),
		SessionID:                 string(r.SessionID),
		PeriodStart:               r.PeriodStart.Format(time.RFC3339),
		PeriodEnd:                 r.PeriodEnd.Format(time.RFC3339),
		TotalItems:                r.TotalItems,
		ItemsWithVariance:         r.ItemsWithVariance,
		TotalValueVariance:        r.TotalValueVariance.StringFixed(2),
		AverageVariancePct:        r.AverageVariancePct.StringFixed(2),
		SuspectedTheftCount:       r.SuspectedTheftCount,
		PortionControlIssuesCount: r.PortionControlIssuesCount,
		SpoilageRelatedCount:      r.SpoilageRelatedCount,
		CreatedAt:                 r.CreatedAt.Format(time.RFC3339),
	}
	for _, a := range analyses {
		dto.Analyses = append(dto.Analyses, toAnalysisDTO(a))
	}
	return dto
}

func toDetectionDTO(d *waste.Detection) DetectionDTO {
	return DetectionDTO{
		ID:            string(d.ID),
		ItemID:        string(d.ItemID),
		WasteType:     string(d.WasteType),
		ExpectedUsage: d.ExpectedUsage.String(),
		ActualUsage:   d.ActualUsage.String(),
		WasteAmount:   d.WasteAmount.String(),
		WasteCost:     d.WasteCost.StringFixed(2),
		Confidence:    d.Confidence.String(),
		Metadata:      d.Metadata,
		Status:        string(d.Status),
		Notes:         d.Notes,
		DetectedAt:    d.DetectedAt.Format(time.RFC3339),
		ResolvedAt:    timePtr(d.ResolvedAt),
	}
}

func toRecommendationDTO(r *parlevel.Recommendation) RecommendationDTO {
	return RecommendationDTO{
		ID:             string(r.ID),
		ItemID:         string(r.ItemID),
		RecommendedPar: r.RecommendedPar.String(),
		SafetyStock:    r.SafetyStock.String(),
		Confidence:     r.Confidence.String(),
		Rationale:      r.Rationale,
		ValidFrom:      r.ValidFrom.Format(time.RFC3339),
		ValidTo:        timePtr(r.ValidTo),
		IsActive:       r.IsActive,
		CreatedAt:      r.CreatedAt.Format(time.RFC3339),
	}
}
