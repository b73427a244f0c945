/*
statement.go - Monthly P&L statement model

PURPOSE:
  Defines the input and derived shapes of a monthly profit-and-loss
  statement. The input side is what operators enter (actual and budget
  dollars per line, target percentages); the derived side is everything the
  engine computes (subtotals, percentages-of-revenue, comparisons, health).

LIFECYCLE:
  1. Period opens: statement created with benchmark target percentages and
     zeroed lines.
  2. Through the month: operators enter actuals; every save carries the
     version they read (whole-row optimistic lock) and recomputes the
     derived side.
  3. Period closes: Locked is set. Further writes fail with ErrPeriodLocked.

KEY INVARIANT:
  Actual COGS is an absolute dollar figure; budget COGS is expressed as a
  percentage of the corresponding budgeted revenue line, never an absolute.

SEE ALSO:
  - builder.go: validation and derivation
  - health.go: health ratings computed from the derived side
*/
package finance

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RestaurantID string
type StatementID string

// =============================================================================
// INPUT SIDE - what operators enter
// =============================================================================

// LineItem pairs an actual dollar value with its budgeted counterpart.
// Both must be non-negative.
type LineItem struct {
	Actual Money
	Budget Money
}

// TargetConfig holds the target percentages a statement is judged against.
// Defaults come from the benchmark package when a period opens.
type TargetConfig struct {
	FoodCostPct     Percent
	BeverageCostPct Percent
	LaborCostPct    Percent
	PrimeCostPct    Percent
	NetProfitPct    Percent
}

// StatementInput is the full line-item set for one period.
// A missing revenue line is a zero value, not an error.
type StatementInput struct {
	Period PeriodKey

	// Revenue
	FoodSales     LineItem
	BeverageSales LineItem
	OtherRevenue  LineItem

	// COGS: actual absolute dollars, budget as pct of budgeted revenue
	ActualFoodCost        Money
	ActualBeverageCost    Money
	BudgetFoodCostPct     Percent
	BudgetBeverageCostPct Percent

	// Labor
	KitchenLabor    LineItem
	FOHLabor        LineItem
	ManagementLabor LineItem
	PayrollTaxes    LineItem

	// Operating expenses
	Rent           LineItem
	Utilities      LineItem
	Marketing      LineItem
	Repairs        LineItem
	Supplies       LineItem
	Insurance      LineItem
	CreditCardFees LineItem
	OtherExpenses  LineItem

	Targets TargetConfig
}

// =============================================================================
// DERIVED SIDE - what the engine computes
// =============================================================================

// SideTotals holds the computed subtotals for one side (actual or budget).
// Percentage fields are nil when gross revenue for that side is zero.
type SideTotals struct {
	GrossRevenue          Money
	COGS                  Money
	LaborTotal            Money
	PrimeCost             Money
	OperatingExpenseTotal Money
	NetProfit             Money

	COGSPct             *Percent
	LaborPct            *Percent
	PrimeCostPct        *Percent
	OperatingExpensePct *Percent
	NetProfitPct        *Percent
}

// DerivedStatement is the fully-computed statement: both sides, the
// actual-vs-budget comparisons per section, and the health analysis.
type DerivedStatement struct {
	Actual SideTotals
	Budget SideTotals

	Revenue           Comparison
	COGS              Comparison
	Labor             Comparison
	PrimeCost         Comparison
	OperatingExpenses Comparison
	NetProfit         Comparison

	Health HealthAnalysis
}

// =============================================================================
// STATEMENT - the persisted record
// =============================================================================

type Statement struct {
	ID      StatementID
	Input   StatementInput
	Derived DerivedStatement

	// Version is the optimistic-concurrency token. A save must carry the
	// version it read; a mismatch fails with ErrConcurrencyConflict.
	Version int64

	// Locked closes the period. Writes against a locked statement fail
	// with ErrPeriodLocked.
	Locked bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
