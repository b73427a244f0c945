/*
builder.go - P&L statement assembly

PURPOSE:
  Validates a statement's line-item inputs and derives every computed field:
  per-side subtotals, percentages-of-revenue, actual-vs-budget comparisons,
  and the health analysis.

DERIVATION (per side, actual and budget independently):
  grossRevenue = foodSales + beverageSales + otherRevenue
  cogs         = foodCost + beverageCost            (actual: entered dollars)
  budgetCogs   = budgetFoodSales * budgetFoodCostPct/100
               + budgetBeverageSales * budgetBeverageCostPct/100
  laborTotal   = kitchen + foh + management + payrollTaxes
  primeCost    = cogs + laborTotal
  opExTotal    = rent + utilities + marketing + repairs + supplies
               + insurance + ccFees + other
  netProfit    = grossRevenue - cogs - laborTotal - opExTotal

  Every percentage-of-revenue is nil when that side's gross revenue is zero.

VALIDATION:
  Any negative input dollar or percentage fails with InvalidInputError
  naming the field; no partial statement is produced. Missing lines are
  zero values and do not fail.

DETERMINISM:
  Build is a pure function of its input. Recomputing from identical inputs
  yields identical output; there is no clock, randomness, or shared state.

SEE ALSO:
  - variance.go: the Comparison type used for section comparisons
  - health.go: the health analysis appended to the derived statement
*/
package finance

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// BUILDER
// =============================================================================

// StatementBuilder derives statements under a configured tolerance.
type StatementBuilder struct {
	// TolerancePct forces small variances to within_tolerance.
	// Zero value means DefaultTolerancePct.
	TolerancePct decimal.Decimal
}

func NewStatementBuilder() *StatementBuilder {
	return &StatementBuilder{TolerancePct: DefaultTolerancePct}
}

func (b *StatementBuilder) tolerance() decimal.Decimal {
	if b.TolerancePct.IsZero() {
		return DefaultTolerancePct
	}
	return b.TolerancePct
}

// Build validates the input and computes the derived statement.
func (b *StatementBuilder) Build(in StatementInput) (DerivedStatement, error) {
	if err := in.Period.Validate(); err != nil {
		return DerivedStatement{}, err
	}
	if err := validateInput(in); err != nil {
		return DerivedStatement{}, err
	}

	actual := deriveSide(
		in.FoodSales.Actual, in.BeverageSales.Actual, in.OtherRevenue.Actual,
		in.ActualFoodCost.Add(in.ActualBeverageCost),
		[]Money{in.KitchenLabor.Actual, in.FOHLabor.Actual, in.ManagementLabor.Actual, in.PayrollTaxes.Actual},
		[]Money{in.Rent.Actual, in.Utilities.Actual, in.Marketing.Actual, in.Repairs.Actual,
			in.Supplies.Actual, in.Insurance.Actual, in.CreditCardFees.Actual, in.OtherExpenses.Actual},
	)

	budgetCOGS := in.FoodSales.Budget.MulPercent(in.BudgetFoodCostPct).
		Add(in.BeverageSales.Budget.MulPercent(in.BudgetBeverageCostPct))

	budget := deriveSide(
		in.FoodSales.Budget, in.BeverageSales.Budget, in.OtherRevenue.Budget,
		budgetCOGS,
		[]Money{in.KitchenLabor.Budget, in.FOHLabor.Budget, in.ManagementLabor.Budget, in.PayrollTaxes.Budget},
		[]Money{in.Rent.Budget, in.Utilities.Budget, in.Marketing.Budget, in.Repairs.Budget,
			in.Supplies.Budget, in.Insurance.Budget, in.CreditCardFees.Budget, in.OtherExpenses.Budget},
	)

	tol := b.tolerance()
	d := DerivedStatement{
		Actual:            actual,
		Budget:            budget,
		Revenue:           CompareMoney(budget.GrossRevenue, actual.GrossRevenue, tol),
		COGS:              CompareMoney(budget.COGS, actual.COGS, tol),
		Labor:             CompareMoney(budget.LaborTotal, actual.LaborTotal, tol),
		PrimeCost:         CompareMoney(budget.PrimeCost, actual.PrimeCost, tol),
		OperatingExpenses: CompareMoney(budget.OperatingExpenseTotal, actual.OperatingExpenseTotal, tol),
		NetProfit:         CompareMoney(budget.NetProfit, actual.NetProfit, tol),
	}
	d.Health = AnalyzeHealth(d, in.Targets)
	return d, nil
}

// =============================================================================
// DERIVATION
// =============================================================================

func deriveSide(food, beverage, other, cogs Money, labor, opEx []Money) SideTotals {
	s := SideTotals{
		GrossRevenue: food.Add(beverage).Add(other),
		COGS:         cogs,
	}

	for _, l := range labor {
		s.LaborTotal = s.LaborTotal.Add(l)
	}
	for _, e := range opEx {
		s.OperatingExpenseTotal = s.OperatingExpenseTotal.Add(e)
	}

	s.PrimeCost = s.COGS.Add(s.LaborTotal)
	s.NetProfit = s.GrossRevenue.Sub(s.COGS).Sub(s.LaborTotal).Sub(s.OperatingExpenseTotal)

	s.COGSPct = PercentOf(s.COGS, s.GrossRevenue)
	s.LaborPct = PercentOf(s.LaborTotal, s.GrossRevenue)
	s.PrimeCostPct = PercentOf(s.PrimeCost, s.GrossRevenue)
	s.OperatingExpensePct = PercentOf(s.OperatingExpenseTotal, s.GrossRevenue)
	s.NetProfitPct = PercentOf(s.NetProfit, s.GrossRevenue)
	return s
}

// =============================================================================
// VALIDATION
// =============================================================================

type namedValue struct {
	name  string
	value decimal.Decimal
}

func validateInput(in StatementInput) error {
	values := []namedValue{
		{"food_sales.actual", in.FoodSales.Actual.Value},
		{"food_sales.budget", in.FoodSales.Budget.Value},
		{"beverage_sales.actual", in.BeverageSales.Actual.Value},
		{"beverage_sales.budget", in.BeverageSales.Budget.Value},
		{"other_revenue.actual", in.OtherRevenue.Actual.Value},
		{"other_revenue.budget", in.OtherRevenue.Budget.Value},
		{"actual_food_cost", in.ActualFoodCost.Value},
		{"actual_beverage_cost", in.ActualBeverageCost.Value},
		{"budget_food_cost_pct", in.BudgetFoodCostPct.Value},
		{"budget_beverage_cost_pct", in.BudgetBeverageCostPct.Value},
		{"kitchen_labor.actual", in.KitchenLabor.Actual.Value},
		{"kitchen_labor.budget", in.KitchenLabor.Budget.Value},
		{"foh_labor.actual", in.FOHLabor.Actual.Value},
		{"foh_labor.budget", in.FOHLabor.Budget.Value},
		{"management_labor.actual", in.ManagementLabor.Actual.Value},
		{"management_labor.budget", in.ManagementLabor.Budget.Value},
		{"payroll_taxes.actual", in.PayrollTaxes.Actual.Value},
		{"payroll_taxes.budget", in.PayrollTaxes.Budget.Value},
		{"rent.actual", in.Rent.Actual.Value},
		{"rent.budget", in.Rent.Budget.Value},
		{"utilities.actual", in.Utilities.Actual.Value},
		{"utilities.budget", in.Utilities.Budget.Value},
		{"marketing.actual", in.Marketing.Actual.Value},
		{"marketing.budget", in.Marketing.Budget.Value},
		{"repairs.actual", in.Repairs.Actual.Value},
		{"repairs.budget", in.Repairs.Budget.Value},
		{"supplies.actual", in.Supplies.Actual.Value},
		{"supplies.budget", in.Supplies.Budget.Value},
		{"insurance.actual", in.Insurance.Actual.Value},
		{"insurance.budget", in.Insurance.Budget.Value},
		{"credit_card_fees.actual", in.CreditCardFees.Actual.Value},
		{"credit_card_fees.budget", in.CreditCardFees.Budget.Value},
		{"other_expenses.actual", in.OtherExpenses.Actual.Value},
		{"other_expenses.budget", in.OtherExpenses.Budget.Value},
		{"targets.food_cost_pct", in.Targets.FoodCostPct.Value},
		{"targets.beverage_cost_pct", in.Targets.BeverageCostPct.Value},
		{"targets.labor_cost_pct", in.Targets.LaborCostPct.Value},
		{"targets.prime_cost_pct", in.Targets.PrimeCostPct.Value},
		{"targets.net_profit_pct", in.Targets.NetProfitPct.Value},
	}

	for _, v := range values {
		if v.value.IsNegative() {
			return &InvalidInputError{Field: v.name, Value: v.value, Reason: "must be non-negative"}
		}
	}
	return nil
}
