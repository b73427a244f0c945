package finance_test

import (
	"errors"
	"testing"
	"time"

	"github.com/tably/margin-engine/finance"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

func targets() finance.TargetConfig {
	return finance.TargetConfig{
		FoodCostPct:     finance.NewPercent(30),
		BeverageCostPct: finance.NewPercent(22),
		LaborCostPct:    finance.NewPercent(30),
		PrimeCostPct:    finance.NewPercent(60),
		NetProfitPct:    finance.NewPercent(10),
	}
}

func period() finance.PeriodKey {
	return finance.PeriodKey{Restaurant: "r-1", Year: 2026, Month: time.March}
}

// healthyMonth is a statement that lands close to its targets.
func healthyMonth() finance.StatementInput {
	return finance.StatementInput{
		Period: period(),

		FoodSales:     finance.LineItem{Actual: finance.NewMoney(80000), Budget: finance.NewMoney(80000)},
		BeverageSales: finance.LineItem{Actual: finance.NewMoney(20000), Budget: finance.NewMoney(20000)},

		ActualFoodCost:        finance.NewMoney(22000),
		ActualBeverageCost:    finance.NewMoney(4000),
		BudgetFoodCostPct:     finance.NewPercent(30),
		BudgetBeverageCostPct: finance.NewPercent(22),

		KitchenLabor:    finance.LineItem{Actual: finance.NewMoney(14000), Budget: finance.NewMoney(14000)},
		FOHLabor:        finance.LineItem{Actual: finance.NewMoney(9000), Budget: finance.NewMoney(9000)},
		ManagementLabor: finance.LineItem{Actual: finance.NewMoney(5000), Budget: finance.NewMoney(5000)},
		PayrollTaxes:    finance.LineItem{Actual: finance.NewMoney(2000), Budget: finance.NewMoney(2000)},

		Rent:      finance.LineItem{Actual: finance.NewMoney(9000), Budget: finance.NewMoney(9000)},
		Utilities: finance.LineItem{Actual: finance.NewMoney(2200), Budget: finance.NewMoney(2200)},
		Marketing: finance.LineItem{Actual: finance.NewMoney(1500), Budget: finance.NewMoney(1500)},
		Supplies:  finance.LineItem{Actual: finance.NewMoney(1800), Budget: finance.NewMoney(1800)},
		Insurance: finance.LineItem{Actual: finance.NewMoney(1200), Budget: finance.NewMoney(1200)},

		Targets: targets(),
	}
}

// =============================================================================
// DERIVATION TESTS
// =============================================================================

func TestBuild_Subtotals(t *testing.T) {
	// GIVEN: a complete month of inputs
	b := finance.NewStatementBuilder()
	in := healthyMonth()

	// WHEN: building the statement
	d, err := b.Build(in)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// THEN: every subtotal is the exact sum of its lines
	if !d.Actual.GrossRevenue.Equal(finance.NewMoney(100000)) {
		t.Errorf("gross revenue = %s, want $100000.00", d.Actual.GrossRevenue)
	}
	if !d.Actual.COGS.Equal(finance.NewMoney(26000)) {
		t.Errorf("cogs = %s, want $26000.00", d.Actual.COGS)
	}
	if !d.Actual.LaborTotal.Equal(finance.NewMoney(30000)) {
		t.Errorf("labor = %s, want $30000.00", d.Actual.LaborTotal)
	}
	if !d.Actual.PrimeCost.Equal(finance.NewMoney(56000)) {
		t.Errorf("prime cost = %s, want $56000.00", d.Actual.PrimeCost)
	}
	if !d.Actual.OperatingExpenseTotal.Equal(finance.NewMoney(15700)) {
		t.Errorf("opex = %s, want $15700.00", d.Actual.OperatingExpenseTotal)
	}

	// AND: net profit closes the equation exactly
	// 100000 - 26000 - 30000 - 15700 = 28300
	if !d.Actual.NetProfit.Equal(finance.NewMoney(28300)) {
		t.Errorf("net profit = %s, want $28300.00", d.Actual.NetProfit)
	}
}

func TestBuild_BudgetCOGSIsPctOfBudgetedSales(t *testing.T) {
	// GIVEN: budget food 30% of $80000, beverage 22% of $20000
	b := finance.NewStatementBuilder()
	d, err := b.Build(healthyMonth())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// THEN: budget COGS = 24000 + 4400 = 28400, never an absolute entry
	if !d.Budget.COGS.Equal(finance.NewMoney(28400)) {
		t.Errorf("budget cogs = %s, want $28400.00", d.Budget.COGS)
	}
}

func TestBuild_PercentagesNilOnZeroRevenue(t *testing.T) {
	// GIVEN: a month with costs but zero revenue on both sides
	b := finance.NewStatementBuilder()
	in := finance.StatementInput{
		Period:       period(),
		Rent:         finance.LineItem{Actual: finance.NewMoney(9000)},
		KitchenLabor: finance.LineItem{Actual: finance.NewMoney(5000)},
		Targets:      targets(),
	}

	// WHEN
	d, err := b.Build(in)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// THEN: the statement is produced, percentage metrics are nil
	if d.Actual.COGSPct != nil || d.Actual.NetProfitPct != nil {
		t.Error("expected nil percentages on a zero-revenue month")
	}
	// Dollar math still holds: net profit = -14000.
	if !d.Actual.NetProfit.Equal(finance.NewMoney(-14000)) {
		t.Errorf("net profit = %s, want -$14000.00", d.Actual.NetProfit)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	// GIVEN: identical inputs built twice
	b := finance.NewStatementBuilder()
	d1, err1 := b.Build(healthyMonth())
	d2, err2 := b.Build(healthyMonth())
	if err1 != nil || err2 != nil {
		t.Fatalf("Build failed: %v %v", err1, err2)
	}

	// THEN: identical derived output
	if !d1.Actual.NetProfit.Equal(d2.Actual.NetProfit) ||
		d1.Health.Score != d2.Health.Score ||
		d1.NetProfit.Severity != d2.NetProfit.Severity {
		t.Error("Build is not deterministic")
	}
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestBuild_NegativeInputRejected(t *testing.T) {
	// GIVEN: a negative labor entry
	b := finance.NewStatementBuilder()
	in := healthyMonth()
	in.FOHLabor.Actual = finance.NewMoney(-100)

	// WHEN
	_, err := b.Build(in)

	// THEN: InvalidInputError naming the field, no partial statement
	if !errors.Is(err, finance.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	var iie *finance.InvalidInputError
	if !errors.As(err, &iie) || iie.Field != "foh_labor.actual" {
		t.Errorf("error does not name the offending field: %v", err)
	}
}

func TestBuild_InvalidPeriodRejected(t *testing.T) {
	b := finance.NewStatementBuilder()
	in := healthyMonth()
	in.Period.Month = 13

	if _, err := b.Build(in); !errors.Is(err, finance.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

// =============================================================================
// HEALTH TESTS
// =============================================================================

func TestBuild_HealthyMonthScoresExcellent(t *testing.T) {
	// GIVEN: a month hitting every target
	b := finance.NewStatementBuilder()
	d, err := b.Build(healthyMonth())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// THEN: perfect score, no alerts
	if d.Health.Score != 100 {
		t.Errorf("score = %d, want 100", d.Health.Score)
	}
	if d.Health.Overall != finance.RatingExcellent {
		t.Errorf("overall = %s, want excellent", d.Health.Overall)
	}
	if len(d.Health.Alerts) != 0 {
		t.Errorf("alerts = %v, want none", d.Health.Alerts)
	}
}

func TestBuild_CostOverrunsDragScoreDown(t *testing.T) {
	// GIVEN: food cost blown to 36% of revenue and revenue 10% under budget
	b := finance.NewStatementBuilder()
	in := healthyMonth()
	in.FoodSales.Actual = finance.NewMoney(72000)       // revenue down
	in.BeverageSales.Actual = finance.NewMoney(18000)
	in.ActualFoodCost = finance.NewMoney(30000)         // cogs up
	in.ActualBeverageCost = finance.NewMoney(5000)

	// WHEN
	d, err := b.Build(in)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// THEN: deductions land (revenue -15, cogs -20 at minimum) and alerts fire
	if d.Health.Score > 65 {
		t.Errorf("score = %d, want <= 65", d.Health.Score)
	}
	if d.Health.Overall == finance.RatingExcellent {
		t.Error("overall should not be excellent with cost overruns")
	}
	if len(d.Health.Alerts) == 0 {
		t.Error("expected alerts for revenue and food cost")
	}
}
