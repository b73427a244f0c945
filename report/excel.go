/*
Package report renders statements into spreadsheet workbooks.

PURPOSE:
  Owners still review the month in a spreadsheet. This package turns a
  computed statement into an .xlsx with the familiar P&L layout: revenue,
  COGS, labor, prime cost, operating expenses, net profit, each line showing
  actual, budget, variance, and variance percent.
*/
package report

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/tably/margin-engine/finance"
)

const sheetName = "P&L"

// line is one rendered statement row.
type line struct {
	label  string
	actual finance.Money
	budget finance.Money
	bold   bool
}

// Generate renders a statement workbook and returns the xlsx bytes.
func Generate(st *finance.Statement) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 12},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDEBF7"}},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("bold style: %w", err)
	}
	currencyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 177}) // $#,##0.00
	if err != nil {
		return nil, fmt.Errorf("currency style: %w", err)
	}

	in, d := st.Input, st.Derived

	if err := f.SetCellValue(sheetName, "A1",
		fmt.Sprintf("P&L Statement - %s", in.Period.String())); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheetName, "A1", "E1", headerStyle); err != nil {
		return nil, err
	}

	for col, h := range []string{"Line", "Actual", "Budget", "Variance", "Variance %"} {
		cell, _ := excelize.CoordinatesToCellName(col+1, 3)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(sheetName, "A3", "E3", boldStyle); err != nil {
		return nil, err
	}

	row := 4
	writeSection := func(title string, lines []line) error {
		cell := fmt.Sprintf("A%d", row)
		if err := f.SetCellValue(sheetName, cell, title); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheetName, cell, cell, boldStyle); err != nil {
			return err
		}
		row++
		for _, l := range lines {
			variance := l.actual.Sub(l.budget)
			if err := f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), l.label); err != nil {
				return err
			}
			av, _ := l.actual.Value.Float64()
			bv, _ := l.budget.Value.Float64()
			vv, _ := variance.Value.Float64()
			f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), av)
			f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), bv)
			f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), vv)
			if pct := finance.PercentOf(variance, l.budget); pct != nil {
				f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), pct.String())
			} else {
				f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), "n/a")
			}
			if err := f.SetCellStyle(sheetName,
				fmt.Sprintf("B%d", row), fmt.Sprintf("D%d", row), currencyStyle); err != nil {
				return err
			}
			if l.bold {
				if err := f.SetCellStyle(sheetName,
					fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), boldStyle); err != nil {
					return err
				}
			}
			row++
		}
		row++ // blank spacer
		return nil
	}

	sections := []struct {
		title string
		lines []line
	}{
		{"Revenue", []line{
			{label: "Food Sales", actual: in.FoodSales.Actual, budget: in.FoodSales.Budget},
			{label: "Beverage Sales", actual: in.BeverageSales.Actual, budget: in.BeverageSales.Budget},
			{label: "Other Revenue", actual: in.OtherRevenue.Actual, budget: in.OtherRevenue.Budget},
			{label: "Gross Revenue", actual: d.Actual.GrossRevenue, budget: d.Budget.GrossRevenue, bold: true},
		}},
		{"Cost of Goods Sold", []line{
			{label: "Food Cost", actual: in.ActualFoodCost,
				budget: in.FoodSales.Budget.MulPercent(in.BudgetFoodCostPct)},
			{label: "Beverage Cost", actual: in.ActualBeverageCost,
				budget: in.BeverageSales.Budget.MulPercent(in.BudgetBeverageCostPct)},
			{label: "Total COGS", actual: d.Actual.COGS, budget: d.Budget.COGS, bold: true},
		}},
		{"Labor", []line{
			{label: "Kitchen Labor", actual: in.KitchenLabor.Actual, budget: in.KitchenLabor.Budget},
			{label: "FOH Labor", actual: in.FOHLabor.Actual, budget: in.FOHLabor.Budget},
			{label: "Management", actual: in.ManagementLabor.Actual, budget: in.ManagementLabor.Budget},
			{label: "Payroll Taxes", actual: in.PayrollTaxes.Actual, budget: in.PayrollTaxes.Budget},
			{label: "Total Labor", actual: d.Actual.LaborTotal, budget: d.Budget.LaborTotal, bold: true},
		}},
		{"Prime Cost", []line{
			{label: "Prime Cost", actual: d.Actual.PrimeCost, budget: d.Budget.PrimeCost, bold: true},
		}},
		{"Operating Expenses", []line{
			{label: "Rent", actual: in.Rent.Actual, budget: in.Rent.Budget},
			{label: "Utilities", actual: in.Utilities.Actual, budget: in.Utilities.Budget},
			{label: "Marketing", actual: in.Marketing.Actual, budget: in.Marketing.Budget},
			{label: "Repairs & Maintenance", actual: in.Repairs.Actual, budget: in.Repairs.Budget},
			{label: "Supplies", actual: in.Supplies.Actual, budget: in.Supplies.Budget},
			{label: "Insurance", actual: in.Insurance.Actual, budget: in.Insurance.Budget},
			{label: "Credit Card Fees", actual: in.CreditCardFees.Actual, budget: in.CreditCardFees.Budget},
			{label: "Other", actual: in.OtherExpenses.Actual, budget: in.OtherExpenses.Budget},
			{label: "Total OpEx", actual: d.Actual.OperatingExpenseTotal, budget: d.Budget.OperatingExpenseTotal, bold: true},
		}},
		{"Bottom Line", []line{
			{label: "Net Profit", actual: d.Actual.NetProfit, budget: d.Budget.NetProfit, bold: true},
		}},
	}
	for _, s := range sections {
		if err := writeSection(s.title, s.lines); err != nil {
			return nil, fmt.Errorf("write section %s: %w", s.title, err)
		}
	}

	// Health summary block.
	f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), "Health")
	f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), boldStyle)
	row++
	f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), "Overall")
	f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), string(d.Health.Overall))
	f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), d.Health.Score)
	row++
	for _, a := range d.Health.Alerts {
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), a.Category)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), a.Message)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), a.Impact)
		row++
	}

	if err := f.SetColWidth(sheetName, "A", "A", 24); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(sheetName, "B", "E", 14); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
