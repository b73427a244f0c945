/*
Package counting provides physical-count capture and theoretical-vs-actual
variance analysis.

PURPOSE:
  Operators count stock in a session; the engine computes what SHOULD have
  been on hand from recipe definitions and sales volume, compares the two
  per item, and rolls the results up into a variance report.

KEY CONCEPTS IN THIS FILE (types.go):
  - InventoryItem: the counted thing, with unit cost and category
  - Recipe/Ingredient: quantity of each item consumed per serving
  - SalesVolume: units sold per recipe over the count window
  - TheoreticalUsage: recipe quantity x units sold, summed per item

SEE ALSO:
  - session.go: count-session lifecycle
  - analysis.go: per-item analysis and report aggregation
*/
package counting

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ItemID string
type RecipeID string
type SessionID string
type ReportID string

// =============================================================================
// INVENTORY ITEM
// =============================================================================

type InventoryItem struct {
	ID          ItemID
	Name        string
	Category    string
	Unit        string // "lbs", "each", "oz", ...
	CostPerUnit decimal.Decimal
}

// perishableCategories marks the spoilage-prone stock groups.
var perishableCategories = map[string]bool{
	"produce": true,
	"dairy":   true,
	"meat":    true,
	"seafood": true,
	"bakery":  true,
}

// Perishable reports whether the item's category is spoilage-prone.
func (i InventoryItem) Perishable() bool {
	return perishableCategories[i.Category]
}

// =============================================================================
// RECIPES AND SALES - the theoretical side
// =============================================================================

// Ingredient is one line of a recipe: how much of an item one serving uses.
type Ingredient struct {
	ItemID             ItemID
	QuantityPerServing decimal.Decimal
	Unit               string
}

type Recipe struct {
	ID          RecipeID
	Name        string
	Ingredients []Ingredient
}

// SalesVolume is units sold per recipe over the analysis window.
type SalesVolume map[RecipeID]decimal.Decimal

// TheoreticalUsage computes expected consumption per item:
// sum over recipes of (ingredient quantity per serving x units sold).
func TheoreticalUsage(recipes []Recipe, sales SalesVolume) map[ItemID]decimal.Decimal {
	usage := make(map[ItemID]decimal.Decimal)
	for _, r := range recipes {
		sold, ok := sales[r.ID]
		if !ok || sold.IsZero() {
			continue
		}
		for _, ing := range r.Ingredients {
			usage[ing.ItemID] = usage[ing.ItemID].Add(ing.QuantityPerServing.Mul(sold))
		}
	}
	return usage
}
