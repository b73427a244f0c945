/*
Package waste provides the rule-based waste/theft classifier and the
waste-detection event lifecycle.

PURPOSE:
  Turns per-item variance observations into three independent probability
  scores (theft, portion control, spoilage) and records waste events with a
  manually-driven investigation lifecycle.

KEY CONCEPTS IN THIS FILE (types.go):
  - Detection: A waste event tied to an inventory item
  - WasteType: Closed enum of waste causes
  - Status:    The investigation lifecycle with an explicit transition table

LIFECYCLE:
  detected -> investigating -> confirmed | false_positive -> resolved

  Nothing transitions automatically out of detected; every move is a manual
  call. Disallowed edges fail with ErrInvalidTransition.

SEE ALSO:
  - classifier.go: the scoring rules
  - store.go: persistence interface
*/
package waste

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tably/margin-engine/finance"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type DetectionID string
type ItemID string

// =============================================================================
// WASTE TYPE - closed enum, validated on ingress
// =============================================================================

type WasteType string

const (
	WasteOverproduction WasteType = "overproduction"
	WasteSpoilage       WasteType = "spoilage"
	WastePortionControl WasteType = "portion_control"
	WasteTheft          WasteType = "theft"
	WasteUnknown        WasteType = "unknown"
)

// ParseWasteType rejects unknown text rather than accepting it silently.
func ParseWasteType(s string) (WasteType, error) {
	switch WasteType(s) {
	case WasteOverproduction, WasteSpoilage, WastePortionControl, WasteTheft, WasteUnknown:
		return WasteType(s), nil
	}
	return "", &finance.InvalidInputError{Field: "waste_type", Reason: "unknown value " + s}
}

// =============================================================================
// STATUS - lifecycle with explicit transition table
// =============================================================================

type Status string

const (
	StatusDetected      Status = "detected"
	StatusInvestigating Status = "investigating"
	StatusConfirmed     Status = "confirmed"
	StatusFalsePositive Status = "false_positive"
	StatusResolved      Status = "resolved"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusDetected, StatusInvestigating, StatusConfirmed, StatusFalsePositive, StatusResolved:
		return Status(s), nil
	}
	return "", &finance.InvalidInputError{Field: "status", Reason: "unknown value " + s}
}

// allowedTransitions is the full edge set of the lifecycle.
var allowedTransitions = map[Status][]Status{
	StatusDetected:      {StatusInvestigating},
	StatusInvestigating: {StatusConfirmed, StatusFalsePositive},
	StatusConfirmed:     {StatusResolved},
	StatusFalsePositive: {StatusResolved},
	StatusResolved:      {},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// =============================================================================
// DETECTION - a single waste event
// =============================================================================

type Detection struct {
	ID     DetectionID
	ItemID ItemID

	// Optional links back to the triggering sale/recipe.
	SalesEventID string
	RecipeID     string

	WasteType WasteType

	ExpectedUsage decimal.Decimal
	ActualUsage   decimal.Decimal

	// WasteAmount = actual - expected, clamped at zero.
	WasteAmount decimal.Decimal
	WasteCost   decimal.Decimal

	// Confidence 0-100 carried over from the dominant classifier score.
	Confidence decimal.Decimal

	// Metadata is an opaque pass-through payload; the engine never
	// interprets it.
	Metadata map[string]any

	Status     Status
	Notes      string
	DetectedAt time.Time
	ResolvedAt *time.Time
}

// NewDetection builds a detection event from observed vs expected usage.
// Waste amount is clamped non-negative; cost is amount x unit cost.
func NewDetection(id DetectionID, item ItemID, wasteType WasteType,
	expected, actual, unitCost decimal.Decimal, confidence decimal.Decimal,
	detectedAt time.Time) *Detection {

	amount := actual.Sub(expected)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return &Detection{
		ID:            id,
		ItemID:        item,
		WasteType:     wasteType,
		ExpectedUsage: expected,
		ActualUsage:   actual,
		WasteAmount:   amount,
		WasteCost:     finance.RoundHalfUp(amount.Mul(unitCost), 2),
		Confidence:    confidence,
		Status:        StatusDetected,
		DetectedAt:    detectedAt,
	}
}

// TransitionTo moves the detection along an allowed edge, stamping
// ResolvedAt when it reaches resolved.
func (d *Detection) TransitionTo(to Status, at time.Time) error {
	if !CanTransition(d.Status, to) {
		return &TransitionError{Detection: d.ID, From: d.Status, To: to}
	}
	d.Status = to
	if to == StatusResolved {
		t := at
		d.ResolvedAt = &t
	}
	return nil
}

// TransitionError reports a disallowed lifecycle move.
type TransitionError struct {
	Detection DetectionID
	From      Status
	To        Status
}

func (e *TransitionError) Error() string {
	return "detection " + string(e.Detection) + ": cannot transition " +
		string(e.From) + " -> " + string(e.To)
}

func (e *TransitionError) Unwrap() error { return finance.ErrInvalidTransition }
