/*
Package parlevel computes stocking recommendations from observed usage.

PURPOSE:
  Given an item's daily usage history, supplier lead time, and a target
  service level, produce a recommended par quantity with safety stock and a
  confidence grade. Recommendations are versioned: at most one is active per
  item at any time, and issuing a new one closes out the old one.

KEY CONCEPTS IN THIS FILE (types.go):
  - Recommendation: the stored artifact, with validity window and active flag
  - Rationale: the inputs and intermediates behind the numbers, kept so a
    manager can see WHY the par is what it is

SEE ALSO:
  - recommender.go: the safety-stock math
  - store.go: supersession semantics
*/
package parlevel

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tably/margin-engine/counting"
)

type RecommendationID string

// Recommendation is one par-level proposal for an item.
//
// Supersession invariant: for each item at most one recommendation has
// IsActive == true. ValidTo is nil while active and set to the successor's
// ValidFrom when superseded, so validity windows tile without overlap.
type Recommendation struct {
	ID     RecommendationID
	ItemID counting.ItemID

	RecommendedPar decimal.Decimal
	SafetyStock    decimal.Decimal

	// Confidence in [0,1], higher with more observations and steadier usage.
	Confidence decimal.Decimal

	// Rationale is an opaque audit payload echoed back verbatim.
	Rationale map[string]any

	ValidFrom time.Time
	ValidTo   *time.Time
	IsActive  bool

	CreatedAt time.Time
}
