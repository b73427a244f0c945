package parlevel

import (
	"context"

	"github.com/tably/margin-engine/counting"
)

// =============================================================================
// RECOMMENDATION STORE - persistence interface
// =============================================================================

// RecommendationStore persists par-level recommendations.
//
// SupersedeRecommendation is the only write path that activates a
// recommendation. In a single transaction it deactivates the item's current
// active recommendation (setting its ValidTo to the newcomer's ValidFrom)
// and inserts the new one as active. If the deactivate step fails the insert
// must not happen; a half-applied supersession surfaces as
// ErrSupersessionFailed.
type RecommendationStore interface {
	SupersedeRecommendation(ctx context.Context, rec *Recommendation) error
	ActiveRecommendation(ctx context.Context, item counting.ItemID) (*Recommendation, error)
	ListRecommendations(ctx context.Context, item counting.ItemID) ([]*Recommendation, error)
}
