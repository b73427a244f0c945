package waste

import (
	"context"
	"time"
)

// =============================================================================
// DETECTION STORE - persistence interface
// =============================================================================

// DetectionFilter narrows ListDetections. Zero values mean "any".
type DetectionFilter struct {
	ItemID ItemID
	Status Status
}

// DetectionStore persists waste-detection events.
//
// UpdateDetectionStatus is guarded: the write only applies when the stored
// status still equals from, so two operators racing a transition cannot
// both win. A guard miss returns ErrInvalidTransition.
type DetectionStore interface {
	SaveDetection(ctx context.Context, d *Detection) error
	GetDetection(ctx context.Context, id DetectionID) (*Detection, error)
	ListDetections(ctx context.Context, f DetectionFilter) ([]*Detection, error)
	UpdateDetectionStatus(ctx context.Context, id DetectionID, from, to Status, at time.Time) error
}
