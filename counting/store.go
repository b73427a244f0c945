package counting

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PERSISTENCE INTERFACES
// =============================================================================

// ItemStore provides the catalog side of an analysis snapshot.
type ItemStore interface {
	SaveItem(ctx context.Context, item *InventoryItem) error
	GetItem(ctx context.Context, id ItemID) (*InventoryItem, error)
	ListItems(ctx context.Context) ([]*InventoryItem, error)

	SaveRecipe(ctx context.Context, r *Recipe) error
	ListRecipes(ctx context.Context) ([]*Recipe, error)
}

// SessionStore persists count sessions, their lines, and the variance
// reports produced from them.
//
// AppendLine and CloseSession enforce the session lifecycle at the storage
// layer too: both fail with ErrSessionClosed on non-active sessions, so a
// stale in-memory CountSession cannot sneak a line past a concurrent close.
//
// SaveReport writes the report and all of its analyses atomically; readers
// never observe a report without its per-item rows.
type SessionStore interface {
	CreateSession(ctx context.Context, s *CountSession) error
	GetSession(ctx context.Context, id SessionID) (*CountSession, error)
	ListSessions(ctx context.Context, status SessionStatus) ([]*CountSession, error)
	AppendLine(ctx context.Context, id SessionID, line CountLine) error
	CloseSession(ctx context.Context, id SessionID, at time.Time) error
	CancelSession(ctx context.Context, id SessionID, at time.Time) error

	SaveReport(ctx context.Context, r *VarianceReport, analyses []VarianceAnalysis) error
	GetReport(ctx context.Context, id ReportID) (*VarianceReport, []VarianceAnalysis, error)
	ListReports(ctx context.Context) ([]*VarianceReport, error)

	// HistoricalVariancePcts returns the item's past quantity variance
	// percentages, most-recent-last, at most limit entries. Analyses with a
	// nil percentage (zero theoretical baseline) are skipped.
	HistoricalVariancePcts(ctx context.Context, item ItemID, limit int) ([]decimal.Decimal, error)
}
