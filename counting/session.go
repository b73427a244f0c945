/*
session.go - Count-session lifecycle

PURPOSE:
  A CountSession is the unit of physical counting: an operator opens one for
  an area, appends count lines as they work through the shelves, and closes
  it. The session is append-only while active; once closed it is a frozen
  snapshot that variance analysis runs against.

INVARIANTS:
  - Lines may only be appended while Status == active.
  - Closing is terminal; a closed or cancelled session never reopens.
  - One line per item per session (a recount replaces nothing - it is
    rejected, the operator cancels and starts over).

SEE ALSO:
  - analysis.go: consumes closed sessions
  - store.go: persistence interface
*/
package counting

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tably/margin-engine/finance"
)

// =============================================================================
// SESSION STATUS
// =============================================================================

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

func ParseSessionStatus(s string) (SessionStatus, error) {
	switch SessionStatus(s) {
	case SessionActive, SessionCompleted, SessionCancelled:
		return SessionStatus(s), nil
	}
	return "", &finance.InvalidInputError{Field: "session_status", Reason: "unknown value " + s}
}

// =============================================================================
// COUNT SESSION
// =============================================================================

// CountLine is one physical count entry.
type CountLine struct {
	ItemID          ItemID
	CountedQuantity decimal.Decimal
	Unit            string
	CountedBy       string
	Method          string // "physical", "scale", "estimated"
	Notes           string
	CountedAt       time.Time
}

type CountSession struct {
	ID        SessionID
	Area      string // "kitchen", "bar", "storage", ...
	Status    SessionStatus
	Notes     string
	StartedAt time.Time
	ClosedAt  *time.Time
	Lines     []CountLine
}

func NewSession(id SessionID, area string, startedAt time.Time) *CountSession {
	return &CountSession{
		ID:        id,
		Area:      area,
		Status:    SessionActive,
		StartedAt: startedAt,
	}
}

// Append adds a count line. Fails on closed sessions, negative quantities,
// and duplicate items.
func (s *CountSession) Append(line CountLine) error {
	if s.Status != SessionActive {
		return finance.ErrSessionClosed
	}
	if line.CountedQuantity.IsNegative() {
		return &finance.InvalidInputError{
			Field: "counted_quantity", Value: line.CountedQuantity, Reason: "must be non-negative",
		}
	}
	for _, existing := range s.Lines {
		if existing.ItemID == line.ItemID {
			return &finance.InvalidInputError{
				Field: "item_id", Reason: "item already counted in this session",
			}
		}
	}
	s.Lines = append(s.Lines, line)
	return nil
}

// Close completes the session. Idempotent on completed sessions.
func (s *CountSession) Close(at time.Time) error {
	if s.Status == SessionCancelled {
		return finance.ErrSessionClosed
	}
	if s.Status == SessionCompleted {
		return nil
	}
	s.Status = SessionCompleted
	t := at
	s.ClosedAt = &t
	return nil
}

// Cancel abandons an active session.
func (s *CountSession) Cancel(at time.Time) error {
	if s.Status != SessionActive {
		return finance.ErrSessionClosed
	}
	s.Status = SessionCancelled
	t := at
	s.ClosedAt = &t
	return nil
}
