/*
errors.go - Centralized error types for the reconciliation engine

PURPOSE:
  All error kinds in one place. Domain packages (counting, waste, parlevel)
  wrap these sentinels with additional context rather than defining their own.

ERROR TAXONOMY:
  InvalidInput         Negative/malformed line item or unknown enum text.
                       Rejected on ingress, no partial state produced.
  ConcurrencyConflict  Optimistic-lock failure on a statement save. The
                       caller must re-read and retry.
  PeriodLocked         Write attempted against a closed accounting period.
  SessionClosed        Count line appended to a non-active count session.
  SupersessionFailed   Atomic par-recommendation swap could not complete;
                       the whole operation is rolled back.
  InvalidTransition    Waste-detection status moved along a disallowed edge.
  NotFound             Referenced entity does not exist.

  Division by zero is NOT in this list: a zero-denominator percentage is
  surfaced as a nil metric field (see money.go PercentOf), never an error.

  Nothing here is fatal to the process. Every kind is per-request and is
  surfaced synchronously with enough detail to correct and resubmit.

SEE ALSO:
  - builder.go: produces InvalidInputError with the offending field
  - store interfaces in each domain package: produce the persistence errors
*/
package finance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is returned for negative or malformed line items and
	// for unknown enum text at the boundary.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConcurrencyConflict is returned when optimistic locking detects a
	// concurrent statement update. Retry with a fresh read.
	ErrConcurrencyConflict = errors.New("concurrent modification detected")

	// ErrPeriodLocked is returned when writing to a locked statement.
	ErrPeriodLocked = errors.New("accounting period is locked")

	// ErrSessionClosed is returned when appending to a closed count session.
	ErrSessionClosed = errors.New("count session is closed")

	// ErrSupersessionFailed is returned when the atomic par-recommendation
	// swap cannot complete. No partial state is visible.
	ErrSupersessionFailed = errors.New("recommendation supersession failed")

	// ErrInvalidTransition is returned for disallowed detection status moves.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotFound is returned when a referenced entity doesn't exist.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidInputError names the offending field so the caller can correct it.
// Value is optional and may hold whatever shape the field carries (a decimal
// amount, an enum string, a count); it is omitted from the message when nil.
type InvalidInputError struct {
	Field  string
	Value  any
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid input: %s (%s)", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid input: %s = %v (%s)", e.Field, e.Value, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// ConcurrencyConflictError reports the version mismatch on a statement save.
type ConcurrencyConflictError struct {
	Statement       StatementID
	ExpectedVersion int64
	ActualVersion   int64
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("statement %s: expected version %d, found %d",
		e.Statement, e.ExpectedVersion, e.ActualVersion)
}

func (e *ConcurrencyConflictError) Unwrap() error { return ErrConcurrencyConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the operation might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrPeriodLocked) ||
		errors.Is(err, ErrSessionClosed) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
