/*
store.go - Persistence interface for statements

PURPOSE:
  Defines the contract between statement logic and the database. Two
  implementations exist: store/sqlite (production) and store/memory
  (tests/dev).

CONCURRENCY CONTRACT:
  SaveStatement is a whole-row optimistic lock:
    - Version 0 inserts a new statement (stored version becomes 1).
    - Version N updates only if the stored version is still N, then
      increments it. A mismatch fails with ErrConcurrencyConflict and the
      caller retries with a fresh read.
  Writes against a locked statement fail with ErrPeriodLocked, including
  the save that races a lock.

SEE ALSO:
  - store/sqlite/sqlite.go: production implementation
  - store/memory/memory.go: in-memory implementation
*/
package finance

import "context"

// StatementStore persists monthly statements.
type StatementStore interface {
	// SaveStatement inserts (Version 0) or updates (Version must match)
	// a statement. On success the statement's Version is advanced.
	SaveStatement(ctx context.Context, s *Statement) error

	// GetStatement returns the statement for a period, or ErrNotFound.
	GetStatement(ctx context.Context, key PeriodKey) (*Statement, error)

	// LockStatement closes the period. Idempotent.
	LockStatement(ctx context.Context, key PeriodKey) error

	// ListStatements returns all statements for a restaurant, newest first.
	ListStatements(ctx context.Context, restaurant RestaurantID) ([]*Statement, error)
}
