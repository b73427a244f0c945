/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all persistence interfaces using SQLite. In production, the
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  finance.StatementStore:       Monthly P&L statements (versioned, lockable)
  counting.ItemStore:           Item and recipe catalog
  counting.SessionStore:        Count sessions, lines, variance reports
  waste.DetectionStore:         Waste-detection events with guarded status
  parlevel.RecommendationStore: Par recommendations with supersession

CONCURRENCY INVARIANTS ENFORCED HERE:
  - Statement saves are whole-row optimistic: UPDATE ... WHERE version = ?
    AND locked = 0, so a stale writer or a write racing a period lock
    changes zero rows and fails loudly.
  - Detection status updates are guarded compare-and-set on the current
    status.
  - Recommendation supersession (deactivate old + insert new) runs in one
    database transaction; at most one active row per item, backed by a
    partial unique index.

VALUE ENCODING:
  Decimals are stored as TEXT (exact), timestamps as RFC3339 TEXT, and
  opaque payloads (statement input/derived, comparison results, rationale,
  metadata) as JSON TEXT columns.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - finance/store.go, counting/store.go, waste/store.go, parlevel/store.go:
    interface contracts
  - store/memory/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/tably/margin-engine/counting"
	"github.com/tably/margin-engine/finance"
	"github.com/tably/margin-engine/parlevel"
	"github.com/tably/margin-engine/waste"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Monthly P&L statements, one row per restaurant+period
	CREATE TABLE IF NOT EXISTS statements (
		id TEXT PRIMARY KEY,
		restaurant_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		input_json TEXT NOT NULL,
		derived_json TEXT NOT NULL,
		version INTEGER NOT NULL,
		locked INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(restaurant_id, year, month)
	);

	CREATE INDEX IF NOT EXISTS idx_statements_restaurant
		ON statements(restaurant_id, year DESC, month DESC);

	-- Inventory catalog
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		unit TEXT NOT NULL,
		cost_per_unit TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS recipes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		ingredients_json TEXT NOT NULL
	);

	-- Count sessions and their lines
	CREATE TABLE IF NOT EXISTS count_sessions (
		id TEXT PRIMARY KEY,
		area TEXT NOT NULL,
		status TEXT NOT NULL,
		notes TEXT,
		started_at TEXT NOT NULL,
		closed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_count_sessions_status
		ON count_sessions(status);

	CREATE TABLE IF NOT EXISTS count_lines (
		session_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		counted_quantity TEXT NOT NULL,
		unit TEXT NOT NULL,
		counted_by TEXT,
		method TEXT,
		notes TEXT,
		counted_at TEXT NOT NULL,
		PRIMARY KEY (session_id, item_id)
	);

	-- Variance reports and per-item analyses
	CREATE TABLE IF NOT EXISTS variance_reports (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		total_items INTEGER NOT NULL,
		items_with_variance INTEGER NOT NULL,
		total_value_variance TEXT NOT NULL,
		average_variance_pct TEXT NOT NULL,
		suspected_theft_count INTEGER NOT NULL,
		portion_control_issues_count INTEGER NOT NULL,
		spoilage_related_count INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_variance_reports_session
		ON variance_reports(session_id);

	CREATE TABLE IF NOT EXISTS variance_analyses (
		report_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		theoretical_quantity TEXT NOT NULL,
		theoretical_value TEXT NOT NULL,
		actual_quantity TEXT NOT NULL,
		actual_value TEXT NOT NULL,
		quantity_cmp_json TEXT NOT NULL,
		value_cmp_json TEXT NOT NULL,
		quantity_variance_pct TEXT,
		trend TEXT NOT NULL,
		theft_score TEXT NOT NULL,
		portion_control_score TEXT NOT NULL,
		spoilage_score TEXT NOT NULL,
		causes_json TEXT,
		recommendations_json TEXT,
		created_at TEXT NOT NULL,
		PRIMARY KEY (report_id, item_id)
	);

	-- For per-item variance history (classifier input, hot path)
	CREATE INDEX IF NOT EXISTS idx_variance_analyses_item
		ON variance_analyses(item_id, created_at DESC);

	-- Waste detections
	CREATE TABLE IF NOT EXISTS waste_detections (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		sales_event_id TEXT,
		recipe_id TEXT,
		waste_type TEXT NOT NULL,
		expected_usage TEXT NOT NULL,
		actual_usage TEXT NOT NULL,
		waste_amount TEXT NOT NULL,
		waste_cost TEXT NOT NULL,
		confidence TEXT NOT NULL,
		metadata_json TEXT,
		status TEXT NOT NULL,
		notes TEXT,
		detected_at TEXT NOT NULL,
		resolved_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_waste_detections_item
		ON waste_detections(item_id);
	CREATE INDEX IF NOT EXISTS idx_waste_detections_status
		ON waste_detections(status);

	-- Par recommendations
	CREATE TABLE IF NOT EXISTS par_recommendations (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		recommended_par TEXT NOT NULL,
		safety_stock TEXT NOT NULL,
		confidence TEXT NOT NULL,
		rationale_json TEXT,
		valid_from TEXT NOT NULL,
		valid_to TEXT,
		is_active INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: at most one active recommendation per item
	CREATE UNIQUE INDEX IF NOT EXISTS idx_par_recommendations_active
		ON par_recommendations(item_id) WHERE is_active = 1;
	CREATE INDEX IF NOT EXISTS idx_par_recommendations_item
		ON par_recommendations(item_id, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// STATEMENT STORE (finance.StatementStore interface)
// =============================================================================

// SaveStatement inserts (Version 0) or updates (version must match) a
// statement, advancing its Version on success.
func (s *Store) SaveStatement(ctx context.Context, st *finance.Statement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inputJSON, err := json.Marshal(st.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal statement input: %w", err)
	}
	derivedJSON, err := json.Marshal(st.Derived)
	if err != nil {
		return fmt.Errorf("failed to marshal derived statement: %w", err)
	}
	now := time.Now().UTC()

	if st.Version == 0 {
		// Refuse inserts into a locked period. The unique index also
		// catches a plain duplicate insert race.
		var locked bool
		err := s.db.QueryRowContext(ctx,
			`SELECT locked FROM statements WHERE restaurant_id = ? AND year = ? AND month = ?`,
			st.Input.Period.Restaurant, st.Input.Period.Year, int(st.Input.Period.Month),
		).Scan(&locked)
		switch {
		case err == nil && locked:
			return finance.ErrPeriodLocked
		case err == nil:
			return &finance.ConcurrencyConflictError{
				Statement:       st.ID,
				ExpectedVersion: 0,
				ActualVersion:   1,
			}
		case err != sql.ErrNoRows:
			return fmt.Errorf("failed to check period: %w", err)
		}

		_, err = s.db.ExecContext(ctx, `
			INSERT INTO statements
			(id, restaurant_id, year, month, input_json, derived_json, version, locked, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 1, 0, ?, ?)`,
			st.ID, st.Input.Period.Restaurant, st.Input.Period.Year, int(st.Input.Period.Month),
			string(inputJSON), string(derivedJSON),
			now.Format(time.RFC3339), now.Format(time.RFC3339),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return &finance.ConcurrencyConflictError{Statement: st.ID, ExpectedVersion: 0}
			}
			return fmt.Errorf("failed to insert statement: %w", err)
		}
		st.Version = 1
		st.CreatedAt = now
		st.UpdatedAt = now
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE statements
		SET input_json = ?, derived_json = ?, version = version + 1, updated_at = ?
		WHERE restaurant_id = ? AND year = ? AND month = ?
		  AND version = ? AND locked = 0`,
		string(inputJSON), string(derivedJSON), now.Format(time.RFC3339),
		st.Input.Period.Restaurant, st.Input.Period.Year, int(st.Input.Period.Month),
		st.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update statement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		// Zero rows: either the period is locked or the version moved.
		var locked bool
		var actual int64
		err := s.db.QueryRowContext(ctx,
			`SELECT locked, version FROM statements WHERE restaurant_id = ? AND year = ? AND month = ?`,
			st.Input.Period.Restaurant, st.Input.Period.Year, int(st.Input.Period.Month),
		).Scan(&locked, &actual)
		if err == sql.ErrNoRows {
			return finance.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to diagnose save conflict: %w", err)
		}
		if locked {
			return finance.ErrPeriodLocked
		}
		return &finance.ConcurrencyConflictError{
			Statement:       st.ID,
			ExpectedVersion: st.Version,
			ActualVersion:   actual,
		}
	}
	st.Version++
	st.UpdatedAt = now
	return nil
}

// GetStatement returns the statement for a period, or ErrNotFound.
func (s *Store) GetStatement(ctx context.Context, key finance.PeriodKey) (*finance.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, input_json, derived_json, version, locked, created_at, updated_at
		FROM statements WHERE restaurant_id = ? AND year = ? AND month = ?`,
		key.Restaurant, key.Year, int(key.Month),
	)
	return scanStatement(row)
}

// LockStatement closes the period. Idempotent.
func (s *Store) LockStatement(ctx context.Context, key finance.PeriodKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE statements SET locked = 1, updated_at = ?
		WHERE restaurant_id = ? AND year = ? AND month = ?`,
		time.Now().UTC().Format(time.RFC3339),
		key.Restaurant, key.Year, int(key.Month),
	)
	if err != nil {
		return fmt.Errorf("failed to lock statement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return finance.ErrNotFound
	}
	return nil
}

// ListStatements returns all statements for a restaurant, newest first.
func (s *Store) ListStatements(ctx context.Context, restaurant finance.RestaurantID) ([]*finance.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, input_json, derived_json, version, locked, created_at, updated_at
		FROM statements WHERE restaurant_id = ?
		ORDER BY year DESC, month DESC`,
		restaurant,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query statements: %w", err)
	}
	defer rows.Close()

	var out []*finance.Statement
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStatement(row rowScanner) (*finance.Statement, error) {
	var (
		st          finance.Statement
		inputJSON   string
		derivedJSON string
		locked      int
		createdAt   string
		updatedAt   string
	)
	err := row.Scan(&st.ID, &inputJSON, &derivedJSON, &st.Version, &locked, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, finance.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan statement: %w", err)
	}
	if err := json.Unmarshal([]byte(inputJSON), &st.Input); err != nil {
		return nil, fmt.Errorf("failed to unmarshal statement input: %w", err)
	}
	if err := json.Unmarshal([]byte(derivedJSON), &st.Derived); err != nil {
		return nil, fmt.Errorf("failed to unmarshal derived statement: %w", err)
	}
	st.Locked = locked != 0
	st.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	st.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &st, nil
}

// =============================================================================
// ITEM STORE (counting.ItemStore interface)
// =============================================================================

// SaveItem upserts a catalog item.
func (s *Store) SaveItem(ctx context.Context, item *counting.InventoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, name, category, unit, cost_per_unit)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			unit = excluded.unit,
			cost_per_unit = excluded.cost_per_unit`,
		item.ID, item.Name, item.Category, item.Unit, item.CostPerUnit.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}
	return nil
}

func (s *Store) GetItem(ctx context.Context, id counting.ItemID) (*counting.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		item counting.InventoryItem
		cost string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, category, unit, cost_per_unit FROM items WHERE id = ?`, id,
	).Scan(&item.ID, &item.Name, &item.Category, &item.Unit, &cost)
	if err == sql.ErrNoRows {
		return nil, finance.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	item.CostPerUnit = parseDecimal(cost)
	return &item, nil
}

func (s *Store) ListItems(ctx context.Context) ([]*counting.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, category, unit, cost_per_unit FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var out []*counting.InventoryItem
	for rows.Next() {
		var (
			item counting.InventoryItem
			cost string
		)
		if err := rows.Scan(&item.ID, &item.Name, &item.Category, &item.Unit, &cost); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		item.CostPerUnit = parseDecimal(cost)
		out = append(out, &item)
	}
	return out, rows.Err()
}

// SaveRecipe upserts a recipe; ingredients travel as JSON.
func (s *Store) SaveRecipe(ctx context.Context, r *counting.Recipe) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ingredientsJSON, err := json.Marshal(r.Ingredients)
	if err != nil {
		return fmt.Errorf("failed to marshal ingredients: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO recipes (id, name, ingredients_json) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			ingredients_json = excluded.ingredients_json`,
		r.ID, r.Name, string(ingredientsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save recipe: %w", err)
	}
	return nil
}

func (s *Store) ListRecipes(ctx context.Context) ([]*counting.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, ingredients_json FROM recipes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipes: %w", err)
	}
	defer rows.Close()

	var out []*counting.Recipe
	for rows.Next() {
		var (
			r               counting.Recipe
			ingredientsJSON string
		)
		if err := rows.Scan(&r.ID, &r.Name, &ingredientsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan recipe: %w", err)
		}
		if err := json.Unmarshal([]byte(ingredientsJSON), &r.Ingredients); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ingredients: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// =============================================================================
// SESSION STORE (counting.SessionStore interface)
// =============================================================================

func (s *Store) CreateSession(ctx context.Context, session *counting.CountSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO count_sessions (id, area, status, notes, started_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID, session.Area, session.Status, session.Notes,
		session.StartedAt.UTC().Format(time.RFC3339), nullTime(session.ClosedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	for _, line := range session.Lines {
		if err := s.insertLine(ctx, s.db, session.ID, line); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id counting.SessionID) (*counting.CountSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getSession(ctx, id)
}

func (s *Store) getSession(ctx context.Context, id counting.SessionID) (*counting.CountSession, error) {
	var (
		session  counting.CountSession
		started  string
		closedAt sql.NullString
		notes    sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, area, status, notes, started_at, closed_at FROM count_sessions WHERE id = ?`, id,
	).Scan(&session.ID, &session.Area, &session.Status, &notes, &started, &closedAt)
	if err == sql.ErrNoRows {
		return nil, finance.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	session.Notes = notes.String
	session.StartedAt, _ = time.Parse(time.RFC3339, started)
	if closedAt.Valid {
		t, _ := time.Parse(time.RFC3339, closedAt.String)
		session.ClosedAt = &t
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, counted_quantity, unit, counted_by, method, notes, counted_at
		FROM count_lines WHERE session_id = ? ORDER BY counted_at ASC, item_id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query count lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			line      counting.CountLine
			qty       string
			countedBy sql.NullString
			method    sql.NullString
			lineNotes sql.NullString
			countedAt string
		)
		if err := rows.Scan(&line.ItemID, &qty, &line.Unit, &countedBy, &method, &lineNotes, &countedAt); err != nil {
			return nil, fmt.Errorf("failed to scan count line: %w", err)
		}
		line.CountedQuantity = parseDecimal(qty)
		line.CountedBy = countedBy.String
		line.Method = method.String
		line.Notes = lineNotes.String
		line.CountedAt, _ = time.Parse(time.RFC3339, countedAt)
		session.Lines = append(session.Lines, line)
	}
	return &session, rows.Err()
}

func (s *Store) ListSessions(ctx context.Context, status counting.SessionStatus) ([]*counting.CountSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id FROM count_sessions ORDER BY started_at DESC`
	args := []any{}
	if status != "" {
		query = `SELECT id FROM count_sessions WHERE status = ? ORDER BY started_at DESC`
		args = append(args, status)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var ids []counting.SessionID
	for rows.Next() {
		var id counting.SessionID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*counting.CountSession, 0, len(ids))
	for _, id := range ids {
		session, err := s.getSession(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insertLine(ctx context.Context, db execer, id counting.SessionID, line counting.CountLine) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO count_lines
		(session_id, item_id, counted_quantity, unit, counted_by, method, notes, counted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, line.ItemID, line.CountedQuantity.String(), line.Unit,
		nullString(line.CountedBy), nullString(line.Method), nullString(line.Notes),
		line.CountedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &finance.InvalidInputError{
				Field: "item_id", Reason: "item already counted in this session",
			}
		}
		return fmt.Errorf("failed to insert count line: %w", err)
	}
	return nil
}

// AppendLine adds a line to an active session. The status check and the
// insert run under the store mutex so a close cannot slip between them.
func (s *Store) AppendLine(ctx context.Context, id counting.SessionID, line counting.CountLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, err := s.sessionStatus(ctx, id)
	if err != nil {
		return err
	}
	if status != counting.SessionActive {
		return finance.ErrSessionClosed
	}
	if line.CountedQuantity.IsNegative() {
		return &finance.InvalidInputError{
			Field: "counted_quantity", Value: line.CountedQuantity, Reason: "must be non-negative",
		}
	}
	return s.insertLine(ctx, s.db, id, line)
}

func (s *Store) sessionStatus(ctx context.Context, id counting.SessionID) (counting.SessionStatus, error) {
	var status counting.SessionStatus
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM count_sessions WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", finance.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get session status: %w", err)
	}
	return status, nil
}

// CloseSession completes the session. Idempotent on completed sessions.
func (s *Store) CloseSession(ctx context.Context, id counting.SessionID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishSession(ctx, id, counting.SessionCompleted, at)
}

// CancelSession abandons an active session.
func (s *Store) CancelSession(ctx context.Context, id counting.SessionID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishSession(ctx, id, counting.SessionCancelled, at)
}

func (s *Store) finishSession(ctx context.Context, id counting.SessionID, to counting.SessionStatus, at time.Time) error {
	status, err := s.sessionStatus(ctx, id)
	if err != nil {
		return err
	}
	if status == to && to == counting.SessionCompleted {
		return nil
	}
	if status != counting.SessionActive {
		return finance.ErrSessionClosed
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE count_sessions SET status = ?, closed_at = ? WHERE id = ?`,
		to, at.UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}

// SaveReport writes the report and all analyses in one transaction.
func (s *Store) SaveReport(ctx context.Context, r *counting.VarianceReport, analyses []counting.VarianceAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO variance_reports
		(id, session_id, period_start, period_end, total_items, items_with_variance,
		 total_value_variance, average_variance_pct, suspected_theft_count,
		 portion_control_issues_count, spoilage_related_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID,
		r.PeriodStart.UTC().Format(time.RFC3339), r.PeriodEnd.UTC().Format(time.RFC3339),
		r.TotalItems, r.ItemsWithVariance,
		r.TotalValueVariance.String(), r.AverageVariancePct.String(),
		r.SuspectedTheftCount, r.PortionControlIssuesCount, r.SpoilageRelatedCount,
		r.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	for _, a := range analyses {
		qtyJSON, err := json.Marshal(a.Quantity)
		if err != nil {
			return fmt.Errorf("failed to marshal quantity comparison: %w", err)
		}
		valJSON, err := json.Marshal(a.Value)
		if err != nil {
			return fmt.Errorf("failed to marshal value comparison: %w", err)
		}
		causesJSON, _ := json.Marshal(a.PossibleCauses)
		recsJSON, _ := json.Marshal(a.Recommendations)

		var qtyPct any
		if a.Quantity.VariancePct != nil {
			qtyPct = a.Quantity.VariancePct.String()
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO variance_analyses
			(report_id, item_id, theoretical_quantity, theoretical_value,
			 actual_quantity, actual_value, quantity_cmp_json, value_cmp_json,
			 quantity_variance_pct, trend, theft_score, portion_control_score,
			 spoilage_score, causes_json, recommendations_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ReportID, a.ItemID,
			a.TheoreticalQuantity.String(), a.TheoreticalValue.String(),
			a.ActualQuantity.String(), a.ActualValue.String(),
			string(qtyJSON), string(valJSON), qtyPct, a.Trend,
			a.Scores.Theft.String(), a.Scores.PortionControl.String(), a.Scores.Spoilage.String(),
			string(causesJSON), string(recsJSON),
			a.CreatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to insert analysis: %w", err)
		}
	}

	return tx.Commit()
}

func (s *Store) GetReport(ctx context.Context, id counting.ReportID) (*counting.VarianceReport, []counting.VarianceAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		r           counting.VarianceReport
		periodStart string
		periodEnd   string
		totalVar    string
		avgPct      string
		createdAt   string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, period_start, period_end, total_items, items_with_variance,
		       total_value_variance, average_variance_pct, suspected_theft_count,
		       portion_control_issues_count, spoilage_related_count, created_at
		FROM variance_reports WHERE id = ?`, id,
	).Scan(&r.ID, &r.SessionID, &periodStart, &periodEnd, &r.TotalItems, &r.ItemsWithVariance,
		&totalVar, &avgPct, &r.SuspectedTheftCount, &r.PortionControlIssuesCount,
		&r.SpoilageRelatedCount, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil, finance.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get report: %w", err)
	}
	r.PeriodStart, _ = time.Parse(time.RFC3339, periodStart)
	r.PeriodEnd, _ = time.Parse(time.RFC3339, periodEnd)
	r.TotalValueVariance = parseDecimal(totalVar)
	r.AverageVariancePct = parseDecimal(avgPct)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT report_id, item_id, theoretical_quantity, theoretical_value,
		       actual_quantity, actual_value, quantity_cmp_json, value_cmp_json,
		       trend, theft_score, portion_control_score, spoilage_score,
		       causes_json, recommendations_json, created_at
		FROM variance_analyses WHERE report_id = ? ORDER BY item_id`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	var analyses []counting.VarianceAnalysis
	for rows.Next() {
		var (
			a          counting.VarianceAnalysis
			theoQty    string
			theoVal    string
			actQty     string
			actVal     string
			qtyJSON    string
			valJSON    string
			theft      string
			portion    string
			spoilage   string
			causesJSON sql.NullString
			recsJSON   sql.NullString
			created    string
		)
		err := rows.Scan(&a.ReportID, &a.ItemID, &theoQty, &theoVal, &actQty, &actVal,
			&qtyJSON, &valJSON, &a.Trend, &theft, &portion, &spoilage,
			&causesJSON, &recsJSON, &created)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		a.TheoreticalQuantity = parseDecimal(theoQty)
		a.TheoreticalValue = parseDecimal(theoVal)
		a.ActualQuantity = parseDecimal(actQty)
		a.ActualValue = parseDecimal(actVal)
		if err := json.Unmarshal([]byte(qtyJSON), &a.Quantity); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal quantity comparison: %w", err)
		}
		if err := json.Unmarshal([]byte(valJSON), &a.Value); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal value comparison: %w", err)
		}
		a.Scores.Theft = parseDecimal(theft)
		a.Scores.PortionControl = parseDecimal(portion)
		a.Scores.Spoilage = parseDecimal(spoilage)
		if causesJSON.Valid {
			json.Unmarshal([]byte(causesJSON.String), &a.PossibleCauses)
		}
		if recsJSON.Valid {
			json.Unmarshal([]byte(recsJSON.String), &a.Recommendations)
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339, created)
		analyses = append(analyses, a)
	}
	return &r, analyses, rows.Err()
}

func (s *Store) ListReports(ctx context.Context) ([]*counting.VarianceReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, period_start, period_end, total_items, items_with_variance,
		       total_value_variance, average_variance_pct, suspected_theft_count,
		       portion_control_issues_count, spoilage_related_count, created_at
		FROM variance_reports ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var out []*counting.VarianceReport
	for rows.Next() {
		var (
			r           counting.VarianceReport
			periodStart string
			periodEnd   string
			totalVar    string
			avgPct      string
			createdAt   string
		)
		err := rows.Scan(&r.ID, &r.SessionID, &periodStart, &periodEnd, &r.TotalItems,
			&r.ItemsWithVariance, &totalVar, &avgPct, &r.SuspectedTheftCount,
			&r.PortionControlIssuesCount, &r.SpoilageRelatedCount, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		r.PeriodStart, _ = time.Parse(time.RFC3339, periodStart)
		r.PeriodEnd, _ = time.Parse(time.RFC3339, periodEnd)
		r.TotalValueVariance = parseDecimal(totalVar)
		r.AverageVariancePct = parseDecimal(avgPct)
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// HistoricalVariancePcts returns past quantity variance percentages for an
// item, most-recent-last. Analyses with no percentage (zero baseline) are
// skipped.
func (s *Store) HistoricalVariancePcts(ctx context.Context, item counting.ItemID, limit int) ([]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 12
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT quantity_variance_pct FROM variance_analyses
		WHERE item_id = ? AND quantity_variance_pct IS NOT NULL
		ORDER BY created_at DESC LIMIT ?`, item, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query variance history: %w", err)
	}
	defer rows.Close()

	var pcts []decimal.Decimal
	for rows.Next() {
		var pct string
		if err := rows.Scan(&pct); err != nil {
			return nil, fmt.Errorf("failed to scan variance pct: %w", err)
		}
		pcts = append(pcts, parseDecimal(pct))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Newest-first from the query; callers want most-recent-last.
	for i, j := 0, len(pcts)-1; i < j; i, j = i+1, j-1 {
		pcts[i], pcts[j] = pcts[j], pcts[i]
	}
	return pcts, nil
}

// =============================================================================
// DETECTION STORE (waste.DetectionStore interface)
// =============================================================================

func (s *Store) SaveDetection(ctx context.Context, d *waste.Detection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	metadataJSON, _ := json.Marshal(d.Metadata)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO waste_detections
		(id, item_id, sales_event_id, recipe_id, waste_type, expected_usage,
		 actual_usage, waste_amount, waste_cost, confidence, metadata_json,
		 status, notes, detected_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ItemID, nullString(d.SalesEventID), nullString(d.RecipeID),
		d.WasteType, d.ExpectedUsage.String(), d.ActualUsage.String(),
		d.WasteAmount.String(), d.WasteCost.String(), d.Confidence.String(),
		string(metadataJSON), d.Status, nullString(d.Notes),
		d.DetectedAt.UTC().Format(time.RFC3339), nullTime(d.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save detection: %w", err)
	}
	return nil
}

func (s *Store) GetDetection(ctx context.Context, id waste.DetectionID) (*waste.Detection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, detectionSelect+` WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query detection: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, finance.ErrNotFound
	}
	return scanDetection(rows)
}

func (s *Store) ListDetections(ctx context.Context, f waste.DetectionFilter) ([]*waste.Detection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := detectionSelect
	var (
		clauses []string
		args    []any
	)
	if f.ItemID != "" {
		clauses = append(clauses, "item_id = ?")
		args = append(args, f.ItemID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY detected_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	var out []*waste.Detection
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateDetectionStatus is a guarded compare-and-set: the write applies only
// while the stored status still equals from.
func (s *Store) UpdateDetectionStatus(ctx context.Context, id waste.DetectionID, from, to waste.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !waste.CanTransition(from, to) {
		return &waste.TransitionError{Detection: id, From: from, To: to}
	}

	var resolvedAt any
	if to == waste.StatusResolved || to == waste.StatusFalsePositive {
		resolvedAt = at.UTC().Format(time.RFC3339)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE waste_detections SET status = ?, resolved_at = ? WHERE id = ? AND status = ?`,
		to, resolvedAt, id, from,
	)
	if err != nil {
		return fmt.Errorf("failed to update detection status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		var count int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM waste_detections WHERE id = ?`, id).Scan(&count); err != nil {
			return fmt.Errorf("failed to diagnose status conflict: %w", err)
		}
		if count == 0 {
			return finance.ErrNotFound
		}
		return &waste.TransitionError{Detection: id, From: from, To: to}
	}
	return nil
}

const detectionSelect = `
	SELECT id, item_id, sales_event_id, recipe_id, waste_type, expected_usage,
	       actual_usage, waste_amount, waste_cost, confidence, metadata_json,
	       status, notes, detected_at, resolved_at
	FROM waste_detections`

func scanDetection(rows *sql.Rows) (*waste.Detection, error) {
	var (
		d            waste.Detection
		salesEventID sql.NullString
		recipeID     sql.NullString
		expected     string
		actual       string
		amount       string
		cost         string
		confidence   string
		metadataJSON sql.NullString
		notes        sql.NullString
		detectedAt   string
		resolvedAt   sql.NullString
	)
	err := rows.Scan(&d.ID, &d.ItemID, &salesEventID, &recipeID, &d.WasteType,
		&expected, &actual, &amount, &cost, &confidence, &metadataJSON,
		&d.Status, &notes, &detectedAt, &resolvedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan detection: %w", err)
	}
	d.SalesEventID = salesEventID.String
	d.RecipeID = recipeID.String
	d.ExpectedUsage = parseDecimal(expected)
	d.ActualUsage = parseDecimal(actual)
	d.WasteAmount = parseDecimal(amount)
	d.WasteCost = parseDecimal(cost)
	d.Confidence = parseDecimal(confidence)
	d.Notes = notes.String
	if metadataJSON.Valid && metadataJSON.String != "" {
		json.Unmarshal([]byte(metadataJSON.String), &d.Metadata)
	}
	d.DetectedAt, _ = time.Parse(time.RFC3339, detectedAt)
	if resolvedAt.Valid {
		t, _ := time.Parse(time.RFC3339, resolvedAt.String)
		d.ResolvedAt = &t
	}
	return &d, nil
}

// =============================================================================
// RECOMMENDATION STORE (parlevel.RecommendationStore interface)
// =============================================================================

// SupersedeRecommendation deactivates the item's current active
// recommendation and inserts the new one as active, atomically.
func (s *Store) SupersedeRecommendation(ctx context.Context, rec *parlevel.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE par_recommendations SET is_active = 0, valid_to = ?
		WHERE item_id = ? AND is_active = 1`,
		rec.ValidFrom.UTC().Format(time.RFC3339), rec.ItemID,
	)
	if err != nil {
		return fmt.Errorf("%w: deactivate failed: %v", finance.ErrSupersessionFailed, err)
	}

	rationaleJSON, _ := json.Marshal(rec.Rationale)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO par_recommendations
		(id, item_id, recommended_par, safety_stock, confidence, rationale_json,
		 valid_from, valid_to, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		rec.ID, rec.ItemID, rec.RecommendedPar.String(), rec.SafetyStock.String(),
		rec.Confidence.String(), string(rationaleJSON),
		rec.ValidFrom.UTC().Format(time.RFC3339), nullTime(rec.ValidTo),
		rec.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("%w: insert failed: %v", finance.ErrSupersessionFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit failed: %v", finance.ErrSupersessionFailed, err)
	}
	rec.IsActive = true
	return nil
}

func (s *Store) ActiveRecommendation(ctx context.Context, item counting.ItemID) (*parlevel.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, recommendationSelect+
		` WHERE item_id = ? AND is_active = 1`, item)
	if err != nil {
		return nil, fmt.Errorf("failed to query active recommendation: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, finance.ErrNotFound
	}
	return scanRecommendation(rows)
}

func (s *Store) ListRecommendations(ctx context.Context, item counting.ItemID) ([]*parlevel.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, recommendationSelect+
		` WHERE item_id = ? ORDER BY created_at DESC`, item)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	defer rows.Close()

	var out []*parlevel.Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const recommendationSelect = `
	SELECT id, item_id, recommended_par, safety_stock, confidence, rationale_json,
	       valid_from, valid_to, is_active, created_at
	FROM par_recommendations`

func scanRecommendation(rows *sql.Rows) (*parlevel.Recommendation, error) {
	var (
		rec           parlevel.Recommendation
		par           string
		safety        string
		confidence    string
		rationaleJSON sql.NullString
		validFrom     string
		validTo       sql.NullString
		isActive      int
		createdAt     string
	)
	err := rows.Scan(&rec.ID, &rec.ItemID, &par, &safety, &confidence,
		&rationaleJSON, &validFrom, &validTo, &isActive, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan recommendation: %w", err)
	}
	rec.RecommendedPar = parseDecimal(par)
	rec.SafetyStock = parseDecimal(safety)
	rec.Confidence = parseDecimal(confidence)
	if rationaleJSON.Valid && rationaleJSON.String != "" {
		json.Unmarshal([]byte(rationaleJSON.String), &rec.Rationale)
	}
	rec.ValidFrom, _ = time.Parse(time.RFC3339, validFrom)
	if validTo.Valid {
		t, _ := time.Parse(time.RFC3339, validTo.String)
		rec.ValidTo = &t
	}
	rec.IsActive = isActive != 0
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &rec, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseDecimal(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
