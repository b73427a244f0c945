/*
Package memory provides an in-memory implementation of the storage interfaces.

PURPOSE:
  Drop-in replacement for store/sqlite in tests and demos. Same contracts,
  no database: a handful of maps behind one RWMutex. Every read hands back
  deep copies so callers cannot mutate stored state from outside.

SEE ALSO:
  - store/sqlite/sqlite.go: production implementation
*/
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tably/margin-engine/counting"
	"github.com/tably/margin-engine/finance"
	"github.com/tably/margin-engine/parlevel"
	"github.com/tably/margin-engine/waste"
)

// Store implements all storage interfaces in memory.
type Store struct {
	mu sync.RWMutex

	statements map[string]*finance.Statement // keyed by PeriodKey.String()

	items   map[counting.ItemID]*counting.InventoryItem
	recipes map[counting.RecipeID]*counting.Recipe

	sessions map[counting.SessionID]*counting.CountSession
	reports  map[counting.ReportID]*counting.VarianceReport
	analyses map[counting.ReportID][]counting.VarianceAnalysis

	detections map[waste.DetectionID]*waste.Detection

	recommendations map[counting.ItemID][]*parlevel.Recommendation
}

func New() *Store {
	return &Store{
		statements:      make(map[string]*finance.Statement),
		items:           make(map[counting.ItemID]*counting.InventoryItem),
		recipes:         make(map[counting.RecipeID]*counting.Recipe),
		sessions:        make(map[counting.SessionID]*counting.CountSession),
		reports:         make(map[counting.ReportID]*counting.VarianceReport),
		analyses:        make(map[counting.ReportID][]counting.VarianceAnalysis),
		detections:      make(map[waste.DetectionID]*waste.Detection),
		recommendations: make(map[counting.ItemID][]*parlevel.Recommendation),
	}
}

// Close is a no-op; it exists so memory and sqlite stores swap freely.
func (s *Store) Close() error { return nil }

// =============================================================================
// STATEMENT STORE (finance.StatementStore interface)
// =============================================================================

func copyPercent(p *finance.Percent) *finance.Percent {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

func copySideTotals(s finance.SideTotals) finance.SideTotals {
	s.COGSPct = copyPercent(s.COGSPct)
	s.LaborPct = copyPercent(s.LaborPct)
	s.PrimeCostPct = copyPercent(s.PrimeCostPct)
	s.OperatingExpensePct = copyPercent(s.OperatingExpensePct)
	s.NetProfitPct = copyPercent(s.NetProfitPct)
	return s
}

func copyComparison(c finance.Comparison) finance.Comparison {
	if c.VariancePct != nil {
		pct := *c.VariancePct
		c.VariancePct = &pct
	}
	return c
}

// copyStatement clones every pointer and slice reachable from a statement so
// the stored row and the caller's copy cannot alias.
func copyStatement(src *finance.Statement) *finance.Statement {
	cp := *src
	cp.Derived.Actual = copySideTotals(src.Derived.Actual)
	cp.Derived.Budget = copySideTotals(src.Derived.Budget)
	cp.Derived.Revenue = copyComparison(src.Derived.Revenue)
	cp.Derived.COGS = copyComparison(src.Derived.COGS)
	cp.Derived.Labor = copyComparison(src.Derived.Labor)
	cp.Derived.PrimeCost = copyComparison(src.Derived.PrimeCost)
	cp.Derived.OperatingExpenses = copyComparison(src.Derived.OperatingExpenses)
	cp.Derived.NetProfit = copyComparison(src.Derived.NetProfit)
	cp.Derived.Health.Alerts = append([]finance.Alert(nil), src.Derived.Health.Alerts...)
	return &cp
}

func (s *Store) SaveStatement(ctx context.Context, st *finance.Statement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := st.Input.Period.String()
	stored, exists := s.statements[key]
	now := time.Now().UTC()

	if st.Version == 0 {
		if exists {
			if stored.Locked {
				return finance.ErrPeriodLocked
			}
			return &finance.ConcurrencyConflictError{
				Statement:       st.ID,
				ExpectedVersion: 0,
				ActualVersion:   stored.Version,
			}
		}
		st.Version = 1
		st.CreatedAt = now
		st.UpdatedAt = now
		s.statements[key] = copyStatement(st)
		return nil
	}

	if !exists {
		return finance.ErrNotFound
	}
	if stored.Locked {
		return finance.ErrPeriodLocked
	}
	if stored.Version != st.Version {
		return &finance.ConcurrencyConflictError{
			Statement:       st.ID,
			ExpectedVersion: st.Version,
			ActualVersion:   stored.Version,
		}
	}
	st.Version++
	st.UpdatedAt = now
	st.CreatedAt = stored.CreatedAt
	s.statements[key] = copyStatement(st)
	return nil
}

func (s *Store) GetStatement(ctx context.Context, key finance.PeriodKey) (*finance.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.statements[key.String()]
	if !ok {
		return nil, finance.ErrNotFound
	}
	return copyStatement(stored), nil
}

func (s *Store) LockStatement(ctx context.Context, key finance.PeriodKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.statements[key.String()]
	if !ok {
		return finance.ErrNotFound
	}
	stored.Locked = true
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ListStatements(ctx context.Context, restaurant finance.RestaurantID) ([]*finance.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*finance.Statement
	for _, st := range s.statements {
		if st.Input.Period.Restaurant != restaurant {
			continue
		}
		out = append(out, copyStatement(st))
	}
	// Newest first.
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Input.Period, out[j].Input.Period
		if a.Year != b.Year {
			return a.Year > b.Year
		}
		return a.Month > b.Month
	})
	return out, nil
}

// =============================================================================
// ITEM STORE (counting.ItemStore interface)
// =============================================================================

func (s *Store) SaveItem(ctx context.Context, item *counting.InventoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *item
	s.items[item.ID] = &cp
	return nil
}

func (s *Store) GetItem(ctx context.Context, id counting.ItemID) (*counting.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, finance.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (s *Store) ListItems(ctx context.Context) ([]*counting.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*counting.InventoryItem, 0, len(s.items))
	for _, item := range s.items {
		cp := *item
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SaveRecipe(ctx context.Context, r *counting.Recipe) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	cp.Ingredients = append([]counting.Ingredient(nil), r.Ingredients...)
	s.recipes[r.ID] = &cp
	return nil
}

func (s *Store) ListRecipes(ctx context.Context) ([]*counting.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*counting.Recipe, 0, len(s.recipes))
	for _, r := range s.recipes {
		cp := *r
		cp.Ingredients = append([]counting.Ingredient(nil), r.Ingredients...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// SESSION STORE (counting.SessionStore interface)
// =============================================================================

func copySession(src *counting.CountSession) *counting.CountSession {
	cp := *src
	cp.Lines = append([]counting.CountLine(nil), src.Lines...)
	if src.ClosedAt != nil {
		t := *src.ClosedAt
		cp.ClosedAt = &t
	}
	return &cp
}

func (s *Store) CreateSession(ctx context.Context, session *counting.CountSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = copySession(session)
	return nil
}

func (s *Store) GetSession(ctx context.Context, id counting.SessionID) (*counting.CountSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, finance.ErrNotFound
	}
	return copySession(session), nil
}

func (s *Store) ListSessions(ctx context.Context, status counting.SessionStatus) ([]*counting.CountSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*counting.CountSession
	for _, session := range s.sessions {
		if status != "" && session.Status != status {
			continue
		}
		out = append(out, copySession(session))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (s *Store) AppendLine(ctx context.Context, id counting.SessionID, line counting.CountLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return finance.ErrNotFound
	}
	return session.Append(line)
}

func (s *Store) CloseSession(ctx context.Context, id counting.SessionID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return finance.ErrNotFound
	}
	return session.Close(at)
}

func (s *Store) CancelSession(ctx context.Context, id counting.SessionID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return finance.ErrNotFound
	}
	return session.Cancel(at)
}

// copyAnalyses clones the percentage pointers and advisory slices inside
// each analysis along with the slice itself.
func copyAnalyses(src []counting.VarianceAnalysis) []counting.VarianceAnalysis {
	out := append([]counting.VarianceAnalysis(nil), src...)
	for i := range out {
		out[i].Quantity = copyComparison(out[i].Quantity)
		out[i].Value = copyComparison(out[i].Value)
		out[i].PossibleCauses = append([]string(nil), src[i].PossibleCauses...)
		out[i].Recommendations = append([]string(nil), src[i].Recommendations...)
	}
	return out
}

func (s *Store) SaveReport(ctx context.Context, r *counting.VarianceReport, analyses []counting.VarianceAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.reports[r.ID] = &cp
	s.analyses[r.ID] = copyAnalyses(analyses)
	return nil
}

func (s *Store) GetReport(ctx context.Context, id counting.ReportID) (*counting.VarianceReport, []counting.VarianceAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[id]
	if !ok {
		return nil, nil, finance.ErrNotFound
	}
	cp := *r
	return &cp, copyAnalyses(s.analyses[id]), nil
}

func (s *Store) ListReports(ctx context.Context) ([]*counting.VarianceReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*counting.VarianceReport, 0, len(s.reports))
	for _, r := range s.reports {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) HistoricalVariancePcts(ctx context.Context, item counting.ItemID, limit int) ([]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 12
	}

	type dated struct {
		at  time.Time
		pct decimal.Decimal
	}
	var all []dated
	for _, analyses := range s.analyses {
		for _, a := range analyses {
			if a.ItemID != item || a.Quantity.VariancePct == nil {
				continue
			}
			all = append(all, dated{at: a.CreatedAt, pct: *a.Quantity.VariancePct})
		}
	}
	// Oldest first, then trim to the most recent limit entries.
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	pcts := make([]decimal.Decimal, len(all))
	for i, d := range all {
		pcts[i] = d.pct
	}
	return pcts, nil
}

// =============================================================================
// DETECTION STORE (waste.DetectionStore interface)
// =============================================================================

func copyDetection(src *waste.Detection) *waste.Detection {
	cp := *src
	if src.ResolvedAt != nil {
		t := *src.ResolvedAt
		cp.ResolvedAt = &t
	}
	if src.Metadata != nil {
		cp.Metadata = make(map[string]any, len(src.Metadata))
		for k, v := range src.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func (s *Store) SaveDetection(ctx context.Context, d *waste.Detection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.detections[d.ID] = copyDetection(d)
	return nil
}

func (s *Store) GetDetection(ctx context.Context, id waste.DetectionID) (*waste.Detection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.detections[id]
	if !ok {
		return nil, finance.ErrNotFound
	}
	return copyDetection(d), nil
}

func (s *Store) ListDetections(ctx context.Context, f waste.DetectionFilter) ([]*waste.Detection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*waste.Detection
	for _, d := range s.detections {
		if f.ItemID != "" && d.ItemID != f.ItemID {
			continue
		}
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		out = append(out, copyDetection(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	return out, nil
}

func (s *Store) UpdateDetectionStatus(ctx context.Context, id waste.DetectionID, from, to waste.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.detections[id]
	if !ok {
		return finance.ErrNotFound
	}
	if d.Status != from {
		return &waste.TransitionError{Detection: id, From: from, To: to}
	}
	return d.TransitionTo(to, at)
}

// =============================================================================
// RECOMMENDATION STORE (parlevel.RecommendationStore interface)
// =============================================================================

func copyRecommendation(src *parlevel.Recommendation) *parlevel.Recommendation {
	cp := *src
	if src.ValidTo != nil {
		t := *src.ValidTo
		cp.ValidTo = &t
	}
	if src.Rationale != nil {
		cp.Rationale = make(map[string]any, len(src.Rationale))
		for k, v := range src.Rationale {
			cp.Rationale[k] = v
		}
	}
	return &cp
}

func (s *Store) SupersedeRecommendation(ctx context.Context, rec *parlevel.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.recommendations[rec.ItemID] {
		if existing.IsActive {
			existing.IsActive = false
			t := rec.ValidFrom
			existing.ValidTo = &t
		}
	}
	rec.IsActive = true
	s.recommendations[rec.ItemID] = append(s.recommendations[rec.ItemID], copyRecommendation(rec))
	return nil
}

func (s *Store) ActiveRecommendation(ctx context.Context, item counting.ItemID) (*parlevel.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.recommendations[item] {
		if rec.IsActive {
			return copyRecommendation(rec), nil
		}
	}
	return nil, finance.ErrNotFound
}

func (s *Store) ListRecommendations(ctx context.Context, item counting.ItemID) ([]*parlevel.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.recommendations[item]
	out := make([]*parlevel.Recommendation, 0, len(recs))
	for _, rec := range recs {
		out = append(out, copyRecommendation(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
