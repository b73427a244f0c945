/*
analysis.go - Per-item variance analysis and report aggregation

PURPOSE:
  Runs the theoretical-vs-actual comparison for every item in a closed count
  session and rolls the results up into a variance report.

PIPELINE (one closed session in, one report out):
  1. Theoretical quantity per item = recipe usage x sales volume.
  2. Theoretical/actual value = quantity x unit cost.
  3. Quantity and value comparisons via finance.Compare
     (variance = actual - theoretical; pct nil when theoretical is zero).
  4. Classifier scores from the waste package, fed with the item's
     historical variance percentages.
  5. Trend direction from the recent history.
  6. Aggregation: counts, total value variance, average |variance pct|,
     flagged-issue tallies.

  The whole pipeline is a pure function of the snapshot it is given: same
  session + same context = identical report.

SEE ALSO:
  - waste/classifier.go: scoring rules
  - store.go: report persistence
*/
package counting

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tably/margin-engine/finance"
	"github.com/tably/margin-engine/waste"
)

// =============================================================================
// TREND
// =============================================================================

type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendWorsening TrendDirection = "worsening"
	TrendStable    TrendDirection = "stable"
)

// trendFor compares the current |variance pct| with the mean |pct| of the
// last three historical periods. A one-point band either way reads stable.
func trendFor(current *decimal.Decimal, history []decimal.Decimal) TrendDirection {
	if current == nil || len(history) == 0 {
		return TrendStable
	}

	n := len(history)
	window := history
	if n > 3 {
		window = history[n-3:]
	}
	sum := decimal.Zero
	for _, pct := range window {
		sum = sum.Add(pct.Abs())
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(window))))

	one := decimal.NewFromInt(1)
	diff := current.Abs().Sub(mean)
	switch {
	case diff.LessThan(one.Neg()):
		return TrendImproving
	case diff.GreaterThan(one):
		return TrendWorsening
	default:
		return TrendStable
	}
}

// =============================================================================
// ANALYSIS RESULTS
// =============================================================================

// VarianceAnalysis is the per-item result attached to a report.
type VarianceAnalysis struct {
	ReportID ReportID
	ItemID   ItemID

	TheoreticalQuantity decimal.Decimal
	TheoreticalValue    decimal.Decimal
	ActualQuantity      decimal.Decimal
	ActualValue         decimal.Decimal

	Quantity finance.Comparison
	Value    finance.Comparison

	Trend  TrendDirection
	Scores waste.Scores

	// Opaque advisory payloads passed through to reporting verbatim.
	PossibleCauses  []string
	Recommendations []string

	CreatedAt time.Time
}

// VarianceReport aggregates one session's analyses.
type VarianceReport struct {
	ID        ReportID
	SessionID SessionID

	PeriodStart time.Time
	PeriodEnd   time.Time

	TotalItems         int
	ItemsWithVariance  int
	TotalValueVariance decimal.Decimal
	AverageVariancePct decimal.Decimal

	SuspectedTheftCount       int
	PortionControlIssuesCount int
	SpoilageRelatedCount      int

	CreatedAt time.Time
}

// =============================================================================
// ANALYZER
// =============================================================================

// AnalysisContext is the read snapshot an analysis runs against.
type AnalysisContext struct {
	Items   map[ItemID]InventoryItem
	Recipes []Recipe
	Sales   SalesVolume

	// History holds past variance percentages per item, most-recent-last.
	History map[ItemID][]decimal.Decimal
}

// Analyzer turns closed sessions into variance reports.
type Analyzer struct {
	TolerancePct decimal.Decimal
	Classifier   *waste.Classifier
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{
		TolerancePct: finance.DefaultTolerancePct,
		Classifier:   waste.NewClassifier(),
	}
}

func (a *Analyzer) tolerance() decimal.Decimal {
	if a.TolerancePct.IsZero() {
		return finance.DefaultTolerancePct
	}
	return a.TolerancePct
}

// AnalyzeSession produces the report and per-item analyses for a completed
// session. Items counted but unknown to the context fail with InvalidInput;
// no partial report is produced.
func (a *Analyzer) AnalyzeSession(
	session *CountSession,
	actx AnalysisContext,
	reportID ReportID,
	now time.Time,
) (*VarianceReport, []VarianceAnalysis, error) {

	if session.Status != SessionCompleted {
		return nil, nil, finance.ErrSessionClosed
	}

	theoretical := TheoreticalUsage(actx.Recipes, actx.Sales)

	// Deterministic ordering regardless of line entry order.
	lines := make([]CountLine, len(session.Lines))
	copy(lines, session.Lines)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ItemID < lines[j].ItemID })

	report := &VarianceReport{
		ID:          reportID,
		SessionID:   session.ID,
		PeriodStart: session.StartedAt,
		PeriodEnd:   now,
		CreatedAt:   now,
	}
	if session.ClosedAt != nil {
		report.PeriodEnd = *session.ClosedAt
	}

	var analyses []VarianceAnalysis
	pctSum := decimal.Zero
	pctCount := int64(0)

	for _, line := range lines {
		item, ok := actx.Items[line.ItemID]
		if !ok {
			return nil, nil, &finance.InvalidInputError{
				Field: "item_id", Reason: "unknown item " + string(line.ItemID),
			}
		}

		theoQty := theoretical[line.ItemID]
		theoVal := finance.RoundHalfUp(theoQty.Mul(item.CostPerUnit), 2)
		actVal := finance.RoundHalfUp(line.CountedQuantity.Mul(item.CostPerUnit), 2)

		qtyCmp := finance.Compare(theoQty, line.CountedQuantity, a.tolerance())
		valCmp := finance.Compare(theoVal, actVal, a.tolerance())

		history := actx.History[line.ItemID]
		scores := a.Classifier.Score(waste.Observation{
			Direction:  qtyCmp.Direction,
			Severity:   qtyCmp.Severity,
			History:    history,
			Perishable: item.Perishable(),
		})

		analysis := VarianceAnalysis{
			ReportID:            reportID,
			ItemID:              line.ItemID,
			TheoreticalQuantity: theoQty,
			TheoreticalValue:    theoVal,
			ActualQuantity:      line.CountedQuantity,
			ActualValue:         actVal,
			Quantity:            qtyCmp,
			Value:               valCmp,
			Trend:               trendFor(qtyCmp.VariancePct, history),
			Scores:              scores,
			CreatedAt:           now,
		}
		analysis.PossibleCauses, analysis.Recommendations = a.advisories(qtyCmp, scores)
		analyses = append(analyses, analysis)

		// Aggregates.
		report.TotalItems++
		if qtyCmp.Direction != finance.DirectionWithinTolerance {
			report.ItemsWithVariance++
		}
		report.TotalValueVariance = report.TotalValueVariance.Add(valCmp.Variance)
		if qtyCmp.VariancePct != nil {
			pctSum = pctSum.Add(qtyCmp.VariancePct.Abs())
			pctCount++
		}
		threshold := a.Classifier.FlagThreshold
		if threshold.IsZero() {
			threshold = waste.DefaultFlagThreshold
		}
		if scores.Theft.GreaterThanOrEqual(threshold) {
			report.SuspectedTheftCount++
		}
		if scores.PortionControl.GreaterThanOrEqual(threshold) {
			report.PortionControlIssuesCount++
		}
		if scores.Spoilage.GreaterThanOrEqual(threshold) {
			report.SpoilageRelatedCount++
		}
	}

	report.TotalValueVariance = finance.RoundHalfUp(report.TotalValueVariance, 2)
	if pctCount > 0 {
		report.AverageVariancePct = finance.RoundHalfUp(pctSum.Div(decimal.NewFromInt(pctCount)), 2)
	}
	return report, analyses, nil
}

// advisories builds the pass-through cause/recommendation payloads.
func (a *Analyzer) advisories(cmp finance.Comparison, scores waste.Scores) (causes, recs []string) {
	if cmp.Direction == finance.DirectionWithinTolerance {
		return nil, nil
	}

	threshold := a.Classifier.FlagThreshold
	if threshold.IsZero() {
		threshold = waste.DefaultFlagThreshold
	}
	if scores.Theft.GreaterThanOrEqual(threshold) {
		causes = append(causes, "unrecorded usage or theft")
		recs = append(recs, "review access logs and tighten storage controls")
	}
	if scores.PortionControl.GreaterThanOrEqual(threshold) {
		causes = append(causes, "portion control drift")
		recs = append(recs, "retrain portioning and verify scale calibration")
	}
	if scores.Spoilage.GreaterThanOrEqual(threshold) {
		causes = append(causes, "trim loss or spoilage")
		recs = append(recs, "review rotation practice and storage temperatures")
	}
	if len(causes) == 0 {
		causes = append(causes, "count or receiving error")
		recs = append(recs, "recount the item and verify recent deliveries")
	}
	return causes, recs
}
