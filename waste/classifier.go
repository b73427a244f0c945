/*
classifier.go - Deterministic waste/theft scoring rules

PURPOSE:
  Scores a single variance observation into three independent 0-100
  probabilities. This is a rule table, not a learned model: every score must
  be explainable from the observation alone, and recomputing the same
  observation always yields the same scores.

SCORING RULES (weights chosen so each score is monotone in its drivers):

  TheftProbability - sustained disappearance of stock.
    Only a shortage can indicate theft. Base weight comes from severity
    (low 5, medium 15, high 35, critical 50), plus 10 points per trailing
    consecutive shortage period (capped at 5), plus a 15-point persistence
    bonus once the streak reaches 3 with severity high/critical. More
    consecutive shortages never lowers the score.

  PortionControlScore - small, repeated losses.
    Shortage at low/medium severity with frequent small historical
    shortages: base 20, plus 12 per small shortage observed in history
    (capped at 6). A large sporadic loss scores low here and high on theft.

  SpoilageScore - usage above recipe prediction on perishables.
    Only an overage (more used than theoretical) can indicate trim or
    spoilage loss. Perishable category contributes base 30 (10 otherwise),
    plus half the severity weight, plus 5 per trailing overage period
    (capped at 4).

  The scores are independent and do not sum to 100; one observation may
  score high on more than one axis.

SEE ALSO:
  - types.go: ClassifyType maps scores onto a WasteType
  - counting: feeds observations from count-session analysis
*/
package waste

import (
	"github.com/shopspring/decimal"

	"github.com/tably/margin-engine/finance"
)

// =============================================================================
// OBSERVATION - classifier input
// =============================================================================

// Observation is one item's variance picture: the current comparison plus
// the historical variance percentages for the same item, most-recent-last.
type Observation struct {
	Direction finance.Direction
	Severity  finance.Severity

	// History holds past variance percentages (negative = shortage),
	// most-recent-last. The current period is not included.
	History []decimal.Decimal

	// Perishable marks items in spoilage-prone categories.
	Perishable bool
}

// Scores holds the three independent probabilities, each 0-100 at 2dp.
type Scores struct {
	Theft          decimal.Decimal
	PortionControl decimal.Decimal
	Spoilage       decimal.Decimal
}

// Dominant returns the highest score and its axis as a WasteType
// (WasteUnknown when nothing clears zero).
func (s Scores) Dominant() (WasteType, decimal.Decimal) {
	best, bestType := decimal.Zero, WasteUnknown
	if s.Theft.GreaterThan(best) {
		best, bestType = s.Theft, WasteTheft
	}
	if s.PortionControl.GreaterThan(best) {
		best, bestType = s.PortionControl, WastePortionControl
	}
	if s.Spoilage.GreaterThan(best) {
		best, bestType = s.Spoilage, WasteSpoilage
	}
	return bestType, best
}

// =============================================================================
// CLASSIFIER
// =============================================================================

// Classifier scores observations. FlagThreshold is the score at or above
// which an analysis counts as a flagged issue in report aggregates and at
// which ClassifyType commits to a specific waste type.
type Classifier struct {
	FlagThreshold decimal.Decimal
}

// DefaultFlagThreshold matches the reporting convention: a score of 60+
// flags the item.
var DefaultFlagThreshold = decimal.NewFromInt(60)

func NewClassifier() *Classifier {
	return &Classifier{FlagThreshold: DefaultFlagThreshold}
}

func (c *Classifier) threshold() decimal.Decimal {
	if c.FlagThreshold.IsZero() {
		return DefaultFlagThreshold
	}
	return c.FlagThreshold
}

var scoreCap = decimal.NewFromInt(100)

func clampScore(n int64) decimal.Decimal {
	d := decimal.NewFromInt(n)
	if d.GreaterThan(scoreCap) {
		return scoreCap
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func severityWeight(s finance.Severity) int64 {
	switch s {
	case finance.SeverityCritical:
		return 50
	case finance.SeverityHigh:
		return 35
	case finance.SeverityMedium:
		return 15
	default:
		return 5
	}
}

// Score evaluates one observation. Pure function; no clock, no randomness.
func (c *Classifier) Score(obs Observation) Scores {
	return Scores{
		Theft:          c.theftScore(obs),
		PortionControl: c.portionScore(obs),
		Spoilage:       c.spoilageScore(obs),
	}
}

// theftScore: shortage persistence x severity.
func (c *Classifier) theftScore(obs Observation) decimal.Decimal {
	if obs.Direction != finance.DirectionShortage {
		return decimal.Zero
	}

	streak := int64(1) // the current shortage
	for i := len(obs.History) - 1; i >= 0; i-- {
		if !obs.History[i].IsNegative() {
			break
		}
		streak++
	}

	capped := streak
	if capped > 5 {
		capped = 5
	}
	score := severityWeight(obs.Severity) + 10*capped
	if streak >= 3 && obs.Severity.AtLeast(finance.SeverityHigh) {
		score += 15
	}
	return clampScore(score)
}

// portionScore: frequent small shortages, severity staying low/medium.
func (c *Classifier) portionScore(obs Observation) decimal.Decimal {
	if obs.Direction != finance.DirectionShortage {
		return decimal.Zero
	}
	if obs.Severity.AtLeast(finance.SeverityHigh) {
		// Large losses point at theft, not portioning.
		return clampScore(10)
	}

	smallShortages := int64(0)
	floor := decimal.NewFromInt(-15)
	for _, pct := range obs.History {
		if pct.IsNegative() && pct.GreaterThan(floor) {
			smallShortages++
		}
	}
	if smallShortages > 6 {
		smallShortages = 6
	}
	return clampScore(20 + 12*smallShortages)
}

// spoilageScore: theoretical-usage overage on perishables.
func (c *Classifier) spoilageScore(obs Observation) decimal.Decimal {
	if obs.Direction != finance.DirectionOverage {
		return decimal.Zero
	}

	base := int64(10)
	if obs.Perishable {
		base = 30
	}

	overageStreak := int64(0)
	for i := len(obs.History) - 1; i >= 0; i-- {
		if !obs.History[i].IsPositive() {
			break
		}
		overageStreak++
	}
	if overageStreak > 4 {
		overageStreak = 4
	}
	return clampScore(base + severityWeight(obs.Severity)/2 + 5*overageStreak)
}

// ClassifyType commits to a waste type when a score clears the flag
// threshold. A high-severity non-perishable overage with no flagged score
// reads as overproduction; everything else stays unknown.
func (c *Classifier) ClassifyType(scores Scores, obs Observation) WasteType {
	t, best := scores.Dominant()
	if best.GreaterThanOrEqual(c.threshold()) {
		return t
	}
	if obs.Direction == finance.DirectionOverage &&
		obs.Severity.AtLeast(finance.SeverityHigh) && !obs.Perishable {
		return WasteOverproduction
	}
	return WasteUnknown
}
