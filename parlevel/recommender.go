/*
recommender.go - Safety-stock math

PURPOSE:
  Classic reorder-point arithmetic over observed daily usage:

    safetyStock    = z x stddev(daily usage) x sqrt(leadDays)
    recommendedPar = mean(daily usage) x leadDays + safetyStock

  z comes from the configured service level (one-sided normal quantile).
  Confidence grades the inputs, not the math:

    confidence = n/(n+4) x 1/(1+cv)        cv = stddev/mean

  so few observations or erratic usage both pull confidence down, and it
  approaches 1 only with a long, steady history.

  Statistics run in float64 (sqrt has no exact decimal form); outputs are
  rounded half-up to 2dp at the boundary.
*/
package parlevel

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tably/margin-engine/counting"
	"github.com/tably/margin-engine/finance"
)

// =============================================================================
// SERVICE LEVELS
// =============================================================================

// zScores maps supported service levels to one-sided normal quantiles.
var zScores = map[string]float64{
	"0.90":  1.282,
	"0.95":  1.645,
	"0.975": 1.960,
	"0.99":  2.326,
}

const DefaultServiceLevel = "0.95"

// =============================================================================
// RECOMMENDER
// =============================================================================

// MinObservations is the smallest usage history a recommendation accepts.
// Below this the stddev is too noisy to price safety stock from.
const MinObservations = 3

type Recommender struct {
	ServiceLevel string
}

func NewRecommender() *Recommender {
	return &Recommender{ServiceLevel: DefaultServiceLevel}
}

func (r *Recommender) z() (float64, error) {
	level := r.ServiceLevel
	if level == "" {
		level = DefaultServiceLevel
	}
	z, ok := zScores[level]
	if !ok {
		return 0, &finance.InvalidInputError{
			Field: "service_level", Value: level,
			Reason: "supported levels are 0.90, 0.95, 0.975, 0.99",
		}
	}
	return z, nil
}

// UsageInput is the history a recommendation is computed from.
type UsageInput struct {
	ItemID counting.ItemID

	// DailyUsage is observed consumption per day, most-recent-last.
	DailyUsage []decimal.Decimal

	LeadDays int
}

// Recommend computes a new recommendation. The result is not yet persisted
// or activated; see RecommendationStore.SupersedeRecommendation.
func (r *Recommender) Recommend(in UsageInput, id RecommendationID, now time.Time) (*Recommendation, error) {
	z, err := r.z()
	if err != nil {
		return nil, err
	}
	if in.LeadDays <= 0 {
		return nil, &finance.InvalidInputError{
			Field: "lead_days", Value: in.LeadDays, Reason: "must be positive",
		}
	}
	if len(in.DailyUsage) < MinObservations {
		return nil, &finance.InvalidInputError{
			Field: "daily_usage", Value: len(in.DailyUsage),
			Reason: "needs at least 3 observations",
		}
	}

	usage := make([]float64, len(in.DailyUsage))
	for i, d := range in.DailyUsage {
		if d.IsNegative() {
			return nil, &finance.InvalidInputError{
				Field: "daily_usage", Value: d, Reason: "must be non-negative",
			}
		}
		usage[i], _ = d.Float64()
	}

	mean, stddev := meanStddev(usage)
	lead := float64(in.LeadDays)

	safety := z * stddev * math.Sqrt(lead)
	par := mean*lead + safety

	n := float64(len(usage))
	confidence := n / (n + 4)
	if mean > 0 {
		confidence /= 1 + stddev/mean
	}

	rec := &Recommendation{
		ID:             id,
		ItemID:         in.ItemID,
		RecommendedPar: round2(par),
		SafetyStock:    round2(safety),
		Confidence:     round2f(confidence, 4),
		Rationale: map[string]any{
			"mean_daily_usage":   round2(mean).String(),
			"stddev_daily_usage": round2(stddev).String(),
			"lead_days":          in.LeadDays,
			"service_level":      r.ServiceLevel,
			"z_score":            z,
			"observations":       len(usage),
		},
		ValidFrom: now,
		IsActive:  true,
		CreatedAt: now,
	}
	return rec, nil
}

// meanStddev returns the sample mean and population standard deviation.
func meanStddev(xs []float64) (mean, stddev float64) {
	n := float64(len(xs))
	for _, x := range xs {
		mean += x
	}
	mean /= n

	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return mean, math.Sqrt(sumSq / n)
}

func round2(f float64) decimal.Decimal {
	return round2f(f, 2)
}

func round2f(f float64, places int32) decimal.Decimal {
	return finance.RoundHalfUp(decimal.NewFromFloat(f), places)
}
