package finance

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD KEY - One statement per (restaurant, year, month)
// =============================================================================

// PeriodKey identifies a monthly accounting period for one restaurant.
// Statements for different keys are fully independent and safe to compute
// concurrently; within one key the statement's optimistic version serializes
// writers.
type PeriodKey struct {
	Restaurant RestaurantID
	Year       int
	Month      time.Month
}

func NewPeriodKey(restaurant RestaurantID, year int, month time.Month) PeriodKey {
	return PeriodKey{Restaurant: restaurant, Year: year, Month: month}
}

// Validate rejects malformed period keys on ingress.
func (k PeriodKey) Validate() error {
	if k.Restaurant == "" {
		return &InvalidInputError{Field: "restaurant", Reason: "required"}
	}
	if k.Month < time.January || k.Month > time.December {
		return &InvalidInputError{Field: "month", Reason: "must be 1-12"}
	}
	if k.Year < 2000 || k.Year > 2200 {
		return &InvalidInputError{Field: "year", Reason: "out of range"}
	}
	return nil
}

// String renders the key as restaurant/YYYY-MM.
func (k PeriodKey) String() string {
	return fmt.Sprintf("%s/%04d-%02d", k.Restaurant, k.Year, int(k.Month))
}

// MonthName returns the display name used in reports ("January", ...).
func (k PeriodKey) MonthName() string { return k.Month.String() }

// Start returns the first instant of the period (UTC).
func (k PeriodKey) Start() time.Time {
	return time.Date(k.Year, k.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last day of the period (UTC, midnight).
func (k PeriodKey) End() time.Time {
	return k.Start().AddDate(0, 1, -1)
}

// Previous returns the key for the prior month.
func (k PeriodKey) Previous() PeriodKey {
	t := k.Start().AddDate(0, -1, 0)
	return PeriodKey{Restaurant: k.Restaurant, Year: t.Year(), Month: t.Month()}
}
