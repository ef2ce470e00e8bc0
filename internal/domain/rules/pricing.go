// Package rules contains the pure calculation logic for lot economics.
// This package is PURE and must NOT import any infrastructure packages.
package rules

import (
	"math"
	"time"

	"github.com/parkpilot/server/internal/domain/parking"
)

// MinimumBilledDuration is the shortest reservation that is charged.
const MinimumBilledDuration = time.Hour

// ReservationCharge computes the price of holding a spot for d.
// Durations are billed in started quarter hours with a one hour minimum.
func ReservationCharge(category parking.Category, d time.Duration) float64 {
	if d < MinimumBilledDuration {
		d = MinimumBilledDuration
	}
	quarters := math.Ceil(d.Minutes() / 15)
	return roundCents(category.HourlyRate() * quarters / 4)
}

// OccupancyRate returns occupied+reserved over total, 0 for an empty lot.
func OccupancyRate(occupied, reserved, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(occupied+reserved) / float64(total)
}

// AverageDuration returns the mean of ds, 0 when empty.
func AverageDuration(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range ds {
		sum += d
	}
	return sum / time.Duration(len(ds))
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
