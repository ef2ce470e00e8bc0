package rules

import (
	"testing"
	"time"

	"github.com/parkpilot/server/internal/domain/parking"
)

func TestReservationChargeMinimum(t *testing.T) {
	got := ReservationCharge(parking.CategoryStandard, 10*time.Minute)
	if got != 2.5 {
		t.Errorf("expected one hour minimum 2.5, got %v", got)
	}
}

func TestReservationChargeQuarterHours(t *testing.T) {
	// 1h20 rounds up to 1h30
	got := ReservationCharge(parking.CategoryPremium, 80*time.Minute)
	if got != 9 {
		t.Errorf("expected 9, got %v", got)
	}
}

func TestOccupancyRate(t *testing.T) {
	if OccupancyRate(0, 0, 0) != 0 {
		t.Error("empty lot should have rate 0")
	}
	if got := OccupancyRate(3, 1, 8); got != 0.5 {
		t.Errorf("expected 0.5, got %v", got)
	}
}

func TestAverageDuration(t *testing.T) {
	if AverageDuration(nil) != 0 {
		t.Error("expected 0 for no samples")
	}
	got := AverageDuration([]time.Duration{10 * time.Second, 20 * time.Second})
	if got != 15*time.Second {
		t.Errorf("expected 15s, got %v", got)
	}
}
