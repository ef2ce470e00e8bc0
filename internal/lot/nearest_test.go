package lot

import (
	"testing"

	"github.com/golang/geo/r2"

	"github.com/parkpilot/server/internal/domain/parking"
)

func TestFindNearestEmpty(t *testing.T) {
	if _, ok := FindNearest(nil, r2.Point{X: 50, Y: 50}, ""); ok {
		t.Error("expected no spot for an empty list")
	}

	allTaken := []parking.Spot{
		{ID: "A1", Category: parking.CategoryStandard, Status: parking.StatusOccupied, X: 10, Y: 10},
		{ID: "A2", Category: parking.CategoryStandard, Status: parking.StatusReserved, X: 20, Y: 10},
	}
	if _, ok := FindNearest(allTaken, r2.Point{X: 50, Y: 50}, ""); ok {
		t.Error("expected no spot when nothing is available")
	}
}

func TestFindNearestTieBreaksByListOrder(t *testing.T) {
	// Both are exactly 10 units from (50,50)
	spots := []parking.Spot{
		{ID: "LEFT", Category: parking.CategoryStandard, Status: parking.StatusAvailable, X: 40, Y: 50},
		{ID: "RIGHT", Category: parking.CategoryStandard, Status: parking.StatusAvailable, X: 60, Y: 50},
	}

	got, ok := FindNearest(spots, r2.Point{X: 50, Y: 50}, "")
	if !ok || got.ID != "LEFT" {
		t.Errorf("expected LEFT, got %q (found=%v)", got.ID, ok)
	}

	spots[0], spots[1] = spots[1], spots[0]
	got, _ = FindNearest(spots, r2.Point{X: 50, Y: 50}, "")
	if got.ID != "RIGHT" {
		t.Errorf("expected RIGHT after reordering, got %q", got.ID)
	}
}

func TestFindNearestCategoryFilter(t *testing.T) {
	spots := []parking.Spot{
		{ID: "NEAR", Category: parking.CategoryStandard, Status: parking.StatusAvailable, X: 51, Y: 50},
		{ID: "EV", Category: parking.CategoryEV, Status: parking.StatusAvailable, X: 90, Y: 90},
	}

	got, ok := FindNearest(spots, r2.Point{X: 50, Y: 50}, parking.CategoryEV)
	if !ok || got.ID != "EV" {
		t.Errorf("expected EV, got %q", got.ID)
	}
	if _, ok := FindNearest(spots, r2.Point{X: 50, Y: 50}, parking.CategoryPremium); ok {
		t.Error("expected no premium spot")
	}
}

func TestFindNearestSkipsUnavailable(t *testing.T) {
	spots := []parking.Spot{
		{ID: "TAKEN", Category: parking.CategoryStandard, Status: parking.StatusOccupied, X: 50, Y: 51},
		{ID: "FREE", Category: parking.CategoryStandard, Status: parking.StatusAvailable, X: 50, Y: 70},
	}
	got, ok := FindNearest(spots, r2.Point{X: 50, Y: 50}, "")
	if !ok || got.ID != "FREE" {
		t.Errorf("expected FREE, got %q", got.ID)
	}
}
