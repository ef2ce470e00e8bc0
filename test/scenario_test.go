package test

import (
	"context"
	"testing"

	"github.com/parkpilot/server/internal/domain/parking"
	"github.com/parkpilot/server/internal/lot"
)

func TestDriveScenarioPasses(t *testing.T) {
	// Setup
	s, err := NewDriveScenario(nil, "A3", "A4", "B1")
	if err != nil {
		t.Fatalf("scenario: %v", err)
	}

	// Act
	s.Run(context.Background())

	// Assert
	for _, r := range s.Results() {
		if !r.Passed {
			t.Errorf("step %s failed: %s", r.Name, r.Detail)
		}
	}
	if !s.Passed() {
		t.Fatal("scenario did not pass")
	}
	if spot, _ := s.Engine().Spot("B2"); spot.Status != parking.StatusOccupied {
		t.Errorf("B2 = %s, want occupied", spot.Status)
	}
}

func TestRenderLotPaintsOnlyOccupiedSpots(t *testing.T) {
	spots := lot.SeedLayout()
	img := RenderLot(spots, []string{"A1"}, 200, 100)

	a1 := img.RGBAAt(int(spots[0].X*2), int(spots[0].Y))
	if a1 != carRed {
		t.Errorf("A1 pixel = %v, want car red", a1)
	}
	a2 := img.RGBAAt(int(spots[1].X*2), int(spots[1].Y))
	if a2 != asphalt {
		t.Errorf("A2 pixel = %v, want asphalt", a2)
	}
}
