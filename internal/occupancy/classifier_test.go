package occupancy

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/parkpilot/server/internal/domain/parking"
)

// fill paints rect with a checkerboard of a and b.
func fill(img *image.RGBA, rect image.Rectangle, a, b color.RGBA) {
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if (x+y)%2 == 0 {
				img.SetRGBA(x, y, a)
			} else {
				img.SetRGBA(x, y, b)
			}
		}
	}
}

func newLot(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	asphalt := color.RGBA{80, 80, 80, 255}
	fill(img, img.Bounds(), asphalt, asphalt)
	return img
}

func TestRegionStatsSignagePatch(t *testing.T) {
	img := newLot(40, 40)
	fill(img, img.Rect, color.RGBA{219, 218, 218, 255}, color.RGBA{223, 222, 222, 255})

	s := RegionStats(img, image.Rect(0, 0, 40, 40), 55)
	if math.Abs(s.MeanLuma-220.299) > 0.01 {
		t.Errorf("mean luma %v, want ~220.3", s.MeanLuma)
	}
	if math.Abs(s.StdDev-2) > 0.01 {
		t.Errorf("stddev %v, want 2", s.StdDev)
	}
	if s.MeanChroma != 1 || s.MaxChroma != 1 {
		t.Errorf("chroma %v/%v, want 1/1", s.MeanChroma, s.MaxChroma)
	}
	if s.DarkFraction != 0 || s.Pixels != 1600 {
		t.Errorf("unexpected dark %v pixels %d", s.DarkFraction, s.Pixels)
	}
}

func TestClassifyPaintedVehiclesAndSignage(t *testing.T) {
	// Setup: 200x200 image, sampling box is 10x14 pixels
	img := newLot(200, 200)
	spots := []parking.Spot{
		{ID: "RED", X: 25, Y: 25},
		{ID: "SIGN", X: 75, Y: 25},
		{ID: "EMPTY", X: 25, Y: 75},
	}
	// Red car with texture: chroma 80, luma alternating 30 apart (stddev 15)
	fill(img, image.Rect(35, 30, 65, 70), color.RGBA{200, 120, 120, 255}, color.RGBA{230, 150, 150, 255})
	// White "P" paint
	fill(img, image.Rect(135, 30, 165, 70), color.RGBA{219, 218, 218, 255}, color.RGBA{223, 222, 222, 255})

	// Act
	res := NewClassifier(DefaultThresholds()).Classify(img, spots)

	// Assert
	if _, ok := res.Occupied["RED"]; !ok {
		t.Error("expected RED occupied")
	}
	if _, ok := res.Occupied["SIGN"]; ok {
		t.Error("expected SIGN available")
	}
	if _, ok := res.Occupied["EMPTY"]; ok {
		t.Error("expected EMPTY available")
	}
	if len(res.Regions) != 3 {
		t.Fatalf("expected 3 region reports, got %d", len(res.Regions))
	}
	if res.Regions[0].Rule != "colour_and_texture" {
		t.Errorf("RED decided by %s", res.Regions[0].Rule)
	}
	if ids := res.OccupiedIDs(); len(ids) != 1 || ids[0] != "RED" {
		t.Errorf("unexpected occupied ids %v", ids)
	}
}

func TestClassifySkipsOutOfBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	// Busy everywhere so an in-bounds sample would be occupied
	fill(img, img.Rect, color.RGBA{0, 0, 0, 255}, color.RGBA{255, 255, 255, 255})

	spots := []parking.Spot{
		{ID: "EDGE", X: 100, Y: 50},
		{ID: "CORNER", X: 0, Y: 0},
		{ID: "INSIDE", X: 50, Y: 50},
	}
	res := NewClassifier(DefaultThresholds()).Classify(img, spots)

	for _, id := range []string{"EDGE", "CORNER"} {
		if _, ok := res.Occupied[id]; ok {
			t.Errorf("%s: partially outside box must not be occupied", id)
		}
	}
	if !res.Regions[0].Skipped || !res.Regions[1].Skipped {
		t.Error("expected edge regions to be reported as skipped")
	}
	if _, ok := res.Occupied["INSIDE"]; !ok {
		t.Error("expected INSIDE occupied")
	}
}

func TestClassifyReturnsSubsetOfInput(t *testing.T) {
	img := image.NewRGBA(image.Rect(10, 20, 310, 220)) // non-zero origin
	fill(img, img.Rect, color.RGBA{0, 200, 0, 255}, color.RGBA{40, 240, 40, 255})

	spots := []parking.Spot{}
	for i := 0; i < 9; i++ {
		spots = append(spots, parking.Spot{ID: string(rune('a' + i)), X: 10 + float64(i)*10, Y: 50})
	}
	known := make(map[string]bool)
	for _, s := range spots {
		known[s.ID] = true
	}

	res := NewClassifier(DefaultThresholds()).Classify(img, spots)
	if len(res.Occupied) != len(spots) {
		t.Errorf("expected all %d green regions occupied, got %d", len(spots), len(res.Occupied))
	}
	for id := range res.Occupied {
		if !known[id] {
			t.Errorf("classifier fabricated id %q", id)
		}
	}
}

func TestSampleRectHonoursOrigin(t *testing.T) {
	c := NewClassifier(DefaultThresholds())
	r := c.SampleRect(image.Rect(100, 100, 300, 300), parking.Spot{X: 50, Y: 50})
	want := image.Rect(195, 193, 205, 207)
	if r != want {
		t.Errorf("expected %v, got %v", want, r)
	}
}
