package lot

import (
	"fmt"

	"github.com/parkpilot/server/internal/domain/parking"
)

// DefaultLotID names the demo lot.
const DefaultLotID = "main"

// SeedLayout returns the fixed demo lot: two aisles of bays facing a central
// driving lane, with the special categories near the entrance on the left.
func SeedLayout() []parking.Spot {
	spots := make([]parking.Spot, 0, 20)
	top := []parking.Category{
		parking.CategoryAccessible, parking.CategoryAccessible, parking.CategoryEV, parking.CategoryEV,
		parking.CategoryStandard, parking.CategoryStandard, parking.CategoryStandard, parking.CategoryCompact,
		parking.CategoryCompact, parking.CategoryPremium,
	}
	bottom := []parking.Category{
		parking.CategoryStandard, parking.CategoryStandard, parking.CategoryStandard, parking.CategoryStandard,
		parking.CategoryCompact, parking.CategoryCompact, parking.CategoryStandard, parking.CategoryStandard,
		parking.CategoryPremium, parking.CategoryPremium,
	}
	for i, c := range top {
		spots = append(spots, parking.Spot{
			ID:       fmt.Sprintf("A%d", i+1),
			Category: c,
			Status:   parking.StatusAvailable,
			X:        10 + float64(i)*8.5,
			Y:        22,
			Lane:     "A",
		})
	}
	for i, c := range bottom {
		spots = append(spots, parking.Spot{
			ID:       fmt.Sprintf("B%d", i+1),
			Category: c,
			Status:   parking.StatusAvailable,
			X:        10 + float64(i)*8.5,
			Y:        78,
			Lane:     "B",
		})
	}
	return spots
}

// GridOptions shapes a generated lot.
type GridOptions struct {
	Rows, Cols int
	MarginX    float64 // empty border on the left and right, in normalised units
	MarginY    float64 // empty border on the top and bottom
	// Every Nth bay of a row gets a special category. Zero disables it.
	AccessibleEvery int
	EVEvery         int
}

// GenerateGrid builds rows x cols evenly spaced bays. Each row is a lane
// labelled with a letter; IDs are lane letter plus 1-based column.
func GenerateGrid(opts GridOptions) ([]parking.Spot, error) {
	if opts.Rows <= 0 || opts.Cols <= 0 {
		return nil, fmt.Errorf("grid needs positive rows and cols, got %dx%d", opts.Rows, opts.Cols)
	}
	if opts.Rows > 26 {
		return nil, fmt.Errorf("grid supports at most 26 rows, got %d", opts.Rows)
	}

	stepX := (100 - 2*opts.MarginX) / float64(max(opts.Cols-1, 1))
	stepY := (100 - 2*opts.MarginY) / float64(max(opts.Rows-1, 1))

	spots := make([]parking.Spot, 0, opts.Rows*opts.Cols)
	for r := 0; r < opts.Rows; r++ {
		lane := string(rune('A' + r))
		for c := 0; c < opts.Cols; c++ {
			cat := parking.CategoryStandard
			switch {
			case opts.AccessibleEvery > 0 && c%opts.AccessibleEvery == 0:
				cat = parking.CategoryAccessible
			case opts.EVEvery > 0 && c%opts.EVEvery == opts.EVEvery-1:
				cat = parking.CategoryEV
			}
			spots = append(spots, parking.Spot{
				ID:       fmt.Sprintf("%s%d", lane, c+1),
				Category: cat,
				Status:   parking.StatusAvailable,
				X:        opts.MarginX + float64(c)*stepX,
				Y:        opts.MarginY + float64(r)*stepY,
				Lane:     lane,
			})
		}
	}
	return spots, nil
}
