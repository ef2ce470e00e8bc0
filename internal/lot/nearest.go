package lot

import (
	"github.com/golang/geo/r2"

	"github.com/parkpilot/server/internal/domain/geometry"
	"github.com/parkpilot/server/internal/domain/parking"
)

// FindNearest returns the available spot closest to from. An empty category
// matches any category. Ties go to the spot that comes first in spots. The
// boolean is false when no candidate exists.
func FindNearest(spots []parking.Spot, from r2.Point, category parking.Category) (parking.Spot, bool) {
	var (
		best     parking.Spot
		bestDist float64
		found    bool
	)
	for _, s := range spots {
		if !s.IsAvailable() {
			continue
		}
		if category != "" && s.Category != category {
			continue
		}
		d := geometry.Distance(from, s.Position())
		if !found || d < bestDist {
			best, bestDist, found = s, d, true
		}
	}
	return best, found
}
