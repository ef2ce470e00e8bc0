// Package occupancy decides which spots in a lot photograph hold a vehicle.
//
// For every spot a small box around its centre is sampled and reduced to a
// handful of statistics (luma, chroma, shadow share, texture). An ordered list
// of rules maps those statistics to occupied or available. The classifier is
// a pure function of the image and the spot coordinates; it never reads or
// writes spot statuses.
package occupancy

import (
	"image"
	"math"

	"github.com/golang/geo/r2"

	"github.com/parkpilot/server/internal/domain/geometry"
	"github.com/parkpilot/server/internal/domain/parking"
)

// RegionReport explains the verdict for one spot.
type RegionReport struct {
	SpotID  string          `json:"spot_id"`
	Rect    image.Rectangle `json:"rect"`
	Stats   Stats           `json:"stats"`
	Verdict string          `json:"verdict"`
	Rule    string          `json:"rule"`
	Skipped bool            `json:"skipped"` // box left the image, treated as available
}

// Result is the outcome of one classification.
type Result struct {
	Occupied map[string]struct{} `json:"-"`
	Regions  []RegionReport      `json:"regions"`
}

// OccupiedIDs returns the occupied spot IDs in input order.
func (r Result) OccupiedIDs() []string {
	ids := make([]string, 0, len(r.Occupied))
	for _, reg := range r.Regions {
		if _, ok := r.Occupied[reg.SpotID]; ok {
			ids = append(ids, reg.SpotID)
		}
	}
	return ids
}

// Classifier applies a rule list with fixed thresholds.
type Classifier struct {
	thresholds Thresholds
	rules      []Rule
}

// NewClassifier builds a classifier using DefaultRules.
func NewClassifier(t Thresholds) *Classifier {
	return &Classifier{thresholds: t, rules: DefaultRules}
}

// Thresholds returns the thresholds in use.
func (c *Classifier) Thresholds() Thresholds {
	return c.thresholds
}

// Classify samples every spot in img. Only spot IDs and coordinates are read.
func (c *Classifier) Classify(img image.Image, spots []parking.Spot) Result {
	bounds := img.Bounds()
	res := Result{
		Occupied: make(map[string]struct{}),
		Regions:  make([]RegionReport, 0, len(spots)),
	}

	for _, s := range spots {
		rect := c.SampleRect(bounds, s)
		report := RegionReport{SpotID: s.ID, Rect: rect}

		if rect.Empty() || !rect.In(bounds) {
			report.Skipped = true
			report.Verdict = Available.String()
			report.Rule = "out_of_bounds"
			res.Regions = append(res.Regions, report)
			continue
		}

		report.Stats = RegionStats(img, rect, c.thresholds.DarkLuma)
		verdict, rule := Decide(c.rules, report.Stats, c.thresholds)
		report.Verdict = verdict.String()
		report.Rule = rule
		if verdict == Occupied {
			res.Occupied[s.ID] = struct{}{}
		}
		res.Regions = append(res.Regions, report)
	}
	return res
}

// SampleRect returns the pixel box sampled for spot s in an image with the
// given bounds. The box may extend past the bounds.
func (c *Classifier) SampleRect(bounds image.Rectangle, s parking.Spot) image.Rectangle {
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	center := r2.Point{
		X: float64(bounds.Min.X) + s.X/100*w,
		Y: float64(bounds.Min.Y) + s.Y/100*h,
	}
	box := geometry.CenteredRect(center, c.thresholds.BoxWidth*w, c.thresholds.BoxHeight*h)
	return image.Rect(
		int(math.Round(box.X.Lo)), int(math.Round(box.Y.Lo)),
		int(math.Round(box.X.Hi)), int(math.Round(box.Y.Hi)),
	)
}
