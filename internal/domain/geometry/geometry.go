// Package geometry holds the planar helpers shared by the physics integrator,
// the navigation guide and the spot finder.
//
// All positions live in the normalised lot space: x and y are percentages
// (0-100) of the lot image width and height, with y growing downwards like the
// image rows. Headings are in degrees, 0 facing +x, positive turning clockwise
// on screen (i.e. to the driver's right).
package geometry

import (
	"math"

	"github.com/golang/geo/r2"
)

const (
	// MinCoord and MaxCoord bound every normalised coordinate.
	MinCoord = 0.0
	MaxCoord = 100.0
)

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampPoint limits both coordinates of p to the normalised range.
func ClampPoint(p r2.Point) r2.Point {
	return r2.Point{
		X: Clamp(p.X, MinCoord, MaxCoord),
		Y: Clamp(p.Y, MinCoord, MaxCoord),
	}
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b r2.Point) float64 {
	return b.Sub(a).Norm()
}

// Bearing returns the angle in degrees of the vector from -> to, atan2(dy, dx).
// The result is in (-180, 180].
func Bearing(from, to r2.Point) float64 {
	d := to.Sub(from)
	return math.Atan2(d.Y, d.X) * 180 / math.Pi
}

// AngleDiff returns the signed turn from heading to bearing normalised into
// (-180, 180]: ((bearing - heading + 540) mod 360) - 180. Positive means the
// target is to the right.
func AngleDiff(bearing, heading float64) float64 {
	d := math.Mod(bearing-heading+540, 360)
	if d < 0 {
		d += 360
	}
	d -= 180
	if d == -180 {
		return 180
	}
	return d
}

// NormalizeHeading maps any angle into [0, 360).
func NormalizeHeading(deg float64) float64 {
	h := math.Mod(deg, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// Direction returns the unit vector for a heading in degrees.
func Direction(deg float64) r2.Point {
	rad := deg * math.Pi / 180
	return r2.Point{X: math.Cos(rad), Y: math.Sin(rad)}
}

// CenteredRect returns the rectangle of the given size centred on c.
func CenteredRect(c r2.Point, width, height float64) r2.Rect {
	return r2.RectFromCenterSize(c, r2.Point{X: width, Y: height})
}
