package parking

import "github.com/golang/geo/r2"

// Status is the occupancy status of a spot.
type Status string

const (
	StatusAvailable Status = "available"
	StatusOccupied  Status = "occupied"
	StatusReserved  Status = "reserved" // set only by a reservation, never by the classifier
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusOccupied, StatusReserved:
		return true
	}
	return false
}

// Spot represents one marked bay on the lot map.
type Spot struct {
	ID       string   `json:"id"`
	Category Category `json:"category"`
	Status   Status   `json:"status"`
	X        float64  `json:"x"`    // 0-100, percent of image width
	Y        float64  `json:"y"`    // 0-100, percent of image height
	Lane     string   `json:"lane"` // Aisle grouping tag
}

// Position returns the spot centre in normalised coordinates.
func (s Spot) Position() r2.Point {
	return r2.Point{X: s.X, Y: s.Y}
}

// IsAvailable reports whether the spot may be selected as a target.
func (s Spot) IsAvailable() bool {
	return s.Status == StatusAvailable
}
