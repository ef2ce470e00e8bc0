package parking

import (
	"github.com/golang/geo/r2"

	"github.com/parkpilot/server/internal/domain/geometry"
)

// Motion is the coarse motion state of the vehicle.
type Motion string

const (
	MotionDriving Motion = "driving"
	MotionParked  Motion = "parked"
)

// Pose is the part of the vehicle state the navigation guide reads.
type Pose struct {
	Position r2.Point
	Heading  float64
}

// Vehicle represents the single driven car of a session.
type Vehicle struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`       // 0-100
	Y        float64 `json:"y"`       // 0-100
	Heading  float64 `json:"heading"` // Degrees, 0 = +x, clockwise positive
	Speed    float64 `json:"speed"`   // Normalised units per second, negative when reversing
	Motion   Motion  `json:"motion"`
	TargetID string  `json:"target_id,omitempty"` // Weak reference, resolve through the lot on every use
}

// NewVehicle creates a driving vehicle at the given position.
func NewVehicle(id string, x, y, heading float64) *Vehicle {
	v := &Vehicle{
		ID:     id,
		Motion: MotionDriving,
	}
	v.SetPosition(r2.Point{X: x, Y: y})
	v.Heading = geometry.NormalizeHeading(heading)
	return v
}

// Position returns the vehicle position.
func (v *Vehicle) Position() r2.Point {
	return r2.Point{X: v.X, Y: v.Y}
}

// SetPosition moves the vehicle, clamping into the lot bounds.
func (v *Vehicle) SetPosition(p r2.Point) {
	p = geometry.ClampPoint(p)
	v.X, v.Y = p.X, p.Y
}

// Pose returns the current position and heading.
func (v *Vehicle) Pose() Pose {
	return Pose{Position: v.Position(), Heading: v.Heading}
}

// IsParked reports whether the vehicle is frozen in a spot.
func (v *Vehicle) IsParked() bool {
	return v.Motion == MotionParked
}

// Park freezes the vehicle.
func (v *Vehicle) Park() {
	v.Motion = MotionParked
	v.Speed = 0
}

// Drive releases a parked vehicle.
func (v *Vehicle) Drive() {
	v.Motion = MotionDriving
}

// AssignTarget replaces the current target. There is at most one.
func (v *Vehicle) AssignTarget(spotID string) {
	v.TargetID = spotID
}

// ClearTarget drops the target reference.
func (v *Vehicle) ClearTarget() {
	v.TargetID = ""
}

// HasTarget reports whether a target is set.
func (v *Vehicle) HasTarget() bool {
	return v.TargetID != ""
}
