package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/parkpilot/server/internal/domain/geometry"
	"github.com/parkpilot/server/internal/domain/parking"
)

// Direction is one of the four keyboard intents.
type Direction string

const (
	DirectionForward Direction = "forward"
	DirectionBack    Direction = "back"
	DirectionLeft    Direction = "left"
	DirectionRight   Direction = "right"
)

// ParseDirection accepts the direction names plus the usual key aliases.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "forward", "up", "arrowup", "w":
		return DirectionForward, nil
	case "back", "backward", "down", "arrowdown", "s":
		return DirectionBack, nil
	case "left", "arrowleft", "a":
		return DirectionLeft, nil
	case "right", "arrowright", "d":
		return DirectionRight, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDirection, s)
}

// Intents is the set of currently pressed directions.
type Intents struct {
	Forward bool `json:"forward"`
	Back    bool `json:"back"`
	Left    bool `json:"left"`
	Right   bool `json:"right"`
}

// With returns a copy of in with d set to pressed.
func (in Intents) With(d Direction, pressed bool) Intents {
	switch d {
	case DirectionForward:
		in.Forward = pressed
	case DirectionBack:
		in.Back = pressed
	case DirectionLeft:
		in.Left = pressed
	case DirectionRight:
		in.Right = pressed
	}
	return in
}

// Dynamics are the vehicle handling constants, in normalised units.
type Dynamics struct {
	Acceleration float64 // units/s² while throttle is held
	Braking      float64 // units/s² when pressing against the motion
	Friction     float64 // units/s² coasting deceleration
	MaxSpeed     float64 // units/s forward
	MaxReverse   float64 // units/s backward
	TurnRate     float64 // degrees/s
}

// DefaultDynamics returns the demo handling.
func DefaultDynamics() Dynamics {
	return Dynamics{
		Acceleration: 40,
		Braking:      60,
		Friction:     25,
		MaxSpeed:     25,
		MaxReverse:   8,
		TurnRate:     120,
	}
}

// PhysicsSystem integrates the vehicle pose from the pressed intents.
type PhysicsSystem struct {
	dynamics Dynamics
}

// NewPhysicsSystem creates the integrator.
func NewPhysicsSystem(d Dynamics) *PhysicsSystem {
	return &PhysicsSystem{dynamics: d}
}

// Integrate advances v by dt. A parked vehicle does not move. Steering works
// in place; hitting the lot edge stops the vehicle.
func (ps *PhysicsSystem) Integrate(v *parking.Vehicle, in Intents, dt time.Duration) {
	if v.IsParked() || dt <= 0 {
		return
	}
	d := ps.dynamics
	secs := dt.Seconds()

	switch {
	case in.Forward && !in.Back:
		if v.Speed < 0 {
			v.Speed = min(v.Speed+d.Braking*secs, 0)
		} else {
			v.Speed += d.Acceleration * secs
		}
	case in.Back && !in.Forward:
		if v.Speed > 0 {
			v.Speed = max(v.Speed-d.Braking*secs, 0)
		} else {
			v.Speed -= d.Acceleration * secs
		}
	default:
		if v.Speed > 0 {
			v.Speed = max(v.Speed-d.Friction*secs, 0)
		} else if v.Speed < 0 {
			v.Speed = min(v.Speed+d.Friction*secs, 0)
		}
	}
	v.Speed = geometry.Clamp(v.Speed, -d.MaxReverse, d.MaxSpeed)

	if in.Right != in.Left {
		turn := d.TurnRate * secs
		if in.Left {
			turn = -turn
		}
		v.Heading = geometry.NormalizeHeading(v.Heading + turn)
	}

	if v.Speed == 0 {
		return
	}
	next := v.Position().Add(geometry.Direction(v.Heading).Mul(v.Speed * secs))
	clamped := geometry.ClampPoint(next)
	if clamped != next {
		v.Speed = 0
	}
	v.SetPosition(clamped)
}

// SetIntent records a key press or release.
func (e *Engine) SetIntent(d Direction, pressed bool) error {
	switch d {
	case DirectionForward, DirectionBack, DirectionLeft, DirectionRight:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDirection, d)
	}
	e.mu.Lock()
	e.intents = e.intents.With(d, pressed)
	e.mu.Unlock()
	return nil
}

// Intents returns the pressed directions.
func (e *Engine) Intents() Intents {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.intents
}

// Step advances the simulation by dt and notifies vehicle observers if the
// vehicle moved.
func (e *Engine) Step(dt time.Duration) {
	e.mu.Lock()
	before := *e.vehicle
	e.physics.Integrate(e.vehicle, e.intents, dt)
	moved := before.X != e.vehicle.X || before.Y != e.vehicle.Y || before.Heading != e.vehicle.Heading
	var snap VehicleSnapshot
	if moved {
		snap = e.vehicleSnapshotLocked()
	}
	e.mu.Unlock()

	if moved {
		e.notifyVehicle(snap)
	}
}

// maxStep bounds dt after a stall so the vehicle never teleports.
const maxStep = 100 * time.Millisecond

func (e *Engine) onPhysicsTick(now time.Time) {
	start := time.Now()
	dt := e.physicsTicker.Interval()
	if !e.lastStep.IsZero() {
		dt = min(now.Sub(e.lastStep), maxStep)
	}
	e.lastStep = now
	e.Step(dt)
	e.metrics.RecordTick(time.Since(start))
}
