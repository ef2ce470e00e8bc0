package engine

import (
	"math"
	"testing"
	"time"

	"github.com/parkpilot/server/internal/domain/parking"
)

func TestIntegrateAcceleratesToMaxSpeed(t *testing.T) {
	ps := NewPhysicsSystem(DefaultDynamics())
	v := parking.NewVehicle("car", 10, 50, 0)

	for i := 0; i < 100; i++ {
		ps.Integrate(v, Intents{Forward: true}, 20*time.Millisecond)
	}
	if v.Speed != DefaultDynamics().MaxSpeed {
		t.Errorf("expected max speed %v, got %v", DefaultDynamics().MaxSpeed, v.Speed)
	}
	if v.Y != 50 {
		t.Errorf("heading 0 must keep y, got %v", v.Y)
	}
}

func TestIntegrateFrictionStops(t *testing.T) {
	ps := NewPhysicsSystem(DefaultDynamics())
	v := parking.NewVehicle("car", 10, 50, 0)
	v.Speed = 5

	for i := 0; i < 20; i++ {
		ps.Integrate(v, Intents{}, 20*time.Millisecond)
	}
	if v.Speed != 0 {
		t.Errorf("expected coasting to a stop, got %v", v.Speed)
	}
}

func TestIntegrateBrakeThenReverse(t *testing.T) {
	ps := NewPhysicsSystem(DefaultDynamics())
	v := parking.NewVehicle("car", 50, 50, 0)
	v.Speed = 1

	ps.Integrate(v, Intents{Back: true}, 100*time.Millisecond)
	if v.Speed != 0 {
		t.Fatalf("braking should stop at zero, got %v", v.Speed)
	}
	ps.Integrate(v, Intents{Back: true}, 100*time.Millisecond)
	if v.Speed >= 0 {
		t.Errorf("expected reversing, got %v", v.Speed)
	}
	for i := 0; i < 50; i++ {
		ps.Integrate(v, Intents{Back: true}, 100*time.Millisecond)
	}
	if v.Speed != -DefaultDynamics().MaxReverse {
		t.Errorf("expected max reverse, got %v", v.Speed)
	}
}

func TestIntegrateTurnsInPlace(t *testing.T) {
	ps := NewPhysicsSystem(DefaultDynamics())
	v := parking.NewVehicle("car", 50, 50, 0)

	ps.Integrate(v, Intents{Right: true}, 500*time.Millisecond)
	if math.Abs(v.Heading-60) > 1e-9 {
		t.Errorf("expected heading 60, got %v", v.Heading)
	}
	ps.Integrate(v, Intents{Left: true}, time.Second)
	if math.Abs(v.Heading-300) > 1e-9 {
		t.Errorf("expected heading 300, got %v", v.Heading)
	}
	if v.X != 50 || v.Y != 50 {
		t.Errorf("turning in place moved the car to (%v,%v)", v.X, v.Y)
	}
}

func TestIntegrateClampsAtEdge(t *testing.T) {
	ps := NewPhysicsSystem(DefaultDynamics())
	v := parking.NewVehicle("car", 99.5, 50, 0)
	v.Speed = 20

	ps.Integrate(v, Intents{Forward: true}, 100*time.Millisecond)
	if v.X != 100 || v.Speed != 0 {
		t.Errorf("expected stop at the edge, got x=%v speed=%v", v.X, v.Speed)
	}
}

func TestIntegrateParkedIsFrozen(t *testing.T) {
	ps := NewPhysicsSystem(DefaultDynamics())
	v := parking.NewVehicle("car", 30, 30, 90)
	v.Park()

	ps.Integrate(v, Intents{Forward: true, Right: true}, time.Second)
	if v.X != 30 || v.Y != 30 || v.Heading != 90 || v.Speed != 0 {
		t.Errorf("parked vehicle moved: %+v", v)
	}
}

func TestParseDirection(t *testing.T) {
	cases := map[string]Direction{
		"ArrowUp": DirectionForward,
		"s":       DirectionBack,
		"LEFT":    DirectionLeft,
		" d ":     DirectionRight,
	}
	for in, want := range cases {
		got, err := ParseDirection(in)
		if err != nil || got != want {
			t.Errorf("ParseDirection(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParseDirection("jump"); err == nil {
		t.Error("expected error for unknown direction")
	}
}
