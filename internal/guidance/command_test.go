package guidance

import (
	"testing"

	"github.com/golang/geo/r2"

	"github.com/parkpilot/server/internal/domain/geometry"
)

func TestSteerBoundaries(t *testing.T) {
	cfg := DefaultConfig()
	far := 50.0
	cases := []struct {
		diff float64
		want Command
	}{
		{0, CommandStraight},
		{25, CommandStraight},
		{26, CommandTurnRight},
		{-25, CommandStraight},
		{-26, CommandTurnLeft},
		{130, CommandTurnRight},
		{131, CommandTurnAround},
		{-131, CommandTurnAround},
		{180, CommandTurnAround},
	}
	for _, c := range cases {
		if got := Steer(c.diff, far, cfg); got != c.want {
			t.Errorf("Steer(%v) = %s, want %s", c.diff, got, c.want)
		}
	}
}

func TestSteerNearTargetIsSideRelative(t *testing.T) {
	cfg := DefaultConfig()
	if got := Steer(60, 4.5, cfg); got != CommandSpotOnRight {
		t.Errorf("expected spot on right, got %s", got)
	}
	if got := Steer(-170, 4.5, cfg); got != CommandSpotOnLeft {
		t.Errorf("expected spot on left, got %s", got)
	}
	if got := Steer(0, 4.5, cfg); got != CommandSpotAhead {
		t.Errorf("expected spot ahead, got %s", got)
	}
}

func TestSteerAcrossHeadingWrap(t *testing.T) {
	// Heading 170, target bearing -170 (190): 20 degrees right, still straight
	from := r2.Point{X: 50, Y: 50}
	to := from.Add(geometry.Direction(-170).Mul(30))
	diff := geometry.AngleDiff(geometry.Bearing(from, to), 170)
	if diff < 19.999 || diff > 20.001 {
		t.Fatalf("expected diff 20, got %v", diff)
	}
	if got := Steer(diff, 30, DefaultConfig()); got != CommandStraight {
		t.Errorf("expected straight for 20 degrees, got %s", got)
	}
}

func TestCommandText(t *testing.T) {
	for c := CommandStraight; c <= CommandSpotAhead; c++ {
		if c.Text() == "" {
			t.Errorf("command %s has no text", c)
		}
	}
}
