// Package test holds the deterministic end-to-end drive scenario used by
// cmd/test-runner and the package tests. It wires a real engine, classifier
// and lot, drives the vehicle with a simple autopilot on a simulated clock and
// checks every stage of a parking session.
package test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/parkpilot/server/internal/domain/geometry"
	"github.com/parkpilot/server/internal/domain/parking"
	"github.com/parkpilot/server/internal/engine"
	"github.com/parkpilot/server/internal/events"
	"github.com/parkpilot/server/internal/guidance"
	"github.com/parkpilot/server/internal/lot"
	"github.com/parkpilot/server/internal/occupancy"
	"github.com/parkpilot/server/internal/platform/logger"
)

const (
	stepInterval  = 20 * time.Millisecond
	checkInterval = time.Second
	maxDriveTime  = 90 * time.Second
)

var (
	asphalt = color.RGBA{R: 110, G: 110, B: 110, A: 255}
	carRed  = color.RGBA{R: 200, G: 40, B: 40, A: 255}
)

// StepResult captures the outcome of each scenario stage.
type StepResult struct {
	Name   string
	Passed bool
	Detail string
}

// simClock is the scenario's manual clock.
type simClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *simClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *simClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// DriveScenario parks one vehicle on the seed lot.
type DriveScenario struct {
	engine       *engine.Engine
	eventLog     *events.EventLog
	clock        *simClock
	logger       *logger.Logger
	occupied     []string
	instructions int
	results      []StepResult
}

// NewDriveScenario creates the scenario harness. occupied lists the spots
// painted as cars in the uploaded image.
func NewDriveScenario(log *logger.Logger, occupied ...string) (*DriveScenario, error) {
	if log == nil {
		log = logger.Discard()
	}
	l, err := lot.New(lot.DefaultLotID, lot.SeedLayout())
	if err != nil {
		return nil, err
	}
	clock := &simClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	opts := engine.DefaultOptions()
	opts.Clock = clock.Now

	el := events.NewEventLog()
	v := parking.NewVehicle("car-1", 5, 50, 0)
	eng := engine.NewEngine(l, v, occupancy.NewClassifier(occupancy.DefaultThresholds()), el, log, opts)

	return &DriveScenario{
		engine:   eng,
		eventLog: el,
		clock:    clock,
		logger:   log,
		occupied: occupied,
	}, nil
}

// Engine exposes the engine under test.
func (s *DriveScenario) Engine() *engine.Engine {
	return s.engine
}

// Results returns the recorded stage outcomes.
func (s *DriveScenario) Results() []StepResult {
	return s.results
}

func (s *DriveScenario) record(name string, passed bool, format string, args ...any) {
	r := StepResult{Name: name, Passed: passed, Detail: fmt.Sprintf(format, args...)}
	s.results = append(s.results, r)
	s.logger.Info("scenario step", "step", name, "passed", passed, "detail", r.Detail)
}

// Passed reports whether every recorded stage passed.
func (s *DriveScenario) Passed() bool {
	for _, r := range s.results {
		if !r.Passed {
			return false
		}
	}
	return len(s.results) > 0
}

// Run executes every stage in order. Later stages still run after a failure.
func (s *DriveScenario) Run(ctx context.Context) {
	s.classify(ctx)
	s.rejectGarbage(ctx)
	s.noEVSpot()
	s.reserve()
	target := s.findStandard()
	if target != "" {
		s.drive(target)
	}
	s.checkStats()
}

// RenderLot paints an asphalt image of the given size with a red car over
// every spot in occupied.
func RenderLot(spots []parking.Spot, occupied []string, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: asphalt}, image.Point{}, draw.Src)

	taken := make(map[string]bool, len(occupied))
	for _, id := range occupied {
		taken[id] = true
	}
	for _, sp := range spots {
		if !taken[sp.ID] {
			continue
		}
		cx := int(sp.X / 100 * float64(width))
		cy := int(sp.Y / 100 * float64(height))
		hw, hh := width*4/100, height*6/100
		draw.Draw(img, image.Rect(cx-hw, cy-hh, cx+hw, cy+hh), &image.Uniform{C: carRed}, image.Point{}, draw.Src)
	}
	return img
}

func (s *DriveScenario) classify(ctx context.Context) {
	img := RenderLot(s.engine.Snapshot().Spots, s.occupied, 400, 300)
	report, err := s.engine.ClassifyImage(ctx, img)
	if err != nil {
		s.record("classify", false, "error: %v", err)
		return
	}
	got := append([]string(nil), report.Occupied...)
	want := append([]string(nil), s.occupied...)
	sort.Strings(got)
	sort.Strings(want)
	ok := report.Applied && strings.Join(got, ",") == strings.Join(want, ",")
	s.record("classify", ok, "occupied %v, want %v", got, want)
}

func (s *DriveScenario) rejectGarbage(ctx context.Context) {
	before := s.engine.Snapshot().Counts
	_, err := s.engine.ClassifyUpload(ctx, bytes.NewReader([]byte("not an image")))
	after := s.engine.Snapshot().Counts
	ok := errors.Is(err, engine.ErrImageDecode) && before == after
	s.record("decode-failure", ok, "err=%v counts %+v -> %+v", err, before, after)
}

func (s *DriveScenario) noEVSpot() {
	_, err := s.engine.AssignNearest(parking.CategoryEV)
	ok := errors.Is(err, lot.ErrNoSpotAvailable) && len(s.eventLog.GetByType(events.EventTypeNoSpotAvailable)) == 1
	s.record("no-ev-spot", ok, "err=%v", err)
}

func (s *DriveScenario) reserve() {
	spot, charge, err := s.engine.Reserve("A5", 2*time.Hour)
	ok := err == nil && spot.Status == parking.StatusReserved && charge > 0
	s.record("reserve", ok, "A5 %s charge $%.2f err=%v", spot.Status, charge, err)
}

func (s *DriveScenario) findStandard() string {
	spot, err := s.engine.AssignNearest(parking.CategoryStandard)
	if err != nil {
		s.record("find-standard", false, "err=%v", err)
		return ""
	}
	ok := s.engine.Vehicle().GuideState == "guiding"
	s.record("find-standard", ok, "target %s at (%.1f, %.1f)", spot.ID, spot.X, spot.Y)
	return spot.ID
}

// drive runs the autopilot on the simulated clock until the guide reports
// arrival or maxDriveTime passes.
func (s *DriveScenario) drive(targetID string) {
	target, _ := s.engine.Spot(targetID)
	dyn := engine.DefaultDynamics()
	sinceCheck := time.Duration(0)

	for elapsed := time.Duration(0); elapsed < maxDriveTime; elapsed += stepInterval {
		s.steer(s.engine.Vehicle().Vehicle, target, dyn)
		s.engine.Step(stepInterval)
		now := s.clock.Advance(stepInterval)

		sinceCheck += stepInterval
		if sinceCheck < checkInterval {
			continue
		}
		sinceCheck = 0
		switch out := s.engine.CheckGuidance(now); out.Kind {
		case guidance.OutcomeInstruction:
			s.instructions++
		case guidance.OutcomeArrived:
			s.release()
			spot, _ := s.engine.Spot(targetID)
			v := s.engine.Vehicle().Vehicle
			ok := out.SpotID == targetID && spot.Status == parking.StatusOccupied && v.IsParked() && v.TargetID == ""
			s.record("drive", ok, "arrived at %s after %v with %d instructions", out.SpotID, elapsed+stepInterval, s.instructions)
			return
		}
	}
	s.release()
	v := s.engine.Vehicle().Vehicle
	s.record("drive", false, "no arrival after %v, vehicle at (%.1f, %.1f)", maxDriveTime, v.X, v.Y)
}

// steer presses the keys a careful driver would: face the spot, then
// approach with a speed proportional to the remaining distance.
func (s *DriveScenario) steer(v parking.Vehicle, target parking.Spot, dyn engine.Dynamics) {
	pos, goal := v.Position(), target.Position()
	dist := geometry.Distance(pos, goal)
	diff := geometry.AngleDiff(geometry.Bearing(pos, goal), v.Heading)

	desired := min(dyn.MaxSpeed, 1.5*dist)
	if dist < 1.5 || diff > 30 || diff < -30 {
		desired = 0
	}

	_ = s.engine.SetIntent(engine.DirectionRight, dist >= 1.5 && diff > 5)
	_ = s.engine.SetIntent(engine.DirectionLeft, dist >= 1.5 && diff < -5)
	_ = s.engine.SetIntent(engine.DirectionForward, v.Speed < desired-1)
	_ = s.engine.SetIntent(engine.DirectionBack, v.Speed > desired+1 && v.Speed > 0)
}

func (s *DriveScenario) release() {
	for _, d := range []engine.Direction{engine.DirectionForward, engine.DirectionBack, engine.DirectionLeft, engine.DirectionRight} {
		_ = s.engine.SetIntent(d, false)
	}
}

func (s *DriveScenario) checkStats() {
	st := s.engine.Stats()
	ok := st.Arrivals == 1 && st.Reservations == 1 && st.RevenueUSD > 0 && st.AvgSearchTime > 0
	s.record("stats", ok, "arrivals=%d reservations=%d revenue=$%.2f avg search %v occupancy %.0f%%",
		st.Arrivals, st.Reservations, st.RevenueUSD, st.AvgSearchTime, st.OccupancyRate*100)
}
