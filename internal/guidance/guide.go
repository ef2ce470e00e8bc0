// Package guidance turns the vehicle pose and a target spot into rate-limited
// turn-by-turn instructions.
//
// A Guide is a small state machine, Idle -> Guiding -> Arrived. Assigning a
// target enters Guiding. Every Update while Guiding either reports arrival
// (once, which clears the target), issues an instruction, or does nothing
// because the last instruction is still fresh. The target is held only by ID
// and resolved through a SpotLookup on every call.
//
// Guide is not safe for concurrent use.
package guidance

import (
	"time"

	"github.com/golang/geo/r2"

	"github.com/parkpilot/server/internal/domain/geometry"
	"github.com/parkpilot/server/internal/domain/parking"
)

// State of the guide.
type State int

const (
	StateIdle State = iota
	StateGuiding
	StateArrived
)

func (s State) String() string {
	switch s {
	case StateGuiding:
		return "guiding"
	case StateArrived:
		return "arrived"
	default:
		return "idle"
	}
}

// Config holds the distance, angle and timing thresholds. Distances are in
// normalised lot units.
type Config struct {
	ArrivalDistance float64       // closer than this counts as parked in the spot
	NearDistance    float64       // closer than this switches to side-relative phrasing
	TurnAngle       float64       // |diff| above this asks for a turn
	TurnAroundAngle float64       // |diff| above this asks to turn around
	Cooldown        time.Duration // the same instruction is not repeated sooner
	MoveThreshold   float64       // ...unless the vehicle moved more than this
	MinGap          time.Duration // hard floor between any two instructions
}

// DefaultConfig returns the demo thresholds.
func DefaultConfig() Config {
	return Config{
		ArrivalDistance: 4,
		NearDistance:    5,
		TurnAngle:       25,
		TurnAroundAngle: 130,
		Cooldown:        3 * time.Second,
		MoveThreshold:   5,
		MinGap:          250 * time.Millisecond,
	}
}

// SpotLookup resolves a spot by ID in the owning collection.
type SpotLookup interface {
	Spot(id string) (parking.Spot, bool)
}

// OutcomeKind classifies an Update result.
type OutcomeKind int

const (
	OutcomeNoOp OutcomeKind = iota
	OutcomeInstruction
	OutcomeArrived
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeInstruction:
		return "instruction"
	case OutcomeArrived:
		return "arrived"
	default:
		return "noop"
	}
}

// MarshalText renders the kind by name in JSON.
func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// NoOp reasons.
const (
	ReasonIdle        = "idle"
	ReasonArrived     = "arrived"
	ReasonUnresolved  = "target_unresolved"
	ReasonRateLimited = "rate_limited"
)

// Outcome is the result of one Update.
type Outcome struct {
	Kind      OutcomeKind `json:"kind"`
	Command   Command     `json:"command,omitempty"`
	Text      string      `json:"text,omitempty"`
	SpotID    string      `json:"spot_id,omitempty"`
	Distance  float64     `json:"distance"`
	AngleDiff float64     `json:"angle_diff"`
	Reason    string      `json:"reason,omitempty"`
}

// Guide tracks one vehicle's progress toward its target.
type Guide struct {
	cfg      Config
	state    State
	targetID string

	issued  bool
	lastAt  time.Time
	lastPos r2.Point
	// emitted records when each command was last issued for this target.
	emitted map[Command]time.Time
}

// NewGuide creates an idle guide.
func NewGuide(cfg Config) *Guide {
	return &Guide{cfg: cfg}
}

// Assign starts guiding toward spotID, replacing any previous target.
func (g *Guide) Assign(spotID string) {
	g.state = StateGuiding
	g.targetID = spotID
	g.resetEmitted()
}

// Clear drops the target and returns to Idle.
func (g *Guide) Clear() {
	g.state = StateIdle
	g.targetID = ""
	g.resetEmitted()
}

func (g *Guide) resetEmitted() {
	g.issued = false
	g.emitted = make(map[Command]time.Time)
}

// State returns the current state.
func (g *Guide) State() State {
	return g.state
}

// Target returns the spot being guided to, empty unless Guiding.
func (g *Guide) Target() string {
	return g.targetID
}

// Update advances the guide for the pose observed at now.
func (g *Guide) Update(now time.Time, pose parking.Pose, lookup SpotLookup) Outcome {
	switch g.state {
	case StateArrived:
		return Outcome{Kind: OutcomeNoOp, Reason: ReasonArrived}
	case StateIdle:
		return Outcome{Kind: OutcomeNoOp, Reason: ReasonIdle}
	}

	spot, ok := lookup.Spot(g.targetID)
	if !ok {
		return Outcome{Kind: OutcomeNoOp, SpotID: g.targetID, Reason: ReasonUnresolved}
	}

	target := spot.Position()
	dist := geometry.Distance(pose.Position, target)
	diff := geometry.AngleDiff(geometry.Bearing(pose.Position, target), pose.Heading)

	if dist < g.cfg.ArrivalDistance {
		g.state = StateArrived
		g.targetID = ""
		return Outcome{
			Kind:      OutcomeArrived,
			Text:      "You have arrived at spot " + spot.ID,
			SpotID:    spot.ID,
			Distance:  dist,
			AngleDiff: diff,
		}
	}

	cmd := Steer(diff, dist, g.cfg)
	if !g.shouldEmit(now, pose.Position, cmd) {
		return Outcome{Kind: OutcomeNoOp, Command: cmd, SpotID: spot.ID, Distance: dist, AngleDiff: diff, Reason: ReasonRateLimited}
	}

	g.issued = true
	if g.emitted == nil {
		g.emitted = make(map[Command]time.Time)
	}
	g.emitted[cmd] = now
	g.lastAt = now
	g.lastPos = pose.Position
	return Outcome{
		Kind:      OutcomeInstruction,
		Command:   cmd,
		Text:      cmd.Text(),
		SpotID:    spot.ID,
		Distance:  dist,
		AngleDiff: diff,
	}
}

func (g *Guide) shouldEmit(now time.Time, pos r2.Point, cmd Command) bool {
	if !g.issued {
		return true
	}
	elapsed := now.Sub(g.lastAt)
	if elapsed < g.cfg.MinGap {
		return false
	}
	if elapsed >= g.cfg.Cooldown {
		return true
	}
	if geometry.Distance(g.lastPos, pos) > g.cfg.MoveThreshold {
		return true
	}
	// A different command may break the cooldown, but only if it was not
	// itself issued within the cooldown.
	at, seen := g.emitted[cmd]
	return !seen || now.Sub(at) >= g.cfg.Cooldown
}
