package engine

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/parkpilot/server/internal/domain/parking"
	"github.com/parkpilot/server/internal/domain/rules"
	"github.com/parkpilot/server/internal/events"
	"github.com/parkpilot/server/internal/guidance"
	"github.com/parkpilot/server/internal/lot"
	"github.com/parkpilot/server/internal/occupancy"
	"github.com/parkpilot/server/internal/platform/logger"
	"github.com/parkpilot/server/internal/platform/metrics"
)

// Actor IDs used in the activity log for non-vehicle actors.
const (
	ActorOperator   = "operator"
	ActorClassifier = "classifier"
)

var (
	ErrSuperseded       = errors.New("classification superseded by a newer upload")
	ErrImageDecode      = errors.New("image could not be decoded")
	ErrUnknownDirection = errors.New("unknown direction")
)

// Detector decides which spots in an image are occupied.
type Detector interface {
	Classify(img image.Image, spots []parking.Spot) occupancy.Result
}

// Announcer voices guidance text. Implementations must not block.
type Announcer interface {
	Announce(text string, distance float64)
}

// Options tunes an Engine. Zero values fall back to the defaults.
type Options struct {
	Dynamics         Dynamics
	Guidance         guidance.Config
	PhysicsInterval  time.Duration
	GuidanceInterval time.Duration
	ClassifySlots    int // concurrent classifications
	Clock            func() time.Time
}

// DefaultOptions returns the 50 Hz physics / 1 Hz guidance setup.
func DefaultOptions() Options {
	return Options{
		Dynamics:         DefaultDynamics(),
		Guidance:         guidance.DefaultConfig(),
		PhysicsInterval:  20 * time.Millisecond,
		GuidanceInterval: time.Second,
		ClassifySlots:    2,
		Clock:            time.Now,
	}
}

// Engine is the central orchestrator of one lot session.
type Engine struct {
	// Guarded by mu
	mu              sync.Mutex
	lot             *lot.Lot
	vehicle         *parking.Vehicle
	intents         Intents
	guide           *guidance.Guide
	lastInstruction string
	latestImageID   string
	appliedImageID  string
	lotUpdatedAt    time.Time
	revenue         float64
	reservations    int
	searchStarted   time.Time
	searchTimes     []time.Duration

	physics   *PhysicsSystem
	detector  Detector
	announcer Announcer
	eventLog  *events.EventLog
	logger    *logger.Logger
	metrics   *metrics.Collector
	now       func() time.Time

	physicsTicker  *Ticker
	guidanceTicker *Ticker
	lastStep       time.Time // only touched by the physics ticker goroutine
	classifySlots  chan struct{}

	obsMu             sync.RWMutex
	lotObservers      []LotObserver
	vehicleObservers  []VehicleObserver
	guidanceObservers []GuidanceObserver
}

// NewEngine wires a session around an existing lot and vehicle.
func NewEngine(l *lot.Lot, v *parking.Vehicle, detector Detector, eventLog *events.EventLog, log *logger.Logger, opts Options) *Engine {
	def := DefaultOptions()
	if opts.Dynamics == (Dynamics{}) {
		opts.Dynamics = def.Dynamics
	}
	if opts.Guidance == (guidance.Config{}) {
		opts.Guidance = def.Guidance
	}
	if opts.PhysicsInterval <= 0 {
		opts.PhysicsInterval = def.PhysicsInterval
	}
	if opts.GuidanceInterval <= 0 {
		opts.GuidanceInterval = def.GuidanceInterval
	}
	if opts.ClassifySlots <= 0 {
		opts.ClassifySlots = def.ClassifySlots
	}
	if opts.Clock == nil {
		opts.Clock = def.Clock
	}

	e := &Engine{
		lot:           l,
		vehicle:       v,
		guide:         guidance.NewGuide(opts.Guidance),
		physics:       NewPhysicsSystem(opts.Dynamics),
		detector:      detector,
		eventLog:      eventLog,
		logger:        log.With("component", "engine", "lot", l.ID),
		metrics:       metrics.Get(),
		now:           opts.Clock,
		lotUpdatedAt:  opts.Clock(),
		classifySlots: make(chan struct{}, opts.ClassifySlots),
	}
	e.physicsTicker = NewTicker("physics", opts.PhysicsInterval, e.onPhysicsTick, e.logger)
	e.guidanceTicker = NewTicker("guidance", opts.GuidanceInterval, e.onGuidanceTick, e.logger)
	return e
}

// SetAnnouncer installs the speech announcer. nil disables speech.
func (e *Engine) SetAnnouncer(a Announcer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.announcer = a
}

// AddLotObserver registers o for lot updates.
func (e *Engine) AddLotObserver(o LotObserver) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.lotObservers = append(e.lotObservers, o)
}

// AddVehicleObserver registers o for vehicle updates.
func (e *Engine) AddVehicleObserver(o VehicleObserver) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.vehicleObservers = append(e.vehicleObservers, o)
}

// AddGuidanceObserver registers o for instructions and arrivals.
func (e *Engine) AddGuidanceObserver(o GuidanceObserver) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.guidanceObservers = append(e.guidanceObservers, o)
}

// Run drives both tickers until ctx is cancelled or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("starting parking engine",
		"physics_interval", e.physicsTicker.Interval(),
		"guidance_interval", e.guidanceTicker.Interval())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.physicsTicker.Start(ctx)
		return nil
	})
	g.Go(func() error {
		e.guidanceTicker.Start(ctx)
		return nil
	})
	return g.Wait()
}

// Stop halts both tickers.
func (e *Engine) Stop() {
	e.physicsTicker.Stop()
	e.guidanceTicker.Stop()
}

// EventLog exposes the activity log.
func (e *Engine) EventLog() *events.EventLog {
	return e.eventLog
}

// LotID returns the lot identifier.
func (e *Engine) LotID() string {
	return e.lot.ID
}

// Snapshot returns a consistent copy of the lot.
func (e *Engine) Snapshot() LotSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lotSnapshotLocked()
}

// Vehicle returns a consistent copy of the vehicle state.
func (e *Engine) Vehicle() VehicleSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vehicleSnapshotLocked()
}

// Spot resolves one spot.
func (e *Engine) Spot(id string) (parking.Spot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lot.Spot(id)
}

// Stats aggregates the operator figures.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	counts := e.lot.Counts()
	return Stats{
		LotID:         e.lot.ID,
		Counts:        counts,
		OccupancyRate: rules.OccupancyRate(counts.Occupied, counts.Reserved, counts.Total),
		RevenueUSD:    e.revenue,
		Reservations:  e.reservations,
		Arrivals:      len(e.searchTimes),
		AvgSearchTime: rules.AverageDuration(e.searchTimes),
		LatestImageID: e.latestImageID,
	}
}

// RestoreStatuses overwrites spot statuses from a persisted snapshot. Unknown
// spot IDs are skipped. It returns how many statuses were applied.
func (e *Engine) RestoreStatuses(statuses map[string]parking.Status) int {
	e.mu.Lock()
	applied := 0
	for id, st := range statuses {
		if err := e.lot.SetStatus(id, st); err != nil {
			e.logger.Warn("skipping persisted status", "spot", id, "error", err)
			continue
		}
		applied++
	}
	e.lotUpdatedAt = e.now()
	snap := e.lotSnapshotLocked()
	e.mu.Unlock()

	if applied > 0 {
		e.notifyLot(snap)
	}
	return applied
}

func (e *Engine) lotSnapshotLocked() LotSnapshot {
	return LotSnapshot{
		LotID:     e.lot.ID,
		Spots:     e.lot.Spots(),
		Counts:    e.lot.Counts(),
		ImageID:   e.appliedImageID,
		UpdatedAt: e.lotUpdatedAt,
	}
}

func (e *Engine) vehicleSnapshotLocked() VehicleSnapshot {
	return VehicleSnapshot{
		Vehicle:     *e.vehicle,
		GuideState:  e.guide.State().String(),
		Instruction: e.lastInstruction,
	}
}

func (e *Engine) notifyLot(s LotSnapshot) {
	e.obsMu.RLock()
	defer e.obsMu.RUnlock()
	for _, o := range e.lotObservers {
		o.OnLotUpdate(s)
	}
}

func (e *Engine) notifyVehicle(s VehicleSnapshot) {
	e.obsMu.RLock()
	defer e.obsMu.RUnlock()
	for _, o := range e.vehicleObservers {
		o.OnVehicleUpdate(s)
	}
}

func (e *Engine) notifyGuidance(vehicleID string, out guidance.Outcome) {
	e.obsMu.RLock()
	defer e.obsMu.RUnlock()
	for _, o := range e.guidanceObservers {
		o.OnGuidance(vehicleID, out)
	}
}

// emit appends to the activity log and mirrors the event to the log output.
func (e *Engine) emit(eventType events.EventType, actorID, targetID string, payload any) {
	ev := events.NewEvent(eventType, actorID, targetID, payload)
	ev.Timestamp = e.now()
	e.eventLog.Append(ev)
	e.logger.Event(string(eventType), actorID, targetID)
}
