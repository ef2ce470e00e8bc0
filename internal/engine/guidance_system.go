package engine

import (
	"fmt"
	"time"

	"github.com/parkpilot/server/internal/domain/parking"
	"github.com/parkpilot/server/internal/events"
	"github.com/parkpilot/server/internal/guidance"
	"github.com/parkpilot/server/internal/lot"
)

// AssignTarget points the guide at spotID. Occupied spots are refused;
// reserved spots are accepted since the session has a single driver. A parked
// vehicle starts driving again.
func (e *Engine) AssignTarget(spotID string) (parking.Spot, error) {
	e.mu.Lock()
	spot, ok := e.lot.Spot(spotID)
	if !ok {
		e.mu.Unlock()
		return parking.Spot{}, fmt.Errorf("%w: %s", lot.ErrSpotNotFound, spotID)
	}
	if spot.Status == parking.StatusOccupied {
		e.mu.Unlock()
		return parking.Spot{}, fmt.Errorf("%w: %s is occupied", lot.ErrSpotUnavailable, spotID)
	}
	vs := e.assignLocked(spot)
	e.mu.Unlock()

	e.afterAssign(vs, spot)
	return spot, nil
}

// AssignNearest targets the closest available spot, optionally restricted to
// one category. When nothing is free it records the miss and returns
// lot.ErrNoSpotAvailable, which callers must show as an outcome, not a fault.
func (e *Engine) AssignNearest(category parking.Category) (parking.Spot, error) {
	if category != "" && !category.Valid() {
		return parking.Spot{}, fmt.Errorf("%w: %q", lot.ErrInvalidCategory, category)
	}

	e.mu.Lock()
	spot, found := lot.FindNearest(e.lot.Spots(), e.vehicle.Position(), category)
	vehicleID := e.vehicle.ID
	if !found {
		e.mu.Unlock()
		e.metrics.RecordNoSpot()
		e.emit(events.EventTypeNoSpotAvailable, vehicleID, "", events.NoSpotPayload{Category: string(category)})
		return parking.Spot{}, lot.ErrNoSpotAvailable
	}
	vs := e.assignLocked(spot)
	e.mu.Unlock()

	e.afterAssign(vs, spot)
	return spot, nil
}

func (e *Engine) assignLocked(spot parking.Spot) VehicleSnapshot {
	e.vehicle.Drive()
	e.vehicle.AssignTarget(spot.ID)
	e.guide.Assign(spot.ID)
	e.lastInstruction = ""
	e.searchStarted = e.now()
	return e.vehicleSnapshotLocked()
}

func (e *Engine) afterAssign(vs VehicleSnapshot, spot parking.Spot) {
	e.emit(events.EventTypeTargetAssigned, vs.Vehicle.ID, spot.ID, nil)
	e.notifyVehicle(vs)
}

// ClearTarget drops the current target and returns the guide to idle.
func (e *Engine) ClearTarget() {
	e.mu.Lock()
	previous := e.vehicle.TargetID
	e.vehicle.ClearTarget()
	e.guide.Clear()
	e.lastInstruction = ""
	vs := e.vehicleSnapshotLocked()
	e.mu.Unlock()

	if previous != "" {
		e.emit(events.EventTypeTargetCleared, vs.Vehicle.ID, previous, nil)
	}
	e.notifyVehicle(vs)
}

// Depart releases a parked vehicle so it can be driven again.
func (e *Engine) Depart() {
	e.mu.Lock()
	if !e.vehicle.IsParked() {
		e.mu.Unlock()
		return
	}
	e.vehicle.Drive()
	vs := e.vehicleSnapshotLocked()
	e.mu.Unlock()

	e.notifyVehicle(vs)
}

// CheckGuidance runs one guidance step at now. On arrival the vehicle parks,
// the target spot becomes occupied and the search time is recorded.
func (e *Engine) CheckGuidance(now time.Time) guidance.Outcome {
	e.mu.Lock()
	out := e.guide.Update(now, e.vehicle.Pose(), e.lot)

	var (
		search  time.Duration
		lotSnap LotSnapshot
	)
	switch out.Kind {
	case guidance.OutcomeArrived:
		search = e.parkLocked(out.SpotID, now)
		e.lastInstruction = out.Text
		lotSnap = e.lotSnapshotLocked()
	case guidance.OutcomeInstruction:
		e.lastInstruction = out.Text
	}
	vs := e.vehicleSnapshotLocked()
	announcer := e.announcer
	e.mu.Unlock()

	e.metrics.RecordGuidanceCheck()

	switch out.Kind {
	case guidance.OutcomeArrived:
		e.metrics.RecordArrival()
		e.emit(events.EventTypeArrived, vs.Vehicle.ID, out.SpotID, events.ArrivalPayload{
			SearchSeconds: search.Seconds(),
			Distance:      out.Distance,
		})
		if announcer != nil {
			announcer.Announce(out.Text, out.Distance)
		}
		e.notifyGuidance(vs.Vehicle.ID, out)
		e.notifyVehicle(vs)
		e.notifyLot(lotSnap)

	case guidance.OutcomeInstruction:
		e.metrics.RecordInstruction()
		e.emit(events.EventTypeGuidanceInstruction, vs.Vehicle.ID, out.SpotID, events.InstructionPayload{
			Command:   out.Command.String(),
			Text:      out.Text,
			Distance:  out.Distance,
			AngleDiff: out.AngleDiff,
		})
		if announcer != nil {
			announcer.Announce(out.Text, out.Distance)
		}
		e.notifyGuidance(vs.Vehicle.ID, out)
		e.notifyVehicle(vs)

	case guidance.OutcomeNoOp:
		if out.Reason == guidance.ReasonUnresolved {
			e.logger.Debug("guidance target cannot be resolved", "spot", out.SpotID)
		}
	}
	return out
}

// parkLocked stops the vehicle in spotID and records the search time. The
// vehicle parks even if the spot can no longer be marked. Caller holds e.mu.
func (e *Engine) parkLocked(spotID string, now time.Time) time.Duration {
	e.vehicle.Park()
	e.vehicle.ClearTarget()
	if err := e.lot.MarkOccupied(spotID); err != nil {
		e.logger.Warn("could not mark arrival spot occupied", "spot", spotID, "error", err)
	} else {
		e.lotUpdatedAt = now
	}
	search := now.Sub(e.searchStarted)
	e.searchTimes = append(e.searchTimes, search)
	return search
}

func (e *Engine) onGuidanceTick(now time.Time) {
	e.CheckGuidance(now)
}
