package engine

import (
	"fmt"
	"time"

	"github.com/parkpilot/server/internal/domain/parking"
	"github.com/parkpilot/server/internal/domain/rules"
	"github.com/parkpilot/server/internal/events"
)

// Reserve holds an available spot for d and books the charge as revenue.
func (e *Engine) Reserve(spotID string, d time.Duration) (parking.Spot, float64, error) {
	e.mu.Lock()
	spot, err := e.lot.Reserve(spotID)
	if err != nil {
		e.mu.Unlock()
		return parking.Spot{}, 0, fmt.Errorf("reserve: %w", err)
	}
	charge := rules.ReservationCharge(spot.Category, d)
	e.revenue += charge
	e.reservations++
	e.lotUpdatedAt = e.now()
	snap := e.lotSnapshotLocked()
	e.mu.Unlock()

	e.emit(events.EventTypeSpotReserved, ActorOperator, spotID, events.ReservationPayload{
		Category: string(spot.Category),
		Hours:    d.Hours(),
		Charge:   charge,
	})
	e.notifyLot(snap)
	return spot, charge, nil
}

// Release frees a reserved spot. Revenue already booked is kept.
func (e *Engine) Release(spotID string) (parking.Spot, error) {
	e.mu.Lock()
	spot, err := e.lot.Release(spotID)
	if err != nil {
		e.mu.Unlock()
		return parking.Spot{}, fmt.Errorf("release: %w", err)
	}
	e.lotUpdatedAt = e.now()
	snap := e.lotSnapshotLocked()
	e.mu.Unlock()

	e.emit(events.EventTypeSpotReleased, ActorOperator, spotID, events.ReservationPayload{
		Category: string(spot.Category),
	})
	e.notifyLot(snap)
	return spot, nil
}
