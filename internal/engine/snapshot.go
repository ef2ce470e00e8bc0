package engine

import (
	"time"

	"github.com/parkpilot/server/internal/domain/parking"
	"github.com/parkpilot/server/internal/guidance"
	"github.com/parkpilot/server/internal/lot"
)

// LotSnapshot is a consistent copy of the lot at one instant.
type LotSnapshot struct {
	LotID     string         `json:"lot_id"`
	Spots     []parking.Spot `json:"spots"`
	Counts    lot.Counts     `json:"counts"`
	ImageID   string         `json:"image_id,omitempty"` // last applied upload
	UpdatedAt time.Time      `json:"updated_at"`
}

// VehicleSnapshot is a consistent copy of the vehicle and its guidance state.
type VehicleSnapshot struct {
	Vehicle     parking.Vehicle `json:"vehicle"`
	GuideState  string          `json:"guide_state"`
	Instruction string          `json:"instruction,omitempty"` // last issued text
}

// Stats aggregates the figures shown to operators.
type Stats struct {
	LotID         string        `json:"lot_id"`
	Counts        lot.Counts    `json:"counts"`
	OccupancyRate float64       `json:"occupancy_rate"`
	RevenueUSD    float64       `json:"revenue_usd"`
	Reservations  int           `json:"reservations"`
	Arrivals      int           `json:"arrivals"`
	AvgSearchTime time.Duration `json:"avg_search_time_ns"`
	LatestImageID string        `json:"latest_image_id,omitempty"`
}

// LotObserver is notified after every change of spot statuses.
type LotObserver interface {
	OnLotUpdate(snapshot LotSnapshot)
}

// VehicleObserver is notified after the vehicle moved or changed state.
type VehicleObserver interface {
	OnVehicleUpdate(snapshot VehicleSnapshot)
}

// GuidanceObserver is notified of every issued instruction and arrival.
type GuidanceObserver interface {
	OnGuidance(vehicleID string, outcome guidance.Outcome)
}
