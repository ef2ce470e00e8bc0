// Package storage provides the persistence layer for the parking server.
// This package implements the repository pattern to keep the domain pure.
package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/parkpilot/server/internal/domain/parking"
)

// ActivityRecord mirrors the activity log entry for persistence.
type ActivityRecord struct {
	ID        string          `json:"id" db:"id"`
	LotID     string          `json:"lot_id" db:"lot_id"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
	EventType string          `json:"type" db:"event_type"`
	ActorID   string          `json:"actor_id" db:"actor_id"`
	TargetID  string          `json:"target_id,omitempty" db:"target_id"`
	Payload   json.RawMessage `json:"payload,omitempty" db:"payload"`
}

// ActivityFilter narrows a history query. Zero fields match everything.
type ActivityFilter struct {
	EventType string
	ActorID   string
	Since     time.Time
	Limit     int // newest first when set
}

// ActivityRepository defines the interface for activity persistence.
type ActivityRepository interface {
	// Append adds a new entry to the immutable ledger.
	Append(ctx context.Context, rec ActivityRecord) error

	// List returns the entries of a lot matching f, oldest first.
	List(ctx context.Context, lotID string, f ActivityFilter) ([]ActivityRecord, error)

	// Count returns how many entries a lot has.
	Count(ctx context.Context, lotID string) (int, error)
}

// SpotStatusSnapshot is the persisted status of one spot.
type SpotStatusSnapshot struct {
	LotID     string         `json:"lot_id" db:"lot_id"`
	SpotID    string         `json:"spot_id" db:"spot_id"`
	Status    parking.Status `json:"status" db:"status"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// SnapshotRepository persists spot statuses so a restart resumes the lot.
type SnapshotRepository interface {
	// SaveLot upserts every spot status of a lot as of updatedAt. Rows
	// already written with a newer timestamp are kept.
	SaveLot(ctx context.Context, lotID string, spots []parking.Spot, updatedAt time.Time) error

	// LoadLot returns the persisted statuses keyed by spot ID.
	LoadLot(ctx context.Context, lotID string) (map[string]parking.Status, error)
}
