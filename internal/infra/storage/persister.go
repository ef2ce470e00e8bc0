package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/parkpilot/server/internal/engine"
	"github.com/parkpilot/server/internal/events"
	"github.com/parkpilot/server/internal/platform/logger"
	"github.com/parkpilot/server/internal/platform/metrics"
)

// writeTimeout bounds one persistence call.
const writeTimeout = 5 * time.Second

// ToRecord converts a lot event into its persisted form.
func ToRecord(lotID string, e events.LotEvent) (ActivityRecord, error) {
	rec := ActivityRecord{
		ID:        e.ID,
		LotID:     lotID,
		Timestamp: e.Timestamp,
		EventType: string(e.Type),
		ActorID:   e.ActorID,
		TargetID:  e.TargetID,
	}
	if e.Payload != nil {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return rec, fmt.Errorf("failed to marshal payload: %w", err)
		}
		rec.Payload = payload
	}
	return rec, nil
}

// ActivityPersister writes the activity log through to an ActivityRepository.
// It satisfies events.EventPersister.
type ActivityPersister struct {
	repo    ActivityRepository
	lotID   string
	metrics *metrics.Collector
}

// NewActivityPersister binds repo to one lot.
func NewActivityPersister(repo ActivityRepository, lotID string) *ActivityPersister {
	return &ActivityPersister{repo: repo, lotID: lotID, metrics: metrics.Get()}
}

// Append persists one event.
func (p *ActivityPersister) Append(e events.LotEvent) error {
	start := time.Now()
	rec, err := ToRecord(p.lotID, e)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err = p.repo.Append(ctx, rec)
		cancel()
	}
	p.metrics.RecordEventWrite(time.Since(start), err)
	return err
}

// SnapshotWriter saves every lot update so a restart resumes with the same
// statuses. It satisfies engine.LotObserver.
type SnapshotWriter struct {
	repo   SnapshotRepository
	logger *logger.Logger
}

// NewSnapshotWriter creates the observer.
func NewSnapshotWriter(repo SnapshotRepository, log *logger.Logger) *SnapshotWriter {
	return &SnapshotWriter{repo: repo, logger: log.With("component", "snapshot")}
}

// OnLotUpdate persists the statuses of s.
func (w *SnapshotWriter) OnLotUpdate(s engine.LotSnapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := w.repo.SaveLot(ctx, s.LotID, s.Spots, s.UpdatedAt); err != nil {
		w.logger.Error("failed to persist lot snapshot", "lot", s.LotID, "error", err)
	}
}
