package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/parkpilot/server/internal/domain/parking"
	"github.com/parkpilot/server/internal/engine"
	"github.com/parkpilot/server/internal/events"
	"github.com/parkpilot/server/internal/platform/logger"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitSQLite(filepath.Join(t.TempDir(), "data", "test.db"), PoolOptions{MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("InitSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestActivityAppendAndList(t *testing.T) {
	// Setup
	db := openTestDB(t)
	repo := NewSQLiteActivityRepository(db)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	records := []ActivityRecord{
		{ID: "e1", LotID: "main", Timestamp: base, EventType: "TARGET_ASSIGNED", ActorID: "car-1", TargetID: "A1"},
		{ID: "e2", LotID: "main", Timestamp: base.Add(time.Second), EventType: "ARRIVED", ActorID: "car-1", TargetID: "A1",
			Payload: json.RawMessage(`{"search_seconds":12}`)},
		{ID: "e3", LotID: "main", Timestamp: base.Add(2 * time.Second), EventType: "SPOT_RESERVED", ActorID: "operator", TargetID: "B2"},
		{ID: "e4", LotID: "other", Timestamp: base, EventType: "ARRIVED", ActorID: "car-9"},
	}
	for _, r := range records {
		if err := repo.Append(ctx, r); err != nil {
			t.Fatalf("append %s: %v", r.ID, err)
		}
	}

	// Act & Assert
	all, err := repo.List(ctx, "main", ActivityFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != "e1" || all[2].ID != "e3" {
		t.Fatalf("unexpected list %+v", all)
	}
	if !all[1].Timestamp.Equal(base.Add(time.Second)) {
		t.Errorf("timestamp round trip: got %v", all[1].Timestamp)
	}
	if string(all[1].Payload) != `{"search_seconds":12}` || all[0].Payload != nil {
		t.Errorf("payload round trip: %q / %q", all[1].Payload, all[0].Payload)
	}

	arrived, _ := repo.List(ctx, "main", ActivityFilter{EventType: "ARRIVED"})
	if len(arrived) != 1 || arrived[0].ID != "e2" {
		t.Errorf("type filter: %+v", arrived)
	}

	last, _ := repo.List(ctx, "main", ActivityFilter{Limit: 2})
	if len(last) != 2 || last[0].ID != "e2" || last[1].ID != "e3" {
		t.Errorf("limit should keep the newest, oldest first: %+v", last)
	}

	since, _ := repo.List(ctx, "main", ActivityFilter{Since: base.Add(time.Second)})
	if len(since) != 2 {
		t.Errorf("since filter: %+v", since)
	}

	if n, _ := repo.Count(ctx, "main"); n != 3 {
		t.Errorf("count = %d", n)
	}
}

func TestActivityDuplicateIDRejected(t *testing.T) {
	repo := NewSQLiteActivityRepository(openTestDB(t))
	rec := ActivityRecord{ID: "dup", LotID: "main", Timestamp: time.Now(), EventType: "ARRIVED", ActorID: "car"}

	if err := repo.Append(context.Background(), rec); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := repo.Append(context.Background(), rec); err == nil {
		t.Error("expected duplicate id to fail")
	}
}

func TestSnapshotSaveAndLoad(t *testing.T) {
	repo := NewSQLiteSnapshotRepository(openTestDB(t))
	ctx := context.Background()
	t0 := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	spots := []parking.Spot{
		{ID: "A1", Status: parking.StatusOccupied},
		{ID: "A2", Status: parking.StatusReserved},
	}
	if err := repo.SaveLot(ctx, "main", spots, t0); err != nil {
		t.Fatalf("save: %v", err)
	}

	// An older snapshot arriving late must not win.
	stale := []parking.Spot{{ID: "A1", Status: parking.StatusAvailable}}
	if err := repo.SaveLot(ctx, "main", stale, t0.Add(-time.Second)); err != nil {
		t.Fatalf("save stale: %v", err)
	}

	got, err := repo.LoadLot(ctx, "main")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got["A1"] != parking.StatusOccupied || got["A2"] != parking.StatusReserved {
		t.Errorf("unexpected statuses %v", got)
	}

	empty, _ := repo.LoadLot(ctx, "nowhere")
	if len(empty) != 0 {
		t.Errorf("expected no statuses for unknown lot, got %v", empty)
	}
}

func TestActivityPersisterWritesEvents(t *testing.T) {
	db := openTestDB(t)
	repo := NewSQLiteActivityRepository(db)
	el := events.NewEventLog(NewActivityPersister(repo, "main"))

	el.Append(events.NewEvent(events.EventTypeSpotReserved, "operator", "A3",
		events.ReservationPayload{Category: "ev", Hours: 2, Charge: 8}))
	el.Flush()

	recs, err := repo.List(context.Background(), "main", ActivityFilter{})
	if err != nil || len(recs) != 1 {
		t.Fatalf("expected one record, got %d (%v)", len(recs), err)
	}
	var p events.ReservationPayload
	if err := json.Unmarshal(recs[0].Payload, &p); err != nil || p.Charge != 8 {
		t.Errorf("payload not persisted: %s (%v)", recs[0].Payload, err)
	}
}

func TestActivityReplayFollowsLogOrder(t *testing.T) {
	// Setup
	db := openTestDB(t)
	repo := NewSQLiteActivityRepository(db)
	el := events.NewEventLog(NewActivityPersister(repo, "main"))
	targets := []string{"A1", "A2", "A3", "A4", "A5"}

	// Act
	for _, id := range targets {
		el.Append(events.NewEvent(events.EventTypeTargetAssigned, "car-1", id, nil))
	}
	el.Flush()

	// Assert
	recs, err := repo.List(context.Background(), "main", ActivityFilter{})
	if err != nil || len(recs) != len(targets) {
		t.Fatalf("expected %d records, got %d (%v)", len(targets), len(recs), err)
	}
	for i, id := range targets {
		if recs[i].TargetID != id {
			t.Errorf("record %d = %s, want %s", i, recs[i].TargetID, id)
		}
	}
}

func TestSnapshotWriterObservesLot(t *testing.T) {
	repo := NewSQLiteSnapshotRepository(openTestDB(t))
	w := NewSnapshotWriter(repo, logger.Discard())

	w.OnLotUpdate(engine.LotSnapshot{
		LotID:     "main",
		Spots:     []parking.Spot{{ID: "B4", Status: parking.StatusOccupied}},
		UpdatedAt: time.Now(),
	})

	got, _ := repo.LoadLot(context.Background(), "main")
	if got["B4"] != parking.StatusOccupied {
		t.Errorf("snapshot not written: %v", got)
	}
}
