package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/parkpilot/server/internal/domain/parking"
)

// SQLiteActivityRepository implements ActivityRepository for SQLite.
type SQLiteActivityRepository struct {
	db *sql.DB
}

func NewSQLiteActivityRepository(db *sql.DB) *SQLiteActivityRepository {
	return &SQLiteActivityRepository{db: db}
}

func (r *SQLiteActivityRepository) Append(ctx context.Context, rec ActivityRecord) error {
	payload := string(rec.Payload)
	if payload == "" {
		payload = "null"
	}

	query := `
		INSERT INTO activity (id, lot_id, timestamp, event_type, actor_id, target_id, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.LotID, rec.Timestamp.UnixNano(), rec.EventType, rec.ActorID, rec.TargetID, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

func (r *SQLiteActivityRepository) List(ctx context.Context, lotID string, f ActivityFilter) ([]ActivityRecord, error) {
	where := []string{"lot_id = ?"}
	args := []any{lotID}
	if f.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, f.EventType)
	}
	if f.ActorID != "" {
		where = append(where, "actor_id = ?")
		args = append(args, f.ActorID)
	}
	if !f.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, f.Since.UnixNano())
	}

	query := `SELECT seq, id, lot_id, timestamp, event_type, actor_id, target_id, payload FROM activity WHERE ` +
		strings.Join(where, " AND ")
	if f.Limit > 0 {
		// Newest f.Limit rows, returned oldest first.
		query = `SELECT * FROM (` + query + ` ORDER BY seq DESC LIMIT ?) ORDER BY seq ASC`
		args = append(args, f.Limit)
	} else {
		query += ` ORDER BY seq ASC`
	}
	return r.getMany(ctx, query, args...)
}

func (r *SQLiteActivityRepository) getMany(ctx context.Context, query string, args ...any) ([]ActivityRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ActivityRecord
	for rows.Next() {
		var (
			rec     ActivityRecord
			seq     int64
			ts      int64
			payload string
		)
		if err := rows.Scan(
			&seq, &rec.ID, &rec.LotID, &ts, &rec.EventType, &rec.ActorID, &rec.TargetID, &payload,
		); err != nil {
			return nil, err
		}
		rec.Timestamp = time.Unix(0, ts).UTC()
		if payload != "null" {
			rec.Payload = []byte(payload)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *SQLiteActivityRepository) Count(ctx context.Context, lotID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity WHERE lot_id = ?`, lotID).Scan(&n)
	return n, err
}

// ---------------------------------------------------------
// SQLiteSnapshotRepository
// ---------------------------------------------------------

type SQLiteSnapshotRepository struct {
	db *sql.DB
}

func NewSQLiteSnapshotRepository(db *sql.DB) *SQLiteSnapshotRepository {
	return &SQLiteSnapshotRepository{db: db}
}

func (r *SQLiteSnapshotRepository) SaveLot(ctx context.Context, lotID string, spots []parking.Spot, updatedAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO spot_status (lot_id, spot_id, status, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(lot_id, spot_id) DO UPDATE SET
			status=excluded.status,
			updated_at=excluded.updated_at
		WHERE excluded.updated_at >= spot_status.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot: %w", err)
	}
	defer stmt.Close()

	ts := updatedAt.UnixNano()
	for _, s := range spots {
		if _, err := stmt.ExecContext(ctx, lotID, s.ID, string(s.Status), ts); err != nil {
			return fmt.Errorf("failed to save spot %s: %w", s.ID, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteSnapshotRepository) LoadLot(ctx context.Context, lotID string) (map[string]parking.Status, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT spot_id, status FROM spot_status WHERE lot_id = ?`, lotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	statuses := make(map[string]parking.Status)
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, err
		}
		statuses[id] = parking.Status(status)
	}
	return statuses, rows.Err()
}
