package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// PoolOptions sizes the connection pool. Zero values keep the driver defaults.
type PoolOptions struct {
	MaxOpenConns int
	MaxIdleConns int
}

// InitSQLite initializes the local SQLite database and creates the schemas
// for the activity log and the spot status snapshots.
func InitSQLite(dbPath string, pool PoolOptions) (*sql.DB, error) {
	dsn := dbPath
	if dbPath == ":memory:" {
		// Every pooled connection would get its own empty database.
		pool.MaxOpenConns = 1
	} else {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := createSchemas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schemas: %w", err)
	}

	return db, nil
}

func createSchemas(db *sql.DB) error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS activity (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			lot_id TEXT NOT NULL,
			timestamp INTEGER NOT NULL, -- unix nanoseconds
			event_type TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			target_id TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL DEFAULT 'null'
		);`,
		`CREATE TABLE IF NOT EXISTS spot_status (
			lot_id TEXT NOT NULL,
			spot_id TEXT NOT NULL,
			status TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (lot_id, spot_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_activity_lot_id ON activity(lot_id);`,
		`CREATE INDEX IF NOT EXISTS idx_activity_event_type ON activity(event_type);`,
		`CREATE INDEX IF NOT EXISTS idx_activity_actor_id ON activity(actor_id);`,
	}

	for _, query := range schemas {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}
