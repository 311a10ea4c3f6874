package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens/creates a SQLite DB file and ensures tables exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// Conservative pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is not great with many writers
	db.SetMaxIdleConns(1)

	// Pragmas to improve reliability
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA journal_mode=WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA foreign_keys=ON: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA busy_timeout=5000: %w", err)
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Fail fast if the DB cannot be reached
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

const sqliteDriverName = "sqlite"

const schemaDeviceState = `
CREATE TABLE IF NOT EXISTS device_state (
    device_id TEXT PRIMARY KEY,
    device_name TEXT,
    user_id TEXT,
    is_running BOOLEAN NOT NULL,
    equipment_label TEXT NOT NULL,
    session_id TEXT,
    started_at TIMESTAMP,
    start_temp_c REAL,
    tail_until TIMESTAMP,
    last_temp_c REAL,
    last_heat_setpoint_c REAL,
    last_cool_setpoint_c REAL,
    last_equipment_label TEXT NOT NULL,
    last_mode TEXT NOT NULL,
    last_reachable BOOLEAN NOT NULL,
    last_observed_at TIMESTAMP,
    last_active_at TIMESTAMP,
    display_scale TEXT,
    updated_at TIMESTAMP NOT NULL
);
`

const indexDeviceStateRunning = `
CREATE INDEX IF NOT EXISTS idx_device_state_running ON device_state (is_running);
`

const schemaRuntimeSessions = `
CREATE TABLE IF NOT EXISTS runtime_sessions (
    session_id TEXT PRIMARY KEY,
    device_id TEXT NOT NULL,
    equipment_label TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    ended_at TIMESTAMP,
    duration_seconds INTEGER CHECK (duration_seconds IS NULL OR duration_seconds >= 0),
    start_temp_c REAL,
    end_temp_c REAL,
    heat_setpoint_c REAL,
    cool_setpoint_c REAL
);
`

const indexRuntimeSessionsDevice = `
CREATE INDEX IF NOT EXISTS idx_runtime_sessions_device ON runtime_sessions (device_id, started_at);
`

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL,
    created_at TIMESTAMP
);
`

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		// no-op after a successful commit
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{
		schemaDeviceState,
		indexDeviceStateRunning,
		schemaRuntimeSessions,
		indexRuntimeSessionsDevice,
		schemaUsers,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
