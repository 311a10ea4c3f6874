package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"thermostat_runtime/internal/models"
)

type SessionSQLite struct {
	db *sql.DB
}

func NewSessionSQLite(db *sql.DB) *SessionSQLite { return &SessionSQLite{db: db} }

var _ SessionRepo = (*SessionSQLite)(nil)

// SessionFilter narrows List. Zero fields are ignored.
type SessionFilter struct {
	DeviceID string
	Label    models.EquipmentLabel
	From     time.Time
	To       time.Time
	Limit    int
}

const (
	sessionColumns = `session_id, device_id, equipment_label, started_at, ended_at, duration_seconds,
		start_temp_c, end_temp_c, heat_setpoint_c, cool_setpoint_c`

	insertSessionSQL = `
		INSERT INTO runtime_sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING
	`

	// closeSessionSQL inserts the row if the open insert never landed, and
	// never reopens or rewrites a session that is already closed.
	closeSessionSQL = `
		INSERT INTO runtime_sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			ended_at=excluded.ended_at,
			duration_seconds=excluded.duration_seconds,
			end_temp_c=excluded.end_temp_c
		WHERE runtime_sessions.ended_at IS NULL
	`

	defaultSessionLimit = 500
)

// Insert records a newly opened session. Replays of the same session are ignored.
func (r *SessionSQLite) Insert(ctx context.Context, rec models.RuntimeSessionRecord) error {
	if _, err := r.db.ExecContext(ctx, insertSessionSQL, sessionArgs(rec)...); err != nil {
		return fmt.Errorf("insert session %q: %w", rec.SessionID, err)
	}
	return nil
}

// Close stores the end of a session. A nil DurationSeconds marks a discarded
// or force-closed run.
func (r *SessionSQLite) Close(ctx context.Context, rec models.RuntimeSessionRecord) error {
	if rec.EndedAt == nil {
		return fmt.Errorf("close session %q: missing ended_at", rec.SessionID)
	}
	if _, err := r.db.ExecContext(ctx, closeSessionSQL, sessionArgs(rec)...); err != nil {
		return fmt.Errorf("close session %q: %w", rec.SessionID, err)
	}
	return nil
}

// List returns sessions matching f ordered by start time, newest last.
func (r *SessionSQLite) List(ctx context.Context, f SessionFilter) ([]models.RuntimeSessionRecord, error) {
	var (
		conds []string
		args  []any
	)

	if id := strings.TrimSpace(f.DeviceID); id != "" {
		conds = append(conds, "device_id = ?")
		args = append(args, id)
	}
	if label := strings.ToLower(strings.TrimSpace(string(f.Label))); label != "" {
		conds = append(conds, "equipment_label = ?")
		args = append(args, label)
	}
	if !f.From.IsZero() {
		conds = append(conds, "started_at >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		conds = append(conds, "started_at <= ?")
		args = append(args, f.To.UTC())
	}

	q := `SELECT ` + sessionColumns + ` FROM runtime_sessions`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY started_at ASC LIMIT ?"

	limit := f.Limit
	if limit <= 0 {
		limit = defaultSessionLimit
	}
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select sessions: %w", err)
	}
	defer rows.Close()

	out := make([]models.RuntimeSessionRecord, 0, 64)
	for rows.Next() {
		var (
			rec     models.RuntimeSessionRecord
			label   string
			endedAt sql.NullTime
		)
		if err := rows.Scan(
			&rec.SessionID,
			&rec.DeviceID,
			&label,
			&rec.StartedAt,
			&endedAt,
			&rec.DurationSeconds,
			&rec.StartTempC,
			&rec.EndTempC,
			&rec.HeatSetpointC,
			&rec.CoolSetpointC,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		rec.EquipmentLabel = models.EquipmentLabel(label)
		rec.StartedAt = rec.StartedAt.UTC()
		if endedAt.Valid {
			t := endedAt.Time.UTC()
			rec.EndedAt = &t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func sessionArgs(rec models.RuntimeSessionRecord) []any {
	return []any{
		rec.SessionID,
		rec.DeviceID,
		string(rec.EquipmentLabel),
		rec.StartedAt.UTC(),
		nullTimePtr(rec.EndedAt),
		rec.DurationSeconds,
		rec.StartTempC,
		rec.EndTempC,
		rec.HeatSetpointC,
		rec.CoolSetpointC,
	}
}
