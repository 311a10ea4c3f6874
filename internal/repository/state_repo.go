package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"thermostat_runtime/internal/models"
)

type StateSQLite struct {
	db  *sql.DB
	now func() time.Time
}

func NewStateSQLite(db *sql.DB) *StateSQLite {
	return &StateSQLite{db: db, now: time.Now}
}

var _ DeviceStateRepo = (*StateSQLite)(nil)

const (
	deviceStateColumns = `device_id, device_name, user_id, is_running, equipment_label, session_id,
		started_at, start_temp_c, tail_until, last_temp_c, last_heat_setpoint_c, last_cool_setpoint_c,
		last_equipment_label, last_mode, last_reachable, last_observed_at, last_active_at, display_scale`

	upsertDeviceStateSQL = `
		INSERT INTO device_state (` + deviceStateColumns + `, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			device_name=excluded.device_name,
			user_id=excluded.user_id,
			is_running=excluded.is_running,
			equipment_label=excluded.equipment_label,
			session_id=excluded.session_id,
			started_at=excluded.started_at,
			start_temp_c=excluded.start_temp_c,
			tail_until=excluded.tail_until,
			last_temp_c=excluded.last_temp_c,
			last_heat_setpoint_c=excluded.last_heat_setpoint_c,
			last_cool_setpoint_c=excluded.last_cool_setpoint_c,
			last_equipment_label=excluded.last_equipment_label,
			last_mode=excluded.last_mode,
			last_reachable=excluded.last_reachable,
			last_observed_at=excluded.last_observed_at,
			last_active_at=excluded.last_active_at,
			display_scale=excluded.display_scale,
			updated_at=excluded.updated_at
	`

	selectRunningSQL = `SELECT ` + deviceStateColumns + ` FROM device_state WHERE is_running = 1 ORDER BY device_id`

	deleteStaleSQL = `DELETE FROM device_state WHERE is_running = 0 AND last_observed_at < ?`
)

// Upsert writes the full snapshot of one device. Timestamps are stored as UTC.
func (r *StateSQLite) Upsert(ctx context.Context, s models.DeviceSessionState) error {
	_, err := r.db.ExecContext(ctx, upsertDeviceStateSQL,
		s.DeviceID,
		s.DeviceName,
		s.UserID,
		s.IsRunning,
		string(s.EquipmentLabel),
		nullString(s.SessionID),
		nullTime(s.StartedAt),
		s.StartTempC,
		nullTime(s.TailUntil),
		s.LastTempC,
		s.LastHeatSetpointC,
		s.LastCoolSetpointC,
		string(s.LastEquipmentLabel),
		string(s.LastMode),
		s.LastReachable,
		nullTime(s.LastObservedAt),
		nullTime(s.LastActiveAt),
		string(s.DisplayScale),
		r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert device_state %q: %w", s.DeviceID, err)
	}
	return nil
}

// LoadRunning returns every device whose persisted snapshot is mid-session.
func (r *StateSQLite) LoadRunning(ctx context.Context) ([]models.DeviceSessionState, error) {
	rows, err := r.db.QueryContext(ctx, selectRunningSQL)
	if err != nil {
		return nil, fmt.Errorf("select running devices: %w", err)
	}
	defer rows.Close()

	out := make([]models.DeviceSessionState, 0, 16)
	for rows.Next() {
		s, err := scanDeviceState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteStale removes idle devices not observed since before.
func (r *StateSQLite) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, deleteStaleSQL, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete stale devices: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func scanDeviceState(rows *sql.Rows) (models.DeviceSessionState, error) {
	var (
		s                                          models.DeviceSessionState
		name, user, sessionID, scale               sql.NullString
		label, lastLabel, lastMode                 string
		startedAt, tailUntil, observedAt, activeAt sql.NullTime
	)
	if err := rows.Scan(
		&s.DeviceID,
		&name,
		&user,
		&s.IsRunning,
		&label,
		&sessionID,
		&startedAt,
		&s.StartTempC,
		&tailUntil,
		&s.LastTempC,
		&s.LastHeatSetpointC,
		&s.LastCoolSetpointC,
		&lastLabel,
		&lastMode,
		&s.LastReachable,
		&observedAt,
		&activeAt,
		&scale,
	); err != nil {
		return models.DeviceSessionState{}, fmt.Errorf("scan device_state: %w", err)
	}

	s.DeviceName = name.String
	s.UserID = user.String
	s.SessionID = sessionID.String
	s.DisplayScale = models.TemperatureScale(scale.String)
	s.EquipmentLabel = models.EquipmentLabel(label)
	s.LastEquipmentLabel = models.EquipmentLabel(lastLabel)
	s.LastMode = models.ThermostatMode(lastMode)
	s.StartedAt = utcOrZero(startedAt)
	s.TailUntil = utcOrZero(tailUntil)
	s.LastObservedAt = utcOrZero(observedAt)
	s.LastActiveAt = utcOrZero(activeAt)
	return s, nil
}
