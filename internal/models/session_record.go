package models

import (
	"math"
	"time"
)

// RuntimeSessionRecord is the persisted row for one equipment run.
// EndedAt and DurationSeconds are nil while the session is open; a closed
// session with a nil duration was discarded or force-closed.
type RuntimeSessionRecord struct {
	DeviceID        string         `json:"device_id"`
	SessionID       string         `json:"session_id"`
	EquipmentLabel  EquipmentLabel `json:"equipment_label"`
	StartedAt       time.Time      `json:"started_at"`
	EndedAt         *time.Time     `json:"ended_at"`
	DurationSeconds *int64         `json:"duration_seconds"`
	StartTempC      *float64       `json:"start_temp_c,omitempty"`
	EndTempC        *float64       `json:"end_temp_c,omitempty"`
	HeatSetpointC   *float64       `json:"heat_setpoint_c,omitempty"`
	CoolSetpointC   *float64       `json:"cool_setpoint_c,omitempty"`
}

// Open reports whether the session has not been closed yet.
func (r RuntimeSessionRecord) Open() bool { return r.EndedAt == nil }

// DurationSeconds returns round((end-start)/1s). Negative spans yield ok=false.
func DurationSeconds(start, end time.Time) (int64, bool) {
	d := end.Sub(start)
	if d < 0 {
		return 0, false
	}
	return int64(math.Round(d.Seconds())), true
}
