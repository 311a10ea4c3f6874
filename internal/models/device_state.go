package models

import "time"

// EquipmentLabel is the activity class of a device.
type EquipmentLabel string

const (
	LabelOff  EquipmentLabel = "off"
	LabelHeat EquipmentLabel = "heat"
	LabelCool EquipmentLabel = "cool"
	LabelFan  EquipmentLabel = "fan"
)

// Conditioning reports whether the label is a heat or cool stage.
func (l EquipmentLabel) Conditioning() bool { return l == LabelHeat || l == LabelCool }

// DeviceSessionState is the long-lived per-device classifier state.
//
// IsRunning is true iff SessionID and StartedAt are both set. TailUntil is the
// end of the post-run fan purge window and is zero when no tail is open.
type DeviceSessionState struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name,omitempty"`
	UserID     string `json:"user_id,omitempty"`

	IsRunning      bool           `json:"is_running"`
	EquipmentLabel EquipmentLabel `json:"equipment_label"`
	SessionID      string         `json:"session_id,omitempty"`
	StartedAt      time.Time      `json:"started_at,omitempty"`
	StartTempC     *float64       `json:"start_temp_c,omitempty"`
	TailUntil      time.Time      `json:"tail_until,omitempty"`

	// last known good snapshot
	LastTempC          *float64         `json:"last_temp_c,omitempty"`
	LastHeatSetpointC  *float64         `json:"last_heat_setpoint_c,omitempty"`
	LastCoolSetpointC  *float64         `json:"last_cool_setpoint_c,omitempty"`
	LastEquipmentLabel EquipmentLabel   `json:"last_equipment_label"`
	LastMode           ThermostatMode   `json:"last_mode"`
	LastReachable      bool             `json:"last_reachable"`
	LastObservedAt     time.Time        `json:"last_observed_at,omitempty"`
	LastActiveAt       time.Time        `json:"last_active_at,omitempty"`
	DisplayScale       TemperatureScale `json:"display_scale,omitempty"`
}

// NewDeviceSessionState returns the defaults for a device seen for the first time.
func NewDeviceSessionState(deviceID string) DeviceSessionState {
	return DeviceSessionState{
		DeviceID:           deviceID,
		EquipmentLabel:     LabelOff,
		LastEquipmentLabel: LabelOff,
		LastMode:           ModeUnknown,
		LastReachable:      true,
	}
}

// Consistent reports whether the running flag agrees with the session fields.
func (s DeviceSessionState) Consistent() bool {
	hasSession := s.SessionID != "" && !s.StartedAt.IsZero()
	return s.IsRunning == hasSession
}

// TailOpen reports whether a fan tail is still holding the device active at now.
func (s DeviceSessionState) TailOpen(now time.Time) bool {
	return !s.TailUntil.IsZero() && now.Before(s.TailUntil)
}
