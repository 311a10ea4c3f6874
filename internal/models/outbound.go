package models

import "time"

// OutboundKind names the payload type delivered to sinks.
type OutboundKind string

const (
	KindSessionStarted OutboundKind = "session_started"
	KindSessionEnded   OutboundKind = "session_ended"
	KindUpdate         OutboundKind = "update"
)

// OutboundEvent is the normalized payload handed to every sink.
type OutboundEvent struct {
	SourceEventID  string         `json:"source_event_id"`
	Kind           OutboundKind   `json:"kind"`
	DeviceID       string         `json:"device_id"`
	DeviceName     string         `json:"device_name,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	SessionID      string         `json:"session_id,omitempty"`
	EquipmentLabel EquipmentLabel `json:"equipment_label"`
	PreviousStatus EquipmentLabel `json:"previous_status"`
	IsActive       bool           `json:"is_active"`
	RuntimeSeconds *int64         `json:"runtime_seconds"`
	ObservedAt     time.Time      `json:"observed_at"`
	Mode           ThermostatMode `json:"thermostat_mode"`
	Reachable      bool           `json:"reachable"`

	TemperatureC  *float64 `json:"temperature_c,omitempty"`
	HeatSetpointC *float64 `json:"heat_setpoint_c,omitempty"`
	CoolSetpointC *float64 `json:"cool_setpoint_c,omitempty"`

	DisplayUnit         string   `json:"display_unit"`
	DisplayTemperature  *float64 `json:"display_temperature,omitempty"`
	DisplayHeatSetpoint *float64 `json:"display_heat_setpoint,omitempty"`
	DisplayCoolSetpoint *float64 `json:"display_cool_setpoint,omitempty"`
}
