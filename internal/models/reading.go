package models

import "time"

// ThermostatMode is the user-selected HVAC mode reported by the vendor.
type ThermostatMode string

const (
	ModeOff      ThermostatMode = "OFF"
	ModeHeat     ThermostatMode = "HEAT"
	ModeCool     ThermostatMode = "COOL"
	ModeHeatCool ThermostatMode = "HEATCOOL"
	ModeUnknown  ThermostatMode = "UNKNOWN"
)

// CanCool reports whether the mode allows the cooling stage to run.
func (m ThermostatMode) CanCool() bool { return m == ModeCool || m == ModeHeatCool }

// CanHeat reports whether the mode allows the heating stage to run.
func (m ThermostatMode) CanHeat() bool { return m == ModeHeat || m == ModeHeatCool }

// EquipmentStatus is the explicit HVAC status trait. The empty value means the
// trait was absent from the event.
type EquipmentStatus string

const (
	StatusHeating EquipmentStatus = "HEATING"
	StatusCooling EquipmentStatus = "COOLING"
	StatusOff     EquipmentStatus = "OFF"
	StatusUnknown EquipmentStatus = "UNKNOWN"
)

// Known reports whether the status can be used without inference.
func (s EquipmentStatus) Known() bool {
	return s == StatusHeating || s == StatusCooling || s == StatusOff
}

// Connectivity of the device as reported by the vendor.
type Connectivity string

const (
	ConnectivityOnline  Connectivity = "ONLINE"
	ConnectivityOffline Connectivity = "OFFLINE"
	ConnectivityUnknown Connectivity = "UNKNOWN"
)

// TemperatureScale is the user-facing display unit.
type TemperatureScale string

const (
	ScaleCelsius    TemperatureScale = "CELSIUS"
	ScaleFahrenheit TemperatureScale = "FAHRENHEIT"
)

// CanonicalReading is one normalized telemetry event. Optional numeric fields
// are nil when absent; a nil value is never confused with zero.
type CanonicalReading struct {
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name,omitempty"`
	RoomName   string    `json:"room_name,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	EventID    string    `json:"event_id,omitempty"`
	ObservedAt time.Time `json:"observed_at"`

	Mode            ThermostatMode   `json:"thermostat_mode"`
	EquipmentStatus EquipmentStatus  `json:"equipment_status,omitempty"`
	FanOn           *bool            `json:"fan_on,omitempty"`
	CurrentTempC    *float64         `json:"current_temp_c,omitempty"`
	CoolSetpointC   *float64         `json:"cool_setpoint_c,omitempty"`
	HeatSetpointC   *float64         `json:"heat_setpoint_c,omitempty"`
	Connectivity    Connectivity     `json:"connectivity"`
	DisplayScale    TemperatureScale `json:"display_scale,omitempty"`
}

// FanRunning reports whether the fan trait is present and reads "on".
func (r CanonicalReading) FanRunning() bool {
	return r.FanOn != nil && *r.FanOn
}
