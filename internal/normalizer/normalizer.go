// Package normalizer maps vendor thermostat payloads onto models.CanonicalReading.
package normalizer

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"thermostat_runtime/internal/models"
	"thermostat_runtime/internal/session"
)

// traitPrefix is the fully qualified vendor namespace. Older integrations sent
// the short trait name only.
const traitPrefix = "sdm.devices.traits."

// Hint carries identity and timing the ingress knows independently of the payload.
type Hint struct {
	DeviceID   string
	DeviceName string
	UserID     string
	ReceivedAt time.Time
}

// Normalize builds a CanonicalReading from a push envelope, a poll result or a
// flat test payload. It fails with session.ErrMalformedEvent when neither the
// payload nor the hint yields a device identity or a timestamp.
func Normalize(payload map[string]any, hint Hint) (models.CanonicalReading, error) {
	if payload == nil {
		return models.CanonicalReading{}, fmt.Errorf("%w: empty payload", session.ErrMalformedEvent)
	}

	resource := payload
	if ru, ok := asMap(payload["resourceUpdate"]); ok {
		resource = ru
	}
	traits, ok := asMap(resource["traits"])
	if !ok {
		traits = resource
	}

	r := models.CanonicalReading{
		DeviceID: firstString(
			lastSegment(str(resource["name"])),
			str(payload["deviceId"]),
			str(payload["device_id"]),
			hint.DeviceID,
		),
		UserID:  firstString(str(payload["userId"]), str(payload["user_id"]), hint.UserID),
		EventID: firstString(str(payload["eventId"]), str(payload["event_id"])),
	}
	if r.DeviceID == "" {
		return models.CanonicalReading{}, fmt.Errorf("%w: no device identity", session.ErrMalformedEvent)
	}

	observed, ok := parseTime(firstPresent(payload, "timestamp", "observedAt", "observed_at"))
	if !ok {
		observed = hint.ReceivedAt
	}
	if observed.IsZero() {
		return models.CanonicalReading{}, fmt.Errorf("%w: no timestamp for device %s", session.ErrMalformedEvent, r.DeviceID)
	}
	r.ObservedAt = observed.UTC()

	r.DeviceName = firstString(
		str(trait(traits, "Info", "customName")),
		str(payload["deviceName"]),
		hint.DeviceName,
	)
	r.RoomName = roomName(resource)

	r.Mode = parseMode(str(trait(traits, "ThermostatMode", "mode")))
	r.EquipmentStatus = parseStatus(str(trait(traits, "ThermostatHvac", "status")))
	r.FanOn = parseFan(trait(traits, "Fan", "timerMode"))
	r.CurrentTempC = number(trait(traits, "Temperature", "ambientTemperatureCelsius"))
	r.HeatSetpointC = number(trait(traits, "ThermostatTemperatureSetpoint", "heatCelsius"))
	r.CoolSetpointC = number(trait(traits, "ThermostatTemperatureSetpoint", "coolCelsius"))
	r.Connectivity = parseConnectivity(str(trait(traits, "Connectivity", "status")))
	r.DisplayScale = parseScale(str(trait(traits, "Settings", "temperatureScale")))

	return r, nil
}

// trait resolves traits[<prefix>name][field], falling back to traits[name][field].
func trait(traits map[string]any, name, field string) any {
	for _, key := range []string{traitPrefix + name, name} {
		t, ok := asMap(traits[key])
		if !ok {
			continue
		}
		if v, ok := t[field]; ok && v != nil {
			return v
		}
	}
	return nil
}

func roomName(resource map[string]any) string {
	rels, ok := resource["parentRelations"].([]any)
	if !ok {
		return ""
	}
	for _, rel := range rels {
		m, ok := asMap(rel)
		if !ok {
			continue
		}
		if name := str(m["displayName"]); name != "" {
			return name
		}
	}
	return ""
}

func parseMode(s string) models.ThermostatMode {
	switch m := models.ThermostatMode(strings.ToUpper(s)); m {
	case models.ModeOff, models.ModeHeat, models.ModeCool, models.ModeHeatCool:
		return m
	}
	return models.ModeUnknown
}

func parseStatus(s string) models.EquipmentStatus {
	if s == "" {
		return ""
	}
	switch st := models.EquipmentStatus(strings.ToUpper(s)); st {
	case models.StatusHeating, models.StatusCooling, models.StatusOff:
		return st
	}
	return models.StatusUnknown
}

func parseConnectivity(s string) models.Connectivity {
	switch c := models.Connectivity(strings.ToUpper(s)); c {
	case models.ConnectivityOnline, models.ConnectivityOffline:
		return c
	}
	return models.ConnectivityUnknown
}

func parseScale(s string) models.TemperatureScale {
	switch sc := models.TemperatureScale(strings.ToUpper(s)); sc {
	case models.ScaleCelsius, models.ScaleFahrenheit:
		return sc
	}
	return ""
}

// parseFan returns nil when the trait is absent. Booleans are accepted for
// test payloads.
func parseFan(v any) *bool {
	var on bool
	switch t := v.(type) {
	case bool:
		on = t
	case string:
		switch strings.ToUpper(t) {
		case "ON":
			on = true
		case "OFF":
			on = false
		default:
			return nil
		}
	default:
		return nil
	}
	return &on
}

// number returns a finite value rounded to two decimals, or nil.
func number(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	f = math.Round(f*100) / 100
	return &f
}

// parseTime accepts RFC3339 strings and unix epoch milliseconds.
func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		ts, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return ts, true
	case json.Number:
		ms, err := t.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.UnixMilli(ms), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(t)), true
	}
	return time.Time{}, false
}

func firstPresent(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func lastSegment(path string) string {
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
