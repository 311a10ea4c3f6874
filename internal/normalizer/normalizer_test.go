package normalizer

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"thermostat_runtime/internal/models"
	"thermostat_runtime/internal/session"
)

var received = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func mustDecodeOne(t *testing.T, body string) map[string]any {
	t.Helper()
	events, err := Decode([]byte(body))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	return events[0]
}

func TestNormalize_PushEnvelope(t *testing.T) {
	payload := mustDecodeOne(t, `{
		"eventId": "evt-1",
		"timestamp": "2026-03-01T07:59:30.120Z",
		"userId": "user-9",
		"resourceUpdate": {
			"name": "enterprises/proj/devices/AVPHwEu",
			"traits": {
				"sdm.devices.traits.ThermostatHvac": {"status": "HEATING"},
				"sdm.devices.traits.Temperature": {"ambientTemperatureCelsius": 19.456},
				"sdm.devices.traits.ThermostatTemperatureSetpoint": {"heatCelsius": 21.0},
				"sdm.devices.traits.ThermostatMode": {"mode": "HEAT"},
				"sdm.devices.traits.Connectivity": {"status": "ONLINE"},
				"sdm.devices.traits.Fan": {"timerMode": "OFF"},
				"sdm.devices.traits.Settings": {"temperatureScale": "FAHRENHEIT"}
			}
		}
	}`)

	r, err := Normalize(payload, Hint{ReceivedAt: received})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if r.DeviceID != "AVPHwEu" || r.UserID != "user-9" || r.EventID != "evt-1" {
		t.Errorf("identity: %+v", r)
	}
	want := time.Date(2026, 3, 1, 7, 59, 30, 120_000_000, time.UTC)
	if !r.ObservedAt.Equal(want) {
		t.Errorf("ObservedAt = %v, want %v", r.ObservedAt, want)
	}
	if r.EquipmentStatus != models.StatusHeating || r.Mode != models.ModeHeat {
		t.Errorf("status/mode: %s %s", r.EquipmentStatus, r.Mode)
	}
	if r.CurrentTempC == nil || *r.CurrentTempC != 19.46 {
		t.Errorf("CurrentTempC = %v", r.CurrentTempC)
	}
	if r.HeatSetpointC == nil || *r.HeatSetpointC != 21.0 {
		t.Errorf("HeatSetpointC = %v", r.HeatSetpointC)
	}
	if r.CoolSetpointC != nil {
		t.Errorf("absent cool setpoint must stay nil, got %v", *r.CoolSetpointC)
	}
	if r.FanOn == nil || *r.FanOn {
		t.Errorf("FanOn = %v", r.FanOn)
	}
	if r.Connectivity != models.ConnectivityOnline || r.DisplayScale != models.ScaleFahrenheit {
		t.Errorf("connectivity/scale: %s %s", r.Connectivity, r.DisplayScale)
	}
}

func TestNormalize_PollResultWithShortAliases(t *testing.T) {
	payload := mustDecodeOne(t, `{
		"name": "enterprises/proj/devices/dev-42",
		"traits": {
			"ThermostatHvac": {"status": "cooling"},
			"Temperature": {"ambientTemperatureCelsius": "24.1"},
			"ThermostatTemperatureSetpoint": {"coolCelsius": 23},
			"ThermostatMode": {"mode": "HEATCOOL"},
			"Info": {"customName": "Hallway"}
		},
		"parentRelations": [{"parent": "enterprises/proj/structures/s/rooms/r", "displayName": "Living Room"}]
	}`)

	r, err := Normalize(payload, Hint{ReceivedAt: received, UserID: "user-1"})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if r.DeviceID != "dev-42" || r.DeviceName != "Hallway" || r.RoomName != "Living Room" {
		t.Errorf("identity: %+v", r)
	}
	if !r.ObservedAt.Equal(received) {
		t.Errorf("expected ingress timestamp, got %v", r.ObservedAt)
	}
	if r.UserID != "user-1" {
		t.Errorf("expected hint user, got %q", r.UserID)
	}
	if r.EquipmentStatus != models.StatusCooling || r.Mode != models.ModeHeatCool {
		t.Errorf("status/mode: %s %s", r.EquipmentStatus, r.Mode)
	}
	if *r.CurrentTempC != 24.1 || *r.CoolSetpointC != 23 {
		t.Errorf("numbers: %v %v", *r.CurrentTempC, *r.CoolSetpointC)
	}
	if r.FanOn != nil {
		t.Errorf("absent fan trait must stay nil")
	}
	if r.Connectivity != models.ConnectivityUnknown {
		t.Errorf("Connectivity = %s", r.Connectivity)
	}
}

func TestNormalize_QualifiedKeyWinsOverAlias(t *testing.T) {
	payload := map[string]any{
		"deviceId":  "d1",
		"timestamp": "2026-03-01T08:00:00Z",
		"traits": map[string]any{
			"sdm.devices.traits.ThermostatHvac": map[string]any{"status": "COOLING"},
			"ThermostatHvac":                    map[string]any{"status": "HEATING"},
			"Temperature":                       map[string]any{"ambientTemperatureCelsius": 20.0},
		},
	}
	r, err := Normalize(payload, Hint{})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if r.EquipmentStatus != models.StatusCooling {
		t.Errorf("expected qualified key to win, got %s", r.EquipmentStatus)
	}
	if *r.CurrentTempC != 20.0 {
		t.Errorf("alias fallback failed: %v", r.CurrentTempC)
	}
}

func TestNormalize_FlatTestPayload(t *testing.T) {
	payload := map[string]any{
		"device_id":      "lab-1",
		"observed_at":    json.Number("1772352000000"),
		"ThermostatHvac": map[string]any{"status": "SOMETHING"},
		"Fan":            map[string]any{"timerMode": true},
		"Temperature":    map[string]any{"ambientTemperatureCelsius": math.NaN()},
	}
	r, err := Normalize(payload, Hint{})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if r.DeviceID != "lab-1" {
		t.Errorf("DeviceID = %q", r.DeviceID)
	}
	if !r.ObservedAt.Equal(time.UnixMilli(1772352000000)) {
		t.Errorf("ObservedAt = %v", r.ObservedAt)
	}
	if r.EquipmentStatus != models.StatusUnknown {
		t.Errorf("unrecognised status should be UNKNOWN, got %q", r.EquipmentStatus)
	}
	if r.FanOn == nil || !*r.FanOn {
		t.Errorf("FanOn = %v", r.FanOn)
	}
	if r.CurrentTempC != nil {
		t.Errorf("NaN must normalize to absent")
	}
	if r.Mode != models.ModeUnknown {
		t.Errorf("Mode = %s", r.Mode)
	}
}

func TestNormalize_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		hint    Hint
	}{
		{"nil payload", nil, Hint{ReceivedAt: received}},
		{"no identity", map[string]any{"timestamp": "2026-03-01T08:00:00Z"}, Hint{}},
		{"no timestamp", map[string]any{"deviceId": "d1"}, Hint{}},
		{"bad timestamp without fallback", map[string]any{"deviceId": "d1", "timestamp": "yesterday"}, Hint{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize(tc.payload, tc.hint)
			if !errors.Is(err, session.ErrMalformedEvent) {
				t.Fatalf("expected ErrMalformedEvent, got %v", err)
			}
		})
	}
}

func TestNormalize_HintFillsIdentity(t *testing.T) {
	r, err := Normalize(map[string]any{"traits": map[string]any{}}, Hint{DeviceID: "hinted", DeviceName: "Attic", ReceivedAt: received})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if r.DeviceID != "hinted" || r.DeviceName != "Attic" {
		t.Errorf("identity: %+v", r)
	}
}

func TestDecode_Forms(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"single", `{"deviceId":"a"}`, 1},
		{"array", `[{"deviceId":"a"},{"deviceId":"b"}]`, 2},
		{"batch", `{"events":[{"deviceId":"a"},{"deviceId":"b"},{"deviceId":"c"}]}`, 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode([]byte(tc.body))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if len(got) != tc.want {
				t.Fatalf("got %d events, want %d", len(got), tc.want)
			}
		})
	}

	for _, bad := range []string{"", "not json", `{"events":[1,2]}`} {
		if _, err := Decode([]byte(bad)); !errors.Is(err, session.ErrMalformedEvent) {
			t.Errorf("Decode(%q): expected ErrMalformedEvent, got %v", bad, err)
		}
	}
}
