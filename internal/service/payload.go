package service

import (
	"math"
	"strconv"
	"strings"
	"time"

	"thermostat_runtime/internal/models"

	"github.com/google/uuid"
)

// sourceEventNamespace scopes the deterministic source event IDs.
var sourceEventNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:thermostat-runtime:outbound-events"))

// outboundSpec is what differs between the payloads built for one reading.
type outboundSpec struct {
	kind      models.OutboundKind
	sessionID string
	label     models.EquipmentLabel
	previous  models.EquipmentLabel
	active    bool
	runtime   *int64
	at        time.Time
}

// newOutbound renders a payload from the device snapshot after processing.
func newOutbound(st models.DeviceSessionState, spec outboundSpec) models.OutboundEvent {
	at := spec.at.UTC()
	ev := models.OutboundEvent{
		SourceEventID:  sourceEventID(st.DeviceID, spec.kind, spec.sessionID, at),
		Kind:           spec.kind,
		DeviceID:       st.DeviceID,
		DeviceName:     st.DeviceName,
		UserID:         st.UserID,
		SessionID:      spec.sessionID,
		EquipmentLabel: spec.label,
		PreviousStatus: spec.previous,
		IsActive:       spec.active,
		RuntimeSeconds: spec.runtime,
		ObservedAt:     at,
		Mode:           st.LastMode,
		Reachable:      st.LastReachable,
		TemperatureC:   st.LastTempC,
		HeatSetpointC:  st.LastHeatSetpointC,
		CoolSetpointC:  st.LastCoolSetpointC,
	}
	if ev.PreviousStatus == "" {
		ev.PreviousStatus = models.LabelOff
	}

	if st.DisplayScale == models.ScaleFahrenheit {
		ev.DisplayUnit = "F"
		ev.DisplayTemperature = toFahrenheit(st.LastTempC)
		ev.DisplayHeatSetpoint = toFahrenheit(st.LastHeatSetpointC)
		ev.DisplayCoolSetpoint = toFahrenheit(st.LastCoolSetpointC)
	} else {
		ev.DisplayUnit = "C"
		ev.DisplayTemperature = st.LastTempC
		ev.DisplayHeatSetpoint = st.LastHeatSetpointC
		ev.DisplayCoolSetpoint = st.LastCoolSetpointC
	}
	return ev
}

// sourceEventID is stable for a given transition so replays share a key.
func sourceEventID(deviceID string, kind models.OutboundKind, sessionID string, at time.Time) string {
	name := strings.Join([]string{
		deviceID,
		string(kind),
		sessionID,
		strconv.FormatInt(at.UnixNano(), 10),
	}, "|")
	return uuid.NewSHA1(sourceEventNamespace, []byte(name)).String()
}

func toFahrenheit(c *float64) *float64 {
	if c == nil {
		return nil
	}
	f := math.Round((*c*9/5+32)*10) / 10
	return &f
}
