package session

import (
	"fmt"
	"testing"
	"time"

	"thermostat_runtime/internal/models"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func f(v float64) *float64 { return &v }

func b(v bool) *bool { return &v }

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

// seqIDs returns a deterministic session ID generator: s1, s2, ...
func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("s%d", n)
	}
}

func newTestMachine(t *testing.T, mutate func(*Config)) *Machine {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid config: %v", err)
	}
	return NewMachine(cfg, seqIDs())
}

func reading(sec int, status models.EquipmentStatus) models.CanonicalReading {
	return models.CanonicalReading{
		DeviceID:        "dev-1",
		ObservedAt:      at(sec),
		Mode:            models.ModeHeatCool,
		EquipmentStatus: status,
		CurrentTempC:    f(21.0),
		HeatSetpointC:   f(20.0),
		CoolSetpointC:   f(24.0),
		Connectivity:    models.ConnectivityOnline,
	}
}
