package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"thermostat_runtime/internal/logger"
	"thermostat_runtime/internal/models"
	"thermostat_runtime/internal/normalizer"
)

type submitterStub struct {
	mu     sync.Mutex
	got    []models.CanonicalReading
	reject map[string]error
}

func (s *submitterStub) Submit(_ context.Context, r models.CanonicalReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reject[r.DeviceID]; err != nil {
		return err
	}
	s.got = append(s.got, r)
	return nil
}

func TestIngestService_CountsOutcomes(t *testing.T) {
	sub := &submitterStub{reject: map[string]error{"busy": ErrQueueFull}}
	svc := NewIngestService(sub, logger.Nop())

	payloads := []map[string]any{
		{
			"device_id":      "dev-1",
			"timestamp":      "2026-01-01T12:00:00Z",
			"ThermostatHvac": map[string]any{"status": "HEATING"},
		},
		{"timestamp": "2026-01-01T12:00:00Z"},
		{"device_id": "busy", "timestamp": "2026-01-01T12:00:00Z"},
	}
	res := svc.Ingest(context.Background(), payloads, normalizer.Hint{})

	if res != (IngestResult{Accepted: 1, Malformed: 1, Rejected: 1}) {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(sub.got) != 1 || sub.got[0].EquipmentStatus != models.StatusHeating {
		t.Fatalf("unexpected submissions: %+v", sub.got)
	}
}

func TestIngestService_ReceiveTimeFillsMissingTimestamp(t *testing.T) {
	sub := &submitterStub{}
	svc := NewIngestService(sub, logger.Nop())
	svc.now = func() time.Time { return t0 }

	res := svc.Ingest(context.Background(), []map[string]any{{"device_id": "dev-1"}}, normalizer.Hint{})

	if res.Accepted != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !sub.got[0].ObservedAt.Equal(t0) {
		t.Fatalf("ObservedAt = %v, want %v", sub.got[0].ObservedAt, t0)
	}
}
