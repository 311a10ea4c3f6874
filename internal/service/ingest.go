package service

import (
	"context"
	"time"

	"thermostat_runtime/internal/logger"
	"thermostat_runtime/internal/models"
	"thermostat_runtime/internal/normalizer"
)

// Submitter is the write side of the engine.
type Submitter interface {
	Submit(ctx context.Context, r models.CanonicalReading) error
}

// IngestResult counts the outcome of one ingress delivery.
type IngestResult struct {
	Accepted  int `json:"accepted"`
	Malformed int `json:"malformed"`
	Rejected  int `json:"rejected"`
}

type IngestService struct {
	engine Submitter
	log    *logger.Logger
	now    func() time.Time
}

func NewIngestService(engine Submitter, log *logger.Logger) *IngestService {
	return &IngestService{engine: engine, log: log, now: time.Now}
}

// Ingest normalizes each raw payload and hands it to the engine. Malformed
// payloads are logged and dropped; they never affect the rest of the batch.
func (s *IngestService) Ingest(ctx context.Context, payloads []map[string]any, hint normalizer.Hint) IngestResult {
	if hint.ReceivedAt.IsZero() {
		hint.ReceivedAt = s.now().UTC()
	}

	var res IngestResult
	for _, p := range payloads {
		r, err := normalizer.Normalize(p, hint)
		if err != nil {
			res.Malformed++
			s.log.Warnw("event_malformed", "err", err)
			continue
		}
		if err := s.engine.Submit(ctx, r); err != nil {
			res.Rejected++
			s.log.Warnw("event_rejected", "device_id", r.DeviceID, "observed_at", r.ObservedAt, "err", err)
			continue
		}
		res.Accepted++
	}
	return res
}
