package service

import (
	"context"

	"thermostat_runtime/internal/models"
	"thermostat_runtime/internal/sink"
)

// DeviceReader is the read side of the engine.
type DeviceReader interface {
	Devices() []models.DeviceSessionState
	Device(id string) (models.DeviceSessionState, bool)
	Stats() EngineStats
}

type DeliveryStats interface {
	Stats() sink.Stats
}

type PersistenceStats interface {
	Stats() PersisterStats
}

// RuntimeStats aggregates the counters of every pipeline stage.
type RuntimeStats struct {
	Engine      EngineStats    `json:"engine"`
	Delivery    sink.Stats     `json:"delivery"`
	Persistence PersisterStats `json:"persistence"`
}

type MonitoringService struct {
	engine   DeviceReader
	delivery DeliveryStats
	persist  PersistenceStats
}

// NewMonitoringService builds the read-only view. delivery and persist may be nil.
func NewMonitoringService(engine DeviceReader, delivery DeliveryStats, persist PersistenceStats) *MonitoringService {
	return &MonitoringService{engine: engine, delivery: delivery, persist: persist}
}

// ListDevices returns the live state of every tracked device.
func (s *MonitoringService) ListDevices(ctx context.Context) ([]models.DeviceSessionState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	devices := s.engine.Devices()
	for i := range devices {
		devices[i] = stateUTC(devices[i])
	}
	return devices, nil
}

func (s *MonitoringService) GetDevice(ctx context.Context, id string) (models.DeviceSessionState, error) {
	if err := ctx.Err(); err != nil {
		return models.DeviceSessionState{}, err
	}
	st, ok := s.engine.Device(id)
	if !ok {
		return models.DeviceSessionState{}, ErrDeviceNotFound
	}
	return stateUTC(st), nil
}

func (s *MonitoringService) Stats(context.Context) RuntimeStats {
	out := RuntimeStats{Engine: s.engine.Stats()}
	if s.delivery != nil {
		out.Delivery = s.delivery.Stats()
	}
	if s.persist != nil {
		out.Persistence = s.persist.Stats()
	}
	return out
}

func stateUTC(st models.DeviceSessionState) models.DeviceSessionState {
	st.StartedAt = normalizeToUTC(st.StartedAt)
	st.TailUntil = normalizeToUTC(st.TailUntil)
	st.LastObservedAt = normalizeToUTC(st.LastObservedAt)
	st.LastActiveAt = normalizeToUTC(st.LastActiveAt)
	return st
}
