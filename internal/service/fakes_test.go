package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"thermostat_runtime/internal/logger"
	"thermostat_runtime/internal/models"
	"thermostat_runtime/internal/repository"
	"thermostat_runtime/internal/session"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func fp(v float64) *float64 { return &v }

func seqIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("s%d", n)
	}
}

func newTestMachine(mutate func(*session.Config)) *session.Machine {
	cfg := session.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	return session.NewMachine(cfg, seqIDs())
}

func reading(deviceID string, sec int, status models.EquipmentStatus, temp float64) models.CanonicalReading {
	return models.CanonicalReading{
		DeviceID:        deviceID,
		DeviceName:      "Hallway",
		ObservedAt:      at(sec),
		Mode:            models.ModeHeatCool,
		EquipmentStatus: status,
		CurrentTempC:    fp(temp),
		HeatSetpointC:   fp(20),
		CoolSetpointC:   fp(24),
		Connectivity:    models.ConnectivityOnline,
	}
}

// fakeStore records what the engine asked to persist.
type fakeStore struct {
	mu     sync.Mutex
	states []models.DeviceSessionState
	opened []models.RuntimeSessionRecord
	closed []models.RuntimeSessionRecord
	failed map[string]bool
}

func newFakeStore() *fakeStore { return &fakeStore{failed: map[string]bool{}} }

func (s *fakeStore) SaveState(st models.DeviceSessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st)
}

func (s *fakeStore) OpenSession(rec models.RuntimeSessionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = append(s.opened, rec)
}

func (s *fakeStore) CloseSession(rec models.RuntimeSessionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, rec)
}

func (s *fakeStore) TakeFailed(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.failed[deviceID]
	delete(s.failed, deviceID)
	return ok
}

func (s *fakeStore) counts() (states, opened, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states), len(s.opened), len(s.closed)
}

// fakeOutbound records enqueued payloads.
type fakeOutbound struct {
	mu     sync.Mutex
	events []models.OutboundEvent
}

func (o *fakeOutbound) Enqueue(ev models.OutboundEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func (o *fakeOutbound) all() []models.OutboundEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.OutboundEvent(nil), o.events...)
}

func (o *fakeOutbound) kinds() []models.OutboundKind {
	var out []models.OutboundKind
	for _, ev := range o.all() {
		out = append(out, ev.Kind)
	}
	return out
}

// fakeStateRepo is an in-memory repository.DeviceStateRepo.
type fakeStateRepo struct {
	mu         sync.Mutex
	running    []models.DeviceSessionState
	loadErr    error
	upsertErr  error
	upserts    []models.DeviceSessionState
	staleCalls []time.Time
	staleN     int64
	staleErr   error
}

var _ repository.DeviceStateRepo = (*fakeStateRepo)(nil)

func (r *fakeStateRepo) Upsert(_ context.Context, s models.DeviceSessionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, s)
	return r.upsertErr
}

func (r *fakeStateRepo) LoadRunning(context.Context) ([]models.DeviceSessionState, error) {
	return r.running, r.loadErr
}

func (r *fakeStateRepo) DeleteStale(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staleCalls = append(r.staleCalls, before)
	return r.staleN, r.staleErr
}

func (r *fakeStateRepo) upserted(deviceID string) (models.DeviceSessionState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.upserts) - 1; i >= 0; i-- {
		if r.upserts[i].DeviceID == deviceID {
			return r.upserts[i], true
		}
	}
	return models.DeviceSessionState{}, false
}

// fakeSessionRepo is an in-memory repository.SessionRepo.
type fakeSessionRepo struct {
	mu       sync.Mutex
	inserted []models.RuntimeSessionRecord
	closed   []models.RuntimeSessionRecord
	err      error

	listed  []repository.SessionFilter
	records []models.RuntimeSessionRecord
}

var _ repository.SessionRepo = (*fakeSessionRepo)(nil)

func (r *fakeSessionRepo) Insert(_ context.Context, rec models.RuntimeSessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserted = append(r.inserted, rec)
	return r.err
}

func (r *fakeSessionRepo) Close(_ context.Context, rec models.RuntimeSessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, rec)
	return r.err
}

func (r *fakeSessionRepo) List(_ context.Context, f repository.SessionFilter) ([]models.RuntimeSessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listed = append(r.listed, f)
	return r.records, r.err
}

func newTestEngine(t *testing.T, mutate func(*session.Config)) (*Engine, *fakeStore, *fakeOutbound) {
	t.Helper()
	store := newFakeStore()
	out := &fakeOutbound{}
	e := NewEngine(newTestMachine(mutate), store, out, logger.Nop(), EngineOptions{Workers: 2, QueueSize: 64})
	return e, store, out
}

func submitAll(t *testing.T, e *Engine, rs ...models.CanonicalReading) {
	t.Helper()
	for _, r := range rs {
		if err := e.Submit(context.Background(), r); err != nil {
			t.Fatalf("Submit(%s @ %s): %v", r.DeviceID, r.ObservedAt, err)
		}
	}
}

func closeEngine(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
