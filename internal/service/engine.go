package service

import (
	"context"
	"errors"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"thermostat_runtime/internal/logger"
	"thermostat_runtime/internal/models"
	"thermostat_runtime/internal/session"
)

const (
	defaultWorkers        = 8
	defaultQueueSize      = 256
	defaultProcessTimeout = 60 * time.Second
)

// StateStore receives classifier output for durable storage. Implementations
// must not block.
type StateStore interface {
	SaveState(models.DeviceSessionState)
	OpenSession(models.RuntimeSessionRecord)
	CloseSession(models.RuntimeSessionRecord)
	TakeFailed(deviceID string) bool
}

// Outbound receives payloads for delivery. Implementations must not block.
type Outbound interface {
	Enqueue(models.OutboundEvent)
}

type EngineOptions struct {
	Workers        int
	QueueSize      int
	ProcessTimeout time.Duration
}

// EngineStats is a point-in-time counter snapshot.
type EngineStats struct {
	Devices    int   `json:"devices"`
	Running    int   `json:"running"`
	Processed  int64 `json:"processed"`
	Rejected   int64 `json:"rejected"`
	TimedOut   int64 `json:"timed_out"`
	OutOfOrder int64 `json:"out_of_order"`
	Runaway    int64 `json:"runaway"`
}

type jobKind int

const (
	jobReading jobKind = iota
	jobSweep
)

type job struct {
	kind        jobKind
	reading     models.CanonicalReading
	now         time.Time
	staleBefore time.Time
	deadline    time.Time
}

type deviceEntry struct {
	state models.DeviceSessionState
	gate  session.GateState
}

// shard owns a disjoint set of devices. Only the shard goroutine mutates the
// map and its entries; readers take mu.RLock.
type shard struct {
	mu      sync.RWMutex
	devices map[string]*deviceEntry
	jobs    chan job
}

// Engine routes readings to per-device owners and turns classifier output
// into persistence writes and outbound payloads.
type Engine struct {
	machine *session.Machine
	gate    session.Gate
	store   StateStore
	out     Outbound
	log     *logger.Logger
	timeout time.Duration
	now     func() time.Time

	shards []*shard
	wg     sync.WaitGroup
	start  sync.Once

	mu     sync.RWMutex
	closed bool

	processed  atomic.Int64
	rejected   atomic.Int64
	timedOut   atomic.Int64
	outOfOrder atomic.Int64
	runaway    atomic.Int64
}

func NewEngine(machine *session.Machine, store StateStore, out Outbound, log *logger.Logger, opts EngineOptions) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.ProcessTimeout <= 0 {
		opts.ProcessTimeout = defaultProcessTimeout
	}

	e := &Engine{
		machine: machine,
		gate:    session.NewGate(machine.Config()),
		store:   store,
		out:     out,
		log:     log,
		timeout: opts.ProcessTimeout,
		now:     time.Now,
		shards:  make([]*shard, opts.Workers),
	}
	for i := range e.shards {
		e.shards[i] = &shard{
			devices: make(map[string]*deviceEntry),
			jobs:    make(chan job, opts.QueueSize),
		}
	}
	return e
}

// Start launches one goroutine per shard.
func (e *Engine) Start() {
	e.start.Do(func() {
		for _, sh := range e.shards {
			e.wg.Add(1)
			go e.run(sh)
		}
	})
}

// Restore seeds device state recovered from storage. Call before Start.
func (e *Engine) Restore(states []models.DeviceSessionState) {
	for _, st := range states {
		if st.DeviceID == "" {
			continue
		}
		sh := e.shardFor(st.DeviceID)
		sh.mu.Lock()
		sh.devices[st.DeviceID] = &deviceEntry{state: st}
		sh.mu.Unlock()
	}
}

// Submit queues a reading for its device. It never blocks: a saturated shard
// yields ErrQueueFull.
func (e *Engine) Submit(ctx context.Context, r models.CanonicalReading) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrEngineClosed
	}

	sh := e.shardFor(r.DeviceID)
	select {
	case sh.jobs <- job{kind: jobReading, reading: r, deadline: e.now().Add(e.timeout)}:
		return nil
	default:
		e.rejected.Add(1)
		return ErrQueueFull
	}
}

// Tick asks every shard to expire fan tails and runaway sessions as of now,
// and to forget idle devices last seen before staleBefore. A zero staleBefore
// disables eviction. Shards with a full queue skip this tick.
func (e *Engine) Tick(now, staleBefore time.Time) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	j := job{kind: jobSweep, now: now, staleBefore: staleBefore, deadline: e.now().Add(e.timeout)}
	for i, sh := range e.shards {
		select {
		case sh.jobs <- j:
		default:
			e.log.Debugw("sweep_skipped", "shard", i)
		}
	}
}

// Close stops intake and waits for queued jobs to finish or ctx to end.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		for _, sh := range e.shards {
			close(sh.jobs)
		}
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Devices returns a snapshot of every tracked device ordered by ID.
func (e *Engine) Devices() []models.DeviceSessionState {
	var out []models.DeviceSessionState
	for _, sh := range e.shards {
		sh.mu.RLock()
		for _, ent := range sh.devices {
			out = append(out, ent.state)
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Device returns the snapshot of one device.
func (e *Engine) Device(id string) (models.DeviceSessionState, bool) {
	sh := e.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	ent, ok := sh.devices[id]
	if !ok {
		return models.DeviceSessionState{}, false
	}
	return ent.state, true
}

func (e *Engine) Stats() EngineStats {
	s := EngineStats{
		Processed:  e.processed.Load(),
		Rejected:   e.rejected.Load(),
		TimedOut:   e.timedOut.Load(),
		OutOfOrder: e.outOfOrder.Load(),
		Runaway:    e.runaway.Load(),
	}
	for _, sh := range e.shards {
		sh.mu.RLock()
		s.Devices += len(sh.devices)
		for _, ent := range sh.devices {
			if ent.state.IsRunning {
				s.Running++
			}
		}
		sh.mu.RUnlock()
	}
	return s
}

func (e *Engine) shardFor(deviceID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(deviceID))
	return e.shards[h.Sum32()%uint32(len(e.shards))]
}

func (e *Engine) run(sh *shard) {
	defer e.wg.Done()
	for j := range sh.jobs {
		if e.now().After(j.deadline) {
			e.timedOut.Add(1)
			e.log.Warnw("event_timeout",
				"device_id", j.reading.DeviceID,
				"observed_at", j.reading.ObservedAt,
				"sweep", j.kind == jobSweep,
			)
			continue
		}
		switch j.kind {
		case jobReading:
			e.apply(sh, j.reading)
		case jobSweep:
			e.sweep(sh, j.now, j.staleBefore)
		}
	}
}

func (e *Engine) apply(sh *shard, r models.CanonicalReading) {
	ent := sh.devices[r.DeviceID]
	var (
		prev models.DeviceSessionState
		gs   session.GateState
	)
	if ent != nil {
		prev, gs = ent.state, ent.gate
	}

	next, em := e.machine.Process(prev, r)
	e.processed.Add(1)

	outOfOrder := errors.Is(em.Err, session.ErrOutOfOrderEvent)
	if outOfOrder {
		e.outOfOrder.Add(1)
		e.log.Infow("event_out_of_order",
			"device_id", r.DeviceID,
			"observed_at", r.ObservedAt,
			"last_observed_at", prev.LastObservedAt,
			"err", em.Err,
		)
	}

	posted := e.publish(next, em, r.ObservedAt)
	if !posted && !outOfOrder && e.gate.Should(gs, r) {
		e.out.Enqueue(newOutbound(next, outboundSpec{
			kind:      models.KindUpdate,
			sessionID: next.SessionID,
			label:     next.EquipmentLabel,
			previous:  em.PreviousLabel,
			active:    next.IsRunning,
			at:        r.ObservedAt,
		}))
		posted = true
	}
	if posted && !outOfOrder {
		gs.MarkPosted(r)
	}

	wrote := e.persist(em)
	if wrote || posted || ent == nil || e.store.TakeFailed(r.DeviceID) {
		e.store.SaveState(next)
	}

	sh.mu.Lock()
	if ent == nil {
		ent = &deviceEntry{}
		sh.devices[r.DeviceID] = ent
	}
	ent.state = next
	ent.gate = gs
	sh.mu.Unlock()
}

func (e *Engine) sweep(sh *shard, now, staleBefore time.Time) {
	for id, ent := range sh.devices {
		next, em := e.machine.Expire(ent.state, now)
		if em.Transitioned() || em.Discarded != nil {
			e.publish(next, em, now)
			e.persist(em)
			e.store.SaveState(next)
			sh.mu.Lock()
			ent.state = next
			sh.mu.Unlock()
		}

		if !next.IsRunning && !next.LastObservedAt.IsZero() && next.LastObservedAt.Before(staleBefore) {
			sh.mu.Lock()
			delete(sh.devices, id)
			sh.mu.Unlock()
			e.log.Debugw("device_evicted", "device_id", id, "last_observed_at", next.LastObservedAt)
		}
	}
}

// publish enqueues the payloads for an emission and reports whether any were sent.
func (e *Engine) publish(next models.DeviceSessionState, em session.Emission, at time.Time) bool {
	posted := false
	previous := em.PreviousLabel

	if d := em.Discarded; d != nil {
		if errors.Is(em.Err, session.ErrRunawaySession) {
			e.runaway.Add(1)
			e.log.Warnw("session_runaway",
				"device_id", d.DeviceID,
				"session_id", d.SessionID,
				"label", d.EquipmentLabel,
				"started_at", d.StartedAt,
				"err", em.Err,
			)
			e.out.Enqueue(newOutbound(next, outboundSpec{
				kind:      models.KindUpdate,
				sessionID: d.SessionID,
				label:     models.LabelOff,
				previous:  d.EquipmentLabel,
				at:        at,
			}))
			posted = true
			previous = models.LabelOff
		} else {
			e.log.Infow("session_discarded",
				"device_id", d.DeviceID,
				"session_id", d.SessionID,
				"label", d.EquipmentLabel,
				"started_at", d.StartedAt,
				"ended_at", d.EndedAt,
			)
		}
	}

	if rec := em.Ended; rec != nil {
		e.log.Infow("session_ended",
			"device_id", rec.DeviceID,
			"session_id", rec.SessionID,
			"label", rec.EquipmentLabel,
			"duration_seconds", *rec.DurationSeconds,
		)
		e.out.Enqueue(newOutbound(next, outboundSpec{
			kind:      models.KindSessionEnded,
			sessionID: rec.SessionID,
			label:     next.EquipmentLabel,
			previous:  rec.EquipmentLabel,
			active:    next.IsRunning,
			runtime:   rec.DurationSeconds,
			at:        *rec.EndedAt,
		}))
		posted = true
	}

	if rec := em.Started; rec != nil {
		e.log.Infow("session_started",
			"device_id", rec.DeviceID,
			"session_id", rec.SessionID,
			"label", rec.EquipmentLabel,
		)
		e.out.Enqueue(newOutbound(next, outboundSpec{
			kind:      models.KindSessionStarted,
			sessionID: rec.SessionID,
			label:     rec.EquipmentLabel,
			previous:  previous,
			active:    true,
			at:        rec.StartedAt,
		}))
		posted = true
	}
	return posted
}

// persist forwards session rows, closes before opens, and reports whether any
// were written.
func (e *Engine) persist(em session.Emission) bool {
	wrote := false
	for _, rec := range []*models.RuntimeSessionRecord{em.Discarded, em.Ended} {
		if rec != nil {
			e.store.CloseSession(*rec)
			wrote = true
		}
	}
	if em.Started != nil {
		e.store.OpenSession(*em.Started)
		wrote = true
	}
	return wrote
}
