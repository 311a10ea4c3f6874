package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"thermostat_runtime/internal/logger"
	"thermostat_runtime/internal/models"
	"thermostat_runtime/internal/repository"
)

const (
	defaultPersistQueue = 1024
	defaultWriteTimeout = 5 * time.Second
)

type persistKind int

const (
	persistState persistKind = iota
	persistOpen
	persistClose
)

func (k persistKind) String() string {
	switch k {
	case persistState:
		return "state"
	case persistOpen:
		return "session_open"
	default:
		return "session_close"
	}
}

type persistOp struct {
	kind  persistKind
	state models.DeviceSessionState
	rec   models.RuntimeSessionRecord
}

func (op persistOp) deviceID() string {
	if op.kind == persistState {
		return op.state.DeviceID
	}
	return op.rec.DeviceID
}

// Persister writes classifier output to storage off the processing path.
// Writes are applied in submission order by a single goroutine. A failed or
// dropped state write marks the device so its next event saves the snapshot
// again.
type Persister struct {
	states   repository.DeviceStateRepo
	sessions repository.SessionRepo
	log      *logger.Logger
	timeout  time.Duration

	queue  chan persistOp
	failed sync.Map

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	written atomic.Int64
	errs    atomic.Int64
}

// PersisterStats is a point-in-time counter snapshot.
type PersisterStats struct {
	Written int64 `json:"written"`
	Failed  int64 `json:"failed"`
	Queued  int   `json:"queued"`
}

func NewPersister(states repository.DeviceStateRepo, sessions repository.SessionRepo, log *logger.Logger, queueSize int) *Persister {
	if queueSize <= 0 {
		queueSize = defaultPersistQueue
	}
	return &Persister{
		states:   states,
		sessions: sessions,
		log:      log,
		timeout:  defaultWriteTimeout,
		queue:    make(chan persistOp, queueSize),
		done:     make(chan struct{}),
	}
}

// Start launches the writer goroutine.
func (p *Persister) Start() {
	go func() {
		defer close(p.done)
		for op := range p.queue {
			p.write(op)
		}
	}()
}

func (p *Persister) SaveState(st models.DeviceSessionState) {
	p.enqueue(persistOp{kind: persistState, state: st})
}

func (p *Persister) OpenSession(rec models.RuntimeSessionRecord) {
	p.enqueue(persistOp{kind: persistOpen, rec: rec})
}

func (p *Persister) CloseSession(rec models.RuntimeSessionRecord) {
	p.enqueue(persistOp{kind: persistClose, rec: rec})
}

// TakeFailed reports, and clears, whether a state write for the device was lost.
func (p *Persister) TakeFailed(deviceID string) bool {
	_, ok := p.failed.LoadAndDelete(deviceID)
	return ok
}

func (p *Persister) Stats() PersisterStats {
	return PersisterStats{
		Written: p.written.Load(),
		Failed:  p.errs.Load(),
		Queued:  len(p.queue),
	}
}

// Close stops accepting writes and waits for the queue to drain or ctx to end.
func (p *Persister) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Persister) enqueue(op persistOp) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.fail(op, fmt.Errorf("%w: persister closed", ErrPersistence))
		return
	}
	select {
	case p.queue <- op:
	default:
		p.fail(op, fmt.Errorf("%w: queue full", ErrPersistence))
	}
}

func (p *Persister) write(op persistOp) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	var err error
	switch op.kind {
	case persistState:
		err = p.states.Upsert(ctx, op.state)
	case persistOpen:
		err = p.sessions.Insert(ctx, op.rec)
	case persistClose:
		err = p.sessions.Close(ctx, op.rec)
	}
	if err != nil {
		p.fail(op, fmt.Errorf("%w: %s: %w", ErrPersistence, op.kind, err))
		return
	}
	p.written.Add(1)
}

func (p *Persister) fail(op persistOp, err error) {
	p.errs.Add(1)
	if op.kind == persistState {
		p.failed.Store(op.deviceID(), struct{}{})
	}
	p.log.Errorw("persistence_failed",
		"device_id", op.deviceID(),
		"op", op.kind.String(),
		"session_id", op.rec.SessionID,
		"err", err,
	)
}
