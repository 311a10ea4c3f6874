package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"thermostat_runtime/internal/logger"
	"thermostat_runtime/internal/models"

	"github.com/cenkalti/backoff/v5"
)

// Options sizes the dispatcher. Zero values take the defaults below.
type Options struct {
	Workers         int
	QueueSize       int
	MaxTries        uint
	Timeout         time.Duration // per attempt
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

const (
	defaultWorkers         = 4
	defaultQueueSize       = 1024
	defaultMaxTries        = 3
	defaultAttemptTimeout  = 10 * time.Second
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
)

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	if o.MaxTries == 0 {
		o.MaxTries = defaultMaxTries
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultAttemptTimeout
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = defaultInitialInterval
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = defaultMaxInterval
	}
	return o
}

// Stats are cumulative delivery counters.
type Stats struct {
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Queued    int   `json:"queued"`
}

type delivery struct {
	sink Sink
	ev   models.OutboundEvent
}

// Dispatcher fans events out to every sink on a bounded queue drained by a
// fixed worker pool. Enqueue never blocks; a full queue drops the delivery.
type Dispatcher struct {
	sinks []Sink
	opts  Options
	log   *logger.Logger

	queue  chan delivery
	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func NewDispatcher(log *logger.Logger, sinks []Sink, opts Options) *Dispatcher {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		sinks:  sinks,
		opts:   opts,
		log:    log,
		queue:  make(chan delivery, opts.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for del := range d.queue {
				d.deliver(del)
			}
		}()
	}
}

// Enqueue schedules ev for every sink.
func (d *Dispatcher) Enqueue(ev models.OutboundEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(int64(len(d.sinks)))
		return
	}
	for _, s := range d.sinks {
		select {
		case d.queue <- delivery{sink: s, ev: ev}:
		default:
			d.dropped.Add(1)
			d.log.Warnw("sink_queue_full", "sink", s.Name(), "device_id", ev.DeviceID, "source_event_id", ev.SourceEventID)
		}
	}
}

// Close stops accepting events and waits for queued deliveries. When ctx
// expires first, in-flight retries are aborted.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
		Queued:    len(d.queue),
	}
}

func (d *Dispatcher) deliver(del delivery) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.opts.InitialInterval
	bo.MaxInterval = d.opts.MaxInterval
	bo.RandomizationFactor = 0.2

	name := del.sink.Name()
	operation := func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(d.ctx, d.opts.Timeout)
		defer cancel()

		err := del.sink.Post(ctx, del.ev)
		if err == nil {
			return struct{}{}, nil
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}
	notify := func(err error, wait time.Duration) {
		d.log.Debugw("sink_retry", "sink", name, "source_event_id", del.ev.SourceEventID, "wait", wait, "err", err)
	}

	_, err := backoff.Retry(d.ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(d.opts.MaxTries),
		backoff.WithNotify(notify),
	)
	if err != nil {
		d.failed.Add(1)
		d.log.Errorw("sink_delivery_failed",
			"sink", name,
			"device_id", del.ev.DeviceID,
			"kind", del.ev.Kind,
			"source_event_id", del.ev.SourceEventID,
			"err", fmt.Errorf("%w: %w", ErrSinkDelivery, err),
		)
		return
	}
	d.delivered.Add(1)
}
