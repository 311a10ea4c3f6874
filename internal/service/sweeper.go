package service

import (
	"context"
	"fmt"
	"time"

	"thermostat_runtime/internal/logger"
	"thermostat_runtime/internal/repository"
)

const defaultPurgeEvery = time.Minute

// Ticker is the part of the engine the sweeper drives.
type Ticker interface {
	Tick(now, staleBefore time.Time)
}

// SweeperService closes what only the passage of time can close: elapsed fan
// tails and runaway sessions. It also applies the staleness retention to the
// live map and to storage.
type SweeperService struct {
	engine     Ticker
	states     repository.DeviceStateRepo
	log        *logger.Logger
	staleAfter time.Duration
	purgeEvery time.Duration
	lastPurge  time.Time
}

func NewSweeperService(engine Ticker, states repository.DeviceStateRepo, log *logger.Logger, staleAfter time.Duration) *SweeperService {
	return &SweeperService{
		engine:     engine,
		states:     states,
		log:        log,
		staleAfter: staleAfter,
		purgeEvery: defaultPurgeEvery,
	}
}

// Run ticks at the given interval until ctx is canceled.
func (s *SweeperService) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.Sweep(ctx, now)
		}
	}
}

// Sweep runs one pass as of now. The storage purge runs at most once per
// purgeEvery.
func (s *SweeperService) Sweep(ctx context.Context, now time.Time) {
	now = now.UTC()
	var staleBefore time.Time
	if s.staleAfter > 0 {
		staleBefore = now.Add(-s.staleAfter)
	}
	s.engine.Tick(now, staleBefore)

	if staleBefore.IsZero() || now.Sub(s.lastPurge) < s.purgeEvery {
		return
	}
	s.lastPurge = now

	n, err := s.states.DeleteStale(ctx, staleBefore)
	if err != nil {
		s.log.Errorw("stale_purge_failed", "err", fmt.Errorf("%w: %w", ErrPersistence, err))
		return
	}
	if n > 0 {
		s.log.Infow("stale_devices_purged", "count", n, "before", staleBefore)
	}
}
