package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"thermostat_runtime/internal/logger"
)

type tickCall struct{ now, staleBefore time.Time }

type fakeTicker struct {
	mu    sync.Mutex
	calls []tickCall
}

func (f *fakeTicker) Tick(now, staleBefore time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tickCall{now, staleBefore})
}

func (f *fakeTicker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestSweeper_TicksEngineAndThrottlesPurge(t *testing.T) {
	ticker := &fakeTicker{}
	states := &fakeStateRepo{staleN: 3}
	s := NewSweeperService(ticker, states, logger.Nop(), 24*time.Hour)
	ctx := context.Background()

	s.Sweep(ctx, at(0))
	s.Sweep(ctx, at(30))
	s.Sweep(ctx, at(61))

	if ticker.count() != 3 {
		t.Fatalf("engine ticks = %d, want 3", ticker.count())
	}
	if got := ticker.calls[0].staleBefore; !got.Equal(at(0).Add(-24 * time.Hour)) {
		t.Fatalf("staleBefore = %v", got)
	}
	if len(states.staleCalls) != 2 {
		t.Fatalf("purges = %d, want 2", len(states.staleCalls))
	}
	if !states.staleCalls[1].Equal(at(61).Add(-24 * time.Hour)) {
		t.Fatalf("second purge cutoff = %v", states.staleCalls[1])
	}
}

func TestSweeper_NoRetentionWhenStaleAfterIsZero(t *testing.T) {
	ticker := &fakeTicker{}
	states := &fakeStateRepo{}
	s := NewSweeperService(ticker, states, logger.Nop(), 0)

	s.Sweep(context.Background(), at(0))

	if !ticker.calls[0].staleBefore.IsZero() {
		t.Fatalf("expected zero staleBefore, got %v", ticker.calls[0].staleBefore)
	}
	if len(states.staleCalls) != 0 {
		t.Fatal("purge must not run without a retention window")
	}
}

func TestSweeper_PurgeErrorIsNotFatal(t *testing.T) {
	ticker := &fakeTicker{}
	states := &fakeStateRepo{staleErr: errors.New("busy")}
	s := NewSweeperService(ticker, states, logger.Nop(), time.Hour)

	s.Sweep(context.Background(), at(0))
	s.Sweep(context.Background(), at(120))

	if ticker.count() != 2 || len(states.staleCalls) != 2 {
		t.Fatalf("ticks=%d purges=%d", ticker.count(), len(states.staleCalls))
	}
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	ticker := &fakeTicker{}
	s := NewSweeperService(ticker, &fakeStateRepo{}, logger.Nop(), time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for ticker.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("sweeper never ticked")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
