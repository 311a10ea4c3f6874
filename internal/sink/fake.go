package sink

import (
	"context"
	"sync"

	"thermostat_runtime/internal/models"
)

// FakeSink records posted events for test assertions.
type FakeSink struct {
	SinkName string

	mu     sync.Mutex
	events []models.OutboundEvent
	calls  int

	// FailFirst makes the first N calls return Err.
	FailFirst int
	// Err is returned while failing; it defaults to a retryable 503.
	Err error
}

func NewFakeSink(name string) *FakeSink {
	return &FakeSink{SinkName: name}
}

func (f *FakeSink) Name() string { return f.SinkName }

func (f *FakeSink) Post(_ context.Context, ev models.OutboundEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.calls <= f.FailFirst {
		if f.Err != nil {
			return f.Err
		}
		return &StatusError{Sink: f.SinkName, Code: 503}
	}
	f.events = append(f.events, ev)
	return nil
}

// Events returns a copy of the delivered events.
func (f *FakeSink) Events() []models.OutboundEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.OutboundEvent, len(f.events))
	copy(out, f.events)
	return out
}

// Calls reports how many times Post ran, including failures.
func (f *FakeSink) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
