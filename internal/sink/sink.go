// Package sink delivers outbound session events to downstream consumers.
package sink

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"thermostat_runtime/internal/models"
)

// ErrSinkDelivery marks an event that could not be delivered after all retries.
var ErrSinkDelivery = errors.New("sink delivery failed")

// Sink is one downstream consumer. Post must be safe for concurrent use and
// idempotent with respect to ev.SourceEventID.
type Sink interface {
	Name() string
	Post(ctx context.Context, ev models.OutboundEvent) error
}

// StatusError is returned for a non-2xx HTTP response.
type StatusError struct {
	Sink string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Sink, e.Code)
}

// Retryable reports whether the response may succeed on a later attempt.
// Client errors other than timeouts and rate limits are permanent.
func (e *StatusError) Retryable() bool {
	if e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests {
		return true
	}
	return e.Code < 400 || e.Code >= 500
}
