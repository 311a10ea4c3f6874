package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"thermostat_runtime/internal/models"
)

const defaultHTTPTimeout = 10 * time.Second

func newHTTPClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// postJSON sends body to url and treats any 2xx as success.
func postJSON(ctx context.Context, client *http.Client, name, url string, body any, headers map[string]string) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: marshal payload: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: post: %w", name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Sink: name, Code: resp.StatusCode}
	}
	return nil
}

// WebhookSink posts a compact status document to a single URL.
type WebhookSink struct {
	url    string
	client *http.Client
}

func NewWebhookSink(url string, client *http.Client) *WebhookSink {
	return &WebhookSink{url: url, client: newHTTPClient(client)}
}

func (s *WebhookSink) Name() string { return "status_webhook" }

// StatusPayload is the status webhook document.
type StatusPayload struct {
	SourceEventID  string                `json:"source_event_id"`
	DeviceID       string                `json:"device_id"`
	DeviceName     string                `json:"device_name,omitempty"`
	UserID         string                `json:"user_id,omitempty"`
	Status         models.EquipmentLabel `json:"status"`
	PreviousStatus models.EquipmentLabel `json:"previous_status"`
	IsActive       bool                  `json:"is_active"`
	RuntimeSeconds *int64                `json:"runtime_seconds"`
	Temperature    *float64              `json:"temperature,omitempty"`
	HeatSetpoint   *float64              `json:"heat_setpoint,omitempty"`
	CoolSetpoint   *float64              `json:"cool_setpoint,omitempty"`
	Unit           string                `json:"unit"`
	Reachable      bool                  `json:"reachable"`
	Timestamp      string                `json:"timestamp"`
}

// NewStatusPayload projects ev onto the status webhook document.
func NewStatusPayload(ev models.OutboundEvent) StatusPayload {
	return StatusPayload{
		SourceEventID:  ev.SourceEventID,
		DeviceID:       ev.DeviceID,
		DeviceName:     ev.DeviceName,
		UserID:         ev.UserID,
		Status:         ev.EquipmentLabel,
		PreviousStatus: ev.PreviousStatus,
		IsActive:       ev.IsActive,
		RuntimeSeconds: ev.RuntimeSeconds,
		Temperature:    ev.DisplayTemperature,
		HeatSetpoint:   ev.DisplayHeatSetpoint,
		CoolSetpoint:   ev.DisplayCoolSetpoint,
		Unit:           ev.DisplayUnit,
		Reachable:      ev.Reachable,
		Timestamp:      ev.ObservedAt.UTC().Format(time.RFC3339),
	}
}

func (s *WebhookSink) Post(ctx context.Context, ev models.OutboundEvent) error {
	return postJSON(ctx, s.client, s.Name(), s.url, NewStatusPayload(ev), map[string]string{
		"X-Source-Event-Id": ev.SourceEventID,
	})
}

// IngestSink posts the full event to a generic event-ingest API.
type IngestSink struct {
	url    string
	apiKey string
	client *http.Client
}

func NewIngestSink(url, apiKey string, client *http.Client) *IngestSink {
	return &IngestSink{url: url, apiKey: apiKey, client: newHTTPClient(client)}
}

func (s *IngestSink) Name() string { return "event_ingest" }

func (s *IngestSink) Post(ctx context.Context, ev models.OutboundEvent) error {
	headers := map[string]string{"Idempotency-Key": ev.SourceEventID}
	if s.apiKey != "" {
		headers["Authorization"] = "Bearer " + s.apiKey
	}
	return postJSON(ctx, s.client, s.Name(), s.url, ev, headers)
}
