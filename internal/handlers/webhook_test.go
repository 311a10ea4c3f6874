package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"thermostat_runtime/internal/service"
)

func postWebhook(r http.Handler, target, body, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(webhookTokenHeader, token)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestWebhook_AcceptsSingleEvent(t *testing.T) {
	ing := &mockIngest{result: service.IngestResult{Accepted: 1}}
	r := newTestRouter(&service.Service{Ingest: ing})

	body := `{"device_id":"dev-1","timestamp":"2026-01-01T12:00:00Z","ThermostatHvac":{"status":"HEATING"}}`
	w := postWebhook(r, "/webhook/events?user_id=u-9", body, "")

	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}
	var out service.IngestResult
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.Accepted != 1 {
		t.Fatalf("unexpected result: %+v", out)
	}
	if len(ing.lastPayloads) != 1 || ing.lastPayloads[0]["device_id"] != "dev-1" {
		t.Fatalf("unexpected payloads: %+v", ing.lastPayloads)
	}
	if ing.lastHint.UserID != "u-9" || ing.lastHint.ReceivedAt.IsZero() {
		t.Fatalf("unexpected hint: %+v", ing.lastHint)
	}
}

func TestWebhook_BatchIsForwardedWhole(t *testing.T) {
	ing := &mockIngest{result: service.IngestResult{Accepted: 2, Malformed: 1}}
	r := newTestRouter(&service.Service{Ingest: ing})

	body := `[{"device_id":"a"},{"device_id":"b"},{"nothing":true}]`
	w := postWebhook(r, "/webhook/events", body, "")

	if w.Code != http.StatusAccepted {
		t.Fatalf("partial success should still be 202, got %d", w.Code)
	}
	if len(ing.lastPayloads) != 3 {
		t.Fatalf("expected 3 payloads, got %d", len(ing.lastPayloads))
	}
}

func TestWebhook_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		result service.IngestResult
		want   int
		called bool
	}{
		{"undecodable_body", `{not json`, service.IngestResult{}, http.StatusBadRequest, false},
		{"all_malformed", `{"foo":"bar"}`, service.IngestResult{Malformed: 1}, http.StatusBadRequest, true},
		{"engine_busy", `{"device_id":"dev-1"}`, service.IngestResult{Rejected: 1}, http.StatusServiceUnavailable, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ing := &mockIngest{result: tc.result}
			r := newTestRouter(&service.Service{Ingest: ing})

			w := postWebhook(r, "/webhook/events", tc.body, "")
			if w.Code != tc.want {
				t.Fatalf("status: got %d, want %d (body=%s)", w.Code, tc.want, w.Body.String())
			}
			if (ing.calls > 0) != tc.called {
				t.Fatalf("ingest called=%v, want %v", ing.calls > 0, tc.called)
			}
		})
	}
}

func TestWebhook_TokenRequiredWhenConfigured(t *testing.T) {
	ing := &mockIngest{result: service.IngestResult{Accepted: 1}}
	r := newTestRouterWithToken(&service.Service{Ingest: ing}, "s3cret")

	w := postWebhook(r, "/webhook/events", `{"device_id":"dev-1"}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if ing.calls != 0 {
		t.Fatalf("ingest must not run without a valid token")
	}

	w = postWebhook(r, "/webhook/events", `{"device_id":"dev-1"}`, "s3cret")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 with token, got %d", w.Code)
	}
}
