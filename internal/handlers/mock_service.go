package handlers

import (
	"context"
	"net/http"
	"sync"

	"thermostat_runtime/internal/models"
	"thermostat_runtime/internal/normalizer"
	"thermostat_runtime/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(ctx context.Context, username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(ctx context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockIngest struct {
	result service.IngestResult

	calls        int
	lastPayloads []map[string]any
	lastHint     normalizer.Hint
}

func (m *mockIngest) Ingest(ctx context.Context, payloads []map[string]any, hint normalizer.Hint) service.IngestResult {
	m.calls++
	m.lastPayloads = payloads
	m.lastHint = hint
	return m.result
}

type mockMonitoring struct {
	mu      sync.Mutex
	devices []models.DeviceSessionState
	listErr error
	device  models.DeviceSessionState
	getErr  error
	stats   service.RuntimeStats

	lastDeviceID string
}

func (m *mockMonitoring) ListDevices(ctx context.Context) ([]models.DeviceSessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.devices, m.listErr
}
func (m *mockMonitoring) GetDevice(ctx context.Context, id string) (models.DeviceSessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastDeviceID = id
	return m.device, m.getErr
}
func (m *mockMonitoring) Stats(ctx context.Context) service.RuntimeStats {
	return m.stats
}

type mockSessionLog struct {
	resp      []models.RuntimeSessionRecord
	err       error
	calls     int
	lastQuery service.SessionQuery
}

func (m *mockSessionLog) List(ctx context.Context, q service.SessionQuery) ([]models.RuntimeSessionRecord, error) {
	m.calls++
	m.lastQuery = q
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	return newTestRouterWithToken(s, "")
}

func newTestRouterWithToken(s *service.Service, webhookToken string) *gin.Engine {
	h := NewHandler(s, nil, webhookToken)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
