package service

import (
	"context"
	"time"

	"thermostat_runtime/internal/logger"
	"thermostat_runtime/internal/models"
	"thermostat_runtime/internal/normalizer"
	"thermostat_runtime/internal/repository"
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Ingest accepts raw vendor payloads from the webhook.
type Ingest interface {
	Ingest(ctx context.Context, payloads []map[string]any, hint normalizer.Hint) IngestResult
}

// Monitoring exposes read-only live device state and pipeline counters.
type Monitoring interface {
	ListDevices(ctx context.Context) ([]models.DeviceSessionState, error)
	GetDevice(ctx context.Context, id string) (models.DeviceSessionState, error)
	Stats(ctx context.Context) RuntimeStats
}

// SessionLog exposes runtime session history with filtering.
type SessionLog interface {
	List(ctx context.Context, q SessionQuery) ([]models.RuntimeSessionRecord, error)
}

// Sweeper runs the background expiry loop.
// Stop via context cancellation in main() for graceful shutdown.
type Sweeper interface {
	Run(ctx context.Context, tick time.Duration)
}

// Service aggregates the sub-services consumed by the HTTP layer.
type Service struct {
	Ingest
	Monitoring
	SessionLog
	Sweeper
	Authorization
}

// Deps carries the runtime components built in main.
type Deps struct {
	Engine     *Engine
	Delivery   DeliveryStats
	Persister  *Persister
	Log        *logger.Logger
	SigningKey string
	TokenTTL   time.Duration
	StaleAfter time.Duration
}

// NewService wires the repository layer and the engine into concrete services.
func NewService(repos *repository.Repository, d Deps) *Service {
	var persist PersistenceStats
	if d.Persister != nil {
		persist = d.Persister
	}
	return &Service{
		Ingest:        NewIngestService(d.Engine, d.Log),
		Monitoring:    NewMonitoringService(d.Engine, d.Delivery, persist),
		SessionLog:    NewSessionLogService(repos.SessionRepo),
		Sweeper:       NewSweeperService(d.Engine, repos.StateRepo, d.Log, d.StaleAfter),
		Authorization: NewAuthService(repos.Auth, d.SigningKey, d.TokenTTL),
	}
}
