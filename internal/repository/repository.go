package repository

import (
	"context"
	"database/sql"
	"time"

	"thermostat_runtime/internal/models"
)

// Authorization stores operator credentials.
type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// DeviceStateRepo persists the per-device classifier snapshot used for recovery.
type DeviceStateRepo interface {
	Upsert(ctx context.Context, s models.DeviceSessionState) error
	LoadRunning(ctx context.Context) ([]models.DeviceSessionState, error)
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

// SessionRepo persists runtime session rows.
type SessionRepo interface {
	Insert(ctx context.Context, rec models.RuntimeSessionRecord) error
	Close(ctx context.Context, rec models.RuntimeSessionRecord) error
	List(ctx context.Context, f SessionFilter) ([]models.RuntimeSessionRecord, error)
}

type Repository struct {
	StateRepo   DeviceStateRepo
	SessionRepo SessionRepo
	Auth        Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		StateRepo:   NewStateSQLite(db),
		SessionRepo: NewSessionSQLite(db),
		Auth:        NewOperatorSQLite(db),
	}
}
