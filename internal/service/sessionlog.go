package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"thermostat_runtime/internal/models"
	"thermostat_runtime/internal/repository"
)

const maxSessionLimit = 1000

// SessionQuery filters runtime session history. Zero values mean "any".
type SessionQuery struct {
	DeviceID string
	Label    string
	From     time.Time
	To       time.Time
	Limit    int
}

type SessionLogService struct {
	sessionRepo repository.SessionRepo
}

func NewSessionLogService(sessionRepo repository.SessionRepo) *SessionLogService {
	return &SessionLogService{sessionRepo: sessionRepo}
}

// ErrInvalidQuery wraps every session query validation failure.
var ErrInvalidQuery = errors.New("invalid session query")

var (
	errInvalidTimeRange = fmt.Errorf("%w: from must be <= to", ErrInvalidQuery)
	errInvalidLabel     = fmt.Errorf("%w: label must be off, heat, cool or fan", ErrInvalidQuery)
	errInvalidLimit     = fmt.Errorf("%w: limit must be >= 0", ErrInvalidQuery)
)

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// normalizeLabel trims spaces and lowercases the label filter.
func normalizeLabel(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}

// normalizeAndValidateQuery prepares repository parameters and validates the query.
func normalizeAndValidateQuery(q SessionQuery) (repository.SessionFilter, error) {
	from := normalizeToUTC(q.From)
	to := normalizeToUTC(q.To)
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return repository.SessionFilter{}, errInvalidTimeRange
	}

	label := models.EquipmentLabel(normalizeLabel(q.Label))
	switch label {
	case "", models.LabelOff, models.LabelHeat, models.LabelCool, models.LabelFan:
	default:
		return repository.SessionFilter{}, errInvalidLabel
	}

	if q.Limit < 0 {
		return repository.SessionFilter{}, errInvalidLimit
	}
	limit := q.Limit
	if limit > maxSessionLimit {
		limit = maxSessionLimit
	}

	return repository.SessionFilter{
		DeviceID: strings.TrimSpace(q.DeviceID),
		Label:    label,
		From:     from,
		To:       to,
		Limit:    limit,
	}, nil
}

func (s *SessionLogService) List(ctx context.Context, q SessionQuery) ([]models.RuntimeSessionRecord, error) {
	f, err := normalizeAndValidateQuery(q)
	if err != nil {
		return nil, err
	}
	return s.sessionRepo.List(ctx, f)
}
