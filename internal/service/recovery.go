package service

import (
	"context"
	"fmt"
	"time"

	"thermostat_runtime/internal/logger"
	"thermostat_runtime/internal/models"
	"thermostat_runtime/internal/repository"
	"thermostat_runtime/internal/session"

	"golang.org/x/sync/errgroup"
)

const defaultRecoveryLimit = 4

// RecoveryService rebuilds the live device map from storage at startup.
type RecoveryService struct {
	states   repository.DeviceStateRepo
	sessions repository.SessionRepo
	machine  *session.Machine
	log      *logger.Logger
	limit    int
	now      func() time.Time
}

func NewRecoveryService(states repository.DeviceStateRepo, sessions repository.SessionRepo, machine *session.Machine, log *logger.Logger, limit int) *RecoveryService {
	if limit <= 0 {
		limit = defaultRecoveryLimit
	}
	return &RecoveryService{
		states:   states,
		sessions: sessions,
		machine:  machine,
		log:      log,
		limit:    limit,
		now:      time.Now,
	}
}

// Recover loads every device persisted as running and returns the resumed
// sessions the engine should start from, in load order. Live sessions are
// resumed under a fresh session ID; the previous row is closed without a
// duration. Sessions older than the session timeout are force-closed with an
// unknown duration and, like inconsistent rows, are persisted idle but left out
// of the result so their old readings never seed the live map. Write failures
// are logged and do not stop recovery.
func (s *RecoveryService) Recover(ctx context.Context) ([]models.DeviceSessionState, error) {
	rows, err := s.states.LoadRunning(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load running devices: %w", ErrPersistence, err)
	}
	now := s.now().UTC()

	slots := make([]models.DeviceSessionState, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)
	for i, st := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[i] = s.recoverOne(gctx, st, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	resumed := make([]models.DeviceSessionState, 0, len(slots))
	for _, st := range slots {
		if st.IsRunning {
			resumed = append(resumed, st)
		}
	}
	s.log.Infow("recovery_completed",
		"devices", len(rows),
		"resumed", len(resumed),
		"closed", len(rows)-len(resumed),
	)
	return resumed, nil
}

func (s *RecoveryService) recoverOne(ctx context.Context, st models.DeviceSessionState, now time.Time) models.DeviceSessionState {
	if !st.Consistent() {
		s.log.Warnw("recovered_state_inconsistent",
			"device_id", st.DeviceID,
			"session_id", st.SessionID,
			"started_at", st.StartedAt,
		)
		idle := toIdle(st)
		s.saveState(ctx, idle)
		return idle
	}

	timeout := s.machine.Config().SessionTimeout
	if timeout > 0 && now.Sub(st.StartedAt) > timeout {
		closed, rec := s.machine.ForceClose(st, now)
		s.log.Warnw("session_abandoned",
			"device_id", st.DeviceID,
			"session_id", st.SessionID,
			"started_at", st.StartedAt,
			"err", session.ErrRunawaySession,
		)
		s.closeSession(ctx, *rec)
		s.saveState(ctx, closed)
		return closed
	}

	_, old := s.machine.ForceClose(st, now)
	resumed := st
	resumed.SessionID = s.machine.NewSessionID()

	rec := *old
	rec.SessionID = resumed.SessionID
	rec.EndedAt = nil
	rec.EndTempC = nil
	rec.DurationSeconds = nil

	s.closeSession(ctx, *old)
	s.insertSession(ctx, rec)
	s.saveState(ctx, resumed)
	s.log.Infow("session_resumed",
		"device_id", st.DeviceID,
		"previous_session_id", old.SessionID,
		"session_id", resumed.SessionID,
		"label", resumed.EquipmentLabel,
	)
	return resumed
}

func (s *RecoveryService) saveState(ctx context.Context, st models.DeviceSessionState) {
	if err := s.states.Upsert(ctx, st); err != nil {
		s.log.Errorw("persistence_failed", "device_id", st.DeviceID, "op", "state", "err", fmt.Errorf("%w: %w", ErrPersistence, err))
	}
}

func (s *RecoveryService) closeSession(ctx context.Context, rec models.RuntimeSessionRecord) {
	if err := s.sessions.Close(ctx, rec); err != nil {
		s.log.Errorw("persistence_failed", "device_id", rec.DeviceID, "op", "session_close", "err", fmt.Errorf("%w: %w", ErrPersistence, err))
	}
}

func (s *RecoveryService) insertSession(ctx context.Context, rec models.RuntimeSessionRecord) {
	if err := s.sessions.Insert(ctx, rec); err != nil {
		s.log.Errorw("persistence_failed", "device_id", rec.DeviceID, "op", "session_open", "err", fmt.Errorf("%w: %w", ErrPersistence, err))
	}
}

func toIdle(st models.DeviceSessionState) models.DeviceSessionState {
	st.IsRunning = false
	st.EquipmentLabel = models.LabelOff
	st.SessionID = ""
	st.StartedAt = time.Time{}
	st.StartTempC = nil
	st.TailUntil = time.Time{}
	return st
}
