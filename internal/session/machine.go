package session

import (
	"time"

	"thermostat_runtime/internal/models"

	"github.com/google/uuid"
)

// Kind is the transition emitted for one processed reading.
type Kind string

const (
	None            Kind = "none"
	SessionStarted  Kind = "session_started"
	SessionEnded    Kind = "session_ended"
	SessionSwitched Kind = "session_switched" // SessionEnded immediately followed by SessionStarted
)

// Emission describes what a reading did to the device's sessions.
//
// Ended and Started are set according to Kind. Discarded holds a session that
// was closed without a trusted duration (outside the runtime bounds, or a
// runaway); it must be persisted as ended but never reported as a run.
type Emission struct {
	Kind          Kind
	Ended         *models.RuntimeSessionRecord
	Started       *models.RuntimeSessionRecord
	Discarded     *models.RuntimeSessionRecord
	PreviousLabel models.EquipmentLabel
	// Err is informational: ErrOutOfOrderEvent or ErrRunawaySession.
	Err error
}

// Transitioned reports whether the emission carries a reportable transition.
func (e Emission) Transitioned() bool { return e.Kind != None && e.Kind != "" }

// Machine is the per-device session state machine. It holds no device state
// itself, so one Machine serves every device.
type Machine struct {
	cfg   Config
	newID func() string
}

// NewMachine builds a Machine. A nil newID uses random UUIDs.
func NewMachine(cfg Config, newID func() string) *Machine {
	if newID == nil {
		newID = uuid.NewString
	}
	return &Machine{cfg: cfg, newID: newID}
}

// Config returns the tunables the machine was built with.
func (m *Machine) Config() Config { return m.cfg }

// NewSessionID allocates a session identifier from the machine's generator.
func (m *Machine) NewSessionID() string { return m.newID() }

// Process applies one reading to the prior device state and returns the new
// state plus at most one emission. prev may be the zero value for a device
// that has never been seen.
func (m *Machine) Process(prev models.DeviceSessionState, r models.CanonicalReading) (models.DeviceSessionState, Emission) {
	st := prev
	if st.DeviceID == "" {
		st = models.NewDeviceSessionState(r.DeviceID)
	}
	now := r.ObservedAt
	applyIdentity(&st, r)

	em := Emission{Kind: None, PreviousLabel: st.EquipmentLabel}

	if !st.LastObservedAt.IsZero() && now.Before(st.LastObservedAt) {
		fillMissing(&st, r)
		em.Err = ErrOutOfOrderEvent
		return st, em
	}

	if st.IsRunning && m.cfg.SessionTimeout > 0 && now.Sub(st.StartedAt) > m.cfg.SessionTimeout {
		em.Discarded = m.forceClose(&st, now)
		em.Err = ErrRunawaySession
	}

	label, sticky := m.deriveLabel(st, r)
	active := label != models.LabelOff

	switch {
	case !st.IsRunning && active:
		em.Started = m.open(&st, label, now, r.CurrentTempC)
		em.Kind = SessionStarted
	case st.IsRunning && !active:
		m.stop(&st, &em, r)
	case st.IsRunning && active:
		m.continueOrSwitch(&st, &em, label, r)
	}

	updateLastKnown(&st, r, label, sticky)
	return st, em
}

// Expire closes what time alone can close, without a new reading: an elapsed
// fan tail or a session older than SessionTimeout.
func (m *Machine) Expire(prev models.DeviceSessionState, now time.Time) (models.DeviceSessionState, Emission) {
	st := prev
	em := Emission{Kind: None, PreviousLabel: st.EquipmentLabel}
	if !st.IsRunning {
		return st, em
	}

	if st.EquipmentLabel == models.LabelFan && !st.TailUntil.IsZero() && !now.Before(st.TailUntil) {
		end := st.TailUntil
		if m.closeInto(&st, &em, end, st.LastTempC) {
			em.Kind = SessionEnded
		}
		m.toIdle(&st)
		observedThrough(&st, end)
		return st, em
	}

	if m.cfg.SessionTimeout > 0 && now.Sub(st.StartedAt) > m.cfg.SessionTimeout {
		em.Discarded = m.forceClose(&st, now)
		em.Err = ErrRunawaySession
		observedThrough(&st, now)
	}
	return st, em
}

// observedThrough moves LastObservedAt up to the end of a session closed
// without a reading, so a late reading cannot open a session overlapping it.
func observedThrough(st *models.DeviceSessionState, end time.Time) {
	if end.After(st.LastObservedAt) {
		st.LastObservedAt = end
	}
}

// ForceClose ends a running session with an unknown duration. It is used for
// runaway sessions and for sessions abandoned across a restart.
func (m *Machine) ForceClose(prev models.DeviceSessionState, now time.Time) (models.DeviceSessionState, *models.RuntimeSessionRecord) {
	st := prev
	if !st.IsRunning {
		return st, nil
	}
	rec := m.forceClose(&st, now)
	return st, rec
}

func (m *Machine) forceClose(st *models.DeviceSessionState, now time.Time) *models.RuntimeSessionRecord {
	rec := m.record(*st)
	end := now
	rec.EndedAt = &end
	rec.EndTempC = st.LastTempC
	m.toIdle(st)
	return &rec
}

// deriveLabel computes the activity class. The second result is true when the
// label was carried over from the last active reading rather than observed.
func (m *Machine) deriveLabel(st models.DeviceSessionState, r models.CanonicalReading) (models.EquipmentLabel, bool) {
	status := r.EquipmentStatus

	if !status.Known() {
		mode := r.Mode
		if mode == "" || mode == models.ModeUnknown {
			mode = st.LastMode
		}
		status = Infer(m.cfg, InferInput{
			Mode:          mode,
			CurrentTempC:  r.CurrentTempC,
			CoolSetpointC: firstSet(r.CoolSetpointC, st.LastCoolSetpointC),
			HeatSetpointC: firstSet(r.HeatSetpointC, st.LastHeatSetpointC),
			LastTempC:     m.trendBaseline(st, r.ObservedAt),
		})
		if status == models.StatusOff && mode != models.ModeOff && m.recentlyActive(st, r.ObservedAt) {
			return st.LastEquipmentLabel, true
		}
	}

	switch status {
	case models.StatusHeating:
		return models.LabelHeat, false
	case models.StatusCooling:
		return models.LabelCool, false
	}
	if r.FanRunning() {
		return models.LabelFan, false
	}
	return models.LabelOff, false
}

// trendBaseline returns the last temperature when it is recent enough to
// compare against. A zero StickyWindow leaves the baseline unbounded.
func (m *Machine) trendBaseline(st models.DeviceSessionState, now time.Time) *float64 {
	if st.LastTempC == nil || st.LastObservedAt.IsZero() {
		return st.LastTempC
	}
	if m.cfg.StickyWindow > 0 && now.Sub(st.LastObservedAt) > m.cfg.StickyWindow {
		return nil
	}
	return st.LastTempC
}

func (m *Machine) recentlyActive(st models.DeviceSessionState, now time.Time) bool {
	if !st.LastEquipmentLabel.Conditioning() || st.LastActiveAt.IsZero() {
		return false
	}
	return now.Sub(st.LastActiveAt) <= m.cfg.StickyWindow
}

// stop handles a running device whose reading shows no activity.
func (m *Machine) stop(st *models.DeviceSessionState, em *Emission, r models.CanonicalReading) {
	now := r.ObservedAt

	if st.EquipmentLabel == models.LabelFan && !st.TailUntil.IsZero() {
		if now.Before(st.TailUntil) {
			return
		}
		if m.closeInto(st, em, st.TailUntil, r.CurrentTempC) {
			em.Kind = SessionEnded
		}
		m.toIdle(st)
		return
	}

	if st.EquipmentLabel.Conditioning() && m.cfg.FanTail > 0 {
		if _, ok := models.DurationSeconds(st.StartedAt, now); !ok {
			em.Err = ErrOutOfOrderEvent
			return
		}
		// a discarded run leaves nothing to purge after
		if !m.closeInto(st, em, now, r.CurrentTempC) {
			m.toIdle(st)
			return
		}
		em.Started = m.open(st, models.LabelFan, now, r.CurrentTempC)
		st.TailUntil = now.Add(m.cfg.FanTail)
		em.Kind = SessionSwitched
		return
	}

	if _, ok := models.DurationSeconds(st.StartedAt, now); !ok {
		em.Err = ErrOutOfOrderEvent
		return
	}
	if m.closeInto(st, em, now, r.CurrentTempC) {
		em.Kind = SessionEnded
	}
	m.toIdle(st)
}

// continueOrSwitch handles a running device whose reading shows activity.
func (m *Machine) continueOrSwitch(st *models.DeviceSessionState, em *Emission, label models.EquipmentLabel, r models.CanonicalReading) {
	now := r.ObservedAt

	if label == st.EquipmentLabel {
		if label != models.LabelFan || !r.FanRunning() || st.TailUntil.IsZero() {
			return
		}
		// an explicit fan signal during a tail turns the purge into a real fan run
		if !st.TailUntil.Before(now) {
			st.TailUntil = time.Time{}
			return
		}
		// the tail already lapsed: the purge ends at its boundary and the fan
		// run starts with this reading
		ended := m.closeInto(st, em, st.TailUntil, r.CurrentTempC)
		em.Started = m.open(st, models.LabelFan, now, r.CurrentTempC)
		if ended {
			em.Kind = SessionSwitched
		} else {
			em.Kind = SessionStarted
		}
		return
	}

	end := now
	if st.EquipmentLabel == models.LabelFan && !st.TailUntil.IsZero() && st.TailUntil.Before(now) {
		end = st.TailUntil
	}
	if _, ok := models.DurationSeconds(st.StartedAt, end); !ok {
		em.Err = ErrOutOfOrderEvent
		return
	}

	ended := m.closeInto(st, em, end, r.CurrentTempC)
	em.Started = m.open(st, label, now, r.CurrentTempC)
	if ended {
		em.Kind = SessionSwitched
	} else {
		em.Kind = SessionStarted
	}
}

// closeInto closes the current session at end and stores the record in em.
// It returns true when the duration is inside the runtime bounds; otherwise the
// record lands in em.Discarded.
func (m *Machine) closeInto(st *models.DeviceSessionState, em *Emission, end time.Time, endTemp *float64) bool {
	rec := m.record(*st)
	rec.EndedAt = &end
	rec.EndTempC = firstSet(endTemp, st.LastTempC)

	dur, ok := models.DurationSeconds(st.StartedAt, end)
	if !ok || dur < m.cfg.MinRuntimeSeconds || dur > m.cfg.MaxRuntimeSeconds {
		em.Discarded = &rec
		return false
	}
	rec.DurationSeconds = &dur
	em.Ended = &rec
	return true
}

func (m *Machine) open(st *models.DeviceSessionState, label models.EquipmentLabel, now time.Time, temp *float64) *models.RuntimeSessionRecord {
	st.IsRunning = true
	st.EquipmentLabel = label
	st.SessionID = m.newID()
	st.StartedAt = now
	st.StartTempC = firstSet(temp, st.LastTempC)
	st.TailUntil = time.Time{}
	rec := m.record(*st)
	return &rec
}

func (m *Machine) toIdle(st *models.DeviceSessionState) {
	st.IsRunning = false
	st.EquipmentLabel = models.LabelOff
	st.SessionID = ""
	st.StartedAt = time.Time{}
	st.StartTempC = nil
	st.TailUntil = time.Time{}
}

func (m *Machine) record(st models.DeviceSessionState) models.RuntimeSessionRecord {
	return models.RuntimeSessionRecord{
		DeviceID:       st.DeviceID,
		SessionID:      st.SessionID,
		EquipmentLabel: st.EquipmentLabel,
		StartedAt:      st.StartedAt,
		StartTempC:     st.StartTempC,
		HeatSetpointC:  st.LastHeatSetpointC,
		CoolSetpointC:  st.LastCoolSetpointC,
	}
}

func applyIdentity(st *models.DeviceSessionState, r models.CanonicalReading) {
	if r.DeviceName != "" {
		st.DeviceName = r.DeviceName
	}
	if r.UserID != "" {
		st.UserID = r.UserID
	}
	if r.DisplayScale != "" {
		st.DisplayScale = r.DisplayScale
	}
}

func updateLastKnown(st *models.DeviceSessionState, r models.CanonicalReading, label models.EquipmentLabel, sticky bool) {
	if r.CurrentTempC != nil {
		st.LastTempC = r.CurrentTempC
	}
	if r.HeatSetpointC != nil {
		st.LastHeatSetpointC = r.HeatSetpointC
	}
	if r.CoolSetpointC != nil {
		st.LastCoolSetpointC = r.CoolSetpointC
	}
	if r.Mode != "" && r.Mode != models.ModeUnknown {
		st.LastMode = r.Mode
	}
	switch r.Connectivity {
	case models.ConnectivityOnline:
		st.LastReachable = true
	case models.ConnectivityOffline:
		st.LastReachable = false
	}
	st.LastEquipmentLabel = label
	if label != models.LabelOff && !sticky {
		st.LastActiveAt = r.ObservedAt
	}
	st.LastObservedAt = r.ObservedAt
}

// fillMissing lets a late reading fill gaps without overwriting newer values.
func fillMissing(st *models.DeviceSessionState, r models.CanonicalReading) {
	if st.LastTempC == nil {
		st.LastTempC = r.CurrentTempC
	}
	if st.LastHeatSetpointC == nil {
		st.LastHeatSetpointC = r.HeatSetpointC
	}
	if st.LastCoolSetpointC == nil {
		st.LastCoolSetpointC = r.CoolSetpointC
	}
	if st.LastMode == "" || st.LastMode == models.ModeUnknown {
		if r.Mode != "" {
			st.LastMode = r.Mode
		}
	}
}

func firstSet(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
