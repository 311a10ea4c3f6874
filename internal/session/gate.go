package session

import (
	"math"
	"time"

	"thermostat_runtime/internal/models"
)

// GateState is the per-device baseline of the last posted update.
type GateState struct {
	Posted       bool
	LastPostedAt time.Time
	LastTempC    *float64
	LastHeatSetC *float64
	LastCoolSetC *float64
}

// Gate decides whether a reading deserves a non-transition update.
type Gate struct {
	cfg Config
}

// NewGate builds a Gate from the classifier config.
func NewGate(cfg Config) Gate { return Gate{cfg: cfg} }

const gateEpsilon = 1e-9

// Should reports whether r differs enough from the last posted baseline, or
// enough time has passed, to justify an update. The first reading always does.
func (g Gate) Should(gs GateState, r models.CanonicalReading) bool {
	if !gs.Posted {
		return true
	}
	if changed(gs.LastTempC, r.CurrentTempC, g.cfg.TempChangeThreshold) {
		return true
	}
	if changed(gs.LastHeatSetC, r.HeatSetpointC, g.cfg.SetpointChangeThreshold) ||
		changed(gs.LastCoolSetC, r.CoolSetpointC, g.cfg.SetpointChangeThreshold) {
		return true
	}
	elapsed := r.ObservedAt.Sub(gs.LastPostedAt)
	return elapsed >= 0 && elapsed >= g.cfg.MinPostInterval
}

// MarkPosted moves the baseline to r.
func (gs *GateState) MarkPosted(r models.CanonicalReading) {
	gs.Posted = true
	if r.ObservedAt.After(gs.LastPostedAt) {
		gs.LastPostedAt = r.ObservedAt
	}
	if r.CurrentTempC != nil {
		gs.LastTempC = r.CurrentTempC
	}
	if r.HeatSetpointC != nil {
		gs.LastHeatSetC = r.HeatSetpointC
	}
	if r.CoolSetpointC != nil {
		gs.LastCoolSetC = r.CoolSetpointC
	}
}

// changed treats a value appearing for the first time as a change and a value
// disappearing as no change.
func changed(prev, cur *float64, threshold float64) bool {
	if cur == nil {
		return false
	}
	if prev == nil {
		return true
	}
	return math.Abs(*cur-*prev) >= threshold-gateEpsilon
}
