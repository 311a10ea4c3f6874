package session

import (
	"errors"
	"time"
)

// Config collects every tunable of the classifier.
type Config struct {
	TempChangeThreshold     float64       // °C delta that makes the gate fire
	SetpointChangeThreshold float64       // °C setpoint delta that makes the gate fire
	MinPostInterval         time.Duration // heartbeat floor for non-transition updates
	FanTail                 time.Duration // post-run blower purge window
	SessionTimeout          time.Duration // running age treated as a runaway session
	StickyWindow            time.Duration // recency bound for reusing the last active label
	MinRuntimeSeconds       int64
	MaxRuntimeSeconds       int64
	CoolOnDelta             float64 // °C above the cool setpoint that implies cooling
	HeatOnDelta             float64 // °C below the heat setpoint that implies heating
	TrendDelta              float64 // °C change between readings that implies a running stage
}

// Defaults.
const (
	DefaultTempChangeThreshold     = 0.1
	DefaultSetpointChangeThreshold = 0.1
	DefaultMinPostInterval         = 60 * time.Second
	DefaultFanTail                 = 30 * time.Second
	DefaultSessionTimeout          = 4 * time.Hour
	DefaultStickyWindow            = 120 * time.Second
	DefaultMinRuntimeSeconds       = 5
	DefaultMaxRuntimeSeconds       = 24 * 60 * 60
	DefaultCoolOnDelta             = 0.3
	DefaultHeatOnDelta             = 0.3
	DefaultTrendDelta              = 0.1
)

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		TempChangeThreshold:     DefaultTempChangeThreshold,
		SetpointChangeThreshold: DefaultSetpointChangeThreshold,
		MinPostInterval:         DefaultMinPostInterval,
		FanTail:                 DefaultFanTail,
		SessionTimeout:          DefaultSessionTimeout,
		StickyWindow:            DefaultStickyWindow,
		MinRuntimeSeconds:       DefaultMinRuntimeSeconds,
		MaxRuntimeSeconds:       DefaultMaxRuntimeSeconds,
		CoolOnDelta:             DefaultCoolOnDelta,
		HeatOnDelta:             DefaultHeatOnDelta,
		TrendDelta:              DefaultTrendDelta,
	}
}

var (
	errNegativeThreshold = errors.New("session config: thresholds and deltas must be >= 0")
	errNegativeDuration  = errors.New("session config: durations must be >= 0")
	errRuntimeBounds     = errors.New("session config: min runtime must be >= 0 and <= max runtime")
)

// Validate rejects configurations that cannot classify anything sensibly.
func (c Config) Validate() error {
	for _, v := range []float64{c.TempChangeThreshold, c.SetpointChangeThreshold, c.CoolOnDelta, c.HeatOnDelta, c.TrendDelta} {
		if v < 0 {
			return errNegativeThreshold
		}
	}
	for _, d := range []time.Duration{c.MinPostInterval, c.FanTail, c.SessionTimeout, c.StickyWindow} {
		if d < 0 {
			return errNegativeDuration
		}
	}
	if c.MinRuntimeSeconds < 0 || c.MinRuntimeSeconds > c.MaxRuntimeSeconds {
		return errRuntimeBounds
	}
	return nil
}
