package session

import "thermostat_runtime/internal/models"

// InferInput is what the inferencer sees when no explicit status is available.
type InferInput struct {
	Mode          models.ThermostatMode
	CurrentTempC  *float64
	CoolSetpointC *float64
	HeatSetpointC *float64
	LastTempC     *float64
}

// trendEpsilon absorbs float noise from two-decimal rounding.
const trendEpsilon = 1e-9

// Infer derives HEATING, COOLING or OFF from mode, setpoints and trend.
// Cooling rules are evaluated before heating rules.
func Infer(cfg Config, in InferInput) models.EquipmentStatus {
	if in.CurrentTempC == nil {
		return models.StatusOff
	}
	cur := *in.CurrentTempC

	var delta float64
	hasTrend := in.LastTempC != nil
	if hasTrend {
		delta = cur - *in.LastTempC
	}

	if in.Mode.CanCool() {
		if in.CoolSetpointC != nil && cur >= *in.CoolSetpointC+cfg.CoolOnDelta-trendEpsilon {
			return models.StatusCooling
		}
		if hasTrend && -delta >= cfg.TrendDelta-trendEpsilon && -delta > 0 {
			return models.StatusCooling
		}
	}

	if in.Mode.CanHeat() {
		if in.HeatSetpointC != nil && cur <= *in.HeatSetpointC-cfg.HeatOnDelta+trendEpsilon {
			return models.StatusHeating
		}
		if hasTrend && delta >= cfg.TrendDelta-trendEpsilon && delta > 0 {
			return models.StatusHeating
		}
	}

	return models.StatusOff
}
