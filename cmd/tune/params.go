package main

import (
	"github.com/pthm-cable/erosion/config"
)

// ParamSpec defines a single tunable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all tunable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of tunable water-mode parameters.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			// Hydraulic agents
			{Name: "capacity_factor", Path: "hydraulic.capacity_factor", Min: 1, Max: 30, Default: 10.8},
			{Name: "deposit_rate", Path: "hydraulic.deposit_rate", Min: 0.05, Max: 1, Default: 0.8},
			{Name: "erosion_base", Path: "hydraulic.erosion_base", Min: 0.001, Max: 0.2, Default: 0.02},
			{Name: "hard_erosion_ratio", Path: "hydraulic.hard_erosion_ratio", Min: 0, Max: 1, Default: 0.3},
			{Name: "momentum", Path: "hydraulic.momentum", Min: 0, Max: 4, Default: 1},
			{Name: "speed_smoothing", Path: "hydraulic.speed_smoothing", Min: 0.05, Max: 0.95, Default: 0.5},
			{Name: "decay_growth", Path: "hydraulic.decay_growth", Min: 1.01, Max: 2, Default: 1.2},
			// Slump
			{Name: "slump_threshold", Path: "slump.threshold", Min: 0.1, Max: 3, Default: 0.8},
			{Name: "slump_rate", Path: "slump.rate", Min: 0.01, Max: 0.5, Default: 0.08},
			// Collapse
			{Name: "collapse_threshold", Path: "collapse.threshold", Min: 0.5, Max: 10, Default: 2},
			{Name: "collapse_rate", Path: "collapse.rate", Min: 0.005, Max: 0.3, Default: 0.05},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig writes parameter values into cfg. Order must match Specs.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	c := pv.Clamp(values)

	cfg.Hydraulic.CapacityFactor = c[0]
	cfg.Hydraulic.DepositRate = c[1]
	cfg.Hydraulic.ErosionBase = c[2]
	cfg.Hydraulic.HardErosionRatio = c[3]
	cfg.Hydraulic.Momentum = c[4]
	cfg.Hydraulic.SpeedSmoothing = c[5]
	cfg.Hydraulic.DecayGrowth = c[6]

	cfg.Slump.Threshold = c[7]
	cfg.Slump.Rate = c[8]

	cfg.Collapse.Threshold = c[9]
	cfg.Collapse.Rate = c[10]
}

// ExtractFromConfig reads the current parameter values from cfg.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	return []float64{
		cfg.Hydraulic.CapacityFactor,
		cfg.Hydraulic.DepositRate,
		cfg.Hydraulic.ErosionBase,
		cfg.Hydraulic.HardErosionRatio,
		cfg.Hydraulic.Momentum,
		cfg.Hydraulic.SpeedSmoothing,
		cfg.Hydraulic.DecayGrowth,
		cfg.Slump.Threshold,
		cfg.Slump.Rate,
		cfg.Collapse.Threshold,
		cfg.Collapse.Rate,
	}
}
