package main

import (
	"github.com/pthm-cable/steam/config"
)

// ParamSpec defines a single tunable under search.
type ParamSpec struct {
	Name    string  // Column name in tune_log.csv
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Starting point
}

// ParamVector holds the set of searched tunables.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector builds the search space from base. Bounds are narrower than the
// validation ranges in config.TunableRanges; defaults come from base and are clamped in.
func NewParamVector(base config.Tunables) *ParamVector {
	pv := &ParamVector{
		Specs: []ParamSpec{
			{Name: "gravity", Path: "tunables.gravity", Min: -3.0, Max: 0.0},
			{Name: "buoyancy_coeff", Path: "tunables.buoyancy_coeff", Min: 0.5, Max: 10.0},
			{Name: "cooling_rate", Path: "tunables.cooling_rate", Min: 0.02, Max: 1.5},
			{Name: "gas_constant", Path: "tunables.gas_constant", Min: 0.1, Max: 20.0},
			{Name: "emission_rate", Path: "tunables.emission_rate", Min: 20, Max: 1000},
		},
	}
	defaults := pv.Clamp(pv.ExtractFromTunables(base))
	for i := range pv.Specs {
		pv.Specs[i].Default = defaults[i]
	}
	return pv
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the starting values as a slice.
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

// Apply returns base with the searched tunables replaced by values (clamped).
// Order must match Specs order.
func (pv *ParamVector) Apply(base config.Tunables, values []float64) config.Tunables {
	c := pv.Clamp(values)
	t := base
	t.Gravity = c[0]
	t.BuoyancyCoeff = c[1]
	t.CoolingRate = c[2]
	t.GasConstant = c[3]
	t.EmissionRate = c[4]
	return t
}

// ExtractFromTunables returns the searched tunables in Specs order.
func (pv *ParamVector) ExtractFromTunables(t config.Tunables) []float64 {
	return []float64{
		t.Gravity,
		t.BuoyancyCoeff,
		t.CoolingRate,
		t.GasConstant,
		t.EmissionRate,
	}
}
