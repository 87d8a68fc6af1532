package config

import "fmt"

// Tunables are the parameters an operator may adjust between steps.
//
// Valid ranges (inclusive unless noted):
//
//	gravity              [-10, 1]     force per unit mass along Y
//	buoyancy_coeff       [0, 10]      lift per unit of temperature above ambient
//	cooling_rate         [0, 2]       temperature lost per second
//	gas_constant         [0, 100]     pressure per unit density and temperature
//	ambient_temperature  [0, 10]      temperature at which lift vanishes
//	emission_rate        [0, 10000]   particles per second (0 disables emission)
type Tunables struct {
	Gravity            float64 `yaml:"gravity"`
	BuoyancyCoeff      float64 `yaml:"buoyancy_coeff"`
	CoolingRate        float64 `yaml:"cooling_rate"`
	GasConstant        float64 `yaml:"gas_constant"`
	AmbientTemperature float64 `yaml:"ambient_temperature"`
	EmissionRate       float64 `yaml:"emission_rate"`
}

// TunableRange bounds a single tunable.
type TunableRange struct {
	Name     string
	Min, Max float64
}

// TunableRanges lists the valid range of every tunable, in field order.
var TunableRanges = []TunableRange{
	{Name: "gravity", Min: -10, Max: 1},
	{Name: "buoyancy_coeff", Min: 0, Max: 10},
	{Name: "cooling_rate", Min: 0, Max: 2},
	{Name: "gas_constant", Min: 0, Max: 100},
	{Name: "ambient_temperature", Min: 0, Max: 10},
	{Name: "emission_rate", Min: 0, Max: 10000},
}

// values returns the tunables in TunableRanges order.
func (t Tunables) values() []float64 {
	return []float64{
		t.Gravity,
		t.BuoyancyCoeff,
		t.CoolingRate,
		t.GasConstant,
		t.AmbientTemperature,
		t.EmissionRate,
	}
}

// Validate reports the first tunable outside its range.
func (t Tunables) Validate() error {
	for i, v := range t.values() {
		r := TunableRanges[i]
		if v < r.Min || v > r.Max || v != v {
			return fmt.Errorf("tunables.%s = %g outside [%g, %g]", r.Name, v, r.Min, r.Max)
		}
	}
	return nil
}
