package systems

import (
	opensimplex "github.com/ojrac/opensimplex-go"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/steam/config"
)

// Offsets decorrelating the three force components sampled from one noise field.
const (
	turbulenceOffsetY = 31.416
	turbulenceOffsetZ = 271.828
)

// Turbulence is a time-varying noise force field that breaks up the plume's symmetry.
type Turbulence struct {
	noise     opensimplex.Noise
	strength  float64
	scale     float64
	timeScale float64
}

// NewTurbulence creates a field seeded with seed. Returns nil when strength is zero,
// and a nil *Turbulence applies no force.
func NewTurbulence(cfg config.TurbulenceConfig, seed int64) *Turbulence {
	if cfg.Strength == 0 {
		return nil
	}
	return &Turbulence{
		noise:     opensimplex.New(seed),
		strength:  cfg.Strength,
		scale:     cfg.Scale,
		timeScale: cfg.TimeScale,
	}
}

// Force samples the field at pos and simulation time t.
func (tb *Turbulence) Force(pos r3.Vec, t float64) r3.Vec {
	if tb == nil {
		return r3.Vec{}
	}
	x, y, z := pos.X*tb.scale, pos.Y*tb.scale, pos.Z*tb.scale
	w := t * tb.timeScale
	return r3.Vec{
		X: tb.strength * tb.noise.Eval4(x, y, z, w),
		Y: tb.strength * tb.noise.Eval4(x+turbulenceOffsetY, y, z, w),
		Z: tb.strength * tb.noise.Eval4(x, y, z+turbulenceOffsetZ, w),
	}
}
