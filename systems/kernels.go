package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Kernel holds the SPH smoothing radius h and its precomputed powers.
// Changing h invalidates previously computed densities, so build a new Kernel instead.
type Kernel struct {
	H  float64
	H2 float64
	H6 float64
	H9 float64

	poly6Coeff float64 // 315 / (64 pi h^9)
	spikyCoeff float64 // -45 / (pi h^6)
}

// NewKernel precomputes kernel constants for smoothing radius h.
func NewKernel(h float64) Kernel {
	h2 := h * h
	h3 := h2 * h
	h6 := h3 * h3
	h9 := h6 * h3
	return Kernel{
		H:          h,
		H2:         h2,
		H6:         h6,
		H9:         h9,
		poly6Coeff: 315.0 / (64.0 * math.Pi * h9),
		spikyCoeff: -45.0 / (math.Pi * h6),
	}
}

// Density is the Poly6 kernel evaluated at squared distance rSquared.
func (k Kernel) Density(rSquared float64) float64 {
	if rSquared < 0 || rSquared > k.H2 {
		return 0
	}
	diff := k.H2 - rSquared
	return k.poly6Coeff * diff * diff * diff
}

// PressureGradient is the Spiky kernel gradient along rel, evaluated at distance dist.
// Zero at dist <= 0 so coincident particles exert no force.
func (k Kernel) PressureGradient(rel r3.Vec, dist float64) r3.Vec {
	if dist <= 0 || dist > k.H {
		return r3.Vec{}
	}
	n := r3.Norm(rel)
	if n == 0 {
		return r3.Vec{}
	}
	diff := k.H - dist
	return r3.Scale(k.spikyCoeff*diff*diff/n, rel)
}
