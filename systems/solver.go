package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/steam/components"
	"github.com/pthm-cable/steam/config"
)

// Solver computes SPH density, pressure and forces over the active particles.
// Each particle computes its own side of every pair; nothing is written to neighbors.
type Solver struct {
	kernel        Kernel
	grid          *HashGrid
	turbulence    *Turbulence
	densityFloor  float64
	minSeparation float64

	candidates []int // reused neighbor buffer
}

// NewSolver creates a solver reading neighbors from grid.
func NewSolver(kernel Kernel, grid *HashGrid, physics config.PhysicsConfig, turbulence *Turbulence) *Solver {
	return &Solver{
		kernel:        kernel,
		grid:          grid,
		turbulence:    turbulence,
		densityFloor:  physics.DensityFloor,
		minSeparation: physics.MinSeparation,
		candidates:    make([]int, 0, 256),
	}
}

// Kernel returns the solver's kernel.
func (s *Solver) Kernel() Kernel {
	return s.kernel
}

// DensityFloor returns the minimum density a particle can hold after a step.
func (s *Solver) DensityFloor() float64 {
	return s.densityFloor
}

// ComputeDensityPressure sums kernel-weighted neighbor mass into each active particle's
// density, clamps it to the floor and applies the ideal-gas law P = k * rho * T.
func (s *Solver) ComputeDensityPressure(particles []components.Particle, gasConstant float64) {
	selfWeight := s.kernel.Density(0)
	h2 := s.kernel.H2

	for i := range particles {
		p := &particles[i]
		if !p.Active {
			continue
		}

		density := p.Mass * selfWeight

		s.candidates = s.grid.NeighborsInto(s.candidates[:0], p.Position)
		for _, j := range s.candidates {
			if j == i {
				continue
			}
			n := &particles[j]
			if !n.Active {
				continue
			}
			r2 := r3.Norm2(r3.Sub(p.Position, n.Position))
			if r2 < h2 {
				density += n.Mass * s.kernel.Density(r2)
			}
		}

		p.Density = math.Max(density, s.densityFloor)
		p.Pressure = gasConstant * p.Density * p.Temperature
	}
}

// ComputeForces resets each active particle's force, adds gravity and thermal lift,
// then the symmetric pressure force from every neighbor inside the kernel support.
// Densities and pressures must be current (ComputeDensityPressure ran this step).
func (s *Solver) ComputeForces(particles []components.Particle, t config.Tunables, simTime float64) {
	h := s.kernel.H

	for i := range particles {
		p := &particles[i]
		if !p.Active {
			continue
		}

		p.Force = r3.Vec{}
		p.Force.Y += t.Gravity * p.Mass
		p.Force.Y += t.BuoyancyCoeff * (p.Temperature - t.AmbientTemperature)

		pTerm := p.Pressure / (p.Density * p.Density)

		s.candidates = s.grid.NeighborsInto(s.candidates[:0], p.Position)
		for _, j := range s.candidates {
			if j == i {
				continue
			}
			n := &particles[j]
			if !n.Active {
				continue
			}

			rel := r3.Sub(p.Position, n.Position)
			r := r3.Norm(rel)
			if r >= h || r <= s.minSeparation {
				continue
			}

			grad := s.kernel.PressureGradient(rel, r)
			nTerm := n.Pressure / (n.Density * n.Density)
			scalar := -p.Mass * n.Mass * (pTerm + nTerm)
			p.Force = r3.Add(p.Force, r3.Scale(scalar, grad))
		}

		if s.turbulence != nil {
			p.Force = r3.Add(p.Force, s.turbulence.Force(p.Position, simTime))
		}
	}
}
