package systems

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/steam/components"
	"github.com/pthm-cable/steam/config"
)

// Integrator advances active particles with semi-implicit Euler and a floor bounce.
type Integrator struct {
	Damping     float64 // Velocity multiplier per step
	FloorHeight float64
	Restitution float64 // Fraction of vertical speed kept on bounce
}

// NewIntegrator creates an integrator from physics config.
func NewIntegrator(cfg config.PhysicsConfig) Integrator {
	return Integrator{
		Damping:     cfg.Damping,
		FloorHeight: cfg.FloorHeight,
		Restitution: cfg.Restitution,
	}
}

// Integrate applies v += F/m*dt, damping, x += v*dt, then clamps to the floor.
// A particle never ends a step below the floor regardless of its speed.
func (in Integrator) Integrate(particles []components.Particle, dt float64) {
	for i := range particles {
		p := &particles[i]
		if !p.Active {
			continue
		}

		accel := r3.Scale(1/p.Mass, p.Force)
		p.Velocity = r3.Add(p.Velocity, r3.Scale(dt, accel))
		p.Velocity = r3.Scale(in.Damping, p.Velocity)
		p.Position = r3.Add(p.Position, r3.Scale(dt, p.Velocity))

		if p.Position.Y < in.FloorHeight {
			p.Position.Y = in.FloorHeight
			p.Velocity.Y *= -in.Restitution
		}
	}
}

// Thermodynamics cools and ages active particles and retires the dead.
type Thermodynamics struct {
	DeathTemperature float64
}

// Update decays temperature by coolingRate*dt (floored at 0) and life by dt, retiring any
// particle whose life reached 0 or whose temperature fell to the death threshold.
// onRetire, if non-nil, is called for each retired slot.
func (th Thermodynamics) Update(pool *ParticlePool, dt, coolingRate float64, onRetire func(i int, reason components.RetireReason)) {
	particles := pool.Particles()
	for i := range particles {
		p := &particles[i]
		if !p.Active {
			continue
		}

		p.Temperature -= coolingRate * dt
		if p.Temperature < 0 {
			p.Temperature = 0
		}
		p.Life -= dt

		var reason components.RetireReason
		switch {
		case p.Life <= 0:
			reason = components.RetireExpired
		case p.Temperature <= th.DeathTemperature:
			reason = components.RetireCooled
		default:
			continue
		}

		pool.Retire(i)
		if onRetire != nil {
			onRetire(i, reason)
		}
	}
}
