package systems

import (
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/steam/components"
	"github.com/pthm-cable/steam/config"
)

// Emitter converts an emission rate into spawns using a time accumulator.
// The accumulator lives here, not in package state, so engines are independent.
type Emitter struct {
	origin      r3.Vec
	spread      float64
	velocity    r3.Vec
	life        float64
	temperature float64
	mass        float64

	rng         *rand.Rand
	accumulator float64
}

// EmitResult counts what one Emit call did.
type EmitResult struct {
	Spawned int
	Dropped int // Spawns skipped because the pool was saturated
}

// NewEmitter creates an emitter from the spawn defaults in cfg.
func NewEmitter(cfg config.EmitterConfig, rng *rand.Rand) *Emitter {
	return &Emitter{
		origin:      cfg.Origin.R3(),
		spread:      cfg.Spread,
		velocity:    cfg.Velocity.R3(),
		life:        cfg.Life,
		temperature: cfg.Temperature,
		mass:        cfg.Mass,
		rng:         rng,
	}
}

// Reset clears the accumulator.
func (em *Emitter) Reset() {
	em.accumulator = 0
}

// Accumulator returns the time banked toward the next spawn.
func (em *Emitter) Accumulator() float64 {
	return em.accumulator
}

// Emit banks dt and spawns one particle per elapsed interval (1/rate), so a long step
// can spawn several. A rate <= 0 disables emission and discards banked time.
func (em *Emitter) Emit(pool *ParticlePool, dt, rate float64) EmitResult {
	var res EmitResult
	if rate <= 0 {
		em.accumulator = 0
		return res
	}

	interval := 1.0 / rate
	em.accumulator += dt
	for em.accumulator >= interval {
		em.accumulator -= interval
		if _, ok := pool.Spawn(em.NewParticle()); ok {
			res.Spawned++
		} else {
			res.Dropped++
		}
	}
	return res
}

// NewParticle returns a particle with spawn defaults and a jittered footprint position.
func (em *Emitter) NewParticle() components.Particle {
	pos := em.origin
	if em.spread > 0 {
		pos.X += (em.rng.Float64() - 0.5) * em.spread
		pos.Z += (em.rng.Float64() - 0.5) * em.spread
	}

	return components.Particle{
		Position:    pos,
		Velocity:    em.velocity,
		Mass:        em.mass,
		Temperature: em.temperature,
		Life:        em.life,
	}
}
