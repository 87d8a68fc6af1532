package systems

import "github.com/pthm-cable/steam/components"

// ParticlePool is a fixed-capacity arena of particles plus a free list of slot indices.
// Slots never move, so indices stay valid for the lifetime of the pool.
// Invariant: FreeCount() + ActiveCount() == Capacity().
type ParticlePool struct {
	particles []components.Particle
	free      []int // stack; spawn pops from the back
	active    int
}

// NewParticlePool allocates capacity inactive slots and seeds the free list in ascending order.
func NewParticlePool(capacity int) *ParticlePool {
	if capacity < 0 {
		capacity = 0
	}
	free := make([]int, capacity)
	for i := range free {
		free[i] = i
	}
	return &ParticlePool{
		particles: make([]components.Particle, capacity),
		free:      free,
	}
}

// Spawn claims a free slot, overwrites it with p and marks it active.
// Returns false when the pool is saturated; nothing is created in that case.
func (pp *ParticlePool) Spawn(p components.Particle) (int, bool) {
	n := len(pp.free)
	if n == 0 {
		return -1, false
	}
	idx := pp.free[n-1]
	pp.free = pp.free[:n-1]

	p.Active = true
	pp.particles[idx] = p
	pp.active++
	return idx, true
}

// Retire deactivates slot i and returns it to the free list.
// Stale fields are left in place. Retiring an inactive slot does nothing.
func (pp *ParticlePool) Retire(i int) {
	if i < 0 || i >= len(pp.particles) || !pp.particles[i].Active {
		return
	}
	pp.particles[i].Active = false
	pp.free = append(pp.free, i)
	pp.active--
}

// Particles returns the full slot array, inactive slots included.
// Callers outside the engine must treat it as read-only.
func (pp *ParticlePool) Particles() []components.Particle {
	return pp.particles
}

// Capacity returns the number of slots.
func (pp *ParticlePool) Capacity() int {
	return len(pp.particles)
}

// ActiveCount returns the number of active slots.
func (pp *ParticlePool) ActiveCount() int {
	return pp.active
}

// FreeCount returns the free list length.
func (pp *ParticlePool) FreeCount() int {
	return len(pp.free)
}

// FreeIndices returns a copy of the free list, bottom of the stack first.
func (pp *ParticlePool) FreeIndices() []int {
	out := make([]int, len(pp.free))
	copy(out, pp.free)
	return out
}

// IsFree reports whether slot i is on the free list.
func (pp *ParticlePool) IsFree(i int) bool {
	for _, f := range pp.free {
		if f == i {
			return true
		}
	}
	return false
}
