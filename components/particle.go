// Package components defines the data records owned by the simulation.
package components

import "gonum.org/v1/gonum/spatial/r3"

// Particle is one steam puff. Inactive slots keep stale data; check Active before reading.
type Particle struct {
	Position r3.Vec
	Velocity r3.Vec
	Force    r3.Vec

	Mass        float64
	Density     float64 // Floor-clamped, > 0 after a step
	Pressure    float64
	Temperature float64 // >= 0
	Life        float64 // Seconds remaining

	Active bool
}

// RetireReason identifies why a particle left the active set.
type RetireReason uint8

const (
	RetireExpired RetireReason = iota // life ran out
	RetireCooled                      // temperature reached the death threshold
)

// String returns the reason's telemetry label.
func (r RetireReason) String() string {
	switch r {
	case RetireExpired:
		return "expired"
	case RetireCooled:
		return "cooled"
	}
	return "unknown"
}

// ParticleState is the copy of an active particle handed to consumers outside the step.
type ParticleState struct {
	Index       int     `json:"i"`
	Position    r3.Vec  `json:"p"`
	Temperature float64 `json:"t"`
	Density     float64 `json:"d"`
}
