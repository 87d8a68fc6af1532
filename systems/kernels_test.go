package systems

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestKernelDensity(t *testing.T) {
	tests := []struct {
		name string
		h    float64
		r2   float64
		want float64
	}{
		{"origin h=1", 1, 0, 315.0 / (64.0 * math.Pi)},
		{"half radius", 1, 0.25, 315.0 / (64.0 * math.Pi) * 0.75 * 0.75 * 0.75},
		{"origin h=2", 2, 0, 315.0 / (64.0 * math.Pi * 512) * 64},
		{"at support edge", 1, 1, 0},
		{"outside support", 1, 1.5, 0},
		{"negative r2", 1, -0.1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := NewKernel(tt.h)
			got := k.Density(tt.r2)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Density(%g) with h=%g = %g, want %g", tt.r2, tt.h, got, tt.want)
			}
		})
	}
}

func TestKernelDensity_Monotonic(t *testing.T) {
	k := NewKernel(1.5)
	prev := k.Density(0)
	for r2 := 0.05; r2 <= k.H2; r2 += 0.05 {
		d := k.Density(r2)
		if d > prev {
			t.Fatalf("Density increased at r2=%g: %g > %g", r2, d, prev)
		}
		prev = d
	}
}

func TestKernelPressureGradient_ZeroCases(t *testing.T) {
	k := NewKernel(1)

	tests := []struct {
		name string
		rel  r3.Vec
		dist float64
	}{
		{"coincident", r3.Vec{}, 0},
		{"negative distance", r3.Vec{X: 1}, -1},
		{"outside support", r3.Vec{X: 2}, 2},
		{"zero vector with stale distance", r3.Vec{}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := k.PressureGradient(tt.rel, tt.dist)
			if g != (r3.Vec{}) {
				t.Errorf("expected zero gradient, got %v", g)
			}
		})
	}
}

func TestKernelPressureGradient_Direction(t *testing.T) {
	k := NewKernel(1)
	rel := r3.Vec{X: 0.3, Y: 0.4}
	dist := r3.Norm(rel)

	g := k.PressureGradient(rel, dist)

	// Spiky coefficient is negative, so the gradient points against rel.
	if r3.Dot(g, rel) >= 0 {
		t.Errorf("gradient %v should point against rel %v", g, rel)
	}

	want := 45.0 / math.Pi * (1 - dist) * (1 - dist)
	if math.Abs(r3.Norm(g)-want) > 1e-12 {
		t.Errorf("|gradient| = %g, want %g", r3.Norm(g), want)
	}
}
