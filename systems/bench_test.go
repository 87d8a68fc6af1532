package systems

import (
	"math/rand"
	"testing"

	"github.com/pthm-cable/steam/config"
)

func BenchmarkGridBuild(b *testing.B) {
	ps := randomParticles(rand.New(rand.NewSource(1)), 5000, 20)
	g := NewHashGrid(1)

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		g.Build(ps)
	}
}

func BenchmarkDensityPressure(b *testing.B) {
	ps := randomParticles(rand.New(rand.NewSource(1)), 5000, 20)
	for i := range ps {
		ps[i].Temperature = 1
	}
	g := NewHashGrid(1)
	g.Build(ps)
	s := NewSolver(NewKernel(1), g, testPhysics(), nil)

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		s.ComputeDensityPressure(ps, 2)
	}
}

func BenchmarkForces(b *testing.B) {
	ps := randomParticles(rand.New(rand.NewSource(1)), 5000, 20)
	for i := range ps {
		ps[i].Temperature = 1
	}
	g := NewHashGrid(1)
	g.Build(ps)
	s := NewSolver(NewKernel(1), g, testPhysics(), nil)
	s.ComputeDensityPressure(ps, 2)
	tun := config.Tunables{Gravity: -0.5, BuoyancyCoeff: 4, GasConstant: 2}

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		s.ComputeForces(ps, tun, 0)
	}
}
