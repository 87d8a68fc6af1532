package engine

import (
	"log/slog"
	"math"

	"github.com/pthm-cable/steam/stream"
	"github.com/pthm-cable/steam/telemetry"
)

// Update advances the simulation by dt seconds in one step:
// spawn, grid build, density/pressure, forces, integrate, thermodynamics.
// Negative or NaN dt is treated as 0. There is no sub-stepping; callers clamp large steps.
func (e *Engine) Update(dt float64) {
	if !(dt > 0) {
		dt = 0
	}
	t := e.tunables
	particles := e.pool.Particles()

	e.perfCollector.StartTick()

	e.perfCollector.StartPhase(telemetry.PhaseSpawn)
	res := e.emitter.Emit(e.pool, dt, t.EmissionRate)
	e.collector.RecordSpawns(res.Spawned)
	e.collector.RecordDropped(res.Dropped)

	e.perfCollector.StartPhase(telemetry.PhaseGrid)
	e.grid.Build(particles)

	e.perfCollector.StartPhase(telemetry.PhaseDensity)
	e.solver.ComputeDensityPressure(particles, t.GasConstant)

	e.perfCollector.StartPhase(telemetry.PhaseForces)
	e.solver.ComputeForces(particles, t, e.simTime)

	e.perfCollector.StartPhase(telemetry.PhaseIntegrate)
	e.integrator.Integrate(particles, dt)

	e.perfCollector.StartPhase(telemetry.PhaseThermo)
	e.thermo.Update(e.pool, dt, t.CoolingRate, e.onRetire)

	e.tick++
	e.simTime += dt

	if e.volume != nil {
		e.perfCollector.StartPhase(telemetry.PhaseVolume)
		e.volume.Build(particles)
	}

	if e.stream != nil && e.tick%e.streamEvery == 0 {
		e.perfCollector.StartPhase(telemetry.PhaseStream)
		e.publish()
	}

	e.perfCollector.StartPhase(telemetry.PhaseTelemetry)
	e.flushTelemetry()

	e.perfCollector.EndTick()
}

// publish sends a snapshot copy to stream clients.
func (e *Engine) publish() {
	e.streamBuf = e.Snapshot(e.streamBuf)
	frame := stream.Frame{
		Tick:      e.tick,
		SimTime:   e.simTime,
		Particles: e.streamBuf,
	}
	if _, err := e.stream.Publish(frame); err != nil {
		slog.Error("failed to publish frame", "tick", e.tick, "error", err)
	}
}

// Run steps n times with a fixed dt clamped to physics.max_dt.
func (e *Engine) Run(n int, dt float64) {
	dt = e.ClampDT(dt)
	for i := 0; i < n; i++ {
		e.Update(dt)
	}
}

// ClampDT limits dt to physics.max_dt.
func (e *Engine) ClampDT(dt float64) float64 {
	if maxDT := e.cfg.Physics.MaxDT; maxDT > 0 {
		return math.Min(dt, maxDT)
	}
	return dt
}
