// Package engine steps the steam simulation: emission, neighbor search, SPH forces,
// integration and thermodynamic decay over a fixed particle pool.
package engine

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/pthm-cable/steam/components"
	"github.com/pthm-cable/steam/config"
	"github.com/pthm-cable/steam/stream"
	"github.com/pthm-cable/steam/systems"
	"github.com/pthm-cable/steam/telemetry"
	"github.com/pthm-cable/steam/volume"
)

// ParticleState is the per-particle copy returned by Snapshot.
type ParticleState = components.ParticleState

// Options configures an engine beyond the simulation config.
type Options struct {
	// Seed drives emitter jitter and the turbulence field.
	Seed int64

	// LogStats logs window and perf stats via slog.
	LogStats bool

	// StatsWindowSec overrides telemetry.stats_window when > 0.
	StatsWindowSec float64

	// OutputDir receives telemetry CSVs and a config snapshot. Empty disables output.
	OutputDir string

	// Stream, if set, receives a snapshot every stream.every ticks.
	Stream *stream.Server

	// StatsCallback is called on every window flush.
	StatsCallback func(stats telemetry.WindowStats)
}

// Engine owns the particle pool and steps the simulation.
// It is single-threaded; readers may inspect Particles between Update calls only.
type Engine struct {
	cfg      *config.Config
	tunables config.Tunables
	seed     int64
	rng      *rand.Rand

	pool       *systems.ParticlePool
	grid       *systems.HashGrid
	emitter    *systems.Emitter
	solver     *systems.Solver
	integrator systems.Integrator
	thermo     systems.Thermodynamics
	volume     *volume.Volume

	// Telemetry
	collector     *telemetry.Collector
	perfCollector *telemetry.PerfCollector
	eventDetector *telemetry.EventDetector
	outputManager *telemetry.OutputManager
	logStats      bool
	statsCallback func(stats telemetry.WindowStats)

	stream      *stream.Server
	streamEvery int32
	streamBuf   []ParticleState

	tick    int32
	simTime float64

	onRetire func(i int, reason components.RetireReason)
}

// New validates cfg, builds the simulation and initializes a pool of pool.capacity slots.
// A nil cfg uses the embedded defaults. cfg is copied; later changes to it have no effect.
func New(cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	cfg = cfg.Clone()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.ComputeDerived()

	rng := rand.New(rand.NewSource(opts.Seed))
	grid := systems.NewHashGrid(cfg.Grid.CellSize)
	turbulence := systems.NewTurbulence(cfg.Turbulence, opts.Seed)

	statsWindow := cfg.Telemetry.StatsWindow
	if opts.StatsWindowSec > 0 {
		statsWindow = opts.StatsWindowSec
	}

	e := &Engine{
		cfg:      cfg,
		tunables: cfg.Tunables,
		seed:     opts.Seed,
		rng:      rng,

		grid:       grid,
		emitter:    systems.NewEmitter(cfg.Emitter, rng),
		solver:     systems.NewSolver(systems.NewKernel(cfg.Kernel.SmoothingRadius), grid, cfg.Physics, turbulence),
		integrator: systems.NewIntegrator(cfg.Physics),
		thermo:     systems.Thermodynamics{DeathTemperature: cfg.Thermo.DeathTemperature},

		collector:     telemetry.NewCollector(statsWindow, cfg.Physics.DT),
		perfCollector: telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		eventDetector: telemetry.NewEventDetector(cfg.Telemetry.EventHistory),
		logStats:      opts.LogStats,
		statsCallback: opts.StatsCallback,

		stream:      opts.Stream,
		streamEvery: int32(max(cfg.Stream.Every, 1)),
	}
	e.onRetire = func(_ int, reason components.RetireReason) {
		e.collector.RecordRetire(reason)
	}

	if cfg.Volume.Enabled {
		e.volume = volume.NewFromConfig(cfg.Volume)
	}

	om, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, err
	}
	if err := om.WriteConfig(cfg); err != nil {
		om.Close()
		return nil, fmt.Errorf("writing config snapshot: %w", err)
	}
	e.outputManager = om

	e.Initialize(cfg.Pool.Capacity)
	return e, nil
}

// Initialize (re)allocates a pool of capacity inactive slots and resets emission,
// the RNG, the tick counter and telemetry windows. Must precede stepping; New calls it.
func (e *Engine) Initialize(capacity int) {
	e.pool = systems.NewParticlePool(capacity)
	e.emitter.Reset()
	e.rng.Seed(e.seed)
	e.grid.Clear()
	e.collector.Reset()
	e.tick = 0
	e.simTime = 0
	if e.volume != nil {
		e.volume.Clear()
	}

	slog.Info("engine initialized",
		"capacity", capacity,
		"seed", e.seed,
		"smoothing_radius", e.cfg.Kernel.SmoothingRadius,
		"cell_size", e.cfg.Grid.CellSize,
	)
}

// Particles returns the whole pool, inactive slots included. Read-only.
func (e *Engine) Particles() []components.Particle {
	return e.pool.Particles()
}

// Snapshot appends a copy of every active particle to dst[:0] and returns it.
func (e *Engine) Snapshot(dst []ParticleState) []ParticleState {
	dst = dst[:0]
	for i, p := range e.pool.Particles() {
		if !p.Active {
			continue
		}
		dst = append(dst, ParticleState{
			Index:       i,
			Position:    p.Position,
			Temperature: p.Temperature,
			Density:     p.Density,
		})
	}
	return dst
}

// Spawn places p directly into the pool, bypassing the emitter.
// Returns false when the pool is saturated.
func (e *Engine) Spawn(p components.Particle) (int, bool) {
	return e.pool.Spawn(p)
}

// Tunables returns the current runtime parameters.
func (e *Engine) Tunables() config.Tunables {
	return e.tunables
}

// SetTunables replaces the runtime parameters. Out-of-range values are rejected and
// the previous parameters stay in effect. Takes effect on the next Update.
func (e *Engine) SetTunables(t config.Tunables) error {
	if err := t.Validate(); err != nil {
		return err
	}
	e.tunables = t
	e.cfg.Tunables = t
	e.cfg.ComputeDerived()
	return nil
}

// Config returns the engine's copy of the configuration. Read-only.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Volume returns the density volume, or nil when disabled.
func (e *Engine) Volume() *volume.Volume {
	return e.volume
}

// PerfStats returns step timing over the perf window.
func (e *Engine) PerfStats() telemetry.PerfStats {
	return e.perfCollector.Stats()
}

// ActiveCount returns the number of live particles.
func (e *Engine) ActiveCount() int {
	return e.pool.ActiveCount()
}

// FreeCount returns the number of free slots.
func (e *Engine) FreeCount() int {
	return e.pool.FreeCount()
}

// Capacity returns the pool size.
func (e *Engine) Capacity() int {
	return e.pool.Capacity()
}

// FreeIndices returns a copy of the free list.
func (e *Engine) FreeIndices() []int {
	return e.pool.FreeIndices()
}

// Tick returns the number of completed steps since Initialize.
func (e *Engine) Tick() int32 {
	return e.tick
}

// SimTime returns simulated seconds since Initialize.
func (e *Engine) SimTime() float64 {
	return e.simTime
}

// Close flushes and closes telemetry output. The stream server is owned by the caller.
func (e *Engine) Close() error {
	return e.outputManager.Close()
}
