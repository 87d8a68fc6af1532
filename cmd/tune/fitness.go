package main

import (
	"fmt"
	"math"
	"sync"

	"github.com/pthm-cable/steam/config"
	"github.com/pthm-cable/steam/engine"
)

// Targets are the plume metrics a parameter set should reproduce.
type Targets struct {
	MeanHeight  float64 // mean Y of active particles at the end of a run
	ActiveCount float64 // active particles at the end of a run
}

// FitnessEvaluator runs seeded headless simulations and scores them against Targets.
type FitnessEvaluator struct {
	params   *ParamVector
	ticks    int
	seeds    []int64
	base     *config.Config
	targets  Targets
	capacity int

	mu          sync.Mutex
	lastMetrics runMetrics // averaged over seeds, from the most recent Evaluate call
}

// runMetrics holds the end-of-run measurements of a single simulation.
type runMetrics struct {
	meanHeight float64
	active     float64
	failed     bool
}

// penalty is the fitness of a run whose tunables could not be applied.
const penalty = 1e6

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, ticks int, seeds []int64, base *config.Config, targets Targets) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:   params,
		ticks:    ticks,
		seeds:    seeds,
		base:     base,
		targets:  targets,
		capacity: base.Pool.Capacity,
	}
}

// LastMetrics returns the seed-averaged mean height and active count from the most recent evaluation.
func (fe *FitnessEvaluator) LastMetrics() (meanHeight, active float64) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastMetrics.meanHeight, fe.lastMetrics.active
}

// Evaluate computes fitness for a raw parameter vector (lower = better).
// Seeds run in parallel; each owns its engine.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	results := make([]runMetrics, len(fe.seeds))
	var wg sync.WaitGroup

	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			m, err := fe.runSimulation(x, s)
			if err != nil {
				m.failed = true
			}
			results[idx] = m
		}(i, seed)
	}
	wg.Wait()

	var total, height, active float64
	for _, r := range results {
		if r.failed {
			total += penalty
			continue
		}
		total += fe.computeFitness(r)
		height += r.meanHeight
		active += r.active
	}

	n := float64(len(fe.seeds))
	fe.mu.Lock()
	fe.lastMetrics = runMetrics{meanHeight: height / n, active: active / n}
	fe.mu.Unlock()

	return total / n
}

// runSimulation executes a single fixed-length run and measures the plume at its end.
func (fe *FitnessEvaluator) runSimulation(x []float64, seed int64) (runMetrics, error) {
	cfg := fe.base.Clone()
	cfg.Tunables = fe.params.Apply(cfg.Tunables, x)
	cfg.Volume.Enabled = false
	cfg.Stream.Address = ""

	e, err := engine.New(cfg, engine.Options{Seed: seed})
	if err != nil {
		return runMetrics{}, fmt.Errorf("creating engine: %w", err)
	}
	defer e.Close()

	e.Run(fe.ticks, cfg.Physics.DT)

	var heightSum float64
	active := 0
	for _, p := range e.Particles() {
		if !p.Active {
			continue
		}
		heightSum += p.Position.Y
		active++
	}

	m := runMetrics{active: float64(active)}
	if active > 0 {
		m.meanHeight = heightSum / float64(active)
	} else {
		// An empty plume sits at the floor.
		m.meanHeight = cfg.Physics.FloorHeight
	}
	return m, nil
}

// computeFitness is the squared error against the targets. The active count is
// normalized by pool capacity so both terms are of comparable scale.
func (fe *FitnessEvaluator) computeFitness(m runMetrics) float64 {
	dh := m.meanHeight - fe.targets.MeanHeight
	da := (m.active - fe.targets.ActiveCount) / float64(fe.capacity)
	return dh*dh + da*da
}

// TuneRecord is one row of tune_log.csv.
type TuneRecord struct {
	Eval          int     `csv:"eval"`
	Fitness       float64 `csv:"fitness"`
	MeanHeight    float64 `csv:"mean_height"`
	Active        float64 `csv:"active"`
	Gravity       float64 `csv:"gravity"`
	BuoyancyCoeff float64 `csv:"buoyancy_coeff"`
	CoolingRate   float64 `csv:"cooling_rate"`
	GasConstant   float64 `csv:"gas_constant"`
	EmissionRate  float64 `csv:"emission_rate"`
}

// newTuneRecord builds a log row from clamped tunables.
func newTuneRecord(eval int, fitness, meanHeight, active float64, t config.Tunables) TuneRecord {
	return TuneRecord{
		Eval:          eval,
		Fitness:       roundTo(fitness, 6),
		MeanHeight:    roundTo(meanHeight, 4),
		Active:        active,
		Gravity:       t.Gravity,
		BuoyancyCoeff: t.BuoyancyCoeff,
		CoolingRate:   t.CoolingRate,
		GasConstant:   t.GasConstant,
		EmissionRate:  t.EmissionRate,
	}
}

// roundTo rounds x to the given number of decimal places.
func roundTo(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
