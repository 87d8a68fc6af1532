package telemetry

import (
	"log/slog"
	"time"
)

// Phase identifies one stage of the simulation step.
type Phase uint8

const (
	PhaseSpawn Phase = iota
	PhaseGrid
	PhaseDensity
	PhaseForces
	PhaseIntegrate
	PhaseThermo
	PhaseVolume
	PhaseStream
	PhaseTelemetry

	NumPhases
)

var phaseNames = [NumPhases]string{
	"spawn", "grid", "density", "forces", "integrate",
	"thermo", "volume", "stream", "telemetry",
}

// String returns the phase's log and CSV label.
func (ph Phase) String() string {
	if ph >= NumPhases {
		return "unknown"
	}
	return phaseNames[ph]
}

// phaseTimes holds one duration per phase.
type phaseTimes [NumPhases]time.Duration

// PerfCollector times step phases over a ring of the last windowSize ticks.
// No allocation happens per tick.
type PerfCollector struct {
	ticks  []time.Duration
	phases []phaseTimes
	next   int
	filled int

	current    phaseTimes
	tickStart  time.Time
	phaseStart time.Time
	inPhase    bool
	phase      Phase
}

// NewPerfCollector creates a collector averaging over windowSize ticks (60 if < 1).
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		ticks:  make([]time.Duration, windowSize),
		phases: make([]phaseTimes, windowSize),
	}
}

// StartTick begins timing a new simulation tick.
func (p *PerfCollector) StartTick() {
	p.tickStart = time.Now()
	p.current = phaseTimes{}
	p.inPhase = false
}

// StartPhase closes the running phase, if any, and starts timing ph.
func (p *PerfCollector) StartPhase(ph Phase) {
	now := time.Now()
	p.closePhase(now)
	p.phaseStart = now
	p.phase = ph
	p.inPhase = true
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.inPhase && p.phase < NumPhases {
		p.current[p.phase] += now.Sub(p.phaseStart)
	}
}

// EndTick closes the last phase and stores the tick in the ring.
func (p *PerfCollector) EndTick() {
	now := time.Now()
	p.closePhase(now)
	p.inPhase = false

	p.ticks[p.next] = now.Sub(p.tickStart)
	p.phases[p.next] = p.current
	p.next = (p.next + 1) % len(p.ticks)
	if p.filled < len(p.ticks) {
		p.filled++
	}
}

// PerfStats holds step timing averaged over the collector window.
type PerfStats struct {
	AvgTick time.Duration
	MinTick time.Duration
	MaxTick time.Duration

	PhaseAvg [NumPhases]time.Duration
	PhasePct [NumPhases]float64 // Share of the average tick, 0..100

	TicksPerSecond float64
}

// Stats aggregates the ticks currently in the window. Zero value when nothing was recorded.
func (p *PerfCollector) Stats() PerfStats {
	var s PerfStats
	if p.filled == 0 {
		return s
	}

	var total time.Duration
	var sums phaseTimes
	for i := 0; i < p.filled; i++ {
		d := p.ticks[i]
		total += d
		if i == 0 || d < s.MinTick {
			s.MinTick = d
		}
		s.MaxTick = max(s.MaxTick, d)
		for ph, pd := range p.phases[i] {
			sums[ph] += pd
		}
	}

	n := time.Duration(p.filled)
	s.AvgTick = total / n
	for ph := range sums {
		s.PhaseAvg[ph] = sums[ph] / n
		if s.AvgTick > 0 {
			s.PhasePct[ph] = float64(s.PhaseAvg[ph]) / float64(s.AvgTick) * 100
		}
	}
	if s.AvgTick > 0 {
		s.TicksPerSecond = float64(time.Second) / float64(s.AvgTick)
	}
	return s
}

// LogStats logs the tick timing and every phase above 0.1% of the tick.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_tick_us", s.AvgTick.Microseconds(),
		"max_tick_us", s.MaxTick.Microseconds(),
		"ticks_per_sec", int(s.TicksPerSecond),
	}
	for ph := Phase(0); ph < NumPhases; ph++ {
		if pct := s.PhasePct[ph]; pct > 0.1 {
			attrs = append(attrs, ph.String()+"_pct", float64(int(pct*10))/10)
		}
	}
	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer.
func (s PerfStats) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, 4+NumPhases)
	attrs = append(attrs,
		slog.Int64("avg_tick_us", s.AvgTick.Microseconds()),
		slog.Int64("min_tick_us", s.MinTick.Microseconds()),
		slog.Int64("max_tick_us", s.MaxTick.Microseconds()),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
	)
	for ph := Phase(0); ph < NumPhases; ph++ {
		attrs = append(attrs, slog.Float64(ph.String()+"_pct", s.PhasePct[ph]))
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is one perf.csv row.
type PerfStatsCSV struct {
	WindowEnd    int32   `csv:"window_end"`
	AvgTickUS    int64   `csv:"avg_tick_us"`
	MinTickUS    int64   `csv:"min_tick_us"`
	MaxTickUS    int64   `csv:"max_tick_us"`
	TicksPerSec  float64 `csv:"ticks_per_sec"`
	SpawnPct     float64 `csv:"spawn_pct"`
	GridPct      float64 `csv:"grid_pct"`
	DensityPct   float64 `csv:"density_pct"`
	ForcesPct    float64 `csv:"forces_pct"`
	IntegratePct float64 `csv:"integrate_pct"`
	ThermoPct    float64 `csv:"thermo_pct"`
	VolumePct    float64 `csv:"volume_pct"`
	StreamPct    float64 `csv:"stream_pct"`
	TelemetryPct float64 `csv:"telemetry_pct"`
}

// ToCSV flattens s into a perf.csv row for the window ending at windowEnd.
func (s PerfStats) ToCSV(windowEnd int32) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:    windowEnd,
		AvgTickUS:    s.AvgTick.Microseconds(),
		MinTickUS:    s.MinTick.Microseconds(),
		MaxTickUS:    s.MaxTick.Microseconds(),
		TicksPerSec:  s.TicksPerSecond,
		SpawnPct:     s.PhasePct[PhaseSpawn],
		GridPct:      s.PhasePct[PhaseGrid],
		DensityPct:   s.PhasePct[PhaseDensity],
		ForcesPct:    s.PhasePct[PhaseForces],
		IntegratePct: s.PhasePct[PhaseIntegrate],
		ThermoPct:    s.PhasePct[PhaseThermo],
		VolumePct:    s.PhasePct[PhaseVolume],
		StreamPct:    s.PhasePct[PhaseStream],
		TelemetryPct: s.PhasePct[PhaseTelemetry],
	}
}
