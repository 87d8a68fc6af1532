package engine

import (
	"log/slog"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/steam/telemetry"
)

// flushTelemetry checks if the stats window should be flushed and handles events.
func (e *Engine) flushTelemetry() {
	if !e.collector.ShouldFlush(e.tick) {
		return
	}

	stats := e.collector.Flush(e.tick, e.simTime, e.sample())
	perfStats := e.perfCollector.Stats()

	if stats.Dropped > 0 {
		slog.Warn("particle pool saturated",
			"tick", e.tick,
			"capacity", e.pool.Capacity(),
			"dropped", stats.Dropped,
		)
	}

	if e.statsCallback != nil {
		e.statsCallback(stats)
	}

	if e.logStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if err := e.outputManager.WriteTelemetry(stats); err != nil {
		slog.Error("failed to write telemetry", "error", err)
	}
	if err := e.outputManager.WritePerf(perfStats, stats.WindowEndTick); err != nil {
		slog.Error("failed to write perf", "error", err)
	}

	for _, ev := range e.eventDetector.Check(stats) {
		if e.logStats {
			ev.LogEvent()
		}
		if err := e.outputManager.WriteEvent(ev); err != nil {
			slog.Error("failed to write event", "error", err)
		}
	}
}

// sample collects per-particle distributions for the window that just ended.
func (e *Engine) sample() telemetry.Sample {
	n := e.pool.ActiveCount()
	s := telemetry.Sample{
		Active:       n,
		Free:         e.pool.FreeCount(),
		Temperatures: make([]float64, 0, n),
		Densities:    make([]float64, 0, n),
		Heights:      make([]float64, 0, n),
		Speeds:       make([]float64, 0, n),
	}

	for _, p := range e.pool.Particles() {
		if !p.Active {
			continue
		}
		s.Temperatures = append(s.Temperatures, p.Temperature)
		s.Densities = append(s.Densities, p.Density)
		s.Heights = append(s.Heights, p.Position.Y)
		s.Speeds = append(s.Speeds, r3.Norm(p.Velocity))
	}

	s.BucketsUsed, s.LongestBucket = e.grid.BucketLoad()
	if e.volume != nil {
		s.VolumeTotal = e.volume.TotalDensity()
	}
	return s
}
