package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a time window.
type WindowStats struct {
	WindowStartTick int32   `csv:"-"`
	WindowEndTick   int32   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Pool occupancy at window end
	Active int `csv:"active"`
	Free   int `csv:"free"`

	// Lifecycle events during window
	Spawned        int `csv:"spawned"`
	Dropped        int `csv:"dropped"` // Spawns lost to a saturated pool
	RetiredExpired int `csv:"retired_expired"`
	RetiredCooled  int `csv:"retired_cooled"`

	// Distributions over active particles (sampled at window end)
	TempMean float64 `csv:"temp_mean"`
	TempP10  float64 `csv:"temp_p10"`
	TempP50  float64 `csv:"temp_p50"`
	TempP90  float64 `csv:"temp_p90"`

	DensityMean float64 `csv:"density_mean"`
	DensityP10  float64 `csv:"density_p10"`
	DensityP50  float64 `csv:"density_p50"`
	DensityP90  float64 `csv:"density_p90"`

	HeightMean float64 `csv:"height_mean"`
	HeightStd  float64 `csv:"height_std"`
	HeightP90  float64 `csv:"height_p90"`
	HeightMax  float64 `csv:"height_max"`

	SpeedMean float64 `csv:"speed_mean"`
	SpeedP90  float64 `csv:"speed_p90"`

	// Spatial grid load
	BucketsUsed   int `csv:"buckets_used"`
	LongestBucket int `csv:"longest_bucket"`

	// Density volume mass, 0 when the volume is disabled
	VolumeTotal float64 `csv:"volume_total"`
}

// Distribution summarizes one sampled quantity.
type Distribution struct {
	Mean float64
	Std  float64
	P10  float64
	P50  float64
	P90  float64
	Max  float64
}

// Summarize computes mean, standard deviation, percentiles and max of values.
// Returns the zero Distribution for an empty slice.
func Summarize(values []float64) Distribution {
	n := len(values)
	if n == 0 {
		return Distribution{}
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	var d Distribution
	if n == 1 {
		d.Mean = sorted[0]
	} else {
		d.Mean, d.Std = stat.MeanStdDev(sorted, nil)
	}
	d.P10 = stat.Quantile(0.10, stat.Empirical, sorted, nil)
	d.P50 = stat.Quantile(0.50, stat.Empirical, sorted, nil)
	d.P90 = stat.Quantile(0.90, stat.Empirical, sorted, nil)
	d.Max = floats.Max(sorted)
	return d
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", int(s.WindowStartTick)),
		slog.Int("window_end", int(s.WindowEndTick)),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("active", s.Active),
		slog.Int("free", s.Free),
		slog.Int("spawned", s.Spawned),
		slog.Int("dropped", s.Dropped),
		slog.Int("retired_expired", s.RetiredExpired),
		slog.Int("retired_cooled", s.RetiredCooled),
		slog.Float64("temp_mean", s.TempMean),
		slog.Float64("temp_p50", s.TempP50),
		slog.Float64("density_mean", s.DensityMean),
		slog.Float64("density_p90", s.DensityP90),
		slog.Float64("height_mean", s.HeightMean),
		slog.Float64("height_max", s.HeightMax),
		slog.Float64("speed_mean", s.SpeedMean),
		slog.Int("longest_bucket", s.LongestBucket),
		slog.Float64("volume_total", s.VolumeTotal),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndTick,
		"sim_time", s.SimTimeSec,
		"active", s.Active,
		"free", s.Free,
		"spawned", s.Spawned,
		"dropped", s.Dropped,
		"retired_expired", s.RetiredExpired,
		"retired_cooled", s.RetiredCooled,
		"temp_mean", s.TempMean,
		"temp_p10", s.TempP10,
		"temp_p90", s.TempP90,
		"density_mean", s.DensityMean,
		"density_p90", s.DensityP90,
		"height_mean", s.HeightMean,
		"height_p90", s.HeightP90,
		"height_max", s.HeightMax,
		"speed_mean", s.SpeedMean,
		"speed_p90", s.SpeedP90,
		"buckets_used", s.BucketsUsed,
		"longest_bucket", s.LongestBucket,
	)
}
