package telemetry

import "github.com/pthm-cable/steam/components"

// Collector accumulates lifecycle events within time windows and produces WindowStats.
type Collector struct {
	windowDurationSec   float64
	windowDurationTicks int32

	// Current window tracking
	windowStartTick int32

	// Event counters for current window
	spawned        int
	dropped        int
	retiredExpired int
	retiredCooled  int
}

// NewCollector creates a new stats collector.
// windowDurationSec: how long each stats window lasts in simulation seconds
// dt: nominal seconds per tick (used for tick-to-time conversion)
func NewCollector(windowDurationSec, dt float64) *Collector {
	ticksPerWindow := int32(1)
	if dt > 0 {
		ticksPerWindow = int32(windowDurationSec / dt)
	}
	if ticksPerWindow < 1 {
		ticksPerWindow = 1
	}

	return &Collector{
		windowDurationSec:   windowDurationSec,
		windowDurationTicks: ticksPerWindow,
	}
}

// RecordSpawns records particles created by the emitter.
func (c *Collector) RecordSpawns(n int) {
	c.spawned += n
}

// RecordDropped records spawns skipped because the pool was full.
func (c *Collector) RecordDropped(n int) {
	c.dropped += n
}

// RecordRetire records a particle leaving the active set.
func (c *Collector) RecordRetire(reason components.RetireReason) {
	switch reason {
	case components.RetireExpired:
		c.retiredExpired++
	case components.RetireCooled:
		c.retiredCooled++
	}
}

// Dropped returns spawns dropped so far in the current window.
func (c *Collector) Dropped() int {
	return c.dropped
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick int32) bool {
	return currentTick-c.windowStartTick >= c.windowDurationTicks
}

// Sample is the particle state the caller gathers at window end.
type Sample struct {
	Active       int
	Free         int
	Temperatures []float64
	Densities    []float64
	Heights      []float64
	Speeds       []float64

	BucketsUsed   int
	LongestBucket int
	VolumeTotal   float64
}

// Flush produces a WindowStats and resets counters for the next window.
func (c *Collector) Flush(currentTick int32, simTime float64, sample Sample) WindowStats {
	temp := Summarize(sample.Temperatures)
	density := Summarize(sample.Densities)
	height := Summarize(sample.Heights)
	speed := Summarize(sample.Speeds)

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      simTime,

		Active: sample.Active,
		Free:   sample.Free,

		Spawned:        c.spawned,
		Dropped:        c.dropped,
		RetiredExpired: c.retiredExpired,
		RetiredCooled:  c.retiredCooled,

		TempMean: temp.Mean,
		TempP10:  temp.P10,
		TempP50:  temp.P50,
		TempP90:  temp.P90,

		DensityMean: density.Mean,
		DensityP10:  density.P10,
		DensityP50:  density.P50,
		DensityP90:  density.P90,

		HeightMean: height.Mean,
		HeightStd:  height.Std,
		HeightP90:  height.P90,
		HeightMax:  height.Max,

		SpeedMean: speed.Mean,
		SpeedP90:  speed.P90,

		BucketsUsed:   sample.BucketsUsed,
		LongestBucket: sample.LongestBucket,
		VolumeTotal:   sample.VolumeTotal,
	}

	// Reset for next window
	c.windowStartTick = currentTick
	c.spawned = 0
	c.dropped = 0
	c.retiredExpired = 0
	c.retiredCooled = 0

	return stats
}

// WindowDurationTicks returns the number of ticks per window.
func (c *Collector) WindowDurationTicks() int32 {
	return c.windowDurationTicks
}

// Reset restarts the current window at tick 0 and clears counters.
func (c *Collector) Reset() {
	c.windowStartTick = 0
	c.spawned = 0
	c.dropped = 0
	c.retiredExpired = 0
	c.retiredCooled = 0
}
