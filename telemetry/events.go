// Package telemetry provides plume statistics, step timing, event detection and CSV output.
package telemetry

import (
	"fmt"
	"log/slog"
)

// EventType identifies the type of plume event.
type EventType string

const (
	EventPoolSaturated EventType = "pool_saturated"
	EventPlumeCollapse EventType = "plume_collapse"
	EventSteadyState   EventType = "steady_state"
)

// Event represents an automatically detected moment in the run.
type Event struct {
	Type        EventType `csv:"type"`
	Tick        int32     `csv:"tick"`
	SimTime     float64   `csv:"sim_time"`
	Description string    `csv:"description"`
}

// LogEvent logs the event using slog.
func (e Event) LogEvent() {
	slog.Info("event",
		"type", string(e.Type),
		"tick", e.Tick,
		"sim_time", e.SimTime,
		"description", e.Description,
	)
}

const (
	collapseDrop    = 0.5  // fraction lost from the recent peak
	collapseMinPeak = 20   // ignore collapses of tiny plumes
	steadyTolerance = 0.05 // relative deviation from the rolling mean
	steadyWindows   = 5    // consecutive windows before steady_state fires
	minEventHistory = 5
)

// EventDetector watches window stats for saturation, collapse and steady state.
type EventDetector struct {
	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	// State tracking
	saturated          bool // previous window dropped spawns
	recentPeak         int  // peak active count since the last collapse
	steadyWindowsCount int  // consecutive windows near the rolling mean
}

// NewEventDetector creates a detector with the given history size.
func NewEventDetector(historySize int) *EventDetector {
	if historySize < minEventHistory {
		historySize = minEventHistory
	}
	return &EventDetector{
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered events.
func (ed *EventDetector) Check(stats WindowStats) []Event {
	var events []Event

	if e := ed.checkSaturation(stats); e != nil {
		events = append(events, *e)
	}
	if e := ed.checkCollapse(stats); e != nil {
		events = append(events, *e)
	}
	if e := ed.checkSteadyState(stats); e != nil {
		events = append(events, *e)
	}

	ed.addToHistory(stats)
	if stats.Active > ed.recentPeak {
		ed.recentPeak = stats.Active
	}

	return events
}

func (ed *EventDetector) addToHistory(stats WindowStats) {
	ed.history[ed.historyIdx] = stats
	ed.historyIdx = (ed.historyIdx + 1) % ed.historySize
	if ed.historyIdx == 0 {
		ed.historyFull = true
	}
}

// recent returns up to n of the latest windows, oldest first.
func (ed *EventDetector) recent(n int) []WindowStats {
	count := ed.historyIdx
	if ed.historyFull {
		count = ed.historySize
	}
	if n > count {
		n = count
	}
	out := make([]WindowStats, n)
	for i := 0; i < n; i++ {
		idx := (ed.historyIdx - n + i + ed.historySize) % ed.historySize
		out[i] = ed.history[idx]
	}
	return out
}

// checkSaturation fires on the first window of a run of windows that dropped spawns.
func (ed *EventDetector) checkSaturation(stats WindowStats) *Event {
	wasSaturated := ed.saturated
	ed.saturated = stats.Dropped > 0
	if !ed.saturated || wasSaturated {
		return nil
	}
	return &Event{
		Type:        EventPoolSaturated,
		Tick:        stats.WindowEndTick,
		SimTime:     stats.SimTimeSec,
		Description: fmt.Sprintf("Pool full at %d active, %d spawns dropped", stats.Active, stats.Dropped),
	}
}

func (ed *EventDetector) checkCollapse(stats WindowStats) *Event {
	if ed.recentPeak < collapseMinPeak {
		return nil
	}

	drop := 1.0 - float64(stats.Active)/float64(ed.recentPeak)
	if drop <= collapseDrop {
		return nil
	}

	// Reset peak after collapse
	oldPeak := ed.recentPeak
	ed.recentPeak = stats.Active

	return &Event{
		Type:        EventPlumeCollapse,
		Tick:        stats.WindowEndTick,
		SimTime:     stats.SimTimeSec,
		Description: fmt.Sprintf("Active particles fell %.0f%% from peak %d to %d", drop*100, oldPeak, stats.Active),
	}
}

func (ed *EventDetector) checkSteadyState(stats WindowStats) *Event {
	history := ed.recent(steadyWindows - 1)
	if stats.Active == 0 || len(history) < steadyWindows-1 {
		ed.steadyWindowsCount = 0
		return nil
	}

	sum := float64(stats.Active)
	for _, h := range history {
		sum += float64(h.Active)
	}
	mean := sum / float64(len(history)+1)

	dev := float64(stats.Active)/mean - 1
	if dev < -steadyTolerance || dev > steadyTolerance {
		ed.steadyWindowsCount = 0
		return nil
	}
	ed.steadyWindowsCount++

	if ed.steadyWindowsCount == steadyWindows { // trigger exactly once per steady run
		return &Event{
			Type:        EventSteadyState,
			Tick:        stats.WindowEndTick,
			SimTime:     stats.SimTimeSec,
			Description: fmt.Sprintf("Active count steady near %.0f over %d windows", mean, steadyWindows),
		}
	}
	return nil
}
