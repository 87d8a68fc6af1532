package telemetry

import "testing"

func hasEvent(events []Event, typ EventType) bool {
	for _, e := range events {
		if e.Type == typ {
			return true
		}
	}
	return false
}

func TestEventDetector_PoolSaturated(t *testing.T) {
	ed := NewEventDetector(10)

	if events := ed.Check(WindowStats{WindowEndTick: 300, Active: 50}); len(events) != 0 {
		t.Fatalf("unexpected events: %v", events)
	}

	events := ed.Check(WindowStats{WindowEndTick: 600, Active: 100, Dropped: 7})
	if !hasEvent(events, EventPoolSaturated) {
		t.Fatal("expected pool_saturated event")
	}

	// Still saturated: no repeat.
	events = ed.Check(WindowStats{WindowEndTick: 900, Active: 100, Dropped: 9})
	if hasEvent(events, EventPoolSaturated) {
		t.Error("pool_saturated should fire once per saturated run")
	}

	// Recovers, then saturates again.
	ed.Check(WindowStats{WindowEndTick: 1200, Active: 90})
	events = ed.Check(WindowStats{WindowEndTick: 1500, Active: 100, Dropped: 1})
	if !hasEvent(events, EventPoolSaturated) {
		t.Error("expected pool_saturated after recovery")
	}
}

func TestEventDetector_PlumeCollapse(t *testing.T) {
	ed := NewEventDetector(10)

	for i := 0; i < 5; i++ {
		ed.Check(WindowStats{WindowEndTick: int32(i * 300), Active: 200})
	}

	events := ed.Check(WindowStats{WindowEndTick: 1800, Active: 60})
	if !hasEvent(events, EventPlumeCollapse) {
		t.Fatal("expected plume_collapse event")
	}

	// Peak resets to the collapsed level.
	events = ed.Check(WindowStats{WindowEndTick: 2100, Active: 50})
	if hasEvent(events, EventPlumeCollapse) {
		t.Error("collapse should not re-fire against the old peak")
	}
}

func TestEventDetector_SmallPlumeNoCollapse(t *testing.T) {
	ed := NewEventDetector(10)
	ed.Check(WindowStats{Active: 10})

	if events := ed.Check(WindowStats{Active: 1}); hasEvent(events, EventPlumeCollapse) {
		t.Error("plumes below the minimum peak should not report collapse")
	}
}

func TestEventDetector_SteadyState(t *testing.T) {
	ed := NewEventDetector(10)

	fired := 0
	for i := 0; i < 12; i++ {
		active := 1000
		if i%2 == 1 {
			active = 1010
		}
		events := ed.Check(WindowStats{WindowEndTick: int32(i * 300), Active: active})
		if hasEvent(events, EventSteadyState) {
			fired++
		}
	}

	if fired != 1 {
		t.Errorf("steady_state fired %d times, want exactly 1", fired)
	}
}

func TestEventDetector_GrowingPlumeNotSteady(t *testing.T) {
	ed := NewEventDetector(10)

	for i := 0; i < 12; i++ {
		events := ed.Check(WindowStats{WindowEndTick: int32(i * 300), Active: 100 * (i + 1)})
		if hasEvent(events, EventSteadyState) {
			t.Fatalf("growing plume reported steady at window %d", i)
		}
	}
}
