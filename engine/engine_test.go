package engine

import (
	"encoding/json"
	"errors"
	"math"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/steam/components"
	"github.com/pthm-cable/steam/config"
	"github.com/pthm-cable/steam/stream"
	"github.com/pthm-cable/steam/telemetry"
)

// testConfig returns defaults with a small pool so tests stay fast.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Pool.Capacity = 500
	cfg.Tunables.EmissionRate = 120
	cfg.ComputeDerived()
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config, opts Options) *Engine {
	t.Helper()
	e, err := New(cfg, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func checkInvariants(t *testing.T, e *Engine) {
	t.Helper()
	cfg := e.Config()

	if e.FreeCount()+e.ActiveCount() != e.Capacity() {
		t.Fatalf("tick %d: free %d + active %d != capacity %d", e.Tick(), e.FreeCount(), e.ActiveCount(), e.Capacity())
	}

	active := 0
	for i, p := range e.Particles() {
		if !p.Active {
			continue
		}
		active++
		if p.Density < cfg.Physics.DensityFloor {
			t.Fatalf("tick %d: particle %d density %g below floor", e.Tick(), i, p.Density)
		}
		if p.Temperature < 0 {
			t.Fatalf("tick %d: particle %d temperature %g < 0", e.Tick(), i, p.Temperature)
		}
		if p.Position.Y < cfg.Physics.FloorHeight {
			t.Fatalf("tick %d: particle %d below floor at y=%g", e.Tick(), i, p.Position.Y)
		}
		if math.IsNaN(p.Position.X) || math.IsNaN(p.Velocity.Y) || math.IsNaN(p.Force.Z) {
			t.Fatalf("tick %d: particle %d has NaN state: %+v", e.Tick(), i, p)
		}
	}
	if active != e.ActiveCount() {
		t.Fatalf("tick %d: %d active slots, ActiveCount %d", e.Tick(), active, e.ActiveCount())
	}
}

// ---------- construction ----------

func TestNew_Defaults(t *testing.T) {
	e := newTestEngine(t, nil, Options{})

	if e.Capacity() != config.Default().Pool.Capacity {
		t.Errorf("capacity = %d, want default %d", e.Capacity(), config.Default().Pool.Capacity)
	}
	if e.ActiveCount() != 0 || e.FreeCount() != e.Capacity() {
		t.Errorf("new engine should have an empty pool, active=%d free=%d", e.ActiveCount(), e.FreeCount())
	}
	if e.Tick() != 0 || e.SimTime() != 0 {
		t.Error("new engine should start at tick 0")
	}
	if e.Volume() != nil {
		t.Error("volume should be disabled by default")
	}
}

func TestNew_RejectsSmallCellSize(t *testing.T) {
	cfg := testConfig()
	cfg.Grid.CellSize = cfg.Kernel.SmoothingRadius / 2

	_, err := New(cfg, Options{})
	if !errors.Is(err, config.ErrCellSizeTooSmall) {
		t.Errorf("New error = %v, want ErrCellSizeTooSmall", err)
	}
}

func TestNew_CopiesConfig(t *testing.T) {
	cfg := testConfig()
	e := newTestEngine(t, cfg, Options{})

	cfg.Tunables.Gravity = -9
	if e.Tunables().Gravity == -9 {
		t.Error("engine should not observe later config mutation")
	}
}

// ---------- stepping ----------

func TestUpdate_InvariantsHoldOverManySteps(t *testing.T) {
	cfg := testConfig()
	cfg.Pool.Capacity = 150 // saturates within the run
	cfg.Tunables.EmissionRate = 200
	cfg.Tunables.CoolingRate = 0.5
	e := newTestEngine(t, cfg, Options{Seed: 3})

	for i := 0; i < 600; i++ {
		e.Update(1.0 / 60)
		checkInvariants(t, e)
	}
	if e.ActiveCount() == 0 {
		t.Error("expected live particles after emission")
	}
}

func TestUpdate_Deterministic(t *testing.T) {
	run := func() []components.Particle {
		cfg := testConfig()
		cfg.Turbulence.Strength = 0.5
		e := newTestEngine(t, cfg, Options{Seed: 99})
		for i := 0; i < 240; i++ {
			e.Update(1.0 / 60)
		}
		out := make([]components.Particle, len(e.Particles()))
		copy(out, e.Particles())
		return out
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("slot %d differs between identical runs:\n%+v\n%+v", i, a[i], b[i])
		}
	}
}

func TestInitialize_RestartsRun(t *testing.T) {
	cfg := testConfig()
	e := newTestEngine(t, cfg, Options{Seed: 5})

	for i := 0; i < 60; i++ {
		e.Update(1.0 / 60)
	}
	first := e.Snapshot(nil)

	e.Initialize(cfg.Pool.Capacity)
	if e.ActiveCount() != 0 || e.Tick() != 0 || e.SimTime() != 0 {
		t.Fatal("Initialize should reset the pool and clock")
	}
	for i := 0; i < 60; i++ {
		e.Update(1.0 / 60)
	}
	second := e.Snapshot(nil)

	if len(first) != len(second) {
		t.Fatalf("runs differ in size: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("snapshot %d differs after re-initialize", i)
		}
	}
}

func TestUpdate_NegativeDTIsZero(t *testing.T) {
	cfg := testConfig()
	e := newTestEngine(t, cfg, Options{})
	idx, _ := e.Spawn(components.Particle{Position: r3.Vec{Y: 2}, Mass: 1, Temperature: 1, Life: 1})

	e.Update(-1)

	p := e.Particles()[idx]
	if p.Position.Y != 2 || p.Life != 1 || p.Temperature != 1 {
		t.Errorf("negative dt changed state: %+v", p)
	}
	if e.SimTime() != 0 {
		t.Errorf("sim time = %g, want 0", e.SimTime())
	}
	if e.Tick() != 1 {
		t.Errorf("tick = %d, want 1", e.Tick())
	}
}

func TestUpdate_ThreeParticleDensityAtZeroDT(t *testing.T) {
	cfg := testConfig()
	cfg.Tunables.EmissionRate = 0
	e := newTestEngine(t, cfg, Options{})

	positions := []r3.Vec{{}, {X: 0.5}, {Y: 0.5}}
	idx := make([]int, len(positions))
	for i, pos := range positions {
		idx[i], _ = e.Spawn(components.Particle{Position: pos, Mass: 1, Temperature: 1, Life: 10})
	}

	e.Update(0)

	h := cfg.Kernel.SmoothingRadius
	poly6 := func(r2 float64) float64 {
		d := h*h - r2
		return 315.0 / (64.0 * math.Pi * math.Pow(h, 9)) * d * d * d
	}
	want := []float64{
		poly6(0) + poly6(0.25) + poly6(0.25),
		poly6(0) + poly6(0.25) + poly6(0.5),
		poly6(0) + poly6(0.25) + poly6(0.5),
	}

	for i, w := range want {
		got := e.Particles()[idx[i]].Density
		if math.Abs(got-w) > 1e-9 {
			t.Errorf("density[%d] = %g, want %g", i, got, w)
		}
	}
	if e.ActiveCount() != 3 {
		t.Errorf("active = %d, want 3", e.ActiveCount())
	}
}

func TestUpdate_ExpiredParticleFreed(t *testing.T) {
	cfg := testConfig()
	cfg.Emitter.Life = 0.1
	cfg.Tunables.EmissionRate = 5 // exactly one spawn in a 0.2s step
	e := newTestEngine(t, cfg, Options{})

	e.Update(0.2)

	if e.ActiveCount() != 0 {
		t.Fatalf("active = %d, want 0 after life expired", e.ActiveCount())
	}
	spawned := cfg.Pool.Capacity - 1 // first spawn pops the back of the free list
	if e.Particles()[spawned].Mass != cfg.Emitter.Mass {
		t.Fatalf("slot %d was not used by the spawn", spawned)
	}
	found := false
	for _, f := range e.FreeIndices() {
		if f == spawned {
			found = true
		}
	}
	if !found {
		t.Errorf("expired slot %d not back on the free list", spawned)
	}
}

func TestUpdate_ParticlesRise(t *testing.T) {
	cfg := testConfig()
	cfg.Emitter.Spread = 0
	cfg.Tunables.EmissionRate = 0
	e := newTestEngine(t, cfg, Options{})

	idx, _ := e.Spawn(components.Particle{Position: r3.Vec{Y: -14}, Mass: 1, Temperature: 1, Life: 10})
	for i := 0; i < 30; i++ {
		e.Update(1.0 / 60)
	}

	if y := e.Particles()[idx].Position.Y; y <= -14 {
		t.Errorf("hot particle should rise, y = %g", y)
	}
}

// ---------- tunables ----------

func TestSetTunables(t *testing.T) {
	e := newTestEngine(t, testConfig(), Options{})
	before := e.Tunables()

	bad := before
	bad.CoolingRate = -1
	if err := e.SetTunables(bad); err == nil {
		t.Error("expected error for negative cooling rate")
	}
	if e.Tunables() != before {
		t.Error("rejected tunables should leave the old values in place")
	}

	good := before
	good.BuoyancyCoeff = 6
	if err := e.SetTunables(good); err != nil {
		t.Fatalf("SetTunables: %v", err)
	}
	if e.Tunables().BuoyancyCoeff != 6 {
		t.Error("tunables not applied")
	}
}

func TestSetTunables_DisableEmission(t *testing.T) {
	e := newTestEngine(t, testConfig(), Options{})
	tun := e.Tunables()
	tun.EmissionRate = 0
	if err := e.SetTunables(tun); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 30; i++ {
		e.Update(1.0 / 60)
	}
	if e.ActiveCount() != 0 {
		t.Errorf("active = %d with emission disabled", e.ActiveCount())
	}
}

// ---------- snapshot, telemetry, volume, stream ----------

func TestSnapshot(t *testing.T) {
	e := newTestEngine(t, testConfig(), Options{Seed: 1})
	for i := 0; i < 30; i++ {
		e.Update(1.0 / 60)
	}

	snap := e.Snapshot(nil)
	if len(snap) != e.ActiveCount() {
		t.Fatalf("snapshot has %d particles, want %d", len(snap), e.ActiveCount())
	}
	for _, s := range snap {
		p := e.Particles()[s.Index]
		if !p.Active || p.Position != s.Position || p.Temperature != s.Temperature {
			t.Fatalf("snapshot entry %+v does not match slot %+v", s, p)
		}
	}

	// Reuses the destination buffer.
	again := e.Snapshot(snap)
	if len(again) != len(snap) || &again[0] != &snap[0] {
		t.Error("Snapshot should reuse dst capacity")
	}
}

func TestTelemetry_StatsCallbackAndOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	var windows []telemetry.WindowStats

	cfg := testConfig()
	e := newTestEngine(t, cfg, Options{
		Seed:           2,
		StatsWindowSec: 0.25,
		OutputDir:      dir,
		StatsCallback:  func(s telemetry.WindowStats) { windows = append(windows, s) },
	})

	for i := 0; i < 60; i++ {
		e.Update(cfg.Physics.DT)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if len(windows) < 3 {
		t.Fatalf("got %d windows, want at least 3", len(windows))
	}
	total := 0
	for _, w := range windows {
		total += w.Spawned
	}
	if total == 0 {
		t.Error("windows should count spawns")
	}
	last := windows[len(windows)-1]
	if last.Active+last.Free != cfg.Pool.Capacity {
		t.Errorf("window occupancy %d+%d != capacity", last.Active, last.Free)
	}

	for _, name := range []string{"telemetry.csv", "perf.csv", "events.csv", "config.yaml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	data, err := os.ReadFile(filepath.Join(dir, "telemetry.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if rows := strings.Count(strings.TrimSpace(string(data)), "\n"); rows != len(windows) {
		t.Errorf("telemetry.csv has %d rows, want %d", rows, len(windows))
	}
}

func TestTelemetry_CountsRetirements(t *testing.T) {
	cfg := testConfig()
	cfg.Emitter.Life = 0.2
	var retired int
	e := newTestEngine(t, cfg, Options{
		StatsWindowSec: 1,
		StatsCallback: func(s telemetry.WindowStats) {
			retired += s.RetiredExpired + s.RetiredCooled
		},
	})

	for i := 0; i < 120; i++ {
		e.Update(cfg.Physics.DT)
	}
	if retired == 0 {
		t.Error("short-lived particles should be reported as retired")
	}
}

func TestVolume_BuiltEachStep(t *testing.T) {
	cfg := testConfig()
	cfg.Volume.Enabled = true
	cfg.Volume.Width, cfg.Volume.Height, cfg.Volume.Depth = 16, 16, 16
	e := newTestEngine(t, cfg, Options{Seed: 4})

	for i := 0; i < 30; i++ {
		e.Update(1.0 / 60)
	}

	if e.Volume() == nil {
		t.Fatal("volume should be enabled")
	}
	if e.Volume().TotalDensity() <= 0 {
		t.Error("volume should hold density after emission")
	}
}

func TestStream_PublishesFrames(t *testing.T) {
	srv := stream.NewServer()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cfg := testConfig()
	cfg.Stream.Every = 1
	e := newTestEngine(t, cfg, Options{Seed: 8, Stream: srv})
	e.Update(1.0 / 60)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var frame stream.Frame
	if err := json.Unmarshal(msg, &frame); err != nil {
		t.Fatal(err)
	}
	if frame.Tick != 1 || len(frame.Particles) != e.ActiveCount() {
		t.Errorf("frame tick=%d particles=%d, want tick 1 with %d particles", frame.Tick, len(frame.Particles), e.ActiveCount())
	}
}

func BenchmarkEngineUpdate(b *testing.B) {
	cfg := config.Default()
	cfg.Pool.Capacity = 5000
	e, err := New(cfg, Options{Seed: 1})
	if err != nil {
		b.Fatal(err)
	}
	defer e.Close()

	// Warm up to a populated plume.
	for i := 0; i < 600; i++ {
		e.Update(cfg.Physics.DT)
	}

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		e.Update(cfg.Physics.DT)
	}
}
