// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Pool       PoolConfig       `yaml:"pool"`
	Kernel     KernelConfig     `yaml:"kernel"`
	Grid       GridConfig       `yaml:"grid"`
	Physics    PhysicsConfig    `yaml:"physics"`
	Thermo     ThermoConfig     `yaml:"thermo"`
	Tunables   Tunables         `yaml:"tunables"`
	Emitter    EmitterConfig    `yaml:"emitter"`
	Turbulence TurbulenceConfig `yaml:"turbulence"`
	Volume     VolumeConfig     `yaml:"volume"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Stream     StreamConfig     `yaml:"stream"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// Vec3 is a YAML-friendly 3-vector, written as a [x, y, z] sequence.
type Vec3 [3]float64

// R3 converts to the vector type used by the simulation.
func (v Vec3) R3() r3.Vec {
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}
}

// PoolConfig sizes the particle pool.
type PoolConfig struct {
	Capacity int `yaml:"capacity"`
}

// KernelConfig holds the SPH smoothing radius h.
type KernelConfig struct {
	SmoothingRadius float64 `yaml:"smoothing_radius"`
}

// GridConfig holds spatial hash parameters.
type GridConfig struct {
	CellSize float64 `yaml:"cell_size"` // Must be >= kernel.smoothing_radius
}

// PhysicsConfig holds integration parameters.
type PhysicsConfig struct {
	DT            float64 `yaml:"dt"`             // Fixed step used by the headless runner
	MaxDT         float64 `yaml:"max_dt"`         // Callers clamp steps to this
	Damping       float64 `yaml:"damping"`        // Velocity multiplier per step, (0, 1]
	FloorHeight   float64 `yaml:"floor_height"`   // World-space floor (Y)
	Restitution   float64 `yaml:"restitution"`    // Vertical bounce energy kept, [0, 1)
	DensityFloor  float64 `yaml:"density_floor"`  // Minimum density, > 0
	MinSeparation float64 `yaml:"min_separation"` // Pairs closer than this exert no pressure force
}

// ThermoConfig holds thermodynamic decay parameters.
type ThermoConfig struct {
	DeathTemperature float64 `yaml:"death_temperature"` // Retire at or below this temperature
}

// EmitterConfig holds spawn defaults for new particles.
type EmitterConfig struct {
	Origin      Vec3    `yaml:"origin"`
	Spread      float64 `yaml:"spread"` // Footprint width on X and Z (0 = exact origin)
	Velocity    Vec3    `yaml:"velocity"`
	Life        float64 `yaml:"life"`
	Temperature float64 `yaml:"temperature"`
	Mass        float64 `yaml:"mass"`
}

// TurbulenceConfig holds the noise force field parameters.
type TurbulenceConfig struct {
	Strength  float64 `yaml:"strength"` // 0 disables the field
	Scale     float64 `yaml:"scale"`
	TimeScale float64 `yaml:"time_scale"`
}

// VolumeConfig holds density volume parameters.
type VolumeConfig struct {
	Enabled          bool    `yaml:"enabled"`
	Width            int     `yaml:"width"`
	Height           int     `yaml:"height"`
	Depth            int     `yaml:"depth"`
	Min              Vec3    `yaml:"min"`
	Max              Vec3    `yaml:"max"`
	Sigma            float64 `yaml:"sigma"`             // Gaussian falloff in voxel units
	DensityWeight    float64 `yaml:"density_weight"`    // Density deposited per unit weight
	TemperatureScale float64 `yaml:"temperature_scale"` // Temperature mapped to 1.0
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow  float64 `yaml:"stats_window"`  // Seconds per stats window
	PerfWindow   int     `yaml:"perf_window"`   // Ticks averaged by the perf collector
	EventHistory int     `yaml:"event_history"` // Windows kept by the event detector
}

// StreamConfig holds snapshot stream parameters.
type StreamConfig struct {
	Address string `yaml:"address"` // Empty disables the server
	Every   int    `yaml:"every"`   // Publish every N ticks
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	EmissionInterval float64 // 1 / tunables.emission_rate, 0 when emission is off
	H2               float64 // kernel.smoothing_radius squared
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults invalid: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	cfg.ComputeDerived()

	return cfg, nil
}

// Clone returns a deep copy. Config holds no reference types, so a value copy suffices.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// ComputeDerived calculates values derived from loaded config.
// Call again after mutating fields programmatically.
func (c *Config) ComputeDerived() {
	c.Derived.H2 = c.Kernel.SmoothingRadius * c.Kernel.SmoothingRadius
	c.Derived.EmissionInterval = 0
	if c.Tunables.EmissionRate > 0 {
		c.Derived.EmissionInterval = 1.0 / c.Tunables.EmissionRate
	}
}

// ErrCellSizeTooSmall is returned when the grid cell is smaller than the kernel support.
// The 3x3x3 neighbor scan would then miss true neighbors.
var ErrCellSizeTooSmall = errors.New("grid.cell_size must be >= kernel.smoothing_radius")

// Validate checks structural constraints and tunable ranges.
func (c *Config) Validate() error {
	if c.Pool.Capacity <= 0 {
		return fmt.Errorf("pool.capacity must be positive, got %d", c.Pool.Capacity)
	}
	if c.Kernel.SmoothingRadius <= 0 {
		return fmt.Errorf("kernel.smoothing_radius must be positive, got %g", c.Kernel.SmoothingRadius)
	}
	if c.Grid.CellSize < c.Kernel.SmoothingRadius {
		return fmt.Errorf("%w (cell_size=%g, h=%g)", ErrCellSizeTooSmall, c.Grid.CellSize, c.Kernel.SmoothingRadius)
	}
	if c.Physics.Damping <= 0 || c.Physics.Damping > 1 {
		return fmt.Errorf("physics.damping must be in (0, 1], got %g", c.Physics.Damping)
	}
	if c.Physics.Restitution < 0 || c.Physics.Restitution >= 1 {
		return fmt.Errorf("physics.restitution must be in [0, 1), got %g", c.Physics.Restitution)
	}
	if c.Physics.DensityFloor <= 0 {
		return fmt.Errorf("physics.density_floor must be positive, got %g", c.Physics.DensityFloor)
	}
	if c.Physics.MinSeparation < 0 {
		return fmt.Errorf("physics.min_separation must be >= 0, got %g", c.Physics.MinSeparation)
	}
	if c.Emitter.Mass <= 0 {
		return fmt.Errorf("emitter.mass must be positive, got %g", c.Emitter.Mass)
	}
	if c.Emitter.Spread < 0 {
		return fmt.Errorf("emitter.spread must be >= 0, got %g", c.Emitter.Spread)
	}
	if c.Volume.Enabled && (c.Volume.Width <= 0 || c.Volume.Height <= 0 || c.Volume.Depth <= 0) {
		return fmt.Errorf("volume dimensions must be positive, got %dx%dx%d", c.Volume.Width, c.Volume.Height, c.Volume.Depth)
	}
	return c.Tunables.Validate()
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
