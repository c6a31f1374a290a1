// Package config provides configuration loading and access for the terrain simulation.
package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Pass kinds selectable via Config.Mode.
const (
	ModeWater       = "water"
	ModeWind        = "wind"
	ModeGlobalWater = "global_water"
)

// Config holds all simulation configuration parameters.
type Config struct {
	Grid        GridConfig        `yaml:"grid"`
	Mode        string            `yaml:"mode"` // water, wind or global_water
	Init        InitConfig        `yaml:"init"`
	Hydraulic   HydraulicConfig   `yaml:"hydraulic"`
	Slump       SlumpConfig       `yaml:"slump"`
	Slump2      SlumpConfig       `yaml:"slump2"`
	Collapse    CollapseConfig    `yaml:"collapse"`
	Transient   TransientConfig   `yaml:"transient"`
	GlobalWater GlobalWaterConfig `yaml:"global_water"`
	Wind        WindConfig        `yaml:"wind"`
	Parallel    ParallelConfig    `yaml:"parallel"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// GridConfig holds the terrain grid dimensions in cells.
type GridConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// InitConfig describes how InitTerrain composes noise into the grid.
type InitConfig struct {
	Layers     []NoiseLayerConfig `yaml:"layers"`      // Applied in order
	LooseBase  float64            `yaml:"loose_base"`  // Uniform sediment added after hard layers
	LooseNoise []NoiseLayerConfig `yaml:"loose_noise"` // Applied after loose_base
}

// NoiseLayerConfig is one octave-summed noise pass.
type NoiseLayerConfig struct {
	Kind      string  `yaml:"kind"`      // "wrap" (tileable simplex) or "mesa" (thresholded perlin)
	Target    string  `yaml:"target"`    // "hard" or "loose"
	Octaves   int     `yaml:"octaves"`   // Octaves j=1..N
	Scale     float64 `yaml:"scale"`     // Base frequency, divided by grid width
	Amplitude float64 `yaml:"amplitude"` // Final multiplier
	Transform string  `yaml:"transform"` // Per-octave: none, abs, square
	Post      string  `yaml:"post"`      // On the sum: none, square, ridge_clamp, pow, pow_abs
	Power     float64 `yaml:"power"`     // Exponent for post=pow and pow_abs
	Threshold float64 `yaml:"threshold"` // Mesa cut-off
}

// HydraulicConfig holds water agent parameters.
type HydraulicConfig struct {
	NumAgents        int     `yaml:"num_agents"`
	CellsPerRun      int     `yaml:"cells_per_run"`      // Steps per agent per tick
	DecayGrowth      float64 `yaml:"decay_growth"`       // CarryingDecay multiplier per tick and stall
	InitialDecay     float64 `yaml:"initial_decay"`      // Decay after reset
	Momentum         float64 `yaml:"momentum"`           // Weight of the previous fall vector
	Turbulence       float64 `yaml:"turbulence"`         // Max random perturbation of the fall vector
	SpeedSmoothing   float64 `yaml:"speed_smoothing"`    // Low-pass factor for speed
	CapacityFactor   float64 `yaml:"capacity_factor"`    // Capacity = factor * speed * (1 - decay)
	DepositRate      float64 `yaml:"deposit_rate"`       // Fraction of excess dropped per cell crossed
	ErosionBase      float64 `yaml:"erosion_base"`       // Erosion at zero speed
	WaterErosionGain float64 `yaml:"water_erosion_gain"` // Extra erosion per unit moving water
	HardErosionRatio float64 `yaml:"hard_erosion_ratio"` // Hard erosion relative to loose
	WaterMark        float64 `yaml:"water_mark"`         // MovingWater added per visited cell
	WorkingWater     float64 `yaml:"working_water"`      // Weight of MovingWater in working height
	UphillPolicy     string  `yaml:"uphill_policy"`      // drop, reset or ignore
	UphillDropRatio  float64 `yaml:"uphill_drop_ratio"`  // Fraction of the climb filled when dropping
	CollapseFrom     float64 `yaml:"collapse_from"`      // Local collapse rate after an uphill drop
	CollapseTo       float64 `yaml:"collapse_to"`        // Local collapse rate after a loose pickup
	MaxResetDeposit  float64 `yaml:"max_reset_deposit"`  // Cap on mass deposited by a reset
}

// SlumpConfig holds loose-material slump parameters.
type SlumpConfig struct {
	Strategy  string  `yaml:"strategy"`   // stochastic or exhaustive
	Threshold float64 `yaml:"threshold"`  // Repose height difference (orthogonal)
	Rate      float64 `yaml:"rate"`       // Fraction of the excess moved
	Samples   int     `yaml:"samples"`    // Stochastic samples per tick (0 disables)
	WaterGain float64 `yaml:"water_gain"` // Rate multiplier per unit moving water
}

// CollapseConfig holds hard-material collapse parameters.
type CollapseConfig struct {
	Strategy       string  `yaml:"strategy"`
	Threshold      float64 `yaml:"threshold"`
	Rate           float64 `yaml:"rate"`
	LooseThreshold float64 `yaml:"loose_threshold"` // Collapse only where loose cover is at most this
	Samples        int     `yaml:"samples"`
}

// TransientConfig controls decay of visualization-only fields.
type TransientConfig struct {
	Decay    float64 `yaml:"decay"`    // MovingWater multiplier
	Interval int     `yaml:"interval"` // Apply every N ticks
}

// GlobalWaterConfig holds the budget-driven flow model parameters.
type GlobalWaterConfig struct {
	TotalBudget    float64 `yaml:"total_budget"`      // Per cell; scaled by grid area
	MaxRainPerTick float64 `yaml:"max_rain_per_tick"` // Per cell; scaled by grid area
	FlowRate       float64 `yaml:"flow_rate"`         // Fraction of a cell's water routed per tick
	ErosionRate    float64 `yaml:"erosion_rate"`      // Sediment per unit ground drop
	SedimentRatio  float64 `yaml:"sediment_ratio"`    // Max sediment per unit water moved
	LooseMin       float64 `yaml:"loose_min"`         // Below this, hard material is eroded instead
}

// WindConfig holds the aeolian powder transport parameters.
type WindConfig struct {
	Angle           float64 `yaml:"angle"` // Degrees, 0 = +X
	Speed           float64 `yaml:"speed"`
	NumAgents       int     `yaml:"num_agents"`
	CellsPerRun     int     `yaml:"cells_per_run"`
	PowderRate      float64 `yaml:"powder_rate"` // Powder added per tick on flat ground
	LeeWeight       float64 `yaml:"lee_weight"`  // Extra deposition on lee slopes
	Gravity         float64 `yaml:"gravity"`     // Weight of the fall vector in travel direction
	Momentum        float64 `yaml:"momentum"`
	Turbulence      float64 `yaml:"turbulence"`
	CapacityFactor  float64 `yaml:"capacity_factor"`
	PickupRate      float64 `yaml:"pickup_rate"`
	AbrasionRatio   float64 `yaml:"abrasion_ratio"` // Snow abraded into powder relative to pickup
	DepositRate     float64 `yaml:"deposit_rate"`
	DecayGrowth     float64 `yaml:"decay_growth"`
	InitialDecay    float64 `yaml:"initial_decay"`
	MaxResetDeposit float64 `yaml:"max_reset_deposit"`
	SlumpThreshold  float64 `yaml:"slump_threshold"`
	SlumpDepth      float64 `yaml:"slump_depth"` // Powder depth required before it slumps
	SlumpRate       float64 `yaml:"slump_rate"`
	CompactChance   float64 `yaml:"compact_chance"`    // Per-cell sampling probability
	CompactMinDepth float64 `yaml:"compact_min_depth"` // Powder retained uncompacted
	CompactRate     float64 `yaml:"compact_rate"`
	CompactDensity  float64 `yaml:"compact_density"` // Snow produced per unit powder
}

// ParallelConfig holds worker pool settings.
type ParallelConfig struct {
	Workers int `yaml:"workers"` // 0 = GOMAXPROCS
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	PerfWindow int `yaml:"perf_window"` // Ticks averaged by the perf collector
	StatsEvery int `yaml:"stats_every"` // Ticks between terrain stats records
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Cells       int     // Grid.Width * Grid.Height
	GridPow2    bool    // Both dimensions are powers of two
	WindDirX    float32 // Unit wind direction
	WindDirY    float32
	RainBudget  float32 // GlobalWater.TotalBudget scaled by area
	RainPerTick float32 // GlobalWater.MaxRainPerTick scaled by area
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

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns a fresh copy of the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
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
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.ComputeDerived()

	return cfg, nil
}

// Validate rejects configurations the engine cannot run.
func (c *Config) Validate() error {
	if c.Grid.Width <= 0 || c.Grid.Height <= 0 {
		return fmt.Errorf("grid size must be positive, got %dx%d", c.Grid.Width, c.Grid.Height)
	}
	switch c.Mode {
	case ModeWater, ModeWind, ModeGlobalWater:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	switch c.Hydraulic.UphillPolicy {
	case "", "drop", "reset", "ignore":
	default:
		return fmt.Errorf("unknown uphill policy %q", c.Hydraulic.UphillPolicy)
	}
	for _, s := range []string{c.Slump.Strategy, c.Slump2.Strategy, c.Collapse.Strategy} {
		if s != "" && s != "stochastic" && s != "exhaustive" {
			return fmt.Errorf("unknown slump strategy %q", s)
		}
	}
	if c.Hydraulic.DecayGrowth <= 1 {
		return fmt.Errorf("hydraulic.decay_growth must be greater than 1, got %v", c.Hydraulic.DecayGrowth)
	}
	if c.Wind.DecayGrowth <= 1 {
		return fmt.Errorf("wind.decay_growth must be greater than 1, got %v", c.Wind.DecayGrowth)
	}
	if c.GlobalWater.FlowRate < 0 || c.GlobalWater.FlowRate > 1 {
		return fmt.Errorf("global_water.flow_rate must be in [0, 1], got %v", c.GlobalWater.FlowRate)
	}
	layers := append(append([]NoiseLayerConfig{}, c.Init.Layers...), c.Init.LooseNoise...)
	for i, l := range layers {
		if err := l.validate(); err != nil {
			return fmt.Errorf("noise layer %d: %w", i, err)
		}
	}
	return nil
}

func (l NoiseLayerConfig) validate() error {
	switch l.Kind {
	case "", "wrap", "mesa":
	default:
		return fmt.Errorf("unknown kind %q", l.Kind)
	}
	switch l.Target {
	case "", "hard", "loose":
	default:
		return fmt.Errorf("unknown target %q", l.Target)
	}
	switch l.Transform {
	case "", "none", "abs", "square":
	default:
		return fmt.Errorf("unknown transform %q", l.Transform)
	}
	switch l.Post {
	case "", "none", "square", "ridge_clamp", "pow", "pow_abs":
	default:
		return fmt.Errorf("unknown post transform %q", l.Post)
	}
	if l.Octaves < 1 {
		return fmt.Errorf("octaves must be at least 1, got %d", l.Octaves)
	}
	return nil
}

// ComputeDerived calculates values derived from loaded config.
// Call again after mutating fields in code.
func (c *Config) ComputeDerived() {
	c.Derived.Cells = c.Grid.Width * c.Grid.Height
	c.Derived.GridPow2 = isPow2(c.Grid.Width) && isPow2(c.Grid.Height)

	rad := c.Wind.Angle * math.Pi / 180
	c.Derived.WindDirX = float32(math.Cos(rad))
	c.Derived.WindDirY = float32(math.Sin(rad))

	area := float64(c.Derived.Cells)
	c.Derived.RainBudget = float32(c.GlobalWater.TotalBudget * area)
	c.Derived.RainPerTick = float32(c.GlobalWater.MaxRainPerTick * area)
}

func isPow2(n int) bool {
	return n > 0 && n&(n-1) == 0
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
