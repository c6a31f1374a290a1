// Package engine sequences the erosion passes over one terrain grid.
package engine

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/pthm-cable/erosion/components"
	"github.com/pthm-cable/erosion/config"
	"github.com/pthm-cable/erosion/systems"
	"github.com/pthm-cable/erosion/telemetry"
)

// PassKind selects which erosion model ModifyTerrain runs.
type PassKind uint8

const (
	PassWater PassKind = iota
	PassWind
	PassGlobalWater
)

// ParsePassKind maps a config mode string to a PassKind.
func ParsePassKind(mode string) (PassKind, error) {
	switch mode {
	case config.ModeWater:
		return PassWater, nil
	case config.ModeWind:
		return PassWind, nil
	case config.ModeGlobalWater:
		return PassGlobalWater, nil
	}
	return PassWater, fmt.Errorf("unknown pass kind %q", mode)
}

func (k PassKind) String() string {
	switch k {
	case PassWater:
		return config.ModeWater
	case PassWind:
		return config.ModeWind
	case PassGlobalWater:
		return config.ModeGlobalWater
	}
	return "unknown"
}

// maxSampleHeights bounds how many heights a stats window sorts.
const maxSampleHeights = 1 << 16

// Engine owns the terrain grid and runs one tick at a time.
// It is not safe for concurrent use; readers must synchronize at tick boundaries.
type Engine struct {
	cfg    *config.Config
	kind   PassKind
	seed   int64
	logger *slog.Logger
	rng    *rand.Rand
	pool   *systems.Pool

	terrain *systems.TerrainGrid
	snow    *systems.SnowGrid // wind mode only

	initializer *systems.Initializer
	hydraulic   *systems.Hydraulic
	wind        *systems.Wind
	global      *systems.GlobalWater
	slump       *systems.SlumpPass
	slump2      *systems.SlumpPass
	collapse    *systems.SlumpPass

	agents *agentStore

	transientDecay float32
	transientEvery uint64

	perf      *telemetry.PerfCollector
	collector *telemetry.Collector
	stats     telemetry.WindowStats
	freshStat bool
	heights   []float64
}

// New builds an engine for cfg. The grid starts flat; call InitTerrain or Load.
func New(cfg *config.Config, seed int64, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	kind, err := ParsePassKind(cfg.Mode)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.ComputeDerived()

	w, h := cfg.Grid.Width, cfg.Grid.Height
	e := &Engine{
		cfg:    cfg,
		kind:   kind,
		seed:   seed,
		logger: logger.With("mode", kind.String()),
		rng:    rand.New(rand.NewSource(seed)),
		// Offset so worker 0 does not replay the engine stream.
		pool: systems.NewPool(cfg.Parallel.Workers, seed+1),

		terrain:     systems.NewTerrainGrid(w, h),
		initializer: systems.NewInitializer(cfg.Init),
		hydraulic:   systems.NewHydraulic(cfg.Hydraulic),
		global:      systems.NewGlobalWater(cfg.GlobalWater, cfg.Derived.RainBudget, cfg.Derived.RainPerTick),
		slump:       systems.NewSlumpPass(cfg.Slump),
		slump2:      systems.NewSlumpPass(cfg.Slump2),
		collapse:    systems.NewCollapsePass(cfg.Collapse),
		agents:      newAgentStore(),

		transientDecay: float32(cfg.Transient.Decay),

		perf:      telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		collector: telemetry.NewCollector(cfg.Telemetry.StatsEvery),
	}
	if cfg.Transient.Interval > 0 {
		e.transientEvery = uint64(cfg.Transient.Interval)
	}

	switch kind {
	case PassWater:
		e.agents.spawn(components.KindWater, cfg.Hydraulic.NumAgents, w, h, e.hydraulic.InitialDecay, e.rng)
	case PassWind:
		e.snow = systems.NewSnowGrid(w, h)
		e.wind = systems.NewWind(cfg.Wind, cfg.Derived.WindDirX, cfg.Derived.WindDirY)
		e.agents.spawn(components.KindWind, cfg.Wind.NumAgents, w, h, e.wind.InitialDecay, e.rng)
	}

	e.logger.Info("engine created",
		"width", w,
		"height", h,
		"seed", seed,
		"workers", e.pool.Workers(),
		"agents", e.agentCount(),
	)
	return e, nil
}

// Kind returns the pass kind this engine runs.
func (e *Engine) Kind() PassKind { return e.kind }

// Seed returns the seed the engine RNG started from.
func (e *Engine) Seed() int64 { return e.seed }

// Width returns the grid width in cells.
func (e *Engine) Width() int { return e.terrain.W }

// Height returns the grid height in cells.
func (e *Engine) Height() int { return e.terrain.H }

// Cells exposes the hydraulic terrain, row-major. Read only between ticks.
func (e *Engine) Cells() []systems.Cell { return e.terrain.Cells }

// SnowCells exposes the snow grid in wind mode, nil otherwise.
func (e *Engine) SnowCells() []systems.SnowCell {
	if e.snow == nil {
		return nil
	}
	return e.snow.Cells
}

// HeightAt samples the active surface at normalized coordinates.
func (e *Engine) HeightAt(u, v float32) float32 {
	if e.kind == PassWind {
		return e.snow.HeightAt(u, v)
	}
	return e.terrain.HeightAt(u, v)
}

// WaterHeightAt samples the surface including standing water.
// In wind mode there is no water and this matches HeightAt.
func (e *Engine) WaterHeightAt(u, v float32) float32 {
	if e.kind == PassWind {
		return e.snow.HeightAt(u, v)
	}
	return e.terrain.WaterHeightAt(u, v)
}

// InitTerrain regenerates the terrain from noise.
func (e *Engine) InitTerrain() {
	e.initializer.InitTerrain(e.pool, e.terrain, e.rng)
	if e.snow != nil {
		e.snow.FromTerrain(e.terrain)
	}
	e.afterReplace()
	e.logger.Info("terrain initialized", "solid_mass", e.terrain.SolidMass())
}

// Clear flattens the terrain to zero.
func (e *Engine) Clear() {
	e.terrain.Clear()
	if e.snow != nil {
		e.snow.Clear()
	}
	e.afterReplace()
}

// afterReplace resets state tied to the previous grid contents.
func (e *Engine) afterReplace() {
	e.global.Refill()
	e.collector.Rebase()
	switch e.kind {
	case PassWater:
		e.agents.scatter(components.KindWater, e.Width(), e.Height(), e.hydraulic.InitialDecay, e.rng)
	case PassWind:
		e.agents.scatter(components.KindWind, e.Width(), e.Height(), e.wind.InitialDecay, e.rng)
	}
}

// Save writes the active grid to path.
func (e *Engine) Save(path string) error {
	var err error
	if e.snow != nil {
		err = systems.SaveGrid(path, &e.snow.Grid)
	} else {
		err = systems.SaveGrid(path, &e.terrain.Grid)
	}
	if err != nil {
		return fmt.Errorf("save terrain: %w", err)
	}
	return nil
}

// Load replaces the active grid with the file at path.
// On error the grid is unchanged.
func (e *Engine) Load(path string) error {
	var err error
	if e.snow != nil {
		err = systems.LoadGrid(path, &e.snow.Grid)
	} else {
		err = systems.LoadGrid(path, &e.terrain.Grid)
	}
	if err != nil {
		return fmt.Errorf("load terrain: %w", err)
	}
	e.afterReplace()
	e.logger.Info("terrain loaded", "path", path)
	return nil
}

// ModifyTerrain advances the simulation by one tick.
func (e *Engine) ModifyTerrain(tick uint64) {
	e.perf.StartTick()

	switch e.kind {
	case PassWater:
		e.tickWater()
	case PassGlobalWater:
		e.tickGlobalWater()
	case PassWind:
		e.tickWind()
	}

	e.perf.StartPhase(telemetry.PhaseSettle)
	e.settle(tick)

	e.freshStat = false
	if e.collector.ShouldFlush(tick) {
		e.perf.StartPhase(telemetry.PhaseStats)
		e.stats = e.collector.Flush(tick, e.sample())
		e.freshStat = true
	}

	e.perf.EndTick()
}

func (e *Engine) tickWater() {
	e.perf.StartPhase(telemetry.PhaseParticles)
	e.agents.each(components.KindWater, func(a systems.Agent, tag *components.Tag) {
		if r := e.hydraulic.RunAgent(e.terrain, a, e.rng); r != systems.ResetNone {
			e.hydraulic.ResetAgent(e.terrain, a, e.rng)
			tag.Resets++
			e.collector.RecordReset(r)
		}
	})

	e.perf.StartPhase(telemetry.PhaseSlump)
	e.slump.Run(e.pool, e.terrain, e.rng)
	e.slump2.Run(e.pool, e.terrain, e.rng)

	e.perf.StartPhase(telemetry.PhaseCollapse)
	e.collapse.Run(e.pool, e.terrain, e.rng)
}

func (e *Engine) tickGlobalWater() {
	e.perf.StartPhase(telemetry.PhaseRain)
	e.collector.RecordRain(e.global.Rain(e.pool, e.terrain))

	e.perf.StartPhase(telemetry.PhaseFlow)
	e.global.Flow(e.pool, e.terrain)

	e.perf.StartPhase(telemetry.PhaseSlump)
	e.slump.Run(e.pool, e.terrain, e.rng)

	e.perf.StartPhase(telemetry.PhaseCollapse)
	e.collapse.Run(e.pool, e.terrain, e.rng)
}

func (e *Engine) tickWind() {
	e.perf.StartPhase(telemetry.PhasePowder)
	e.wind.DepositPowder(e.pool, e.snow)

	e.perf.StartPhase(telemetry.PhaseWind)
	e.agents.each(components.KindWind, func(a systems.Agent, tag *components.Tag) {
		if r := e.wind.RunAgent(e.snow, a, e.rng); r != systems.ResetNone {
			e.wind.ResetAgent(e.snow, a, e.rng)
			tag.Resets++
			e.collector.RecordReset(r)
		}
	})

	e.perf.StartPhase(telemetry.PhaseSlump)
	e.wind.SlumpPowder(e.pool, e.snow)

	e.perf.StartPhase(telemetry.PhaseCompaction)
	e.wind.CompactPowder(e.pool, e.snow)
}

// settle fades transient fields and repairs any non-finite or negative layer.
func (e *Engine) settle(tick uint64) {
	if e.kind == PassWind {
		e.collector.RecordRepairs(e.snow.Sanitize())
		return
	}
	if e.transientEvery > 0 && tick%e.transientEvery == 0 {
		e.terrain.DecayMovingWater(e.transientDecay)
	}
	e.collector.RecordRepairs(e.terrain.Sanitize())
}

// sample gathers the terrain state the stats collector needs.
func (e *Engine) sample() telemetry.TerrainSample {
	n := e.terrain.Len()
	stride := 1
	for n/stride > maxSampleHeights {
		stride *= 2
	}
	e.heights = e.heights[:0]

	s := telemetry.TerrainSample{
		Mode:   e.kind.String(),
		Agents: e.agentCount(),
	}

	if e.kind == PassWind {
		for i := range e.snow.Cells {
			c := e.snow.Cells[i]
			s.HardMass += float64(c.Rock)
			s.SnowMass += float64(c.Ice) + float64(c.Snow)
			s.PowderMass += float64(c.Powder)
			if i%stride == 0 {
				e.heights = append(e.heights, float64(systems.SnowHeight(c)))
			}
		}
		s.PowderMass += e.agents.carried(components.KindWind)
	} else {
		for i := range e.terrain.Cells {
			c := e.terrain.Cells[i]
			s.HardMass += float64(c.Hard)
			s.LooseMass += float64(c.Loose)
			s.WaterMass += float64(c.Water)
			if i%stride == 0 {
				e.heights = append(e.heights, float64(systems.Height(c)))
			}
		}
		s.LooseMass += e.agents.carried(components.KindWater)
		if e.kind == PassGlobalWater {
			s.Atmosphere = float64(e.global.Atmosphere)
		}
	}

	s.Heights = e.heights
	return s
}

func (e *Engine) agentCount() int {
	switch e.kind {
	case PassWater:
		return e.agents.Count(components.KindWater)
	case PassWind:
		return e.agents.Count(components.KindWind)
	}
	return 0
}

// AgentResets returns the lifetime reset count of the active agent population.
func (e *Engine) AgentResets() uint64 {
	if e.kind == PassWind {
		return e.agents.totalResets(components.KindWind)
	}
	return e.agents.totalResets(components.KindWater)
}

// Stats returns the latest window stats and whether the last tick produced them.
func (e *Engine) Stats() (telemetry.WindowStats, bool) {
	return e.stats, e.freshStat
}

// Perf returns the rolling per-phase timing.
func (e *Engine) Perf() telemetry.PerfStats {
	return e.perf.Stats()
}

// Close stops the worker pool.
func (e *Engine) Close() {
	e.pool.Close()
}
