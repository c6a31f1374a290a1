package engine

import (
	"errors"
	"log/slog"
	"math"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/erosion/config"
	"github.com/pthm-cable/erosion/systems"
)

func testConfig(mode string) *config.Config {
	cfg := config.Default()
	cfg.Mode = mode
	cfg.Grid.Width = 32
	cfg.Grid.Height = 32
	cfg.Hydraulic.NumAgents = 50
	cfg.Wind.NumAgents = 50
	cfg.Slump.Samples = 200
	cfg.Slump2.Samples = 100
	cfg.Collapse.Samples = 100
	cfg.Parallel.Workers = 2
	cfg.Telemetry.StatsEvery = 10
	cfg.ComputeDerived()
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config, seed int64) *Engine {
	t.Helper()
	e, err := New(cfg, seed, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func finite(v float32) bool {
	return v >= 0 && !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

func TestParsePassKind(t *testing.T) {
	tests := []struct {
		mode string
		want PassKind
	}{
		{"water", PassWater},
		{"wind", PassWind},
		{"global_water", PassGlobalWater},
	}
	for _, tt := range tests {
		got, err := ParsePassKind(tt.mode)
		if err != nil || got != tt.want {
			t.Errorf("ParsePassKind(%q) = %v, %v", tt.mode, got, err)
		}
		if got.String() != tt.mode {
			t.Errorf("%v.String() = %q", got, got.String())
		}
	}
	if _, err := ParsePassKind("lava"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig("water")
	cfg.Grid.Width = 0
	if _, err := New(cfg, 1, nil); err == nil {
		t.Error("expected error for empty grid")
	}
}

func TestModifyTerrainKeepsLayersValid(t *testing.T) {
	for _, mode := range []string{config.ModeWater, config.ModeGlobalWater, config.ModeWind} {
		t.Run(mode, func(t *testing.T) {
			e := newTestEngine(t, testConfig(mode), 7)
			e.InitTerrain()

			for tick := uint64(1); tick <= 30; tick++ {
				e.ModifyTerrain(tick)
			}

			for i, c := range e.Cells() {
				if !finite(c.Hard) || !finite(c.Loose) || !finite(c.Water) || !finite(c.MovingWater) {
					t.Fatalf("cell %d invalid: %+v", i, c)
				}
			}
			for i, c := range e.SnowCells() {
				if !finite(c.Rock) || !finite(c.Ice) || !finite(c.Snow) || !finite(c.Powder) {
					t.Fatalf("snow cell %d invalid: %+v", i, c)
				}
			}
			if h := e.HeightAt(0.5, 0.5); !finite(h) {
				t.Errorf("HeightAt = %v", h)
			}
		})
	}
}

func TestSnowCellsOnlyInWindMode(t *testing.T) {
	if e := newTestEngine(t, testConfig(config.ModeWater), 1); e.SnowCells() != nil {
		t.Error("water engine exposes snow cells")
	}

	e := newTestEngine(t, testConfig(config.ModeWind), 1)
	e.InitTerrain()
	snow := e.SnowCells()
	for i, c := range e.Cells() {
		if snow[i].Rock != systems.Height(c) {
			t.Fatalf("cell %d: rock %v, terrain height %v", i, snow[i].Rock, systems.Height(c))
		}
	}
}

func TestStatsWindow(t *testing.T) {
	e := newTestEngine(t, testConfig(config.ModeWater), 3)
	e.InitTerrain()

	for tick := uint64(1); tick < 10; tick++ {
		e.ModifyTerrain(tick)
		if _, fresh := e.Stats(); fresh {
			t.Fatalf("stats flushed early at tick %d", tick)
		}
	}
	e.ModifyTerrain(10)

	s, fresh := e.Stats()
	if !fresh {
		t.Fatal("no stats at window end")
	}
	if s.WindowEndTick != 10 || s.Mode != "water" || s.Agents != 50 {
		t.Errorf("unexpected stats: %+v", s)
	}
	if s.HardMass <= 0 || s.HeightMax < s.HeightMin {
		t.Errorf("implausible terrain stats: %+v", s)
	}

	e.ModifyTerrain(11)
	if _, fresh := e.Stats(); fresh {
		t.Error("stats still marked fresh on the next tick")
	}

	if p := e.Perf(); p.AvgTickDuration <= 0 {
		t.Errorf("perf not recorded: %+v", p)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	e := newTestEngine(t, testConfig(config.ModeWater), 11)
	e.InitTerrain()
	for tick := uint64(1); tick <= 5; tick++ {
		e.ModifyTerrain(tick)
	}

	path := filepath.Join(t.TempDir(), "terrain.ter")
	if err := e.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	want := append([]systems.Cell(nil), e.Cells()...)

	e.Clear()
	if err := e.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	for i, c := range e.Cells() {
		if c != want[i] {
			t.Fatalf("cell %d = %+v, want %+v", i, c, want[i])
		}
	}
}

func TestLoadSizeMismatch(t *testing.T) {
	big := newTestEngine(t, testConfig(config.ModeWater), 1)
	big.InitTerrain()
	path := filepath.Join(t.TempDir(), "big.ter")
	if err := big.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cfg := testConfig(config.ModeWater)
	cfg.Grid.Width, cfg.Grid.Height = 16, 16
	small := newTestEngine(t, cfg, 1)

	err := small.Load(path)
	if !errors.Is(err, systems.ErrSizeMismatch) {
		t.Fatalf("err = %v, want size mismatch", err)
	}
	for i, c := range small.Cells() {
		if c != (systems.Cell{}) {
			t.Fatalf("cell %d modified by failed load: %+v", i, c)
		}
	}
}

func TestLoadRefillsAtmosphere(t *testing.T) {
	e := newTestEngine(t, testConfig(config.ModeGlobalWater), 5)
	e.InitTerrain()
	for tick := uint64(1); tick <= 5; tick++ {
		e.ModifyTerrain(tick)
	}
	if e.global.Atmosphere >= e.global.Budget {
		t.Fatalf("rain did not drain the atmosphere: %v", e.global.Atmosphere)
	}

	path := filepath.Join(t.TempDir(), "gw.ter")
	if err := e.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := e.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if e.global.Atmosphere != e.global.Budget {
		t.Errorf("atmosphere = %v, want %v", e.global.Atmosphere, e.global.Budget)
	}
}

func TestSingleWorkerRunsAreReproducible(t *testing.T) {
	run := func() []systems.Cell {
		cfg := testConfig(config.ModeWater)
		cfg.Parallel.Workers = 1
		e := newTestEngine(t, cfg, 99)
		e.InitTerrain()
		for tick := uint64(1); tick <= 10; tick++ {
			e.ModifyTerrain(tick)
		}
		return append([]systems.Cell(nil), e.Cells()...)
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("cell %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestAgentResetsAreCounted(t *testing.T) {
	cfg := testConfig(config.ModeWater)
	cfg.Hydraulic.DecayGrowth = 100 // every agent saturates quickly
	e := newTestEngine(t, cfg, 2)
	e.InitTerrain()
	for tick := uint64(1); tick <= 10; tick++ {
		e.ModifyTerrain(tick)
	}
	if e.AgentResets() == 0 {
		t.Error("no agent resets recorded")
	}
	s, _ := e.Stats()
	if s.Resets == 0 {
		t.Errorf("window stats missed resets: %+v", s)
	}
}

func TestReplacedGridReportsNoDrift(t *testing.T) {
	e := newTestEngine(t, testConfig(config.ModeWater), 4)
	e.InitTerrain()
	for tick := uint64(1); tick <= 10; tick++ {
		e.ModifyTerrain(tick)
	}
	if s, fresh := e.Stats(); !fresh || s.HardMass == 0 {
		t.Fatalf("no stats before clear: %+v", s)
	}

	e.Clear()
	for tick := uint64(11); tick <= 20; tick++ {
		e.ModifyTerrain(tick)
	}
	s, fresh := e.Stats()
	if !fresh {
		t.Fatal("no stats after clear")
	}
	if s.SolidDrift != 0 {
		t.Errorf("drift across clear = %v, want 0", s.SolidDrift)
	}
}

func TestWindWaterHeightFollowsSnow(t *testing.T) {
	e := newTestEngine(t, testConfig(config.ModeWind), 6)
	e.InitTerrain()
	for tick := uint64(1); tick <= 10; tick++ {
		e.ModifyTerrain(tick)
	}
	for _, uv := range [][2]float32{{0.1, 0.2}, {0.5, 0.5}, {0.93, 0.4}} {
		if got, want := e.WaterHeightAt(uv[0], uv[1]), e.HeightAt(uv[0], uv[1]); got != want {
			t.Errorf("WaterHeightAt(%v) = %v, want snow height %v", uv, got, want)
		}
	}
}
