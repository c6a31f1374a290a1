package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsLoad(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("loading defaults: %v", err)
	}
	if cfg.Grid.Width != 1024 || cfg.Grid.Height != 1024 {
		t.Errorf("grid = %dx%d, want 1024x1024", cfg.Grid.Width, cfg.Grid.Height)
	}
	if cfg.Mode != ModeWater {
		t.Errorf("mode = %q, want %q", cfg.Mode, ModeWater)
	}
	if len(cfg.Init.Layers) != 3 {
		t.Errorf("got %d init layers, want 3", len(cfg.Init.Layers))
	}
	if !cfg.Derived.GridPow2 {
		t.Error("1024x1024 grid should be flagged as power of two")
	}
	if cfg.Derived.Cells != 1024*1024 {
		t.Errorf("derived cells = %d", cfg.Derived.Cells)
	}
}

func TestLoadMergesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "override.yaml")
	data := []byte("grid:\n  width: 96\n  height: 64\nmode: wind\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Grid.Width != 96 || cfg.Grid.Height != 64 {
		t.Errorf("grid = %dx%d, want 96x64", cfg.Grid.Width, cfg.Grid.Height)
	}
	if cfg.Mode != ModeWind {
		t.Errorf("mode = %q, want wind", cfg.Mode)
	}
	if cfg.Derived.GridPow2 {
		t.Error("96x64 grid is not a power of two")
	}
	// Untouched sections keep their defaults
	if cfg.Hydraulic.CellsPerRun != 20 {
		t.Errorf("cells_per_run = %d, want default 20", cfg.Hydraulic.CellsPerRun)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"bad mode":      "mode: lava\n",
		"zero width":    "grid:\n  width: 0\n",
		"bad policy":    "hydraulic:\n  uphill_policy: fly\n",
		"bad strategy":  "slump:\n  strategy: random\n",
		"flow above 1":  "global_water:\n  flow_rate: 3\n",
		"negative flow": "global_water:\n  flow_rate: -0.1\n",
		"water decay":   "hydraulic:\n  decay_growth: 1\n",
		"wind decay":    "wind:\n  decay_growth: 0.5\n",
	}
	dir := t.TempDir()
	for name, body := range cases {
		path := filepath.Join(dir, "c.yaml")
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Grid.Width = 128
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if back.Grid.Width != 128 {
		t.Errorf("width = %d, want 128", back.Grid.Width)
	}
	if back.Wind.Angle != cfg.Wind.Angle {
		t.Errorf("wind angle = %v, want %v", back.Wind.Angle, cfg.Wind.Angle)
	}
}
