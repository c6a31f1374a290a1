// Command terrain runs the erosion engine headless.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pthm-cable/erosion/config"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	mode := flag.String("mode", "", "Erosion model: water, wind or global_water (empty = use config)")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	maxTicks := flag.Uint64("max-ticks", 0, "Stop after N ticks (0 = until interrupted)")
	load := flag.String("load", "", "Terrain file or snapshot manifest to start from (local path or go-getter URL)")
	save := flag.String("save", "", "Save terrain to this path on exit")
	autosaveEvery := flag.Uint64("autosave-every", 0, "Also save to -save every N ticks (0 = only on exit)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	snapshotDir := flag.String("snapshot-dir", "", "Directory for bookmark snapshots")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	statsEvery := flag.Int("stats-every", 0, "Ticks per stats window (0 = use config)")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	if *mode != "" {
		cfg.Mode = *mode
	}
	if *statsEvery > 0 {
		cfg.Telemetry.StatsEvery = *statsEvery
	}

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := options{
		Seed:          rngSeed,
		MaxTicks:      *maxTicks,
		Load:          *load,
		Save:          *save,
		AutosaveEvery: *autosaveEvery,
		OutputDir:     *outputDir,
		SnapshotDir:   *snapshotDir,
		LogStats:      *logStats,
	}

	if err := run(ctx, cfg, opts); err != nil {
		slog.Error("simulation failed", "error", err)
		stop()
		os.Exit(1)
	}
}
