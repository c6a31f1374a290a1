package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pthm-cable/erosion/config"
	"github.com/pthm-cable/erosion/engine"
	"github.com/pthm-cable/erosion/telemetry"
)

// bookmarkHistory is how many stats windows the bookmark detector remembers.
const bookmarkHistory = 10

// options holds the host settings taken from flags.
type options struct {
	Seed          int64
	MaxTicks      uint64
	Load          string
	Save          string
	AutosaveEvery uint64
	OutputDir     string
	SnapshotDir   string
	LogStats      bool
}

type runner struct {
	eng       *engine.Engine
	opts      options
	output    *telemetry.OutputManager
	bookmarks *telemetry.BookmarkDetector
	tick      uint64
}

// run drives the engine until ctx is cancelled or MaxTicks is reached,
// then performs the final save.
func run(ctx context.Context, cfg *config.Config, opts options) error {
	eng, err := engine.New(cfg, opts.Seed, slog.Default())
	if err != nil {
		return err
	}
	defer eng.Close()

	output, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return err
	}
	defer output.Close()

	if err := output.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config", "error", err)
	}

	r := &runner{
		eng:       eng,
		opts:      opts,
		output:    output,
		bookmarks: telemetry.NewBookmarkDetector(bookmarkHistory),
	}

	if opts.Load != "" {
		if err := loadTerrain(ctx, eng, opts.Load); err != nil {
			return err
		}
	} else {
		eng.InitTerrain()
	}

	slog.Info("starting simulation",
		"seed", opts.Seed,
		"mode", eng.Kind().String(),
		"max_ticks", opts.MaxTicks,
		"autosave_every", opts.AutosaveEvery,
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("interrupted", "tick", r.tick)
			return r.finish()
		default:
		}

		if opts.MaxTicks > 0 && r.tick >= opts.MaxTicks {
			slog.Info("max ticks reached", "tick", r.tick)
			return r.finish()
		}

		r.tick++
		eng.ModifyTerrain(r.tick)
		r.flushTelemetry()

		if opts.AutosaveEvery > 0 && opts.Save != "" && r.tick%opts.AutosaveEvery == 0 {
			// A failed autosave must not stop the simulation.
			if err := eng.Save(opts.Save); err != nil {
				slog.Error("autosave failed", "tick", r.tick, "path", opts.Save, "error", err)
			} else {
				slog.Info("autosaved", "tick", r.tick, "path", opts.Save)
			}
		}
	}
}

// finish writes the final save, if one was requested.
func (r *runner) finish() error {
	if r.opts.Save == "" {
		return nil
	}
	if err := r.eng.Save(r.opts.Save); err != nil {
		return fmt.Errorf("final save: %w", err)
	}
	slog.Info("terrain saved", "tick", r.tick, "path", r.opts.Save)
	return nil
}

// flushTelemetry writes the stats window the engine just closed and handles bookmarks.
func (r *runner) flushTelemetry() {
	stats, fresh := r.eng.Stats()
	if !fresh {
		return
	}
	perfStats := r.eng.Perf()

	if r.opts.LogStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if err := r.output.WriteStats(stats); err != nil {
		slog.Error("failed to write stats", "error", err)
	}
	if err := r.output.WritePerf(perfStats, stats.WindowEndTick); err != nil {
		slog.Error("failed to write perf", "error", err)
	}

	for _, bm := range r.bookmarks.Check(stats) {
		if r.opts.LogStats {
			bm.LogBookmark()
		}
		if err := r.output.WriteBookmark(bm); err != nil {
			slog.Error("failed to write bookmark", "error", err)
		}
		if r.opts.SnapshotDir != "" {
			r.saveSnapshot(&bm)
		}
	}
}

// saveSnapshot writes the grid and a manifest describing it.
func (r *runner) saveSnapshot(bookmark *telemetry.Bookmark) {
	snapshot := &telemetry.Snapshot{
		Version:  telemetry.SnapshotVersion,
		Seed:     r.eng.Seed(),
		Mode:     r.eng.Kind().String(),
		Width:    r.eng.Width(),
		Height:   r.eng.Height(),
		Tick:     r.tick,
		Bookmark: bookmark,
	}

	path, err := telemetry.SaveSnapshot(snapshot, r.eng, r.opts.SnapshotDir)
	if err != nil {
		slog.Error("failed to save snapshot", "error", err)
		return
	}

	slog.Info("snapshot saved", "path", path, "tick", r.tick)
}
