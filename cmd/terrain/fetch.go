package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	getter "github.com/hashicorp/go-getter"

	"github.com/pthm-cable/erosion/engine"
	"github.com/pthm-cable/erosion/systems"
	"github.com/pthm-cable/erosion/telemetry"
)

var errModeMismatch = errors.New("mode mismatch")

// terrainLoader is the part of the engine a load needs.
type terrainLoader interface {
	Kind() engine.PassKind
	Width() int
	Height() int
	Load(path string) error
}

// loadTerrain fetches src and loads it into eng. src may be a terrain file or a
// snapshot manifest (.json), in which case the terrain file beside it is fetched too.
// A manifest recorded for another mode or grid size is rejected before its terrain is fetched.
func loadTerrain(ctx context.Context, eng terrainLoader, src string) error {
	dir, err := os.MkdirTemp("", "terrain-load-*")
	if err != nil {
		return fmt.Errorf("create fetch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	local, err := fetchFile(ctx, src, dir)
	if err != nil {
		return err
	}

	if strings.HasSuffix(local, ".json") {
		snap, err := telemetry.LoadSnapshot(local)
		if err != nil {
			return err
		}
		slog.Info("loading snapshot",
			"source", src,
			"tick", snap.Tick,
			"seed", snap.Seed,
			"mode", snap.Mode,
		)
		if err := checkSnapshot(snap, eng); err != nil {
			return fmt.Errorf("snapshot %s: %w", src, err)
		}
		local, err = fetchFile(ctx, siblingSource(src, snap.Terrain), dir)
		if err != nil {
			return err
		}
	}

	return eng.Load(local)
}

// checkSnapshot rejects manifests whose grid would be misread by eng.
// Water and snow cells share one file layout, so the mode is the only guard.
func checkSnapshot(snap *telemetry.Snapshot, eng terrainLoader) error {
	if snap.Mode != eng.Kind().String() {
		return fmt.Errorf("%w: snapshot is %q, engine runs %q", errModeMismatch, snap.Mode, eng.Kind())
	}
	if snap.Width != eng.Width() || snap.Height != eng.Height() {
		return fmt.Errorf("%w: snapshot is %dx%d, grid is %dx%d",
			systems.ErrSizeMismatch, snap.Width, snap.Height, eng.Width(), eng.Height())
	}
	return nil
}

// fetchFile downloads a single file from any go-getter source into dir.
func fetchFile(ctx context.Context, src, dir string) (string, error) {
	pwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}

	name, _, _ := strings.Cut(path.Base(src), "?")
	if name == "" || name == "." || name == "/" {
		name = "terrain.ter"
	}
	dst := filepath.Join(dir, name)

	client := &getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Pwd:  pwd,
		Mode: getter.ClientModeFile,
	}
	if err := client.Get(); err != nil {
		return "", fmt.Errorf("fetch %s: %w", src, err)
	}
	return dst, nil
}

// siblingSource replaces the last path element of src with name, keeping any query.
func siblingSource(src, name string) string {
	base, query, hasQuery := strings.Cut(src, "?")
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[:i+1] + name
	} else {
		base = name
	}
	if hasQuery {
		return base + "?" + query
	}
	return base
}
