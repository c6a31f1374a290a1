package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SnapshotVersion is incremented when the manifest format changes.
const SnapshotVersion = 1

// Snapshot is the JSON manifest written next to a saved terrain file.
type Snapshot struct {
	Version int    `json:"version"`
	Seed    int64  `json:"seed"`
	Mode    string `json:"mode"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Tick    uint64 `json:"tick"`

	// Terrain is the grid file name, relative to the manifest.
	Terrain string `json:"terrain"`

	Bookmark *Bookmark `json:"bookmark,omitempty"`
}

// GridSaver persists the live grid to a path.
type GridSaver interface {
	Save(path string) error
}

// SaveSnapshot writes the grid and its manifest into dir.
// Returns the manifest path.
func SaveSnapshot(snapshot *Snapshot, grid GridSaver, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	name := fmt.Sprintf("snapshot_%d", snapshot.Tick)
	if snapshot.Bookmark != nil {
		sanitized := strings.ReplaceAll(string(snapshot.Bookmark.Type), " ", "_")
		name = fmt.Sprintf("snapshot_%d_%s", snapshot.Tick, sanitized)
	}

	snapshot.Terrain = name + ".ter"
	if err := grid.Save(filepath.Join(dir, snapshot.Terrain)); err != nil {
		return "", fmt.Errorf("save snapshot grid: %w", err)
	}

	path := filepath.Join(dir, name+".json")
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads a snapshot manifest from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", snapshot.Version, SnapshotVersion)
	}

	return &snapshot, nil
}
