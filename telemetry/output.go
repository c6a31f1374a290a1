package telemetry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/pthm-cable/erosion/config"
)

// csvTable appends gocsv records to one file, writing the header once.
type csvTable[T any] struct {
	name   string
	file   *os.File
	header bool
}

func openTable[T any](dir, name string) (*csvTable[T], error) {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", name, err)
	}
	return &csvTable[T]{name: name, file: f}, nil
}

func (t *csvTable[T]) append(rec T) error {
	records := []T{rec}
	var err error
	if t.header {
		err = gocsv.MarshalWithoutHeaders(records, t.file)
	} else {
		err = gocsv.Marshal(records, t.file)
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", t.name, err)
	}
	t.header = true
	return nil
}

func (t *csvTable[T]) close() error {
	if t == nil {
		return nil
	}
	return t.file.Close()
}

// OutputManager writes a run's stats, perf and bookmark tables plus the
// config it ran with into one directory.
type OutputManager struct {
	dir       string
	stats     *csvTable[WindowStats]
	perf      *csvTable[PerfStatsCSV]
	bookmarks *csvTable[Bookmark]
}

// NewOutputManager creates dir and the CSV files inside it.
// Returns nil if dir is empty (output disabled); all methods accept a nil manager.
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}
	var err error
	if om.stats, err = openTable[WindowStats](dir, "stats.csv"); err != nil {
		return nil, err
	}
	if om.perf, err = openTable[PerfStatsCSV](dir, "perf.csv"); err != nil {
		om.Close()
		return nil, err
	}
	if om.bookmarks, err = openTable[Bookmark](dir, "bookmarks.csv"); err != nil {
		om.Close()
		return nil, err
	}
	return om, nil
}

// WriteConfig saves the run configuration as config.yaml.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteStats appends one terrain window to stats.csv.
func (om *OutputManager) WriteStats(stats WindowStats) error {
	if om == nil {
		return nil
	}
	return om.stats.append(stats)
}

// WritePerf appends one perf window to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd uint64) error {
	if om == nil {
		return nil
	}
	return om.perf.append(stats.ToCSV(windowEnd))
}

// WriteBookmark appends a bookmark to bookmarks.csv.
func (om *OutputManager) WriteBookmark(b Bookmark) error {
	if om == nil {
		return nil
	}
	return om.bookmarks.append(b)
}

// Close closes all tables.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	return errors.Join(om.stats.close(), om.perf.close(), om.bookmarks.close())
}
