package telemetry

import (
	"fmt"
	"log/slog"
	"math"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkMassDrift     BookmarkType = "mass_drift"
	BookmarkRepairs       BookmarkType = "repairs"
	BookmarkResetStorm    BookmarkType = "reset_storm"
	BookmarkAtmosphereDry BookmarkType = "atmosphere_dry"
	BookmarkSteadyRelief  BookmarkType = "steady_relief"
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	Tick        uint64       `csv:"tick"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"tick", b.Tick,
		"description", b.Description,
	)
}

// Thresholds for bookmark detection.
const (
	driftFraction   = 0.01  // Solid mass change per window, relative to total
	stormFactor     = 2.0   // Resets relative to the rolling average
	stormMinResets  = 10    // Ignore storms in tiny populations
	steadyFraction  = 0.001 // Relative change in height std for a steady window
	steadyWindows   = 5     // Consecutive steady windows before triggering
	minStormHistory = 3
)

// BookmarkDetector detects notable moments in a terrain run.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	// State tracking
	steadyCount int
	steadyFired bool
	lastStd     float64
	hadRain     bool
	dryFired    bool
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5
	}
	return &BookmarkDetector{
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	if b := bd.checkMassDrift(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkRepairs(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkResetStorm(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkAtmosphereDry(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkSteadyRelief(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	bd.addToHistory(stats)
	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []WindowStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

// checkMassDrift flags windows where hard+loose changed by more than
// driftFraction. Slump, collapse and agent transport all conserve solid
// mass, so drift means clamping or reset deposits are losing material.
func (bd *BookmarkDetector) checkMassDrift(stats WindowStats) *Bookmark {
	solid := stats.HardMass + stats.LooseMass
	if solid <= 0 || stats.SolidDrift == 0 {
		return nil
	}
	frac := math.Abs(stats.SolidDrift) / solid
	if frac <= driftFraction {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkMassDrift,
		Tick:        stats.WindowEndTick,
		Description: fmt.Sprintf("Solid mass changed by %.3g (%.2f%%) in one window", stats.SolidDrift, frac*100),
	}
}

func (bd *BookmarkDetector) checkRepairs(stats WindowStats) *Bookmark {
	if stats.Repairs == 0 {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkRepairs,
		Tick:        stats.WindowEndTick,
		Description: fmt.Sprintf("Sanitize repaired %d cell layers", stats.Repairs),
	}
}

func (bd *BookmarkDetector) checkResetStorm(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < minStormHistory {
		return nil
	}

	var total int
	for _, h := range history {
		total += h.Resets
	}
	avg := float64(total) / float64(len(history))
	if avg == 0 || stats.Resets < stormMinResets {
		return nil
	}

	if float64(stats.Resets) > avg*stormFactor {
		return &Bookmark{
			Type:        BookmarkResetStorm,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("%d resets is %.1fx average (%.0f)", stats.Resets, float64(stats.Resets)/avg, avg),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkAtmosphereDry(stats WindowStats) *Bookmark {
	if stats.Rain > 0 {
		bd.hadRain = true
	}
	if bd.dryFired || !bd.hadRain || stats.Atmosphere > 0 {
		return nil
	}
	bd.dryFired = true
	return &Bookmark{
		Type:        BookmarkAtmosphereDry,
		Tick:        stats.WindowEndTick,
		Description: fmt.Sprintf("Rain budget exhausted, %.3g water on the ground", stats.WaterMass),
	}
}

// checkSteadyRelief fires once when the height spread has stopped
// changing for steadyWindows consecutive windows.
func (bd *BookmarkDetector) checkSteadyRelief(stats WindowStats) *Bookmark {
	prev := bd.lastStd
	bd.lastStd = stats.HeightStd
	if bd.steadyFired || prev == 0 {
		return nil
	}

	if math.Abs(stats.HeightStd-prev)/prev < steadyFraction {
		bd.steadyCount++
	} else {
		bd.steadyCount = 0
	}

	if bd.steadyCount == steadyWindows {
		bd.steadyFired = true
		return &Bookmark{
			Type:        BookmarkSteadyRelief,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Height std steady at %.4g over %d windows", stats.HeightStd, steadyWindows),
		}
	}
	return nil
}
