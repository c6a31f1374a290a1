// Package telemetry provides terrain statistics, bookmarks, perf timing and CSV output.
package telemetry

import "github.com/pthm-cable/erosion/systems"

// Collector accumulates events within tick windows and produces WindowStats.
type Collector struct {
	windowTicks uint64

	// Current window tracking
	windowStartTick uint64
	lastSolid       float64
	haveSolid       bool

	// Event counters for current window
	resets  [systems.NumResetReasons]int
	rain    float64
	repairs int
}

// NewCollector creates a stats collector flushing every windowTicks ticks.
func NewCollector(windowTicks int) *Collector {
	if windowTicks < 1 {
		windowTicks = 1
	}
	return &Collector{windowTicks: uint64(windowTicks)}
}

// RecordReset records an agent reset.
func (c *Collector) RecordReset(r systems.ResetReason) {
	if int(r) < len(c.resets) {
		c.resets[r]++
	}
}

// RecordRain records rain released from the atmosphere.
func (c *Collector) RecordRain(amount float32) {
	c.rain += float64(amount)
}

// RecordRepairs records cells fixed by a sanitize pass.
func (c *Collector) RecordRepairs(n int) {
	c.repairs += n
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick uint64) bool {
	return currentTick-c.windowStartTick >= c.windowTicks
}

// TerrainSample is the state of the terrain at the end of a window.
type TerrainSample struct {
	Mode       string
	Heights    []float64 // Surface heights, possibly subsampled; sorted in place
	HardMass   float64
	LooseMass  float64
	WaterMass  float64
	SnowMass   float64
	PowderMass float64
	Atmosphere float64
	Agents     int
}

// Flush produces a WindowStats and resets counters for the next window.
func (c *Collector) Flush(currentTick uint64, sample TerrainSample) WindowStats {
	hs := ComputeHeightStats(sample.Heights)

	solid := sample.HardMass + sample.LooseMass
	var drift float64
	if c.haveSolid {
		drift = solid - c.lastSolid
	}

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		Mode:            sample.Mode,

		HeightMean: hs.Mean,
		HeightStd:  hs.Std,
		HeightMin:  hs.Min,
		HeightMax:  hs.Max,
		HeightP10:  hs.P10,
		HeightP50:  hs.P50,
		HeightP90:  hs.P90,

		HardMass:   sample.HardMass,
		LooseMass:  sample.LooseMass,
		WaterMass:  sample.WaterMass,
		SnowMass:   sample.SnowMass,
		PowderMass: sample.PowderMass,
		SolidDrift: drift,
		Atmosphere: sample.Atmosphere,

		Rain:             c.rain,
		Repairs:          c.repairs,
		ResetsDecay:      c.resets[systems.ResetDecay],
		ResetsPit:        c.resets[systems.ResetPit],
		ResetsDegenerate: c.resets[systems.ResetDegenerate],
		ResetsStalled:    c.resets[systems.ResetStalled],
		ResetsUphill:     c.resets[systems.ResetUphill],
		Agents:           sample.Agents,
	}
	for _, n := range c.resets {
		stats.Resets += n
	}

	// Reset for next window
	c.windowStartTick = currentTick
	c.lastSolid = solid
	c.haveSolid = true
	c.resets = [systems.NumResetReasons]int{}
	c.rain = 0
	c.repairs = 0

	return stats
}

// Rebase forgets the previous window's solid mass so the next window
// reports no drift. Call after the grid is replaced wholesale.
func (c *Collector) Rebase() {
	c.haveSolid = false
	c.lastSolid = 0
}
