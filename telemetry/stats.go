package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated terrain statistics for a window of ticks.
type WindowStats struct {
	WindowStartTick uint64 `csv:"-"`
	WindowEndTick   uint64 `csv:"window_end"`
	Mode            string `csv:"mode"`

	// Surface height distribution at window end
	HeightMean float64 `csv:"height_mean"`
	HeightStd  float64 `csv:"height_std"`
	HeightMin  float64 `csv:"height_min"`
	HeightMax  float64 `csv:"height_max"`
	HeightP10  float64 `csv:"height_p10"`
	HeightP50  float64 `csv:"height_p50"`
	HeightP90  float64 `csv:"height_p90"`

	// Material pools (for conservation checks)
	HardMass   float64 `csv:"hard_mass"`
	LooseMass  float64 `csv:"loose_mass"`
	WaterMass  float64 `csv:"water_mass"`
	SnowMass   float64 `csv:"snow_mass"`
	PowderMass float64 `csv:"powder_mass"`
	SolidDrift float64 `csv:"solid_drift"` // Change in hard+loose since the previous window
	Atmosphere float64 `csv:"atmosphere"`  // Rain left in the budget

	// Events during window
	Rain             float64 `csv:"rain"`
	Repairs          int     `csv:"repairs"` // Cells fixed by Sanitize
	Resets           int     `csv:"resets"`
	ResetsDecay      int     `csv:"resets_decay"`
	ResetsPit        int     `csv:"resets_pit"`
	ResetsDegenerate int     `csv:"resets_degenerate"`
	ResetsStalled    int     `csv:"resets_stalled"`
	ResetsUphill     int     `csv:"resets_uphill"`
	Agents           int     `csv:"agents"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	switch {
	case p <= 0:
		return sorted[0]
	case p >= 1:
		return sorted[len(sorted)-1]
	}
	return stat.Quantile(p, stat.LinInterp, sorted, nil)
}

// HeightStats summarizes a set of heights.
type HeightStats struct {
	Mean, Std     float64
	Min, Max      float64
	P10, P50, P90 float64
}

// ComputeHeightStats calculates mean, spread and percentiles of values.
// values is sorted in place.
func ComputeHeightStats(values []float64) HeightStats {
	if len(values) == 0 {
		return HeightStats{}
	}
	var hs HeightStats
	hs.Mean, hs.Std = stat.PopMeanStdDev(values, nil)
	hs.Min = floats.Min(values)
	hs.Max = floats.Max(values)

	sort.Float64s(values)
	hs.P10 = Percentile(values, 0.10)
	hs.P50 = Percentile(values, 0.50)
	hs.P90 = Percentile(values, 0.90)
	return hs
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("window_start", s.WindowStartTick),
		slog.Uint64("window_end", s.WindowEndTick),
		slog.String("mode", s.Mode),
		slog.Float64("height_mean", s.HeightMean),
		slog.Float64("height_std", s.HeightStd),
		slog.Float64("height_min", s.HeightMin),
		slog.Float64("height_max", s.HeightMax),
		slog.Float64("height_p50", s.HeightP50),
		slog.Float64("hard_mass", s.HardMass),
		slog.Float64("loose_mass", s.LooseMass),
		slog.Float64("water_mass", s.WaterMass),
		slog.Float64("snow_mass", s.SnowMass),
		slog.Float64("powder_mass", s.PowderMass),
		slog.Float64("solid_drift", s.SolidDrift),
		slog.Float64("atmosphere", s.Atmosphere),
		slog.Float64("rain", s.Rain),
		slog.Int("repairs", s.Repairs),
		slog.Int("resets", s.Resets),
		slog.Int("agents", s.Agents),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndTick,
		"mode", s.Mode,
		"height_mean", s.HeightMean,
		"height_std", s.HeightStd,
		"height_min", s.HeightMin,
		"height_max", s.HeightMax,
		"height_p10", s.HeightP10,
		"height_p50", s.HeightP50,
		"height_p90", s.HeightP90,
		"hard_mass", s.HardMass,
		"loose_mass", s.LooseMass,
		"water_mass", s.WaterMass,
		"snow_mass", s.SnowMass,
		"powder_mass", s.PowderMass,
		"solid_drift", s.SolidDrift,
		"atmosphere", s.Atmosphere,
		"rain", s.Rain,
		"repairs", s.Repairs,
		"resets", s.Resets,
		"resets_decay", s.ResetsDecay,
		"resets_pit", s.ResetsPit,
		"resets_degenerate", s.ResetsDegenerate,
		"resets_stalled", s.ResetsStalled,
		"resets_uphill", s.ResetsUphill,
		"agents", s.Agents,
	)
}
