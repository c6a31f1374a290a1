package telemetry

import (
	"math"
	"testing"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"empty slice", []float64{}, 0.5, 0},
		{"single element", []float64{5.0}, 0.5, 5.0},
		{"p0", []float64{1, 2, 3, 4, 5}, 0.0, 1.0},
		{"p100", []float64{1, 2, 3, 4, 5}, 1.0, 5.0},
		{"p50 odd", []float64{1, 2, 3, 4, 5}, 0.5, 2.5},
		{"p50 even", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.5, 5},
		{"p10", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.1, 1},
		{"p90", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.9, 9},
		{"p25 interpolates", []float64{0, 10}, 0.25, 0},
		{"p75 interpolates", []float64{0, 10}, 0.75, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.sorted, tt.p)
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}

func TestComputeHeightStats(t *testing.T) {
	values := []float64{9, 1, 5, 3, 7}
	hs := ComputeHeightStats(values)

	if math.Abs(hs.Mean-5) > 1e-9 {
		t.Errorf("mean = %v, want 5", hs.Mean)
	}
	// Population std of {1,3,5,7,9} is sqrt(8).
	if math.Abs(hs.Std-math.Sqrt(8)) > 1e-9 {
		t.Errorf("std = %v, want %v", hs.Std, math.Sqrt(8))
	}
	if hs.Min != 1 || hs.Max != 9 {
		t.Errorf("range = [%v, %v], want [1, 9]", hs.Min, hs.Max)
	}
	if !(hs.P10 <= hs.P50 && hs.P50 <= hs.P90) {
		t.Errorf("percentiles out of order: %v %v %v", hs.P10, hs.P50, hs.P90)
	}
	if hs.P50 < hs.Min || hs.P90 > hs.Max {
		t.Errorf("percentiles outside range: %+v", hs)
	}
}

func TestComputeHeightStatsEmpty(t *testing.T) {
	if hs := ComputeHeightStats(nil); hs != (HeightStats{}) {
		t.Errorf("empty input should return zeros, got %+v", hs)
	}
}
