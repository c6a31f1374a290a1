package systems

import (
	"math"
	"math/rand"

	"github.com/pthm-cable/erosion/config"
)

// TransferAmount is the mass moved from a source to a destination column:
// the height excess over threshold, capped by what the source can give,
// scaled by rate.
func TransferAmount(srcH, dstH, threshold, avail, rate float32) float32 {
	return clampf(srcH-dstH-threshold, 0, max(avail, 0)) * rate
}

// SlumpStrategy selects how transfers are evaluated.
type SlumpStrategy uint8

const (
	// Sample random cells and pull from their neighbours.
	SlumpStochastic SlumpStrategy = iota
	// Evaluate every cell for each of the 8 offsets.
	SlumpExhaustive
)

// ParseSlumpStrategy maps a config string to a strategy.
func ParseSlumpStrategy(s string) SlumpStrategy {
	if s == "exhaustive" {
		return SlumpExhaustive
	}
	return SlumpStochastic
}

// SlumpField is the per-cell input of a slump pass, captured before any
// transfer so kernels only read it.
type SlumpField struct {
	Torus
	Src   []float32 // Surface height when the cell gives material
	Dst   []float32 // Surface height when the cell receives material
	Avail []float32 // Material the cell can give
	Wet   []float32 // Rate multiplier
}

// NewSlumpField allocates a field for a w×h grid.
func NewSlumpField(w, h int) *SlumpField {
	n := w * h
	return &SlumpField{
		Torus: NewTorus(w, h),
		Src:   make([]float32, n),
		Dst:   make([]float32, n),
		Avail: make([]float32, n),
		Wet:   make([]float32, n),
	}
}

// Stochastic accumulates transfers for samples randomly chosen destination
// cells into diff. Each sample pulls from all 8 neighbours in turn, and the
// destination height rises with every transfer it receives. Source
// availability accounts for earlier outflow recorded in diff, so the
// committed result never drives a layer negative.
// Runs on the calling goroutine; diff is shared.
func (f *SlumpField) Stochastic(diff []float32, samples int, threshold, rate float32, rng *rand.Rand) {
	diag := threshold * math.Sqrt2
	for s := 0; s < samples; s++ {
		x := rng.Intn(f.W)
		y := rng.Intn(f.H)
		p := f.Index(x, y)
		h := f.Dst[p] + diff[p]

		for k, o := range neighbourOffsets {
			thr := threshold
			if k >= 4 {
				thr = diag
			}
			from := f.Index(x+o[0], y+o[1])
			remaining := f.Avail[from] + diff[from]
			amt := TransferAmount(f.Src[from]+diff[from], h, thr, remaining, min(rate*f.Wet[from], 1))
			if amt > 0 {
				diff[from] -= amt
				diff[p] += amt
				h += amt
			}
		}
	}
}

// Exhaustive accumulates transfers for every cell and all 8 offsets into
// diff. Per offset each source may give at most an eighth of its
// availability, so total outflow stays within it. amt is scratch of grid
// size. Deterministic for a given field.
func (f *SlumpField) Exhaustive(pool *Pool, diff, amt []float32, threshold, rate float32) {
	diag := threshold * math.Sqrt2
	for k, o := range neighbourOffsets {
		thr := threshold
		if k >= 4 {
			thr = diag
		}
		ox, oy := o[0], o[1]

		// amt[p] is what p receives from p+o.
		pool.For2D(f.W, f.H, func(x, y, p int, _ *Worker) {
			from := f.Index(x+ox, y+oy)
			amt[p] = TransferAmount(f.Src[from], f.Dst[p], thr, f.Avail[from]/8, min(rate*f.Wet[from], 1))
		})
		// Cell i gains amt[i] and loses what i-o took from it.
		pool.For2D(f.W, f.H, func(x, y, i int, _ *Worker) {
			diff[i] += amt[i] - amt[f.Index(x-ox, y-oy)]
		})
	}
}

// SlumpKind selects which layers a slump pass moves.
type SlumpKind uint8

const (
	SlumpLoose   SlumpKind = iota // Loose material slides over anything
	CollapseHard                  // Bare rock falls, landing as loose
)

// SlumpPass redistributes material on a TerrainGrid down slopes steeper
// than Threshold.
type SlumpPass struct {
	Kind           SlumpKind
	Strategy       SlumpStrategy
	Threshold      float32
	Rate           float32
	Samples        int
	WaterGain      float32
	LooseThreshold float32 // CollapseHard only

	field *SlumpField
	diff  []float32
	amt   []float32
}

// NewSlumpPass builds a loose-material slump pass.
func NewSlumpPass(cfg config.SlumpConfig) *SlumpPass {
	return &SlumpPass{
		Kind:      SlumpLoose,
		Strategy:  ParseSlumpStrategy(cfg.Strategy),
		Threshold: float32(cfg.Threshold),
		Rate:      float32(cfg.Rate),
		Samples:   cfg.Samples,
		WaterGain: float32(cfg.WaterGain),
	}
}

// NewCollapsePass builds a hard-material collapse pass.
func NewCollapsePass(cfg config.CollapseConfig) *SlumpPass {
	return &SlumpPass{
		Kind:           CollapseHard,
		Strategy:       ParseSlumpStrategy(cfg.Strategy),
		Threshold:      float32(cfg.Threshold),
		Rate:           float32(cfg.Rate),
		Samples:        cfg.Samples,
		LooseThreshold: float32(cfg.LooseThreshold),
	}
}

// Enabled reports whether the pass does any work.
func (s *SlumpPass) Enabled() bool {
	if s.Rate <= 0 {
		return false
	}
	return s.Strategy == SlumpExhaustive || s.Samples > 0
}

func (s *SlumpPass) ensure(w, h int) {
	if s.field != nil && s.field.W == w && s.field.H == h {
		return
	}
	s.field = NewSlumpField(w, h)
	s.diff = make([]float32, w*h)
	s.amt = make([]float32, w*h)
}

// Run applies one slump pass to g.
func (s *SlumpPass) Run(pool *Pool, g *TerrainGrid, rng *rand.Rand) {
	if !s.Enabled() {
		return
	}
	s.ensure(g.W, g.H)
	f := s.field

	pool.ForIndex(len(g.Cells), func(i int, _ *Worker) {
		c := g.Cells[i]
		h := Height(c)
		f.Src[i] = h
		f.Dst[i] = h
		f.Wet[i] = 1 + c.MovingWater*s.WaterGain
		switch s.Kind {
		case CollapseHard:
			f.Avail[i] = 0
			if c.Loose <= s.LooseThreshold {
				f.Avail[i] = c.Hard
			}
		default:
			f.Avail[i] = c.Loose
		}
		s.diff[i] = 0
	})

	if s.Strategy == SlumpExhaustive {
		f.Exhaustive(pool, s.diff, s.amt, s.Threshold, s.Rate)
	} else {
		f.Stochastic(s.diff, s.Samples, s.Threshold, s.Rate, rng)
	}

	s.commit(pool, g)
}

// commit applies the diff buffer. Writes are index-disjoint.
func (s *SlumpPass) commit(pool *Pool, g *TerrainGrid) {
	pool.ForIndex(len(g.Cells), func(i int, _ *Worker) {
		d := s.diff[i]
		if d == 0 {
			return
		}
		c := &g.Cells[i]
		if s.Kind == CollapseHard && d < 0 {
			c.Hard = max(c.Hard+d, 0)
			return
		}
		c.Loose = max(c.Loose+d, 0)
	})
}
