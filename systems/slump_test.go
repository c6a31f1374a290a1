package systems

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pthm-cable/erosion/config"
)

func TestTransferAmount(t *testing.T) {
	cases := []struct {
		name                       string
		src, dst, thr, avail, rate float32
		want                       float32
	}{
		{"below threshold", 1.2, 1, 0.5, 10, 1, 0},
		{"uphill", 1, 3, 0.5, 10, 1, 0},
		{"excess", 3, 1, 0.5, 10, 0.5, 0.75},
		{"capped by avail", 10, 1, 0.5, 2, 0.5, 1},
		{"no material", 10, 1, 0.5, 0, 1, 0},
		{"negative avail", 10, 1, 0.5, -1, 1, 0},
	}
	for _, c := range cases {
		got := TransferAmount(c.src, c.dst, c.thr, c.avail, c.rate)
		if math.Abs(float64(got-c.want)) > 1e-6 {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}

// spikeGrid is a flat 4x4 slab of hard rock with a 5-high spike at (1,1).
func spikeGrid() *TerrainGrid {
	g := NewTerrainGrid(4, 4)
	for i := range g.Cells {
		g.Cells[i].Hard = 1
	}
	g.At(1, 1).Hard = 5
	return g
}

// maxStep is the largest height difference between any cell and its
// orthogonal neighbours.
func maxStep(g *TerrainGrid) float32 {
	var m float32
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			h := Height(*g.At(x, y))
			for _, o := range neighbourOffsets[:4] {
				m = max(m, h-Height(*g.At(x+o[0], y+o[1])))
			}
		}
	}
	return m
}

func TestCollapseFlattensSpike(t *testing.T) {
	pool := newTestPool(t, 1)
	g := spikeGrid()
	before := g.SolidMass()

	p := &SlumpPass{Kind: CollapseHard, Strategy: SlumpExhaustive, Threshold: 0.5, Rate: 0.1}
	prev := maxStep(g)
	for i := 0; i < 10; i++ {
		p.Run(pool, g, nil)
		step := maxStep(g)
		if step > prev+1e-5 {
			t.Fatalf("pass %d: max step grew %v -> %v", i, prev, step)
		}
		prev = step
	}
	if prev >= 4 {
		t.Errorf("spike did not shrink: max step %v", prev)
	}
	if after := g.SolidMass(); math.Abs(after-before) > 1e-4 {
		t.Errorf("mass %v -> %v", before, after)
	}
	checkTerrain(t, g)
}

func TestLooseSlumpIgnoresBareRock(t *testing.T) {
	pool := newTestPool(t, 1)
	g := spikeGrid()

	p := &SlumpPass{Kind: SlumpLoose, Strategy: SlumpExhaustive, Threshold: 0.5, Rate: 0.1}
	p.Run(pool, g, nil)

	if h := g.At(1, 1).Hard; h != 5 {
		t.Errorf("spike hard = %v, want 5", h)
	}
	for i, c := range g.Cells {
		if c.Loose != 0 {
			t.Fatalf("cell %d gained loose %v", i, c.Loose)
		}
	}
}

func TestCollapseSkipsCoveredRock(t *testing.T) {
	pool := newTestPool(t, 1)
	g := spikeGrid()
	g.At(1, 1).Loose = 1

	p := &SlumpPass{Kind: CollapseHard, Strategy: SlumpExhaustive, Threshold: 0.5, Rate: 0.1, LooseThreshold: 0.1}
	p.Run(pool, g, nil)

	if h := g.At(1, 1).Hard; h != 5 {
		t.Errorf("covered spike collapsed: hard = %v", h)
	}
}

func TestStochasticSlumpConservesMass(t *testing.T) {
	pool := newTestPool(t, 2)
	g := NewTerrainGrid(32, 32)
	randomTerrain(g, 5, 4)
	before := g.SolidMass()

	cfg := config.SlumpConfig{Strategy: "stochastic", Threshold: 0.1, Rate: 0.5, Samples: 5000}
	p := NewSlumpPass(cfg)
	rng := rand.New(rand.NewSource(8))
	for i := 0; i < 5; i++ {
		p.Run(pool, g, rng)
	}

	if after := g.SolidMass(); math.Abs(after-before) > 1e-2 {
		t.Errorf("mass %v -> %v", before, after)
	}
	checkTerrain(t, g)
}

func TestExhaustiveSlumpConservesMass(t *testing.T) {
	pool := newTestPool(t, 4)
	g := NewTerrainGrid(64, 48)
	randomTerrain(g, 6, 4)
	before := g.SolidMass()

	p := NewSlumpPass(config.SlumpConfig{Strategy: "exhaustive", Threshold: 0.1, Rate: 0.5})
	for i := 0; i < 5; i++ {
		p.Run(pool, g, nil)
	}

	if after := g.SolidMass(); math.Abs(after-before) > 1e-2 {
		t.Errorf("mass %v -> %v", before, after)
	}
	checkTerrain(t, g)
}

func TestExhaustiveIsDeterministicAcrossWorkers(t *testing.T) {
	a := NewTerrainGrid(40, 40)
	randomTerrain(a, 12, 6)
	b := NewTerrainGrid(40, 40)
	copy(b.Cells, a.Cells)

	cfg := config.CollapseConfig{Strategy: "exhaustive", Threshold: 0.3, Rate: 0.2, LooseThreshold: 10}
	NewCollapsePass(cfg).Run(newTestPool(t, 1), a, nil)
	NewCollapsePass(cfg).Run(newTestPool(t, 6), b, nil)

	for i := range a.Cells {
		if a.Cells[i] != b.Cells[i] {
			t.Fatalf("cell %d: %+v vs %+v", i, a.Cells[i], b.Cells[i])
		}
	}
}

func TestSlumpDisabled(t *testing.T) {
	p := NewSlumpPass(config.SlumpConfig{Strategy: "stochastic", Rate: 0.5, Samples: 0})
	if p.Enabled() {
		t.Error("stochastic pass with no samples should be disabled")
	}
	p = NewSlumpPass(config.SlumpConfig{Strategy: "exhaustive", Rate: 0})
	if p.Enabled() {
		t.Error("zero rate should be disabled")
	}
}

func BenchmarkSlumpExhaustive(b *testing.B) {
	pool := newTestPool(b, 0)
	g := NewTerrainGrid(256, 256)
	randomTerrain(g, 1, 10)
	p := &SlumpPass{Kind: SlumpLoose, Strategy: SlumpExhaustive, Threshold: 0.4, Rate: 0.05}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Run(pool, g, nil)
	}
}
