package systems

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pthm-cable/erosion/config"
)

func eastWind() *Wind {
	return NewWind(config.Default().Wind, 1, 0)
}

func TestLeeFactor(t *testing.T) {
	wd := eastWind()
	if f := wd.LeeFactor(1, 0); f != 1 {
		t.Errorf("downwind normal = %v, want 1", f)
	}
	if f := wd.LeeFactor(-1, 0); f != 0 {
		t.Errorf("upwind normal = %v, want 0", f)
	}
	if f := wd.LeeFactor(0, 0); f != 0 {
		t.Errorf("flat = %v, want 0", f)
	}
}

// ridgeSnow builds a 32x8 ridge along y: rising to x=16, falling after.
func ridgeSnow() *SnowGrid {
	s := NewSnowGrid(32, 8)
	for y := 0; y < s.H; y++ {
		for x := 0; x < s.W; x++ {
			h := x
			if x > 16 {
				h = 32 - x
			}
			s.At(x, y).Rock = float32(h)
		}
	}
	return s
}

func TestPowderFavoursLee(t *testing.T) {
	pool := newTestPool(t, 2)
	s := ridgeSnow()
	wd := eastWind()

	wd.DepositPowder(pool, s)

	windward := s.At(8, 4).Powder
	lee := s.At(24, 4).Powder
	if math.Abs(float64(windward-wd.PowderRate)) > 1e-6 {
		t.Errorf("windward powder = %v, want base rate %v", windward, wd.PowderRate)
	}
	if lee <= windward {
		t.Errorf("lee powder %v not above windward %v", lee, windward)
	}
}

func TestCompactPowder(t *testing.T) {
	pool := newTestPool(t, 2)
	s := NewSnowGrid(16, 16)
	for i := range s.Cells {
		s.Cells[i].Powder = 2
	}
	s.At(3, 3).Powder = 0.1

	wd := eastWind()
	wd.CompactChance = 1
	wd.CompactMinDepth = 0.5
	wd.CompactRate = 0.5
	wd.CompactDensity = 0.5

	wd.CompactPowder(pool, s)

	c := s.At(0, 0)
	if !near(c.Powder, 1.25) || !near(c.Snow, 0.375) {
		t.Errorf("compacted cell = %+v, want powder 1.25 snow 0.375", *c)
	}
	if c := s.At(3, 3); c.Powder != 0.1 || c.Snow != 0 {
		t.Errorf("shallow powder compacted: %+v", *c)
	}
}

func TestSlumpPowderConserves(t *testing.T) {
	pool := newTestPool(t, 4)
	s := NewSnowGrid(32, 32)
	rng := rand.New(rand.NewSource(17))
	for i := range s.Cells {
		s.Cells[i].Rock = rng.Float32() * 3
		s.Cells[i].Powder = rng.Float32() * 2
	}
	before := s.SnowMass()

	wd := eastWind()
	for i := 0; i < 5; i++ {
		wd.SlumpPowder(pool, s)
	}

	if after := s.SnowMass(); math.Abs(after-before) > 1e-2 {
		t.Errorf("snow mass %v -> %v", before, after)
	}
	for i, c := range s.Cells {
		if c.Powder < 0 {
			t.Fatalf("cell %d powder %v", i, c.Powder)
		}
	}
}

func TestWindAgentInvariants(t *testing.T) {
	pool := newTestPool(t, 2)
	s := ridgeSnow()
	wd := eastWind()
	for i := 0; i < 5; i++ {
		wd.DepositPowder(pool, s)
	}
	rng := rand.New(rand.NewSource(3))
	agents := newAgents(100, s.W, s.H, wd.InitialDecay, rng)

	for tick := 0; tick < 20; tick++ {
		for _, st := range agents {
			a := st.view()
			if wd.RunAgent(s, a, rng) != ResetNone {
				wd.ResetAgent(s, a, rng)
			}
			if st.sed.Amount < 0 || st.sed.Capacity < 0 {
				t.Fatalf("tick %d: carry %v capacity %v", tick, st.sed.Amount, st.sed.Capacity)
			}
		}
	}
	for i, c := range s.Cells {
		if c.Powder < 0 || c.Snow < 0 || math.IsNaN(float64(c.Powder)) {
			t.Fatalf("cell %d invalid: %+v", i, c)
		}
	}
}
