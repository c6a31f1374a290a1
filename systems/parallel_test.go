package systems

import (
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/pthm-cable/erosion/config"
)

func checkVisits(t *testing.T, name string, visits []int32) {
	t.Helper()
	for i, v := range visits {
		if v != 1 {
			t.Fatalf("%s: index %d visited %d times", name, i, v)
		}
	}
}

func TestPoolVisitsEachIndexOnce(t *testing.T) {
	for _, workers := range []int{1, 3, 8} {
		p := newTestPool(t, workers)
		for _, size := range [][2]int{{5, 3}, {64, 17}, {33, 100}} {
			w, h := size[0], size[1]

			visits := make([]int32, w*h)
			p.For2D(w, h, func(x, y, i int, _ *Worker) {
				if i != y*w+x {
					t.Errorf("For2D: index %d for (%d,%d)", i, x, y)
				}
				atomic.AddInt32(&visits[i], 1)
			})
			checkVisits(t, "For2D", visits)

			visits = make([]int32, w*h)
			p.ForIndex(w*h, func(i int, _ *Worker) {
				atomic.AddInt32(&visits[i], 1)
			})
			checkVisits(t, "ForIndex", visits)

			visits = make([]int32, w*h)
			p.For2DBatched(w, h, 8, func(_, _, i int, _ *Worker) {
				atomic.AddInt32(&visits[i], 1)
			})
			checkVisits(t, "For2DBatched", visits)
		}
	}
}

func TestPoolWorkerState(t *testing.T) {
	p := newTestPool(t, 4)
	if p.Workers() != 4 {
		t.Fatalf("Workers() = %d", p.Workers())
	}
	var bad int32
	p.ForIndex(1000, func(_ int, w *Worker) {
		if w.ID < 0 || w.ID >= 4 || w.Rng == nil {
			atomic.StoreInt32(&bad, 1)
		}
	})
	if bad != 0 {
		t.Error("callback received an invalid worker")
	}
}

func TestFor2DSingleOrder(t *testing.T) {
	next := 0
	For2DSingle(7, 5, func(x, y, i int) {
		if i != next || i != y*7+x {
			t.Fatalf("visit %d got index %d at (%d,%d)", next, i, x, y)
		}
		next++
	})
	if next != 35 {
		t.Errorf("visited %d cells, want 35", next)
	}
}

func TestPoolCloseIdempotent(t *testing.T) {
	p := NewPool(2, 1)
	p.ForIndex(100, func(int, *Worker) {})
	p.Close()
	p.Close()

	var nilPool *Pool
	nilPool.Close()
}

func BenchmarkParticlePass(b *testing.B) {
	cfg := config.Default()
	pool := newTestPool(b, 0)
	rng := rand.New(rand.NewSource(1))
	g := NewTerrainGrid(256, 256)
	NewInitializer(cfg.Init).InitTerrain(pool, g, rng)

	hy := NewHydraulic(cfg.Hydraulic)
	agents := newAgents(1000, g.W, g.H, hy.InitialDecay, rng)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, st := range agents {
			a := st.view()
			if hy.RunAgent(g, a, rng) != ResetNone {
				hy.ResetAgent(g, a, rng)
			}
		}
	}
}
