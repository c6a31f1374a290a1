package systems

import (
	"github.com/pthm-cable/erosion/config"
)

// recombineBatch is the row block size used when folding the erosion grid
// back into the terrain.
const recombineBatch = 32

// GlobalWater is the budget-driven multi-flow-direction water model.
// Rain drains a finite atmospheric budget; water on every cell is routed
// to all lower neighbours in proportion to their drop and carries
// sediment where the ground also falls.
type GlobalWater struct {
	Budget        float32 // Total rain the atmosphere holds when full
	RainPerTick   float32 // Max rain released per tick
	FlowRate      float32
	ErosionRate   float32
	SedimentRatio float32
	LooseMin      float32

	Atmosphere float32 // Rain still to fall

	drop    []float32 // Weighted total surface drop per cell
	erosion []Cell    // Signed deltas produced by routing
}

// NewGlobalWater builds the pass. Budgets are totals for the whole grid.
func NewGlobalWater(cfg config.GlobalWaterConfig, budget, rainPerTick float32) *GlobalWater {
	gw := &GlobalWater{
		Budget:        budget,
		RainPerTick:   rainPerTick,
		FlowRate:      float32(cfg.FlowRate),
		ErosionRate:   float32(cfg.ErosionRate),
		SedimentRatio: float32(cfg.SedimentRatio),
		LooseMin:      float32(cfg.LooseMin),
	}
	gw.Refill()
	return gw
}

// Refill restores the atmospheric budget.
func (gw *GlobalWater) Refill() {
	gw.Atmosphere = gw.Budget
}

func (gw *GlobalWater) ensure(n int) {
	if len(gw.drop) != n {
		gw.drop = make([]float32, n)
		gw.erosion = make([]Cell, n)
	}
}

// Rain releases up to RainPerTick from the atmosphere, spread evenly,
// and returns the amount released.
func (gw *GlobalWater) Rain(pool *Pool, g *TerrainGrid) float32 {
	if gw.Atmosphere <= 0 || len(g.Cells) == 0 {
		return 0
	}
	amount := min(gw.Atmosphere, gw.RainPerTick)
	gw.Atmosphere -= amount
	perCell := amount / float32(len(g.Cells))
	pool.ForIndex(len(g.Cells), func(i int, _ *Worker) {
		g.Cells[i].Water += perCell
	})
	return amount
}

// Flow routes water one step and moves the sediment it carries.
func (gw *GlobalWater) Flow(pool *Pool, g *TerrainGrid) {
	gw.ensure(len(g.Cells))

	pool.For2D(g.W, g.H, func(x, y, i int, _ *Worker) {
		gw.erosion[i] = Cell{}
		h := SurfaceHeight(g.Cells[i])
		var d float32
		for k, o := range neighbourOffsets {
			w := float32(1)
			if k >= 4 {
				w = diagonalWeight
			}
			d += max(h-SurfaceHeight(g.Cells[g.Index(x+o[0], y+o[1])]), 0) * w
		}
		gw.drop[i] = d
	})

	// Routing reads the terrain and writes deltas into the erosion grid,
	// so neighbours can overlap; keep it on one goroutine.
	For2DSingle(g.W, g.H, func(x, y, i int) {
		if gw.drop[i] <= 0 {
			return
		}
		src := g.Cells[i]
		h := SurfaceHeight(src)
		out := src.Water * gw.FlowRate
		if out <= 0 {
			return
		}
		for k, o := range neighbourOffsets {
			w := float32(1)
			if k >= 4 {
				w = diagonalWeight
			}
			j := g.Index(x+o[0], y+o[1])
			dst := g.Cells[j]
			fall := h - SurfaceHeight(dst)
			if fall <= 0 {
				continue
			}
			move := out * fall * w / gw.drop[i]
			gw.erosion[i].Water -= move
			gw.erosion[j].Water += move

			gw.carry(i, j, src, dst, move)
		}
	})

	pool.For2DBatched(g.W, g.H, recombineBatch, func(_, _, i int, _ *Worker) {
		c := &g.Cells[i]
		e := gw.erosion[i]
		c.Hard = max(c.Hard+e.Hard, 0)
		c.Loose = max(c.Loose+e.Loose, 0)
		c.Water = max(c.Water+e.Water, 0)
	})
}

// carry moves sediment from cell i to j alongside move units of water
// when the ground under the water also falls.
func (gw *GlobalWater) carry(i, j int, src, dst Cell, move float32) {
	groundDrop := Height(src) - Height(dst)
	if groundDrop <= 0 {
		return
	}
	amount := min(groundDrop*gw.ErosionRate, move*gw.SedimentRatio)

	loose := src.Loose + gw.erosion[i].Loose
	if loose > gw.LooseMin {
		amount = min(amount, loose)
		gw.erosion[i].Loose -= amount
	} else {
		amount = min(amount, max(src.Hard+gw.erosion[i].Hard, 0))
		gw.erosion[i].Hard -= amount
	}
	gw.erosion[j].Loose += amount
}

// Run rains and routes once.
func (gw *GlobalWater) Run(pool *Pool, g *TerrainGrid) {
	gw.Rain(pool, g)
	gw.Flow(pool, g)
}
