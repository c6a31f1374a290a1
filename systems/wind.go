package systems

import (
	"math"
	"math/rand"

	"github.com/pthm-cable/erosion/config"
)

// Wind moves powder snow over a SnowGrid. Powder settles preferentially on
// lee slopes, wind agents scour windward faces and drop their load where
// the flow slows, and settled powder slumps and compacts into snow.
type Wind struct {
	DirX, DirY float32 // Unit wind direction
	Speed      float32

	CellsPerRun     int
	PowderRate      float32
	LeeWeight       float32
	Gravity         float32
	Momentum        float32
	Turbulence      float32
	CapacityFactor  float32
	PickupRate      float32
	AbrasionRatio   float32
	DepositRate     float32
	DecayGrowth     float32
	InitialDecay    float32
	MaxResetDeposit float32

	SlumpThreshold float32
	SlumpDepth     float32
	SlumpRate      float32

	CompactChance   float32
	CompactMinDepth float32
	CompactRate     float32
	CompactDensity  float32

	field *SlumpField
	diff  []float32
	amt   []float32
}

// NewWind builds the pass. dirX, dirY is the unit wind direction.
func NewWind(cfg config.WindConfig, dirX, dirY float32) *Wind {
	return &Wind{
		DirX:            dirX,
		DirY:            dirY,
		Speed:           float32(cfg.Speed),
		CellsPerRun:     cfg.CellsPerRun,
		PowderRate:      float32(cfg.PowderRate),
		LeeWeight:       float32(cfg.LeeWeight),
		Gravity:         float32(cfg.Gravity),
		Momentum:        float32(cfg.Momentum),
		Turbulence:      float32(cfg.Turbulence),
		CapacityFactor:  float32(cfg.CapacityFactor),
		PickupRate:      float32(cfg.PickupRate),
		AbrasionRatio:   float32(cfg.AbrasionRatio),
		DepositRate:     float32(cfg.DepositRate),
		DecayGrowth:     float32(cfg.DecayGrowth),
		InitialDecay:    float32(cfg.InitialDecay),
		MaxResetDeposit: float32(cfg.MaxResetDeposit),
		SlumpThreshold:  float32(cfg.SlumpThreshold),
		SlumpDepth:      float32(cfg.SlumpDepth),
		SlumpRate:       float32(cfg.SlumpRate),
		CompactChance:   float32(cfg.CompactChance),
		CompactMinDepth: float32(cfg.CompactMinDepth),
		CompactRate:     float32(cfg.CompactRate),
		CompactDensity:  float32(cfg.CompactDensity),
	}
}

func (wd *Wind) ensure(w, h int) {
	if wd.field != nil && wd.field.W == w && wd.field.H == h {
		return
	}
	wd.field = NewSlumpField(w, h)
	wd.diff = make([]float32, w*h)
	wd.amt = make([]float32, w*h)
}

// surfaceNormal returns the unit normal of s at (x, y) from central differences.
func surfaceNormal(s *SnowGrid, x, y int) (float32, float32, float32) {
	hw := SnowHeight(s.Cells[s.Index(x-1, y)])
	he := SnowHeight(s.Cells[s.Index(x+1, y)])
	hn := SnowHeight(s.Cells[s.Index(x, y-1)])
	hs := SnowHeight(s.Cells[s.Index(x, y+1)])
	nx, ny, nz, _ := normalize3(hw-he, hn-hs, 2)
	return nx, ny, nz
}

// LeeFactor is how strongly the slope with horizontal normal (nx, ny)
// faces away from the wind. Zero on windward faces and flat ground.
func (wd *Wind) LeeFactor(nx, ny float32) float32 {
	return max(0, wd.DirX*nx+wd.DirY*ny)
}

// DepositPowder adds fresh powder everywhere, more on lee slopes.
// Amounts are computed from the pre-deposit surface, then applied.
func (wd *Wind) DepositPowder(pool *Pool, s *SnowGrid) {
	if wd.PowderRate <= 0 {
		return
	}
	wd.ensure(s.W, s.H)
	pool.For2D(s.W, s.H, func(x, y, i int, _ *Worker) {
		nx, ny, _ := surfaceNormal(s, x, y)
		wd.amt[i] = wd.PowderRate * (1 + wd.LeeWeight*wd.LeeFactor(nx, ny))
	})
	pool.ForIndex(len(s.Cells), func(i int, _ *Worker) {
		s.Cells[i].Powder += wd.amt[i]
	})
}

// RunAgent advances one wind agent for up to CellsPerRun cells.
func (wd *Wind) RunAgent(s *SnowGrid, a Agent, rng *rand.Rand) ResetReason {
	sed := a.Sed
	flow := a.Flow

	sed.Decay *= wd.DecayGrowth
	if sed.Decay >= 1 {
		return ResetDecay
	}

	cx, cy := agentCell(a, s.W, s.H)
	startX, startY := cx, cy

	for step := 0; step < wd.CellsPerRun; step++ {
		cell := &s.Cells[s.Index(cx, cy)]
		h0 := SnowHeight(*cell)

		// Gravity pulls the flow downhill; flat ground contributes nothing.
		fx, fy, _, ok := fallVector(h0,
			SnowHeight(s.Cells[s.Index(cx, cy-1)]),
			SnowHeight(s.Cells[s.Index(cx, cy+1)]),
			SnowHeight(s.Cells[s.Index(cx-1, cy)]),
			SnowHeight(s.Cells[s.Index(cx+1, cy)]),
		)
		if !ok {
			fx, fy = 0, 0
		}

		dx := flow.X*wd.Momentum + wd.DirX + fx*wd.Gravity
		dy := flow.Y*wd.Momentum + wd.DirY + fy*wd.Gravity
		if wd.Turbulence > 0 {
			dx += (rng.Float32()*2 - 1) * wd.Turbulence
			dy += (rng.Float32()*2 - 1) * wd.Turbulence
		}
		l := float32(math.Sqrt(float64(dx*dx + dy*dy)))
		if l == 0 || l != l {
			return ResetDegenerate
		}
		flow.X, flow.Y, flow.Z = dx/l, dy/l, 0

		px, py := nudgeFromEdge(a.Pos.X, a.Pos.Y, flow.X, flow.Y)
		ex, ey, nx, ny := TileExit(px, py, flow.X, flow.Y, cx, cy)
		if nx == cx && ny == cy {
			return ResetStalled
		}

		next := &s.Cells[s.Index(nx, ny)]
		rise := SnowHeight(*next) - h0

		// Air speeds up over rising ground and stalls in the lee.
		target := wd.Speed * clampf(1+rise, 0.1, 2)
		flow.Speed = 0.5*flow.Speed + 0.5*target

		cross := dist2(px, py, ex, ey) / math.Sqrt2
		sed.Capacity = max(0, wd.CapacityFactor*flow.Speed*(1-sed.Decay))

		if excess := sed.Amount - sed.Capacity; excess > 0 || rise < 0 {
			drop := min(max(excess, 0)*wd.DepositRate*cross, sed.Amount)
			if rise < 0 {
				// Sheltered: drop a share of the load even under capacity.
				drop = max(drop, min(sed.Amount, -rise*wd.DepositRate*cross))
			}
			next.Powder += drop
			sed.Amount -= drop
		} else if rise > 0 {
			lift := min(wd.PickupRate*flow.Speed*cross*(1-sed.Decay), -excess)
			take := min(lift, cell.Powder)
			cell.Powder -= take
			sed.Amount += take
			if rest := lift - take; rest > 0 {
				abr := min(rest*wd.AbrasionRatio, cell.Snow)
				cell.Snow -= abr
				sed.Amount += abr
			}
		}

		wrapPosition(a, ex, ey, s.W, s.H)
		cx, cy = modInt(nx, s.W), modInt(ny, s.H)
	}

	if torusManhattan(startX, startY, cx, cy, s.W, s.H) < wd.CellsPerRun/2 {
		sed.Decay *= wd.DecayGrowth
	}
	return ResetNone
}

// ResetAgent drops the agent's load as powder and respawns it.
func (wd *Wind) ResetAgent(s *SnowGrid, a Agent, rng *rand.Rand) {
	cx, cy := agentCell(a, s.W, s.H)
	s.At(cx, cy).Powder += min(max(a.Sed.Amount, 0), wd.MaxResetDeposit)
	ResetAgent(a, rng.Intn(s.W), rng.Intn(s.H), wd.InitialDecay, rng)
}

// SlumpPowder lets powder deeper than SlumpDepth slide down slopes steeper
// than SlumpThreshold. Uses the exhaustive directional kernel.
func (wd *Wind) SlumpPowder(pool *Pool, s *SnowGrid) {
	if wd.SlumpRate <= 0 {
		return
	}
	wd.ensure(s.W, s.H)
	f := wd.field
	pool.ForIndex(len(s.Cells), func(i int, _ *Worker) {
		c := s.Cells[i]
		h := SnowHeight(c)
		f.Src[i] = h
		f.Dst[i] = h
		f.Wet[i] = 1
		f.Avail[i] = 0
		if c.Powder > wd.SlumpDepth {
			f.Avail[i] = c.Powder
		}
		wd.diff[i] = 0
	})

	f.Exhaustive(pool, wd.diff, wd.amt, wd.SlumpThreshold, wd.SlumpRate)

	pool.ForIndex(len(s.Cells), func(i int, _ *Worker) {
		s.Cells[i].Powder = max(s.Cells[i].Powder+wd.diff[i], 0)
	})
}

// CompactPowder turns powder above CompactMinDepth into snow in a random
// subset of cells. Each worker samples with its own generator.
func (wd *Wind) CompactPowder(pool *Pool, s *SnowGrid) {
	if wd.CompactChance <= 0 || wd.CompactRate <= 0 {
		return
	}
	pool.ForIndex(len(s.Cells), func(i int, w *Worker) {
		if w.Rng.Float32() >= wd.CompactChance {
			return
		}
		c := &s.Cells[i]
		excess := c.Powder - wd.CompactMinDepth
		if excess <= 0 {
			return
		}
		d := excess * wd.CompactRate
		c.Powder -= d
		c.Snow += d * wd.CompactDensity
	})
}
