package systems

import (
	"math"
	"math/rand"

	"github.com/pthm-cable/erosion/config"
)

// UphillPolicy decides what an agent does when its next cell is higher.
type UphillPolicy uint8

const (
	UphillDrop   UphillPolicy = iota // Shed load to fill the climb, reset if it cannot
	UphillReset                      // Always reset
	UphillIgnore                     // Carry on without shedding
)

// ParseUphillPolicy maps a config string to a policy. Unknown values drop.
func ParseUphillPolicy(s string) UphillPolicy {
	switch s {
	case "reset":
		return UphillReset
	case "ignore":
		return UphillIgnore
	}
	return UphillDrop
}

// Hydraulic runs water agents over a TerrainGrid.
// Agents mutate the grid immediately, so steps must run on one goroutine.
type Hydraulic struct {
	CellsPerRun      int
	DecayGrowth      float32
	InitialDecay     float32
	Momentum         float32
	Turbulence       float32
	SpeedSmoothing   float32
	CapacityFactor   float32
	DepositRate      float32
	ErosionBase      float32
	WaterErosionGain float32
	HardErosionRatio float32
	WaterMark        float32
	WorkingWater     float32
	Uphill           UphillPolicy
	UphillDropRatio  float32
	CollapseFrom     float32
	CollapseTo       float32
	MaxResetDeposit  float32
}

// NewHydraulic builds the pass from its config section.
func NewHydraulic(cfg config.HydraulicConfig) *Hydraulic {
	return &Hydraulic{
		CellsPerRun:      cfg.CellsPerRun,
		DecayGrowth:      float32(cfg.DecayGrowth),
		InitialDecay:     float32(cfg.InitialDecay),
		Momentum:         float32(cfg.Momentum),
		Turbulence:       float32(cfg.Turbulence),
		SpeedSmoothing:   float32(cfg.SpeedSmoothing),
		CapacityFactor:   float32(cfg.CapacityFactor),
		DepositRate:      float32(cfg.DepositRate),
		ErosionBase:      float32(cfg.ErosionBase),
		WaterErosionGain: float32(cfg.WaterErosionGain),
		HardErosionRatio: float32(cfg.HardErosionRatio),
		WaterMark:        float32(cfg.WaterMark),
		WorkingWater:     float32(cfg.WorkingWater),
		Uphill:           ParseUphillPolicy(cfg.UphillPolicy),
		UphillDropRatio:  float32(cfg.UphillDropRatio),
		CollapseFrom:     float32(cfg.CollapseFrom),
		CollapseTo:       float32(cfg.CollapseTo),
		MaxResetDeposit:  float32(cfg.MaxResetDeposit),
	}
}

func (hy *Hydraulic) wh(c Cell) float32 {
	return WorkingHeight(c, hy.WorkingWater)
}

// RunAgent advances one agent for up to CellsPerRun cells.
// It returns ResetNone if the agent survives the tick; otherwise the
// caller must call ResetAgent.
func (hy *Hydraulic) RunAgent(g *TerrainGrid, a Agent, rng *rand.Rand) ResetReason {
	sed := a.Sed
	flow := a.Flow

	sed.Decay *= hy.DecayGrowth
	if sed.Decay >= 1 {
		return ResetDecay
	}

	cx, cy := agentCell(a, g.W, g.H)
	startX, startY := cx, cy

	for step := 0; step < hy.CellsPerRun; step++ {
		ci := g.Index(cx, cy)
		cell := &g.Cells[ci]
		cell.MovingWater += hy.WaterMark

		h0 := hy.wh(*cell)

		// Pit: fill it if we carry enough, otherwise give up.
		lowest := float32(math.MaxFloat32)
		for _, o := range neighbourOffsets {
			lowest = min(lowest, hy.wh(g.Cells[g.Index(cx+o[0], cy+o[1])]))
		}
		if fill := lowest - h0; fill > 0 {
			if sed.Amount <= fill {
				return ResetPit
			}
			cell.Loose += fill
			sed.Amount -= fill
			h0 += fill
		}

		fx, fy, fz, ok := fallVector(h0,
			hy.wh(g.Cells[g.Index(cx, cy-1)]),
			hy.wh(g.Cells[g.Index(cx, cy+1)]),
			hy.wh(g.Cells[g.Index(cx-1, cy)]),
			hy.wh(g.Cells[g.Index(cx+1, cy)]),
		)
		if !ok || fz > 0 {
			return ResetDegenerate
		}
		if !blendFlow(flow, fx, fy, fz, hy.Momentum, hy.Turbulence, rng) || flow.Z > 0 {
			return ResetDegenerate
		}

		px, py := nudgeFromEdge(a.Pos.X, a.Pos.Y, flow.X, flow.Y)
		ex, ey, nx, ny := TileExit(px, py, flow.X, flow.Y, cx, cy)
		if nx == cx && ny == cy {
			return ResetStalled
		}

		ni := g.Index(nx, ny)
		climb := hy.wh(g.Cells[ni]) - h0
		if climb > 0 {
			switch hy.Uphill {
			case UphillReset:
				return ResetUphill
			case UphillDrop:
				drop := climb * hy.UphillDropRatio
				if sed.Amount <= drop {
					return ResetUphill
				}
				cell.Loose += drop
				sed.Amount -= drop
				collapseFrom(g, cx, cy, hy.CollapseFrom)
			}
		} else {
			slope := float32(math.Atan(float64(-climb))) / (math.Pi / 2)
			flow.Speed = flow.Speed*hy.SpeedSmoothing + (1-hy.SpeedSmoothing)*slope
		}

		// Fraction of the cell diagonal crossed this step.
		cross := dist2(px, py, ex, ey) / math.Sqrt2

		sed.Capacity = max(0, hy.CapacityFactor*flow.Speed*(1-sed.Decay))

		if excess := sed.Amount - sed.Capacity; excess > 0 {
			drop := min(excess*hy.DepositRate*cross, sed.Amount)
			g.Cells[ni].Loose += drop
			sed.Amount -= drop
		} else {
			erode := (hy.ErosionBase + flow.Speed) * cross *
				(1 + cell.MovingWater*hy.WaterErosionGain) * (1 - sed.Decay)
			erode = min(erode, -excess)
			if cell.Loose > 0 {
				take := min(erode, cell.Loose)
				cell.Loose -= take
				sed.Amount += take
				collapseTo(g, cx, cy, hy.CollapseTo)
			} else {
				take := min(erode*hy.HardErosionRatio, cell.Hard)
				cell.Hard -= take
				sed.Amount += take
			}
		}

		wrapPosition(a, ex, ey, g.W, g.H)
		cx, cy = modInt(nx, g.W), modInt(ny, g.H)
	}

	if torusManhattan(startX, startY, cx, cy, g.W, g.H) < hy.CellsPerRun/2 {
		sed.Decay *= hy.DecayGrowth
	}
	return ResetNone
}

// ResetAgent drops the agent's load, capped at MaxResetDeposit, where it
// stands and respawns it in a random cell.
func (hy *Hydraulic) ResetAgent(g *TerrainGrid, a Agent, rng *rand.Rand) {
	cx, cy := agentCell(a, g.W, g.H)
	deposit := min(max(a.Sed.Amount, 0), hy.MaxResetDeposit)
	g.At(cx, cy).Loose += deposit
	ResetAgent(a, rng.Intn(g.W), rng.Intn(g.H), hy.InitialDecay, rng)
}

// collapseFrom pushes loose material from (cx, cy) into lower neighbours.
// Each neighbour receives at most 20% of the centre's loose cover times rate.
func collapseFrom(g *TerrainGrid, cx, cy int, rate float32) {
	if rate <= 0 {
		return
	}
	ci := g.Index(cx, cy)
	center := &g.Cells[ci]
	h := Height(*center)
	limit := center.Loose * 0.2

	var idx [8]int
	var amt [8]float32
	var total float32
	for k, o := range neighbourOffsets {
		r := rate
		if k >= 4 {
			r *= diagonalWeight
		}
		i := g.Index(cx+o[0], cy+o[1])
		d := min(h-Height(g.Cells[i]), limit)
		if d > 0 {
			idx[k] = i
			amt[k] = d * r
			total += amt[k]
		}
	}
	if total <= 0 {
		return
	}
	// Never move more than the centre holds.
	scale := float32(1)
	if avail := center.Loose + center.Hard; total > avail {
		scale = avail / total
	}
	for k := range amt {
		if amt[k] > 0 {
			g.Cells[idx[k]].Loose += amt[k] * scale
		}
	}
	moved := total * scale
	if moved <= center.Loose {
		center.Loose -= moved
	} else {
		center.Hard = max(0, center.Hard-(moved-center.Loose))
		center.Loose = 0
	}
}

// collapseTo pulls loose material from higher neighbours into (cx, cy).
// Each neighbour gives at most 25% of its loose cover times rate.
func collapseTo(g *TerrainGrid, cx, cy int, rate float32) {
	if rate <= 0 {
		return
	}
	ci := g.Index(cx, cy)
	h := Height(g.Cells[ci])
	var gained float32
	for k, o := range neighbourOffsets {
		r := rate
		if k >= 4 {
			r *= diagonalWeight
		}
		n := &g.Cells[g.Index(cx+o[0], cy+o[1])]
		d := min(Height(*n)-h, n.Loose*0.25)
		if d > 0 {
			d *= r
			n.Loose -= d
			gained += d
		}
	}
	g.Cells[ci].Loose += gained
}
