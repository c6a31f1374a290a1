package systems

import (
	"math"
	"math/rand"

	"github.com/pthm-cable/erosion/components"
)

// Agent is a mutable view over one erosion agent's components.
type Agent struct {
	Pos  *components.Position
	Flow *components.Flow
	Sed  *components.Sediment
}

// ResetReason reports why an agent stopped early.
type ResetReason uint8

const (
	ResetNone       ResetReason = iota
	ResetDecay                  // Age factor saturated
	ResetPit                    // Stuck in a pit it could not fill
	ResetDegenerate             // Fall vector flat or pointing up
	ResetStalled                // Exit computation returned the entry cell
	ResetUphill                 // Forced uphill without enough load to shed
)

// NumResetReasons is the number of distinct ResetReason values.
const NumResetReasons = int(ResetUphill) + 1

func (r ResetReason) String() string {
	switch r {
	case ResetNone:
		return "none"
	case ResetDecay:
		return "decay"
	case ResetPit:
		return "pit"
	case ResetDegenerate:
		return "degenerate"
	case ResetStalled:
		return "stalled"
	case ResetUphill:
		return "uphill"
	}
	return "unknown"
}

// ResetAgent places an agent at a random point inside cell (x, y)
// and zeroes its motion and load.
func ResetAgent(a Agent, x, y int, decay float32, rng *rand.Rand) {
	a.Pos.X = float32(x) + 0.1 + rng.Float32()*0.8
	a.Pos.Y = float32(y) + 0.1 + rng.Float32()*0.8
	*a.Flow = components.Flow{}
	*a.Sed = components.Sediment{Decay: decay}
}

// agentCell returns the wrapped cell under the agent.
func agentCell(a Agent, w, h int) (int, int) {
	cx := int(math.Floor(float64(a.Pos.X)))
	cy := int(math.Floor(float64(a.Pos.Y)))
	return modInt(cx, w), modInt(cy, h)
}

// wrapPosition folds an exit point back onto the torus.
func wrapPosition(a Agent, x, y float32, w, h int) {
	a.Pos.X = modFloat(x, float32(w))
	a.Pos.Y = modFloat(y, float32(h))
}

// blendFlow mixes the previous direction with a new fall vector and
// bounded random jitter, then renormalizes.
func blendFlow(f *components.Flow, fx, fy, fz, momentum, turbulence float32, rng *rand.Rand) bool {
	x := f.X*momentum + fx
	y := f.Y*momentum + fy
	z := f.Z*momentum + fz
	if turbulence > 0 {
		x += (rng.Float32()*2 - 1) * turbulence
		y += (rng.Float32()*2 - 1) * turbulence
	}
	nx, ny, nz, ok := normalize3(x, y, z)
	if !ok {
		return false
	}
	f.X, f.Y, f.Z = nx, ny, nz
	return true
}

// neighbourOffsets lists the 8 neighbours, orthogonal first.
var neighbourOffsets = [8][2]int{
	{0, -1}, {0, 1}, {-1, 0}, {1, 0},
	{-1, -1}, {1, -1}, {-1, 1}, {1, 1},
}

// diagonalWeight scales transfer rates toward diagonal neighbours.
const diagonalWeight = 0.707
