package systems

import (
	"math"
)

// Torus maps wrapped 2D coordinates onto a flat row-major index.
type Torus struct {
	W, H int

	// Bitmask addressing is only valid when both sides are powers of two.
	pow2         bool
	maskX, maskY int
}

// NewTorus returns the addressing for a w×h grid.
func NewTorus(w, h int) Torus {
	t := Torus{W: w, H: h}
	if isPow2(w) && isPow2(h) {
		t.pow2 = true
		t.maskX = w - 1
		t.maskY = h - 1
	}
	return t
}

// Index returns the flat index of (x, y) after wrapping.
func (t Torus) Index(x, y int) int {
	if t.pow2 {
		return (y&t.maskY)*t.W + (x & t.maskX)
	}
	return modInt(y, t.H)*t.W + modInt(x, t.W)
}

// Size returns the number of cells.
func (t Torus) Size() int { return t.W * t.H }

// Grid is a toroidal W×H array of cells stored row-major.
// Coordinates outside [0,W)×[0,H) wrap around both axes.
type Grid[T any] struct {
	Torus
	Cells []T
}

// NewGrid allocates a zeroed grid.
func NewGrid[T any](w, h int) Grid[T] {
	return Grid[T]{
		Torus: NewTorus(w, h),
		Cells: make([]T, w*h),
	}
}

// At returns a pointer to the cell at (x, y) after wrapping.
func (g *Grid[T]) At(x, y int) *T {
	return &g.Cells[g.Index(x, y)]
}

// Len returns the number of cells.
func (g *Grid[T]) Len() int { return len(g.Cells) }

// SameSize reports whether the grid is w×h.
func (g *Grid[T]) SameSize(w, h int) bool { return g.W == w && g.H == h }

// sample bilinearly interpolates f over normalized coordinates.
func (g *Grid[T]) sample(u, v float32, f func(T) float32) float32 {
	fx := u * float32(g.W)
	fy := v * float32(g.H)
	x0 := int(math.Floor(float64(fx)))
	y0 := int(math.Floor(float64(fy)))
	tx := fx - float32(x0)
	ty := fy - float32(y0)

	h00 := f(g.Cells[g.Index(x0, y0)])
	h10 := f(g.Cells[g.Index(x0+1, y0)])
	h01 := f(g.Cells[g.Index(x0, y0+1)])
	h11 := f(g.Cells[g.Index(x0+1, y0+1)])

	return lerp(lerp(h00, h10, tx), lerp(h01, h11, tx), ty)
}

// TerrainGrid is the hydraulic terrain.
type TerrainGrid struct {
	Grid[Cell]
}

// NewTerrainGrid allocates a flat, empty terrain.
func NewTerrainGrid(w, h int) *TerrainGrid {
	return &TerrainGrid{Grid: NewGrid[Cell](w, h)}
}

// Clear zeroes every layer of every cell.
func (t *TerrainGrid) Clear() {
	clear(t.Cells)
}

// AddLooseMaterial adds a uniform sediment layer.
func (t *TerrainGrid) AddLooseMaterial(amount float32) {
	for i := range t.Cells {
		t.Cells[i].Loose += amount
	}
}

// SetBaseLevel shifts the hard layer so its minimum is exactly zero.
func (t *TerrainGrid) SetBaseLevel() {
	if len(t.Cells) == 0 {
		return
	}
	lo := t.Cells[0].Hard
	for i := range t.Cells {
		lo = min(lo, t.Cells[i].Hard)
	}
	for i := range t.Cells {
		t.Cells[i].Hard -= lo
	}
}

// HeightAt samples the solid height at normalized coordinates u, v in [0,1].
func (t *TerrainGrid) HeightAt(u, v float32) float32 {
	return t.sample(u, v, Height)
}

// WaterHeightAt samples the surface including standing water.
func (t *TerrainGrid) WaterHeightAt(u, v float32) float32 {
	return t.sample(u, v, SurfaceHeight)
}

// SolidMass returns the total hard plus loose material.
func (t *TerrainGrid) SolidMass() float64 {
	var sum float64
	for i := range t.Cells {
		sum += float64(t.Cells[i].Hard) + float64(t.Cells[i].Loose)
	}
	return sum
}

// WaterMass returns the total standing water.
func (t *TerrainGrid) WaterMass() float64 {
	var sum float64
	for i := range t.Cells {
		sum += float64(t.Cells[i].Water)
	}
	return sum
}

// Sanitize forces every layer finite and non-negative and returns
// how many values had to be repaired.
func (t *TerrainGrid) Sanitize() int {
	fixed := 0
	for i := range t.Cells {
		c := &t.Cells[i]
		before := *c
		c.Hard = fixLayer(c.Hard)
		c.Loose = fixLayer(c.Loose)
		c.Water = fixLayer(c.Water)
		c.MovingWater = fixLayer(c.MovingWater)
		if *c != before {
			fixed++
		}
	}
	return fixed
}

// DecayMovingWater fades the traffic layer.
func (t *TerrainGrid) DecayMovingWater(factor float32) {
	for i := range t.Cells {
		t.Cells[i].MovingWater *= factor
	}
}

// SnowGrid is the alpine terrain used by the wind pass.
type SnowGrid struct {
	Grid[SnowCell]
}

// NewSnowGrid allocates an empty snow grid.
func NewSnowGrid(w, h int) *SnowGrid {
	return &SnowGrid{Grid: NewGrid[SnowCell](w, h)}
}

// Clear zeroes every layer of every cell.
func (s *SnowGrid) Clear() {
	clear(s.Cells)
}

// FromTerrain turns the hydraulic terrain into bare rock.
// Both grids must have the same dimensions.
func (s *SnowGrid) FromTerrain(t *TerrainGrid) {
	for i := range s.Cells {
		s.Cells[i] = SnowCell{Rock: Height(t.Cells[i])}
	}
}

// HeightAt samples total height at normalized coordinates.
func (s *SnowGrid) HeightAt(u, v float32) float32 {
	return s.sample(u, v, SnowHeight)
}

// SnowMass returns total snow plus powder.
func (s *SnowGrid) SnowMass() float64 {
	var sum float64
	for i := range s.Cells {
		sum += float64(s.Cells[i].Snow) + float64(s.Cells[i].Powder)
	}
	return sum
}

// Sanitize forces every layer finite and non-negative.
func (s *SnowGrid) Sanitize() int {
	fixed := 0
	for i := range s.Cells {
		c := &s.Cells[i]
		before := *c
		c.Rock = fixLayer(c.Rock)
		c.Ice = fixLayer(c.Ice)
		c.Snow = fixLayer(c.Snow)
		c.Powder = fixLayer(c.Powder)
		if *c != before {
			fixed++
		}
	}
	return fixed
}

func isPow2(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func modInt(a, m int) int {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

func modFloat(a, m float32) float32 {
	r := float32(math.Mod(float64(a), float64(m)))
	if r < 0 {
		r += m
	}
	// a slightly negative a can round up to exactly m
	if r >= m {
		r = 0
	}
	return r
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
