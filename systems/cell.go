package systems

// Cell is one column of the hydraulic terrain.
// Field order is the persisted layout; do not reorder.
type Cell struct {
	Hard        float32 // Bedrock
	Loose       float32 // Sediment
	Water       float32 // Standing water (global water mode)
	MovingWater float32 // Recent agent traffic, visualization and erosion boost only
}

// Height returns the solid surface height of a cell.
func Height(c Cell) float32 {
	return c.Hard + c.Loose
}

// WorkingHeight is the height used for flow decisions.
// waterWeight scales how much recent traffic raises the surface.
func WorkingHeight(c Cell, waterWeight float32) float32 {
	return c.Hard + c.Loose + c.MovingWater*waterWeight
}

// SurfaceHeight includes standing water.
func SurfaceHeight(c Cell) float32 {
	return c.Hard + c.Loose + c.Water
}

// SnowCell is one column of the alpine terrain used by the wind pass.
// Field order is the persisted layout; do not reorder.
type SnowCell struct {
	Rock   float32
	Ice    float32
	Snow   float32 // Compacted snow
	Powder float32 // Loose, wind-transported snow
}

// SnowHeight returns the total height of a snow cell.
func SnowHeight(c SnowCell) float32 {
	return c.Rock + c.Ice + c.Snow + c.Powder
}

// fixLayer clamps a material layer to a finite non-negative value.
func fixLayer(v float32) float32 {
	switch {
	case v != v, v < 0: // NaN or negative
		return 0
	case v > maxLayer:
		return maxLayer
	}
	return v
}

// maxLayer caps runaway values so a layer never becomes +Inf.
const maxLayer = 1e30
