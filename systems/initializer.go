package systems

import (
	"math/rand"

	"github.com/pthm-cable/erosion/config"
)

// Initializer composes noise layers into a fresh terrain.
type Initializer struct {
	Layers     []NoiseLayer
	LooseBase  float32
	LooseNoise []NoiseLayer
}

// NewInitializer builds an initializer from the init config section.
func NewInitializer(cfg config.InitConfig) *Initializer {
	in := &Initializer{LooseBase: float32(cfg.LooseBase)}
	for _, l := range cfg.Layers {
		in.Layers = append(in.Layers, NoiseLayerFromConfig(l))
	}
	for _, l := range cfg.LooseNoise {
		nl := NoiseLayerFromConfig(l)
		nl.Target = TargetLoose
		in.LooseNoise = append(in.LooseNoise, nl)
	}
	return in
}

// InitTerrain clears g, adds the hard layers, the loose cover and loose
// noise, then rebases so the lowest rock sits at zero.
func (in *Initializer) InitTerrain(pool *Pool, g *TerrainGrid, rng *rand.Rand) {
	g.Clear()
	for _, l := range in.Layers {
		l.Apply(pool, g, rng)
	}
	g.AddLooseMaterial(in.LooseBase)
	for _, l := range in.LooseNoise {
		l.Apply(pool, g, rng)
	}
	// Loose noise can dip below zero where the cover is thin.
	for i := range g.Cells {
		g.Cells[i].Loose = max(g.Cells[i].Loose, 0)
	}
	g.SetBaseLevel()
}
