package systems

import (
	"math"
	"math/rand"

	"github.com/aquilax/go-perlin"
	"github.com/ojrac/opensimplex-go"

	"github.com/pthm-cable/erosion/config"
)

const twoPi = 2 * math.Pi

// WrapNoise samples n at normalized grid coordinates so the result tiles
// with the grid. s runs down the rows and t along the columns, both in [0,1).
// Each axis is mapped onto a circle in 4D noise space; scale is the
// frequency in noise units per cell. seedX and seedY shift the circles.
func WrapNoise(n opensimplex.Noise, s, t, width, height, seedX, seedY, scale float32) float32 {
	a := twoPi * float64(t)
	b := twoPi * float64(s)
	rx := float64(width*scale) / twoPi
	ry := float64(height*scale) / twoPi
	ox := float64(seedX) * 256
	oy := float64(seedY) * 256

	return float32(n.Eval4(
		ox+rx*math.Cos(a),
		ox+rx*math.Sin(a),
		oy+ry*math.Cos(b),
		oy+ry*math.Sin(b),
	))
}

// NoiseKind selects the generator behind a layer.
type NoiseKind uint8

const (
	NoiseWrap NoiseKind = iota // Tileable simplex octaves
	NoiseMesa                  // Thresholded perlin plateaus, does not tile
)

// LayerTarget selects which material a layer adds to.
type LayerTarget uint8

const (
	TargetHard LayerTarget = iota
	TargetLoose
)

// OctaveTransform is applied to every weighted octave before summing.
type OctaveTransform uint8

const (
	OctaveNone OctaveTransform = iota
	OctaveAbs
	OctaveSquare
)

func (o OctaveTransform) apply(v float32) float32 {
	switch o {
	case OctaveAbs:
		return float32(math.Abs(float64(v)))
	case OctaveSquare:
		return v * v
	}
	return v
}

// PostTransform shapes the octave sum before amplitude is applied.
type PostTransform uint8

const (
	PostNone PostTransform = iota
	PostSquare
	PostRidgeClamp
	PostPow    // Sign-preserving power
	PostPowAbs // Power of the magnitude
)

func (p PostTransform) apply(v, power float32) float32 {
	switch p {
	case PostSquare:
		return v * v
	case PostRidgeClamp:
		return clampf(v*v*2, 0.1, 10) - 0.1
	case PostPow:
		m := float32(math.Pow(math.Abs(float64(v)), float64(power)))
		if v < 0 {
			return -m
		}
		return m
	case PostPowAbs:
		return float32(math.Pow(math.Abs(float64(v)), float64(power)))
	}
	return v
}

// NoiseLayer is one noise pass added into the terrain.
type NoiseLayer struct {
	Kind      NoiseKind
	Target    LayerTarget
	Octaves   int
	Scale     float32 // Divided by grid width to get the per-cell frequency
	Amplitude float32
	Transform OctaveTransform
	Post      PostTransform
	Power     float32
	Threshold float32
}

// NoiseLayerFromConfig converts a validated config entry.
func NoiseLayerFromConfig(c config.NoiseLayerConfig) NoiseLayer {
	l := NoiseLayer{
		Octaves:   c.Octaves,
		Scale:     float32(c.Scale),
		Amplitude: float32(c.Amplitude),
		Power:     float32(c.Power),
		Threshold: float32(c.Threshold),
	}
	if c.Kind == "mesa" {
		l.Kind = NoiseMesa
	}
	if c.Target == "loose" {
		l.Target = TargetLoose
	}
	switch c.Transform {
	case "abs":
		l.Transform = OctaveAbs
	case "square":
		l.Transform = OctaveSquare
	}
	switch c.Post {
	case "square":
		l.Post = PostSquare
	case "ridge_clamp":
		l.Post = PostRidgeClamp
	case "pow":
		l.Post = PostPow
	case "pow_abs":
		l.Post = PostPowAbs
	}
	return l
}

// Apply adds the layer into g. The noise seed and phase offsets are drawn
// from rng, so a fixed sequence of Apply calls on a seeded rng is repeatable.
func (l NoiseLayer) Apply(pool *Pool, g *TerrainGrid, rng *rand.Rand) {
	seed := rng.Int63()
	seedX := rng.Float32()
	seedY := rng.Float32()

	var sample func(x, y int) float32
	switch l.Kind {
	case NoiseMesa:
		sample = l.mesaSampler(g, seed)
	default:
		sample = l.wrapSampler(g, seed, seedX, seedY)
	}

	pool.For2D(g.W, g.H, func(x, y, i int, _ *Worker) {
		v := sample(x, y)
		if l.Target == TargetLoose {
			g.Cells[i].Loose += v
		} else {
			g.Cells[i].Hard += v
		}
	})
}

func (l NoiseLayer) wrapSampler(g *TerrainGrid, seed int64, seedX, seedY float32) func(x, y int) float32 {
	n := opensimplex.New(seed)
	w, h := float32(g.W), float32(g.H)
	base := l.Scale / w

	return func(x, y int) float32 {
		s := float32(y) / h
		t := float32(x) / w
		var sum float32
		for j := 1; j <= l.Octaves; j++ {
			oct := float32(int(1) << j)
			v := WrapNoise(n, s, t, w, h, seedX, seedY, base*oct) / (oct + 1)
			sum += l.Transform.apply(v)
		}
		return l.Post.apply(sum, l.Power) * l.Amplitude
	}
}

// mesaSampler adds the full amplitude wherever the noise clears the
// threshold, producing flat-topped plateaus with cliff edges.
func (l NoiseLayer) mesaSampler(g *TerrainGrid, seed int64) func(x, y int) float32 {
	p := perlin.NewPerlin(2, 2, int32(l.Octaves), seed)
	freq := float64(l.Scale) / float64(g.W)

	return func(x, y int) float32 {
		if float32(p.Noise2D(float64(x)*freq, float64(y)*freq)) > l.Threshold {
			return l.Amplitude
		}
		return 0
	}
}
