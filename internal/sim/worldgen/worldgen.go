// Package worldgen builds starting scenarios: storehouses near the origin,
// resource nodes where Perlin noise peaks, villagers around the storehouses.
// The output is a list of world inputs, so a scenario is journaled and
// replays like any other input.
package worldgen

import (
	"math"
	"sort"

	"github.com/aquilax/go-perlin"

	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/spatial"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/world"
)

type Params struct {
	Seed int64

	Radius  float64
	Spacing float64
	// NoiseScale maps world units to noise space; smaller is smoother.
	NoiseScale float64
	// Threshold is the noise value a lattice point must exceed to host a node.
	Threshold float64
	// ClearRadius keeps nodes away from the storehouse ring.
	ClearRadius float64

	Storehouses       int
	StorehouseCap     float64
	ResourceNodes     int
	ResourceTypes     []string
	Villagers         int
	Archetypes        []string
	VillagersWithJobs bool
}

func (p *Params) applyDefaults() {
	if !(p.Radius > 0) {
		p.Radius = 96
	}
	if !(p.Spacing > 0) {
		p.Spacing = 4
	}
	if !(p.NoiseScale > 0) {
		p.NoiseScale = 0.045
	}
	if !(p.ClearRadius > 0) {
		p.ClearRadius = 12
	}
	if p.Storehouses <= 0 {
		p.Storehouses = 1
	}
	if !(p.StorehouseCap > 0) {
		p.StorehouseCap = 500
	}
}

type candidate struct {
	pos   spatial.Vec3
	value float64
}

// Generate returns the inputs for a scenario. The same Params always give
// the same inputs in the same order.
func Generate(p Params) []world.Input {
	p.applyDefaults()
	var out []world.Input

	// Storehouses on a small ring around the origin.
	ring := p.ClearRadius / 2
	homes := make([]spatial.Vec3, 0, p.Storehouses)
	for i := 0; i < p.Storehouses; i++ {
		pos := spatial.Vec3{}
		if p.Storehouses > 1 {
			a := 2 * math.Pi * float64(i) / float64(p.Storehouses)
			pos = spatial.Vec3{X: round2(ring * math.Cos(a)), Z: round2(ring * math.Sin(a))}
		}
		homes = append(homes, pos)
		out = append(out, world.SpawnStorehouse(pos, p.StorehouseCap))
	}

	if len(p.ResourceTypes) > 0 && p.ResourceNodes > 0 {
		density := perlin.NewPerlin(2, 2, 3, p.Seed)
		kind := perlin.NewPerlin(2, 2, 3, p.Seed+1)
		for _, c := range candidates(density, p) {
			if p.ResourceNodes == 0 {
				break
			}
			// Noise2D is roughly in [-1, 1]; bands pick the type.
			k := (kind.Noise2D(c.pos.X*p.NoiseScale, c.pos.Z*p.NoiseScale) + 1) / 2
			idx := int(k * float64(len(p.ResourceTypes)))
			if idx < 0 {
				idx = 0
			}
			if idx >= len(p.ResourceTypes) {
				idx = len(p.ResourceTypes) - 1
			}
			out = append(out, world.SpawnResource(c.pos, p.ResourceTypes[idx], 0))
			p.ResourceNodes--
		}
	}

	// Villagers on a golden-angle spiral around their storehouse.
	const golden = 2.399963229728653
	for i := 0; i < p.Villagers; i++ {
		home := homes[i%len(homes)]
		n := float64(i/len(homes) + 1)
		r := 1.5 * math.Sqrt(n)
		a := golden * n
		pos := spatial.Vec3{X: round2(home.X + r*math.Cos(a)), Z: round2(home.Z + r*math.Sin(a))}
		arch := ""
		if len(p.Archetypes) > 0 {
			arch = p.Archetypes[i%len(p.Archetypes)]
		}
		out = append(out, world.SpawnVillager(pos, arch, p.VillagersWithJobs))
	}
	return out
}

// candidates samples the lattice and returns points above the threshold,
// strongest first.
func candidates(noise *perlin.Perlin, p Params) []candidate {
	var out []candidate
	steps := int(p.Radius / p.Spacing)
	for iz := -steps; iz <= steps; iz++ {
		for ix := -steps; ix <= steps; ix++ {
			x, z := float64(ix)*p.Spacing, float64(iz)*p.Spacing
			d := math.Hypot(x, z)
			if d > p.Radius || d < p.ClearRadius {
				continue
			}
			v := noise.Noise2D(x*p.NoiseScale, z*p.NoiseScale)
			if v <= p.Threshold {
				continue
			}
			out = append(out, candidate{pos: spatial.Vec3{X: x, Z: z}, value: v})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].value > out[j].value })
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
