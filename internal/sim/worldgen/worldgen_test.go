package worldgen

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/world"
)

func params(seed int64) Params {
	return Params{
		Seed:          seed,
		Storehouses:   2,
		ResourceNodes: 20,
		ResourceTypes: []string{"food", "stone", "wood"},
		Villagers:     7,
		Archetypes:    []string{"gatherer", "builder"},
	}
}

func count(ins []world.Input, kind world.InputKind) int {
	n := 0
	for _, in := range ins {
		if in.Kind == kind {
			n++
		}
	}
	return n
}

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate(params(11))
	b := Generate(params(11))
	require.Equal(t, a, b)

	c := Generate(params(12))
	require.NotEqual(t, a, c)
}

func TestGenerate_CountsAndOrder(t *testing.T) {
	ins := Generate(params(3))
	require.Equal(t, 2, count(ins, world.InputSpawnStorehouse))
	require.Equal(t, 7, count(ins, world.InputSpawnVillager))
	require.LessOrEqual(t, count(ins, world.InputSpawnResource), 20)
	require.Positive(t, count(ins, world.InputSpawnResource))

	require.Equal(t, world.InputSpawnStorehouse, ins[0].Kind)
	require.Equal(t, world.InputSpawnVillager, ins[len(ins)-1].Kind)
	require.Equal(t, "gatherer", ins[len(ins)-7].Archetype)
	require.Equal(t, "builder", ins[len(ins)-6].Archetype)
}

func TestGenerate_NodesStayInBand(t *testing.T) {
	p := params(5)
	p.Radius = 40
	p.ClearRadius = 10
	for _, in := range Generate(p) {
		if in.Kind != world.InputSpawnResource {
			continue
		}
		d := math.Hypot(in.Position.X, in.Position.Z)
		require.GreaterOrEqual(t, d, 10.0)
		require.LessOrEqual(t, d, 40.0)
		require.Contains(t, p.ResourceTypes, in.Resource)
	}
}

func TestGenerate_NoResourceTypesMeansNoNodes(t *testing.T) {
	p := params(5)
	p.ResourceTypes = nil
	require.Zero(t, count(Generate(p), world.InputSpawnResource))
}
