package spatial

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindKNearest_MatchesBruteForce(t *testing.T) {
	for _, provider := range []ProviderID{ProviderUniform, ProviderHashed} {
		cfg := testConfig()
		cfg.ProviderID = provider
		cfg.HashSeed = 42
		rng := rand.New(rand.NewSource(int64(provider) + 9))
		samples := randomSamples(rng, 300)
		g := NewGrid(cfg, 0)
		g.Rebuild(samples)
		for q := 0; q < 50; q++ {
			origin := Vec3{rng.Float64()*80 - 8, rng.Float64() * 8, rng.Float64()*80 - 8}
			k := 1 + rng.Intn(12)
			got := g.Active().FindKNearest(origin, k)
			require.Equal(t, bruteNearest(samples, origin, k), sortedIDs(got), "provider %d query %d", provider, q)
		}
	}
}

func TestFindKNearest_DoesNotScanEverything(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	g := NewGrid(testConfig(), 0)
	g.Rebuild(randomSamples(rng, 2000))
	v := g.Active()
	_, visited := FindKNearest(Vec3{32, 4, 32}, 3, v.Config(), v.Ranges(), v.Entries())
	assert.Less(t, visited, testConfig().CellCount()/4)
}

func TestFindKNearest_TiesBreakByEntity(t *testing.T) {
	g := NewGrid(testConfig(), 0)
	g.Rebuild([]Sample{{ent(9), Vec3{5, 1, 4}}, {ent(3), Vec3{3, 1, 4}}, {ent(6), Vec3{4, 1, 5}}})
	got := g.Active().FindKNearest(Vec3{4, 1, 4}, 3)
	assert.Equal(t, []uint32{3, 6, 9}, sortedIDs(got))
}

func TestFindKNearest_Edges(t *testing.T) {
	g := NewGrid(testConfig(), 0)
	assert.Empty(t, g.Active().FindKNearest(Vec3{1, 1, 1}, 3))
	g.Rebuild([]Sample{{ent(1), Vec3{1, 1, 1}}})
	assert.Empty(t, g.Active().FindKNearest(Vec3{1, 1, 1}, 0))
	assert.Len(t, g.Active().FindKNearest(Vec3{1, 1, 1}, 5), 1)
}

func TestQueryRange(t *testing.T) {
	g := NewGrid(testConfig(), 0)
	g.Rebuild([]Sample{
		{ent(1), Vec3{0, 1, 0}},
		{ent(2), Vec3{5, 1, 0}},
		{ent(3), Vec3{10, 1, 0}},
		{ent(4), Vec3{20, 1, 0}},
	})
	got := g.Active().QueryRange(Vec3{0, 1, 0}, 10, 0)
	assert.Equal(t, []uint32{1, 2, 3}, sortedIDs(got))
	got = g.Active().QueryRange(Vec3{0, 1, 0}, 10, 2)
	assert.Equal(t, []uint32{1, 2}, sortedIDs(got))
	assert.Equal(t, 25.0, got[1].DistanceSq)
}

func TestVec3_NormalizeDegenerate(t *testing.T) {
	assert.Equal(t, Vec3{}, Vec3{}.Normalize())
	assert.InDelta(t, 1.0, Vec3{3, 0, 4}.Normalize().Length(), 1e-12)
	assert.Equal(t, Vec3{1, 0, 0}, Vec3{}.MoveToward(Vec3{1, 0, 0}, 5))
}
