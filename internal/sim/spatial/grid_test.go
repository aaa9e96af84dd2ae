package spatial

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return NewConfig(Vec3{0, 0, 0}, Vec3{64, 8, 64}, 4)
}

func ent(i uint32) ecs.Entity { return ecs.Entity{Index: i, Gen: 1} }

func randomSamples(rng *rand.Rand, n int) []Sample {
	out := make([]Sample, n)
	for i := range out {
		out[i] = Sample{Entity: ent(uint32(i)), Position: Vec3{rng.Float64() * 64, rng.Float64() * 8, rng.Float64() * 64}}
	}
	return out
}

func assertWellFormed(t *testing.T, v View) {
	t.Helper()
	sum := 0
	for i, r := range v.Ranges() {
		require.Greater(t, r.Count, 0, "empty range kept for cell %d", r.CellID)
		require.Equal(t, sum, r.StartIndex)
		if i > 0 {
			require.Less(t, v.Ranges()[i-1].CellID, r.CellID)
		}
		cell := v.Entries()[r.StartIndex : r.StartIndex+r.Count]
		for k, e := range cell {
			require.Equal(t, r.CellID, e.CellID)
			if k > 0 {
				require.True(t, cell[k-1].Entity.Less(e.Entity))
			}
		}
		sum += r.Count
	}
	require.Equal(t, len(v.Entries()), sum)
}

func TestGrid_FirstBuildIsFull(t *testing.T) {
	g := NewGrid(testConfig(), 0)
	rng := rand.New(rand.NewSource(1))
	st := g.Rebuild(randomSamples(rng, 50))
	assert.Equal(t, StrategyFull, st)
	assert.Equal(t, uint64(1), g.State().Version)
	assert.Equal(t, 1, g.State().ActiveBufferIndex)
	assert.Equal(t, 50, g.State().TotalEntries)
	assert.Equal(t, 50, g.State().DirtyAddCount)
	assertWellFormed(t, g.Active())
}

func TestGrid_PartialMatchesFull(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	samples := randomSamples(rng, 200)
	partial := NewGrid(testConfig(), 0)
	partial.Rebuild(samples)

	sawPartial := false
	for step := 0; step < 60; step++ {
		// Move a few, remove one, add one.
		for k := 0; k < 5; k++ {
			i := rng.Intn(len(samples))
			samples[i].Position = Vec3{rng.Float64() * 64, rng.Float64() * 8, rng.Float64() * 64}
		}
		if len(samples) > 10 && step%3 == 0 {
			i := rng.Intn(len(samples))
			samples = append(samples[:i], samples[i+1:]...)
		}
		if step%4 == 0 {
			samples = append(samples, Sample{Entity: ent(uint32(1000 + step)), Position: Vec3{rng.Float64() * 64, 1, rng.Float64() * 64}})
		}
		// Shuffled input must not matter.
		shuffled := append([]Sample(nil), samples...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		if partial.Rebuild(shuffled) == StrategyPartial {
			sawPartial = true
		}
		full := NewGrid(testConfig(), 0)
		require.Equal(t, StrategyFull, full.Rebuild(samples))

		require.Equal(t, full.Active().Entries(), partial.Active().Entries(), "step %d", step)
		require.Equal(t, full.Active().Ranges(), partial.Active().Ranges(), "step %d", step)
		assertWellFormed(t, partial.Active())
		for _, s := range samples {
			c, ok := partial.CellOf(s.Entity)
			require.True(t, ok)
			require.Equal(t, testConfig().CellOf(s.Position), c)
		}
	}
	assert.True(t, sawPartial)
}

func TestGrid_PartialEmptiesAndFillsCells(t *testing.T) {
	g := NewGrid(testConfig(), 0.9)
	a, b, c := ent(1), ent(2), ent(3)
	g.Rebuild([]Sample{{a, Vec3{1, 1, 1}}, {b, Vec3{30, 1, 30}}, {c, Vec3{31, 1, 31}}})
	aCell := testConfig().CellOf(Vec3{1, 1, 1})
	require.Len(t, g.Active().EntriesInCell(aCell), 1)

	// a leaves its cell for a previously empty one.
	st := g.Rebuild([]Sample{{a, Vec3{60, 1, 60}}, {b, Vec3{30, 1, 30}}, {c, Vec3{31, 1, 31}}})
	require.Equal(t, StrategyPartial, st)
	assert.Empty(t, g.Active().EntriesInCell(aCell))
	assert.Len(t, g.Active().EntriesInCell(testConfig().CellOf(Vec3{60, 1, 60})), 1)
	assert.Equal(t, 1, g.State().DirtyUpdateCount)
	assertWellFormed(t, g.Active())
}

func TestGrid_SameCellMoveIsPatched(t *testing.T) {
	g := NewGrid(testConfig(), 0)
	a := ent(1)
	g.Rebuild([]Sample{{a, Vec3{1, 1, 1}}})
	st := g.Rebuild([]Sample{{a, Vec3{1.5, 1, 1}}})
	require.Equal(t, StrategyPartial, st)
	assert.Equal(t, 0, g.State().DirtyUpdateCount)
	assert.Equal(t, Vec3{1.5, 1, 1}, g.Active().Entries()[0].Position)
	assert.Len(t, g.LastDirty().Moved, 1)
}

func TestGrid_HighDirtyRatioFallsBackToFull(t *testing.T) {
	g := NewGrid(testConfig(), 0)
	rng := rand.New(rand.NewSource(3))
	g.Rebuild(randomSamples(rng, 20))
	assert.Equal(t, StrategyFull, g.Rebuild(randomSamples(rng, 20)))
}

func TestGrid_InvalidConfigSkipsRebuild(t *testing.T) {
	g := NewGrid(testConfig(), 0)
	rng := rand.New(rand.NewSource(5))
	g.Rebuild(randomSamples(rng, 30))
	before := g.State()
	entries := append([]Entry(nil), g.Active().Entries()...)

	bad := testConfig()
	bad.CellSize = 0
	g.SetConfig(bad)
	require.True(t, g.ConfigInvalid())
	require.ErrorIs(t, g.ConfigError(), ErrInvalidConfig)

	st := g.Rebuild(randomSamples(rng, 5))
	assert.Equal(t, StrategyNone, st)
	assert.Equal(t, StrategyNone, g.State().LastStrategy)
	assert.Equal(t, before.TotalEntries, g.State().TotalEntries)
	assert.Equal(t, before.Version, g.State().Version)
	assert.Equal(t, entries, g.Active().Entries())

	g.SetConfig(testConfig())
	assert.False(t, g.ConfigInvalid())
}

func TestGrid_ConfigChangeForcesFull(t *testing.T) {
	g := NewGrid(testConfig(), 0)
	s := []Sample{{ent(1), Vec3{1, 1, 1}}}
	g.Rebuild(s)
	g.SetConfig(NewConfig(Vec3{0, 0, 0}, Vec3{64, 8, 64}, 8))
	assert.Equal(t, StrategyFull, g.Rebuild(s))
	assert.Equal(t, 8.0, g.Active().Config().CellSize)
}

func TestGrid_SnapshotRestore(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	samples := randomSamples(rng, 40)
	g := NewGrid(testConfig(), 0)
	g.Rebuild(samples)
	snap := g.Snapshot()

	samples[0].Position = Vec3{63, 7, 63}
	g.Rebuild(samples)
	require.NotEqual(t, snap.State.Version, g.State().Version)

	g.Restore(snap)
	assert.Equal(t, snap.State, g.State())
	assert.Equal(t, snap.Entries, g.Active().Entries())
	assertWellFormed(t, g.Active())

	// Rebuilding from the restored state matches a fresh run.
	other := NewGrid(testConfig(), 0)
	other.Restore(g.Snapshot())
	g.Rebuild(samples)
	other.Rebuild(samples)
	assert.Equal(t, other.Active().Entries(), g.Active().Entries())
}

func TestGrid_StaleEntries(t *testing.T) {
	g := NewGrid(testConfig(), 0)
	g.Rebuild([]Sample{{ent(1), Vec3{1, 1, 1}}, {ent(2), Vec3{2, 1, 2}}})
	n := g.StaleEntries(func(e ecs.Entity) bool { return e.Index != 2 })
	assert.Equal(t, 1, n)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, testConfig().Validate())
	c := testConfig()
	c.WorldMax.Y = c.WorldMin.Y
	require.ErrorIs(t, c.Validate(), ErrInvalidConfig)
	c = testConfig()
	c.CellCounts[2] = 0
	require.Error(t, c.Validate())
	c = testConfig()
	c.ProviderID = 9
	require.Error(t, c.Validate())
}

func TestConfig_CoordClamps(t *testing.T) {
	c := testConfig()
	assert.Equal(t, [3]int{0, 0, 0}, c.Coord(Vec3{-5, -5, -5}))
	assert.Equal(t, [3]int{15, 1, 15}, c.Coord(Vec3{500, 500, 500}))
	assert.Equal(t, 16*2*16, c.CellCount())
}

func sortedIDs(n []Neighbor) []uint32 {
	out := make([]uint32, len(n))
	for i := range n {
		out[i] = n[i].Entity.Index
	}
	return out
}

func bruteNearest(samples []Sample, origin Vec3, k int) []uint32 {
	type cand struct {
		id uint32
		d  float64
	}
	cs := make([]cand, len(samples))
	for i, s := range samples {
		cs[i] = cand{s.Entity.Index, origin.DistSq(s.Position)}
	}
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].d != cs[j].d {
			return cs[i].d < cs[j].d
		}
		return cs[i].id < cs[j].id
	})
	if len(cs) > k {
		cs = cs[:k]
	}
	out := make([]uint32, len(cs))
	for i := range cs {
		out[i] = cs[i].id
	}
	return out
}
