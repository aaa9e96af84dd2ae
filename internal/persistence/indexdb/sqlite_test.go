package indexdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MoniVibe/PureDOTS-sub002/internal/persistence/snapshot"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/catalogs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ecs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/health"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/registry"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/spatial"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/tuning"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/world"
)

func openTestIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "index", "world.sqlite"), 8)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteIndex_TicksAndInputs(t *testing.T) {
	s := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, s.WriteTick(world.TickLogEntry{
		Tick:     0,
		Strategy: "full",
		Version:  1,
		Digest:   "a",
		Inputs: []world.Input{
			world.SpawnStorehouse(spatial.Vec3{X: 1}, 10),
			world.Despawn(ecs.Entity{Index: 3, Gen: 2}),
		},
	}))
	require.NoError(t, s.WriteTick(world.TickLogEntry{Tick: 1, Strategy: "partial", Version: 2, Commands: 4, Digest: "b"}))
	require.NoError(t, s.WriteTick(world.TickLogEntry{Tick: 2, Strategy: "partial", Version: 3, Digest: "c"}))
	// Tick 0 re-run after a rewind with a single input.
	require.NoError(t, s.WriteTick(world.TickLogEntry{
		Tick:   0,
		Mode:   "catchup",
		Digest: "a2",
		Inputs: []world.Input{world.Despawn(ecs.Entity{Index: 3, Gen: 2})},
	}))
	require.NoError(t, s.Flush(ctx))

	ticks, err := s.Ticks(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	require.Equal(t, "a2", ticks[0].Digest)
	require.Equal(t, "catchup", ticks[0].Mode)
	require.Equal(t, 1, ticks[0].Inputs)
	require.Equal(t, "record", ticks[1].Mode)
	require.EqualValues(t, 2, ticks[1].GridVersion)
	require.Equal(t, 4, ticks[1].Commands)

	inputs, err := s.Inputs(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	require.Equal(t, string(world.InputDespawn), inputs[0].Kind)
	require.EqualValues(t, 3, inputs[0].EntityIdx)
	require.EqualValues(t, 2, inputs[0].EntityGen)
}

func TestSQLiteIndex_LatestSnapshot(t *testing.T) {
	s := openTestIndex(t)
	ctx := context.Background()

	_, ok, err := s.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	for _, tick := range []uint64{100, 300, 200} {
		snap := snapshot.SnapshotV1{
			Header:    snapshot.Header{Version: snapshot.Version, WorldID: "w", RunID: "r", Tick: tick},
			Seed:      7,
			Villagers: make([]snapshot.VillagerV1, 2),
			Registry:  registry.Snapshot{Storehouses: make([]registry.Storehouse, 1)},
		}
		s.RecordSnapshot(snapshot.FileName(tick), 4096, snap)
	}
	require.NoError(t, s.Flush(ctx))

	row, ok, err := s.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 300, row.Tick)
	require.Equal(t, snapshot.FileName(300), row.Path)
	require.Equal(t, 2, row.Villagers)
	require.Equal(t, 1, row.Storehouses)
	require.EqualValues(t, 4096, row.Bytes)

	rows, err := s.Snapshots(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.EqualValues(t, []uint64{300, 200, 100}, []uint64{rows[0].Tick, rows[1].Tick, rows[2].Tick})
}

func TestSQLiteIndex_HealthTransitionsOnly(t *testing.T) {
	s := openTestIndex(t)
	ctx := context.Background()

	s.Publish(world.Summary{Tick: 1, Level: "ok"})
	s.Publish(world.Summary{Tick: 2, Level: "ok"})
	s.Publish(world.Summary{Tick: 3, Level: "warn", Reasons: []string{"stale_entries"},
		Counters: health.Counters{StaleEntries: 2}})
	s.Publish(world.Summary{Tick: 4, Level: "warn", Reasons: []string{"stale_entries"}})
	s.Publish(world.Summary{Tick: 5, Level: "ok"})
	require.NoError(t, s.Flush(ctx))

	rows, err := s.HealthHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.EqualValues(t, 5, rows[0].Tick)
	require.Equal(t, "warn", rows[1].Level)
	require.Equal(t, "stale_entries", rows[1].Reasons)
	require.Equal(t, 2, rows[1].StaleEntries)
}

func TestSQLiteIndex_CatalogsAndMeta(t *testing.T) {
	s := openTestIndex(t)
	ctx := context.Background()

	cats, err := catalogs.Load("../../../configs")
	require.NoError(t, err)
	require.NoError(t, s.UpsertCatalogs("../../../configs", cats, tuning.Defaults()))
	require.NoError(t, s.SetMeta("run_id", "abc"))

	d, err := s.CatalogDigest(ctx, "resources")
	require.NoError(t, err)
	require.Equal(t, cats.Resources.Digest, d)
	d, err = s.CatalogDigest(ctx, "archetypes")
	require.NoError(t, err)
	require.Equal(t, cats.Archetypes.Digest, d)

	v, err := s.Meta(ctx, "run_id")
	require.NoError(t, err)
	require.Equal(t, "abc", v)
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: world.TickLogEntry{Tick: 1}}

	require.NoError(t, s.WriteTick(world.TickLogEntry{Tick: 2}))
	s.RecordSnapshot("/tmp/2.snap.zst", 0, snapshot.SnapshotV1{})
	s.Publish(world.Summary{Tick: 2})

	st := s.Stats()
	require.EqualValues(t, 1, st.DropTickTotal)
	require.EqualValues(t, 1, st.DropSnapshotTotal)
	require.EqualValues(t, 1, st.DropHealthTotal)
	require.Equal(t, 1, st.QueueDepth)
	require.Equal(t, 1, st.QueueCapacity)
}
