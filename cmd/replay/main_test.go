package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MoniVibe/PureDOTS-sub002/internal/persistence/snapshot"
	"github.com/MoniVibe/PureDOTS-sub002/internal/persistence/ticklog"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/catalogs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/spatial"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/tuning"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/world"
)

type recorded struct {
	dir      string
	snapPath string
	cats     *catalogs.Catalogs
	final    string
}

// record runs a small village for 80 ticks with a snapshot at tick 30 and a
// rewind from 60 back to 45.
func record(t *testing.T) recorded {
	t.Helper()
	cats, err := catalogs.Load("../../configs")
	require.NoError(t, err)
	w, err := world.New(world.WorldConfig{ID: "r", Seed: 3, Tuning: tuning.Defaults()}, cats)
	require.NoError(t, err)

	dir := t.TempDir()
	tl := ticklog.NewLogger(dir)
	w.SetTickLogger(tl)

	apply := func(in world.Input) {
		_, err := w.Apply(in)
		require.NoError(t, err)
	}
	apply(world.SpawnStorehouse(spatial.Vec3{X: -4}, 500))
	apply(world.SpawnResource(spatial.Vec3{X: 5}, "stone", 0))
	apply(world.SpawnResource(spatial.Vec3{Z: 5}, "wood", 0))
	for i := 0; i < 3; i++ {
		apply(world.SpawnVillager(spatial.Vec3{X: float64(i)}, "", false))
	}

	var snapPath string
	for w.CurrentTick() < 60 {
		if w.CurrentTick() == 30 {
			snapPath = filepath.Join(dir, "snapshots", snapshot.FileName(30))
			require.NoError(t, snapshot.WriteSnapshot(snapPath, w.ExportSnapshot()))
		}
		if w.CurrentTick() == 40 {
			apply(world.SpawnVillager(spatial.Vec3{Z: -2}, "gatherer", false))
		}
		w.StepOnce()
	}
	require.NoError(t, w.RewindTo(45))
	apply(world.SpawnResource(spatial.Vec3{X: -6, Z: 6}, "food", 30))
	require.NoError(t, w.AdvanceTo(80))
	require.NoError(t, tl.Close())

	return recorded{dir: dir, snapPath: snapPath, cats: cats, final: w.LastDigest()}
}

func TestVerify_ReplaysFromSnapshotThroughRewind(t *testing.T) {
	rec := record(t)

	snap, err := snapshot.ReadSnapshot(rec.snapPath)
	require.NoError(t, err)
	w, err := world.ImportSnapshot(world.WorldConfig{}, rec.cats, snap)
	require.NoError(t, err)

	entries, err := ticklog.Collect(rec.dir, w.CurrentTick(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 50)

	res, err := verify(w, entries, 0)
	require.NoError(t, err)
	require.Equal(t, 50, res.Ticks)
	require.Equal(t, 50, res.Checked)
	require.Equal(t, 2, res.Inputs)
	require.EqualValues(t, 80, res.LastTick)
	require.Equal(t, rec.final, res.LastDigest)
}

func TestVerify_DetectsTamperedDigest(t *testing.T) {
	rec := record(t)
	snap, err := snapshot.ReadSnapshot(rec.snapPath)
	require.NoError(t, err)
	w, err := world.ImportSnapshot(world.WorldConfig{}, rec.cats, snap)
	require.NoError(t, err)

	entries, err := ticklog.Collect(rec.dir, 30, 0)
	require.NoError(t, err)
	entries[5].Digest = "bogus"

	res, err := verify(w, entries, 0)
	require.Error(t, err)
	require.Equal(t, 5, res.Checked)
}

func TestVerify_DetectsGap(t *testing.T) {
	rec := record(t)
	snap, err := snapshot.ReadSnapshot(rec.snapPath)
	require.NoError(t, err)
	w, err := world.ImportSnapshot(world.WorldConfig{}, rec.cats, snap)
	require.NoError(t, err)

	entries, err := ticklog.Collect(rec.dir, 30, 0)
	require.NoError(t, err)
	entries = append(entries[:3], entries[4:]...)

	_, err = verify(w, entries, 0)
	require.ErrorContains(t, err, "gap")
}
