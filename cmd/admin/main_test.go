package main

import (
	"os"
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

func TestRebuildAt_MatchesLiveDigest(t *testing.T) {
	cats, err := catalogs.Load("../../configs")
	require.NoError(t, err)
	w, err := world.New(world.WorldConfig{ID: "a", Seed: 11, Tuning: tuning.Defaults()}, cats)
	require.NoError(t, err)

	dir := t.TempDir()
	tl := ticklog.NewLogger(dir)
	w.SetTickLogger(tl)
	for _, in := range []world.Input{
		world.SpawnStorehouse(spatial.Vec3{X: -3}, 300),
		world.SpawnResource(spatial.Vec3{X: 6}, "stone", 0),
		world.SpawnVillager(spatial.Vec3{}, "gatherer", false),
		world.SpawnVillager(spatial.Vec3{Z: 2}, "", false),
	} {
		_, err := w.Apply(in)
		require.NoError(t, err)
	}

	want := map[uint64]string{}
	for w.CurrentTick() < 70 {
		if w.CurrentTick()%20 == 0 {
			path := filepath.Join(dir, "snapshots", snapshot.FileName(w.CurrentTick()))
			require.NoError(t, snapshot.WriteSnapshot(path, w.ExportSnapshot()))
		}
		tick, d := w.StepOnce()
		want[tick+1] = d
	}
	require.NoError(t, tl.Close())

	require.Equal(t, filepath.Join(dir, "snapshots", snapshot.FileName(40)), snapshotAtOrBefore(dir, 55))

	snap, src, err := rebuildAt(dir, cats, 55)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "snapshots", snapshot.FileName(40)), src)
	require.EqualValues(t, 55, snap.Header.Tick)

	w2, err := world.ImportSnapshot(world.WorldConfig{}, cats, snap)
	require.NoError(t, err)
	require.Equal(t, want[55], w2.LastDigest())

	_, _, err = rebuildAt(dir, cats, 90)
	require.ErrorContains(t, err, "ends at")
}

func TestSnapshotAtOrBefore_IgnoresRollbackFiles(t *testing.T) {
	dir := t.TempDir()
	snaps := filepath.Join(dir, "snapshots")
	require.NoError(t, os.MkdirAll(snaps, 0o755))
	for _, name := range []string{snapshot.FileName(10), "000000000015.rollback.snap.zst", snapshot.FileName(30)} {
		require.NoError(t, os.WriteFile(filepath.Join(snaps, name), nil, 0o644))
	}
	require.Equal(t, filepath.Join(snaps, snapshot.FileName(10)), snapshotAtOrBefore(dir, 20))
	require.Empty(t, snapshotAtOrBefore(dir, 5))
}

func TestFilterKind(t *testing.T) {
	entries := []world.TickLogEntry{
		{Tick: 1, Inputs: []world.Input{{Kind: world.InputSpawnVillager}}},
		{Tick: 2},
		{Tick: 3, Inputs: []world.Input{{Kind: world.InputDespawn}, {Kind: world.InputSpawnVillager}}},
	}
	require.Len(t, filterKind(entries, ""), 3)
	got := filterKind(entries, world.InputSpawnVillager)
	require.Len(t, got, 2)
	require.EqualValues(t, 3, got[1].Tick)
	require.Empty(t, filterKind(entries, world.InputSetNeeds))
}

func TestControlRequest(t *testing.T) {
	path, q, err := controlRequest("rewind", 42, 1)
	require.NoError(t, err)
	require.Equal(t, "/admin/v1/rewind", path)
	require.Equal(t, "42", q.Get("tick"))

	path, q, err = controlRequest("unpause", 0, 1)
	require.NoError(t, err)
	require.Equal(t, "/admin/v1/pause", path)
	require.Equal(t, "false", q.Get("paused"))

	_, q, err = controlRequest("speed", 0, 2.5)
	require.NoError(t, err)
	require.Equal(t, "2.5", q.Get("x"))

	_, _, err = controlRequest("explode", 0, 0)
	require.Error(t, err)
}
