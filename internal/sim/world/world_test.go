package world

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MoniVibe/PureDOTS-sub002/internal/persistence/snapshot"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ai"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/commands"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/jobs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/spatial"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/tuning"
)

func TestGather_DeliversAndConservesUnits(t *testing.T) {
	w := newTestWorld(t, nil)
	sh := mustApply(t, w, SpawnStorehouse(spatial.Vec3{X: -4}, 1000))
	stone := mustApply(t, w, SpawnResource(spatial.Vec3{X: 4}, "stone", 0))
	mustApply(t, w, SpawnVillager(spatial.Vec3{}, "gatherer", false))
	mustApply(t, w, SpawnVillager(spatial.Vec3{Z: 1}, "gatherer", false))
	stoneIdx, def, err := w.Catalogs().Resources.Lookup("stone")
	require.NoError(t, err)

	require.NoError(t, w.AdvanceTo(150))

	inv, ok := w.Inventory(sh)
	require.True(t, ok)
	require.Greater(t, inv.ByType[stoneIdx], 0.0)
	require.Positive(t, w.Scheduler().Stats().Completions)

	entry, ok := w.Registry().Get(stone)
	require.True(t, ok)
	carried := 0.0
	for _, e := range w.Villagers() {
		j, _ := w.Job(e)
		carried += j.Carried
	}
	require.InDelta(t, def.Units, entry.UnitsRemaining+inv.ByType[stoneIdx]+carried, 1e-6)
	require.Zero(t, w.Registry().Verify())
}

func TestClaimOverride_InterruptsHolders(t *testing.T) {
	w := newTestWorld(t, nil)
	sh := mustApply(t, w, SpawnStorehouse(spatial.Vec3{X: -4}, 1000))
	stone := mustApply(t, w, SpawnResource(spatial.Vec3{X: 4}, "stone", 0))
	v := mustApply(t, w, SpawnVillager(spatial.Vec3{}, "gatherer", true))
	mustApply(t, w, QueueIntent(v, jobs.Intent{Kind: jobs.KindGather, Target: stone, Storehouse: sh}))

	w.StepOnce()
	j, ok := w.Job(v)
	require.True(t, ok)
	require.True(t, j.Phase.Active())
	entry, _ := w.Registry().Get(stone)
	require.Equal(t, 1, entry.ActiveTickets)

	mustApply(t, w, SetClaimOverride(stone, true))
	w.StepOnce()

	require.EqualValues(t, 1, w.Scheduler().Stats().Interrupts)
	j, _ = w.Job(v)
	require.False(t, j.Phase.Active())
	entry, _ = w.Registry().Get(stone)
	require.Zero(t, entry.ActiveTickets)
	require.Zero(t, w.Registry().Verify())
}

func TestDespawnTarget_InterruptsImmediately(t *testing.T) {
	w := newTestWorld(t, nil)
	sh := mustApply(t, w, SpawnStorehouse(spatial.Vec3{X: -4}, 1000))
	stone := mustApply(t, w, SpawnResource(spatial.Vec3{X: 4}, "stone", 0))
	v := mustApply(t, w, SpawnVillager(spatial.Vec3{}, "gatherer", true))
	mustApply(t, w, QueueIntent(v, jobs.Intent{Kind: jobs.KindGather, Target: stone, Storehouse: sh}))
	w.StepOnce()

	mustApply(t, w, Despawn(stone))
	j, _ := w.Job(v)
	require.Equal(t, jobs.PhaseInterrupted, j.Phase)
	require.Equal(t, jobs.InterruptTargetLost, j.InterruptReason)
	require.False(t, w.Alive(stone))

	_, err := w.Apply(Despawn(stone))
	require.Error(t, err)
	require.EqualValues(t, 1, w.Registry().Stats().UnknownLookups)
}

func TestDeadVillager_DespawnsNextTick(t *testing.T) {
	w := newTestWorld(t, nil)
	v := mustApply(t, w, SpawnVillager(spatial.Vec3{}, "", false))
	mustApply(t, w, DamageVillager(v, 1))

	w.StepOnce()
	require.True(t, w.Alive(v), "removal is deferred a tick")
	w.StepOnce()
	require.False(t, w.Alive(v))
	_, ok := w.Job(v)
	require.False(t, ok)
	require.Zero(t, w.Counters().StaleEntries)
}

func TestStarvation_KillsVillager(t *testing.T) {
	w := newTestWorld(t, func(tu *tuning.Tuning) { tu.Needs.StarvationDamage = 0.2 })
	v := mustApply(t, w, SpawnVillager(spatial.Vec3{}, "", false))
	mustApply(t, w, SetNeeds(v, ai.Needs{Hunger: 1}))

	require.NoError(t, w.AdvanceTo(10))
	require.False(t, w.Alive(v))
	require.EqualValues(t, 1, w.counters.Starved)
}

func TestEat_WithdrawsFoodFromStorehouse(t *testing.T) {
	w := newTestWorld(t, nil)
	sh := mustApply(t, w, SpawnStorehouse(spatial.Vec3{X: 2}, 100))
	foodIdx, _, err := w.Catalogs().Resources.Lookup("food")
	require.NoError(t, err)
	require.EqualValues(t, 50, w.reg.Deposit(0, sh, foodIdx, 50))

	v := mustApply(t, w, SpawnVillager(spatial.Vec3{}, "gatherer", false))
	mustApply(t, w, SetNeeds(v, ai.Needs{Hunger: 0.9}))
	w.StepOnce()

	vil, ok := w.Villager(v)
	require.True(t, ok)
	require.Less(t, vil.Needs.Hunger, 0.1)
	inv, _ := w.Inventory(sh)
	require.Less(t, inv.ByType[foodIdx], 50.0)
}

func TestApply_RejectsInvalidInputs(t *testing.T) {
	w := newTestWorld(t, nil)

	_, err := w.Apply(SpawnResource(spatial.Vec3{}, "unobtainium", 10))
	require.Error(t, err)
	_, err = w.Apply(SpawnVillager(spatial.Vec3{}, "wizard", false))
	require.Error(t, err)
	_, err = w.Apply(SpawnStorehouse(spatial.Vec3{}, 0))
	require.Error(t, err)
	_, err = w.Apply(Input{Kind: "TELEPORT"})
	require.Error(t, err)

	v := mustApply(t, w, SpawnVillager(spatial.Vec3{}, "", false))
	_, err = w.Apply(QueueIntent(v, jobs.Intent{Kind: jobs.KindGather}))
	require.Error(t, err, "villager spawned without a queue")
	require.Len(t, w.Journal(), 1)
}

func TestInvalidGridConfig_SkipsRebuild(t *testing.T) {
	w := newTestWorld(t, func(tu *tuning.Tuning) { tu.Grid.CellSize = 0 })
	seedVillage(t, w)
	require.NoError(t, w.AdvanceTo(20))

	c := w.Counters()
	require.True(t, c.ConfigInvalid)
	require.Zero(t, w.Grid().Version())
	require.EqualValues(t, 20, w.CurrentTick())
}

type recordingBridge struct {
	ticks []uint64
	cmds  int
}

func (b *recordingBridge) Present(tick uint64, cmds []commands.Command) {
	b.ticks = append(b.ticks, tick)
	b.cmds += len(cmds)
}

func TestBridge_MissingIsCounted(t *testing.T) {
	w := newTestWorld(t, nil)
	seedVillage(t, w)
	w.StepOnce()
	w.StepOnce()
	require.EqualValues(t, 2, w.Counters().MissingBridge)

	b := &recordingBridge{}
	w.SetBridge(b)
	w.StepOnce()
	require.Equal(t, []uint64{2}, b.ticks)
	require.Positive(t, b.cmds)
	require.EqualValues(t, 2, w.Counters().MissingBridge)
}

type memTickLog struct{ entries []TickLogEntry }

func (m *memTickLog) WriteTick(e TickLogEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

type memObserver struct {
	mu  sync.Mutex
	got []Summary
}

func (o *memObserver) Publish(s Summary) {
	o.mu.Lock()
	o.got = append(o.got, s)
	o.mu.Unlock()
}

func TestTickLogAndObserver(t *testing.T) {
	w := newTestWorld(t, nil)
	tl := &memTickLog{}
	obs := &memObserver{}
	w.SetTickLogger(tl)
	w.SetObserver(obs)

	seedVillage(t, w)
	w.StepOnce()
	w.StepOnce()

	require.Len(t, tl.entries, 2)
	require.EqualValues(t, 0, tl.entries[0].Tick)
	require.Len(t, tl.entries[0].Inputs, 6)
	require.Empty(t, tl.entries[1].Inputs)
	require.Equal(t, w.LastDigest(), tl.entries[1].Digest)

	require.Len(t, obs.got, 2)
	last := obs.got[1]
	require.Equal(t, "test", last.WorldID)
	require.EqualValues(t, 2, last.Tick)
	require.Equal(t, 3, last.Villagers)
	require.NotEmpty(t, last.Occupancy)
}

func TestSnapshotSink_FollowsCadence(t *testing.T) {
	w := newTestWorld(t, func(tu *tuning.Tuning) { tu.Persist.SnapshotEveryTicks = 10 })
	sink := make(chan snapshot.SnapshotV1, 4)
	w.SetSnapshotSink(sink)
	seedVillage(t, w)
	require.NoError(t, w.AdvanceTo(25))

	require.Len(t, sink, 2)
	s1 := <-sink
	s2 := <-sink
	require.EqualValues(t, 10, s1.Header.Tick)
	require.EqualValues(t, 20, s2.Header.Tick)
	require.Len(t, s2.Villagers, 3)
}

func TestSnapshot_FileRoundTrip(t *testing.T) {
	w := newTestWorld(t, nil)
	seedVillage(t, w)
	require.NoError(t, w.AdvanceTo(40))

	path := t.TempDir() + "/" + snapshot.FileName(w.CurrentTick())
	require.NoError(t, snapshot.WriteSnapshot(path, w.ExportSnapshot()))

	h, err := snapshot.ReadHeader(path)
	require.NoError(t, err)
	require.EqualValues(t, 40, h.Tick)

	snap, err := snapshot.ReadSnapshot(path)
	require.NoError(t, err)
	w2, err := ImportSnapshot(WorldConfig{ID: "copy"}, w.Catalogs(), snap)
	require.NoError(t, err)
	require.Equal(t, w.LastDigest(), w2.LastDigest())

	_, d1 := w.StepOnce()
	_, d2 := w2.StepOnce()
	require.Equal(t, d1, d2)
}

func TestRun_ControlRequests(t *testing.T) {
	w := newTestWorld(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.True(t, w.Submit(SpawnStorehouse(spatial.Vec3{}, 50)))
	require.Eventually(t, func() bool {
		snap, err := w.RequestSnapshot(ctx)
		return err == nil && len(snap.Registry.Storehouses) == 1
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, w.RequestPause(ctx, true))
	require.NoError(t, w.RequestSpeed(ctx, 2))

	w.Stop()
	require.NoError(t, <-done)
}

func TestDrainResource_DepletesNode(t *testing.T) {
	w := newTestWorld(t, nil)
	stone := mustApply(t, w, SpawnResource(spatial.Vec3{X: 4}, "stone", 30))
	require.NoError(t, w.AdvanceTo(5))

	mustApply(t, w, DrainResource(stone, 10))
	entry, ok := w.Registry().Get(stone)
	require.True(t, ok)
	require.InDelta(t, 20, entry.UnitsRemaining, 1e-9)

	mustApply(t, w, DrainResource(stone, 100))
	entry, _ = w.Registry().Get(stone)
	require.True(t, entry.Depleted())
	require.EqualValues(t, 5, entry.DepletedTick)

	_, err := w.Apply(DrainResource(stone, 0))
	require.Error(t, err)
	v := mustApply(t, w, SpawnVillager(spatial.Vec3{}, "", false))
	_, err = w.Apply(DrainResource(v, 1))
	require.Error(t, err)
}
