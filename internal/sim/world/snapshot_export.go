package world

import (
	"github.com/MoniVibe/PureDOTS-sub002/internal/persistence/snapshot"
)

// ExportSnapshot captures the current state in the on-disk format.
func (w *World) ExportSnapshot() snapshot.SnapshotV1 {
	s := w.capture()
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			RunID:   w.runID,
			Tick:    s.Tick,
		},
		Seed:              w.cfg.Seed,
		Tuning:            w.cfg.Tuning,
		ResourcesDigest:   w.catalogs.Resources.Digest,
		ArchetypesDigest:  w.catalogs.Archetypes.Digest,
		Allocator:         s.Allocator,
		Grid:              s.Grid,
		Registry:          s.Registry,
		Jobs:              s.Jobs,
		DuplicateCommands: s.Duplicates,
		PendingDespawn:    s.PendingDespawn,
		Counters: snapshot.CountersV1{
			LOSChecks:        w.counters.LOSChecks,
			MissingBridge:    w.counters.MissingBridge,
			RewindUnderflows: w.counters.RewindUnderflows,
			GuardedWrites:    w.counters.GuardedWrites,
			Despawns:         w.counters.Despawns,
			Starved:          w.counters.Starved,
		},
	}
	snap.Positions = make([]snapshot.PositionV1, 0, len(s.Positions))
	for _, p := range s.Positions {
		snap.Positions = append(snap.Positions, snapshot.PositionV1{Entity: p.Entity, Position: p.Position})
	}
	snap.Villagers = make([]snapshot.VillagerV1, 0, len(s.Villagers))
	for _, v := range s.Villagers {
		snap.Villagers = append(snap.Villagers, snapshot.VillagerV1{
			Entity:    v.Entity,
			Archetype: v.Villager.Archetype,
			Needs:     v.Villager.Needs,
			Health:    v.Villager.Health,
			Utility:   v.Villager.Utility,
			Velocity:  v.Villager.Velocity,
		})
	}
	return snap
}
