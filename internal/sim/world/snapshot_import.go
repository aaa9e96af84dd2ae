package world

import (
	"fmt"

	"github.com/MoniVibe/PureDOTS-sub002/internal/persistence/snapshot"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/catalogs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ecs"
)

// ImportSnapshot builds a world from a checkpoint. History starts over at
// the snapshot tick and the journal is empty.
func ImportSnapshot(cfg WorldConfig, cats *catalogs.Catalogs, snap snapshot.SnapshotV1) (*World, error) {
	if snap.Header.Version != snapshot.Version {
		return nil, fmt.Errorf("import snapshot: version %d", snap.Header.Version)
	}
	cfg.Seed = snap.Seed
	cfg.Tuning = snap.Tuning
	if cfg.ID == "" {
		cfg.ID = snap.Header.WorldID
	}
	w, err := New(cfg, cats)
	if err != nil {
		return nil, fmt.Errorf("import snapshot: %w", err)
	}
	if snap.ResourcesDigest != cats.Resources.Digest || snap.ArchetypesDigest != cats.Archetypes.Digest {
		w.log.Printf("import snapshot: catalog digests differ from tick %d export", snap.Header.Tick)
	}

	s := State{
		Tick:           snap.Header.Tick,
		Allocator:      snap.Allocator,
		Grid:           snap.Grid,
		Registry:       snap.Registry,
		Jobs:           snap.Jobs,
		Duplicates:     snap.DuplicateCommands,
		PendingDespawn: append([]ecs.Entity(nil), snap.PendingDespawn...),
	}
	for _, p := range snap.Positions {
		s.Positions = append(s.Positions, PositionRecord{Entity: p.Entity, Position: p.Position})
	}
	for _, v := range snap.Villagers {
		if _, err := cats.Archetypes.Lookup(v.Archetype); err != nil {
			return nil, fmt.Errorf("import snapshot: villager %v: %w", v.Entity, err)
		}
		s.Villagers = append(s.Villagers, VillagerRecord{Entity: v.Entity, Villager: Villager{
			Archetype: v.Archetype,
			Needs:     v.Needs,
			Health:    v.Health,
			Utility:   v.Utility,
			Velocity:  v.Velocity,
		}})
	}
	w.restore(s)
	w.counters = worldCounters{
		LOSChecks:        snap.Counters.LOSChecks,
		MissingBridge:    snap.Counters.MissingBridge,
		RewindUnderflows: snap.Counters.RewindUnderflows,
		GuardedWrites:    snap.Counters.GuardedWrites,
		Despawns:         snap.Counters.Despawns,
		Starved:          snap.Counters.Starved,
	}
	w.history.Clear()
	w.recordFrame(s.Tick)
	w.lastDigest = w.stateDigest(s.Tick)
	return w, nil
}
