package spatial

import "github.com/MoniVibe/PureDOTS-sub002/internal/sim/ecs"

type ResidencyRecord struct {
	Entity   ecs.Entity
	CellID   int
	Position Vec3
}

// Snapshot is the full restorable grid state. Only the active buffer is
// kept; the inactive one is scratch.
type Snapshot struct {
	Config    Config
	Requested Config
	ForceFull bool
	Threshold float64
	State     State
	Entries   []Entry
	Ranges    []CellRange
	Residency []ResidencyRecord
}

func (g *Grid) Snapshot() Snapshot {
	active := g.bufs[g.state.ActiveBufferIndex]
	s := Snapshot{
		Config:    g.cfg,
		Requested: g.requested,
		ForceFull: g.forceFull,
		Threshold: g.threshold,
		State:     g.state,
		Entries:   append([]Entry(nil), active.entries...),
		Ranges:    append([]CellRange(nil), active.ranges...),
	}
	for _, e := range g.residency.Entities() {
		r, _ := g.residency.Value(e)
		s.Residency = append(s.Residency, ResidencyRecord{Entity: e, CellID: r.CellID, Position: r.Position})
	}
	return s
}

func (g *Grid) Restore(s Snapshot) {
	g.cfg = s.Config
	g.requested = s.Requested
	g.cfgErr = s.Requested.Validate()
	g.forceFull = s.ForceFull
	if s.Threshold > 0 {
		g.threshold = s.Threshold
	}
	g.state = s.State
	g.bufs[1-s.State.ActiveBufferIndex] = buffer{}
	g.bufs[s.State.ActiveBufferIndex] = buffer{
		cfg:     s.Config,
		entries: append([]Entry(nil), s.Entries...),
		ranges:  append([]CellRange(nil), s.Ranges...),
	}
	g.residency.Clear()
	for _, r := range s.Residency {
		g.residency.Set(r.Entity, Residency{CellID: r.CellID, Position: r.Position})
	}
	g.lastDirty = DirtySet{}
}
