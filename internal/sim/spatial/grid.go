package spatial

import (
	"sort"
	"time"

	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ecs"
)

type Strategy uint8

const (
	StrategyNone Strategy = iota
	StrategyFull
	StrategyPartial
)

func (s Strategy) String() string {
	switch s {
	case StrategyFull:
		return "full"
	case StrategyPartial:
		return "partial"
	default:
		return "none"
	}
}

// DefaultPartialThreshold is the dirty ratio above which a full rebuild is
// cheaper than splicing.
const DefaultPartialThreshold = 0.35

type State struct {
	Version           uint64
	ActiveBufferIndex int
	TotalEntries      int
	LastStrategy      Strategy
	DirtyAddCount     int
	DirtyUpdateCount  int
	DirtyRemoveCount  int
	// Wall clock; never part of digests.
	LastRebuildMilliseconds float64
}

type Entry struct {
	Entity   ecs.Entity
	Position Vec3
	CellID   int
}

// CellRange locates one non-empty cell in the entry array. Ranges are kept
// sorted by CellID; empty cells have no range.
type CellRange struct {
	CellID     int
	StartIndex int
	Count      int
}

type Sample struct {
	Entity   ecs.Entity
	Position Vec3
}

type buffer struct {
	cfg     Config
	entries []Entry
	ranges  []CellRange
}

type Grid struct {
	cfg       Config
	requested Config
	cfgErr    error
	forceFull bool
	threshold float64

	state     State
	bufs      [2]buffer
	residency *ecs.Store[Residency]
	tracker   DirtyTracker
	lastDirty DirtySet
}

// NewGrid returns an empty grid. An invalid cfg is accepted and reported by
// ConfigError; rebuilds are skipped until a valid config is set.
func NewGrid(cfg Config, threshold float64) *Grid {
	if !(threshold > 0) {
		threshold = DefaultPartialThreshold
	}
	g := &Grid{threshold: threshold, residency: ecs.NewStore[Residency]()}
	g.SetConfig(cfg)
	return g
}

// SetConfig stages cfg for the next rebuild. The active buffer keeps
// answering queries with the config it was built under.
func (g *Grid) SetConfig(cfg Config) {
	g.requested = cfg
	if err := cfg.Validate(); err != nil {
		g.cfgErr = err
		return
	}
	g.cfgErr = nil
	if cfg != g.cfg {
		g.cfg = cfg
		g.forceFull = true
	}
}

func (g *Grid) Config() Config      { return g.cfg }
func (g *Grid) ConfigError() error  { return g.cfgErr }
func (g *Grid) ConfigInvalid() bool { return g.cfgErr != nil }
func (g *Grid) State() State        { return g.state }
func (g *Grid) LastDirty() DirtySet { return g.lastDirty }
func (g *Grid) Active() View        { return g.view(g.state.ActiveBufferIndex) }
func (g *Grid) Version() uint64     { return g.state.Version }

func (g *Grid) view(i int) View {
	b := &g.bufs[i]
	return View{cfg: b.cfg, entries: b.entries, ranges: b.ranges, version: g.state.Version}
}

// CellOf reports the cell e was indexed into by the last rebuild.
func (g *Grid) CellOf(e ecs.Entity) (int, bool) {
	r, ok := g.residency.Value(e)
	return r.CellID, ok
}

// StaleEntries counts indexed entries whose entity is no longer alive.
func (g *Grid) StaleEntries(alive func(ecs.Entity) bool) int {
	n := 0
	for _, e := range g.Active().entries {
		if !alive(e.Entity) {
			n++
		}
	}
	return n
}

// Rebuild indexes samples into the inactive buffer and swaps it in. Samples
// may arrive in any order; duplicates keep the last position.
func (g *Grid) Rebuild(samples []Sample) Strategy {
	start := time.Now()
	if g.cfgErr != nil {
		g.state.LastStrategy = StrategyNone
		return StrategyNone
	}

	sorted := normalizeSamples(samples)
	cells := make([]int, len(sorted))
	for i, s := range sorted {
		cells[i] = g.cfg.CellOf(s.Position)
	}

	dirty := g.tracker.Diff(g.residency, sorted, cells)
	strategy := StrategyFull
	if !g.forceFull && g.state.Version > 0 && dirty.Ratio(g.state.TotalEntries, len(sorted)) <= g.threshold {
		strategy = StrategyPartial
	}

	next := 1 - g.state.ActiveBufferIndex
	dst := &g.bufs[next]
	dst.cfg = g.cfg
	if strategy == StrategyFull {
		g.buildFull(dst, sorted, cells)
		g.residency.Clear()
		for i, s := range sorted {
			g.residency.Set(s.Entity, Residency{CellID: cells[i], Position: s.Position})
		}
	} else {
		g.buildPartial(dst, &g.bufs[g.state.ActiveBufferIndex], dirty)
		g.applyResidency(dirty)
	}

	g.forceFull = false
	g.lastDirty = dirty
	g.state.ActiveBufferIndex = next
	g.state.Version++
	g.state.TotalEntries = len(dst.entries)
	g.state.LastStrategy = strategy
	g.state.DirtyAddCount = len(dirty.Adds)
	g.state.DirtyUpdateCount = len(dirty.Updates)
	g.state.DirtyRemoveCount = len(dirty.Removes)
	g.state.LastRebuildMilliseconds = float64(time.Since(start).Microseconds()) / 1000
	return strategy
}

func normalizeSamples(samples []Sample) []Sample {
	out := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if s.Entity.IsZero() || !s.Position.IsFinite() {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Entity.Less(out[j].Entity) })
	// Collapse duplicates, last one wins.
	w := 0
	for i := range out {
		if w > 0 && out[w-1].Entity == out[i].Entity {
			out[w-1] = out[i]
			continue
		}
		out[w] = out[i]
		w++
	}
	return out[:w]
}

func (g *Grid) buildFull(dst *buffer, sorted []Sample, cells []int) {
	dst.entries = dst.entries[:0]
	for i, s := range sorted {
		dst.entries = append(dst.entries, Entry{Entity: s.Entity, Position: s.Position, CellID: cells[i]})
	}
	// Input is in entity order, so a stable sort by cell gives cell-then-entity.
	sort.SliceStable(dst.entries, func(i, j int) bool { return dst.entries[i].CellID < dst.entries[j].CellID })
	dst.ranges = buildRanges(dst.ranges[:0], dst.entries)
}

func buildRanges(ranges []CellRange, entries []Entry) []CellRange {
	for i, e := range entries {
		if n := len(ranges); n > 0 && ranges[n-1].CellID == e.CellID {
			ranges[n-1].Count++
			continue
		}
		ranges = append(ranges, CellRange{CellID: e.CellID, StartIndex: i, Count: 1})
	}
	return ranges
}

// buildPartial merges the previous arrangement with the dirty set. Cells
// without changes are copied as-is; affected cells are rebuilt and
// re-sorted. Cells that become empty lose their range.
func (g *Grid) buildPartial(dst, src *buffer, dirty DirtySet) {
	drop := make(map[ecs.Entity]struct{}, len(dirty.Removes)+len(dirty.Updates))
	inserts := make(map[int][]Entry)
	affected := make(map[int]struct{})
	for _, c := range dirty.Removes {
		drop[c.Entity] = struct{}{}
		affected[c.OldCell] = struct{}{}
	}
	for _, c := range dirty.Updates {
		drop[c.Entity] = struct{}{}
		affected[c.OldCell] = struct{}{}
		affected[c.NewCell] = struct{}{}
		inserts[c.NewCell] = append(inserts[c.NewCell], Entry{Entity: c.Entity, Position: c.Position, CellID: c.NewCell})
	}
	for _, c := range dirty.Adds {
		affected[c.NewCell] = struct{}{}
		inserts[c.NewCell] = append(inserts[c.NewCell], Entry{Entity: c.Entity, Position: c.Position, CellID: c.NewCell})
	}
	var moved map[ecs.Entity]Vec3
	if len(dirty.Moved) > 0 {
		moved = make(map[ecs.Entity]Vec3, len(dirty.Moved))
		for _, c := range dirty.Moved {
			moved[c.Entity] = c.Position
		}
	}
	affectedIDs := make([]int, 0, len(affected))
	for id := range affected {
		affectedIDs = append(affectedIDs, id)
	}
	sort.Ints(affectedIDs)

	dst.entries = dst.entries[:0]
	dst.ranges = dst.ranges[:0]
	copyCell := func(r CellRange, filter bool) {
		for _, e := range src.entries[r.StartIndex : r.StartIndex+r.Count] {
			if filter {
				if _, gone := drop[e.Entity]; gone {
					continue
				}
			}
			if p, ok := moved[e.Entity]; ok {
				e.Position = p
			}
			dst.entries = append(dst.entries, e)
		}
	}
	emit := func(cell, start int) {
		if n := len(dst.entries) - start; n > 0 {
			dst.ranges = append(dst.ranges, CellRange{CellID: cell, StartIndex: start, Count: n})
		}
	}

	i, j := 0, 0
	for i < len(src.ranges) || j < len(affectedIDs) {
		start := len(dst.entries)
		switch {
		case j >= len(affectedIDs) || (i < len(src.ranges) && src.ranges[i].CellID < affectedIDs[j]):
			r := src.ranges[i]
			copyCell(r, false)
			emit(r.CellID, start)
			i++
		default:
			cell := affectedIDs[j]
			if i < len(src.ranges) && src.ranges[i].CellID == cell {
				copyCell(src.ranges[i], true)
				i++
			}
			dst.entries = append(dst.entries, inserts[cell]...)
			seg := dst.entries[start:]
			sort.Slice(seg, func(a, b int) bool { return seg[a].Entity.Less(seg[b].Entity) })
			emit(cell, start)
			j++
		}
	}
}

func (g *Grid) applyResidency(d DirtySet) {
	for _, c := range d.Removes {
		g.residency.Remove(c.Entity)
	}
	for _, list := range [][]Change{d.Adds, d.Updates, d.Moved} {
		for _, c := range list {
			g.residency.Set(c.Entity, Residency{CellID: c.NewCell, Position: c.Position})
		}
	}
}
