package spatial

import "github.com/MoniVibe/PureDOTS-sub002/internal/sim/ecs"

// Residency caches where an entity was indexed by the last rebuild.
type Residency struct {
	CellID   int
	Position Vec3
}

type Change struct {
	Entity   ecs.Entity
	OldCell  int
	NewCell  int
	Position Vec3
}

// DirtySet classifies one tick of transform changes against the previous
// residency. Moved holds same-cell position changes; they are patched in
// place and do not count toward the dirty ratio.
type DirtySet struct {
	Adds    []Change
	Updates []Change
	Removes []Change
	Moved   []Change
}

func (d DirtySet) Count() int { return len(d.Adds) + len(d.Updates) + len(d.Removes) }

// Ratio is the dirty count over the larger of the previous and current
// population.
func (d DirtySet) Ratio(prevTotal, total int) float64 {
	den := prevTotal
	if total > den {
		den = total
	}
	if den == 0 {
		return 0
	}
	return float64(d.Count()) / float64(den)
}

type DirtyTracker struct{}

// Diff compares samples (sorted by entity, with their quantized cells)
// against residency. Both sides are walked in entity order so the output
// lists are sorted too.
func (DirtyTracker) Diff(res *ecs.Store[Residency], samples []Sample, cells []int) DirtySet {
	var d DirtySet
	prev := res.Entities()
	i, j := 0, 0
	for i < len(samples) || j < len(prev) {
		switch {
		case j >= len(prev) || (i < len(samples) && samples[i].Entity.Less(prev[j])):
			s := samples[i]
			d.Adds = append(d.Adds, Change{Entity: s.Entity, OldCell: -1, NewCell: cells[i], Position: s.Position})
			i++
		case i >= len(samples) || prev[j].Less(samples[i].Entity):
			r, _ := res.Value(prev[j])
			d.Removes = append(d.Removes, Change{Entity: prev[j], OldCell: r.CellID, NewCell: -1, Position: r.Position})
			j++
		default:
			s := samples[i]
			r, _ := res.Value(s.Entity)
			c := Change{Entity: s.Entity, OldCell: r.CellID, NewCell: cells[i], Position: s.Position}
			if r.CellID != cells[i] {
				d.Updates = append(d.Updates, c)
			} else if r.Position != s.Position {
				d.Moved = append(d.Moved, c)
			}
			i++
			j++
		}
	}
	return d
}
