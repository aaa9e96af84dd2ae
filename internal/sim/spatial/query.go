package spatial

import (
	"math"
	"sort"

	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ecs"
)

// View is a read-only handle on one complete grid buffer.
type View struct {
	cfg     Config
	entries []Entry
	ranges  []CellRange
	version uint64
}

type Neighbor struct {
	Entity     ecs.Entity
	Position   Vec3
	CellID     int
	DistanceSq float64
}

func (v View) Config() Config      { return v.cfg }
func (v View) Entries() []Entry    { return v.entries }
func (v View) Ranges() []CellRange { return v.ranges }
func (v View) Version() uint64     { return v.version }
func (v View) Len() int            { return len(v.entries) }

// EntriesInCell returns the entries of one cell, sorted by entity.
func (v View) EntriesInCell(cell int) []Entry {
	i := sort.Search(len(v.ranges), func(i int) bool { return v.ranges[i].CellID >= cell })
	if i == len(v.ranges) || v.ranges[i].CellID != cell {
		return nil
	}
	r := v.ranges[i]
	return v.entries[r.StartIndex : r.StartIndex+r.Count]
}

// FindKNearest returns up to k entries nearest to origin, ordered by squared
// distance then entity.
func (v View) FindKNearest(origin Vec3, k int) []Neighbor {
	out, _ := FindKNearest(origin, k, v.cfg, v.ranges, v.entries)
	return out
}

// QueryRange returns entries within radius of origin, ordered like
// FindKNearest. maxResults <= 0 means no limit.
func (v View) QueryRange(origin Vec3, radius float64, maxResults int) []Neighbor {
	out, _ := QueryRange(origin, radius, maxResults, v.cfg, v.ranges, v.entries)
	return out
}

// FindKNearest scans cells in expanding Chebyshev rings around origin's cell
// and stops once the k-th best candidate is closer than anything an unseen
// ring could hold. It also returns how many cells were visited.
func FindKNearest(origin Vec3, k int, cfg Config, ranges []CellRange, entries []Entry) ([]Neighbor, int) {
	if k <= 0 || len(entries) == 0 || !origin.IsFinite() || cfg.Validate() != nil {
		return nil, 0
	}
	s := newScan(origin, cfg, ranges, entries)
	maxRing := maxInt(cfg.CellCounts[0], maxInt(cfg.CellCounts[1], cfg.CellCounts[2]))
	for r := 0; r < maxRing; r++ {
		s.ring(r)
		if len(s.found) >= k {
			s.sort()
			bound := float64(r) * cfg.CellSize
			if s.found[k-1].DistanceSq <= bound*bound {
				break
			}
		}
	}
	s.sort()
	if len(s.found) > k {
		s.found = s.found[:k]
	}
	return s.found, s.visited
}

func QueryRange(origin Vec3, radius float64, maxResults int, cfg Config, ranges []CellRange, entries []Entry) ([]Neighbor, int) {
	if !(radius >= 0) || len(entries) == 0 || !origin.IsFinite() || cfg.Validate() != nil {
		return nil, 0
	}
	s := newScan(origin, cfg, ranges, entries)
	s.limit = radius * radius
	rings := int(math.Ceil(radius / cfg.CellSize))
	maxRing := maxInt(cfg.CellCounts[0], maxInt(cfg.CellCounts[1], cfg.CellCounts[2])) - 1
	if rings > maxRing {
		rings = maxRing
	}
	for r := 0; r <= rings; r++ {
		s.ring(r)
	}
	s.sort()
	if maxResults > 0 && len(s.found) > maxResults {
		s.found = s.found[:maxResults]
	}
	return s.found, s.visited
}

type scan struct {
	origin  Vec3
	center  [3]int
	cfg     Config
	view    View
	limit   float64
	found   []Neighbor
	visited int
	seen    map[int]struct{}
}

func newScan(origin Vec3, cfg Config, ranges []CellRange, entries []Entry) *scan {
	s := &scan{
		origin: origin,
		center: cfg.Coord(origin),
		cfg:    cfg,
		view:   View{cfg: cfg, ranges: ranges, entries: entries},
		limit:  math.Inf(1),
	}
	if cfg.ProviderID == ProviderHashed {
		// Distinct coordinates can share a hashed id.
		s.seen = make(map[int]struct{})
	}
	return s
}

// ring visits every in-bounds cell at Chebyshev distance exactly r.
func (s *scan) ring(r int) {
	for dz := -r; dz <= r; dz++ {
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				if maxInt(absInt(dx), maxInt(absInt(dy), absInt(dz))) != r {
					continue
				}
				c := [3]int{s.center[0] + dx, s.center[1] + dy, s.center[2] + dz}
				if !s.cfg.inside(c) {
					continue
				}
				s.cell(s.cfg.CellID(c))
			}
		}
	}
}

func (s *scan) cell(id int) {
	if s.seen != nil {
		if _, ok := s.seen[id]; ok {
			return
		}
		s.seen[id] = struct{}{}
	}
	s.visited++
	for _, e := range s.view.EntriesInCell(id) {
		d := s.origin.DistSq(e.Position)
		if d > s.limit {
			continue
		}
		s.found = append(s.found, Neighbor{Entity: e.Entity, Position: e.Position, CellID: e.CellID, DistanceSq: d})
	}
}

func (s *scan) sort() {
	sort.Slice(s.found, func(i, j int) bool {
		a, b := s.found[i], s.found[j]
		if a.DistanceSq != b.DistanceSq {
			return a.DistanceSq < b.DistanceSq
		}
		return a.Entity.Less(b.Entity)
	})
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func absInt(a int) int {
	if a < 0 {
		return -a
	}
	return a
}
