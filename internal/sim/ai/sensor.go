package ai

import (
	"math"
	"sort"

	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ecs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/spatial"
)

// Sense fills buf with this tick's readings for an agent at origin: physical
// candidates first, then one virtual reading per need in fixed order. buf is
// truncated first, so calling Sense twice in a tick never accumulates. The
// second return is how many grid candidates were examined.
func Sense(buf []Reading, self ecs.Entity, origin spatial.Vec3, cfg SensorConfig, view spatial.View, cls Classifier, needs *Needs) ([]Reading, int) {
	buf = buf[:0]
	examined := 0
	if cfg.Range > 0 && cls != nil {
		cands := view.QueryRange(origin, cfg.Range, 0)
		examined = len(cands)
		var primary, secondary []Reading
		for _, c := range cands {
			if c.Entity == self {
				continue
			}
			cat := cls.Classify(c.Entity)
			r := Reading{
				Target:          c.Entity,
				DistanceSq:      c.DistanceSq,
				NormalizedScore: clamp01(1 - math.Sqrt(c.DistanceSq)/cfg.Range),
				CellID:          c.CellID,
				SpatialVersion:  view.Version(),
				Category:        cat,
			}
			switch {
			case cfg.PrimaryMask.Has(cat):
				primary = append(primary, r)
			case cfg.SecondaryMask.Has(cat):
				secondary = append(secondary, r)
			}
		}
		buf = append(buf, primary...)
		buf = append(buf, secondary...)
		if cfg.MaxResults > 0 && len(buf) > cfg.MaxResults {
			buf = buf[:cfg.MaxResults]
		}
		if cfg.RequireDeterministicSorting {
			sort.SliceStable(buf, func(i, j int) bool {
				if buf[i].DistanceSq != buf[j].DistanceSq {
					return buf[i].DistanceSq < buf[j].DistanceSq
				}
				return buf[i].Target.Less(buf[j].Target)
			})
		}
	}
	if needs != nil {
		for _, n := range [...]struct {
			need Need
			v    float64
		}{{NeedHunger, needs.Hunger}, {NeedRest, needs.Rest}, {NeedMorale, needs.Morale}} {
			buf = append(buf, Reading{NormalizedScore: clamp01(n.v), CellID: -1, Category: CategoryNeed, Need: n.need})
		}
	}
	return buf, examined
}
