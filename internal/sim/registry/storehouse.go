package registry

import (
	"math"

	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ecs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/spatial"
)

func (r *Registry) AddStorehouse(tick uint64, e ecs.Entity, pos spatial.Vec3, capacity float64) {
	r.storehouses.Set(e, Storehouse{Entity: e, Position: pos, Capacity: capacity, CellID: -1, LastMutationTick: tick})
}

func (r *Registry) GetStorehouse(e ecs.Entity) (Storehouse, bool) {
	s, ok := r.storehouses.Value(e)
	s.Stored = append([]float64(nil), s.Stored...)
	return s, ok
}

func (r *Registry) Storehouses() []Storehouse {
	ents := r.storehouses.Entities()
	out := make([]Storehouse, len(ents))
	for i, e := range ents {
		out[i], _ = r.GetStorehouse(e)
	}
	return out
}

// Deposit stores as much of units as fits and returns the accepted amount.
// A full or unknown storehouse accepts nothing and counts a failure.
func (r *Registry) Deposit(tick uint64, e ecs.Entity, typeIndex int, units float64) float64 {
	s, ok := r.storehouses.Get(e)
	if !ok || typeIndex < 0 {
		r.stats.UnknownLookups++
		r.stats.DepositFailures++
		return 0
	}
	if !(units > 0) {
		return 0
	}
	room := s.Capacity - s.Total()
	amt := math.Min(units, room)
	if !(amt > epsilon) {
		r.stats.DepositFailures++
		return 0
	}
	for len(s.Stored) <= typeIndex {
		s.Stored = append(s.Stored, 0)
	}
	s.Stored[typeIndex] += amt
	s.LastMutationTick = tick
	return amt
}

// Withdraw takes up to units of one type out of a storehouse.
func (r *Registry) Withdraw(tick uint64, e ecs.Entity, typeIndex int, units float64) float64 {
	s, ok := r.storehouses.Get(e)
	if !ok || typeIndex < 0 {
		r.stats.UnknownLookups++
		return 0
	}
	if typeIndex >= len(s.Stored) || !(units > 0) {
		return 0
	}
	amt := math.Min(units, s.Stored[typeIndex])
	s.Stored[typeIndex] -= amt
	s.LastMutationTick = tick
	return amt
}

func (r *Registry) Inventory(e ecs.Entity) (StorehouseInventory, bool) {
	s, ok := r.storehouses.Value(e)
	if !ok {
		return StorehouseInventory{}, false
	}
	return StorehouseInventory{
		TotalStored:   s.Total(),
		TotalCapacity: s.Capacity,
		ByType:        append([]float64(nil), s.Stored...),
	}, true
}
