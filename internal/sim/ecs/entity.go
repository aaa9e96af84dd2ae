package ecs

import "fmt"

// Entity is an opaque stable handle. Index slots are recycled; Gen tells
// a recycled slot apart from the entity that previously held it.
type Entity struct {
	Index uint32
	Gen   uint32
}

// IsZero reports whether e is the "no entity" value.
func (e Entity) IsZero() bool { return e.Gen == 0 }

// Less orders entities by index, then generation. This is the canonical
// iteration order everywhere determinism matters.
func (e Entity) Less(o Entity) bool {
	if e.Index != o.Index {
		return e.Index < o.Index
	}
	return e.Gen < o.Gen
}

func (e Entity) String() string {
	if e.IsZero() {
		return "E(-)"
	}
	return fmt.Sprintf("E(%d:%d)", e.Index, e.Gen)
}

// Allocator hands out entity handles. Generations start at 1 so the zero
// Entity never names a live entity.
type Allocator struct {
	gens  []uint32
	alive []bool
	free  []uint32
}

// AllocatorState is the persisted form of an Allocator.
type AllocatorState struct {
	Gens  []uint32
	Alive []bool
	Free  []uint32
}

func NewAllocator() *Allocator { return &Allocator{} }

func (a *Allocator) New() Entity {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.gens[idx]++
		a.alive[idx] = true
		return Entity{Index: idx, Gen: a.gens[idx]}
	}
	idx := uint32(len(a.gens))
	a.gens = append(a.gens, 1)
	a.alive = append(a.alive, true)
	return Entity{Index: idx, Gen: 1}
}

func (a *Allocator) Alive(e Entity) bool {
	if e.IsZero() || int(e.Index) >= len(a.gens) {
		return false
	}
	return a.alive[e.Index] && a.gens[e.Index] == e.Gen
}

// Destroy frees e's slot. It returns false if e was not alive.
func (a *Allocator) Destroy(e Entity) bool {
	if !a.Alive(e) {
		return false
	}
	a.alive[e.Index] = false
	a.free = append(a.free, e.Index)
	return true
}

// Live returns all live entities in index order.
func (a *Allocator) Live() []Entity {
	out := make([]Entity, 0, len(a.gens)-len(a.free))
	for i, ok := range a.alive {
		if ok {
			out = append(out, Entity{Index: uint32(i), Gen: a.gens[i]})
		}
	}
	return out
}

func (a *Allocator) State() AllocatorState {
	return AllocatorState{
		Gens:  append([]uint32(nil), a.gens...),
		Alive: append([]bool(nil), a.alive...),
		Free:  append([]uint32(nil), a.free...),
	}
}

func (a *Allocator) Restore(s AllocatorState) {
	a.gens = append(a.gens[:0], s.Gens...)
	a.alive = append(a.alive[:0], s.Alive...)
	a.free = append(a.free[:0], s.Free...)
}
