package registry

import (
	"math"
	"sort"

	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ecs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/spatial"
)

// Registry owns every claimable thing in the world: resource nodes, work
// offers and storehouses, plus the ticket table that ties holders to them.
// It is mutated only from the registry and job phases of a tick.
type Registry struct {
	resources   *ecs.Store[ResourceEntry]
	offers      *ecs.Store[Offer]
	storehouses *ecs.Store[Storehouse]

	tickets    map[uint64]*Ticket
	byTarget   map[ecs.Entity][]uint64
	nextTicket uint64

	stats Stats
}

func New() *Registry {
	return &Registry{
		resources:   ecs.NewStore[ResourceEntry](),
		offers:      ecs.NewStore[Offer](),
		storehouses: ecs.NewStore[Storehouse](),
		tickets:     map[uint64]*Ticket{},
		byTarget:    map[ecs.Entity][]uint64{},
		nextTicket:  1,
	}
}

func (r *Registry) Stats() Stats { return r.stats }

// CountUnknown records a lookup of an id that external config could not
// resolve.
func (r *Registry) CountUnknown() { r.stats.UnknownLookups++ }

func (r *Registry) Add(tick uint64, e ecs.Entity, typeIndex int, pos spatial.Vec3, units float64, maxConcurrent int) {
	if units < 0 || math.IsNaN(units) {
		units = 0
	}
	entry := ResourceEntry{
		Source:               e,
		ResourceTypeIndex:    typeIndex,
		Position:             pos,
		UnitsRemaining:       units,
		MaxConcurrentTickets: maxConcurrent,
		CellID:               -1,
		LastMutationTick:     tick,
	}
	if entry.Depleted() {
		entry.DepletedTick = tick
	}
	r.resources.Set(e, entry)
}

func (r *Registry) Get(e ecs.Entity) (ResourceEntry, bool) { return r.resources.Value(e) }

// Resources lists entries in entity order.
func (r *Registry) Resources() []ResourceEntry {
	ents := r.resources.Entities()
	out := make([]ResourceEntry, len(ents))
	for i, e := range ents {
		out[i], _ = r.resources.Value(e)
	}
	return out
}

// Remove drops e from whichever table holds it and releases every ticket on
// it. The released tickets are returned so their holders can be interrupted.
func (r *Registry) Remove(tick uint64, e ecs.Entity) []Ticket {
	out := r.releaseTarget(tick, e)
	r.resources.Remove(e)
	r.offers.Remove(e)
	r.storehouses.Remove(e)
	delete(r.byTarget, e)
	return out
}

// TryReserve claims up to units from resource. maxConcurrent <= 0 defers to
// the entry's own limit; when both are set the tighter one applies.
func (r *Registry) TryReserve(tick uint64, holder, resource ecs.Entity, units float64, maxConcurrent int) ReservationResult {
	entry, ok := r.resources.Get(resource)
	if !ok {
		r.stats.UnknownLookups++
		return r.reject(RejectUnknown)
	}
	if !(units > 0) || math.IsInf(units, 0) {
		return r.reject(RejectInvalidUnits)
	}
	if entry.ClaimFlags&ClaimOverride != 0 {
		return r.reject(RejectOverridden)
	}
	if entry.ClaimFlags&ClaimLocked != 0 {
		return r.reject(RejectLocked)
	}
	avail := entry.Available()
	if entry.Depleted() || avail <= 0 {
		return r.reject(RejectDepleted)
	}
	limit := maxConcurrent
	if entry.MaxConcurrentTickets > 0 && (limit <= 0 || entry.MaxConcurrentTickets < limit) {
		limit = entry.MaxConcurrentTickets
	}
	if limit > 0 && entry.ActiveTickets >= limit {
		return r.reject(RejectConcurrency)
	}
	if units > avail {
		units = avail
	}
	t := r.issue(tick, TicketResource, holder, resource, units)
	entry.ActiveTickets++
	entry.ReservedUnits += units
	entry.LastMutationTick = tick
	r.stats.Accepted++
	return accepted(t.ID, units)
}

func (r *Registry) reject(reason RejectReason) ReservationResult {
	r.stats.Rejects++
	return rejected(reason)
}

func (r *Registry) issue(tick uint64, kind TicketKind, holder, target ecs.Entity, units float64) *Ticket {
	t := &Ticket{ID: r.nextTicket, Kind: kind, Holder: holder, Target: target, Units: units, IssuedTick: tick}
	r.nextTicket++
	r.tickets[t.ID] = t
	r.byTarget[target] = append(r.byTarget[target], t.ID)
	return t
}

// Consume draws units against a live resource ticket. It never takes more
// than the ticket has outstanding or the resource has left, so a depleted
// resource cuts the holder short instead of going negative.
func (r *Registry) Consume(tick uint64, ticketID uint64, units float64) (float64, bool) {
	t, ok := r.tickets[ticketID]
	if !ok || t.Kind != TicketResource {
		return 0, false
	}
	entry, ok := r.resources.Get(t.Target)
	if !ok {
		return 0, false
	}
	amt := math.Min(units, math.Min(t.Outstanding(), entry.UnitsRemaining))
	if !(amt > 0) {
		return 0, true
	}
	t.Consumed += amt
	entry.UnitsRemaining -= amt
	entry.ReservedUnits -= amt
	if entry.ReservedUnits < epsilon {
		entry.ReservedUnits = 0
	}
	if entry.UnitsRemaining <= epsilon {
		entry.UnitsRemaining = 0
		entry.DepletedTick = tick
	}
	entry.LastMutationTick = tick
	return amt, true
}

// Release returns whatever the ticket has not consumed to the pool. Releasing
// twice reports AlreadyReleased.
func (r *Registry) Release(tick uint64, ticketID uint64) ReleaseResult {
	t, ok := r.tickets[ticketID]
	if !ok {
		if ticketID > 0 && ticketID < r.nextTicket {
			return AlreadyReleased
		}
		return UnknownTicket
	}
	r.drop(tick, t)
	return Released
}

func (r *Registry) drop(tick uint64, t *Ticket) {
	delete(r.tickets, t.ID)
	ids := r.byTarget[t.Target]
	for i, id := range ids {
		if id == t.ID {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(r.byTarget, t.Target)
	} else {
		r.byTarget[t.Target] = ids
	}

	switch t.Kind {
	case TicketResource:
		if entry, ok := r.resources.Get(t.Target); ok {
			entry.ReservedUnits -= t.Outstanding()
			if entry.ReservedUnits < epsilon {
				entry.ReservedUnits = 0
			}
			if entry.ActiveTickets > 0 {
				entry.ActiveTickets--
			}
			entry.LastMutationTick = tick
		}
	case TicketOffer:
		if o, ok := r.offers.Get(t.Target); ok {
			if o.Taken > 0 {
				o.Taken--
			}
			o.LastMutationTick = tick
		}
	}
}

func (r *Registry) releaseTarget(tick uint64, target ecs.Entity) []Ticket {
	ids := append([]uint64(nil), r.byTarget[target]...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]Ticket, 0, len(ids))
	for _, id := range ids {
		t := r.tickets[id]
		out = append(out, *t)
		r.drop(tick, t)
	}
	return out
}

func (r *Registry) Ticket(id uint64) (Ticket, bool) {
	t, ok := r.tickets[id]
	if !ok {
		return Ticket{}, false
	}
	return *t, true
}

// TicketsFor lists live tickets on target in issue order.
func (r *Registry) TicketsFor(target ecs.Entity) []Ticket {
	ids := r.byTarget[target]
	out := make([]Ticket, 0, len(ids))
	for _, id := range ids {
		out = append(out, *r.tickets[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) LiveTickets() []Ticket {
	out := make([]Ticket, 0, len(r.tickets))
	for _, t := range r.tickets {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) SetClaimFlags(tick uint64, e ecs.Entity, flags ClaimFlags) bool {
	if entry, ok := r.resources.Get(e); ok {
		entry.ClaimFlags = flags
		entry.LastMutationTick = tick
		return true
	}
	if o, ok := r.offers.Get(e); ok {
		o.ClaimFlags = flags
		o.LastMutationTick = tick
		return true
	}
	r.stats.UnknownLookups++
	return false
}

// ApplyOverrides force-releases every ticket on overridden resources and
// offers. The returned tickets are in ID order.
func (r *Registry) ApplyOverrides(tick uint64) []Ticket {
	var out []Ticket
	for _, e := range r.resources.Entities() {
		entry, _ := r.resources.Value(e)
		if entry.ClaimFlags&ClaimOverride != 0 && entry.ActiveTickets > 0 {
			out = append(out, r.releaseTarget(tick, e)...)
		}
	}
	for _, e := range r.offers.Entities() {
		o, _ := r.offers.Value(e)
		if o.ClaimFlags&ClaimOverride != 0 && o.Taken > 0 {
			out = append(out, r.releaseTarget(tick, e)...)
		}
	}
	r.stats.ForcedReleases += uint64(len(out))
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Drain removes units from a resource outside the ticket flow, e.g. decay
// or scripted events. Live tickets keep their reservation; Consume caps them
// at whatever is left.
func (r *Registry) Drain(tick uint64, e ecs.Entity, units float64) bool {
	entry, ok := r.resources.Get(e)
	if !ok {
		r.stats.UnknownLookups++
		return false
	}
	if !(units > 0) {
		return true
	}
	entry.UnitsRemaining = math.Max(0, entry.UnitsRemaining-units)
	if entry.UnitsRemaining <= epsilon {
		entry.UnitsRemaining = 0
		if entry.DepletedTick == 0 {
			entry.DepletedTick = tick
		}
	}
	entry.LastMutationTick = tick
	return true
}

// ExpireDepleted removes resources that have been empty and unclaimed for
// at least ttl ticks and returns their entities.
func (r *Registry) ExpireDepleted(tick, ttl uint64) []ecs.Entity {
	var out []ecs.Entity
	for _, e := range r.resources.Entities() {
		entry, _ := r.resources.Value(e)
		if !entry.Depleted() || entry.ActiveTickets > 0 || tick < entry.DepletedTick+ttl {
			continue
		}
		r.resources.Remove(e)
		out = append(out, e)
	}
	r.stats.Expired += uint64(len(out))
	return out
}

// SyncSpatial copies each registered entity's grid cell and the grid version
// into the registry.
func (r *Registry) SyncSpatial(cellOf func(ecs.Entity) (int, bool), version uint64) {
	for _, e := range r.resources.Entities() {
		entry, _ := r.resources.Get(e)
		if c, ok := cellOf(e); ok {
			entry.CellID = c
		} else {
			entry.CellID = -1
		}
		entry.SpatialVersion = version
	}
	for _, e := range r.offers.Entities() {
		o, _ := r.offers.Get(e)
		if c, ok := cellOf(e); ok {
			o.CellID = c
		} else {
			o.CellID = -1
		}
		o.SpatialVersion = version
	}
	for _, e := range r.storehouses.Entities() {
		s, _ := r.storehouses.Get(e)
		if c, ok := cellOf(e); ok {
			s.CellID = c
		} else {
			s.CellID = -1
		}
		s.SpatialVersion = version
	}
}

// Verify recomputes reservation bookkeeping from the ticket table and counts
// every entry that disagrees with it.
func (r *Registry) Verify() int {
	type agg struct {
		n     int
		units float64
	}
	sums := map[ecs.Entity]agg{}
	bad := 0
	for _, t := range r.tickets {
		a := sums[t.Target]
		a.n++
		a.units += t.Outstanding()
		sums[t.Target] = a
		if !r.resources.Has(t.Target) && !r.offers.Has(t.Target) {
			bad++
		}
	}
	for _, e := range r.resources.Entities() {
		entry, _ := r.resources.Value(e)
		a := sums[e]
		if entry.ActiveTickets != a.n || math.Abs(entry.ReservedUnits-a.units) > 1e-6 || entry.UnitsRemaining < 0 {
			bad++
		}
	}
	for _, e := range r.offers.Entities() {
		o, _ := r.offers.Value(e)
		if o.Taken != sums[e].n || (o.Slots > 0 && o.Taken > o.Slots) {
			bad++
		}
	}
	return bad
}
