package registry

import (
	"sort"

	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ecs"
)

// Snapshot is the restorable registry state, every table in entity order and
// tickets in ID order.
type Snapshot struct {
	Resources   []ResourceEntry
	Offers      []Offer
	Storehouses []Storehouse
	Tickets     []Ticket
	NextTicket  uint64
	Stats       Stats
}

func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		Resources:   r.Resources(),
		Offers:      r.Offers(),
		Storehouses: r.Storehouses(),
		Tickets:     r.LiveTickets(),
		NextTicket:  r.nextTicket,
		Stats:       r.stats,
	}
}

func (r *Registry) Restore(s Snapshot) {
	r.resources.Clear()
	r.offers.Clear()
	r.storehouses.Clear()
	for _, e := range s.Resources {
		r.resources.Set(e.Source, e)
	}
	for _, o := range s.Offers {
		r.offers.Set(o.Entity, o)
	}
	for _, sh := range s.Storehouses {
		sh.Stored = append([]float64(nil), sh.Stored...)
		r.storehouses.Set(sh.Entity, sh)
	}
	r.tickets = make(map[uint64]*Ticket, len(s.Tickets))
	r.byTarget = make(map[ecs.Entity][]uint64)
	ts := append([]Ticket(nil), s.Tickets...)
	sort.Slice(ts, func(i, j int) bool { return ts[i].ID < ts[j].ID })
	for i := range ts {
		t := ts[i]
		r.tickets[t.ID] = &t
		r.byTarget[t.Target] = append(r.byTarget[t.Target], t.ID)
	}
	r.nextTicket = s.NextTicket
	if r.nextTicket == 0 {
		r.nextTicket = 1
	}
	r.stats = s.Stats
}
