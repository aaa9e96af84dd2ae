package registry

import (
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ecs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/spatial"
)

func (r *Registry) AddOffer(tick uint64, e ecs.Entity, pos spatial.Vec3, slots int, workAmount float64) {
	if slots < 1 {
		slots = 1
	}
	r.offers.Set(e, Offer{
		Entity:           e,
		Position:         pos,
		Slots:            slots,
		WorkAmount:       workAmount,
		CellID:           -1,
		LastMutationTick: tick,
	})
}

func (r *Registry) GetOffer(e ecs.Entity) (Offer, bool) { return r.offers.Value(e) }

func (r *Registry) Offers() []Offer {
	ents := r.offers.Entities()
	out := make([]Offer, len(ents))
	for i, e := range ents {
		out[i], _ = r.offers.Value(e)
	}
	return out
}

// ClaimOffer takes one slot. With Slots=1 the second claimant is always
// rejected until the first ticket is released.
func (r *Registry) ClaimOffer(tick uint64, holder, offer ecs.Entity) ReservationResult {
	o, ok := r.offers.Get(offer)
	if !ok {
		r.stats.UnknownLookups++
		return r.reject(RejectUnknown)
	}
	if o.ClaimFlags&ClaimOverride != 0 {
		return r.reject(RejectOverridden)
	}
	if o.ClaimFlags&ClaimLocked != 0 {
		return r.reject(RejectLocked)
	}
	if o.Taken >= o.Slots {
		return r.reject(RejectSlotsFull)
	}
	t := r.issue(tick, TicketOffer, holder, offer, 1)
	o.Taken++
	o.LastMutationTick = tick
	r.stats.Accepted++
	return accepted(t.ID, 1)
}

func (r *Registry) ReleaseOffer(tick uint64, ticketID uint64) ReleaseResult {
	return r.Release(tick, ticketID)
}

// Taken is the number of live tickets on offer.
func (r *Registry) Taken(offer ecs.Entity) int {
	o, _ := r.offers.Value(offer)
	return o.Taken
}
