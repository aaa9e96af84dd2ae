package registry

import (
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ecs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/spatial"
)

const epsilon = 1e-9

type ClaimFlags uint32

const (
	// ClaimOverride is set by an external actor (player, script). All live
	// tickets on the target are force-released in the tick it is seen.
	ClaimOverride ClaimFlags = 1 << iota
	// ClaimLocked blocks new reservations without touching live tickets.
	ClaimLocked
)

type RejectReason uint8

const (
	RejectNone RejectReason = iota
	RejectUnknown
	RejectInvalidUnits
	RejectDepleted
	RejectConcurrency
	RejectSlotsFull
	RejectOverridden
	RejectLocked
)

func (r RejectReason) String() string {
	switch r {
	case RejectNone:
		return "none"
	case RejectUnknown:
		return "unknown"
	case RejectInvalidUnits:
		return "invalid_units"
	case RejectDepleted:
		return "depleted"
	case RejectConcurrency:
		return "concurrency"
	case RejectSlotsFull:
		return "slots_full"
	case RejectOverridden:
		return "overridden"
	case RejectLocked:
		return "locked"
	default:
		return "reject?"
	}
}

type ReservationResult struct {
	Accepted      bool
	TicketID      uint64
	ReservedUnits float64
	Reason        RejectReason
}

func accepted(id uint64, units float64) ReservationResult {
	return ReservationResult{Accepted: true, TicketID: id, ReservedUnits: units}
}

func rejected(r RejectReason) ReservationResult { return ReservationResult{Reason: r} }

type ReleaseResult uint8

const (
	Released ReleaseResult = iota
	AlreadyReleased
	UnknownTicket
)

type TicketKind uint8

const (
	TicketResource TicketKind = iota
	TicketOffer
)

// Ticket is one live claim. Units is what was reserved; Consumed counts
// down against it as the holder gathers.
type Ticket struct {
	ID         uint64
	Kind       TicketKind
	Holder     ecs.Entity
	Target     ecs.Entity
	Units      float64
	Consumed   float64
	IssuedTick uint64
}

func (t Ticket) Outstanding() float64 {
	if d := t.Units - t.Consumed; d > epsilon {
		return d
	}
	return 0
}

type ResourceEntry struct {
	Source               ecs.Entity
	ResourceTypeIndex    int
	Position             spatial.Vec3
	UnitsRemaining       float64
	ReservedUnits        float64
	ActiveTickets        int
	MaxConcurrentTickets int
	ClaimFlags           ClaimFlags
	CellID               int
	SpatialVersion       uint64
	LastMutationTick     uint64
	// Zero while the resource still has units.
	DepletedTick uint64
}

func (r ResourceEntry) Available() float64 {
	if d := r.UnitsRemaining - r.ReservedUnits; d > epsilon {
		return d
	}
	return 0
}

func (r ResourceEntry) Depleted() bool { return r.UnitsRemaining <= epsilon }

// Offer is a slotted work site. Each slot is one ticket.
type Offer struct {
	Entity           ecs.Entity
	Position         spatial.Vec3
	Slots            int
	Taken            int
	WorkAmount       float64
	ClaimFlags       ClaimFlags
	CellID           int
	SpatialVersion   uint64
	LastMutationTick uint64
}

type Storehouse struct {
	Entity   ecs.Entity
	Position spatial.Vec3
	Capacity float64
	// Stored is indexed by resource type.
	Stored           []float64
	CellID           int
	SpatialVersion   uint64
	LastMutationTick uint64
}

func (s Storehouse) Total() float64 {
	t := 0.0
	for _, v := range s.Stored {
		t += v
	}
	return t
}

type StorehouseInventory struct {
	TotalStored   float64
	TotalCapacity float64
	ByType        []float64
}

// Stats are cumulative and part of simulation state.
type Stats struct {
	Accepted        uint64
	Rejects         uint64
	UnknownLookups  uint64
	ForcedReleases  uint64
	Expired         uint64
	DepositFailures uint64
}
