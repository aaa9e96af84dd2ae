package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ecs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/spatial"
)

// StateDigest hashes the canonical simulation state. Wall-clock timings and
// cumulative telemetry are excluded, so two worlds fed the same inputs agree
// tick for tick.
func (w *World) StateDigest() string { return w.stateDigest(w.clock.Tick()) }

func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	w.digestEntities(h, &tmp)
	w.digestGrid(h, &tmp)
	w.digestRegistry(h, &tmp)
	w.digestJobs(h, &tmp)

	return hex.EncodeToString(h.Sum(nil))
}

func (w *World) digestEntities(h hashWriter, tmp *[8]byte) {
	live := w.alloc.Live()
	digestWriteU64(h, tmp, uint64(len(live)))
	for _, e := range live {
		digestWriteEntity(h, tmp, e)
	}
	for _, e := range w.positions.Entities() {
		p, _ := w.positions.Value(e)
		digestWriteEntity(h, tmp, e)
		digestWriteVec(h, tmp, p)
	}
	for _, e := range w.villagers.Entities() {
		v, _ := w.villagers.Value(e)
		digestWriteEntity(h, tmp, e)
		h.Write([]byte(v.Archetype))
		digestWriteF64(h, tmp, v.Needs.Hunger)
		digestWriteF64(h, tmp, v.Needs.Rest)
		digestWriteF64(h, tmp, v.Needs.Morale)
		digestWriteF64(h, tmp, v.Health)
		digestWriteI64(h, tmp, int64(v.Utility.BestActionIndex))
		digestWriteF64(h, tmp, v.Utility.BestScore)
		digestWriteEntity(h, tmp, v.Utility.BestTarget)
	}
	for _, e := range w.pendingDespawn {
		digestWriteEntity(h, tmp, e)
	}
}

func (w *World) digestGrid(h hashWriter, tmp *[8]byte) {
	st := w.grid.State()
	digestWriteU64(h, tmp, st.Version)
	digestWriteU64(h, tmp, uint64(st.ActiveBufferIndex))
	digestWriteU64(h, tmp, uint64(st.TotalEntries))
	h.Write([]byte{byte(st.LastStrategy), boolByte(w.grid.ConfigInvalid())})
	view := w.grid.Active()
	for _, r := range view.Ranges() {
		digestWriteI64(h, tmp, int64(r.CellID))
		digestWriteI64(h, tmp, int64(r.StartIndex))
		digestWriteI64(h, tmp, int64(r.Count))
	}
	for _, en := range view.Entries() {
		digestWriteEntity(h, tmp, en.Entity)
		digestWriteI64(h, tmp, int64(en.CellID))
	}
}

func (w *World) digestRegistry(h hashWriter, tmp *[8]byte) {
	for _, r := range w.reg.Resources() {
		digestWriteEntity(h, tmp, r.Source)
		digestWriteI64(h, tmp, int64(r.ResourceTypeIndex))
		digestWriteF64(h, tmp, r.UnitsRemaining)
		digestWriteF64(h, tmp, r.ReservedUnits)
		digestWriteI64(h, tmp, int64(r.ActiveTickets))
		digestWriteU64(h, tmp, uint64(r.ClaimFlags))
		digestWriteI64(h, tmp, int64(r.CellID))
	}
	for _, o := range w.reg.Offers() {
		digestWriteEntity(h, tmp, o.Entity)
		digestWriteI64(h, tmp, int64(o.Slots))
		digestWriteI64(h, tmp, int64(o.Taken))
		digestWriteU64(h, tmp, uint64(o.ClaimFlags))
	}
	for _, s := range w.reg.Storehouses() {
		digestWriteEntity(h, tmp, s.Entity)
		digestWriteF64(h, tmp, s.Capacity)
		for _, u := range s.Stored {
			digestWriteF64(h, tmp, u)
		}
	}
	for _, t := range w.reg.LiveTickets() {
		digestWriteU64(h, tmp, t.ID)
		digestWriteEntity(h, tmp, t.Holder)
		digestWriteEntity(h, tmp, t.Target)
		digestWriteF64(h, tmp, t.Units)
		digestWriteF64(h, tmp, t.Consumed)
	}
}

func (w *World) digestJobs(h hashWriter, tmp *[8]byte) {
	for _, a := range w.sched.Agents() {
		j, _ := w.sched.Job(a)
		digestWriteEntity(h, tmp, a)
		h.Write([]byte{byte(j.Phase), byte(j.Kind), byte(j.InterruptReason)})
		digestWriteU64(h, tmp, j.Ticket.TicketID)
		digestWriteEntity(h, tmp, j.Ticket.StorehouseEntity)
		digestWriteF64(h, tmp, j.Gathered)
		digestWriteF64(h, tmp, j.Carried)
		digestWriteF64(h, tmp, j.Progress)
		digestWriteU64(h, tmp, j.PhaseTick)
		digestWriteU64(h, tmp, j.Completions)
		q, ok := w.sched.Queue(a)
		h.Write([]byte{boolByte(ok)})
		for _, in := range q {
			h.Write([]byte{byte(in.Kind)})
			digestWriteEntity(h, tmp, in.Target)
			digestWriteI64(h, tmp, int64(in.Priority))
		}
	}
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func digestWriteEntity(h hashWriter, tmp *[8]byte, e ecs.Entity) {
	digestWriteU64(h, tmp, uint64(e.Index)<<32|uint64(e.Gen))
}

func digestWriteVec(h hashWriter, tmp *[8]byte, v spatial.Vec3) {
	digestWriteF64(h, tmp, v.X)
	digestWriteF64(h, tmp, v.Y)
	digestWriteF64(h, tmp, v.Z)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}
