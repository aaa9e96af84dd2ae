package rewind

import "sort"

type Stamped[I any] struct {
	Tick  uint64
	Input I
}

// Journal records external inputs by the tick they were applied in, so a
// restored state can be driven forward through the same inputs.
type Journal[I any] struct {
	entries []Stamped[I]
}

func NewJournal[I any]() *Journal[I] { return &Journal[I]{} }

// Append records in at tick. Entries stay sorted by tick; inputs within a
// tick keep their append order.
func (j *Journal[I]) Append(tick uint64, in I) {
	i := sort.Search(len(j.entries), func(i int) bool { return j.entries[i].Tick > tick })
	j.entries = append(j.entries, Stamped[I]{})
	copy(j.entries[i+1:], j.entries[i:])
	j.entries[i] = Stamped[I]{Tick: tick, Input: in}
}

func (j *Journal[I]) At(tick uint64) []I {
	lo := sort.Search(len(j.entries), func(i int) bool { return j.entries[i].Tick >= tick })
	var out []I
	for i := lo; i < len(j.entries) && j.entries[i].Tick == tick; i++ {
		out = append(out, j.entries[i].Input)
	}
	return out
}

// Range returns entries with from <= Tick < to.
func (j *Journal[I]) Range(from, to uint64) []Stamped[I] {
	lo := sort.Search(len(j.entries), func(i int) bool { return j.entries[i].Tick >= from })
	hi := sort.Search(len(j.entries), func(i int) bool { return j.entries[i].Tick >= to })
	return append([]Stamped[I](nil), j.entries[lo:hi]...)
}

// TruncateFrom drops entries at or after tick. Called when a new input
// branches history away from the recorded future.
func (j *Journal[I]) TruncateFrom(tick uint64) int {
	lo := sort.Search(len(j.entries), func(i int) bool { return j.entries[i].Tick >= tick })
	n := len(j.entries) - lo
	j.entries = j.entries[:lo]
	return n
}

// DropBefore forgets entries older than tick; they can no longer be replayed.
func (j *Journal[I]) DropBefore(tick uint64) {
	lo := sort.Search(len(j.entries), func(i int) bool { return j.entries[i].Tick >= tick })
	j.entries = append(j.entries[:0], j.entries[lo:]...)
}

// HasAfter reports whether any entry is newer than tick.
func (j *Journal[I]) HasAfter(tick uint64) bool {
	return len(j.entries) > 0 && j.entries[len(j.entries)-1].Tick > tick
}

func (j *Journal[I]) Len() int { return len(j.entries) }

func (j *Journal[I]) Entries() []Stamped[I] { return append([]Stamped[I](nil), j.entries...) }

func (j *Journal[I]) Reset(entries []Stamped[I]) {
	j.entries = append(j.entries[:0], entries...)
	sort.SliceStable(j.entries, func(a, b int) bool { return j.entries[a].Tick < j.entries[b].Tick })
}
