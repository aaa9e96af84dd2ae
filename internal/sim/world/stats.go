package world

import (
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/jobs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/registry"
)

type StatsBucket struct {
	Assignments int `json:"assignments"`
	Completions int `json:"completions"`
	Interrupts  int `json:"interrupts"`
	Rejections  int `json:"rejections"`
}

// WorldStats keeps a sliding window of job activity, fed from the cumulative
// scheduler and registry counters.
type WorldStats struct {
	bucketTicks uint64
	windowTicks uint64

	buckets []StatsBucket
	curIdx  int
	curBase uint64 // start tick (inclusive) of current bucket

	lastJobs jobs.Stats
	lastReg  registry.Stats
	primed   bool
}

func NewWorldStats(bucketTicks, windowTicks uint64) *WorldStats {
	if bucketTicks <= 0 {
		bucketTicks = 300
	}
	if windowTicks < bucketTicks {
		windowTicks = bucketTicks
	}
	n := int(windowTicks / bucketTicks)
	if n < 1 {
		n = 1
	}
	return &WorldStats{
		bucketTicks: bucketTicks,
		windowTicks: uint64(n) * bucketTicks,
		buckets:     make([]StatsBucket, n),
		primed:      true,
	}
}

func (s *WorldStats) rotate(nowTick uint64) {
	if s == nil {
		return
	}
	// Move forward until nowTick is in [curBase, curBase+bucketTicks).
	for nowTick >= s.curBase+s.bucketTicks {
		s.curIdx = (s.curIdx + 1) % len(s.buckets)
		s.buckets[s.curIdx] = StatsBucket{}
		s.curBase += s.bucketTicks
	}
}

// Reset empties the window and rebases it at nowTick. Called after a
// restore, when the cumulative counters move backwards.
func (s *WorldStats) Reset(nowTick uint64) {
	if s == nil {
		return
	}
	for i := range s.buckets {
		s.buckets[i] = StatsBucket{}
	}
	s.curIdx = 0
	s.curBase = nowTick - nowTick%s.bucketTicks
	s.lastJobs = jobs.Stats{}
	s.lastReg = registry.Stats{}
	s.primed = false
}

// Observe folds the counter deltas since the previous call into the
// current bucket.
func (s *WorldStats) Observe(nowTick uint64, js jobs.Stats, rs registry.Stats) {
	if s == nil {
		return
	}
	s.rotate(nowTick)
	if s.primed {
		b := &s.buckets[s.curIdx]
		b.Assignments += delta(js.Assignments, s.lastJobs.Assignments)
		b.Completions += delta(js.Completions, s.lastJobs.Completions)
		b.Interrupts += delta(js.Interrupts, s.lastJobs.Interrupts)
		b.Rejections += delta(rs.Rejects, s.lastReg.Rejects)
	}
	s.lastJobs, s.lastReg, s.primed = js, rs, true
}

func delta(cur, prev uint64) int {
	if cur < prev {
		return 0
	}
	return int(cur - prev)
}

func (s *WorldStats) WindowTicks() uint64 {
	if s == nil {
		return 0
	}
	return s.windowTicks
}

func (s *WorldStats) Summarize(nowTick uint64) StatsBucket {
	if s == nil {
		return StatsBucket{}
	}
	s.rotate(nowTick)
	var out StatsBucket
	for _, b := range s.buckets {
		out.Assignments += b.Assignments
		out.Completions += b.Completions
		out.Interrupts += b.Interrupts
		out.Rejections += b.Rejections
	}
	return out
}
