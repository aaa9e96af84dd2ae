package world

import (
	"time"

	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/encoding"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/health"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/spatial"
)

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick   uint64 `json:"tick"`
	Mode   string `json:"mode"`
	Digest string `json:"digest"`

	Villagers   int `json:"villagers"`
	Resources   int `json:"resources"`
	Storehouses int `json:"storehouses"`
	Offers      int `json:"offers"`
	Tickets     int `json:"tickets"`

	GridVersion  uint64  `json:"grid_version"`
	GridStrategy string  `json:"grid_strategy"`
	RebuildMS    float64 `json:"rebuild_ms"`
	StepMS       float64 `json:"step_ms"`

	HistoryFrames int    `json:"history_frames"`
	HistoryOldest uint64 `json:"history_oldest"`
	HistoryNewest uint64 `json:"history_newest"`
	JournalLen    int    `json:"journal_len"`

	Counters     health.Counters `json:"counters"`
	HealthLevel  string          `json:"health_level"`
	HealthReason []string        `json:"health_reasons,omitempty"`

	StatsWindowTicks uint64      `json:"stats_window_ticks"`
	StatsWindow      StatsBucket `json:"stats_window"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

// Counters computes the health counters for the current state.
func (w *World) Counters() health.Counters { return w.countersWith(w.reg.Verify()) }

func (w *World) countersWith(mismatches int) health.Counters {
	rs := w.reg.Stats()
	js := w.sched.Stats()
	return health.Counters{
		Tick:                  w.clock.Tick(),
		StaleEntries:          w.grid.StaleEntries(w.alloc.Alive),
		DirtyRatio:            dirtyRatio(w.grid.State()),
		ReservationMismatches: mismatches,
		ReservationRejects:    rs.Rejects,
		LOSChecks:             w.counters.LOSChecks,
		MissingBridge:         w.counters.MissingBridge,
		UnknownLookups:        rs.UnknownLookups,
		RewindUnderflows:      w.counters.RewindUnderflows,
		GuardedWrites:         w.counters.GuardedWrites + js.GuardedWrites,
		ConfigInvalid:         w.grid.ConfigInvalid(),
		DuplicateCommands:     w.cmds.Duplicates(),
		DepositFailures:       rs.DepositFailures,
		MissingIntentQueues:   js.MissingIntentQueues,
	}
}

// dirtyRatio recovers the last rebuild's ratio from the grid state.
func dirtyRatio(st spatial.State) float64 {
	n := st.DirtyAddCount + st.DirtyUpdateCount + st.DirtyRemoveCount
	prev := st.TotalEntries - st.DirtyAddCount + st.DirtyRemoveCount
	den := st.TotalEntries
	if prev > den {
		den = prev
	}
	if den <= 0 {
		return 0
	}
	return float64(n) / float64(den)
}

func (w *World) storeMetrics(c health.Counters, r health.Report, took time.Duration) {
	gs := w.grid.State()
	oldest, newest, _ := w.historyBounds()
	w.metrics.Store(WorldMetrics{
		Tick:             c.Tick,
		Mode:             w.rewind.Mode.String(),
		Digest:           w.lastDigest,
		Villagers:        w.villagers.Len(),
		Resources:        len(w.reg.Resources()),
		Storehouses:      len(w.reg.Storehouses()),
		Offers:           len(w.reg.Offers()),
		Tickets:          len(w.reg.LiveTickets()),
		GridVersion:      gs.Version,
		GridStrategy:     gs.LastStrategy.String(),
		RebuildMS:        gs.LastRebuildMilliseconds,
		StepMS:           float64(took.Microseconds()) / 1000.0,
		HistoryFrames:    w.history.Len(),
		HistoryOldest:    oldest,
		HistoryNewest:    newest,
		JournalLen:       w.journal.Len(),
		Counters:         c,
		HealthLevel:      r.Level.String(),
		HealthReason:     r.Reasons,
		StatsWindowTicks: w.stats.WindowTicks(),
		StatsWindow:      w.stats.Summarize(c.Tick),
	})
}

// refreshMetrics republishes metrics outside a step, after a control request
// moved the world.
func (w *World) refreshMetrics() {
	c := w.countersWith(w.reg.Verify())
	w.storeMetrics(c, health.Classify(c, w.cfg.Tuning.Health), 0)
}

func (w *World) summary(c health.Counters, r health.Report, digest string) Summary {
	gs := w.grid.State()
	view := w.grid.Active()
	return Summary{
		WorldID:   w.cfg.ID,
		Tick:      c.Tick,
		Mode:      w.rewind.Mode.String(),
		Version:   gs.Version,
		Strategy:  gs.LastStrategy.String(),
		Villagers: w.villagers.Len(),
		Resources: len(w.reg.Resources()),
		Counters:  c,
		Level:     r.Level.String(),
		Reasons:   r.Reasons,
		Occupancy: encoding.EncodeOccupancy(view.Config().CellCount(), view.Ranges()),
		Digest:    digest,
	}
}
