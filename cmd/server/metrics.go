package main

import (
	"fmt"
	"io"

	"github.com/MoniVibe/PureDOTS-sub002/internal/persistence/indexdb"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/world"
)

type metricsInput struct {
	WorldID   string
	World     world.WorldMetrics
	Index     *indexdb.Stats
	Observers int
	Dropped   uint64
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

func healthGauge(level string) int {
	switch level {
	case "warning":
		return 1
	case "failure":
		return 2
	}
	return 0
}

// writeMetrics renders the minimal Prometheus exposition format.
func writeMetrics(rw io.Writer, in metricsInput) {
	id := in.WorldID
	m := in.World
	c := m.Counters

	fmt.Fprintf(rw, "# HELP puredots_world_tick Current world tick.\n")
	fmt.Fprintf(rw, "# TYPE puredots_world_tick gauge\n")
	fmt.Fprintf(rw, "puredots_world_tick{world=%q} %d\n", id, m.Tick)

	fmt.Fprintf(rw, "# HELP puredots_world_entities Live entities by role.\n")
	fmt.Fprintf(rw, "# TYPE puredots_world_entities gauge\n")
	fmt.Fprintf(rw, "puredots_world_entities{world=%q,role=%q} %d\n", id, "villager", m.Villagers)
	fmt.Fprintf(rw, "puredots_world_entities{world=%q,role=%q} %d\n", id, "resource", m.Resources)
	fmt.Fprintf(rw, "puredots_world_entities{world=%q,role=%q} %d\n", id, "storehouse", m.Storehouses)
	fmt.Fprintf(rw, "puredots_world_entities{world=%q,role=%q} %d\n", id, "work_offer", m.Offers)

	fmt.Fprintf(rw, "# HELP puredots_world_tickets Live reservation tickets.\n")
	fmt.Fprintf(rw, "# TYPE puredots_world_tickets gauge\n")
	fmt.Fprintf(rw, "puredots_world_tickets{world=%q} %d\n", id, m.Tickets)

	fmt.Fprintf(rw, "# HELP puredots_grid_version Spatial grid version.\n")
	fmt.Fprintf(rw, "# TYPE puredots_grid_version gauge\n")
	fmt.Fprintf(rw, "puredots_grid_version{world=%q,strategy=%q} %d\n", id, m.GridStrategy, m.GridVersion)

	fmt.Fprintf(rw, "# HELP puredots_grid_rebuild_ms Last grid rebuild duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE puredots_grid_rebuild_ms gauge\n")
	fmt.Fprintf(rw, "puredots_grid_rebuild_ms{world=%q} %.3f\n", id, m.RebuildMS)

	fmt.Fprintf(rw, "# HELP puredots_world_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE puredots_world_step_ms gauge\n")
	fmt.Fprintf(rw, "puredots_world_step_ms{world=%q} %.3f\n", id, m.StepMS)

	fmt.Fprintf(rw, "# HELP puredots_rewind_frames Recorded rewind frames and journaled inputs.\n")
	fmt.Fprintf(rw, "# TYPE puredots_rewind_frames gauge\n")
	fmt.Fprintf(rw, "puredots_rewind_frames{world=%q,kind=%q} %d\n", id, "history", m.HistoryFrames)
	fmt.Fprintf(rw, "puredots_rewind_frames{world=%q,kind=%q} %d\n", id, "journal", m.JournalLen)

	fmt.Fprintf(rw, "# HELP puredots_health_level 0 ok, 1 warn, 2 fail.\n")
	fmt.Fprintf(rw, "# TYPE puredots_health_level gauge\n")
	fmt.Fprintf(rw, "puredots_health_level{world=%q} %d\n", id, healthGauge(m.HealthLevel))

	fmt.Fprintf(rw, "# HELP puredots_health_gauge Current health signals.\n")
	fmt.Fprintf(rw, "# TYPE puredots_health_gauge gauge\n")
	fmt.Fprintf(rw, "puredots_health_gauge{world=%q,signal=%q} %d\n", id, "stale_entries", c.StaleEntries)
	fmt.Fprintf(rw, "puredots_health_gauge{world=%q,signal=%q} %.6f\n", id, "dirty_ratio", c.DirtyRatio)
	fmt.Fprintf(rw, "puredots_health_gauge{world=%q,signal=%q} %d\n", id, "reservation_mismatches", c.ReservationMismatches)
	fmt.Fprintf(rw, "puredots_health_gauge{world=%q,signal=%q} %d\n", id, "config_invalid", boolGauge(c.ConfigInvalid))

	fmt.Fprintf(rw, "# HELP puredots_health_total Cumulative health counters.\n")
	fmt.Fprintf(rw, "# TYPE puredots_health_total counter\n")
	for _, kv := range []struct {
		name string
		v    uint64
	}{
		{"reservation_rejects", c.ReservationRejects},
		{"los_checks", c.LOSChecks},
		{"missing_bridge", c.MissingBridge},
		{"unknown_lookups", c.UnknownLookups},
		{"rewind_underflows", c.RewindUnderflows},
		{"guarded_writes", c.GuardedWrites},
		{"duplicate_commands", c.DuplicateCommands},
		{"deposit_failures", c.DepositFailures},
		{"missing_intent_queues", c.MissingIntentQueues},
	} {
		fmt.Fprintf(rw, "puredots_health_total{world=%q,counter=%q} %d\n", id, kv.name, kv.v)
	}

	fmt.Fprintf(rw, "# HELP puredots_stats_window Rolling window job stats.\n")
	fmt.Fprintf(rw, "# TYPE puredots_stats_window gauge\n")
	fmt.Fprintf(rw, "puredots_stats_window{world=%q,metric=%q} %d\n", id, "assignments", m.StatsWindow.Assignments)
	fmt.Fprintf(rw, "puredots_stats_window{world=%q,metric=%q} %d\n", id, "completions", m.StatsWindow.Completions)
	fmt.Fprintf(rw, "puredots_stats_window{world=%q,metric=%q} %d\n", id, "interrupts", m.StatsWindow.Interrupts)
	fmt.Fprintf(rw, "puredots_stats_window{world=%q,metric=%q} %d\n", id, "rejections", m.StatsWindow.Rejections)

	fmt.Fprintf(rw, "# HELP puredots_stats_window_ticks Rolling window size in ticks.\n")
	fmt.Fprintf(rw, "# TYPE puredots_stats_window_ticks gauge\n")
	fmt.Fprintf(rw, "puredots_stats_window_ticks{world=%q} %d\n", id, m.StatsWindowTicks)

	fmt.Fprintf(rw, "# HELP puredots_observers Connected observer sessions.\n")
	fmt.Fprintf(rw, "# TYPE puredots_observers gauge\n")
	fmt.Fprintf(rw, "puredots_observers{world=%q} %d\n", id, in.Observers)
	fmt.Fprintf(rw, "# HELP puredots_observer_dropped_total Observer messages dropped for slow clients.\n")
	fmt.Fprintf(rw, "# TYPE puredots_observer_dropped_total counter\n")
	fmt.Fprintf(rw, "puredots_observer_dropped_total{world=%q} %d\n", id, in.Dropped)

	if in.Index == nil {
		return
	}
	s := in.Index
	fmt.Fprintf(rw, "# HELP puredots_index_queue_depth Index writer queue depth.\n")
	fmt.Fprintf(rw, "# TYPE puredots_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "puredots_index_queue_depth{world=%q} %d\n", id, s.QueueDepth)
	fmt.Fprintf(rw, "# HELP puredots_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE puredots_index_dropped_total counter\n")
	fmt.Fprintf(rw, "puredots_index_dropped_total{world=%q,kind=%q} %d\n", id, "tick", s.DropTickTotal)
	fmt.Fprintf(rw, "puredots_index_dropped_total{world=%q,kind=%q} %d\n", id, "snapshot", s.DropSnapshotTotal)
	fmt.Fprintf(rw, "puredots_index_dropped_total{world=%q,kind=%q} %d\n", id, "health", s.DropHealthTotal)
}
