package world

import (
	"time"

	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/clock"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/health"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/jobs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/spatial"
)

// stepInternal runs one tick of the pipeline. Phase order is fixed; see the
// numbered comments.
func (w *World) stepInternal() {
	stepStart := time.Now()
	switch w.rewind.Mode {
	case clock.ModePlayback, clock.ModeScrub:
		w.stepHistory()
		return
	}

	f := w.frame()
	nowTick := f.Tick
	if w.replay {
		for _, in := range w.journal.At(nowTick) {
			if _, err := w.apply(nowTick, in); err != nil {
				w.log.Printf("replay tick %d: %v", nowTick, err)
			}
			w.lastInputs = append(w.lastInputs, in)
		}
		if !w.journal.HasAfter(nowTick) {
			w.replay = false
		}
	}
	w.flushDespawns(nowTick)
	w.cmds.Begin(nowTick)

	// 1. dirty tracking + spatial rebuild
	w.rebuildGrid()

	// 2. registry: spatial sync, overrides, expiry, low-health interrupts
	w.updateRegistry(nowTick)

	// 3. needs, sensing and scoring; emits commands
	w.updateNeeds(nowTick)
	w.think(f)

	// 4. job requests, then execution
	env := w.env()
	w.sched.Request(f, env)
	w.consumeSelfActions(f)
	w.sched.Execute(f, env)
	w.rewardCompletions(nowTick)

	// 5. invariants
	mismatches := w.reg.Verify()
	if mismatches > 0 {
		w.log.Printf("tick %d: %d reservation mismatches", nowTick, mismatches)
	}

	// 6. clock
	next := w.clock.Advance()
	w.tick.Store(next)

	// 7. rewind history
	w.recordFrame(next)

	// 8. digest, tick log, metrics, presentation
	w.finishTick(nowTick, mismatches, time.Since(stepStart))
}

func (w *World) finishTick(nowTick uint64, mismatches int, took time.Duration) {
	next := w.clock.Tick()
	digest := w.stateDigest(next)
	w.lastDigest = digest
	gs := w.grid.State()

	if w.tickLogger != nil {
		entry := TickLogEntry{
			Tick:     nowTick,
			Inputs:   append([]Input(nil), w.lastInputs...),
			Strategy: gs.LastStrategy.String(),
			Version:  gs.Version,
			Commands: w.cmds.Len(),
			Digest:   digest,
		}
		if w.rewind.Mode != clock.ModeRecord {
			entry.Mode = w.rewind.Mode.String()
		}
		if err := w.tickLogger.WriteTick(entry); err != nil {
			w.log.Printf("tick log: %v", err)
		}
	}
	w.lastInputs = w.lastInputs[:0]

	if w.snapshotSink != nil && w.rewind.Mode == clock.ModeRecord {
		every := uint64(w.cfg.Tuning.Persist.SnapshotEveryTicks)
		if every > 0 && next%every == 0 {
			snap := w.ExportSnapshot()
			select {
			case w.snapshotSink <- snap:
			default:
				w.log.Printf("snapshot sink full; dropped tick %d", next)
			}
		}
	}

	if !w.cmds.Publish(w.bridge) {
		w.counters.MissingBridge++
	}

	w.stats.Observe(nowTick, w.sched.Stats(), w.reg.Stats())
	counters := w.countersWith(mismatches)
	report := health.Classify(counters, w.cfg.Tuning.Health)
	w.storeMetrics(counters, report, took)

	if w.observer != nil {
		w.observer.Publish(w.summary(counters, report, digest))
	}
}

func (w *World) rebuildGrid() {
	samples := w.samples[:0]
	for _, e := range w.positions.Entities() {
		p, _ := w.positions.Value(e)
		samples = append(samples, spatial.Sample{Entity: e, Position: p})
	}
	w.samples = samples
	if w.grid.Rebuild(samples) == spatial.StrategyNone && !w.warnedGrid {
		w.warnedGrid = true
		w.log.Printf("spatial grid config invalid, rebuild skipped: %v", w.grid.ConfigError())
	}
}

func (w *World) updateRegistry(nowTick uint64) {
	w.reg.SyncSpatial(w.grid.CellOf, w.grid.Version())
	if released := w.reg.ApplyOverrides(nowTick); len(released) > 0 {
		w.sched.InterruptHolders(nowTick, released, jobs.InterruptOverride)
	}
	for _, e := range w.reg.ExpireDepleted(nowTick, w.cfg.Tuning.Jobs.DepletedTTLTicks) {
		w.pendingDespawn = append(w.pendingDespawn, e)
	}
	low := w.cfg.Tuning.Needs.LowHealthInterrupt
	for _, e := range w.villagers.Entities() {
		v, _ := w.villagers.Value(e)
		if v.Health < low {
			w.sched.Interrupt(nowTick, e, jobs.InterruptLowHealth, w.reg)
		}
	}
}

// flushDespawns destroys entities whose removal was decided last tick, before
// the grid sees them again.
func (w *World) flushDespawns(nowTick uint64) {
	if len(w.pendingDespawn) == 0 {
		return
	}
	for _, e := range w.pendingDespawn {
		if w.alloc.Alive(e) {
			w.despawn(nowTick, e)
		}
	}
	w.pendingDespawn = w.pendingDespawn[:0]
}

// stepHistory advances playback by one recorded frame. Scrub holds still.
// Neither mode writes simulation state.
func (w *World) stepHistory() {
	w.counters.GuardedWrites++
	if w.rewind.Mode != clock.ModePlayback {
		return
	}
	cur := w.clock.Tick()
	if cur >= w.rewind.TargetTick {
		return
	}
	fr, ok := w.history.At(cur + 1)
	if !ok {
		return
	}
	w.restore(fr.State)
	w.tick.Store(fr.Tick)
	w.lastDigest = w.stateDigest(fr.Tick)
	counters := w.countersWith(w.reg.Verify())
	report := health.Classify(counters, w.cfg.Tuning.Health)
	w.storeMetrics(counters, report, 0)
	if w.observer != nil {
		w.observer.Publish(w.summary(counters, report, w.lastDigest))
	}
}
