package world

import (
	"errors"
	"fmt"

	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/clock"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ecs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/jobs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/registry"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/spatial"
)

var ErrNoHistory = errors.New("no recorded history")

type PositionRecord struct {
	Entity   ecs.Entity
	Position spatial.Vec3
}

type VillagerRecord struct {
	Entity   ecs.Entity
	Villager Villager
}

// State is one recorded frame: everything the pipeline reads, as it stood
// at the start of Tick before that tick's inputs.
type State struct {
	Tick           uint64
	Allocator      ecs.AllocatorState
	Positions      []PositionRecord
	Villagers      []VillagerRecord
	Grid           spatial.Snapshot
	Registry       registry.Snapshot
	Jobs           jobs.Snapshot
	Duplicates     uint64
	PendingDespawn []ecs.Entity
}

func (w *World) capture() State {
	s := State{
		Tick:           w.clock.Tick(),
		Allocator:      w.alloc.State(),
		Grid:           w.grid.Snapshot(),
		Registry:       w.reg.Snapshot(),
		Jobs:           w.sched.Snapshot(),
		Duplicates:     w.cmds.Duplicates(),
		PendingDespawn: append([]ecs.Entity(nil), w.pendingDespawn...),
	}
	s.Positions = make([]PositionRecord, 0, w.positions.Len())
	for _, e := range w.positions.Entities() {
		p, _ := w.positions.Value(e)
		s.Positions = append(s.Positions, PositionRecord{Entity: e, Position: p})
	}
	s.Villagers = make([]VillagerRecord, 0, w.villagers.Len())
	for _, e := range w.villagers.Entities() {
		v, _ := w.villagers.Value(e)
		s.Villagers = append(s.Villagers, VillagerRecord{Entity: e, Villager: v})
	}
	return s
}

func (w *World) restore(s State) {
	w.alloc.Restore(s.Allocator)
	w.positions.Clear()
	for _, r := range s.Positions {
		w.positions.Set(r.Entity, r.Position)
	}
	w.villagers.Clear()
	for _, r := range s.Villagers {
		w.villagers.Set(r.Entity, r.Villager)
	}
	w.grid.Restore(s.Grid)
	w.reg.Restore(s.Registry)
	w.sched.Restore(s.Jobs)
	w.cmds.Begin(s.Tick)
	w.cmds.SetDuplicates(s.Duplicates)
	w.pendingDespawn = append(w.pendingDespawn[:0], s.PendingDespawn...)
	w.clock.SetTick(s.Tick)
	w.tick.Store(s.Tick)
	w.stats.Reset(s.Tick)
}

// nearest finds the frame to restore for target, counting an underflow when
// target is older than anything still recorded.
func (w *World) nearest(target uint64) (State, error) {
	fr, clamped, ok := w.history.Nearest(target)
	if !ok {
		return State{}, ErrNoHistory
	}
	if clamped {
		w.counters.RewindUnderflows++
		w.log.Printf("rewind to %d underflows history; clamped to %d", target, fr.Tick)
	}
	return fr.State, nil
}

// RewindTo restores the nearest recorded frame at or before target and
// catches up deterministically by replaying journaled inputs. The world is
// back in record mode afterwards; the journal future is kept until a new
// input branches away from it.
func (w *World) RewindTo(target uint64) error {
	s, err := w.nearest(target)
	if err != nil {
		return err
	}
	if s.Tick > target {
		target = s.Tick
	}
	w.restore(s)
	w.replay = true
	w.lastInputs = w.lastInputs[:0]
	w.rewind.Mode = clock.ModeCatchUp
	w.rewind.TargetTick = target
	for w.clock.Tick() < target {
		w.stepInternal()
	}
	w.rewind.Mode = clock.ModeRecord
	w.rewind.TargetTick = 0
	w.lastDigest = w.stateDigest(w.clock.Tick())
	w.log.Printf("rewound to tick %d (from frame %d)", target, s.Tick)
	return nil
}

// Scrub shows the recorded frame nearest target without writing anything.
func (w *World) Scrub(target uint64) error {
	s, err := w.nearest(target)
	if err != nil {
		return err
	}
	w.restore(s)
	w.replay = true
	w.lastInputs = w.lastInputs[:0]
	w.rewind.Mode = clock.ModeScrub
	w.rewind.TargetTick = s.Tick
	w.lastDigest = w.stateDigest(s.Tick)
	return nil
}

// Playback steps through recorded frames from the current tick up to target,
// one frame per tick. It is clamped to the newest recorded frame.
func (w *World) Playback(target uint64) error {
	_, newest, ok := w.historyBounds()
	if !ok {
		return ErrNoHistory
	}
	if target > newest {
		target = newest
	}
	if w.rewind.Mode == clock.ModeRecord || w.rewind.Mode == clock.ModeCatchUp {
		w.replay = true
	}
	w.rewind.Mode = clock.ModePlayback
	w.rewind.TargetTick = target
	return nil
}

// Resume leaves playback or scrub and returns to recording from the shown
// tick. Stepping forward replays the journal until a new input branches.
func (w *World) Resume() {
	if w.rewind.Mode == clock.ModeRecord {
		return
	}
	w.rewind.Mode = clock.ModeRecord
	w.rewind.TargetTick = 0
	w.replay = w.journal.HasAfter(w.clock.Tick()) || len(w.journal.At(w.clock.Tick())) > 0
}

// AdvanceTo steps until the clock reaches tick.
func (w *World) AdvanceTo(tick uint64) error {
	if !w.rewind.AllowsWrites() {
		w.counters.GuardedWrites++
		return ErrWriteGuarded
	}
	if tick < w.clock.Tick() {
		return fmt.Errorf("advance to %d: already at %d", tick, w.clock.Tick())
	}
	for w.clock.Tick() < tick {
		w.stepInternal()
	}
	return nil
}

// recordFrame stores the current state as the history frame for tick and
// forgets journaled inputs older than the oldest frame still retained.
func (w *World) recordFrame(tick uint64) {
	w.history.Record(tick, w.capture())
	if o, ok := w.history.Oldest(); ok {
		w.journal.DropBefore(o.Tick)
	}
}
