package world

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/MoniVibe/PureDOTS-sub002/internal/persistence/snapshot"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ai"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/catalogs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/clock"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/commands"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ecs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/health"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/jobs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/registry"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/rewind"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/spatial"
)

// ErrWriteGuarded is returned for inputs submitted while the world is
// showing recorded history (playback or scrub).
var ErrWriteGuarded = errors.New("world is read-only during playback/scrub")

// Villager is the per-agent component beyond position and job.
type Villager struct {
	Archetype string
	Needs     ai.Needs
	// Health in [0,1]; 0 despawns.
	Health   float64
	Utility  ai.UtilityState
	Velocity spatial.Vec3
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// Observer receives one read-only summary per recorded tick. Publish must
// not block.
type Observer interface {
	Publish(s Summary)
}

type TickLogEntry struct {
	Tick     uint64  `json:"tick"`
	Mode     string  `json:"mode,omitempty"`
	Inputs   []Input `json:"inputs,omitempty"`
	Strategy string  `json:"strategy"`
	Version  uint64  `json:"grid_version"`
	Commands int     `json:"commands"`
	Digest   string  `json:"digest"`
}

// Summary is the telemetry published to observers after each tick.
type Summary struct {
	WorldID   string          `json:"world_id"`
	Tick      uint64          `json:"tick"`
	Mode      string          `json:"mode"`
	Version   uint64          `json:"grid_version"`
	Strategy  string          `json:"strategy"`
	Villagers int             `json:"villagers"`
	Resources int             `json:"resources"`
	Counters  health.Counters `json:"counters"`
	Level     string          `json:"level"`
	Reasons   []string        `json:"reasons,omitempty"`
	// Occupancy is the per-cell entity count, RLE encoded.
	Occupancy string `json:"occupancy,omitempty"`
	Digest    string `json:"digest"`
}

// worldCounters are cumulative telemetry. They are not part of recorded
// state, so a rewind never rolls them back.
type worldCounters struct {
	LOSChecks        uint64
	MissingBridge    uint64
	RewindUnderflows uint64
	GuardedWrites    uint64
	Despawns         uint64
	Starved          uint64
}

type World struct {
	cfg      WorldConfig
	catalogs *catalogs.Catalogs
	log      *log.Logger
	runID    string

	tick atomic.Uint64

	clock  *clock.Clock
	rewind clock.RewindState
	// replay is set after a rewind while the journal still holds inputs
	// for ticks ahead of the clock.
	replay bool

	alloc     *ecs.Allocator
	positions *ecs.Store[spatial.Vec3]
	villagers *ecs.Store[Villager]

	grid  *spatial.Grid
	reg   *registry.Registry
	sched *jobs.Scheduler
	cmds  *commands.Queue

	history *rewind.Log[State]
	journal *rewind.Journal[Input]

	foodType       int
	pendingDespawn []ecs.Entity

	counters   worldCounters
	stats      *WorldStats
	lastDigest string
	lastInputs []Input
	readings   []ai.Reading
	samples    []spatial.Sample
	warnedGrid bool

	inbox   chan Input
	control chan controlReq
	stop    chan struct{}

	tickLogger   TickLogger
	snapshotSink chan<- snapshot.SnapshotV1
	bridge       commands.Bridge
	observer     Observer

	metrics atomic.Value
}

func New(cfg WorldConfig, cats *catalogs.Catalogs) (*World, error) {
	if cats == nil {
		return nil, fmt.Errorf("world: nil catalogs")
	}
	cfg.applyDefaults()
	t := cfg.Tuning
	if _, err := cats.Archetypes.Lookup(t.AI.DefaultArchetype); err != nil {
		return nil, fmt.Errorf("world: default archetype: %w", err)
	}
	food, _, err := cats.Resources.Lookup(t.Needs.FoodResourceType)
	if err != nil {
		food = -1
	}

	w := &World{
		cfg:       cfg,
		catalogs:  cats,
		log:       log.New(io.Discard, "", 0),
		runID:     uuid.NewString(),
		clock:     clock.New(t.FixedDelta, t.MaxTicksPerFrame),
		rewind:    clock.RewindState{Mode: clock.ModeRecord, MaxHistoryTicks: t.Rewind.MaxHistoryTicks},
		alloc:     ecs.NewAllocator(),
		positions: ecs.NewStore[spatial.Vec3](),
		villagers: ecs.NewStore[Villager](),
		grid:      spatial.NewGrid(gridConfig(t.Grid), t.Grid.PartialThreshold),
		reg:       registry.New(),
		sched:     jobs.New(jobsConfig(t.Jobs)),
		cmds:      commands.NewQueue(),
		history:   rewind.NewLog[State](t.Rewind.MaxHistoryTicks),
		journal:   rewind.NewJournal[Input](),
		foodType:  food,
		stats:     NewWorldStats(cfg.StatsBucketTicks, cfg.StatsWindowTicks),
		inbox:     make(chan Input, 1024),
		control:   make(chan controlReq, 64),
		stop:      make(chan struct{}),
	}
	w.recordFrame(0)
	w.lastDigest = w.stateDigest(0)
	return w, nil
}

func (w *World) SetLogger(l *log.Logger) {
	if l == nil {
		l = log.New(io.Discard, "", 0)
	}
	w.log = l
}

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }
func (w *World) SetBridge(b commands.Bridge)                   { w.bridge = b }
func (w *World) SetObserver(o Observer)                        { w.observer = o }
func (w *World) RunID() string                                 { return w.runID }
func (w *World) Config() WorldConfig                           { return w.cfg }
func (w *World) Catalogs() *catalogs.Catalogs                  { return w.catalogs }
func (w *World) CurrentTick() uint64                           { return w.tick.Load() }
func (w *World) Mode() clock.RewindMode                        { return w.rewind.Mode }
func (w *World) RewindState() clock.RewindState                { return w.rewind }
func (w *World) LastDigest() string                            { return w.lastDigest }
func (w *World) Grid() *spatial.Grid                           { return w.grid }
func (w *World) Registry() *registry.Registry                  { return w.reg }
func (w *World) Scheduler() *jobs.Scheduler                    { return w.sched }
func (w *World) Commands() *commands.Queue                     { return w.cmds }
func (w *World) Alive(e ecs.Entity) bool                       { return w.alloc.Alive(e) }
func (w *World) Position(e ecs.Entity) (spatial.Vec3, bool)    { return w.positions.Value(e) }
func (w *World) Villager(e ecs.Entity) (Villager, bool)        { return w.villagers.Value(e) }
func (w *World) History() (oldest, newest uint64, ok bool)     { return w.historyBounds() }
func (w *World) Journal() []rewind.Stamped[Input]              { return w.journal.Entries() }
func (w *World) Job(e ecs.Entity) (jobs.Job, bool)             { return w.sched.Job(e) }

func (w *World) Villagers() []ecs.Entity {
	return append([]ecs.Entity(nil), w.villagers.Entities()...)
}

func (w *World) ResourceNames() []string {
	return append([]string(nil), w.catalogs.Resources.Palette...)
}

func (w *World) ArchetypeNames() []string {
	return append([]string(nil), w.catalogs.Archetypes.Names...)
}

func (w *World) Inventory(e ecs.Entity) (registry.StorehouseInventory, bool) {
	return w.reg.Inventory(e)
}

func (w *World) historyBounds() (uint64, uint64, bool) {
	o, ok := w.history.Oldest()
	if !ok {
		return 0, 0, false
	}
	n, _ := w.history.Newest()
	return o.Tick, n.Tick, true
}

func (w *World) SetPaused(p bool) { w.clock.SetPaused(p) }

func (w *World) SetSpeed(s float64) {
	if s > w.cfg.Tuning.MaxSpeed {
		s = w.cfg.Tuning.MaxSpeed
	}
	w.clock.SetSpeed(s)
}

// classify maps an entity to its sensor category.
func (w *World) classify(e ecs.Entity) ai.Category {
	if w.villagers.Has(e) {
		return ai.CategoryVillager
	}
	if _, ok := w.reg.Get(e); ok {
		return ai.CategoryResource
	}
	if _, ok := w.reg.GetStorehouse(e); ok {
		return ai.CategoryStorehouse
	}
	if _, ok := w.reg.GetOffer(e); ok {
		return ai.CategoryWorkOffer
	}
	return ai.CategoryNone
}

func (w *World) env() jobs.Env {
	return jobs.Env{Registry: w.reg, Positions: w.positions, Commands: w.cmds}
}

func (w *World) frame() clock.Frame {
	return clock.Frame{Tick: w.clock.Tick(), Delta: w.clock.FixedDelta(), Rewind: w.rewind}
}
