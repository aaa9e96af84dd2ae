package world

import (
	"fmt"
	"math"

	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ai"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ecs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/jobs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/registry"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/spatial"
)

type InputKind string

const (
	InputSpawnVillager    InputKind = "SPAWN_VILLAGER"
	InputSpawnResource    InputKind = "SPAWN_RESOURCE"
	InputSpawnStorehouse  InputKind = "SPAWN_STOREHOUSE"
	InputSpawnWorkOffer   InputKind = "SPAWN_WORK_OFFER"
	InputDespawn          InputKind = "DESPAWN"
	InputSetClaimOverride InputKind = "SET_CLAIM_OVERRIDE"
	InputQueueIntent      InputKind = "QUEUE_INTENT"
	InputSetNeeds         InputKind = "SET_NEEDS"
	InputDamageVillager   InputKind = "DAMAGE_VILLAGER"
	InputDrainResource    InputKind = "DRAIN_RESOURCE"
)

// Input is an external event. Every applied input is journaled at the tick
// it was applied so a rewind can replay it.
type Input struct {
	Kind     InputKind    `json:"kind"`
	Entity   ecs.Entity   `json:"entity,omitempty"`
	Position spatial.Vec3 `json:"pos,omitempty"`

	Archetype string `json:"archetype,omitempty"`
	WithQueue bool   `json:"with_queue,omitempty"`

	Resource      string  `json:"resource,omitempty"`
	Units         float64 `json:"units,omitempty"`
	MaxConcurrent int     `json:"max_concurrent,omitempty"`
	Capacity      float64 `json:"capacity,omitempty"`
	Slots         int     `json:"slots,omitempty"`
	WorkAmount    float64 `json:"work_amount,omitempty"`

	Override bool        `json:"override,omitempty"`
	Intent   jobs.Intent `json:"intent,omitempty"`
	Needs    ai.Needs    `json:"needs,omitempty"`
	Damage   float64     `json:"damage,omitempty"`
}

func SpawnVillager(pos spatial.Vec3, archetype string, withQueue bool) Input {
	return Input{Kind: InputSpawnVillager, Position: pos, Archetype: archetype, WithQueue: withQueue}
}

func SpawnResource(pos spatial.Vec3, resource string, units float64) Input {
	return Input{Kind: InputSpawnResource, Position: pos, Resource: resource, Units: units}
}

func SpawnStorehouse(pos spatial.Vec3, capacity float64) Input {
	return Input{Kind: InputSpawnStorehouse, Position: pos, Capacity: capacity}
}

func SpawnWorkOffer(pos spatial.Vec3, slots int, work float64) Input {
	return Input{Kind: InputSpawnWorkOffer, Position: pos, Slots: slots, WorkAmount: work}
}

func Despawn(e ecs.Entity) Input { return Input{Kind: InputDespawn, Entity: e} }

func SetClaimOverride(e ecs.Entity, on bool) Input {
	return Input{Kind: InputSetClaimOverride, Entity: e, Override: on}
}

func QueueIntent(agent ecs.Entity, in jobs.Intent) Input {
	return Input{Kind: InputQueueIntent, Entity: agent, Intent: in}
}

func SetNeeds(agent ecs.Entity, n ai.Needs) Input {
	return Input{Kind: InputSetNeeds, Entity: agent, Needs: n}
}

func DamageVillager(agent ecs.Entity, amount float64) Input {
	return Input{Kind: InputDamageVillager, Entity: agent, Damage: amount}
}

// DrainResource removes units from a node outside any reservation, as a
// scripted event would.
func DrainResource(e ecs.Entity, units float64) Input {
	return Input{Kind: InputDrainResource, Entity: e, Units: units}
}

// Apply validates and applies in at the current tick, journaling it. Spawns
// return the new entity. After a rewind the first applied input discards
// the recorded future.
func (w *World) Apply(in Input) (ecs.Entity, error) {
	if !w.rewind.AllowsWrites() {
		w.counters.GuardedWrites++
		return ecs.Entity{}, ErrWriteGuarded
	}
	tick := w.clock.Tick()
	e, err := w.apply(tick, in)
	if err != nil {
		return e, err
	}
	if w.replay {
		dropped := w.journal.TruncateFrom(tick)
		w.history.TruncateAfter(tick)
		w.replay = false
		if dropped > 0 {
			w.log.Printf("branch at tick %d: dropped %d future inputs", tick, dropped)
		}
	}
	w.journal.Append(tick, in)
	w.lastInputs = append(w.lastInputs, in)
	return e, nil
}

// apply mutates state without journaling. Replay calls it directly.
func (w *World) apply(tick uint64, in Input) (ecs.Entity, error) {
	switch in.Kind {
	case InputSpawnVillager:
		return w.spawnVillager(tick, in)
	case InputSpawnResource:
		return w.spawnResource(tick, in)
	case InputSpawnStorehouse:
		if !in.Position.IsFinite() || !(in.Capacity > 0) {
			return ecs.Entity{}, fmt.Errorf("spawn storehouse: bad position or capacity %v", in.Capacity)
		}
		e := w.alloc.New()
		w.positions.Set(e, in.Position)
		w.reg.AddStorehouse(tick, e, in.Position, in.Capacity)
		return e, nil
	case InputSpawnWorkOffer:
		if !in.Position.IsFinite() || in.Slots < 1 {
			return ecs.Entity{}, fmt.Errorf("spawn work offer: bad position or slots %d", in.Slots)
		}
		e := w.alloc.New()
		w.positions.Set(e, in.Position)
		w.reg.AddOffer(tick, e, in.Position, in.Slots, in.WorkAmount)
		return e, nil
	case InputDespawn:
		if !w.alloc.Alive(in.Entity) {
			w.reg.CountUnknown()
			return ecs.Entity{}, fmt.Errorf("despawn %v: not alive", in.Entity)
		}
		w.despawn(tick, in.Entity)
		return in.Entity, nil
	case InputSetClaimOverride:
		flags := registry.ClaimFlags(0)
		if in.Override {
			flags = registry.ClaimOverride
		}
		if !w.reg.SetClaimFlags(tick, in.Entity, flags) {
			return ecs.Entity{}, fmt.Errorf("claim override %v: not a claimable target", in.Entity)
		}
		return in.Entity, nil
	case InputQueueIntent:
		if !w.sched.Enqueue(in.Entity, in.Intent) {
			return ecs.Entity{}, fmt.Errorf("queue intent %v: agent has no intent queue", in.Entity)
		}
		return in.Entity, nil
	case InputSetNeeds:
		v, ok := w.villagers.Get(in.Entity)
		if !ok {
			w.reg.CountUnknown()
			return ecs.Entity{}, fmt.Errorf("set needs %v: not a villager", in.Entity)
		}
		v.Needs = clampNeeds(in.Needs)
		return in.Entity, nil
	case InputDamageVillager:
		v, ok := w.villagers.Get(in.Entity)
		if !ok {
			w.reg.CountUnknown()
			return ecs.Entity{}, fmt.Errorf("damage %v: not a villager", in.Entity)
		}
		if !(in.Damage > 0) {
			return ecs.Entity{}, fmt.Errorf("damage %v: amount %v", in.Entity, in.Damage)
		}
		v.Health = clampUnit(v.Health - in.Damage)
		return in.Entity, nil
	case InputDrainResource:
		if !(in.Units > 0) {
			return ecs.Entity{}, fmt.Errorf("drain %v: amount %v", in.Entity, in.Units)
		}
		if !w.reg.Drain(tick, in.Entity, in.Units) {
			return ecs.Entity{}, fmt.Errorf("drain %v: not a resource", in.Entity)
		}
		return in.Entity, nil
	}
	return ecs.Entity{}, fmt.Errorf("unknown input kind %q", in.Kind)
}

func (w *World) spawnVillager(tick uint64, in Input) (ecs.Entity, error) {
	if !in.Position.IsFinite() {
		return ecs.Entity{}, fmt.Errorf("spawn villager: non-finite position")
	}
	arch := in.Archetype
	if arch == "" {
		arch = w.cfg.Tuning.AI.DefaultArchetype
	}
	if _, err := w.catalogs.Archetypes.Lookup(arch); err != nil {
		return ecs.Entity{}, fmt.Errorf("spawn villager: %w", err)
	}
	e := w.alloc.New()
	w.positions.Set(e, in.Position)
	w.villagers.Set(e, Villager{
		Archetype: arch,
		Health:    1,
		Utility:   ai.UtilityState{BestActionIndex: -1},
	})
	w.sched.Attach(e, tick, in.WithQueue)
	return e, nil
}

func (w *World) spawnResource(tick uint64, in Input) (ecs.Entity, error) {
	if !in.Position.IsFinite() {
		return ecs.Entity{}, fmt.Errorf("spawn resource: non-finite position")
	}
	idx, def, err := w.catalogs.Resources.Lookup(in.Resource)
	if err != nil {
		w.reg.CountUnknown()
		return ecs.Entity{}, fmt.Errorf("spawn resource: %w", err)
	}
	units := in.Units
	if !(units > 0) {
		units = def.Units
	}
	maxConc := in.MaxConcurrent
	if maxConc == 0 {
		maxConc = def.MaxConcurrent
	}
	e := w.alloc.New()
	w.positions.Set(e, in.Position)
	w.reg.Add(tick, e, idx, in.Position, units, maxConc)
	return e, nil
}

// despawn destroys e in every table. Holders of tickets on e are
// interrupted in the same call.
func (w *World) despawn(tick uint64, e ecs.Entity) {
	if w.villagers.Has(e) {
		w.sched.Detach(tick, e, w.reg)
		w.villagers.Remove(e)
	}
	if released := w.reg.Remove(tick, e); len(released) > 0 {
		w.sched.InterruptHolders(tick, released, jobs.InterruptTargetLost)
	}
	w.positions.Remove(e)
	w.alloc.Destroy(e)
	w.counters.Despawns++
}

func clampUnit(x float64) float64 {
	switch {
	case x < 0 || math.IsNaN(x):
		return 0
	case x > 1:
		return 1
	}
	return x
}

func clampNeeds(n ai.Needs) ai.Needs {
	return ai.Needs{Hunger: clampUnit(n.Hunger), Rest: clampUnit(n.Rest), Morale: clampUnit(n.Morale)}
}
