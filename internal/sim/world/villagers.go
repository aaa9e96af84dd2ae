package world

import (
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ai"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/clock"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/commands"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ecs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/jobs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/spatial"
)

const moraleOnCompletion = 0.25

// updateNeeds drifts every villager's needs and applies starvation. Deaths,
// from hunger or damage, are queued and take effect at the start of the next tick.
func (w *World) updateNeeds(nowTick uint64) {
	n := w.cfg.Tuning.Needs
	for _, e := range w.villagers.Entities() {
		v, _ := w.villagers.Get(e)
		if v.Health > 0 {
			v.Needs.Hunger = clampUnit(v.Needs.Hunger + n.HungerPerTick)
			v.Needs.Rest = clampUnit(v.Needs.Rest + n.RestPerTick)
			v.Needs.Morale = clampUnit(v.Needs.Morale + n.MoraleDecayPerTick)
			if v.Needs.Hunger >= 1 {
				v.Health = clampUnit(v.Health - n.StarvationDamage)
				if v.Health <= 0 {
					w.counters.Starved++
					w.log.Printf("tick %d: villager %v starved", nowTick, e)
				}
			}
		}
		if v.Health <= 0 {
			w.pendingDespawn = append(w.pendingDespawn, e)
		}
	}
}

// think senses and scores for every villager and emits at most one command
// each. Low-health villagers are sent to rest whatever they scored.
func (w *World) think(f clock.Frame) {
	view := w.grid.Active()
	cls := ai.ClassifierFunc(w.classify)
	t := w.cfg.Tuning
	for _, e := range w.villagers.Entities() {
		v, _ := w.villagers.Get(e)
		if v.Health <= 0 {
			continue
		}
		arch, err := w.catalogs.Archetypes.Lookup(v.Archetype)
		if err != nil {
			w.reg.CountUnknown()
			continue
		}
		pos, _ := w.positions.Value(e)
		sensor := arch.Sensor
		if sensor.Range <= 0 {
			sensor.Range = t.AI.SensorRange
		}
		if sensor.MaxResults <= 0 {
			sensor.MaxResults = t.AI.MaxResults
		}
		needs := v.Needs
		var examined int
		w.readings, examined = ai.Sense(w.readings, e, pos, sensor, view, cls, &needs)
		w.counters.LOSChecks += uint64(examined)

		res := ai.Evaluate(arch, w.readings)
		v.Utility = ai.UtilityState{
			BestActionIndex:    res.BestActionIndex,
			BestScore:          res.BestScore,
			BestTarget:         res.BestTarget,
			LastEvaluationTick: f.Tick,
		}
		v.Velocity = spatial.Vec3{}

		cmd := commands.Command{Agent: e, ActionIndex: res.BestActionIndex, Score: res.BestScore}
		switch {
		case v.Health < t.Needs.LowHealthInterrupt:
			cmd.Kind = commands.KindRest
		case res.BestActionIndex < 0:
			continue
		default:
			cmd.Kind = arch.Actions[res.BestActionIndex].Kind
			cmd.Target = res.BestTarget
		}
		if !cmd.Target.IsZero() {
			if tp, ok := w.positions.Value(cmd.Target); ok {
				cmd.DesiredVelocity = ai.Steer(pos, tp, t.Jobs.MoveSpeed)
				v.Velocity = cmd.DesiredVelocity
			}
		}
		w.cmds.Emit(cmd)
	}
}

// consumeSelfActions applies rest, eat and move commands for villagers the
// scheduler left idle this tick.
func (w *World) consumeSelfActions(f clock.Frame) {
	n := w.cfg.Tuning.Needs
	for _, cmd := range w.cmds.Commands() {
		switch cmd.Kind {
		case commands.KindRest, commands.KindEat, commands.KindMove:
		default:
			continue
		}
		if j, ok := w.sched.Job(cmd.Agent); ok && j.Phase != jobs.PhaseIdle {
			continue
		}
		v, ok := w.villagers.Get(cmd.Agent)
		if !ok {
			continue
		}
		switch cmd.Kind {
		case commands.KindRest:
			v.Needs.Rest = clampUnit(v.Needs.Rest - n.RestRecoveryPerTick)
			v.Health = clampUnit(v.Health + n.RestRecoveryPerTick)
		case commands.KindEat:
			w.eat(f.Tick, cmd.Agent, v)
		case commands.KindMove:
			if p, ok := w.positions.Get(cmd.Agent); ok {
				*p = p.Add(cmd.DesiredVelocity.Scale(f.Delta))
			}
		}
	}
}

// eat takes one meal from the nearest storehouse that holds food.
func (w *World) eat(nowTick uint64, e ecs.Entity, v *Villager) {
	if w.foodType < 0 || v.Needs.Hunger <= 0 {
		return
	}
	pos, _ := w.positions.Value(e)
	var (
		best  ecs.Entity
		bestD float64
	)
	for _, sh := range w.reg.Storehouses() {
		if w.foodType >= len(sh.Stored) || sh.Stored[w.foodType] <= 0 {
			continue
		}
		d := pos.DistSq(sh.Position)
		if best.IsZero() || d < bestD {
			best, bestD = sh.Entity, d
		}
	}
	if best.IsZero() {
		return
	}
	meal := w.cfg.Tuning.Needs.FoodPerMeal
	got := w.reg.Withdraw(nowTick, best, w.foodType, meal*v.Needs.Hunger)
	v.Needs.Hunger = clampUnit(v.Needs.Hunger - got/meal)
}

func (w *World) rewardCompletions(nowTick uint64) {
	for _, e := range w.villagers.Entities() {
		j, ok := w.sched.Job(e)
		if !ok || j.Phase != jobs.PhaseCompleted || j.PhaseTick != nowTick {
			continue
		}
		v, _ := w.villagers.Get(e)
		v.Needs.Morale = clampUnit(v.Needs.Morale - moraleOnCompletion)
	}
}
