package jobs

import (
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/clock"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ecs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/spatial"
)

// Execute advances every running job by one tick. Each job makes at most one
// phase transition per call, except that the gather which fills the ticket
// moves straight to Delivering.
func (s *Scheduler) Execute(f clock.Frame, env Env) {
	if !f.AllowsWrites() {
		s.stats.GuardedWrites++
		return
	}
	step := s.cfg.MoveSpeed * f.Delta
	for _, agent := range s.jobs.Entities() {
		j, _ := s.jobs.Get(agent)
		switch j.Phase {
		case PhaseAssigned:
			if j.PhaseTick >= f.Tick {
				continue
			}
			if _, ok := env.Registry.Ticket(j.Ticket.TicketID); !ok {
				s.Interrupt(f.Tick, agent, InterruptTargetLost, env.Registry)
				continue
			}
			if j.Kind == KindWork {
				j.enter(PhaseActing, f.Tick)
			} else {
				j.enter(PhaseGathering, f.Tick)
			}
		case PhaseGathering:
			s.gather(f, agent, j, env, step)
		case PhaseActing:
			s.act(f, agent, j, env, step)
		case PhaseDelivering:
			s.deliver(f, agent, j, env, step)
		}
	}
}

// approach moves agent toward target and reports whether it is within reach.
func approach(env Env, agent ecs.Entity, target spatial.Vec3, reach, step float64) bool {
	pos, ok := env.Positions.Get(agent)
	if !ok {
		return false
	}
	if pos.DistSq(target) <= reach*reach {
		return true
	}
	*pos = pos.MoveToward(target, step)
	return pos.DistSq(target) <= reach*reach
}

func (s *Scheduler) gather(f clock.Frame, agent ecs.Entity, j *Job, env Env, step float64) {
	entry, ok := env.Registry.Get(j.Ticket.ResourceEntity)
	if !ok {
		s.Interrupt(f.Tick, agent, InterruptTargetLost, env.Registry)
		return
	}
	if !approach(env, agent, entry.Position, s.cfg.GatherRange, step) {
		return
	}
	want := j.Ticket.ReservedUnits - j.Gathered
	if want > s.cfg.GatherRatePerWorker {
		want = s.cfg.GatherRatePerWorker
	}
	got, live := env.Registry.Consume(f.Tick, j.Ticket.TicketID, want)
	if !live {
		s.Interrupt(f.Tick, agent, InterruptTargetLost, env.Registry)
		return
	}
	j.Gathered += got
	j.Carried += got
	entry, _ = env.Registry.Get(j.Ticket.ResourceEntity)
	if j.Gathered >= j.Ticket.ReservedUnits-epsilon || entry.Depleted() || got <= epsilon {
		if j.Carried <= epsilon {
			// Nothing to deliver; the resource ran dry under us.
			s.Interrupt(f.Tick, agent, InterruptTargetLost, env.Registry)
			return
		}
		j.enter(PhaseDelivering, f.Tick)
	}
}

func (s *Scheduler) act(f clock.Frame, agent ecs.Entity, j *Job, env Env, step float64) {
	offer, ok := env.Registry.GetOffer(j.Ticket.ResourceEntity)
	if !ok {
		s.Interrupt(f.Tick, agent, InterruptTargetLost, env.Registry)
		return
	}
	if !approach(env, agent, offer.Position, s.cfg.GatherRange, step) {
		return
	}
	j.Progress += s.cfg.WorkRatePerTick
	if j.Progress >= j.WorkAmount-epsilon {
		s.complete(f.Tick, j, env)
	}
}

func (s *Scheduler) deliver(f clock.Frame, agent ecs.Entity, j *Job, env Env, step float64) {
	sh, ok := env.Registry.GetStorehouse(j.Ticket.StorehouseEntity)
	if !ok {
		if !s.retarget(agent, j, env, j.Ticket.StorehouseEntity) {
			s.Interrupt(f.Tick, agent, InterruptStorehouseLost, env.Registry)
		}
		return
	}
	if !approach(env, agent, sh.Position, s.cfg.DeliveryRange, step) {
		return
	}
	j.Carried -= env.Registry.Deposit(f.Tick, sh.Entity, j.ResourceType, j.Carried)
	if j.Carried > epsilon {
		if !s.retarget(agent, j, env, sh.Entity) {
			s.Interrupt(f.Tick, agent, InterruptStorehouseFull, env.Registry)
		}
		return
	}
	j.Carried = 0
	s.complete(f.Tick, j, env)
}

func (s *Scheduler) retarget(agent ecs.Entity, j *Job, env Env, exclude ecs.Entity) bool {
	pos, _ := env.Positions.Value(agent)
	next := nearestStorehouse(env.Registry, pos, exclude)
	if next.IsZero() {
		return false
	}
	j.Ticket.StorehouseEntity = next
	s.stats.DeliveryRetargets++
	return true
}

func (s *Scheduler) complete(tick uint64, j *Job, env Env) {
	env.Registry.Release(tick, j.Ticket.TicketID)
	j.Completions++
	j.enter(PhaseCompleted, tick)
	s.stats.Completions++
}
