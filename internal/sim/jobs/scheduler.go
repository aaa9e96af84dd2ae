package jobs

import (
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/clock"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/commands"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ecs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/registry"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/spatial"
)

const epsilon = 1e-9

// Env is what the scheduler reads and writes outside its own tables.
// Commands may be nil.
type Env struct {
	Registry  *registry.Registry
	Positions *ecs.Store[spatial.Vec3]
	Commands  *commands.Queue
}

type Scheduler struct {
	cfg    Config
	jobs   *ecs.Store[Job]
	queues *ecs.Store[IntentQueue]
	stats  Stats
}

func New(cfg Config) *Scheduler {
	return &Scheduler{
		cfg:    cfg.withDefaults(),
		jobs:   ecs.NewStore[Job](),
		queues: ecs.NewStore[IntentQueue](),
	}
}

func (s *Scheduler) Config() Config { return s.cfg }
func (s *Scheduler) Stats() Stats   { return s.stats }

// Attach registers agent as a worker. withQueue also gives it an intent queue.
func (s *Scheduler) Attach(agent ecs.Entity, tick uint64, withQueue bool) {
	s.jobs.Set(agent, Job{Phase: PhaseIdle, PhaseTick: tick})
	if withQueue {
		s.queues.Set(agent, IntentQueue{})
	}
}

// Detach removes agent, releasing whatever it held.
func (s *Scheduler) Detach(tick uint64, agent ecs.Entity, reg *registry.Registry) {
	if j, ok := s.jobs.Get(agent); ok && j.Phase.Active() && j.Ticket.TicketID != 0 {
		reg.Release(tick, j.Ticket.TicketID)
	}
	s.jobs.Remove(agent)
	s.queues.Remove(agent)
}

func (s *Scheduler) Job(agent ecs.Entity) (Job, bool) { return s.jobs.Value(agent) }

func (s *Scheduler) Agents() []ecs.Entity { return append([]ecs.Entity(nil), s.jobs.Entities()...) }

func (s *Scheduler) Queue(agent ecs.Entity) ([]Intent, bool) {
	q, ok := s.queues.Value(agent)
	return append([]Intent(nil), q.Intents...), ok
}

// Enqueue appends to agent's intent queue. Agents without a queue reject the
// intent and it is counted.
func (s *Scheduler) Enqueue(agent ecs.Entity, in Intent) bool {
	q, ok := s.queues.Get(agent)
	if !ok {
		s.stats.MissingIntentQueues++
		return false
	}
	q.Intents = append(q.Intents, in)
	return true
}

// Interrupt stops agent's job and releases its ticket in the same call.
// Idle, Completed and already Interrupted jobs are left alone.
func (s *Scheduler) Interrupt(tick uint64, agent ecs.Entity, reason InterruptReason, reg *registry.Registry) bool {
	j, ok := s.jobs.Get(agent)
	if !ok || !j.Phase.Active() {
		return false
	}
	if j.Ticket.TicketID != 0 {
		reg.Release(tick, j.Ticket.TicketID)
	}
	j.InterruptReason = reason
	j.enter(PhaseInterrupted, tick)
	s.stats.Interrupts++
	return true
}

// InterruptHolders interrupts the holders of tickets the registry already
// released (override, destroyed target).
func (s *Scheduler) InterruptHolders(tick uint64, released []registry.Ticket, reason InterruptReason) int {
	n := 0
	for _, t := range released {
		j, ok := s.jobs.Get(t.Holder)
		if !ok || !j.Phase.Active() || j.Ticket.TicketID != t.ID {
			continue
		}
		j.InterruptReason = reason
		j.enter(PhaseInterrupted, tick)
		s.stats.Interrupts++
		n++
	}
	return n
}

// Request runs the assignment pass: finished jobs go back to Idle (and sit
// out this pass), idle agents take their queue head or this tick's command,
// and a higher-priority queue head may replace a running job.
func (s *Scheduler) Request(f clock.Frame, env Env) {
	if !f.AllowsWrites() {
		s.stats.GuardedWrites++
		return
	}
	for _, agent := range s.jobs.Entities() {
		j, _ := s.jobs.Get(agent)
		switch j.Phase {
		case PhaseCompleted, PhaseInterrupted:
			j.reset(f.Tick)
			continue
		}

		var head *Intent
		q, hasQueue := s.queues.Get(agent)
		if hasQueue && len(q.Intents) > 0 {
			head = &q.Intents[0]
		}

		if j.Phase == PhaseIdle {
			if head != nil {
				in := *head
				res, ok := s.start(f.Tick, agent, in, env)
				switch {
				case ok:
					s.popHead(agent)
					s.commit(agent, res)
				case permanent(res.reason):
					s.popHead(agent)
					s.stats.DroppedIntents++
				}
				continue
			}
			if env.Commands == nil {
				continue
			}
			if cmd, ok := env.Commands.For(agent); ok {
				if in, ok := intentFromCommand(cmd); ok {
					if res, ok := s.start(f.Tick, agent, in, env); ok {
						s.commit(agent, res)
					}
				}
			}
			continue
		}

		if head != nil && j.Phase.Active() && head.Priority > j.Priority {
			if j.Carried > epsilon {
				// Cargo is delivered before the job can be replaced.
				if j.Phase == PhaseGathering {
					j.enter(PhaseDelivering, f.Tick)
				}
				continue
			}
			in := *head
			res, ok := s.start(f.Tick, agent, in, env)
			if !ok {
				if permanent(res.reason) {
					s.popHead(agent)
					s.stats.DroppedIntents++
				}
				continue
			}
			if j.Ticket.TicketID != 0 {
				env.Registry.Release(f.Tick, j.Ticket.TicketID)
			}
			s.popHead(agent)
			s.commit(agent, res)
			s.stats.Preemptions++
		}
	}
}

func (s *Scheduler) popHead(agent ecs.Entity) {
	if q, ok := s.queues.Get(agent); ok && len(q.Intents) > 0 {
		q.Intents = append(q.Intents[:0], q.Intents[1:]...)
	}
}

type startResult struct {
	job    Job
	reason registry.RejectReason
}

func permanent(r registry.RejectReason) bool {
	switch r {
	case registry.RejectUnknown, registry.RejectDepleted, registry.RejectInvalidUnits:
		return true
	}
	return false
}

// start tries to reserve for in and builds the Assigned job. It does not
// write the job table.
func (s *Scheduler) start(tick uint64, agent ecs.Entity, in Intent, env Env) (startResult, bool) {
	reg := env.Registry
	switch in.Kind {
	case KindGather:
		entry, ok := reg.Get(in.Target)
		if !ok {
			reg.CountUnknown()
			s.stats.Rejections++
			return startResult{reason: registry.RejectUnknown}, false
		}
		store := in.Storehouse
		if _, ok := reg.GetStorehouse(store); !ok {
			store = nearestStorehouse(reg, entry.Position, ecs.Entity{})
			if store.IsZero() {
				s.stats.Rejections++
				return startResult{reason: registry.RejectUnknown}, false
			}
		}
		res := reg.TryReserve(tick, agent, in.Target, s.cfg.RequestUnits, s.cfg.MaxTicketsPerResource)
		if !res.Accepted {
			s.stats.Rejections++
			return startResult{reason: res.Reason}, false
		}
		return startResult{job: Job{
			Phase:        PhaseAssigned,
			Kind:         KindGather,
			Priority:     in.Priority,
			ResourceType: entry.ResourceTypeIndex,
			PhaseTick:    tick,
			Ticket: JobTicket{
				TicketID:         res.TicketID,
				ResourceEntity:   in.Target,
				StorehouseEntity: store,
				ReservedUnits:    res.ReservedUnits,
				AssignedTick:     tick,
			},
		}}, true
	case KindWork:
		offer, ok := reg.GetOffer(in.Target)
		res := reg.ClaimOffer(tick, agent, in.Target)
		if !res.Accepted {
			s.stats.Rejections++
			return startResult{reason: res.Reason}, false
		}
		return startResult{job: Job{
			Phase:      PhaseAssigned,
			Kind:       KindWork,
			Priority:   in.Priority,
			WorkAmount: offerWork(offer, ok),
			PhaseTick:  tick,
			Ticket: JobTicket{
				TicketID:       res.TicketID,
				ResourceEntity: in.Target,
				ReservedUnits:  res.ReservedUnits,
				AssignedTick:   tick,
			},
		}}, true
	}
	s.stats.Rejections++
	return startResult{reason: registry.RejectInvalidUnits}, false
}

func offerWork(o registry.Offer, ok bool) float64 {
	if !ok || !(o.WorkAmount > 0) {
		return 1
	}
	return o.WorkAmount
}

func (s *Scheduler) commit(agent ecs.Entity, res startResult) {
	j, _ := s.jobs.Get(agent)
	completions := j.Completions
	*j = res.job
	j.Completions = completions
	s.stats.Assignments++
}

// nearestStorehouse picks the closest storehouse with room, skipping
// exclude. Ties go to the lower entity.
func nearestStorehouse(reg *registry.Registry, from spatial.Vec3, exclude ecs.Entity) ecs.Entity {
	var best ecs.Entity
	bestD := 0.0
	for _, sh := range reg.Storehouses() {
		if sh.Entity == exclude || sh.Capacity-sh.Total() <= epsilon {
			continue
		}
		d := from.DistSq(sh.Position)
		if best.IsZero() || d < bestD {
			best, bestD = sh.Entity, d
		}
	}
	return best
}
