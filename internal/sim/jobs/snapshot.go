package jobs

import "github.com/MoniVibe/PureDOTS-sub002/internal/sim/ecs"

type AgentJob struct {
	Agent ecs.Entity
	Job   Job
}

type AgentQueue struct {
	Agent   ecs.Entity
	Intents []Intent
}

type Snapshot struct {
	Jobs   []AgentJob
	Queues []AgentQueue
	Stats  Stats
}

func (s *Scheduler) Snapshot() Snapshot {
	var out Snapshot
	for _, a := range s.jobs.Entities() {
		j, _ := s.jobs.Value(a)
		out.Jobs = append(out.Jobs, AgentJob{Agent: a, Job: j})
	}
	for _, a := range s.queues.Entities() {
		q, _ := s.queues.Value(a)
		out.Queues = append(out.Queues, AgentQueue{Agent: a, Intents: append([]Intent(nil), q.Intents...)})
	}
	out.Stats = s.stats
	return out
}

func (s *Scheduler) Restore(snap Snapshot) {
	s.jobs.Clear()
	s.queues.Clear()
	for _, aj := range snap.Jobs {
		s.jobs.Set(aj.Agent, aj.Job)
	}
	for _, aq := range snap.Queues {
		s.queues.Set(aq.Agent, IntentQueue{Intents: append([]Intent(nil), aq.Intents...)})
	}
	s.stats = snap.Stats
}
