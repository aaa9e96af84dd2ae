package commands

import (
	"sort"

	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ecs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/spatial"
)

type Kind uint8

const (
	KindNone Kind = iota
	KindGather
	KindWork
	KindRest
	KindEat
	KindMove
)

func (k Kind) String() string {
	switch k {
	case KindGather:
		return "gather"
	case KindWork:
		return "work"
	case KindRest:
		return "rest"
	case KindEat:
		return "eat"
	case KindMove:
		return "move"
	default:
		return "none"
	}
}

func ParseKind(s string) (Kind, bool) {
	for k := KindNone; k <= KindMove; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return KindNone, false
}

type Command struct {
	Tick            uint64
	Agent           ecs.Entity
	Kind            Kind
	Target          ecs.Entity
	Storehouse      ecs.Entity
	Priority        int
	DesiredVelocity spatial.Vec3
	ActionIndex     int
	Score           float64
}

// Bridge receives each tick's commands for presentation. It must not mutate
// the slice.
type Bridge interface {
	Present(tick uint64, cmds []Command)
}

// Queue is the per-tick command buffer. It holds at most one command per
// agent; later emits for the same agent are rejected.
type Queue struct {
	tick       uint64
	cmds       []Command
	byAgent    map[ecs.Entity]int
	duplicates uint64
}

func NewQueue() *Queue {
	return &Queue{byAgent: map[ecs.Entity]int{}}
}

// Begin clears the buffer for a new tick.
func (q *Queue) Begin(tick uint64) {
	q.tick = tick
	q.cmds = q.cmds[:0]
	for k := range q.byAgent {
		delete(q.byAgent, k)
	}
}

func (q *Queue) Tick() uint64 { return q.tick }

func (q *Queue) Emit(c Command) bool {
	if c.Agent.IsZero() {
		return false
	}
	if _, dup := q.byAgent[c.Agent]; dup {
		q.duplicates++
		return false
	}
	c.Tick = q.tick
	q.byAgent[c.Agent] = len(q.cmds)
	q.cmds = append(q.cmds, c)
	return true
}

// Commands returns this tick's commands in agent order.
func (q *Queue) Commands() []Command {
	out := append([]Command(nil), q.cmds...)
	sort.Slice(out, func(i, j int) bool { return out[i].Agent.Less(out[j].Agent) })
	return out
}

func (q *Queue) For(agent ecs.Entity) (Command, bool) {
	i, ok := q.byAgent[agent]
	if !ok {
		return Command{}, false
	}
	return q.cmds[i], true
}

func (q *Queue) Len() int { return len(q.cmds) }

// Duplicates is cumulative across ticks.
func (q *Queue) Duplicates() uint64 { return q.duplicates }

func (q *Queue) SetDuplicates(n uint64) { q.duplicates = n }

// Publish hands the buffer to b. It reports false when there is no bridge.
func (q *Queue) Publish(b Bridge) bool {
	if b == nil {
		return false
	}
	b.Present(q.tick, q.Commands())
	return true
}
