package jobs

import (
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/commands"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ecs"
)

type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseAssigned
	PhaseGathering
	PhaseActing
	PhaseDelivering
	PhaseInterrupted
	PhaseCompleted
)

var phaseNames = [...]string{"idle", "assigned", "gathering", "acting", "delivering", "interrupted", "completed"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "phase?"
}

// Active reports whether the job holds (or should hold) a ticket.
func (p Phase) Active() bool {
	switch p {
	case PhaseAssigned, PhaseGathering, PhaseActing, PhaseDelivering:
		return true
	}
	return false
}

type Kind uint8

const (
	KindNone Kind = iota
	KindGather
	KindWork
)

func (k Kind) String() string {
	switch k {
	case KindGather:
		return "gather"
	case KindWork:
		return "work"
	default:
		return "none"
	}
}

type InterruptReason uint8

const (
	InterruptNone InterruptReason = iota
	InterruptOverride
	InterruptTargetLost
	InterruptLowHealth
	InterruptStorehouseLost
	InterruptStorehouseFull
	InterruptExternal
)

var interruptNames = [...]string{"none", "override", "target_lost", "low_health", "storehouse_lost", "storehouse_full", "external"}

func (r InterruptReason) String() string {
	if int(r) < len(interruptNames) {
		return interruptNames[r]
	}
	return "interrupt?"
}

type JobTicket struct {
	TicketID         uint64
	ResourceEntity   ecs.Entity
	StorehouseEntity ecs.Entity
	ReservedUnits    float64
	AssignedTick     uint64
}

type Job struct {
	Phase           Phase
	Kind            Kind
	Priority        int
	Ticket          JobTicket
	ResourceType    int
	Gathered        float64
	Carried         float64
	Progress        float64
	WorkAmount      float64
	PhaseTick       uint64
	InterruptReason InterruptReason
	Completions     uint64
}

// reset returns the job to Idle, keeping lifetime counters.
func (j *Job) reset(tick uint64) {
	*j = Job{Phase: PhaseIdle, PhaseTick: tick, Completions: j.Completions}
}

func (j *Job) enter(p Phase, tick uint64) {
	j.Phase = p
	j.PhaseTick = tick
}

// Intent is a queued request for a specific job.
type Intent struct {
	Kind       Kind
	Target     ecs.Entity
	Storehouse ecs.Entity
	Priority   int
}

// IntentQueue is optional per agent. Promotion is strictly FIFO; Priority
// only decides whether the head may replace a running job.
type IntentQueue struct {
	Intents []Intent
}

func intentFromCommand(c commands.Command) (Intent, bool) {
	switch c.Kind {
	case commands.KindGather:
		return Intent{Kind: KindGather, Target: c.Target, Storehouse: c.Storehouse, Priority: c.Priority}, true
	case commands.KindWork:
		return Intent{Kind: KindWork, Target: c.Target, Priority: c.Priority}, true
	}
	return Intent{}, false
}

type Config struct {
	GatherRatePerWorker   float64
	GatherRange           float64
	DeliveryRange         float64
	RequestUnits          float64
	MaxTicketsPerResource int
	MoveSpeed             float64
	WorkRatePerTick       float64
}

func DefaultConfig() Config {
	return Config{
		GatherRatePerWorker: 25,
		GatherRange:         1.5,
		DeliveryRange:       1.5,
		RequestUnits:        100,
		MoveSpeed:           4,
		WorkRatePerTick:     1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if !(c.GatherRatePerWorker > 0) {
		c.GatherRatePerWorker = d.GatherRatePerWorker
	}
	if !(c.GatherRange > 0) {
		c.GatherRange = d.GatherRange
	}
	if !(c.DeliveryRange > 0) {
		c.DeliveryRange = d.DeliveryRange
	}
	if !(c.RequestUnits > 0) {
		c.RequestUnits = d.RequestUnits
	}
	if !(c.MoveSpeed > 0) {
		c.MoveSpeed = d.MoveSpeed
	}
	if !(c.WorkRatePerTick > 0) {
		c.WorkRatePerTick = d.WorkRatePerTick
	}
	return c
}

type Stats struct {
	Assignments         uint64
	Rejections          uint64
	Completions         uint64
	Interrupts          uint64
	Preemptions         uint64
	DroppedIntents      uint64
	MissingIntentQueues uint64
	DeliveryRetargets   uint64
	GuardedWrites       uint64
}
