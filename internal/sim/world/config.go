package world

import (
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/jobs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/spatial"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/tuning"
)

type WorldConfig struct {
	ID   string
	Seed int64

	// Tuning is captured in snapshots so an imported world steps exactly
	// like the one that exported it.
	Tuning tuning.Tuning

	// Operational parameters.
	StatsBucketTicks uint64
	StatsWindowTicks uint64
}

func (cfg *WorldConfig) applyDefaults() {
	d := tuning.Defaults()
	t := &cfg.Tuning
	if t.TickRateHz <= 0 {
		t.TickRateHz = d.TickRateHz
	}
	if !(t.FixedDelta > 0) {
		t.FixedDelta = 1 / float64(t.TickRateHz)
	}
	if t.MaxTicksPerFrame <= 0 {
		t.MaxTicksPerFrame = d.MaxTicksPerFrame
	}
	if !(t.MaxSpeed > 0) {
		t.MaxSpeed = d.MaxSpeed
	}
	if !(t.Grid.CellSize > 0) && t.Grid.WorldMin == [3]float64{} && t.Grid.WorldMax == [3]float64{} {
		t.Grid = d.Grid
	}
	if !(t.Grid.PartialThreshold > 0) {
		t.Grid.PartialThreshold = spatial.DefaultPartialThreshold
	}
	if t.Rewind.MaxHistoryTicks <= 0 {
		t.Rewind.MaxHistoryTicks = d.Rewind.MaxHistoryTicks
	}
	if t.AI.SensorRange <= 0 {
		t.AI.SensorRange = d.AI.SensorRange
	}
	if t.AI.DefaultArchetype == "" {
		t.AI.DefaultArchetype = d.AI.DefaultArchetype
	}
	if t.Needs.FoodPerMeal <= 0 {
		t.Needs.FoodPerMeal = d.Needs.FoodPerMeal
	}
	if t.Needs.FoodResourceType == "" {
		t.Needs.FoodResourceType = d.Needs.FoodResourceType
	}
	if cfg.StatsBucketTicks == 0 {
		cfg.StatsBucketTicks = 300
	}
	if cfg.StatsWindowTicks == 0 {
		cfg.StatsWindowTicks = 6000
	}
}

// gridConfig converts the tuning grid section. An unusable section yields a
// config that fails Validate; the grid then refuses to rebuild.
func gridConfig(g tuning.Grid) spatial.Config {
	c := spatial.NewConfig(
		spatial.Vec3{X: g.WorldMin[0], Y: g.WorldMin[1], Z: g.WorldMin[2]},
		spatial.Vec3{X: g.WorldMax[0], Y: g.WorldMax[1], Z: g.WorldMax[2]},
		g.CellSize,
	)
	c.HashSeed = g.HashSeed
	if g.Provider == "hashed" {
		c.ProviderID = spatial.ProviderHashed
	}
	return c
}

func jobsConfig(j tuning.Jobs) jobs.Config {
	return jobs.Config{
		GatherRatePerWorker:   j.GatherRatePerWorker,
		GatherRange:           j.GatherRange,
		DeliveryRange:         j.DeliveryRange,
		RequestUnits:          j.RequestUnits,
		MaxTicketsPerResource: j.MaxTicketsPerResource,
		MoveSpeed:             j.MoveSpeed,
		WorkRatePerTick:       j.WorkRatePerTick,
	}
}
