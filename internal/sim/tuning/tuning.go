package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/health"
)

type Tuning struct {
	TickRateHz       int     `yaml:"tick_rate_hz"`
	FixedDelta       float64 `yaml:"fixed_delta"`
	MaxTicksPerFrame int     `yaml:"max_ticks_per_frame"`
	MaxSpeed         float64 `yaml:"max_speed"`

	Grid    Grid    `yaml:"grid"`
	Jobs    Jobs    `yaml:"jobs"`
	AI      AI      `yaml:"ai"`
	Needs   Needs   `yaml:"needs"`
	Rewind  Rewind  `yaml:"rewind"`
	Persist Persist `yaml:"persistence"`

	Health health.Thresholds `yaml:"health"`
}

type Grid struct {
	WorldMin         [3]float64 `yaml:"world_min"`
	WorldMax         [3]float64 `yaml:"world_max"`
	CellSize         float64    `yaml:"cell_size"`
	Provider         string     `yaml:"provider"`
	HashSeed         uint32     `yaml:"hash_seed"`
	PartialThreshold float64    `yaml:"partial_threshold"`
}

type Jobs struct {
	GatherRatePerWorker   float64 `yaml:"gather_rate_per_worker"`
	GatherRange           float64 `yaml:"gather_range"`
	DeliveryRange         float64 `yaml:"delivery_range"`
	RequestUnits          float64 `yaml:"request_units"`
	MaxTicketsPerResource int     `yaml:"max_tickets_per_resource"`
	MoveSpeed             float64 `yaml:"move_speed"`
	WorkRatePerTick       float64 `yaml:"work_rate_per_tick"`
	DepletedTTLTicks      uint64  `yaml:"depleted_ttl_ticks"`
}

type AI struct {
	SensorRange      float64 `yaml:"sensor_range"`
	MaxResults       int     `yaml:"max_results"`
	DefaultArchetype string  `yaml:"default_archetype"`
}

type Needs struct {
	HungerPerTick       float64 `yaml:"hunger_per_tick"`
	RestPerTick         float64 `yaml:"rest_per_tick"`
	MoraleDecayPerTick  float64 `yaml:"morale_decay_per_tick"`
	StarvationDamage    float64 `yaml:"starvation_damage"`
	LowHealthInterrupt  float64 `yaml:"low_health_interrupt"`
	RestRecoveryPerTick float64 `yaml:"rest_recovery_per_tick"`
	FoodPerMeal         float64 `yaml:"food_per_meal"`
	FoodResourceType    string  `yaml:"food_resource_type"`
}

type Rewind struct {
	MaxHistoryTicks int `yaml:"max_history_ticks"`
}

type Persist struct {
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
	IndexBatch         int `yaml:"index_batch"`
}

// Defaults returns the built-in tuning used when no tuning.yaml is given.
func Defaults() Tuning {
	return Tuning{
		TickRateHz:       20,
		FixedDelta:       0.05,
		MaxTicksPerFrame: 4,
		MaxSpeed:         16,
		Grid: Grid{
			WorldMin:         [3]float64{-128, -8, -128},
			WorldMax:         [3]float64{128, 8, 128},
			CellSize:         8,
			Provider:         "uniform",
			HashSeed:         0x5eed,
			PartialThreshold: 0.35,
		},
		Jobs: Jobs{
			GatherRatePerWorker: 25,
			GatherRange:         1.5,
			DeliveryRange:       1.5,
			RequestUnits:        100,
			MoveSpeed:           4,
			WorkRatePerTick:     1,
			DepletedTTLTicks:    200,
		},
		AI: AI{
			SensorRange:      48,
			MaxResults:       16,
			DefaultArchetype: "gatherer",
		},
		Needs: Needs{
			HungerPerTick:       0.0005,
			RestPerTick:         0.0004,
			MoraleDecayPerTick:  0.0001,
			StarvationDamage:    0.01,
			LowHealthInterrupt:  0.25,
			RestRecoveryPerTick: 0.01,
			FoodPerMeal:         5,
			FoodResourceType:    "food",
		},
		Rewind:  Rewind{MaxHistoryTicks: 600},
		Persist: Persist{SnapshotEveryTicks: 3000, IndexBatch: 128},
		Health:  health.DefaultThresholds(),
	}
}

// Load reads path over Defaults, so a partial file only overrides what it
// names.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	if !(t.FixedDelta > 0) {
		return fmt.Errorf("fixed_delta must be > 0")
	}
	switch t.Grid.Provider {
	case "", "uniform", "hashed":
	default:
		return fmt.Errorf("grid.provider: unknown %q", t.Grid.Provider)
	}
	if t.Rewind.MaxHistoryTicks < 1 {
		return fmt.Errorf("rewind.max_history_ticks must be >= 1")
	}
	if t.Jobs.MaxTicketsPerResource < 0 {
		return fmt.Errorf("jobs.max_tickets_per_resource must be >= 0")
	}
	return nil
}
