package ai

import (
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/commands"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ecs"
)

type Category uint8

const (
	CategoryNone Category = iota
	CategoryResource
	CategoryStorehouse
	CategoryVillager
	CategoryWorkOffer
	// CategoryNeed marks virtual readings; never returned by a Classifier.
	CategoryNeed
)

var categoryNames = [...]string{"none", "resource", "storehouse", "villager", "work_offer", "need"}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "category?"
}

func ParseCategory(s string) (Category, bool) {
	for i, n := range categoryNames {
		if n == s {
			return Category(i), true
		}
	}
	return CategoryNone, false
}

type CategoryMask uint32

func (c Category) Mask() CategoryMask { return 1 << c }

func MaskOf(cs ...Category) CategoryMask {
	var m CategoryMask
	for _, c := range cs {
		m |= c.Mask()
	}
	return m
}

func (m CategoryMask) Has(c Category) bool { return m&c.Mask() != 0 }

// Classifier resolves an entity to its sensor category.
type Classifier interface {
	Classify(e ecs.Entity) Category
}

type ClassifierFunc func(ecs.Entity) Category

func (f ClassifierFunc) Classify(e ecs.Entity) Category { return f(e) }

type Need uint8

const (
	NeedNone Need = iota
	NeedHunger
	NeedRest
	NeedMorale
)

// Needs are urgencies in [0,1]; 1 is most urgent.
type Needs struct {
	Hunger float64
	Rest   float64
	Morale float64
}

type SensorConfig struct {
	Range                       float64
	MaxResults                  int
	PrimaryMask                 CategoryMask
	SecondaryMask               CategoryMask
	RequireDeterministicSorting bool
}

type Reading struct {
	Target          ecs.Entity
	DistanceSq      float64
	NormalizedScore float64
	CellID          int
	SpatialVersion  uint64
	Category        Category
	Need            Need
}

type Curve uint8

const (
	CurveLinear Curve = iota
	CurvePower
	CurveInverse
	CurveLogistic
)

var curveNames = [...]string{"linear", "power", "inverse", "logistic"}

func (c Curve) String() string {
	if int(c) < len(curveNames) {
		return curveNames[c]
	}
	return "curve?"
}

func ParseCurve(s string) (Curve, bool) {
	for i, n := range curveNames {
		if n == s {
			return Curve(i), true
		}
	}
	return CurveLinear, false
}

type Input uint8

const (
	// InputProximity is the target reading's NormalizedScore.
	InputProximity Input = iota
	InputHunger
	InputRest
	InputMorale
	InputConstant
)

var inputNames = [...]string{"proximity", "hunger", "rest", "morale", "constant"}

func (in Input) String() string {
	if int(in) < len(inputNames) {
		return inputNames[in]
	}
	return "input?"
}

func ParseInput(s string) (Input, bool) {
	for i, n := range inputNames {
		if n == s {
			return Input(i), true
		}
	}
	return InputProximity, false
}

type Factor struct {
	Input         Input
	Weight        float64
	Curve         Curve
	ResponsePower float64
	Threshold     float64
	// MaxValue <= 0 leaves the factor unbounded above.
	MaxValue float64
}

type ActionDef struct {
	Name           string
	Kind           commands.Kind
	TargetCategory Category
	// Target pins the action to one entity instead of the best candidate.
	Target  ecs.Entity
	Factors []Factor
}

type Aggregation uint8

const (
	AggregateSum Aggregation = iota
	AggregateProduct
	AggregateMax
)

var aggregationNames = [...]string{"sum", "product", "max"}

func (a Aggregation) String() string {
	if int(a) < len(aggregationNames) {
		return aggregationNames[a]
	}
	return "aggregation?"
}

func ParseAggregation(s string) (Aggregation, bool) {
	for i, n := range aggregationNames {
		if n == s {
			return Aggregation(i), true
		}
	}
	return AggregateSum, false
}

// Archetype is immutable once loaded and shared by every agent that uses it.
type Archetype struct {
	Name        string
	Aggregation Aggregation
	Sensor      SensorConfig
	Actions     []ActionDef
}

type Result struct {
	Readings        []Reading
	BestActionIndex int
	BestScore       float64
	BestTarget      ecs.Entity
	Examined        int
}

type UtilityState struct {
	BestActionIndex    int
	BestScore          float64
	BestTarget         ecs.Entity
	LastEvaluationTick uint64
}
