package ai

import (
	"math"

	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/spatial"
)

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Response maps x in [0,1] through the curve. power <= 0 falls back to the
// curve's default shape.
func Response(c Curve, x, power float64) float64 {
	x = clamp01(x)
	switch c {
	case CurvePower:
		if !(power > 0) {
			power = 2
		}
		return math.Pow(x, power)
	case CurveInverse:
		if !(power > 0) {
			power = 1
		}
		return 1 - math.Pow(x, power)
	case CurveLogistic:
		if !(power > 0) {
			power = 10
		}
		return 1 / (1 + math.Exp(-power*(x-0.5)))
	default:
		return x
	}
}

func (f Factor) Score(x float64) float64 {
	if math.IsNaN(x) || x < f.Threshold {
		return 0
	}
	v := f.Weight * Response(f.Curve, x, f.ResponsePower)
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if f.MaxValue > 0 && v > f.MaxValue {
		return f.MaxValue
	}
	return v
}

func aggregate(a Aggregation, scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	switch a {
	case AggregateProduct:
		v := 1.0
		for _, s := range scores {
			v *= s
		}
		return v
	case AggregateMax:
		v := scores[0]
		for _, s := range scores[1:] {
			if s > v {
				v = s
			}
		}
		return v
	default:
		v := 0.0
		for _, s := range scores {
			v += s
		}
		return v
	}
}

// Steer returns a velocity of the given speed toward to. A degenerate
// direction or speed yields zero.
func Steer(from, to spatial.Vec3, speed float64) spatial.Vec3 {
	if !(speed > 0) || math.IsInf(speed, 0) {
		return spatial.Vec3{}
	}
	return to.Sub(from).Normalize().Scale(speed)
}
