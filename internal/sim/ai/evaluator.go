package ai

import "github.com/MoniVibe/PureDOTS-sub002/internal/sim/ecs"

// Evaluate scores every action of arch against readings. An action bound to
// a category takes its best candidate of that category; ties keep the
// earlier reading. The best action is the strictly highest positive score,
// lowest index on ties, or -1 when nothing scores.
func Evaluate(arch *Archetype, readings []Reading) Result {
	res := Result{Readings: readings, BestActionIndex: -1}
	needs := needInputs(readings)
	scores := make([]float64, 0, 4)
	for i, act := range arch.Actions {
		var (
			best   float64
			target ecs.Entity
		)
		switch {
		case !act.Target.IsZero():
			for _, r := range readings {
				if r.Category != CategoryNeed && r.Target == act.Target {
					best, target = scoreAction(arch.Aggregation, act, r.NormalizedScore, needs, scores), r.Target
					break
				}
			}
		case act.TargetCategory != CategoryNone:
			found := false
			for _, r := range readings {
				if r.Category != act.TargetCategory {
					continue
				}
				s := scoreAction(arch.Aggregation, act, r.NormalizedScore, needs, scores)
				if !found || s > best {
					best, target, found = s, r.Target, true
				}
			}
		default:
			best = scoreAction(arch.Aggregation, act, 0, needs, scores)
		}
		if best > 0 && (res.BestActionIndex < 0 || best > res.BestScore) {
			res.BestActionIndex, res.BestScore, res.BestTarget = i, best, target
		}
	}
	return res
}

func needInputs(readings []Reading) [InputConstant + 1]float64 {
	var in [InputConstant + 1]float64
	in[InputConstant] = 1
	for _, r := range readings {
		switch r.Need {
		case NeedHunger:
			in[InputHunger] = r.NormalizedScore
		case NeedRest:
			in[InputRest] = r.NormalizedScore
		case NeedMorale:
			in[InputMorale] = r.NormalizedScore
		}
	}
	return in
}

func scoreAction(agg Aggregation, act ActionDef, proximity float64, inputs [InputConstant + 1]float64, scratch []float64) float64 {
	scratch = scratch[:0]
	inputs[InputProximity] = proximity
	for _, f := range act.Factors {
		x := 0.0
		if int(f.Input) < len(inputs) {
			x = inputs[f.Input]
		}
		scratch = append(scratch, f.Score(x))
	}
	return aggregate(agg, scratch)
}
