package health

import (
	"fmt"
	"sort"
)

// Counters are the per-tick telemetry a monitor can poll. Cumulative fields
// count since world creation; the rest describe the last tick.
type Counters struct {
	Tick                  uint64
	StaleEntries          int
	DirtyRatio            float64
	ReservationMismatches int
	ReservationRejects    uint64
	LOSChecks             uint64
	MissingBridge         uint64
	UnknownLookups        uint64
	RewindUnderflows      uint64
	GuardedWrites         uint64
	ConfigInvalid         bool
	DuplicateCommands     uint64
	DepositFailures       uint64
	MissingIntentQueues   uint64
}

type Level uint8

const (
	LevelOK Level = iota
	LevelWarning
	LevelFailure
)

func (l Level) String() string {
	switch l {
	case LevelOK:
		return "ok"
	case LevelWarning:
		return "warning"
	default:
		return "failure"
	}
}

// Limit is a warn/fail pair. A zero bound is disabled.
type Limit struct {
	Warn float64 `yaml:"warn" json:"warn"`
	Fail float64 `yaml:"fail" json:"fail"`
}

type Thresholds struct {
	StaleEntries          Limit `yaml:"stale_entries" json:"stale_entries"`
	DirtyRatio            Limit `yaml:"dirty_ratio" json:"dirty_ratio"`
	ReservationMismatches Limit `yaml:"reservation_mismatches" json:"reservation_mismatches"`
	MissingBridge         Limit `yaml:"missing_bridge" json:"missing_bridge"`
	UnknownLookups        Limit `yaml:"unknown_lookups" json:"unknown_lookups"`
	RewindUnderflows      Limit `yaml:"rewind_underflows" json:"rewind_underflows"`
	DuplicateCommands     Limit `yaml:"duplicate_commands" json:"duplicate_commands"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		StaleEntries:          Limit{Warn: 1, Fail: 50},
		DirtyRatio:            Limit{Warn: 0.35, Fail: 0.9},
		ReservationMismatches: Limit{Fail: 1},
		UnknownLookups:        Limit{Warn: 1},
		RewindUnderflows:      Limit{Warn: 1},
		DuplicateCommands:     Limit{Warn: 1},
	}
}

type Report struct {
	Level   Level
	Reasons []string
}

// Classify grades c against th. The simulation never acts on the result.
func Classify(c Counters, th Thresholds) Report {
	var r Report
	check := func(name string, v float64, lim Limit) {
		switch {
		case lim.Fail > 0 && v >= lim.Fail:
			r.Reasons = append(r.Reasons, fmt.Sprintf("%s=%g >= fail %g", name, v, lim.Fail))
			r.Level = LevelFailure
		case lim.Warn > 0 && v >= lim.Warn:
			r.Reasons = append(r.Reasons, fmt.Sprintf("%s=%g >= warn %g", name, v, lim.Warn))
			if r.Level < LevelWarning {
				r.Level = LevelWarning
			}
		}
	}
	check("stale_entries", float64(c.StaleEntries), th.StaleEntries)
	check("dirty_ratio", c.DirtyRatio, th.DirtyRatio)
	check("reservation_mismatches", float64(c.ReservationMismatches), th.ReservationMismatches)
	check("missing_bridge", float64(c.MissingBridge), th.MissingBridge)
	check("unknown_lookups", float64(c.UnknownLookups), th.UnknownLookups)
	check("rewind_underflows", float64(c.RewindUnderflows), th.RewindUnderflows)
	check("duplicate_commands", float64(c.DuplicateCommands), th.DuplicateCommands)
	if c.ConfigInvalid {
		r.Reasons = append(r.Reasons, "spatial config invalid")
		if r.Level < LevelWarning {
			r.Level = LevelWarning
		}
	}
	sort.Strings(r.Reasons)
	return r
}
