package clock

type RewindMode uint8

const (
	ModeRecord RewindMode = iota
	ModePlayback
	ModeScrub
	ModeCatchUp
)

func (m RewindMode) String() string {
	switch m {
	case ModeRecord:
		return "RECORD"
	case ModePlayback:
		return "PLAYBACK"
	case ModeScrub:
		return "SCRUB"
	case ModeCatchUp:
		return "CATCH_UP"
	default:
		return "UNKNOWN"
	}
}

type RewindState struct {
	Mode            RewindMode
	TargetTick      uint64
	MaxHistoryTicks int
}

// AllowsWrites is the guard every mutation-capable phase checks first.
func (r RewindState) AllowsWrites() bool {
	return r.Mode == ModeRecord || r.Mode == ModeCatchUp
}

// Frame is the per-tick context handed to each phase.
type Frame struct {
	Tick   uint64
	Delta  float64
	Rewind RewindState
}

func (f Frame) AllowsWrites() bool { return f.Rewind.AllowsWrites() }
