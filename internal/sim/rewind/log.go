package rewind

type Frame[T any] struct {
	Tick  uint64
	State T
}

// Log is a bounded ring of frames in ascending tick order. When full, the
// oldest frame is evicted.
type Log[T any] struct {
	frames []Frame[T]
	start  int
	n      int
}

func NewLog[T any](capacity int) *Log[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Log[T]{frames: make([]Frame[T], capacity)}
}

func (l *Log[T]) Cap() int { return len(l.frames) }
func (l *Log[T]) Len() int { return l.n }

func (l *Log[T]) at(i int) *Frame[T] { return &l.frames[(l.start+i)%len(l.frames)] }

// Record appends state for tick. Frames at or after tick are dropped first,
// so re-recording after a rewind replaces the abandoned future.
func (l *Log[T]) Record(tick uint64, state T) {
	l.TruncateAfter(tick)
	if l.n > 0 && l.at(l.n-1).Tick == tick {
		l.n--
	}
	if l.n == len(l.frames) {
		var zero Frame[T]
		*l.at(0) = zero
		l.start = (l.start + 1) % len(l.frames)
		l.n--
	}
	*l.at(l.n) = Frame[T]{Tick: tick, State: state}
	l.n++
}

func (l *Log[T]) Oldest() (Frame[T], bool) {
	if l.n == 0 {
		return Frame[T]{}, false
	}
	return *l.at(0), true
}

func (l *Log[T]) Newest() (Frame[T], bool) {
	if l.n == 0 {
		return Frame[T]{}, false
	}
	return *l.at(l.n - 1), true
}

// At returns the frame recorded exactly at tick.
func (l *Log[T]) At(tick uint64) (Frame[T], bool) {
	f, clamped, ok := l.Nearest(tick)
	if !ok || clamped || f.Tick != tick {
		return Frame[T]{}, false
	}
	return f, true
}

// Nearest returns the newest frame at or before target. A target older than
// the retained history clamps to the oldest frame and reports clamped.
func (l *Log[T]) Nearest(target uint64) (f Frame[T], clamped bool, ok bool) {
	if l.n == 0 {
		return Frame[T]{}, false, false
	}
	lo, hi := 0, l.n
	for lo < hi {
		mid := (lo + hi) / 2
		if l.at(mid).Tick <= target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return *l.at(0), true, true
	}
	return *l.at(lo - 1), false, true
}

// TruncateAfter drops every frame newer than tick.
func (l *Log[T]) TruncateAfter(tick uint64) {
	var zero Frame[T]
	for l.n > 0 && l.at(l.n-1).Tick > tick {
		*l.at(l.n - 1) = zero
		l.n--
	}
}

// Frames copies the retained frames, oldest first.
func (l *Log[T]) Frames() []Frame[T] {
	out := make([]Frame[T], l.n)
	for i := range out {
		out[i] = *l.at(i)
	}
	return out
}

func (l *Log[T]) Clear() {
	for i := range l.frames {
		l.frames[i] = Frame[T]{}
	}
	l.start, l.n = 0, 0
}
