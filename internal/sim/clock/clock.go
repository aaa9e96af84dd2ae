package clock

// Clock owns the simulation tick. It is advanced only by the tick pipeline;
// rewind restore is the single caller of SetTick.
type Clock struct {
	tick       uint64
	fixedDelta float64
	paused     bool
	speed      float64

	acc         float64
	maxPerFrame int
}

func New(fixedDelta float64, maxTicksPerFrame int) *Clock {
	if fixedDelta <= 0 {
		fixedDelta = 1.0 / 20
	}
	if maxTicksPerFrame <= 0 {
		maxTicksPerFrame = 4
	}
	return &Clock{fixedDelta: fixedDelta, speed: 1, maxPerFrame: maxTicksPerFrame}
}

func (c *Clock) Tick() uint64        { return c.tick }
func (c *Clock) FixedDelta() float64 { return c.fixedDelta }
func (c *Clock) Paused() bool        { return c.paused }
func (c *Clock) Speed() float64      { return c.speed }

func (c *Clock) SetPaused(p bool) {
	c.paused = p
	if p {
		c.acc = 0
	}
}

// SetSpeed clamps to [0, 16]; 0 behaves like pause without the flag.
func (c *Clock) SetSpeed(s float64) {
	switch {
	case s < 0:
		s = 0
	case s > 16:
		s = 16
	}
	c.speed = s
}

func (c *Clock) Advance() uint64 {
	c.tick++
	return c.tick
}

func (c *Clock) SetTick(t uint64) {
	c.tick = t
	c.acc = 0
}

// Accumulate converts elapsed wall seconds into whole ticks to run now. The
// fractional remainder carries over; overflow beyond the per-frame cap is
// dropped so a stalled host does not trigger a spiral of catch-up ticks.
func (c *Clock) Accumulate(realDelta float64) int {
	if c.paused || realDelta <= 0 || c.speed == 0 {
		return 0
	}
	c.acc += realDelta * c.speed
	n := int(c.acc / c.fixedDelta)
	c.acc -= float64(n) * c.fixedDelta
	if n > c.maxPerFrame {
		n = c.maxPerFrame
		c.acc = 0
	}
	return n
}
