package clock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccumulateCarriesRemainder(t *testing.T) {
	c := New(0.25, 4)
	require.Equal(t, 0, c.Accumulate(0.125))
	require.Equal(t, 1, c.Accumulate(0.25))
	require.Equal(t, 2, c.Accumulate(0.375))
}

func TestAccumulateRespectsPauseAndSpeed(t *testing.T) {
	c := New(0.25, 8)
	c.SetPaused(true)
	require.Equal(t, 0, c.Accumulate(1))
	c.SetPaused(false)

	c.SetSpeed(2)
	require.Equal(t, 4, c.Accumulate(0.5))

	c.SetSpeed(0)
	require.Equal(t, 0, c.Accumulate(1))
}

func TestAccumulateCapsPerFrame(t *testing.T) {
	c := New(0.25, 3)
	require.Equal(t, 3, c.Accumulate(10))
	require.Equal(t, 0, c.Accumulate(0.125), "overflow must be dropped, not carried")
}

func TestRewindGuard(t *testing.T) {
	for mode, want := range map[RewindMode]bool{
		ModeRecord:   true,
		ModeCatchUp:  true,
		ModePlayback: false,
		ModeScrub:    false,
	} {
		require.Equal(t, want, RewindState{Mode: mode}.AllowsWrites(), mode.String())
	}
}
