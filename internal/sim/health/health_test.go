package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	th := DefaultThresholds()
	assert.Equal(t, LevelOK, Classify(Counters{}, th).Level)

	r := Classify(Counters{DirtyRatio: 0.5}, th)
	assert.Equal(t, LevelWarning, r.Level)
	assert.Len(t, r.Reasons, 1)

	r = Classify(Counters{DirtyRatio: 0.5, ReservationMismatches: 2}, th)
	assert.Equal(t, LevelFailure, r.Level)
	assert.Len(t, r.Reasons, 2)

	r = Classify(Counters{ConfigInvalid: true}, th)
	assert.Equal(t, LevelWarning, r.Level)
	assert.Equal(t, []string{"spatial config invalid"}, r.Reasons)

	// Disabled limits never fire.
	assert.Equal(t, LevelOK, Classify(Counters{MissingBridge: 1000}, th).Level)
}
