package encoding

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/spatial"
)

func TestRuns_RoundTrip(t *testing.T) {
	in := []uint32{1, 1, 1, 2, 2, 3}
	for i := 0; i < 50; i++ {
		in = append(in, 7)
	}
	in = append(in, 9, 10, 10, 10)

	out, err := DecodeRuns(EncodeRuns(in))
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestOccupancy_MatchesDense(t *testing.T) {
	ranges := []spatial.CellRange{
		{CellID: 2, StartIndex: 0, Count: 3},
		{CellID: 3, StartIndex: 3, Count: 3},
		{CellID: 4, StartIndex: 6, Count: 1},
		{CellID: 9, StartIndex: 7, Count: 2},
	}
	out, err := DecodeRuns(EncodeOccupancy(12, ranges))
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 0, 3, 3, 1, 0, 0, 0, 0, 2, 0, 0}, out)
}

func TestOccupancy_EmptyGrid(t *testing.T) {
	out, err := DecodeRuns(EncodeOccupancy(4, nil))
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 0, 0, 0}, out)
}

func TestDecodeRuns_Rejects(t *testing.T) {
	_, err := DecodeRuns("!!")
	require.Error(t, err)
	_, err = DecodeRuns("gA==") // truncated varint
	require.Error(t, err)
}
