package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/spatial"
)

// MaxDecodedCells bounds DecodeRuns output.
const MaxDecodedCells = 1 << 24

type runWriter struct {
	buf bytes.Buffer
	tmp [binary.MaxVarintLen64]byte
}

func (w *runWriter) pair(v, run uint64) {
	if run == 0 {
		return
	}
	n := binary.PutUvarint(w.tmp[:], v)
	w.buf.Write(w.tmp[:n])
	n = binary.PutUvarint(w.tmp[:], run)
	w.buf.Write(w.tmp[:n])
}

func (w *runWriter) String() string { return base64.StdEncoding.EncodeToString(w.buf.Bytes()) }

// EncodeRuns encodes vals into base64(varint pairs) of (value, run_len).
func EncodeRuns(vals []uint32) string {
	var w runWriter
	for i := 0; i < len(vals); {
		v := vals[i]
		run := 1
		for j := i + 1; j < len(vals) && vals[j] == v; j++ {
			run++
		}
		w.pair(uint64(v), uint64(run))
		i += run
	}
	return w.String()
}

// EncodeOccupancy encodes the per-cell entity count of a grid with
// cellCount cells straight from its sparse ranges; empty stretches become
// a single zero run. Ranges must be sorted by cell id.
func EncodeOccupancy(cellCount int, ranges []spatial.CellRange) string {
	var w runWriter
	next := 0
	for i := 0; i < len(ranges); {
		r := ranges[i]
		if r.CellID < next || r.CellID >= cellCount {
			i++
			continue
		}
		w.pair(0, uint64(r.CellID-next))
		// Merge adjacent cells holding the same count.
		run := 1
		for i+run < len(ranges) && ranges[i+run].CellID == r.CellID+run && ranges[i+run].Count == r.Count {
			run++
		}
		w.pair(uint64(r.Count), uint64(run))
		next = r.CellID + run
		i += run
	}
	if cellCount > next {
		w.pair(0, uint64(cellCount-next))
	}
	return w.String()
}

func DecodeRuns(b64 string) ([]uint32, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	var out []uint32
	for i := 0; i < len(raw); {
		v, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if v > 0xFFFFFFFF {
			return nil, fmt.Errorf("value too large: %d", v)
		}
		if uint64(len(out))+run > MaxDecodedCells {
			return nil, fmt.Errorf("decoded length exceeds %d", MaxDecodedCells)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint32(v))
		}
	}
	return out, nil
}
