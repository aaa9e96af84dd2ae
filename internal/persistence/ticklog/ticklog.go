package ticklog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/world"
)

// DefaultSegmentTicks is how many ticks go into one file.
const DefaultSegmentTicks = 10000

// JSONLZstdWriter appends JSON lines to zstd files, one file per segment of
// ticks. Reopening a segment appends a new zstd frame.
type JSONLZstdWriter struct {
	baseDir      string
	prefix       string
	segmentTicks uint64

	mu     sync.Mutex
	curSeg uint64
	open   bool
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string, segmentTicks uint64) *JSONLZstdWriter {
	if segmentTicks == 0 {
		segmentTicks = DefaultSegmentTicks
	}
	return &JSONLZstdWriter{baseDir: baseDir, prefix: prefix, segmentTicks: segmentTicks}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(tick uint64, v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	seg := tick / w.segmentTicks
	if !w.open || seg != w.curSeg {
		if err := w.rotateLocked(seg); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(seg uint64) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForSegment(seg), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curSeg = seg
	w.open = true
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.open = false
	return err1
}

func (w *JSONLZstdWriter) pathForSegment(seg uint64) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%08d.jsonl.zst", w.prefix, seg))
}

// Logger writes one JSONL entry per tick and implements world.TickLogger.
type Logger struct{ w *JSONLZstdWriter }

func NewLogger(worldDir string) *Logger {
	return &Logger{w: NewJSONLZstdWriter(filepath.Join(worldDir, "ticks"), "ticks", DefaultSegmentTicks)}
}

func (l *Logger) WriteTick(e world.TickLogEntry) error { return l.w.Write(e.Tick, e) }
func (l *Logger) Close() error                         { return l.w.Close() }

// Files lists the tick log segments under worldDir in tick order.
func Files(worldDir string) ([]string, error) {
	dir := filepath.Join(worldDir, "ticks")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "ticks-") || !strings.HasSuffix(name, ".jsonl.zst") {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	// Zero-padded segment numbers sort lexically.
	sort.Strings(out)
	return out, nil
}

// Read calls fn for every entry in worldDir with from <= Tick < to, in file
// order. A to of zero means no upper bound. Returning io.EOF from fn stops
// the scan without error.
func Read(worldDir string, from, to uint64, fn func(world.TickLogEntry) error) error {
	files, err := Files(worldDir)
	if err != nil {
		return err
	}
	for _, path := range files {
		if err := readFile(path, from, to, fn); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
	return nil
}

func readFile(path string, from, to uint64, fn func(world.TickLogEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var e world.TickLogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		if e.Tick < from || (to > 0 && e.Tick >= to) {
			continue
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return sc.Err()
}

// Collect reads [from, to) and keeps the last entry written for each tick,
// so ticks re-run after a rewind replace the abandoned ones. The result is
// sorted by tick.
func Collect(worldDir string, from, to uint64) ([]world.TickLogEntry, error) {
	byTick := map[uint64]world.TickLogEntry{}
	err := Read(worldDir, from, to, func(e world.TickLogEntry) error {
		byTick[e.Tick] = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]world.TickLogEntry, 0, len(byTick))
	for _, e := range byTick {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tick < out[j].Tick })
	return out, nil
}
