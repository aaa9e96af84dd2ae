package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ai"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ecs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/jobs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/registry"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/spatial"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/tuning"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	RunID   string `json:"run_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed   int64         `json:"seed"`
	Tuning tuning.Tuning `json:"tuning"`

	// Catalog digests at export time; import warns when they differ.
	ResourcesDigest  string `json:"resources_digest"`
	ArchetypesDigest string `json:"archetypes_digest"`

	Allocator ecs.AllocatorState `json:"allocator"`
	Positions []PositionV1       `json:"positions"`
	Villagers []VillagerV1       `json:"villagers"`

	Grid     spatial.Snapshot  `json:"grid"`
	Registry registry.Snapshot `json:"registry"`
	Jobs     jobs.Snapshot     `json:"jobs"`

	DuplicateCommands uint64       `json:"duplicate_commands"`
	PendingDespawn    []ecs.Entity `json:"pending_despawn,omitempty"`
	Counters          CountersV1   `json:"counters"`
}

type PositionV1 struct {
	Entity   ecs.Entity   `json:"entity"`
	Position spatial.Vec3 `json:"pos"`
}

type VillagerV1 struct {
	Entity    ecs.Entity      `json:"entity"`
	Archetype string          `json:"archetype"`
	Needs     ai.Needs        `json:"needs"`
	Health    float64         `json:"health"`
	Utility   ai.UtilityState `json:"utility"`
	Velocity  spatial.Vec3    `json:"velocity"`
}

// CountersV1 are cumulative world telemetry carried across a restart.
type CountersV1 struct {
	LOSChecks        uint64 `json:"los_checks"`
	MissingBridge    uint64 `json:"missing_bridge"`
	RewindUnderflows uint64 `json:"rewind_underflows"`
	GuardedWrites    uint64 `json:"guarded_writes"`
	Despawns         uint64 `json:"despawns"`
	Starved          uint64 `json:"starved"`
}

// WriteSnapshot writes a zstd stream holding one JSON header line followed
// by the gob-encoded snapshot.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 256*1024)
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

// ReadHeader decodes only the header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot version %d, want %d", snap.Header.Version, Version)
	}
	return snap, nil
}

// FileName is the canonical on-disk name for a checkpoint at tick.
func FileName(tick uint64) string { return fmt.Sprintf("%012d.snap.zst", tick) }
