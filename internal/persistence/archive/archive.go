// Package archive keeps long-lived copies of selected checkpoints and prunes
// the rolling snapshot directory.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MoniVibe/PureDOTS-sub002/internal/persistence/snapshot"
)

type Meta struct {
	Tick      uint64 `json:"tick"`
	WorldID   string `json:"world_id"`
	RunID     string `json:"run_id"`
	Seed      int64  `json:"seed"`
	Snapshot  string `json:"snapshot"`
	Villagers int    `json:"villagers"`
	CreatedAt string `json:"created_at"`
}

// ArchiveSnapshot copies the checkpoint into `worldDir/archives/tick_<N>/`
// when its tick is a positive multiple of every. It reports whether a copy
// was made.
func ArchiveSnapshot(worldDir, snapshotPath string, snap snapshot.SnapshotV1, every uint64) (archivedPath string, archived bool, err error) {
	tick := snap.Header.Tick
	if every == 0 || tick == 0 || tick%every != 0 {
		return "", false, nil
	}

	archiveDir := filepath.Join(worldDir, "archives", fmt.Sprintf("tick_%012d", tick))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := Meta{
		Tick:      tick,
		WorldID:   snap.Header.WorldID,
		RunID:     snap.Header.RunID,
		Seed:      snap.Seed,
		Snapshot:  filepath.Base(dst),
		Villagers: len(snap.Villagers),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}
	return dst, true, nil
}

// Prune removes all but the newest keep canonical checkpoints from the
// snapshots directory. Files that do not parse as a tick are left alone.
func Prune(worldDir string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	type file struct {
		tick uint64
		path string
	}
	var files []file
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(e.Name(), ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		files = append(files, file{tick: tick, path: filepath.Join(dir, e.Name())})
	}
	if len(files) <= keep {
		return nil, nil
	}
	sort.Slice(files, func(i, j int) bool { return files[i].tick > files[j].tick })

	var removed []string
	for _, f := range files[keep:] {
		if err := os.Remove(f.path); err != nil {
			return removed, err
		}
		removed = append(removed, f.path)
	}
	return removed, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
