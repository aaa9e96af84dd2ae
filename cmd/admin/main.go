package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MoniVibe/PureDOTS-sub002/internal/persistence/snapshot"
	"github.com/MoniVibe/PureDOTS-sub002/internal/persistence/ticklog"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/catalogs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "rollback":
			rollbackCmd(os.Args[2:])
			return
		case "ticks":
			ticksCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "rewind", "scrub", "playback", "resume", "pause", "unpause", "speed":
			controlCmd(os.Args[1], os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// rollbackCmd rebuilds the world state at an earlier tick from the nearest
// snapshot at or before it plus the tick log, and writes it as a new
// snapshot. The server resumes from it with -snapshot.
func rollbackCmd(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	configDir := fs.String("configs", "./configs", "config directory")
	toTick := fs.Uint64("to_tick", 0, "tick to rebuild (required)")
	outPath := fs.String("out", "", "output snapshot path (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	if *toTick == 0 {
		fmt.Fprintln(os.Stderr, "missing -to_tick")
		os.Exit(2)
	}
	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	snap, src, err := rebuildAt(worldDir, cats, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rollback:", err)
		os.Exit(1)
	}

	if strings.TrimSpace(*outPath) == "" {
		*outPath = filepath.Join(worldDir, "snapshots", fmt.Sprintf("%012d.rollback.snap.zst", snap.Header.Tick))
	}
	if err := snapshot.WriteSnapshot(*outPath, snap); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("rollback ok: from=%s tick=%d villagers=%d out=%s\n",
		filepath.Base(src), snap.Header.Tick, len(snap.Villagers), *outPath)
}

func rebuildAt(worldDir string, cats *catalogs.Catalogs, tick uint64) (snapshot.SnapshotV1, string, error) {
	src := snapshotAtOrBefore(worldDir, tick)
	if src == "" {
		return snapshot.SnapshotV1{}, "", fmt.Errorf("no snapshot at or before tick %d", tick)
	}
	base, err := snapshot.ReadSnapshot(src)
	if err != nil {
		return snapshot.SnapshotV1{}, src, err
	}
	w, err := world.ImportSnapshot(world.WorldConfig{}, cats, base)
	if err != nil {
		return snapshot.SnapshotV1{}, src, err
	}
	entries, err := ticklog.Collect(worldDir, w.CurrentTick(), tick)
	if err != nil {
		return snapshot.SnapshotV1{}, src, err
	}
	for _, e := range entries {
		if e.Tick != w.CurrentTick() {
			return snapshot.SnapshotV1{}, src, fmt.Errorf("tick log gap at %d", w.CurrentTick())
		}
		for _, in := range e.Inputs {
			if _, err := w.Apply(in); err != nil {
				return snapshot.SnapshotV1{}, src, fmt.Errorf("tick %d: %w", e.Tick, err)
			}
		}
		if _, digest := w.StepOnce(); e.Digest != "" && digest != e.Digest {
			return snapshot.SnapshotV1{}, src, fmt.Errorf("digest mismatch after tick %d", e.Tick)
		}
	}
	if w.CurrentTick() != tick {
		return snapshot.SnapshotV1{}, src, fmt.Errorf("tick log ends at %d", w.CurrentTick())
	}
	return w.ExportSnapshot(), src, nil
}

func ticksCmd(args []string) {
	fs := flag.NewFlagSet("ticks", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	from := fs.Uint64("from", 0, "first tick (inclusive)")
	to := fs.Uint64("to", 0, "last tick (exclusive, optional)")
	kind := fs.String("kind", "", "only ticks carrying an input of this kind")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	entries, err := ticklog.Collect(filepath.Join(*dataDir, "worlds", *worldID), *from, *to)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read tick log:", err)
		os.Exit(1)
	}
	for _, e := range filterKind(entries, world.InputKind(strings.ToUpper(strings.TrimSpace(*kind)))) {
		fmt.Printf("tick=%d mode=%s inputs=%d commands=%d grid=%s/%d digest=%s\n",
			e.Tick, e.Mode, len(e.Inputs), e.Commands, e.Strategy, e.Version, e.Digest)
	}
}

func filterKind(entries []world.TickLogEntry, kind world.InputKind) []world.TickLogEntry {
	if kind == "" {
		return entries
	}
	out := entries[:0:0]
	for _, e := range entries {
		for _, in := range e.Inputs {
			if in.Kind == kind {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

func snapshotAtOrBefore(worldDir string, tick uint64) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		t, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil || t > tick {
			continue
		}
		if best == "" || t > bestTick {
			bestTick = t
			best = filepath.Join(dir, name)
		}
	}
	return best
}
