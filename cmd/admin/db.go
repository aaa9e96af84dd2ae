package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MoniVibe/PureDOTS-sub002/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	from := fs.Uint64("from", 0, "first tick (ticks, inputs)")
	to := fs.Uint64("to", 0, "end tick, exclusive (ticks, inputs; default from+100)")
	limit := fs.Int("limit", 20, "result limit (snapshots, health)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}

	idx, err := indexdb.OpenSQLite(path, 0)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	end := *to
	if end == 0 {
		end = *from + 100
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var rows any
	switch q {
	case "snapshots":
		rows, err = idx.Snapshots(ctx, *limit)
	case "ticks":
		rows, err = idx.Ticks(ctx, *from, end)
	case "inputs":
		rows, err = idx.Inputs(ctx, *from, end)
	case "health":
		rows, err = idx.HealthHistory(ctx, *limit)
	case "meta":
		out := map[string]string{}
		if v, err := idx.Meta(ctx, "run_id"); err == nil {
			out["run_id"] = v
		}
		for _, name := range []string{"resources", "archetypes", "tuning"} {
			if d, err := idx.CatalogDigest(ctx, name); err == nil {
				out[name+"_digest"] = d
			}
		}
		rows = out
	default:
		fmt.Fprintf(os.Stderr, "unknown query %q (snapshots, ticks, inputs, health, meta)\n", q)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(rows)
}
