package main

import (
	"context"
	"flag"
	"log"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/MoniVibe/PureDOTS-sub002/internal/persistence/snapshot"
	"github.com/MoniVibe/PureDOTS-sub002/internal/persistence/ticklog"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/catalogs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/tuning"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/world"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/worldgen"
	"github.com/MoniVibe/PureDOTS-sub002/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		seed       = flag.Int64("seed", 1337, "world seed (used only when starting a fresh world)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (ticks, inputs, snapshots, health)")

		keepSnaps    = flag.Int("keep_snapshots", 24, "rolling snapshots to keep on disk (0 keeps all)")
		archiveEvery = flag.Uint64("archive_every", 72000, "copy snapshots at multiples of this tick into archives/ (0 disables)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")

		villagers   = flag.Int("villagers", 24, "villagers to spawn in a fresh world")
		storehouses = flag.Int("storehouses", 2, "storehouses to spawn in a fresh world")
		nodes       = flag.Int("nodes", 40, "resource nodes to spawn in a fresh world")

		observerRemote = flag.Bool("observer_remote", false, "allow observer connections from non-loopback addresses")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}

	// Tuning is required for a fresh world; a resume carries its own.
	tune, tuneErr := tuning.Load(tp)
	if tuneErr != nil {
		if snapshotToLoad == "" {
			logger.Fatalf("load tuning: %v", tuneErr)
		}
		if os.IsNotExist(tuneErr) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", tuneErr)
		}
	}

	idx, err := openRuntimeIndex(worldDir, *disableDB, tune.Persist.IndexBatch)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	var w *world.World
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		w, err = world.ImportSnapshot(world.WorldConfig{ID: *worldID}, cats, snap)
		if err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		w.SetLogger(logger)
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), w.CurrentTick())
	} else {
		w, err = world.New(world.WorldConfig{ID: *worldID, Seed: *seed, Tuning: tune}, cats)
		if err != nil {
			logger.Fatalf("world: %v", err)
		}
		w.SetLogger(logger)
		scenario := worldgen.Generate(worldgen.Params{
			Seed:          *seed,
			Radius:        scenarioRadius(tune.Grid),
			Storehouses:   *storehouses,
			ResourceNodes: *nodes,
			ResourceTypes: w.ResourceNames(),
			Villagers:     *villagers,
			Archetypes:    w.ArchetypeNames(),
		})
		for _, in := range scenario {
			if _, err := w.Apply(in); err != nil {
				logger.Fatalf("worldgen input %s: %v", in.Kind, err)
			}
		}
		logger.Printf("fresh world seed=%d inputs=%d", *seed, len(scenario))
	}
	if idx != nil {
		if err := idx.SetMeta("run_id", w.RunID()); err != nil {
			logger.Printf("index backend: set meta: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := ticklog.NewLogger(worldDir)
	defer tickLog.Close()
	w.SetTickLogger(multiTickLogger{a: tickLog, b: idx})

	obsSrv := observer.NewServer(w, logger, *observerRemote)
	w.SetObserver(multiObserver{obsSrv, idx})

	a := &app{
		worldID:  *worldID,
		worldDir: worldDir,
		w:        w,
		idx:      idx,
		obs:      obsSrv,
		logger:   logger,

		keepSnapshots: *keepSnaps,
		archiveEvery:  *archiveEvery,

		enableAdmin: envBool("PD_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()),
		enablePprof: envBool("PD_ENABLE_PPROF_HTTP", false),
	}

	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				if _, err := a.persistSnapshot(snap); err != nil {
					logger.Printf("snapshot write: %v", err)
				}
			}
		}
	}()

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	if idx != nil {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		_ = idx.Flush(ctx2)
		cancel2()
	}
}

// scenarioRadius keeps generated entities inside the grid bounds on X and Z.
func scenarioRadius(g tuning.Grid) float64 {
	r := math.Min(math.Min(-g.WorldMin[0], g.WorldMax[0]), math.Min(-g.WorldMin[2], g.WorldMax[2]))
	r -= g.CellSize
	if r <= 0 {
		return 0
	}
	return r
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func latestSnapshot(worldDir string) string {
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
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
