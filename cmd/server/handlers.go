package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/MoniVibe/PureDOTS-sub002/internal/persistence/archive"
	"github.com/MoniVibe/PureDOTS-sub002/internal/persistence/indexdb"
	"github.com/MoniVibe/PureDOTS-sub002/internal/persistence/snapshot"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/world"
	"github.com/MoniVibe/PureDOTS-sub002/internal/transport/observer"
)

type app struct {
	worldID  string
	worldDir string
	w        *world.World
	idx      runtimeIndex
	obs      *observer.Server
	logger   *log.Logger

	keepSnapshots int
	archiveEvery  uint64

	enableAdmin bool
	enablePprof bool
}

// persistSnapshot writes snap under the world's snapshots directory and
// records it in the index.
func (a *app) persistSnapshot(snap snapshot.SnapshotV1) (string, error) {
	path := filepath.Join(a.worldDir, "snapshots", snapshot.FileName(snap.Header.Tick))
	start := time.Now()
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	var size int64
	if fi, err := os.Stat(path); err == nil {
		size = fi.Size()
	}
	a.logger.Printf("snapshot tick=%s villagers=%d size=%s took=%s",
		humanize.Comma(int64(snap.Header.Tick)), len(snap.Villagers), humanize.Bytes(uint64(size)), time.Since(start).Round(time.Millisecond))
	if a.idx != nil {
		a.idx.RecordSnapshot(path, size, snap)
	}
	if dst, ok, err := archive.ArchiveSnapshot(a.worldDir, path, snap, a.archiveEvery); err != nil {
		a.logger.Printf("archive snapshot: %v", err)
	} else if ok {
		a.logger.Printf("archived snapshot tick=%d to %s", snap.Header.Tick, dst)
	}
	if removed, err := archive.Prune(a.worldDir, a.keepSnapshots); err != nil {
		a.logger.Printf("prune snapshots: %v", err)
	} else if len(removed) > 0 {
		a.logger.Printf("pruned %d old snapshots", len(removed))
	}
	return path, nil
}

func (a *app) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", a.handleMetrics)

	if a.enableAdmin {
		mux.HandleFunc("/admin/v1/state", a.local(a.handleState))
		mux.HandleFunc("/admin/v1/snapshot", a.local(a.post(a.handleSnapshot)))
		mux.HandleFunc("/admin/v1/input", a.local(a.post(a.handleInput)))
		mux.HandleFunc("/admin/v1/rewind", a.local(a.post(a.tickControl(a.w.RequestRewind))))
		mux.HandleFunc("/admin/v1/scrub", a.local(a.post(a.tickControl(a.w.RequestScrub))))
		mux.HandleFunc("/admin/v1/playback", a.local(a.post(a.tickControl(a.w.RequestPlayback))))
		mux.HandleFunc("/admin/v1/resume", a.local(a.post(a.handleResume)))
		mux.HandleFunc("/admin/v1/pause", a.local(a.post(a.handlePause)))
		mux.HandleFunc("/admin/v1/speed", a.local(a.post(a.handleSpeed)))
		mux.HandleFunc("/admin/v1/ticks", a.local(a.handleTicks))
		mux.HandleFunc("/admin/v1/health", a.local(a.handleHealth))
	} else {
		a.logger.Printf("admin endpoints disabled (PD_ENABLE_ADMIN_HTTP=false)")
	}
	if a.obs != nil {
		mux.HandleFunc("/v1/observer/bootstrap", a.obs.BootstrapHandler())
		mux.HandleFunc("/v1/observer/ws", a.obs.WSHandler())
	}
	if a.enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

func (a *app) local(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func (a *app) post(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(rw, r)
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeErr(rw http.ResponseWriter, status int, err error) {
	writeJSON(rw, status, map[string]any{"ok": false, "error": err.Error()})
}

func controlCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 5*time.Second)
}

func (a *app) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
	in := metricsInput{WorldID: a.worldID, World: a.w.Metrics()}
	if in.World.Tick == 0 {
		in.World.Tick = a.w.CurrentTick()
	}
	if a.idx != nil {
		s := a.idx.Stats()
		in.Index = &s
	}
	if a.obs != nil {
		in.Observers = a.obs.Subscribers()
		in.Dropped = a.obs.Dropped()
	}
	writeMetrics(rw, in)
}

func (a *app) handleState(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, struct {
		WorldID string             `json:"world_id"`
		RunID   string             `json:"run_id"`
		Tick    uint64             `json:"tick"`
		Metrics world.WorldMetrics `json:"metrics"`
	}{
		WorldID: a.worldID,
		RunID:   a.w.RunID(),
		Tick:    a.w.CurrentTick(),
		Metrics: a.w.Metrics(),
	})
}

func (a *app) handleSnapshot(rw http.ResponseWriter, r *http.Request) {
	ctx, cancel := controlCtx(r)
	defer cancel()
	snap, err := a.w.RequestSnapshot(ctx)
	if err != nil {
		writeErr(rw, http.StatusServiceUnavailable, err)
		return
	}
	path, err := a.persistSnapshot(snap)
	if err != nil {
		writeErr(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "tick": snap.Header.Tick, "path": path})
}

func (a *app) handleInput(rw http.ResponseWriter, r *http.Request) {
	var ins []world.Input
	dec := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 1<<20))
	if err := dec.Decode(&ins); err != nil {
		writeErr(rw, http.StatusBadRequest, fmt.Errorf("decode inputs: %w", err))
		return
	}
	accepted := 0
	for _, in := range ins {
		if !a.w.Submit(in) {
			break
		}
		accepted++
	}
	status := http.StatusAccepted
	if accepted < len(ins) {
		status = http.StatusServiceUnavailable
	}
	writeJSON(rw, status, map[string]any{"ok": accepted == len(ins), "accepted": accepted})
}

func parseTick(r *http.Request) (uint64, error) {
	raw := r.URL.Query().Get("tick")
	if raw == "" {
		return 0, fmt.Errorf("missing tick")
	}
	return strconv.ParseUint(raw, 10, 64)
}

func (a *app) tickControl(fn func(context.Context, uint64) error) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		tick, err := parseTick(r)
		if err != nil {
			writeErr(rw, http.StatusBadRequest, err)
			return
		}
		ctx, cancel := controlCtx(r)
		defer cancel()
		if err := fn(ctx, tick); err != nil {
			writeErr(rw, http.StatusConflict, err)
			return
		}
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "tick": a.w.CurrentTick()})
	}
}

func (a *app) handleResume(rw http.ResponseWriter, r *http.Request) {
	ctx, cancel := controlCtx(r)
	defer cancel()
	if err := a.w.RequestResume(ctx); err != nil {
		writeErr(rw, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "tick": a.w.CurrentTick()})
}

func (a *app) handlePause(rw http.ResponseWriter, r *http.Request) {
	paused := r.URL.Query().Get("paused") != "false"
	ctx, cancel := controlCtx(r)
	defer cancel()
	if err := a.w.RequestPause(ctx, paused); err != nil {
		writeErr(rw, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "paused": paused})
}

func (a *app) handleSpeed(rw http.ResponseWriter, r *http.Request) {
	speed, err := strconv.ParseFloat(r.URL.Query().Get("x"), 64)
	if err != nil || speed < 0 {
		writeErr(rw, http.StatusBadRequest, fmt.Errorf("bad speed %q", r.URL.Query().Get("x")))
		return
	}
	ctx, cancel := controlCtx(r)
	defer cancel()
	if err := a.w.RequestSpeed(ctx, speed); err != nil {
		writeErr(rw, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "speed": speed})
}

func queryUint(r *http.Request, key string) uint64 {
	v, _ := strconv.ParseUint(r.URL.Query().Get(key), 10, 64)
	return v
}

func (a *app) handleTicks(rw http.ResponseWriter, r *http.Request) {
	if a.idx == nil {
		writeErr(rw, http.StatusNotFound, fmt.Errorf("index disabled"))
		return
	}
	from, to := queryUint(r, "from"), queryUint(r, "to")
	if to == 0 {
		to = a.w.CurrentTick()
	}
	ctx, cancel := controlCtx(r)
	defer cancel()
	if err := a.idx.Flush(ctx); err != nil {
		writeErr(rw, http.StatusServiceUnavailable, err)
		return
	}
	rows, err := a.idx.Ticks(ctx, from, to)
	if err != nil {
		writeErr(rw, http.StatusInternalServerError, err)
		return
	}
	if rows == nil {
		rows = []indexdb.TickRow{}
	}
	writeJSON(rw, http.StatusOK, rows)
}

func (a *app) handleHealth(rw http.ResponseWriter, r *http.Request) {
	if a.idx == nil {
		writeErr(rw, http.StatusNotFound, fmt.Errorf("index disabled"))
		return
	}
	limit := int(queryUint(r, "limit"))
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := controlCtx(r)
	defer cancel()
	rows, err := a.idx.HealthHistory(ctx, limit)
	if err != nil {
		writeErr(rw, http.StatusInternalServerError, err)
		return
	}
	if rows == nil {
		rows = []indexdb.HealthRow{}
	}
	writeJSON(rw, http.StatusOK, rows)
}
