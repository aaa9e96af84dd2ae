package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MoniVibe/PureDOTS-sub002/internal/persistence/indexdb"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/catalogs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/spatial"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/tuning"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/world"
	"github.com/MoniVibe/PureDOTS-sub002/internal/transport/observer"
)

func newTestApp(t *testing.T, withIndex bool) (*app, context.Context) {
	t.Helper()
	cats, err := catalogs.Load("../../configs")
	require.NoError(t, err)
	w, err := world.New(world.WorldConfig{ID: "w1", Seed: 7, Tuning: tuning.Defaults()}, cats)
	require.NoError(t, err)

	logger := log.New(io.Discard, "", 0)
	dir := t.TempDir()
	a := &app{
		worldID:     "w1",
		worldDir:    dir,
		w:           w,
		obs:         observer.NewServer(w, logger, false),
		logger:      logger,
		enableAdmin: true,
	}
	if withIndex {
		idx, err := indexdb.OpenSQLite(filepath.Join(dir, "index", "world.sqlite"), 1)
		require.NoError(t, err)
		t.Cleanup(func() { _ = idx.Close() })
		a.idx = idx
		w.SetTickLogger(multiTickLogger{b: idx})
		w.SetObserver(multiObserver{a.obs, idx})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		w.Stop()
		<-done
	})
	return a, ctx
}

func do(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.RemoteAddr = "127.0.0.1:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutes_HealthAndMetrics(t *testing.T) {
	a, _ := newTestApp(t, false)
	mux := a.routes()

	rec := do(t, mux, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())

	rec = do(t, mux, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `puredots_world_tick{world="w1"}`)
	require.Contains(t, body, `puredots_health_total{world="w1",counter="missing_bridge"}`)
	require.NotContains(t, body, "puredots_index_queue_depth")
}

func TestRoutes_AdminIsLoopbackOnly(t *testing.T) {
	a, _ := newTestApp(t, false)
	mux := a.routes()

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, mux, http.MethodGet, "/admin/v1/rewind?tick=1", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, mux, http.MethodPost, "/admin/v1/rewind", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, mux, http.MethodPost, "/admin/v1/speed?x=fast", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, mux, http.MethodGet, "/admin/v1/ticks", nil)
	require.Equal(t, http.StatusNotFound, rec.Code, "no index configured")
}

func TestRoutes_InputSnapshotAndTicks(t *testing.T) {
	a, _ := newTestApp(t, true)
	mux := a.routes()

	body, err := json.Marshal([]world.Input{
		world.SpawnStorehouse(spatial.Vec3{X: -4}, 200),
		world.SpawnResource(spatial.Vec3{X: 4}, "stone", 0),
		world.SpawnVillager(spatial.Vec3{}, "gatherer", false),
	})
	require.NoError(t, err)
	rec := do(t, mux, http.MethodPost, "/admin/v1/input", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		m := a.w.Metrics()
		return m.Storehouses == 1 && m.Villagers == 1 && m.Tick > 5
	}, 10*time.Second, 20*time.Millisecond)

	rec = do(t, mux, http.MethodPost, "/admin/v1/snapshot", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var snapResp struct {
		OK   bool   `json:"ok"`
		Tick uint64 `json:"tick"`
		Path string `json:"path"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapResp))
	require.True(t, snapResp.OK)
	_, err = os.Stat(snapResp.Path)
	require.NoError(t, err)
	require.Equal(t, snapResp.Path, latestSnapshot(a.worldDir))

	rec = do(t, mux, http.MethodGet, "/admin/v1/ticks?from=0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []indexdb.TickRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.NotEmpty(t, rows)
	require.EqualValues(t, 0, rows[0].Tick)

	rec = do(t, mux, http.MethodGet, "/metrics", nil)
	require.Contains(t, rec.Body.String(), "puredots_index_queue_depth")
}

func TestRoutes_RewindAndPause(t *testing.T) {
	a, ctx := newTestApp(t, false)
	mux := a.routes()

	require.True(t, a.w.Submit(world.SpawnStorehouse(spatial.Vec3{}, 50)))
	require.Eventually(t, func() bool { return a.w.CurrentTick() > 20 }, 10*time.Second, 20*time.Millisecond)

	rec := do(t, mux, http.MethodPost, "/admin/v1/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, mux, http.MethodPost, "/admin/v1/scrub?tick=10", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.EqualValues(t, 10, a.w.CurrentTick())

	rec = do(t, mux, http.MethodGet, "/admin/v1/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `"mode":"SCRUB"`), rec.Body.String())

	rec = do(t, mux, http.MethodPost, "/admin/v1/resume", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, mux, http.MethodPost, "/admin/v1/rewind?tick=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 5, a.w.CurrentTick())
	require.NoError(t, a.w.RequestPause(ctx, false))
}

func TestLatestSnapshot_PicksHighestTick(t *testing.T) {
	dir := t.TempDir()
	snaps := filepath.Join(dir, "snapshots")
	require.NoError(t, os.MkdirAll(snaps, 0o755))
	for _, name := range []string{"000000000090.snap.zst", "000000000100.snap.zst", "notes.txt", "abc.snap.zst"} {
		require.NoError(t, os.WriteFile(filepath.Join(snaps, name), []byte("x"), 0o644))
	}
	require.Equal(t, filepath.Join(snaps, "000000000100.snap.zst"), latestSnapshot(dir))
	require.Empty(t, latestSnapshot(t.TempDir()))
}

func TestScenarioRadius_StaysInsideGrid(t *testing.T) {
	g := tuning.Defaults().Grid
	r := scenarioRadius(g)
	require.Greater(t, r, 0.0)
	require.Less(t, r, g.WorldMax[0])
}
