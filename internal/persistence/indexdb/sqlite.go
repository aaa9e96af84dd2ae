package indexdb

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/MoniVibe/PureDOTS-sub002/internal/persistence/snapshot"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/catalogs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/tuning"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/world"
)

// SQLiteIndex is a secondary, queryable copy of the tick log, checkpoints
// and health transitions. Writes are queued to one writer goroutine and
// dropped when the queue is full; the JSONL tick log remains the source of
// truth.
type SQLiteIndex struct {
	db *sqlx.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	commitEvery int

	dropTick     atomic.Uint64
	dropSnapshot atomic.Uint64
	dropHealth   atomic.Uint64
}

type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropTickTotal     uint64 `json:"drop_tick_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	DropHealthTotal   uint64 `json:"drop_health_total"`
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSnapshot
	reqHealth
	reqFlush
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	snapshot SnapshotRow
	health   world.Summary
	done     chan struct{}
}

type TickRow struct {
	Tick        uint64 `db:"tick" json:"tick"`
	Digest      string `db:"digest" json:"digest"`
	Mode        string `db:"mode" json:"mode"`
	GridVersion uint64 `db:"grid_version" json:"grid_version"`
	Strategy    string `db:"strategy" json:"strategy"`
	Commands    int    `db:"commands" json:"commands"`
	Inputs      int    `db:"inputs" json:"inputs"`
}

type InputRow struct {
	Tick      uint64 `db:"tick" json:"tick"`
	Seq       int    `db:"seq" json:"seq"`
	Kind      string `db:"kind" json:"kind"`
	EntityIdx uint32 `db:"entity_index" json:"entity_index"`
	EntityGen uint32 `db:"entity_gen" json:"entity_gen"`
	RawJSON   string `db:"raw_json" json:"raw_json"`
}

type SnapshotRow struct {
	Tick        uint64 `db:"tick" json:"tick"`
	Path        string `db:"path" json:"path"`
	WorldID     string `db:"world_id" json:"world_id"`
	RunID       string `db:"run_id" json:"run_id"`
	Seed        int64  `db:"seed" json:"seed"`
	Bytes       int64  `db:"bytes" json:"bytes"`
	Villagers   int    `db:"villagers" json:"villagers"`
	Resources   int    `db:"resources" json:"resources"`
	Storehouses int    `db:"storehouses" json:"storehouses"`
	Tickets     int    `db:"tickets" json:"tickets"`
	RecordedAt  string `db:"recorded_at" json:"recorded_at"`
}

type HealthRow struct {
	Tick         uint64  `db:"tick" json:"tick"`
	Level        string  `db:"level" json:"level"`
	Reasons      string  `db:"reasons" json:"reasons"`
	StaleEntries int     `db:"stale_entries" json:"stale_entries"`
	DirtyRatio   float64 `db:"dirty_ratio" json:"dirty_ratio"`
	Mismatches   int     `db:"mismatches" json:"mismatches"`
	Underflows   uint64  `db:"rewind_underflows" json:"rewind_underflows"`
}

func OpenSQLite(path string, commitEvery int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("index schema: %w", err)
	}
	if commitEvery <= 0 {
		commitEvery = 128
	}

	s := &SQLiteIndex{
		db:          db,
		ch:          make(chan req, 65536),
		commitEvery: commitEvery,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sqlx.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			mode TEXT NOT NULL,
			grid_version INTEGER NOT NULL,
			strategy TEXT NOT NULL,
			commands INTEGER NOT NULL,
			inputs INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS inputs (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			entity_index INTEGER NOT NULL,
			entity_gen INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_inputs_kind_tick ON inputs(kind, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			world_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			seed INTEGER NOT NULL,
			bytes INTEGER NOT NULL,
			villagers INTEGER NOT NULL,
			resources INTEGER NOT NULL,
			storehouses INTEGER NOT NULL,
			tickets INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS health (
			tick INTEGER PRIMARY KEY,
			level TEXT NOT NULL,
			reasons TEXT NOT NULL,
			stale_entries INTEGER NOT NULL,
			dirty_ratio REAL NOT NULL,
			mismatches INTEGER NOT NULL,
			rewind_underflows INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		DropHealthTotal:   s.dropHealth.Load(),
	}
}

// WriteTick implements world.TickLogger. It never blocks the world loop.
func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		s.dropTick.Add(1)
	}
	return nil
}

// Publish implements world.Observer. Only changes of health level or
// reasons are stored.
func (s *SQLiteIndex) Publish(sum world.Summary) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqHealth, health: sum}:
	default:
		s.dropHealth.Add(1)
	}
}

func (s *SQLiteIndex) RecordSnapshot(path string, size int64, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := SnapshotRow{
		Tick:        snap.Header.Tick,
		Path:        path,
		WorldID:     snap.Header.WorldID,
		RunID:       snap.Header.RunID,
		Seed:        snap.Seed,
		Bytes:       size,
		Villagers:   len(snap.Villagers),
		Resources:   len(snap.Registry.Resources),
		Storehouses: len(snap.Registry.Storehouses),
		Tickets:     len(snap.Registry.Tickets),
		RecordedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// Flush waits until everything queued before the call is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) SetMeta(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`, key, value)
	return err
}

func (s *SQLiteIndex) Meta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.GetContext(ctx, &v, `SELECT value FROM meta WHERE key = ?`, key)
	return v, err
}

// UpsertCatalogs stores the catalogs and tuning a run was started with.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "resources.json")); err == nil {
			rows = append(rows, kv{name: "resources", digest: cats.Resources.Digest, json: b})
		}
	}
	if b, _ := json.Marshal(cats.Archetypes.Names); len(b) > 0 {
		rows = append(rows, kv{name: "archetypes", digest: cats.Archetypes.Digest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Preparex(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) CatalogDigest(ctx context.Context, name string) (string, error) {
	var d string
	err := s.db.GetContext(ctx, &d, `SELECT digest FROM catalogs WHERE name = ?`, name)
	return d, err
}

// Ticks returns indexed ticks in [from, to).
func (s *SQLiteIndex) Ticks(ctx context.Context, from, to uint64) ([]TickRow, error) {
	var rows []TickRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT tick, digest, mode, grid_version, strategy, commands, inputs
		 FROM ticks WHERE tick >= ? AND tick < ? ORDER BY tick`, int64(from), int64(to))
	return rows, err
}

func (s *SQLiteIndex) Inputs(ctx context.Context, from, to uint64) ([]InputRow, error) {
	var rows []InputRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT tick, seq, kind, entity_index, entity_gen, raw_json
		 FROM inputs WHERE tick >= ? AND tick < ? ORDER BY tick, seq`, int64(from), int64(to))
	return rows, err
}

// Snapshots lists indexed checkpoints, newest first.
func (s *SQLiteIndex) Snapshots(ctx context.Context, limit int) ([]SnapshotRow, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []SnapshotRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT tick, path, world_id, run_id, seed, bytes, villagers, resources, storehouses, tickets, recorded_at
		 FROM snapshots ORDER BY tick DESC LIMIT ?`, limit)
	return rows, err
}

// LatestSnapshot returns the newest indexed checkpoint, if any.
func (s *SQLiteIndex) LatestSnapshot(ctx context.Context) (SnapshotRow, bool, error) {
	rows, err := s.Snapshots(ctx, 1)
	if err != nil || len(rows) == 0 {
		return SnapshotRow{}, false, err
	}
	return rows[0], true, nil
}

func (s *SQLiteIndex) HealthHistory(ctx context.Context, limit int) ([]HealthRow, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []HealthRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT tick, level, reasons, stale_entries, dirty_ratio, mismatches, rewind_underflows
		 FROM health ORDER BY tick DESC LIMIT ?`, limit)
	return rows, err
}

func (s *SQLiteIndex) loop() {
	insertTick, _ := s.db.Preparex(`INSERT OR REPLACE INTO ticks(tick,digest,mode,grid_version,strategy,commands,inputs) VALUES(?,?,?,?,?,?,?)`)
	clearInputs, _ := s.db.Preparex(`DELETE FROM inputs WHERE tick = ?`)
	insertInput, _ := s.db.Preparex(`INSERT OR REPLACE INTO inputs(tick,seq,kind,entity_index,entity_gen,raw_json) VALUES(?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Preparex(`INSERT OR REPLACE INTO snapshots(tick,path,world_id,run_id,seed,bytes,villagers,resources,storehouses,tickets,recorded_at) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	insertHealth, _ := s.db.Preparex(`INSERT OR REPLACE INTO health(tick,level,reasons,stale_entries,dirty_ratio,mismatches,rewind_underflows) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sqlx.Stmt{insertTick, clearInputs, insertInput, insertSnapshot, insertHealth} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sqlx.Tx
		opCount       int
		lastCommit    = time.Now()
		commitMaxWait = 2 * time.Second

		lastHealth = "unset"
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.Beginx()
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sqlx.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmtx(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			t := r.tick
			mode := t.Mode
			if mode == "" {
				mode = "record"
			}
			if !exec(insertTick, int64(t.Tick), t.Digest, mode, int64(t.Version), t.Strategy, t.Commands, len(t.Inputs)) {
				continue
			}
			// A re-run tick replaces the inputs of the abandoned one.
			if !exec(clearInputs, int64(t.Tick)) {
				continue
			}
			for i, in := range t.Inputs {
				raw, _ := json.Marshal(in)
				if !exec(insertInput, int64(t.Tick), i, string(in.Kind), in.Entity.Index, in.Entity.Gen, string(raw)) {
					break
				}
			}

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.WorldID, sn.RunID, sn.Seed, sn.Bytes,
				sn.Villagers, sn.Resources, sn.Storehouses, sn.Tickets, sn.RecordedAt)

		case reqHealth:
			h := r.health
			key := h.Level + "|" + strings.Join(h.Reasons, ";")
			if key == lastHealth {
				break
			}
			if exec(insertHealth, int64(h.Tick), h.Level, strings.Join(h.Reasons, ";"),
				h.Counters.StaleEntries, h.Counters.DirtyRatio, h.Counters.ReservationMismatches,
				int64(h.Counters.RewindUnderflows)) {
				lastHealth = key
			}
		}
		if tx != nil && (opCount >= s.commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
