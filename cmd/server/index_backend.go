package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MoniVibe/PureDOTS-sub002/internal/persistence/indexdb"
	"github.com/MoniVibe/PureDOTS-sub002/internal/persistence/snapshot"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/catalogs"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/tuning"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	world.Observer
	Close() error
	Flush(ctx context.Context) error
	Stats() indexdb.Stats
	SetMeta(key, value string) error
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordSnapshot(path string, size int64, snap snapshot.SnapshotV1)
	Ticks(ctx context.Context, from, to uint64) ([]indexdb.TickRow, error)
	HealthHistory(ctx context.Context, limit int) ([]indexdb.HealthRow, error)
}

func openRuntimeIndex(worldDir string, disableDB bool, batch int) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("PD_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(worldDir, "index", "world.sqlite")
		idx, err := indexdb.OpenSQLite(dbPath, batch)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported PD_INDEX_BACKEND: %s", backend)
	}
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	var err error
	if m.a != nil {
		err = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return err
}

type multiObserver []world.Observer

func (m multiObserver) Publish(s world.Summary) {
	for _, o := range m {
		if o != nil {
			o.Publish(s)
		}
	}
}
