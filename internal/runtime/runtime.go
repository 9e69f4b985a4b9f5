package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	cfgpkg "github.com/remiverdiesen/agents-at-scale/internal/config"
	"github.com/remiverdiesen/agents-at-scale/internal/ledger"
	"github.com/remiverdiesen/agents-at-scale/internal/metrics"
	sessionsvc "github.com/remiverdiesen/agents-at-scale/internal/services/sessions"
	"github.com/remiverdiesen/agents-at-scale/internal/snapshot"
	pebblestore "github.com/remiverdiesen/agents-at-scale/internal/storage/pebble"
	logpkg "github.com/remiverdiesen/agents-at-scale/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	// Logger defaults to a logger built from Config.Log.
	Logger logpkg.Logger
	// Metrics defaults to a fresh registry.
	Metrics *metrics.Metrics
	// Now overrides the store clock.
	Now func() time.Time
}

// Runtime wires storage, config, and facades for a single-node instance.
type Runtime struct {
	config   cfgpkg.Config
	logger   logpkg.Logger
	metrics  *metrics.Metrics
	db       *pebblestore.DB
	store    *ledger.Store
	sessions *sessionsvc.Service
}

// Open selects the snapshot backend, opens the store and builds the
// sessions service.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		l, err := logpkg.ApplyConfig(cfg.Log)
		if err != nil {
			return nil, err
		}
		logger = l
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	rt := &Runtime{config: cfg, logger: logger, metrics: m}

	backend, err := rt.openBackend()
	if err != nil {
		return nil, err
	}
	store, err := ledger.Open(ctx, ledger.Options{
		MaxPayloadBytes: cfg.MaxMessageBytes,
		MaxRecords:      cfg.MaxRecords,
		MaxAge:          cfg.MaxAge(),
		Backend:         backend,
		SaveTimeout:     cfg.SnapshotTimeout(),
		Logger:          logger,
		Observer:        m,
		Now:             opts.Now,
	})
	if err != nil {
		rt.closeDB()
		return nil, err
	}
	rt.store = store
	rt.sessions = sessionsvc.New(store, sessionsvc.Options{
		FlushWindow: cfg.FlushWindow(),
		BufferSize:  cfg.Tail.BufferSize,
		PageSize:    cfg.Tail.PageSize,
		Logger:      logger,
		Metrics:     m,
	})
	return rt, nil
}

// openBackend returns nil when persistence is disabled.
func (r *Runtime) openBackend() (ledger.Backend, error) {
	path := r.config.SnapshotPath()
	switch r.config.Snapshot.Backend {
	case cfgpkg.BackendPebble:
		db, err := pebblestore.Open(pebblestore.Options{
			DataDir:       path,
			Fsync:         fsyncMode(r.config.Snapshot.Fsync),
			FsyncInterval: 5 * time.Millisecond,
			Metrics:       r.metrics,
			Logger:        r.logger.WithComponent("pebble"),
		})
		if err != nil {
			return nil, fmt.Errorf("runtime: open pebble at %s: %w", path, err)
		}
		r.db = db
		r.logger.Info("snapshot backend", logpkg.Str("backend", "pebble"), logpkg.Str("path", path))
		return snapshot.NewPebbleBackend(db), nil
	default:
		if path == "" {
			r.logger.Info("snapshot persistence disabled")
			return nil, nil
		}
		b := snapshot.NewFileBackend(path)
		format, compressed := b.Format()
		r.logger.Info("snapshot backend",
			logpkg.Str("backend", "file"),
			logpkg.Str("path", path),
			logpkg.Str("format", format.String()),
			logpkg.Bool("zstd", compressed))
		return b, nil
	}
}

func fsyncMode(s string) pebblestore.FsyncMode {
	switch s {
	case "always":
		return pebblestore.FsyncModeAlways
	case "never":
		return pebblestore.FsyncModeNever
	default:
		return pebblestore.FsyncModeInterval
	}
}

// Close writes the final snapshot and releases storage.
func (r *Runtime) Close(ctx context.Context) error {
	var err error
	if r.store != nil {
		err = r.store.Close(ctx)
	}
	if cerr := r.closeDB(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (r *Runtime) closeDB() error {
	if r.db == nil {
		return nil
	}
	db := r.db
	r.db = nil
	return db.Close()
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.store == nil {
		return errors.New("store not open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.db != nil {
		if err := r.db.Ping(); err != nil {
			return err
		}
	}
	return nil
}

// Store returns the ledger store.
func (r *Runtime) Store() *ledger.Store { return r.store }

// Sessions returns the transport facade.
func (r *Runtime) Sessions() *sessionsvc.Service { return r.sessions }

// Metrics returns the collectors.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// Logger returns the root logger.
func (r *Runtime) Logger() logpkg.Logger { return r.logger }

// DB exposes the Pebble database when that backend is selected.
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
