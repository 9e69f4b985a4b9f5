package pebblestore

import (
	"context"
	"errors"
	"time"

	"github.com/cockroachdb/pebble"

	logpkg "github.com/remiverdiesen/agents-at-scale/pkg/log"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = pebble.ErrNotFound

// FsyncMode selects when committed writes reach stable storage.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways syncs the WAL on every commit.
	FsyncModeAlways
	// FsyncModeInterval lets Pebble coalesce WAL syncs within FsyncInterval.
	FsyncModeInterval
	// FsyncModeNever leaves syncing to Pebble and the OS.
	FsyncModeNever
)

const defaultSyncInterval = 5 * time.Millisecond

// Options configures Open.
type Options struct {
	DataDir       string
	Fsync         FsyncMode
	FsyncInterval time.Duration
	// Tuning is passed to Pebble as is; nil means Pebble defaults.
	Tuning  *pebble.Options
	Metrics MetricsHook
	Logger  logpkg.Logger
}

// MetricsHook observes storage latencies and sizes.
type MetricsHook interface {
	ObserveWrite(elapsed time.Duration, bytes int)
	ObserveRead(elapsed time.Duration, bytes int)
	ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int)
}

type nopHook struct{}

func (nopHook) ObserveWrite(time.Duration, int)            {}
func (nopHook) ObserveRead(time.Duration, int)             {}
func (nopHook) ObserveBatchCommit(time.Duration, int, int) {}

// DB is a Pebble database with a fixed commit durability.
type DB struct {
	pdb  *pebble.DB
	wo   *pebble.WriteOptions
	hook MetricsHook
}

// Open creates or opens the database in opts.DataDir.
func Open(opts Options) (*DB, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebble: data dir is required")
	}
	po := opts.Tuning
	if po == nil {
		po = &pebble.Options{}
	}
	if po.Logger == nil && opts.Logger != nil {
		po.Logger = logpkg.PebbleLogger{L: opts.Logger.WithComponent("pebble")}
	}

	wo := pebble.NoSync
	switch opts.Fsync {
	case FsyncModeAlways:
		wo = pebble.Sync
	case FsyncModeNever:
	default:
		interval := opts.FsyncInterval
		if interval <= 0 {
			interval = defaultSyncInterval
		}
		po.WALMinSyncInterval = func() time.Duration { return interval }
	}

	pdb, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, err
	}
	db := &DB{pdb: pdb, wo: wo, hook: opts.Metrics}
	if db.hook == nil {
		db.hook = nopHook{}
	}
	return db, nil
}

func (db *DB) Close() error {
	if db == nil || db.pdb == nil {
		return nil
	}
	return db.pdb.Close()
}

// Update runs fn against a fresh batch and commits it atomically. Nothing is
// written when fn fails or ctx ends first.
func (db *DB) Update(ctx context.Context, fn func(b *pebble.Batch) error) error {
	b := db.pdb.NewBatch()
	defer b.Close()
	if err := fn(b); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	ops, size := int(b.Count()), b.Len()
	err := b.Commit(db.wo)
	db.hook.ObserveBatchCommit(time.Since(start), ops, size)
	return err
}

// ReplacePrefix atomically drops every key under prefix and writes what fn
// adds to the batch.
func (db *DB) ReplacePrefix(ctx context.Context, prefix []byte, fn func(b *pebble.Batch) error) error {
	return db.Update(ctx, func(b *pebble.Batch) error {
		if err := b.DeleteRange(prefix, PrefixEnd(prefix), nil); err != nil {
			return err
		}
		return fn(b)
	})
}

// Set writes a single key.
func (db *DB) Set(key, value []byte) error {
	start := time.Now()
	err := db.Update(context.Background(), func(b *pebble.Batch) error {
		return b.Set(key, value, nil)
	})
	if err == nil {
		db.hook.ObserveWrite(time.Since(start), len(key)+len(value))
	}
	return err
}

// Get returns a copy of the value stored at key.
func (db *DB) Get(key []byte) ([]byte, error) {
	start := time.Now()
	v, closer, err := db.pdb.Get(key)
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), v...)
	_ = closer.Close()
	db.hook.ObserveRead(time.Since(start), len(out))
	return out, nil
}

// ScanPrefix calls fn for each key under prefix in ascending order. Key and
// value are only valid during the call; the first error from fn stops the scan.
func (db *DB) ScanPrefix(prefix []byte, fn func(key, value []byte) error) (err error) {
	start := time.Now()
	it, err := db.pdb.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: PrefixEnd(prefix)})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := it.Close(); err == nil {
			err = cerr
		}
	}()
	n := 0
	for valid := it.First(); valid; valid = it.Next() {
		v := it.Value()
		n += len(v)
		if err := fn(it.Key(), v); err != nil {
			return err
		}
	}
	db.hook.ObserveRead(time.Since(start), n)
	return nil
}

// Ping checks that the database can still serve reads.
func (db *DB) Ping() error {
	if db == nil || db.pdb == nil {
		return errors.New("pebble: closed")
	}
	it, err := db.pdb.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// PrefixEnd returns the smallest key greater than every key with prefix, or
// nil when no such key exists.
func PrefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for len(end) > 0 {
		last := len(end) - 1
		if end[last] < 0xff {
			end[last]++
			return end
		}
		end = end[:last]
	}
	return nil
}
