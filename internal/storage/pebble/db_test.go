package pebblestore

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
)

type countingHook struct {
	writes, reads, commits, ops int
}

func (h *countingHook) ObserveWrite(time.Duration, int) { h.writes++ }
func (h *countingHook) ObserveRead(time.Duration, int)  { h.reads++ }
func (h *countingHook) ObserveBatchCommit(_ time.Duration, ops int, _ int) {
	h.commits++
	h.ops += ops
}

func openDB(t *testing.T, mode FsyncMode) (*DB, *countingHook) {
	t.Helper()
	hook := &countingHook{}
	db, err := Open(Options{DataDir: t.TempDir(), Fsync: mode, Metrics: hook})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, hook
}

func TestOpenRequiresDir(t *testing.T) {
	if _, err := Open(Options{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSetGet(t *testing.T) {
	for _, mode := range []FsyncMode{FsyncModeAlways, FsyncModeInterval, FsyncModeNever} {
		db, hook := openDB(t, mode)
		if err := db.Set([]byte("k"), []byte("v")); err != nil {
			t.Fatalf("set: %v", err)
		}
		got, err := db.Get([]byte("k"))
		if err != nil || string(got) != "v" {
			t.Fatalf("get: %q %v", got, err)
		}
		if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
			t.Fatalf("missing key: %v", err)
		}
		if hook.writes != 1 || hook.commits != 1 || hook.reads != 1 {
			t.Fatalf("hook counts %+v", *hook)
		}
	}
}

func TestReplacePrefix(t *testing.T) {
	db, hook := openDB(t, FsyncModeNever)
	ctx := context.Background()
	for _, k := range []string{"ledger/e/1", "ledger/e/2", "other/x"} {
		if err := db.Set([]byte(k), []byte("old")); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	err := db.ReplacePrefix(ctx, []byte("ledger/"), func(b *pebble.Batch) error {
		return b.Set([]byte("ledger/e/3"), []byte("new"), nil)
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if hook.ops != 5 {
		t.Fatalf("ops %d", hook.ops)
	}

	var keys []string
	if err := db.ScanPrefix([]byte("ledger/"), func(k, _ []byte) error {
		keys = append(keys, string(k))
		return nil
	}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(keys) != 1 || keys[0] != "ledger/e/3" {
		t.Fatalf("keys after replace %v", keys)
	}
	if _, err := db.Get([]byte("other/x")); err != nil {
		t.Fatalf("keys outside the prefix must survive: %v", err)
	}
}

func TestUpdateIsAllOrNothing(t *testing.T) {
	db, _ := openDB(t, FsyncModeNever)
	boom := errors.New("boom")
	err := db.Update(context.Background(), func(b *pebble.Batch) error {
		_ = b.Set([]byte("a"), []byte("1"), nil)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = db.Update(ctx, func(b *pebble.Batch) error { return b.Set([]byte("b"), []byte("2"), nil) })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err %v", err)
	}
	for _, k := range []string{"a", "b"} {
		if _, err := db.Get([]byte(k)); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s was committed", k)
		}
	}
}

func TestScanPrefixStopsOnError(t *testing.T) {
	db, _ := openDB(t, FsyncModeNever)
	for _, k := range []string{"p/1", "p/2", "p/3"} {
		_ = db.Set([]byte(k), []byte(k))
	}
	stop := errors.New("stop")
	seen := 0
	err := db.ScanPrefix([]byte("p/"), func(k, v []byte) error {
		seen++
		if !bytes.Equal(k, v) {
			t.Fatalf("value mismatch %s %s", k, v)
		}
		if seen == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || seen != 2 {
		t.Fatalf("err %v seen %d", err, seen)
	}
}

func TestPing(t *testing.T) {
	db, _ := openDB(t, FsyncModeNever)
	if err := db.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	var closed *DB
	if err := closed.Ping(); err == nil {
		t.Fatalf("nil db should not ping")
	}
}

func TestPrefixEnd(t *testing.T) {
	cases := map[string][]byte{
		"ledger/":  []byte("ledger0"),
		"a\xff":    []byte("b"),
		"\xff\xff": nil,
	}
	for in, want := range cases {
		if got := PrefixEnd([]byte(in)); !bytes.Equal(got, want) {
			t.Fatalf("PrefixEnd(%q) = %q want %q", in, got, want)
		}
	}
}
