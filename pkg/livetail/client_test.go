package livetail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ledgerv1 "github.com/remiverdiesen/agents-at-scale/api/ledger/v1"
	"github.com/remiverdiesen/agents-at-scale/pkg/itemtime"
)

// fakeTransport serves an in-memory ordered log. Watch replays everything
// after the cursor, then forwards appends until killed.
type fakeTransport struct {
	mu       sync.Mutex
	recs     []ledgerv1.Record
	seq      uint64
	subs     map[chan ledgerv1.Record]struct{}
	cursors  []*uint64
	fetches  int
	fetchErr error
	gate     chan struct{}
	purged   []string
	kill     chan error
}

func newFake() *fakeTransport {
	return &fakeTransport{subs: map[chan ledgerv1.Record]struct{}{}, kill: make(chan error, 1)}
}

func (f *fakeTransport) append(n int) {
	for i := 0; i < n; i++ {
		f.appendMessage(nil)
	}
}

// appendMessage stores one record; a nil msg gets a generated {"n":seq} body.
func (f *fakeTransport) appendMessage(msg json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	if msg == nil {
		msg = json.RawMessage(fmt.Sprintf(`{"n":%d}`, f.seq))
	}
	rec := ledgerv1.Record{
		ID:        fmt.Sprintf("r%d", f.seq),
		SessionID: "s1",
		Sequence:  f.seq,
		Timestamp: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC).Add(time.Duration(f.seq) * time.Second),
		Message:   msg,
	}
	f.recs = append(f.recs, rec)
	for ch := range f.subs {
		ch <- rec
	}
}

func (f *fakeTransport) FetchPage(ctx context.Context, _ string, cursor *uint64, limit int) (Page, error) {
	f.mu.Lock()
	f.fetches++
	gate := f.gate
	if err := f.fetchErr; err != nil {
		f.mu.Unlock()
		return Page{}, err
	}
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Page{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var after []ledgerv1.Record
	for _, r := range f.recs {
		if cursor == nil || r.Sequence > *cursor {
			after = append(after, r)
		}
	}
	page := Page{Total: len(f.recs)}
	if len(after) > limit {
		after = after[:limit]
		page.HasMore = true
		c := after[len(after)-1].Sequence
		page.NextCursor = &c
	}
	for _, r := range after {
		page.Items = append(page.Items, itemFromRecord(r))
	}
	return page, nil
}

func (f *fakeTransport) Watch(ctx context.Context, _ string, cursor *uint64, onOpen func(), onItem func(Item)) error {
	sub := make(chan ledgerv1.Record, 1024)
	f.mu.Lock()
	f.cursors = append(f.cursors, cursor)
	var replay []ledgerv1.Record
	if cursor != nil {
		for _, r := range f.recs {
			if r.Sequence > *cursor {
				replay = append(replay, r)
			}
		}
	}
	f.subs[sub] = struct{}{}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		delete(f.subs, sub)
		f.mu.Unlock()
	}()

	onOpen()
	for _, r := range replay {
		onItem(itemFromRecord(r))
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-f.kill:
			return err
		case r := <-sub:
			onItem(itemFromRecord(r))
		}
	}
}

func (f *fakeTransport) Purge(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged = append(f.purged, sessionID)
	f.recs = nil
	return nil
}

func (f *fakeTransport) watchCursors() []*uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*uint64(nil), f.cursors...)
}

func (f *fakeTransport) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func sequences(entries []Entry) []uint64 {
	out := make([]uint64, len(entries))
	for i, e := range entries {
		out[i] = e.Record.Sequence
	}
	return out
}

func equalSeq(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func startClient(t *testing.T, f *fakeTransport, opts Options) *Client {
	t.Helper()
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = 20 * time.Millisecond
	}
	c := New(f, "s1", opts)
	t.Cleanup(c.Close)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return c
}

func TestStartBackfillsThenTails(t *testing.T) {
	f := newFake()
	f.append(3)
	c := startClient(t, f, Options{PageSize: 2})

	waitFor(t, "replayed record", func() bool { return len(c.Entries()) == 3 })
	if c.State() != StateConnected {
		t.Fatalf("state %s", c.State())
	}
	cursors := f.watchCursors()
	if len(cursors) != 1 || cursors[0] == nil || *cursors[0] != 2 {
		t.Fatalf("watch cursor %v", cursors)
	}

	f.append(1)
	waitFor(t, "live record", func() bool { return len(c.Entries()) == 4 })
	if got := sequences(c.Entries()); !equalSeq(got, []uint64{4, 3, 1, 2}) {
		t.Fatalf("display order %v", got)
	}
	if !c.HasMore() {
		t.Fatalf("expected another page")
	}
}

func TestStartRunsOnce(t *testing.T) {
	f := newFake()
	c := startClient(t, f, Options{})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	waitFor(t, "connect", func() bool { return c.State() == StateConnected })
	if n := f.fetchCount(); n != 1 {
		t.Fatalf("fetches %d", n)
	}
	if n := len(f.watchCursors()); n != 1 {
		t.Fatalf("watches %d", n)
	}
}

func TestEmptyBackfillTailsFromZero(t *testing.T) {
	f := newFake()
	c := startClient(t, f, Options{})
	waitFor(t, "connect", func() bool { return c.State() == StateConnected })
	cursors := f.watchCursors()
	if cursors[0] == nil || *cursors[0] != 0 {
		t.Fatalf("watch cursor %v", cursors[0])
	}
	if c.HasMore() {
		t.Fatalf("nothing should be pending")
	}
}

func TestLiveRingDropsOldest(t *testing.T) {
	f := newFake()
	c := startClient(t, f, Options{LiveBufferSize: 3})
	waitFor(t, "connect", func() bool { return c.State() == StateConnected })

	f.append(5)
	waitFor(t, "live records", func() bool {
		seq, ok := c.LastSequence()
		return ok && seq == 5
	})
	if got := sequences(c.Entries()); !equalSeq(got, []uint64{5, 4, 3}) {
		t.Fatalf("ring %v", got)
	}
}

func TestReconnectResumesAfterLastCursor(t *testing.T) {
	f := newFake()
	var changes atomic.Int64
	c := startClient(t, f, Options{ReconnectDelay: 50 * time.Millisecond, OnChange: func() { changes.Add(1) }})
	waitFor(t, "connect", func() bool { return c.State() == StateConnected })

	f.append(2)
	waitFor(t, "first records", func() bool { return len(c.Entries()) == 2 })

	f.kill <- errors.New("connection reset")
	waitFor(t, "reconnecting", func() bool { return c.State() == StateReconnecting })
	if c.Err() == nil {
		t.Fatalf("expected transport error while reconnecting")
	}
	// committed while disconnected
	f.append(1)

	waitFor(t, "reconnect", func() bool { return c.State() == StateConnected })
	waitFor(t, "resumed record", func() bool { return len(c.Entries()) == 3 })
	f.append(1)
	waitFor(t, "live after resume", func() bool { return len(c.Entries()) == 4 })

	if got := sequences(c.Entries()); !equalSeq(got, []uint64{4, 3, 2, 1}) {
		t.Fatalf("entries after reconnect %v", got)
	}
	cursors := f.watchCursors()
	if len(cursors) != 2 || cursors[1] == nil || *cursors[1] != 2 {
		t.Fatalf("resume cursor %v", cursors)
	}
	if c.Err() != nil {
		t.Fatalf("error not cleared: %v", c.Err())
	}
	if changes.Load() == 0 {
		t.Fatalf("OnChange never ran")
	}
}

func TestCleanStreamEndReconnects(t *testing.T) {
	f := newFake()
	c := startClient(t, f, Options{})
	waitFor(t, "connect", func() bool { return c.State() == StateConnected })
	f.kill <- nil
	waitFor(t, "second watch", func() bool { return len(f.watchCursors()) == 2 })
	waitFor(t, "connect", func() bool { return c.State() == StateConnected })
}

func TestLoadMorePagesAndDedupes(t *testing.T) {
	f := newFake()
	f.append(5)
	c := startClient(t, f, Options{PageSize: 2})
	waitFor(t, "live replay", func() bool { return len(c.Entries()) == 5 })

	for c.HasMore() {
		if err := c.LoadMore(context.Background()); err != nil {
			t.Fatalf("load more: %v", err)
		}
	}
	fetches := f.fetchCount()
	if err := c.LoadMore(context.Background()); err != nil {
		t.Fatalf("load more: %v", err)
	}
	if f.fetchCount() != fetches {
		t.Fatalf("LoadMore fetched with nothing pending")
	}

	seen := map[string]bool{}
	for _, e := range c.Entries() {
		if seen[e.ID] {
			t.Fatalf("duplicate entry %s", e.ID)
		}
		seen[e.ID] = true
	}
	if len(seen) != 5 {
		t.Fatalf("entries %d", len(seen))
	}
}

func TestLoadMoreIsSingleFlightAndPurgeAborts(t *testing.T) {
	f := newFake()
	f.append(4)
	c := startClient(t, f, Options{PageSize: 2})
	waitFor(t, "live replay", func() bool { return len(c.Entries()) == 4 })

	f.mu.Lock()
	f.gate = make(chan struct{})
	f.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- c.LoadMore(context.Background()) }()
	waitFor(t, "fetch in flight", func() bool { return c.Loading() })

	before := f.fetchCount()
	if err := c.LoadMore(context.Background()); err != nil {
		t.Fatalf("load more: %v", err)
	}
	if f.fetchCount() != before {
		t.Fatalf("second LoadMore started a fetch")
	}

	if err := c.Purge(context.Background()); err != nil {
		t.Fatalf("purge: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("aborted fetch surfaced %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("aborted fetch did not return")
	}
	if c.Loading() || c.HasMore() || len(c.Entries()) != 0 {
		t.Fatalf("state after purge: loading=%v hasMore=%v entries=%d", c.Loading(), c.HasMore(), len(c.Entries()))
	}
	if _, ok := c.LastSequence(); ok {
		t.Fatalf("cursor survived purge")
	}
	if len(f.purged) != 1 || f.purged[0] != "s1" {
		t.Fatalf("purged %v", f.purged)
	}
}

func TestFetchFailureStillConnects(t *testing.T) {
	f := newFake()
	f.fetchErr = errors.New("boom")
	c := New(f, "s1", Options{})
	defer c.Close()
	if err := c.Start(context.Background()); err == nil {
		t.Fatalf("expected backfill error")
	}
	waitFor(t, "connect", func() bool { return c.State() == StateConnected })
	if cursors := f.watchCursors(); cursors[0] != nil {
		t.Fatalf("failed backfill must tail live only, cursor %v", *cursors[0])
	}
}

func TestCloseStopsCallbacksAndReconnects(t *testing.T) {
	f := newFake()
	var changes atomic.Int64
	c := New(f, "s1", Options{ReconnectDelay: 30 * time.Millisecond, OnChange: func() { changes.Add(1) }})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "connect", func() bool { return c.State() == StateConnected })
	f.kill <- errors.New("drop")
	waitFor(t, "reconnecting", func() bool { return c.State() == StateReconnecting })

	c.Close()
	after := changes.Load()
	f.append(3)
	time.Sleep(100 * time.Millisecond)

	if changes.Load() != after {
		t.Fatalf("callback fired after Close")
	}
	if n := len(f.watchCursors()); n != 1 {
		t.Fatalf("reconnected after Close: %d watches", n)
	}
	if c.State() != StateClosed || len(c.Entries()) != 0 {
		t.Fatalf("state %s entries %d", c.State(), len(c.Entries()))
	}
	c.Close()
}

func TestCloseFromOnChange(t *testing.T) {
	f := newFake()
	closed := make(chan struct{})
	var c *Client
	var once sync.Once
	c = New(f, "s1", Options{ReconnectDelay: 20 * time.Millisecond, OnChange: func() {
		// Pushed entries are delivered on the watch goroutine.
		if len(c.Entries()) > 0 {
			once.Do(func() {
				c.Close()
				close(closed)
			})
		}
	}})
	t.Cleanup(c.Close)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "connected", func() bool { return c.State() == StateConnected })
	f.append(1)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close called from OnChange did not return")
	}
	if c.State() != StateClosed {
		t.Fatalf("state %s", c.State())
	}
}

func TestEntryTimestampFromPayload(t *testing.T) {
	f := newFake()
	f.appendMessage(json.RawMessage(`{"spans":[{"startTimeUnixNano":"1705318200000000000"}]}`))
	f.appendMessage(json.RawMessage(`{"timestamp":"2023-06-01T08:00:00.000Z","content":"hi"}`))
	f.appendMessage(json.RawMessage(`{"startTimeUnixNano":"1705318260123456789"}`))
	c := startClient(t, f, Options{})

	want := map[string]string{
		"r1": "2024-01-15T11:30:00.000Z",
		"r2": "2023-06-01T08:00:00.000Z",
		"r3": "2024-01-15T11:31:00.123Z",
	}
	entries := c.Entries()
	if len(entries) != len(want) {
		t.Fatalf("entries %d", len(entries))
	}
	for _, e := range entries {
		if e.Timestamp != want[e.ID] {
			t.Fatalf("%s: timestamp %q want %q", e.ID, e.Timestamp, want[e.ID])
		}
	}
}

func TestEntryTimestampIgnoresAppendTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 500_000_000, time.UTC)
	itemtime.Now = func() time.Time { return now }
	defer func() { itemtime.Now = time.Now }()

	f := newFake()
	f.append(1)
	c := startClient(t, f, Options{})
	entries := c.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries %d", len(entries))
	}
	// {"n":1} carries no time of its own.
	if got, want := entries[0].Timestamp, "2026-03-01T12:00:00.500Z"; got != want {
		t.Fatalf("timestamp %q want %q", got, want)
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		StateIdle: "idle", StateFetching: "fetching", StateConnected: "connected",
		StateReconnecting: "reconnecting", StateClosed: "closed", State(42): "unknown",
	} {
		if s.String() != want {
			t.Fatalf("%d: %q", int(s), s.String())
		}
	}
}
