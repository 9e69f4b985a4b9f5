package livetail

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	ledgerv1 "github.com/remiverdiesen/agents-at-scale/api/ledger/v1"
	"github.com/remiverdiesen/agents-at-scale/pkg/itemtime"
	logpkg "github.com/remiverdiesen/agents-at-scale/pkg/log"
)

// Defaults.
const (
	DefaultPageSize       = 100
	DefaultLiveBufferSize = 500
	DefaultReconnectDelay = 3 * time.Second
)

// State is the push connection state.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Entry is one displayed record.
type Entry struct {
	ID string
	// Timestamp is the display time, formatted by itemtime.Extract.
	Timestamp string
	Record    ledgerv1.Record
	Raw       json.RawMessage
}

// Options configures a Client.
type Options struct {
	PageSize       int
	LiveBufferSize int
	ReconnectDelay time.Duration
	Logger         logpkg.Logger
	// OnChange runs after entries or state change. It must not block. It
	// may call Close, which then returns without waiting for the push
	// goroutine to exit.
	OnChange func()
}

// Client tails one session.
type Client struct {
	transport Transport
	session   string
	opts      Options
	logger    logpkg.Logger

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
	callbacks  atomic.Int32 // OnChange calls in progress

	mu          sync.Mutex
	state       State
	started     bool
	closed      bool
	live        []Entry
	older       []Entry
	seen        map[string]struct{}
	nextCursor  *uint64
	hasMore     bool
	lastSeq     *uint64
	loading     bool
	fetchGen    uint64
	fetchCancel context.CancelFunc
	watchGen    uint64
	watchCancel context.CancelFunc
	timer       *time.Timer
	err         error
}

// New returns an idle Client for sessionID. An empty sessionID tails every
// session.
func New(t Transport, sessionID string, opts Options) *Client {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.LiveBufferSize <= 0 {
		opts.LiveBufferSize = DefaultLiveBufferSize
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		transport:  t,
		session:    sessionID,
		opts:       opts,
		logger:     opts.Logger.With(logpkg.Component("livetail"), logpkg.Str("session_id", sessionID)),
		rootCtx:    ctx,
		rootCancel: cancel,
		seen:       map[string]struct{}{},
		hasMore:    true,
	}
}

// Start fetches the first page and opens the push subscription. Only the
// first call has an effect. A failed backfill is returned, and the push
// subscription is opened anyway.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.state = StateFetching
	c.mu.Unlock()
	c.notify()

	err := c.fetch(ctx, nil)
	c.connect()
	return err
}

// LoadMore fetches the next backfill page. It does nothing when no page is
// pending or a fetch is already running.
func (c *Client) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || c.loading || !c.hasMore || c.nextCursor == nil {
		c.mu.Unlock()
		return nil
	}
	cursor := *c.nextCursor
	c.mu.Unlock()
	return c.fetch(ctx, &cursor)
}

// Purge deletes the session on the server, then clears both buffers and
// every cursor.
func (c *Client) Purge(ctx context.Context) error {
	if err := c.transport.Purge(ctx, c.session); err != nil {
		c.logger.Error("purge failed", logpkg.Err(err))
		return err
	}
	c.mu.Lock()
	if c.fetchCancel != nil {
		c.fetchCancel()
		c.fetchCancel = nil
	}
	c.fetchGen++
	c.loading = false
	c.live = nil
	c.older = nil
	c.seen = map[string]struct{}{}
	c.nextCursor = nil
	c.hasMore = false
	c.lastSeq = nil
	c.mu.Unlock()
	c.notify()
	return nil
}

// Close stops fetching, closes the push connection and cancels any pending
// reconnect. No callbacks start after Close returns.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = StateClosed
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.fetchCancel != nil {
		c.fetchCancel()
	}
	if c.watchCancel != nil {
		c.watchCancel()
	}
	c.mu.Unlock()
	c.rootCancel()
	if c.callbacks.Load() > 0 {
		// Called from OnChange, possibly on the push goroutine itself.
		return
	}
	c.wg.Wait()
}

// Entries returns pushed records newest first, followed by backfilled
// records in the order received.
func (c *Client) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, 0, len(c.live)+len(c.older))
	out = append(out, c.live...)
	return append(out, c.older...)
}

// State returns the connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the last transport error, cleared on reconnect.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// HasMore reports whether LoadMore would fetch another page.
func (c *Client) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore && c.nextCursor != nil
}

// Loading reports whether a fetch is in flight.
func (c *Client) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// LastSequence returns the highest sequence observed, if any.
func (c *Client) LastSequence() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastSeq == nil {
		return 0, false
	}
	return *c.lastSeq, true
}

// fetch loads one page into the older buffer. Starting a fetch aborts the
// previous one; a superseded result is dropped.
func (c *Client) fetch(ctx context.Context, cursor *uint64) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if c.fetchCancel != nil {
		c.fetchCancel()
	}
	fctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.rootCtx, cancel)
	c.fetchGen++
	gen := c.fetchGen
	c.fetchCancel = cancel
	c.loading = true
	c.mu.Unlock()
	defer stop()
	defer cancel()

	page, err := c.transport.FetchPage(fctx, c.session, cursor, c.opts.PageSize)

	c.mu.Lock()
	if c.closed || gen != c.fetchGen {
		c.mu.Unlock()
		return nil
	}
	c.loading = false
	c.fetchCancel = nil
	if err != nil {
		if errors.Is(err, context.Canceled) {
			c.mu.Unlock()
			return nil
		}
		c.err = err
		c.mu.Unlock()
		c.logger.Warn("fetch failed", logpkg.Err(err))
		c.notify()
		return err
	}
	for _, it := range page.Items {
		c.observe(it.Record.Sequence)
		if _, dup := c.seen[it.Record.ID]; dup {
			continue
		}
		c.seen[it.Record.ID] = struct{}{}
		c.older = append(c.older, newEntry(it))
	}
	if c.lastSeq == nil {
		// an empty first page still proves nothing older is pending
		zero := uint64(0)
		c.lastSeq = &zero
	}
	c.hasMore = page.HasMore
	c.nextCursor = page.NextCursor
	c.mu.Unlock()
	c.notify()
	return nil
}

// connect opens a push subscription from the last observed sequence.
func (c *Client) connect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.watchCancel != nil {
		c.watchCancel()
	}
	c.timer = nil
	ctx, cancel := context.WithCancel(c.rootCtx)
	c.watchGen++
	gen := c.watchGen
	c.watchCancel = cancel
	var cursor *uint64
	if c.lastSeq != nil {
		v := *c.lastSeq
		cursor = &v
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go c.watch(ctx, gen, cursor)
}

func (c *Client) watch(ctx context.Context, gen uint64, cursor *uint64) {
	defer c.wg.Done()
	err := c.transport.Watch(ctx, c.session, cursor,
		func() { c.opened(gen) },
		func(it Item) { c.received(gen, it) },
	)

	c.mu.Lock()
	if c.closed || gen != c.watchGen {
		c.mu.Unlock()
		return
	}
	if err == nil {
		err = ErrStreamEnded
	}
	c.err = err
	c.state = StateReconnecting
	c.timer = time.AfterFunc(c.opts.ReconnectDelay, c.connect)
	c.mu.Unlock()
	c.logger.Warn("push connection lost, reconnecting",
		logpkg.Err(err),
		logpkg.Dur("delay", c.opts.ReconnectDelay))
	c.notify()
}

func (c *Client) opened(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.watchGen {
		c.mu.Unlock()
		return
	}
	c.state = StateConnected
	c.err = nil
	c.mu.Unlock()
	c.logger.Debug("push connection open")
	c.notify()
}

func (c *Client) received(gen uint64, it Item) {
	c.mu.Lock()
	if c.closed || gen != c.watchGen {
		c.mu.Unlock()
		return
	}
	c.observe(it.Record.Sequence)
	if _, dup := c.seen[it.Record.ID]; dup {
		c.mu.Unlock()
		return
	}
	c.seen[it.Record.ID] = struct{}{}
	c.live = append([]Entry{newEntry(it)}, c.live...)
	if len(c.live) > c.opts.LiveBufferSize {
		for _, dropped := range c.live[c.opts.LiveBufferSize:] {
			delete(c.seen, dropped.Record.ID)
		}
		c.live = c.live[:c.opts.LiveBufferSize]
	}
	c.mu.Unlock()
	c.notify()
}

// observe raises lastSeq. Callers hold mu.
func (c *Client) observe(seq uint64) {
	if c.lastSeq == nil || seq > *c.lastSeq {
		v := seq
		c.lastSeq = &v
	}
}

func (c *Client) notify() {
	if c.opts.OnChange == nil {
		return
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if !closed {
		c.callbacks.Add(1)
		defer c.callbacks.Add(-1)
		c.opts.OnChange()
	}
}

func newEntry(it Item) Entry {
	return Entry{
		ID:        it.Record.ID,
		Timestamp: itemtime.Extract(it.Record.Message),
		Record:    it.Record,
		Raw:       it.Raw,
	}
}
