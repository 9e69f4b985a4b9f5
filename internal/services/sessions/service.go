package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/remiverdiesen/agents-at-scale/internal/ledger"
	logpkg "github.com/remiverdiesen/agents-at-scale/pkg/log"
)

// ErrSlowConsumer closes a tail whose queue filled up.
var ErrSlowConsumer = errors.New("sessions: subscriber fell behind")

const (
	defaultBufferSize = 1024
	maxBufferSize     = 65536
	flushBatch        = 64
)

// TailObserver receives live-tail measurements.
type TailObserver interface {
	TailOpened(transport string)
	TailClosed(transport string)
	TailSent(transport string, n int)
	TailDropped(transport string)
}

type noopTailObserver struct{}

func (noopTailObserver) TailOpened(string)    {}
func (noopTailObserver) TailClosed(string)    {}
func (noopTailObserver) TailSent(string, int) {}
func (noopTailObserver) TailDropped(string)   {}

// Sink is implemented by transports to receive tailed records.
type Sink interface {
	Send(ledger.Record) error
	Context() context.Context
	Flush() error
}

// Options configures a Service.
type Options struct {
	// FlushWindow batches sends up to this duration before flushing. Zero
	// flushes after every record.
	FlushWindow time.Duration
	// BufferSize is the per-subscriber queue length.
	BufferSize int
	// PageSize bounds each backlog read during a tail.
	PageSize int
	Logger   logpkg.Logger
	Metrics  TailObserver
}

// Service exposes store operations to transports.
type Service struct {
	store       *ledger.Store
	logger      logpkg.Logger
	metrics     TailObserver
	flushWindow time.Duration
	subBufLen   int
	pageSize    int
}

// New returns a Service over store.
func New(store *ledger.Store, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = noopTailObserver{}
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.BufferSize > maxBufferSize {
		opts.BufferSize = maxBufferSize
	}
	if opts.PageSize <= 0 {
		opts.PageSize = ledger.DefaultPageSize
	}
	return &Service{
		store:       store,
		logger:      opts.Logger.WithComponent("sessions"),
		metrics:     opts.Metrics,
		flushWindow: opts.FlushWindow,
		subBufLen:   opts.BufferSize,
		pageSize:    opts.PageSize,
	}
}

// Store returns the underlying store.
func (s *Service) Store() *ledger.Store { return s.store }

// AppendRequest carries one or more payloads for a stream.
type AppendRequest struct {
	StreamKey     string            `json:"session_id"`
	CorrelationID string            `json:"query_id,omitempty"`
	Message       json.RawMessage   `json:"message,omitempty"`
	Messages      []json.RawMessage `json:"messages,omitempty"`
}

// Payloads returns Messages, or Message alone when Messages is empty.
func (r AppendRequest) Payloads() []json.RawMessage {
	if len(r.Messages) > 0 {
		return r.Messages
	}
	if len(r.Message) > 0 {
		return []json.RawMessage{r.Message}
	}
	return nil
}

// Append stores the request's payloads as one batch.
func (s *Service) Append(ctx context.Context, req AppendRequest) ([]ledger.Record, error) {
	start := time.Now()
	recs, err := s.store.AppendBatch(ctx, req.StreamKey, req.CorrelationID, req.Payloads())
	if err != nil {
		return nil, err
	}
	s.logger.Debug("sessions.append",
		logpkg.Str("session_id", req.StreamKey),
		logpkg.Int("count", len(recs)),
		logpkg.Float64("dur_ms", float64(time.Since(start).Microseconds())/1000.0),
	)
	return recs, nil
}

// List returns a stream's records, optionally narrowed by correlation id.
// An empty stream key with a correlation id lists across streams.
func (s *Service) List(streamKey, correlationID string) ([]ledger.Record, error) {
	if streamKey == "" && correlationID != "" {
		return s.store.ListByCorrelation(correlationID)
	}
	return s.store.ListWithCorrelation(streamKey, correlationID)
}

// Page returns records after cursor. A nil cursor starts at the beginning.
func (s *Service) Page(streamKey string, cursor *ledger.Cursor, limit int) ledger.Page {
	var c ledger.Cursor
	if cursor != nil {
		c = *cursor
	}
	return s.store.ListSince(c, limit, streamKey)
}

// ClearRequest selects what Clear removes.
type ClearRequest struct {
	StreamKey     string
	CorrelationID string
	All           bool
}

// Clear removes the selected records.
func (s *Service) Clear(ctx context.Context, req ClearRequest) error {
	switch {
	case req.All:
		s.logger.Info("sessions.purge_all")
		return s.store.PurgeAll(ctx)
	case req.CorrelationID != "":
		return s.store.ClearByCorrelation(ctx, req.StreamKey, req.CorrelationID)
	default:
		return s.store.Clear(ctx, req.StreamKey)
	}
}

// Sessions returns the known stream keys.
func (s *Service) Sessions() []string { return s.store.Streams() }

// Stats returns store counts.
func (s *Service) Stats() ledger.Stats { return s.store.Stats() }

// WaitForSession blocks until the stream exists, timeout elapses or ctx ends.
func (s *Service) WaitForSession(ctx context.Context, streamKey string, timeout time.Duration) bool {
	return s.store.WaitForStreamCreated(ctx, streamKey, timeout)
}

// Save writes a snapshot now.
func (s *Service) Save(ctx context.Context) error { return s.store.Save(ctx) }

// TailRequest selects what a tail delivers.
type TailRequest struct {
	// StreamKey restricts the tail to one stream. Empty tails every stream.
	StreamKey string
	// Cursor replays records after it before going live. Nil is live only.
	Cursor *ledger.Cursor
	// Filter is an optional CEL expression.
	Filter string
	// Transport labels metrics.
	Transport string
}

// Tail streams records to sink until its context ends, the sink fails or the
// subscriber falls behind.
func (s *Service) Tail(ctx context.Context, req TailRequest, sink Sink) error {
	if err := ValidateFilter(req.Filter); err != nil {
		return err
	}
	cfilter, _ := newCELFilter(req.Filter)
	if req.Transport == "" {
		req.Transport = "unknown"
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	live := make(chan ledger.Record, s.subBufLen)
	overflow := make(chan struct{})
	var overflowOnce sync.Once
	unsub := s.store.Subscribe(req.StreamKey, func(ev ledger.Event) {
		if ev.Type != ledger.EventRecordAppended {
			return
		}
		select {
		case live <- ev.Record:
		default:
			overflowOnce.Do(func() { close(overflow) })
		}
	})
	defer unsub()

	s.metrics.TailOpened(req.Transport)
	defer s.metrics.TailClosed(req.Transport)

	// Per-subscriber async writer
	outCh := make(chan ledger.Record, s.subBufLen)
	writeErr := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pending := 0
		var ticker *time.Timer
		if s.flushWindow > 0 {
			ticker = time.NewTimer(s.flushWindow)
			defer ticker.Stop()
		}
		fail := func(err error) {
			select {
			case writeErr <- err:
			default:
			}
			cancel()
		}
		flush := func() bool {
			if pending == 0 {
				return true
			}
			s.metrics.TailSent(req.Transport, pending)
			pending = 0
			if err := sink.Flush(); err != nil {
				fail(err)
				return false
			}
			return true
		}
		var tick <-chan time.Time
		if ticker != nil {
			tick = ticker.C
		}
		for {
			select {
			case r, ok := <-outCh:
				if !ok {
					flush()
					return
				}
				if err := sink.Send(r); err != nil {
					fail(err)
					return
				}
				pending++
				if s.flushWindow == 0 || pending >= flushBatch {
					if !flush() {
						return
					}
					if ticker != nil {
						if !ticker.Stop() {
							select {
							case <-ticker.C:
							default:
							}
						}
						ticker.Reset(s.flushWindow)
					}
				}
			case <-sink.Context().Done():
				return
			case <-tick:
				if !flush() {
					return
				}
				ticker.Reset(s.flushWindow)
			}
		}
	}()
	defer func() { cancel(); close(outCh); wg.Wait() }()

	emit := func(r ledger.Record) error {
		if !cfilter.Eval(r) {
			return nil
		}
		select {
		case outCh <- r:
			return nil
		case <-overflow:
			return ErrSlowConsumer
		case <-ctx.Done():
			return ctx.Err()
		case <-sink.Context().Done():
			return sink.Context().Err()
		}
	}
	fail := func(err error) error {
		err = s.tailErr(err, writeErr)
		if errors.Is(err, ErrSlowConsumer) {
			s.metrics.TailDropped(req.Transport)
			s.logger.Warn("sessions.tail_dropped",
				logpkg.Str("session_id", req.StreamKey),
				logpkg.Str("transport", req.Transport),
				logpkg.Int("q_cap", cap(live)),
			)
		}
		return err
	}

	// Replay the backlog; remember what was sent so live copies are skipped.
	replayed := map[string]struct{}{}
	if req.Cursor != nil {
		cur := *req.Cursor
		for {
			page := s.store.ListSince(cur, s.pageSize, req.StreamKey)
			for _, r := range page.Records {
				if err := emit(r); err != nil {
					return fail(err)
				}
				replayed[r.ID] = struct{}{}
				cur = r.Cursor()
			}
			if !page.HasMore {
				break
			}
		}
		s.logger.Debug("sessions.tail_replayed",
			logpkg.Str("session_id", req.StreamKey),
			logpkg.Int("count", len(replayed)),
		)
	}

	for {
		select {
		case r := <-live:
			if _, dup := replayed[r.ID]; dup {
				delete(replayed, r.ID)
				continue
			}
			if err := emit(r); err != nil {
				return fail(err)
			}
		case <-overflow:
			return fail(ErrSlowConsumer)
		case <-ctx.Done():
			return fail(ctx.Err())
		case <-sink.Context().Done():
			return sink.Context().Err()
		}
	}
}

// tailErr prefers a sink write failure over the cancellation it caused.
func (s *Service) tailErr(err error, writeErr <-chan error) error {
	select {
	case werr := <-writeErr:
		return werr
	default:
		return err
	}
}
