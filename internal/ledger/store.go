package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/remiverdiesen/agents-at-scale/internal/pubsub"
	"github.com/remiverdiesen/agents-at-scale/internal/retention"
	"github.com/remiverdiesen/agents-at-scale/pkg/id"
	logpkg "github.com/remiverdiesen/agents-at-scale/pkg/log"
)

const (
	// DefaultMaxPayloadBytes bounds the compacted JSON size of one payload.
	DefaultMaxPayloadBytes = 10 * 1024 * 1024
	// DefaultPageSize is used by ListSince when no limit is given.
	DefaultPageSize = 100
	// DefaultSaveTimeout bounds one snapshot write.
	DefaultSaveTimeout = 5 * time.Second

	// allStreamsTopic receives every record event. Stream keys are never empty.
	allStreamsTopic = ""
)

// Backend persists the full record set.
type Backend interface {
	// Load returns the stored records, or nothing when no snapshot exists.
	Load(ctx context.Context) ([]Record, error)
	// Save replaces the stored records.
	Save(ctx context.Context, records []Record) error
}

// Options configures a Store.
type Options struct {
	// MaxPayloadBytes limits the compacted payload size. Zero selects
	// DefaultMaxPayloadBytes; negative disables the check.
	MaxPayloadBytes int
	// MaxRecords keeps only the most recent records. Zero is unbounded.
	MaxRecords int
	// MaxAge evicts records older than this. Zero is unbounded.
	MaxAge time.Duration
	// Backend persists snapshots. Nil disables persistence.
	Backend Backend
	// SaveTimeout bounds each snapshot write.
	SaveTimeout time.Duration
	Logger      logpkg.Logger
	Observer    Observer
	// Now overrides the clock.
	Now func() time.Time
}

// Store is the event log. All methods are safe for concurrent use.
type Store struct {
	opts     Options
	logger   logpkg.Logger
	observer Observer
	now      func() time.Time
	ids      *id.Generator
	bus      *pubsub.Bus[Event]

	mu      sync.RWMutex
	records []Record
	idx     index
	seqHigh uint64
	closed  bool
}

// Open builds a Store, loads the snapshot when a backend is configured and
// applies retention once.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.MaxRecords < 0 {
		return nil, invalid("max records", "must not be negative")
	}
	if opts.MaxAge < 0 {
		return nil, invalid("max age", "must not be negative")
	}
	if opts.MaxPayloadBytes == 0 {
		opts.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = DefaultSaveTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	if opts.Observer == nil {
		opts.Observer = NoopObserver{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger.With(logpkg.Component("ledger"))
	s := &Store{
		opts:     opts,
		logger:   logger,
		observer: opts.Observer,
		now:      opts.Now,
		ids:      id.NewGenerator(),
		bus:      pubsub.New[Event](logger),
		idx:      buildIndex(nil),
	}

	if opts.Backend != nil {
		recs, err := opts.Backend.Load(ctx)
		if err != nil {
			s.logger.Error("snapshot load failed, starting empty",
				logpkg.Err(&PersistenceError{Op: "load", Err: err}))
		} else {
			s.restore(recs)
			s.logger.Info("snapshot loaded",
				logpkg.Int("records", len(s.records)),
				logpkg.Int("streams", len(s.idx.byStream)))
		}
	}

	s.mu.Lock()
	if s.cleanupLocked() {
		_ = s.persistLocked(ctx)
	}
	s.observer.ObserveSize(len(s.idx.byStream), len(s.records))
	s.mu.Unlock()
	return s, nil
}

// restore installs loaded records, repairing ids, order and numbering.
func (s *Store) restore(recs []Record) {
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		if r.StreamKey == "" {
			s.logger.Warn("dropping snapshot record without stream key", logpkg.Uint64("sequence", r.Sequence))
			continue
		}
		if r.ID == "" {
			r.ID = s.ids.Next().String()
		}
		if r.Timestamp.IsZero() {
			r.Timestamp = s.now().UTC()
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Sequence < out[j].Sequence
	})
	for i := 1; i < len(out); i++ {
		if out[i].Sequence <= out[i-1].Sequence {
			renumber(out)
			break
		}
	}
	s.records = out
	s.idx = buildIndex(out)
	if n := len(out); n > 0 {
		s.seqHigh = out[n-1].Sequence
	}
}

func renumber(records []Record) {
	for i := range records {
		records[i].Sequence = uint64(i + 1)
	}
}

// Append stores one payload without a correlation id.
func (s *Store) Append(ctx context.Context, streamKey string, payload json.RawMessage) (Record, error) {
	recs, err := s.AppendBatch(ctx, streamKey, "", []json.RawMessage{payload})
	if err != nil {
		return Record{}, err
	}
	return recs[0], nil
}

// AppendWithCorrelation is AppendBatch with a mandatory correlation id.
func (s *Store) AppendWithCorrelation(ctx context.Context, streamKey, correlationID string, payloads []json.RawMessage) ([]Record, error) {
	if correlationID == "" {
		return nil, invalid("correlation id", "required")
	}
	return s.AppendBatch(ctx, streamKey, correlationID, payloads)
}

// AppendBatch stores payloads atomically. They share one timestamp and get
// consecutive sequence numbers. Any invalid payload rejects the whole batch.
func (s *Store) AppendBatch(ctx context.Context, streamKey, correlationID string, payloads []json.RawMessage) ([]Record, error) {
	if streamKey == "" {
		return nil, invalid("stream key", "required")
	}
	if len(payloads) == 0 {
		return nil, invalid("payloads", "at least one payload is required")
	}
	prepared := make([]json.RawMessage, len(payloads))
	size := 0
	for i, p := range payloads {
		c, err := s.preparePayload(p)
		if err != nil {
			if len(payloads) > 1 {
				return nil, fmt.Errorf("payload %d: %w", i, err)
			}
			return nil, err
		}
		prepared[i] = c
		size += len(c)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	created := !s.idx.hasStream(streamKey)
	ts := s.now().UTC()
	if n := len(s.records); n > 0 && ts.Before(s.records[n-1].Timestamp) {
		ts = s.records[n-1].Timestamp
	}
	appended := make([]Record, len(prepared))
	for i, p := range prepared {
		s.seqHigh++
		rec := Record{
			ID:            s.ids.Next().String(),
			StreamKey:     streamKey,
			CorrelationID: correlationID,
			Sequence:      s.seqHigh,
			Timestamp:     ts,
			Payload:       p,
		}
		s.idx.add(len(s.records), rec)
		s.records = append(s.records, rec)
		appended[i] = rec
	}
	s.observer.ObserveAppend(len(appended), size)

	s.cleanupLocked()
	_ = s.persistLocked(ctx)
	s.observer.ObserveSize(len(s.idx.byStream), len(s.records))

	// Appended records are the newest, so survivors sit at the tail.
	final := make(map[string]Record, len(appended))
	for i := len(s.records) - 1; i >= 0 && len(s.records)-i <= len(appended); i-- {
		final[s.records[i].ID] = s.records[i]
	}
	if created && s.idx.hasStream(streamKey) {
		s.bus.Publish(streamKey, Event{Type: EventStreamCreated, StreamKey: streamKey})
	}
	for i, rec := range appended {
		fr, ok := final[rec.ID]
		if !ok {
			continue
		}
		appended[i] = fr
		ev := Event{Type: EventRecordAppended, StreamKey: streamKey, Record: fr}
		s.bus.Publish(streamKey, ev)
		s.bus.Publish(allStreamsTopic, ev)
	}

	s.logger.Debug("appended",
		logpkg.Str("stream", streamKey),
		logpkg.Int("count", len(appended)),
		logpkg.Uint64("last_seq", appended[len(appended)-1].Sequence))
	return appended, nil
}

func (s *Store) preparePayload(p json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(p)) == 0 {
		return nil, invalid("payload", "empty")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, p); err != nil {
		return nil, invalid("payload", "not valid JSON")
	}
	if limit := s.opts.MaxPayloadBytes; limit > 0 && buf.Len() > limit {
		return nil, invalid("payload", fmt.Sprintf("serialized size %d exceeds limit of %d bytes", buf.Len(), limit))
	}
	return json.RawMessage(buf.Bytes()), nil
}

// cleanupLocked applies retention and renumbers when anything was removed.
func (s *Store) cleanupLocked() bool {
	pol := retention.Policy{MaxAge: s.opts.MaxAge, MaxCount: s.opts.MaxRecords}
	if !pol.Enabled() || len(s.records) == 0 {
		return false
	}
	entries := make([]retention.Entry, len(s.records))
	for i, r := range s.records {
		entries[i] = retention.Entry{Timestamp: r.Timestamp, Sequence: r.Sequence}
	}
	res := retention.Apply(entries, pol, s.now())
	if !res.Changed() {
		return false
	}
	s.records = retention.Compact(s.records, res.Keep)
	renumber(s.records)
	s.seqHigh = uint64(len(s.records))
	s.idx = buildIndex(s.records)
	s.observer.ObserveEviction(res.AgeEvicted, res.CountEvicted)
	s.logger.Debug("retention evicted records",
		logpkg.Int("by_age", res.AgeEvicted),
		logpkg.Int("by_count", res.CountEvicted),
		logpkg.Int("remaining", len(s.records)))
	return true
}

// persistLocked writes the snapshot. Errors are logged and returned.
func (s *Store) persistLocked(ctx context.Context) error {
	if s.opts.Backend == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.SaveTimeout)
	defer cancel()
	start := time.Now()
	err := s.opts.Backend.Save(ctx, s.records)
	s.observer.ObservePersist(time.Since(start), err)
	if err != nil {
		perr := &PersistenceError{Op: "save", Err: err}
		s.logger.Error("snapshot save failed", logpkg.Err(perr), logpkg.Int("records", len(s.records)))
		return perr
	}
	return nil
}

// List returns the stream's records in sequence order.
func (s *Store) List(streamKey string) ([]Record, error) {
	if streamKey == "" {
		return nil, invalid("stream key", "required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.idx.byStream[streamKey], ""), nil
}

// ListWithCorrelation returns the stream's records, optionally narrowed to one
// correlation id.
func (s *Store) ListWithCorrelation(streamKey, correlationID string) ([]Record, error) {
	if streamKey == "" {
		return nil, invalid("stream key", "required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.idx.byStream[streamKey], correlationID), nil
}

// ListByCorrelation returns records with the correlation id across streams.
func (s *Store) ListByCorrelation(correlationID string) ([]Record, error) {
	if correlationID == "" {
		return nil, invalid("correlation id", "required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.idx.byCorrelation[correlationID], ""), nil
}

func (s *Store) collect(positions []int, correlationID string) []Record {
	out := make([]Record, 0, len(positions))
	for _, p := range positions {
		r := s.records[p]
		if correlationID != "" && r.CorrelationID != correlationID {
			continue
		}
		out = append(out, r)
	}
	return out
}

// All returns every record in sequence order.
func (s *Store) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record(nil), s.records...)
}

// ListSince returns up to limit records with sequence greater than cursor,
// optionally restricted to one stream.
func (s *Store) ListSince(cursor Cursor, limit int, streamKey string) Page {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var positions []int
	if streamKey != "" {
		positions = s.idx.byStream[streamKey]
	} else {
		positions = make([]int, len(s.records))
		for i := range positions {
			positions[i] = i
		}
	}
	pending := positionsAfter(s.records, positions, cursor)
	n := len(pending)
	if n > limit {
		n = limit
	}
	page := Page{Records: make([]Record, n), Total: len(positions), HasMore: len(pending) > n}
	for i := 0; i < n; i++ {
		page.Records[i] = s.records[pending[i]]
	}
	if page.HasMore {
		page.NextCursor = page.Records[n-1].Cursor().Ptr()
	}
	return page
}

// Streams returns the known stream keys, sorted.
func (s *Store) Streams() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.streams()
}

// Exists reports whether the stream has any record.
func (s *Store) Exists(streamKey string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.hasStream(streamKey)
}

// Stats returns stream and record counts.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{StreamCount: len(s.idx.byStream), TotalRecords: len(s.records)}
}

// Clear removes every record of the stream.
func (s *Store) Clear(ctx context.Context, streamKey string) error {
	if streamKey == "" {
		return invalid("stream key", "required")
	}
	return s.remove(ctx, func(r Record) bool { return r.StreamKey == streamKey })
}

// ClearByCorrelation removes the stream's records carrying correlationID.
func (s *Store) ClearByCorrelation(ctx context.Context, streamKey, correlationID string) error {
	if streamKey == "" {
		return invalid("stream key", "required")
	}
	if correlationID == "" {
		return invalid("correlation id", "required")
	}
	return s.remove(ctx, func(r Record) bool {
		return r.StreamKey == streamKey && r.CorrelationID == correlationID
	})
}

// PurgeAll removes every record.
func (s *Store) PurgeAll(ctx context.Context) error {
	return s.remove(ctx, func(Record) bool { return true })
}

func (s *Store) remove(ctx context.Context, match func(Record) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	kept := s.records[:0:0]
	for _, r := range s.records {
		if !match(r) {
			kept = append(kept, r)
		}
	}
	removed := len(s.records) - len(kept)
	if removed == 0 {
		return nil
	}
	s.records = kept
	s.idx = buildIndex(kept)
	_ = s.persistLocked(ctx)
	s.observer.ObserveSize(len(s.idx.byStream), len(s.records))
	s.logger.Debug("records removed", logpkg.Int("count", removed))
	return nil
}

// Subscribe registers h for events of streamKey. The empty key receives record
// events of every stream. The returned function unsubscribes and may be
// called more than once.
func (s *Store) Subscribe(streamKey string, h func(Event)) func() {
	return s.bus.Subscribe(streamKey, h)
}

// WaitForStreamCreated reports whether the stream exists or is created before
// timeout or ctx expires. A non-positive timeout only checks existence.
func (s *Store) WaitForStreamCreated(ctx context.Context, streamKey string, timeout time.Duration) bool {
	if streamKey == "" {
		return false
	}
	created := make(chan struct{}, 1)
	s.mu.RLock()
	if s.idx.hasStream(streamKey) {
		s.mu.RUnlock()
		return true
	}
	if timeout <= 0 {
		s.mu.RUnlock()
		return false
	}
	// Appends hold the write lock while publishing, so nothing can slip in
	// between the check above and this subscription.
	unsub := s.bus.Subscribe(streamKey, func(ev Event) {
		if ev.Type == EventStreamCreated {
			select {
			case created <- struct{}{}:
			default:
			}
		}
	})
	s.mu.RUnlock()
	defer unsub()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-created:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Save writes a snapshot now.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx)
}

// Close writes a final snapshot and stops notifications. Later mutations
// return ErrClosed; reads keep working.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	err := s.persistLocked(ctx)
	s.mu.Unlock()
	s.bus.Close()
	return err
}
