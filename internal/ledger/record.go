package ledger

import (
	"encoding/json"
	"time"
)

// Record is one stored message.
type Record struct {
	ID            string          `json:"id,omitempty"`
	StreamKey     string          `json:"session_id"`
	CorrelationID string          `json:"query_id"`
	Sequence      uint64          `json:"sequence"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"message"`
}

// Cursor returns the cursor positioned at this record.
func (r Record) Cursor() Cursor { return Cursor(r.Sequence) }

// EventType distinguishes bus notifications.
type EventType uint8

const (
	// EventStreamCreated fires once, before the first record of a new stream.
	EventStreamCreated EventType = iota + 1
	// EventRecordAppended fires for every stored record, in sequence order.
	EventRecordAppended
)

func (t EventType) String() string {
	switch t {
	case EventStreamCreated:
		return "stream_created"
	case EventRecordAppended:
		return "record_appended"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers.
type Event struct {
	Type      EventType
	StreamKey string
	Record    Record
}

// Page is one ListSince result.
type Page struct {
	Records []Record
	// NextCursor is the sequence of the last returned record, nil when
	// nothing more is pending.
	NextCursor *Cursor
	HasMore    bool
	// Total counts every record matching the stream filter.
	Total int
}

// Stats summarizes the store.
type Stats struct {
	StreamCount  int `json:"sessions"`
	TotalRecords int `json:"totalMessages"`
}
