package livetail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	ledgerv1 "github.com/remiverdiesen/agents-at-scale/api/ledger/v1"
)

// ErrStreamEnded is reported when the server closes a push stream cleanly.
var ErrStreamEnded = errors.New("livetail: stream ended by server")

// Item is one record together with the JSON it arrived as.
type Item struct {
	Record ledgerv1.Record
	Raw    json.RawMessage
}

// Page is one backfill page.
type Page struct {
	Items   []Item
	Total   int
	HasMore bool
	// NextCursor is nil when nothing more is pending.
	NextCursor *uint64
}

// Transport talks to a ledger server.
type Transport interface {
	// FetchPage returns up to limit records after cursor. A nil cursor
	// starts at the beginning.
	FetchPage(ctx context.Context, sessionID string, cursor *uint64, limit int) (Page, error)
	// Watch delivers records after cursor until ctx ends or the connection
	// fails. A nil cursor delivers new records only. onOpen runs once the
	// connection is established; onItem runs sequentially per record.
	Watch(ctx context.Context, sessionID string, cursor *uint64, onOpen func(), onItem func(Item)) error
	// Purge deletes every record of the session, or of every session when
	// sessionID is empty.
	Purge(ctx context.Context, sessionID string) error
}

// RemoteError is an error payload pushed or returned by the server.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return "livetail: server error: " + e.Message }

// decodeItem parses a pushed or paged record. A payload carrying an
// "error" object is returned as *RemoteError.
func decodeItem(raw []byte) (Item, error) {
	var probe struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Item{}, fmt.Errorf("livetail: malformed record: %w", err)
	}
	if len(probe.Error) > 0 && string(probe.Error) != "null" {
		return Item{}, remoteError(probe.Error)
	}
	var rec ledgerv1.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Item{}, fmt.Errorf("livetail: malformed record: %w", err)
	}
	cp := make(json.RawMessage, len(raw))
	copy(cp, raw)
	return Item{Record: rec, Raw: cp}, nil
}

// remoteError accepts both {"error":"msg"} and {"error":{"message":"msg"}}.
func remoteError(raw json.RawMessage) *RemoteError {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &RemoteError{Message: s}
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return &RemoteError{Message: obj.Message}
	}
	return &RemoteError{Message: string(raw)}
}

func itemFromRecord(rec ledgerv1.Record) Item {
	raw, _ := json.Marshal(rec)
	return Item{Record: rec, Raw: raw}
}
