package ledgerv1

import (
	"encoding/json"
	"time"
)

// Record is one stored message as seen by clients.
type Record struct {
	ID        string          `json:"id,omitempty"`
	SessionID string          `json:"session_id"`
	QueryID   string          `json:"query_id"`
	Sequence  uint64          `json:"sequence"`
	Timestamp time.Time       `json:"timestamp"`
	Message   json.RawMessage `json:"message"`
}

type AppendRequest struct {
	SessionID string            `json:"session_id"`
	QueryID   string            `json:"query_id,omitempty"`
	Messages  []json.RawMessage `json:"messages"`
}

type AppendResponse struct {
	Messages []Record `json:"messages"`
}

// ListSinceRequest pages through records after Cursor. A nil cursor starts
// at the beginning.
type ListSinceRequest struct {
	SessionID string  `json:"session_id,omitempty"`
	Cursor    *uint64 `json:"cursor,omitempty"`
	Limit     int     `json:"limit,omitempty"`
}

type ListSinceResponse struct {
	Items      []Record `json:"items"`
	Total      int      `json:"total"`
	HasMore    bool     `json:"hasMore"`
	NextCursor *uint64  `json:"nextCursor,omitempty"`
}

// ClearRequest removes a session, a session's query, or everything when All is set.
type ClearRequest struct {
	SessionID string `json:"session_id,omitempty"`
	QueryID   string `json:"query_id,omitempty"`
	All       bool   `json:"all,omitempty"`
}

type ClearResponse struct{}

// TailRequest opens a live tail. A nil cursor delivers new records only.
type TailRequest struct {
	SessionID string  `json:"session_id,omitempty"`
	Cursor    *uint64 `json:"cursor,omitempty"`
	Filter    string  `json:"filter,omitempty"`
}
