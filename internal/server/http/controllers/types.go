package controllers

import "github.com/remiverdiesen/agents-at-scale/internal/ledger"

// Common request/response types for HTTP controllers

// messagesResp wraps a list of records.
type messagesResp struct {
	Messages []ledger.Record `json:"messages"`
}

// pageResp is one page of the paginated message stream.
type pageResp struct {
	Items      []ledger.Record `json:"items"`
	Total      int             `json:"total"`
	HasMore    bool            `json:"hasMore"`
	NextCursor *uint64         `json:"nextCursor,omitempty"`
}

func newPageResp(p ledger.Page) pageResp {
	out := pageResp{Items: p.Records, Total: p.Total, HasMore: p.HasMore}
	if out.Items == nil {
		out.Items = []ledger.Record{}
	}
	if p.NextCursor != nil {
		c := uint64(*p.NextCursor)
		out.NextCursor = &c
	}
	return out
}

// sessionsResp lists known sessions.
type sessionsResp struct {
	Sessions []string `json:"sessions"`
}

// waitResp reports whether a session appeared.
type waitResp struct {
	SessionID string `json:"session_id"`
	Exists    bool   `json:"exists"`
}

// streamError is the payload pushed when a live stream fails.
type streamError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func newStreamError(err error) streamError {
	var e streamError
	e.Error.Message = err.Error()
	return e
}
