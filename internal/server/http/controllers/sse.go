package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/remiverdiesen/agents-at-scale/internal/ledger"
)

// sseSink implements the sessions Sink interface for Server-Sent Events.
//
// Each record is written as an event whose id is the record's sequence, so
// a reconnecting EventSource resumes from Last-Event-ID.
type sseSink struct {
	w http.ResponseWriter
	r *http.Request
}

// Send writes r as one SSE event.
func (s sseSink) Send(rec ledger.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("id: " + strconv.FormatUint(rec.Sequence, 10) + "\n")); err != nil {
		return err
	}
	return s.writeData(b)
}

// SendError pushes an error payload. The stream stays open.
func (s sseSink) SendError(cause error) error {
	b, err := json.Marshal(newStreamError(cause))
	if err != nil {
		return err
	}
	if err := s.writeData(b); err != nil {
		return err
	}
	return s.Flush()
}

func (s sseSink) writeData(b []byte) error {
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	_, err := s.w.Write([]byte("\n\n"))
	return err
}

// Context returns the request context for cancellation.
func (s sseSink) Context() context.Context {
	return s.r.Context()
}

// Flush flushes the HTTP response writer if it supports flushing.
func (s sseSink) Flush() error {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// open writes the stream headers and an initial comment so clients see the
// connection as established before the first record.
func (s sseSink) open() error {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	if _, err := s.w.Write([]byte(": connected\n\n")); err != nil {
		return err
	}
	return s.Flush()
}
