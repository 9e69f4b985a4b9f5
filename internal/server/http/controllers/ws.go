package controllers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/remiverdiesen/agents-at-scale/internal/ledger"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// wsSink implements the sessions Sink interface over a WebSocket. Every
// record is one text message holding the record JSON.
type wsSink struct {
	ctx context.Context
	wc  *websocket.Conn
	mu  sync.Mutex
}

func (s *wsSink) Send(rec ledger.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.write(websocket.TextMessage, b)
}

// SendError pushes an error payload.
func (s *wsSink) SendError(cause error) error {
	b, err := json.Marshal(newStreamError(cause))
	if err != nil {
		return err
	}
	return s.write(websocket.TextMessage, b)
}

func (s *wsSink) Context() context.Context { return s.ctx }

// Flush is a no-op; each WriteMessage is a complete frame.
func (s *wsSink) Flush() error { return nil }

func (s *wsSink) write(op int, b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.wc.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.wc.WriteMessage(op, b)
}

// pinger keeps idle connections alive until ctx ends.
func (s *wsSink) pinger(ctx context.Context) {
	t := time.NewTicker(wsPingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close sends a normal close frame.
func (s *wsSink) close(reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = s.write(websocket.CloseMessage, msg)
	_ = s.wc.Close()
}

// readUntilClosed discards client frames and cancels when the peer goes away.
func readUntilClosed(wc *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := wc.NextReader(); err != nil {
			return
		}
	}
}
