package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/remiverdiesen/agents-at-scale/internal/ledger"
	"github.com/remiverdiesen/agents-at-scale/internal/runtime"
	sessionsvc "github.com/remiverdiesen/agents-at-scale/internal/services/sessions"
	logpkg "github.com/remiverdiesen/agents-at-scale/pkg/log"
)

// MessagesController serves appends, listings, clears and live tails.
type MessagesController struct {
	rt       *runtime.Runtime
	svc      *sessionsvc.Service
	logger   logpkg.Logger
	upgrader websocket.Upgrader
}

// NewMessagesController creates a new messages controller.
func NewMessagesController(rt *runtime.Runtime, svc *sessionsvc.Service, logger logpkg.Logger) *MessagesController {
	return &MessagesController{
		rt:     rt,
		svc:    svc,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// RegisterRoutes registers message routes with the given mux.
func (c *MessagesController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/messages", c.handleMessages)
	mux.HandleFunc("/v1/messages/stream", c.handleStream)
	mux.HandleFunc("/v1/messages/ws", c.handleWebSocket)
}

func (c *MessagesController) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		c.handleAppend(w, r)
	case http.MethodGet:
		c.handleList(w, r)
	case http.MethodDelete:
		c.handleClear(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleAppend stores one message or a batch.
func (c *MessagesController) handleAppend(w http.ResponseWriter, r *http.Request) {
	var req sessionsvc.AppendRequest
	body := http.MaxBytesReader(w, r.Body, c.bodyLimit())
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	recs, err := c.svc.Append(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, messagesResp{Messages: recs})
}

// bodyLimit allows a full batch of maximum-size messages plus framing.
func (c *MessagesController) bodyLimit() int64 {
	n := int64(c.rt.Config().MaxMessageBytes)
	if n <= 0 {
		n = ledger.DefaultMaxPayloadBytes
	}
	return 4*n + 64*1024
}

// handleList lists a session's messages, optionally narrowed by query_id,
// or every session's messages for a query_id.
func (c *MessagesController) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	recs, err := c.svc.List(q.Get("session_id"), q.Get("query_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if recs == nil {
		recs = []ledger.Record{}
	}
	writeJSON(w, messagesResp{Messages: recs})
}

// handleClear removes a session, a session's query, or everything.
func (c *MessagesController) handleClear(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := sessionsvc.ClearRequest{
		StreamKey:     q.Get("session_id"),
		CorrelationID: q.Get("query_id"),
		All:           parseBool(q.Get("all")),
	}
	if err := c.svc.Clear(r.Context(), req); err != nil {
		writeServiceError(w, err)
		return
	}
	writeNoContent(w)
}

// handleStream pages through messages after a cursor, or tails them over
// SSE when watch=true.
func (c *MessagesController) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	q := r.URL.Query()
	cursor, err := parseCursor(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !parseBool(q.Get("watch")) {
		page := c.svc.Page(q.Get("session_id"), cursor, parseLimit(q.Get("limit")))
		writeJSON(w, newPageResp(page))
		return
	}

	// EventSource reconnects carry the last delivered id.
	if cursor == nil {
		if last := r.Header.Get("Last-Event-ID"); last != "" {
			if lc, err := ledger.ParseCursor(last); err == nil {
				cursor = &lc
			}
		}
	}
	filter := q.Get("filter")
	if err := sessionsvc.ValidateFilter(filter); err != nil {
		writeServiceError(w, err)
		return
	}
	sink := sseSink{w: w, r: r}
	if err := sink.open(); err != nil {
		return
	}
	req := sessionsvc.TailRequest{StreamKey: q.Get("session_id"), Cursor: cursor, Filter: filter, Transport: "sse"}
	err = c.svc.Tail(r.Context(), req, sink)
	if err != nil && !isDisconnect(r.Context(), err) {
		c.logger.WithContext(r.Context()).Warn("sse tail ended", logpkg.Str("session_id", req.StreamKey), logpkg.Err(err))
		_ = sink.SendError(err)
	}
}

// handleWebSocket tails messages over a WebSocket.
func (c *MessagesController) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cursor, err := parseCursor(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	filter := q.Get("filter")
	if err := sessionsvc.ValidateFilter(filter); err != nil {
		writeServiceError(w, err)
		return
	}
	wc, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		c.logger.WithContext(r.Context()).Warn("websocket upgrade failed", logpkg.Err(err))
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sink := &wsSink{ctx: ctx, wc: wc}
	go readUntilClosed(wc, cancel)
	go sink.pinger(ctx)

	req := sessionsvc.TailRequest{StreamKey: q.Get("session_id"), Cursor: cursor, Filter: filter, Transport: "ws"}
	err = c.svc.Tail(ctx, req, sink)
	if err != nil && !isDisconnect(ctx, err) {
		c.logger.WithContext(r.Context()).Warn("websocket tail ended", logpkg.Str("session_id", req.StreamKey), logpkg.Err(err))
		_ = sink.SendError(err)
		sink.close("tail ended")
		return
	}
	sink.close("")
}

// isDisconnect reports whether err only reflects the client going away.
func isDisconnect(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
