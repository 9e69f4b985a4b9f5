package controllers

import (
	"net/http"
	"time"

	sessionsvc "github.com/remiverdiesen/agents-at-scale/internal/services/sessions"
)

const (
	defaultWaitTimeout = 30 * time.Second
	maxWaitTimeout     = 5 * time.Minute
)

// SessionsController lists sessions and waits for new ones.
type SessionsController struct {
	svc *sessionsvc.Service
}

// NewSessionsController creates a new sessions controller.
func NewSessionsController(svc *sessionsvc.Service) *SessionsController {
	return &SessionsController{svc: svc}
}

// RegisterRoutes registers session routes with the given mux.
func (c *SessionsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/sessions", c.handleList)
	mux.HandleFunc("/v1/sessions/wait", c.handleWait)
}

func (c *SessionsController) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	list := c.svc.Sessions()
	if list == nil {
		list = []string{}
	}
	writeJSON(w, sessionsResp{Sessions: list})
}

// handleWait blocks until session_id exists or timeout_ms elapses.
func (c *SessionsController) handleWait(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	q := r.URL.Query()
	id := q.Get("session_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	timeout := parseMillis(q.Get("timeout_ms"), defaultWaitTimeout)
	if timeout > maxWaitTimeout {
		timeout = maxWaitTimeout
	}
	exists := c.svc.WaitForSession(r.Context(), id, timeout)
	writeJSON(w, waitResp{SessionID: id, Exists: exists})
}
