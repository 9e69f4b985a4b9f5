package controllers

import (
	"net/http"
	"time"

	"github.com/remiverdiesen/agents-at-scale/internal/runtime"
	sessionsvc "github.com/remiverdiesen/agents-at-scale/internal/services/sessions"
	logpkg "github.com/remiverdiesen/agents-at-scale/pkg/log"
)

// GeneralController handles health, stats, snapshots and metrics.
type GeneralController struct {
	rt     *runtime.Runtime
	svc    *sessionsvc.Service
	logger logpkg.Logger
}

// NewGeneralController creates a new general controller.
func NewGeneralController(rt *runtime.Runtime, svc *sessionsvc.Service, logger logpkg.Logger) *GeneralController {
	return &GeneralController{rt: rt, svc: svc, logger: logger}
}

// RegisterRoutes registers general routes with the given mux.
//
// This method sets up HTTP endpoints for:
// - Health checks (/v1/healthz)
// - Store statistics (/v1/stats)
// - Explicit snapshots (/v1/snapshot)
// - Prometheus exposition (/metrics)
func (c *GeneralController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/healthz", c.handleHealth)
	mux.HandleFunc("/v1/stats", c.handleStats)
	mux.HandleFunc("/v1/snapshot", c.handleSnapshot)
	mux.Handle("/metrics", c.rt.Metrics().Handler())
}

// handleHealth returns the health status of the service.
//
// Returns 200 OK with {"status": "ok"} if healthy, 503 Service Unavailable otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (c *GeneralController) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, c.svc.Stats())
}

// handleSnapshot writes a snapshot now.
func (c *GeneralController) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	start := time.Now()
	if err := c.svc.Save(r.Context()); err != nil {
		c.logger.WithContext(r.Context()).Error("snapshot failed", logpkg.Err(err))
		writeServiceError(w, err)
		return
	}
	stats := c.svc.Stats()
	c.logger.WithContext(r.Context()).Info("snapshot written",
		logpkg.Int("records", stats.TotalRecords),
		logpkg.Dur("took", time.Since(start)),
	)
	writeJSON(w, map[string]any{"status": "ok", "records": stats.TotalRecords, "elapsedMs": time.Since(start).Milliseconds()})
}
