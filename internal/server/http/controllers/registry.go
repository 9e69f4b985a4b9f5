package controllers

import (
	"net/http"

	"github.com/remiverdiesen/agents-at-scale/internal/runtime"
	logpkg "github.com/remiverdiesen/agents-at-scale/pkg/log"
)

// ControllerRegistry manages all HTTP controllers.
//
// It provides a centralized way to register all controller routes
// and manages the lifecycle of individual controllers.
type ControllerRegistry struct {
	general  *GeneralController
	messages *MessagesController
	sessions *SessionsController
}

// NewControllerRegistry creates a new controller registry.
//
// It initializes all controllers with the provided runtime.
func NewControllerRegistry(rt *runtime.Runtime, logger logpkg.Logger) *ControllerRegistry {
	svc := rt.Sessions()
	return &ControllerRegistry{
		general:  NewGeneralController(rt, svc, logger),
		messages: NewMessagesController(rt, svc, logger),
		sessions: NewSessionsController(svc),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.messages.RegisterRoutes(mux)
	r.sessions.RegisterRoutes(mux)
}
