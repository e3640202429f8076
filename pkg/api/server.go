package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/ssohub/pkg/httputil"
	"github.com/platinummonkey/ssohub/pkg/logout"
	"github.com/platinummonkey/ssohub/pkg/observability"
	"github.com/platinummonkey/ssohub/pkg/tickets"
)

// APIPrefix is the path prefix of the JSON API
const APIPrefix = "/api/v1"

// maxBodyBytes caps request bodies; no route reads more than a form post.
const maxBodyBytes = 64 << 10

// Executor runs the logout cascade for a session
type Executor interface {
	Execute(ctx context.Context, sessionID string, req *logout.ExecutionRequest) ([]*logout.RequestContext, error)
}

// Server represents our API server
type Server struct {
	executor  Executor
	registry  tickets.Registry
	validator logout.URLValidator
	logger    *observability.Logger
	metrics   *observability.Metrics

	router  *mux.Router
	api     *mux.Router
	handler http.Handler
}

// NewServer creates a new API server. metrics may be nil.
func NewServer(executor Executor, registry tickets.Registry, validator logout.URLValidator,
	logger *observability.Logger, metrics *observability.Metrics) *Server {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if validator == nil {
		validator = logout.NewDefaultURLValidator()
	}
	s := &Server{
		executor:  executor,
		registry:  registry,
		validator: validator,
		logger:    logger.WithField("component", "api"),
		metrics:   metrics,
		router:    mux.NewRouter(),
	}
	s.api = s.router.PathPrefix(APIPrefix).Subrouter()

	s.setupRoutes()

	s.handler = httputil.Chain(
		httputil.RecoveryMiddleware(s.logger),
		httputil.RequestIDMiddleware(s.logger),
		httputil.LoggingMiddleware(s.logger, s.routeTemplate),
		httputil.MaxBytesMiddleware(maxBodyBytes),
	)(s.router)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	if s.metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.metrics, s.routeTemplate))
	}

	// Session routes
	s.api.HandleFunc("/sessions/{id}", s.getSession).Methods(http.MethodGet)
	s.api.HandleFunc("/sessions/{id}/logout", s.logoutSession).Methods(http.MethodPost)

	// Browser logout
	s.router.HandleFunc("/logout", s.browserLogout).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes mounts a RouteRegistrar under APIPrefix
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.api)
}

// routeTemplate labels r by its route template so session IDs in the path
// never reach logs or metric labels. It works inside and outside the router.
func (s *Server) routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		var match mux.RouteMatch
		if s.router.Match(r, &match) {
			route = match.Route
		}
	}
	if route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
