// Package api assembles the admin/observability HTTP surface (§6.5):
// a read-mostly JSON API over the Controller's task and worker tables, a
// Prometheus metrics endpoint, and a live dispatch-event WebSocket feed.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maumercado/taskdispatch/internal/api/handlers"
	apiMiddleware "github.com/maumercado/taskdispatch/internal/api/middleware"
	"github.com/maumercado/taskdispatch/internal/api/websocket"
	"github.com/maumercado/taskdispatch/internal/config"
	"github.com/maumercado/taskdispatch/internal/events"
)

// Server is the admin/observability HTTP surface. It never itself mutates
// task state except through the Controller's disconnect procedure, reused by
// the kick handler.
type Server struct {
	router       *chi.Mux
	config       *config.Config
	adminHandler *handlers.AdminHandler
	wsHub        *websocket.Hub
	wsHandler    *websocket.Handler
	bus          *events.Bus
}

// NewServer wires the admin router. controller is the Controller's read-only
// view (TaskSnapshot/WorkerSnapshot/Kick); rx is the reactor used to run
// those calls on the owner goroutine; storeOpen is a liveness probe.
func NewServer(cfg *config.Config, controller handlers.ControllerView, rx handlers.Execer, storeOpen func() error, bus *events.Bus) *Server {
	wsHub := websocket.NewHub(bus)

	s := &Server{
		router:       chi.NewRouter(),
		config:       cfg,
		adminHandler: handlers.NewAdminHandler(controller, rx, storeOpen),
		wsHub:        wsHub,
		wsHandler:    websocket.NewHandler(wsHub),
		bus:          bus,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apiMiddleware.RequestLogger())
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	authCfg := &apiMiddleware.AuthConfig{
		Enabled:   s.config.Auth.Enabled,
		JWTSecret: s.config.Auth.JWTSecret,
		APIKeys:   apiKeySet(s.config.Auth.APIKeys),
	}

	s.router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		if s.config.Admin.RateLimitRPS > 0 {
			r.Use(apiMiddleware.ClientRateLimit(s.config.Admin.RateLimitRPS))
		}

		r.Get("/health", s.adminHandler.HealthCheck)
		r.Get("/tasks", s.adminHandler.ListTasks)
		r.Get("/workers", s.adminHandler.ListWorkers)

		r.Group(func(r chi.Router) {
			r.Use(apiMiddleware.Auth(authCfg))
			r.Post("/workers/{worker_id}/kick", s.adminHandler.KickWorker)
		})

		r.Get("/events", s.wsHandler.ServeWS)
	})

	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.Handler())
	}
}

func apiKeySet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}

// Start starts the WebSocket hub's event pump.
func (s *Server) Start(ctx context.Context) {
	go s.wsHub.Run(ctx)
}

// Stop stops the WebSocket hub.
func (s *Server) Stop() {
	s.wsHub.Stop()
}

// Router returns the chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
