// Package api is the thin RPC boundary over the core pipeline: it decodes
// requests, calls validate/render/apply/rollback, and encodes results. No
// pipeline logic lives here.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/netwrench/netwrench/internal/apply"
	"github.com/netwrench/netwrench/internal/catalog"
	"github.com/netwrench/netwrench/internal/checkpoint"
	"github.com/netwrench/netwrench/internal/discovery"
	"github.com/netwrench/netwrench/internal/log"
	"github.com/netwrench/netwrench/internal/plan"
	"github.com/netwrench/netwrench/internal/render"
)

// Checkpoints is the checkpoint store surface the API needs. Satisfied by
// *checkpoint.Store; tests use fakes.
type Checkpoints interface {
	Snapshot(ctx context.Context, scope checkpoint.Scope, label string) (*checkpoint.Checkpoint, error)
	Restore(ctx context.Context, id string) (*checkpoint.RestoreOutcome, error)
	List(ctx context.Context) ([]*checkpoint.Checkpoint, error)
	Get(ctx context.Context, id string) (*checkpoint.Checkpoint, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// Applier runs rendered command sets. Satisfied by *apply.Orchestrator.
type Applier interface {
	Apply(ctx context.Context, cs *render.CommandSet, opts apply.Options) *apply.ChangeReport
}

// Deps carries everything the handlers call into.
type Deps struct {
	Catalog     *catalog.Catalog
	Validator   *plan.Validator
	Checkpoints Checkpoints
	Applier     Applier
	Prober      discovery.Prober
	Version     string
}

// Server represents the API server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	deps       Deps
}

// NewServer creates a new API server bound to bindAddr.
func NewServer(deps Deps, bindAddr string) *Server {
	s := &Server{
		deps:   deps,
		router: chi.NewRouter(),
	}

	s.router.Use(Recovery)
	s.router.Use(Logger)
	s.router.Use(CORS)
	s.router.Use(JSONContentType)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         bindAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // an apply is bounded by the sum of its step timeouts
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/plans", func(r chi.Router) {
			r.Post("/validate", s.handleValidate)
			r.Post("/render", s.handleRender)
			r.Post("/apply", s.handleApply)
		})

		r.Route("/checkpoints", func(r chi.Router) {
			r.Get("/", s.handleCheckpointsList)
			r.Post("/", s.handleCheckpointCreate)
			r.Get("/{id}", s.handleCheckpointGet)
			r.Delete("/{id}", s.handleCheckpointDelete)
			r.Post("/{id}/rollback", s.handleCheckpointRollback)
		})

		r.Get("/interfaces", s.handleInterfaces)
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/parameters", s.handleCatalogParameters)
			r.Get("/profiles", s.handleCatalogProfiles)
		})

		r.Get("/status", s.handleStatus)
	})

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

// Start starts the API server and blocks until it stops.
func (s *Server) Start() error {
	log.Infof("[API] Starting server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop(ctx context.Context) error {
	log.Infof("[API] Shutting down server...")
	return s.httpServer.Shutdown(ctx)
}
