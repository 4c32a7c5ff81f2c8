// Package monitor serves a read-only HTTP view of a running workflow.
package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/wdlrun/internal/engine"
	"github.com/me/wdlrun/internal/logging"
)

// Snapshotter provides point-in-time run state. Satisfied by *engine.Engine.
type Snapshotter interface {
	Snapshot() engine.Snapshot
}

// Server exposes GET /status and GET /nodes over the engine's snapshots.
type Server struct {
	router    chi.Router
	engine    Snapshotter
	logger    *slog.Logger
	startTime time.Time
}

// New creates a Server with all routes registered.
func New(eng Snapshotter, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		engine:    eng,
		logger:    logging.Component(logger, "monitor"),
		startTime: time.Now(),
	}
	s.router.Use(middleware.Recoverer)
	s.router.Get("/status", s.handleStatus)
	s.router.Get("/nodes", s.handleNodes)
	return s
}

// Handler returns the HTTP handler, for mounting or testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

type statusResponse struct {
	RunID    string         `json:"run_id"`
	Workflow string         `json:"workflow"`
	Uptime   string         `json:"uptime"`
	Counts   map[string]int `json:"counts"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	s.respondJSON(w, statusResponse{
		RunID:    snap.RunID,
		Workflow: snap.Workflow,
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
		Counts:   snap.Counts,
	})
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	nodes := snap.Nodes
	if nodes == nil {
		nodes = []engine.NodeSnapshot{}
	}
	s.respondJSON(w, nodes)
}

func (s *Server) respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}
