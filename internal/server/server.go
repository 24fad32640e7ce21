// Package server provides the HTTP server that receives webhooks and
// exposes the run API.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/vulcanci/vulcan-core/internal/learning"
	"github.com/vulcanci/vulcan-core/internal/runner"
)

// Config holds server configuration.
type Config struct {
	Host          string
	Port          int
	WebhookSecret string
	WorkflowsDir  string
}

// Server represents the webhook HTTP server.
type Server struct {
	config Config
	runner *runner.Runner
	store  *learning.Store // nil when learning is disabled
	mux    *http.ServeMux

	mu      sync.Mutex
	history *runHistory

	hub *Hub
}

// New creates a new server. store may be nil.
func New(cfg Config, r *runner.Runner, store *learning.Store) *Server {
	s := &Server{
		config:  cfg,
		runner:  r,
		store:   store,
		mux:     http.NewServeMux(),
		history: newRunHistory(100),
		hub:     NewHub(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes registers all HTTP routes.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/webhook", s.handleWebhook)

	// API routes
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/stats", s.handleStats)
	s.mux.HandleFunc("/api/runs", s.handleRuns)

	// Live run updates
	s.mux.HandleFunc("/ws", s.hub.handleWebSocket)
}

// Handler exposes the routing mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🔥 vulcan listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// recordRun stores a completed run and pushes it to websocket clients.
func (s *Server) recordRun(report *runner.RunReport) {
	s.mu.Lock()
	s.history.add(report)
	s.mu.Unlock()

	s.hub.Broadcast(ServerMessage{Type: "run.finished", Report: report})
}

// runHistory is a fixed-size ring of recent run reports, newest first.
type runHistory struct {
	reports []*runner.RunReport
	max     int
}

func newRunHistory(max int) *runHistory {
	return &runHistory{max: max}
}

func (h *runHistory) add(report *runner.RunReport) {
	h.reports = append([]*runner.RunReport{report}, h.reports...)
	if len(h.reports) > h.max {
		h.reports = h.reports[:h.max]
	}
}

func (h *runHistory) list() []*runner.RunReport {
	out := make([]*runner.RunReport, len(h.reports))
	copy(out, h.reports)
	return out
}
