// Package http exposes the read API over the published snapshot, the
// administrative refresh trigger, and health/metrics endpoints. Reading never
// requires the admin token; triggering a recompute does when one is
// configured, keeping the read and compute privileges distinct.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cryodata/glacier-attrs-etl/internal/domain"
	"github.com/cryodata/glacier-attrs-etl/internal/refresh"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// SnapshotReader serves the last published snapshot; never blocked by an
// in-flight refresh.
type SnapshotReader interface {
	Published() *refresh.Snapshot
}

// Refresher triggers a full recompute-and-swap.
type Refresher interface {
	Refresh(ctx context.Context) (refresh.Result, error)
}

// Server exposes the glacier attribute API.
type Server struct {
	httpServer *http.Server
	snapshots  SnapshotReader
	refresher  Refresher
	adminToken string
	logger     *slog.Logger
}

// NewServer creates the HTTP server. An empty adminToken leaves the refresh
// endpoint open, which is only appropriate for local fixture runs.
func NewServer(addr string, snapshots SnapshotReader, refresher Refresher, ready ReadinessChecker,
	adminToken string, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		snapshots:  snapshots,
		refresher:  refresher,
		adminToken: adminToken,
		logger:     logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /glaciers", s.handleListGlaciers)
	mux.HandleFunc("GET /glaciers/{id}", s.handleGetGlacier)
	mux.HandleFunc("POST /admin/refresh", s.handleRefresh)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleListGlaciers(w http.ResponseWriter, _ *http.Request) {
	snap := s.snapshots.Published()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no snapshot published"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":   snap.RunID,
		"built_at": snap.BuiltAt,
		"count":    snap.Len(),
		"glaciers": snap.Rows,
	})
}

func (s *Server) handleGetGlacier(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshots.Published()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no snapshot published"})
		return
	}
	row, ok := snap.Row(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "glacier not found"})
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.adminToken != "" && r.Header.Get("Authorization") != "Bearer "+s.adminToken {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "admin token required"})
		return
	}

	res, err := s.refresher.Refresh(r.Context())
	if err != nil {
		writeJSON(w, refreshStatus(err), map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "published",
		"run_id":      res.RunID,
		"rows":        res.Rows,
		"built_at":    res.BuiltAt,
		"duration_ms": res.Duration.Milliseconds(),
	})
}

// refreshStatus maps refresh failures onto status codes: a concurrent refresh
// is a conflict, data-integrity failures are unprocessable, the rest are
// internal errors. All of them leave the previous snapshot published.
func refreshStatus(err error) int {
	if errors.Is(err, refresh.ErrRefreshInFlight) {
		return http.StatusConflict
	}
	var ambiguity *domain.JoinAmbiguityError
	var duplicate *domain.DuplicateGlacierError
	var empty *domain.EmptyInputError
	if errors.As(err, &ambiguity) || errors.As(err, &duplicate) || errors.As(err, &empty) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
