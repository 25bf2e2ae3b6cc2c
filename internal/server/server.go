package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/engramdb/engram/internal/engine"
)

// Server is the engram HTTP API server.
type Server struct {
	engine  *engine.Engine
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server around the given engine.
func New(e *engine.Engine, version string) *Server {
	s := &Server{
		engine:  e,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)
		r.Get("/search", s.handleSearch)

		r.Post("/memories", s.handleStore)
		r.Post("/memories/bulk", s.handleBulkStore)
		r.Get("/memories/{id}", s.handleGet)
		r.Delete("/memories/{id}", s.handleDelete)
		r.Get("/memories/{id}/chain", s.handleChain)
		r.Get("/memories/{id}/current", s.handleCurrent)
		r.Get("/memories/{id}/original", s.handleOriginal)
		r.Get("/memories/{id}/decay", s.handleDecay)
		r.Post("/memories/{id}/protect", s.handleProtect)

		r.Post("/forgetting/run", s.handleRunForgetting)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.engine.DB.Ping(); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.engine.DB.Path,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps engine sentinel errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidEmbedding):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrWriteConflict):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrIndexUnavailable),
		errors.Is(err, engine.ErrCollaboratorUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
