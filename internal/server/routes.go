package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/engramdb/engram/internal/engine"
	"github.com/engramdb/engram/internal/score"
)

const requestTimeout = 60 * time.Second

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	var in engine.StoreInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := s.engine.Store(ctx, in)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Decision == engine.DecisionRedundant {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (s *Server) handleBulkStore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []engine.StoreInput `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if len(req.Items) == 0 {
		http.Error(w, `{"error":"items required"}`, http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	results, err := s.engine.BulkStore(ctx, req.Items)
	if err != nil {
		writeError(w, err)
		return
	}

	failed := 0
	for _, br := range results {
		if br.Err != "" {
			failed++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stored":  len(results) - failed,
		"failed":  failed,
		"results": results,
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := s.engine.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	chain, err := s.engine.GetChain(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"length":  len(chain),
		"records": chain,
	})
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.GetCurrent(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleOriginal(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.GetOriginal(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDecay reads the record without registering an access, so the
// reported score is not perturbed by the inspection itself.
func (s *Server) handleDecay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.engine.DB.GetRecord(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if rec == nil {
		writeError(w, fmt.Errorf("decay of %s: %w", id, engine.ErrNotFound))
		return
	}

	threshold := 0.05
	if t := r.URL.Query().Get("threshold"); t != "" {
		v, err := strconv.ParseFloat(t, 64)
		if err != nil || v <= 0 || v >= 1 {
			http.Error(w, `{"error":"threshold must be in (0,1)"}`, http.StatusBadRequest)
			return
		}
		threshold = v
	}

	now := time.Now()
	days, ever := engine.PredictForgetting(rec, threshold, now)
	resp := map[string]any{
		"id":            rec.ID,
		"score":         engine.DecayScore(rec, now),
		"should_forget": engine.ShouldForget(rec, threshold, now),
		"threshold":     threshold,
	}
	if ever {
		resp["forgets_in_days"] = days
	} else {
		resp["forgets_in_days"] = nil
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProtect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Protected bool `json:"protected"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	id := chi.URLParam(r, "id")
	if err := s.engine.MarkProtected(ctx, id, req.Protected); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "protected": req.Protected})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, `{"error":"q parameter required"}`, http.StatusBadRequest)
		return
	}

	opts := engine.SearchOpts{
		Category:  r.URL.Query().Get("category"),
		Preset:    r.URL.Query().Get("preset"),
		ModelSize: score.ModelSize(r.URL.Query().Get("model_size")),
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			opts.Limit = n
		}
	}
	if asOf := r.URL.Query().Get("as_of"); asOf != "" {
		t, err := time.Parse(time.RFC3339, asOf)
		if err != nil {
			http.Error(w, `{"error":"as_of must be RFC3339"}`, http.StatusBadRequest)
			return
		}
		opts.AsOf = &t
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	results, err := s.engine.Search(ctx, query, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

func (s *Server) handleRunForgetting(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Threshold float64 `json:"threshold"`
		BatchSize int     `json:"batch_size"`
		DryRun    bool    `json:"dry_run"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.Threshold <= 0 || req.Threshold >= 1 {
		http.Error(w, `{"error":"threshold must be in (0,1)"}`, http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := s.engine.RunForgetting(ctx, req.Threshold, req.BatchSize, req.DryRun)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
