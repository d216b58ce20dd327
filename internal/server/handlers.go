package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lucidmem/kioku/internal/models"
	"github.com/lucidmem/kioku/internal/orchestrator"
)

// retrieveRequest is the body of POST /api/v1/retrieve.
type retrieveRequest struct {
	models.RetrievalQuery
	// DeadlineMS overrides the configured deadline when positive.
	DeadlineMS int64 `json:"deadline_ms,omitempty"`
	Explain    *bool `json:"explain,omitempty"`
	Exhaustive bool  `json:"exhaustive,omitempty"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("retrieve request", zap.String("text", req.Text), zap.Int("k", req.K))

	opts := &orchestrator.Options{
		Explain:    true,
		Exhaustive: req.Exhaustive,
	}
	if req.Explain != nil {
		opts.Explain = *req.Explain
	}
	if req.DeadlineMS > 0 {
		opts.Deadline = time.Duration(req.DeadlineMS) * time.Millisecond
	}

	resp, err := s.orch.Retrieve(r.Context(), &req.RetrievalQuery, opts)
	if err != nil {
		if errors.Is(err, orchestrator.ErrAllLayersFailed) {
			// Degraded, not failed: the response says which layers broke.
			s.logger.Warn("retrieve degraded: all layers failed")
			s.respondJSON(w, http.StatusOK, resp)
			return
		}
		s.logger.Error("retrieve failed", zap.Error(err))
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRemember(w http.ResponseWriter, r *http.Request) {
	var input models.MemoryInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("remember request", zap.String("layer", string(input.Layer)))
	id, err := s.ingestor.Remember(r.Context(), &input)
	if err != nil {
		s.logger.Error("remember failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"id": id, "layer": string(input.Layer)})
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	layerID := models.LayerID(chi.URLParam(r, "layer"))
	id := chi.URLParam(r, "id")
	rec, err := s.store.Get(r.Context(), layerID, id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "memory not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": rec.ID, "content": rec.Content})
}

func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	layerID := models.LayerID(chi.URLParam(r, "layer"))
	id := chi.URLParam(r, "id")
	s.logger.Debug("forget request", zap.String("layer", string(layerID)), zap.String("id", id))
	if err := s.ingestor.Forget(r.Context(), layerID, id); err != nil {
		s.logger.Error("forget failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.Counts(r.Context())
	if err != nil {
		s.logger.Error("status: counts failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"layers": counts,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
