package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/noveldesk/kioku/internal/embedding"
	"github.com/noveldesk/kioku/internal/models"
	"github.com/noveldesk/kioku/internal/search"
)

type searchRequest struct {
	Query         string              `json:"query"`
	Limit         int                 `json:"limit,omitempty"`
	MinSimilarity *float64            `json:"min_similarity,omitempty"`
	EntityTypes   []models.EntityType `json:"entity_types,omitempty"`
	ExcludeIDs    []string            `json:"exclude_ids,omitempty"`
	Mode          models.SearchMode   `json:"mode,omitempty"`
}

type similarRequest struct {
	Limit         int                 `json:"limit,omitempty"`
	MinSimilarity *float64            `json:"min_similarity,omitempty"`
	EntityTypes   []models.EntityType `json:"entity_types,omitempty"`
	Mode          models.SearchMode   `json:"mode,omitempty"`
}

type similarityRequest struct {
	Text1 string `json:"text1"`
	Text2 string `json:"text2"`
}

type searchResponse struct {
	Results []models.SearchResult `json:"results"`
	Count   int                   `json:"count"`
}

// options converts the request into engine options, applying the configured
// default threshold when min_similarity is omitted.
func (s *Server) options(limit int, minSim *float64, types []models.EntityType, exclude []string, mode models.SearchMode) models.SearchOptions {
	opts := models.SearchOptions{
		Limit:         limit,
		MinSimilarity: s.cfg.Search.DefaultMinSimilarity,
		EntityTypes:   types,
		ExcludeIDs:    exclude,
		Mode:          mode,
	}
	if minSim != nil {
		opts.MinSimilarity = *minSim
	}
	if opts.Limit <= 0 {
		opts.Limit = s.cfg.Search.DefaultLimit
	}
	if opts.Limit > s.cfg.Search.MaxLimit {
		opts.Limit = s.cfg.Search.MaxLimit
	}
	return opts
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	projectID, err := projectIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	opts := s.options(req.Limit, req.MinSimilarity, req.EntityTypes, req.ExcludeIDs, req.Mode)
	results, err := s.engine.Search(r.Context(), projectID, req.Query, opts)
	if err != nil {
		s.respondSearchError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, searchResponse{Results: results, Count: len(results)})
}

func (s *Server) handleFindSimilar(w http.ResponseWriter, r *http.Request) {
	projectID, err := projectIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid project id")
		return
	}
	entityType := models.EntityType(chi.URLParam(r, "entityType"))
	if !entityType.Valid() {
		respondError(w, http.StatusBadRequest, "invalid entity type")
		return
	}
	entityID := chi.URLParam(r, "entityID")

	var req similarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	opts := s.options(req.Limit, req.MinSimilarity, req.EntityTypes, nil, req.Mode)
	results, err := s.engine.FindSimilar(r.Context(), projectID, entityType, entityID, opts)
	if err != nil {
		s.respondSearchError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, searchResponse{Results: results, Count: len(results)})
}

func (s *Server) handleIndexKnowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.coordinator.IndexKnowledge(r.Context(), id); err != nil {
		s.logger.Error("failed to index knowledge", zap.String("id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "indexing failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "indexed", "id": id})
}

func (s *Server) handleIndexChapter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.coordinator.IndexChapter(r.Context(), id); err != nil {
		s.logger.Error("failed to index chapter", zap.String("id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "indexing failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "indexed", "id": id})
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	projectID, err := projectIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	if err := s.coordinator.ReindexProject(r.Context(), projectID); err != nil {
		s.logger.Error("reindex failed", zap.Int64("project_id", projectID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "reindexed", "project_id": projectID})
}

func (s *Server) handleRemoveIndex(w http.ResponseWriter, r *http.Request) {
	projectID, err := projectIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid project id")
		return
	}
	entityType := models.EntityType(chi.URLParam(r, "entityType"))
	if !entityType.Valid() {
		respondError(w, http.StatusBadRequest, "invalid entity type")
		return
	}
	entityID := chi.URLParam(r, "entityID")

	if err := s.coordinator.RemoveEntityIndex(r.Context(), entityType, entityID, projectID); err != nil {
		s.logger.Error("failed to remove index entry",
			zap.String("entity_type", string(entityType)),
			zap.String("entity_id", entityID),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "removal failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleTextSimilarity(w http.ResponseWriter, r *http.Request) {
	var req similarityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sim, err := s.provider.TextSimilarity(r.Context(), req.Text1, req.Text2)
	if err != nil {
		s.respondSearchError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]float64{"similarity": sim})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	projectID, err := projectIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	count, err := s.store.CountByProject(r.Context(), projectID)
	if err != nil {
		s.logger.Error("failed to count documents", zap.Int64("project_id", projectID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	status := map[string]interface{}{
		"project_id":     projectID,
		"document_count": count,
		"dimensions":     s.provider.Dimensions(),
	}
	if s.cache != nil {
		status["cached_vectors"] = s.cache.Len()
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) respondSearchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, search.ErrInvalidQuery):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, embedding.ErrUnavailable), errors.Is(err, embedding.ErrModelLoad):
		respondError(w, http.StatusServiceUnavailable, "embedding model unavailable")
	default:
		s.logger.Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func projectIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "projectID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid project id")
	}
	return id, nil
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
