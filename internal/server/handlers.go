package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/pkg/utils"
)

// searchResponse is the body of POST /api/v1/search.
type searchResponse struct {
	retrieval.Outcome
	Context string `json:"context,omitempty"`
}

func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (*models.SearchQuery, bool) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if err := query.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return &query, true
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	s.logger.Debug("search request", zap.String("query", utils.Truncate(query.Query, 80)), zap.Int("k", query.K))
	outcome := s.engine.SearchDetailed(r.Context(), query.Query, query.K)
	resp := searchResponse{Outcome: outcome}
	if query.WithContext {
		resp.Context = retrieval.FormatContext(outcome.Results)
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	query, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	results := s.engine.Search(r.Context(), query.Query, query.K)
	s.respondJSON(w, http.StatusOK, map[string]string{"context": retrieval.FormatContext(results)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	if !s.engine.Ready() {
		status = http.StatusServiceUnavailable
	}
	s.respondJSON(w, status, s.engine.Readiness(r.Context()))
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
