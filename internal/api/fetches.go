package api

import (
	"net/http"

	"github.com/seantiz/modloader/internal/model"
	"github.com/seantiz/modloader/internal/store"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// listFetchesResponse is the JSON response for GET /v1/fetches.
type listFetchesResponse struct {
	Fetches []*store.FetchRecord `json:"fetches"`
	Total   int                  `json:"total"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
}

func (s *Server) handleListFetches(w http.ResponseWriter, r *http.Request) {
	limit := min(max(parseIntQuery(r, "limit", defaultLimit), 1), maxLimit)
	offset := max(parseIntQuery(r, "offset", 0), 0)

	fetches, total, err := s.store.ListFetches(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list fetches", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list fetches")
		return
	}
	if fetches == nil {
		fetches = []*store.FetchRecord{}
	}
	s.writeJSON(w, http.StatusOK, listFetchesResponse{
		Fetches: fetches,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Fetches *store.FetchStats `json:"fetches"`
	ByState map[string]int    `json:"by_state"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetFetchStats(r.Context())
	if err != nil {
		s.logger.Error("get fetch stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	byState := make(map[string]int)
	for _, m := range s.modules.Dump(model.StatePreloaded) {
		byState[m.State.String()]++
	}
	s.writeJSON(w, http.StatusOK, statsResponse{Fetches: stats, ByState: byState})
}
