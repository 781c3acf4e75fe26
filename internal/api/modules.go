package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/modloader/internal/loader"
	"github.com/seantiz/modloader/internal/model"
)

// listModulesResponse is the JSON response for GET /v1/modules.
type listModulesResponse struct {
	Modules   []loader.ModuleInfo `json:"modules"`
	Total     int                 `json:"total"`
	Threshold model.State         `json:"threshold"`
}

// handleListModules dumps the registry. ?state= sets the lowest state
// included; ?format=text renders the table report.
func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	threshold := model.StatePreloaded
	if name := r.URL.Query().Get("state"); name != "" {
		st, err := model.ParseState(name)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		threshold = st
	}

	modules := s.modules.Dump(threshold)
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := loader.WriteReport(w, modules); err != nil {
			s.logger.Error("write module report", "error", err)
		}
		return
	}
	if modules == nil {
		modules = []loader.ModuleInfo{}
	}
	s.writeJSON(w, http.StatusOK, listModulesResponse{
		Modules:   modules,
		Total:     len(modules),
		Threshold: threshold,
	})
}

func (s *Server) handleGetModule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "*")
	info, ok := s.modules.Module(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "module not found")
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleEvictModule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "*")
	if !s.modules.Evict(id) {
		s.writeError(w, http.StatusNotFound, "module not found")
		return
	}
	s.logger.Info("module evicted", "module", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetModule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "*")
	err := s.modules.Reset(id)
	switch {
	case errors.Is(err, loader.ErrUnknownModule):
		s.writeError(w, http.StatusNotFound, "module not found")
		return
	case errors.Is(err, model.ErrInvalidTransition):
		s.writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.logger.Error("reset module", "module", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to reset module")
		return
	}

	info, _ := s.modules.Module(id)
	s.writeJSON(w, http.StatusOK, info)
}
