package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/modloader/internal/store"
)

type listBundlesResponse struct {
	Bundles []store.BundleSummary `json:"bundles"`
}

type bundleResponse struct {
	Bundle  string `json:"bundle"`
	Modules int    `json:"modules"`
}

func (s *Server) handleListBundles(w http.ResponseWriter, r *http.Request) {
	bundles, err := s.store.ListBundles(r.Context())
	if err != nil {
		s.logger.Error("list bundles", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list bundles")
		return
	}
	if bundles == nil {
		bundles = []store.BundleSummary{}
	}
	s.writeJSON(w, http.StatusOK, listBundlesResponse{Bundles: bundles})
}

// handlePreloadBundle hands a stored bundle to the loader. Modules already
// known to the loader keep their state.
func (s *Server) handlePreloadBundle(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	b, err := s.store.GetBundle(r.Context(), name)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "bundle not found")
		return
	}
	if err != nil {
		s.logger.Error("get bundle", "bundle", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get bundle")
		return
	}

	n := s.modules.Preload(b.Preload(), name)
	s.logger.Info("bundle preloaded", "bundle", name, "modules", n)
	s.writeJSON(w, http.StatusOK, bundleResponse{Bundle: name, Modules: n})
}

// handleEvictBundle forgets a bundle and every module delivered with it.
func (s *Server) handleEvictBundle(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	n := s.modules.EvictBundle(name)
	if n == 0 {
		s.writeError(w, http.StatusNotFound, "bundle not loaded")
		return
	}
	s.writeJSON(w, http.StatusOK, bundleResponse{Bundle: name, Modules: n})
}
