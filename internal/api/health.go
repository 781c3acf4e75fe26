package api

import (
	"net/http"

	"github.com/seantiz/modloader/internal/model"
)

type healthResponse struct {
	Status  string `json:"status"`
	Modules int    `json:"modules"`
	Failed  int    `json:"failed"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	for _, m := range s.modules.Dump(model.StatePreloaded) {
		resp.Modules++
		if m.State == model.StateFailed {
			resp.Failed++
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}
