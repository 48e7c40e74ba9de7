package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/JonMunkholm/movies-etl/internal/core"
)

type healthResponse struct {
	Status string             `json:"status"`
	Phase  core.TransferPhase `json:"phase"`
}

// statusResponse is the progress snapshot plus derived fields.
type statusResponse struct {
	core.TransferProgress
	Percent int    `json:"percent"`
	Elapsed string `json:"elapsed,omitempty"`
}

// handleHealth reports 200 while the transfer is running or done and 503 once it failed.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	p := s.progress.Progress()
	if p.Phase == core.PhaseFailed {
		s.respondError(w, r, errors.New(p.Error), http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Phase: p.Phase})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	p := s.progress.Progress()

	resp := statusResponse{TransferProgress: p, Percent: p.Percent()}
	if !p.StartedAt.IsZero() {
		resp.Elapsed = time.Since(p.StartedAt).Round(time.Millisecond).String()
	}
	s.writeJSON(w, http.StatusOK, resp)
}
