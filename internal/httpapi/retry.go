package httpapi

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/hasangilak/vision-pdf-to-epub/internal/job"
	"github.com/hasangilak/vision-pdf-to-epub/internal/orchestrator"
)

// RetryResponse is returned by POST /api/jobs/{id}/retry.
type RetryResponse struct {
	JobID         string `json:"job_id"`
	RetryingPages []int  `json:"retrying_pages"`
}

// handleRetry implements POST /api/jobs/{id}/retry: opens a fresh event
// bus for the job (the old one is discarded, per §4.6) and re-runs the
// pipeline over just the failed pages. The precondition checks mirror
// orchestrator.RetryFailedPages's own so a rejected retry never discards
// the job's still-live event bus.
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	j, err := s.registry.Get(id)
	if err != nil {
		writeJobError(w, err)
		return
	}
	if !j.IsTerminal() {
		writeJobError(w, job.ErrConflictState)
		return
	}
	if _, err := os.Stat(filepath.Join(s.registry.DataDir(id), "input.pdf")); err != nil {
		writeJobError(w, job.ErrGone)
		return
	}

	bus := s.newBus(id)
	pages, err := orchestrator.RetryFailedPages(context.Background(), s.orchestrator, id, bus)
	if err != nil {
		writeJobError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, RetryResponse{JobID: id, RetryingPages: pages})
}
