package httpapi

import (
	"net/http"
	"path/filepath"

	"github.com/hasangilak/vision-pdf-to-epub/internal/job"
)

// handleDownload implements GET /api/jobs/{id}/result: the assembled
// EPUB, or 400 if the job hasn't completed.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	j, err := s.registry.Get(id)
	if err != nil {
		writeJobError(w, err)
		return
	}
	if j.Status != job.StatusCompleted {
		writeError(w, http.StatusBadRequest, "job has not completed")
		return
	}

	path := filepath.Join(s.registry.DataDir(id), "output.epub")
	w.Header().Set("Content-Type", "application/epub+zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.epub"`)
	http.ServeFile(w, r, path)
}
