package httpapi

import "net/http"

// handleStatus implements GET /api/jobs/{id}: the full Job snapshot is
// authoritative after the SSE stream closes, per §7.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	j, err := s.registry.Get(id)
	if err != nil {
		writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}
