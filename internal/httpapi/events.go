package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/hasangilak/vision-pdf-to-epub/internal/eventbus"
)

const sseKeepalive = 30 * time.Second

func isTerminalEvent(name string) bool {
	return name == "job.completed" || name == "job.failed"
}

// handleEvents implements GET /api/jobs/{id}/events: a text/event-stream
// of the job's event bus, resumable via Last-Event-ID. Grounded on §6's
// SSE framing and stream-closes-after-terminal-event rule.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.registry.Get(id); err != nil {
		writeJobError(w, err)
		return
	}

	bus, ok := s.busFor(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no event stream for job")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var afterID uint64
	if h := r.Header.Get("Last-Event-ID"); h != "" {
		if v, err := strconv.ParseUint(h, 10, 64); err == nil {
			afterID = v
		}
	}

	replay, live, unsubscribe := bus.Subscribe(afterID)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for _, rec := range replay {
		if !writeSSERecord(w, rec) {
			return
		}
		flusher.Flush()
		if isTerminalEvent(rec.Name) {
			return
		}
	}

	ticker := time.NewTicker(sseKeepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case rec, ok := <-live:
			if !ok {
				return
			}
			if !writeSSERecord(w, rec) {
				return
			}
			flusher.Flush()
			if isTerminalEvent(rec.Name) {
				return
			}
			ticker.Reset(sseKeepalive)
		case <-ticker.C:
			fmt.Fprint(w, "event: ping\ndata: \n\n")
			flusher.Flush()
		}
	}
}

func writeSSERecord(w http.ResponseWriter, rec eventbus.Record) bool {
	payload, err := json.Marshal(rec.Data)
	if err != nil {
		return false
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", rec.ID, rec.Name, payload)
	return err == nil
}
