package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hperssn/cadence/internal/tracker"
)

// StreamTrackerEvents pushes a snapshot of the device's tracker after every
// state change, starting with the current one.
func StreamTrackerEvents(manager *tracker.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "device")

		flusher, ok := w.(http.Flusher)
		if !ok {
			respondError(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		t, ok := manager.Get(id)
		if !ok {
			respondError(w, "tracker not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		updates, cancel := t.Subscribe()
		defer cancel()

		writeEvent(w, t.Snapshot())
		flusher.Flush()

		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					return
				}
				writeEvent(w, snap)
				flusher.Flush()

			case <-r.Context().Done():
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, snap tracker.Snapshot) {
	data, _ := json.Marshal(snap)
	w.Write([]byte("data: "))
	w.Write(data)
	w.Write([]byte("\n\n"))
}
