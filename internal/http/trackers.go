package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hperssn/cadence/internal/tracker"
)

// TrackerHandler exposes live tracking per device.
type TrackerHandler struct {
	manager  *tracker.Manager
	upgrader websocket.Upgrader
	now      func() time.Time
}

func NewTrackerHandler(manager *tracker.Manager) *TrackerHandler {
	return &TrackerHandler{
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		now: time.Now,
	}
}

func (h *TrackerHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{device}", h.get)
	r.Delete("/{device}", h.remove)
	r.Post("/{device}/start", h.start)
	r.Post("/{device}/steps", h.steps)
	r.Post("/{device}/stop", h.stop)
	r.Get("/{device}/events", StreamTrackerEvents(h.manager))
	r.Get("/{device}/feed", h.feed)
}

type stepUpdate struct {
	Steps     *int       `json:"steps"`
	Timestamp *time.Time `json:"timestamp"`
	Error     string     `json:"error"`
}

func (h *TrackerHandler) get(w http.ResponseWriter, r *http.Request) {
	t, ok := h.manager.Get(chi.URLParam(r, "device"))
	if !ok {
		respondError(w, "tracker not found", http.StatusNotFound)
		return
	}
	respondJSON(w, map[string]any{"success": true, "data": t.Snapshot()}, http.StatusOK)
}

func (h *TrackerHandler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Remove(chi.URLParam(r, "device")); err != nil {
		respondError(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TrackerHandler) start(w http.ResponseWriter, r *http.Request) {
	t := h.manager.GetOrCreate(chi.URLParam(r, "device"))
	started := t.Start(h.now())

	respondJSON(w, map[string]any{
		"success": true,
		"started": started,
		"data":    t.Snapshot(),
	}, http.StatusOK)
}

func (h *TrackerHandler) steps(w http.ResponseWriter, r *http.Request) {
	t, ok := h.manager.Get(chi.URLParam(r, "device"))
	if !ok {
		respondError(w, "tracker not found", http.StatusNotFound)
		return
	}

	var req stepUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	accepted := false
	switch {
	case req.Error != "":
		t.SensorError(errors.New(req.Error))
	case req.Steps == nil:
		respondError(w, "steps is required", http.StatusBadRequest)
		return
	default:
		at := h.now()
		if req.Timestamp != nil {
			at = *req.Timestamp
		}
		accepted = t.OnStepCount(*req.Steps, at)
	}

	respondJSON(w, map[string]any{
		"success":  true,
		"accepted": accepted,
		"data":     t.Snapshot(),
	}, http.StatusAccepted)
}

// stop waits for the save so the caller learns its outcome. A failed save is
// reported but the tracker stays idle.
func (h *TrackerHandler) stop(w http.ResponseWriter, r *http.Request) {
	t, ok := h.manager.Get(chi.URLParam(r, "device"))
	if !ok {
		respondError(w, "tracker not found", http.StatusNotFound)
		return
	}

	result, stopped := t.Stop(h.now())
	body := map[string]any{"success": true, "stopped": stopped}

	if stopped {
		select {
		case res := <-result:
			if res.Err != nil {
				body["saveError"] = "failed to save session"
			} else {
				body["record"] = res.Record
			}
		case <-r.Context().Done():
			return
		}
	}

	body["data"] = t.Snapshot()
	respondJSON(w, body, http.StatusOK)
}
