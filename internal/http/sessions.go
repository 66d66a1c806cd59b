package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hperssn/cadence/internal/domain"
	"github.com/hperssn/cadence/internal/stats"
	"github.com/hperssn/cadence/internal/storage"
)

// SessionHandler serves the session record collection.
type SessionHandler struct {
	repo  storage.Repository
	stats *stats.Service
}

func NewSessionHandler(repo storage.Repository, statsSvc *stats.Service) *SessionHandler {
	if statsSvc == nil {
		statsSvc = stats.NewService(repo, nil, 0)
	}
	return &SessionHandler{repo: repo, stats: statsSvc}
}

func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/stats/summary", h.summary)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
}

func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	records, err := h.repo.ReadAll(r.Context())
	if err != nil {
		respondStoreError(w, err, "retrieve cadence data")
		return
	}

	respondJSON(w, map[string]any{
		"success": true,
		"count":   len(records),
		"data":    records,
	}, http.StatusOK)
}

func (h *SessionHandler) create(w http.ResponseWriter, r *http.Request) {
	// An empty or non-object body carries no fields; let validation name them.
	var in domain.SessionInput
	var typeErr *json.UnmarshalTypeError
	err := json.NewDecoder(r.Body).Decode(&in)
	switch {
	case err == nil, errors.Is(err, io.EOF):
	case errors.As(err, &typeErr):
		in = domain.SessionInput{}
	default:
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	rec, err := h.repo.Create(r.Context(), in)
	if err != nil {
		respondStoreError(w, err, "create cadence record")
		return
	}
	h.stats.Invalidate(r.Context())

	respondJSON(w, map[string]any{
		"success": true,
		"message": "Cadence record created successfully",
		"data":    rec,
	}, http.StatusCreated)
}

func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.repo.ReadByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err, "retrieve cadence record")
		return
	}

	respondJSON(w, map[string]any{"success": true, "data": rec}, http.StatusOK)
}

func (h *SessionHandler) update(w http.ResponseWriter, r *http.Request) {
	var patch domain.SessionPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	rec, err := h.repo.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		respondStoreError(w, err, "update cadence record")
		return
	}
	h.stats.Invalidate(r.Context())

	respondJSON(w, map[string]any{
		"success": true,
		"message": "Cadence record updated successfully",
		"data":    rec,
	}, http.StatusOK)
}

func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	rec, err := h.repo.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err, "delete cadence record")
		return
	}
	h.stats.Invalidate(r.Context())

	respondJSON(w, map[string]any{
		"success": true,
		"message": "Cadence record deleted successfully",
		"data":    rec,
	}, http.StatusOK)
}

func (h *SessionHandler) summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.stats.Summary(r.Context())
	if err != nil {
		respondStoreError(w, err, "get cadence statistics")
		return
	}

	respondJSON(w, map[string]any{"success": true, "data": summary}, http.StatusOK)
}
