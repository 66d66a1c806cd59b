package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/golang/glog"

	"github.com/hperssn/cadence/internal/domain"
)

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		glog.Errorf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]any{"success": false, "error": message}, status)
}

// respondStoreError maps store errors onto status codes. Internal detail is
// logged, never returned.
func respondStoreError(w http.ResponseWriter, err error, action string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, map[string]any{
			"success": false,
			"error":   verr.Error(),
			"fields":  verr.Fields(),
		}, http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, "Cadence record not found", http.StatusNotFound)
	default:
		glog.Errorf("%s: %v", action, err)
		respondError(w, "Failed to "+action, http.StatusInternalServerError)
	}
}
