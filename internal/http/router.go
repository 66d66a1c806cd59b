package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/hperssn/cadence/internal/domain"
)

const serviceName = "Cadence Tracker API"

// NewRouter wires the session collection and the live tracker surface.
func NewRouter(sessions *SessionHandler, trackers *TrackerHandler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/", serveIndex)
	r.Get("/health", serveHealth)

	r.Route("/api/cadence", sessions.RegisterRoutes)
	r.Route("/sessions", sessions.RegisterRoutes)
	if trackers != nil {
		r.Route("/trackers", trackers.RegisterRoutes)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, map[string]any{
			"error": "Route not found",
			"path":  r.URL.Path,
		}, http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	return r
}

func serveHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{
		"status":    "OK",
		"timestamp": domain.FormatTime(time.Now()),
		"service":   serviceName,
	}, http.StatusOK)
}

func serveIndex(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{
		"message":   "Welcome to the " + serviceName,
		"endpoints": map[string]string{
			"GET /api/cadence":               "list all sessions",
			"POST /api/cadence":              "create a session",
			"GET /api/cadence/{id}":          "get one session",
			"PUT /api/cadence/{id}":          "update a session",
			"DELETE /api/cadence/{id}":       "delete a session",
			"GET /api/cadence/stats/summary": "aggregate statistics",
			"POST /trackers/{device}/start":  "start live tracking",
			"POST /trackers/{device}/steps":  "report a cumulative step count",
			"POST /trackers/{device}/stop":   "stop tracking and save the session",
			"GET /trackers/{device}/events":  "stream tracker snapshots",
			"GET /trackers/{device}/feed":    "websocket sensor feed",
			"GET /health":                    "health check",
		},
	}, http.StatusOK)
}
