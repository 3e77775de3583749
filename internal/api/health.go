package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports readiness of the API and its dependencies. The
// liveness heartbeat at /health is served by chi middleware.
type HealthHandler struct {
	sessions  Pinger
	stories   func() int
	listeners func() int
	timeout   time.Duration
}

// NewHealthHandler creates a readiness handler. stories and listeners may be nil.
func NewHealthHandler(sessions Pinger, stories, listeners func() int) *HealthHandler {
	return &HealthHandler{sessions: sessions, stories: stories, listeners: listeners, timeout: 5 * time.Second}
}

// RegisterRoutes registers the readiness route.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/health", h.Health)
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]any{"api": "ok"}
	status := map[string]any{"status": "healthy", "checks": checks}
	statusCode := http.StatusOK

	if err := h.sessions.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["sessions"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["sessions"] = "ok"
	}
	if h.stories != nil {
		checks["stories"] = h.stories()
	}
	if h.listeners != nil {
		checks["map_listeners"] = h.listeners()
	}

	JSON(w, statusCode, status)
}
