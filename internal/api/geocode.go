package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/hope-map/internal/geocode"
	"github.com/go-chi/chi/v5"
)

// GeocodeHandler exposes the geocoder over HTTP with the same contract as the
// standalone geocoding proxy.
type GeocodeHandler struct {
	geocoder geocode.Geocoder
}

// NewGeocodeHandler creates a geocode handler.
func NewGeocodeHandler(g geocode.Geocoder) *GeocodeHandler {
	return &GeocodeHandler{geocoder: g}
}

// RegisterRoutes registers the geocode route.
func (h *GeocodeHandler) RegisterRoutes(r chi.Router) {
	r.Post("/geocode", h.Geocode)
}

// Geocode handles POST /geocode {"location": "..."}.
func (h *GeocodeHandler) Geocode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Location string `json:"location"`
	}
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.Location) == "" {
		Error(w, http.StatusBadRequest, "No location provided")
		return
	}

	coords, err := h.geocoder.Geocode(r.Context(), req.Location)
	switch {
	case err == nil:
		JSON(w, http.StatusOK, coords)
	case errors.Is(err, geocode.ErrNotFound):
		Error(w, http.StatusNotFound, "Location not found")
	case errors.Is(err, geocode.ErrUnavailable):
		slog.Warn("Geocoding backend unreachable", "location", req.Location, "error", err)
		Error(w, http.StatusServiceUnavailable, "Failed to connect to geocoding server.")
	default:
		slog.Error("Geocoding failed", "location", req.Location, "error", err)
		Error(w, http.StatusInternalServerError, err.Error())
	}
}
