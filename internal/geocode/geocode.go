// Package geocode resolves place names to coordinates.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ashureev/hope-map/internal/config"
	"github.com/ashureev/hope-map/internal/domain"
)

var (
	// ErrNotFound is returned when the geocoder has no match for a name.
	ErrNotFound = errors.New("location not found")
	// ErrUnavailable is returned when the geocoding backend cannot be reached
	// or answers with a server error.
	ErrUnavailable = errors.New("geocoding service unavailable")
)

// Geocoder resolves a place name to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, name string) (domain.Coordinates, error)
}

// New returns the geocoder selected by cfg.Provider, wrapped in a cache.
func New(cfg config.GeocodeConfig) (*Cached, error) {
	client := &http.Client{Timeout: cfg.Timeout}

	var backend Geocoder
	switch cfg.Provider {
	case "", "proxy":
		backend = NewProxyClient(cfg.ProxyURL, client)
	case "photon":
		backend = NewPhotonClient(cfg.PhotonURL, cfg.RateLimit, client)
	default:
		return nil, fmt.Errorf("unknown geocode provider %q", cfg.Provider)
	}
	cached := NewCached(backend)
	if cfg.Timeout > 0 {
		cached.timeout = cfg.Timeout
	}
	return cached, nil
}

func statusError(status int) error {
	switch {
	case status == http.StatusNotFound:
		return ErrNotFound
	case status >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, status)
	default:
		return fmt.Errorf("geocode: unexpected status %d", status)
	}
}
