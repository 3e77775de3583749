package geocode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ashureev/hope-map/internal/domain"
)

// ProxyClient calls a geocoding proxy: POST {"location": name} returning
// {"latitude": ..., "longitude": ...}. The server's own /geocode endpoint
// speaks the same protocol.
type ProxyClient struct {
	url    string
	client *http.Client
}

// NewProxyClient creates a proxy client. A nil client uses http.DefaultClient.
func NewProxyClient(url string, client *http.Client) *ProxyClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &ProxyClient{url: url, client: client}
}

// Geocode implements Geocoder.
func (p *ProxyClient) Geocode(ctx context.Context, name string) (domain.Coordinates, error) {
	body, err := json.Marshal(map[string]string{"location": name})
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("encode geocode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("build geocode request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Coordinates{}, statusError(resp.StatusCode)
	}

	var coords domain.Coordinates
	if err := json.NewDecoder(resp.Body).Decode(&coords); err != nil {
		return domain.Coordinates{}, fmt.Errorf("decode geocode response: %w", err)
	}
	return coords, nil
}
