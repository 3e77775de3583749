package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ashureev/hope-map/internal/domain"
	"golang.org/x/time/rate"
)

// PhotonClient queries a Photon geocoder directly and takes the first feature.
type PhotonClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewPhotonClient creates a client paced to rps requests per second. A
// non-positive rps disables pacing.
func NewPhotonClient(baseURL string, rps float64, client *http.Client) *PhotonClient {
	if client == nil {
		client = http.DefaultClient
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &PhotonClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
	}
}

type photonResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// Geocode implements Geocoder.
func (p *PhotonClient) Geocode(ctx context.Context, name string) (domain.Coordinates, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return domain.Coordinates{}, fmt.Errorf("photon rate limit: %w", err)
	}

	q := url.Values{}
	q.Set("q", name)
	q.Set("lang", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api?"+q.Encode(), nil)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("build photon request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Coordinates{}, statusError(resp.StatusCode)
	}

	var body photonResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Coordinates{}, fmt.Errorf("decode photon response: %w", err)
	}
	if len(body.Features) == 0 || len(body.Features[0].Geometry.Coordinates) < 2 {
		return domain.Coordinates{}, ErrNotFound
	}

	// GeoJSON order is [longitude, latitude].
	c := body.Features[0].Geometry.Coordinates
	return domain.Coordinates{Latitude: c[1], Longitude: c[0]}, nil
}
