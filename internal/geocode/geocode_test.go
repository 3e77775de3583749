package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/hope-map/internal/config"
	"github.com/ashureev/hope-map/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body struct {
			Location string `json:"location"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		switch body.Location {
		case "Christchurch":
			_, _ = w.Write([]byte(`{"latitude":-43.53,"longitude":172.63}`))
		case "Atlantis":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Location not found"}`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	p := NewProxyClient(srv.URL, nil)

	got, err := p.Geocode(context.Background(), "Christchurch")
	require.NoError(t, err)
	assert.InDelta(t, -43.53, got.Latitude, 1e-9)
	assert.InDelta(t, 172.63, got.Longitude, 1e-9)

	_, err = p.Geocode(context.Background(), "Atlantis")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = p.Geocode(context.Background(), "Elsewhere")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestProxyClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewProxyClient(url, nil).Geocode(context.Background(), "Christchurch")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestPhotonClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api", r.URL.Path)
		assert.Equal(t, "en", r.URL.Query().Get("lang"))
		if r.URL.Query().Get("q") == "Nowhere" {
			_, _ = w.Write([]byte(`{"features":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"features":[{"geometry":{"coordinates":[172.72,-43.6]}},{"geometry":{"coordinates":[0,0]}}]}`))
	}))
	defer srv.Close()

	p := NewPhotonClient(srv.URL+"/", 0, nil)

	got, err := p.Geocode(context.Background(), "Lyttelton")
	require.NoError(t, err)
	assert.Equal(t, domain.Coordinates{Latitude: -43.6, Longitude: 172.72}, got)

	_, err = p.Geocode(context.Background(), "Nowhere")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPhotonClientRespectsContextWhileWaiting(t *testing.T) {
	p := NewPhotonClient("http://127.0.0.1:0", 0.001, nil)
	// Drain the single burst token.
	require.True(t, p.limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.Geocode(ctx, "Sumner")
	assert.Error(t, err)
}

type countingGeocoder struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func (g *countingGeocoder) Geocode(context.Context, string) (domain.Coordinates, error) {
	g.calls.Add(1)
	if g.release != nil {
		<-g.release
	}
	if g.err != nil {
		return domain.Coordinates{}, g.err
	}
	return domain.Coordinates{Latitude: 1, Longitude: 2}, nil
}

func TestCachedMemoizesSuccess(t *testing.T) {
	backend := &countingGeocoder{}
	c := NewCached(backend)

	for range 3 {
		got, err := c.Geocode(context.Background(), "Sumner")
		require.NoError(t, err)
		assert.Equal(t, domain.Coordinates{Latitude: 1, Longitude: 2}, got)
	}
	assert.EqualValues(t, 1, backend.calls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestCachedDoesNotCacheFailures(t *testing.T) {
	backend := &countingGeocoder{err: errors.New("down")}
	c := NewCached(backend)

	_, err := c.Geocode(context.Background(), "Sumner")
	require.Error(t, err)
	_, err = c.Geocode(context.Background(), "Sumner")
	require.Error(t, err)

	assert.EqualValues(t, 2, backend.calls.Load())
	assert.Zero(t, c.Len())
}

func TestCachedCollapsesConcurrentLookups(t *testing.T) {
	backend := &countingGeocoder{release: make(chan struct{})}
	c := NewCached(backend)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Geocode(context.Background(), "Sumner")
		}()
	}
	// Let the callers pile up on the in-flight lookup before releasing it.
	require.Eventually(t, func() bool { return backend.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(backend.release)
	wg.Wait()

	assert.EqualValues(t, 1, backend.calls.Load())
}

type slowGeocoder struct {
	delay time.Duration
	calls atomic.Int32
}

func (g *slowGeocoder) Geocode(ctx context.Context, _ string) (domain.Coordinates, error) {
	g.calls.Add(1)
	select {
	case <-time.After(g.delay):
		return domain.Coordinates{Latitude: 3, Longitude: 4}, nil
	case <-ctx.Done():
		return domain.Coordinates{}, ctx.Err()
	}
}

func TestCachedCallerCancellationDoesNotFailOtherWaiters(t *testing.T) {
	backend := &slowGeocoder{delay: 100 * time.Millisecond}
	c := NewCached(backend)

	shortCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	var shortErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, shortErr = c.Geocode(shortCtx, "Rangiora")
	}()
	require.Eventually(t, func() bool { return backend.calls.Load() == 1 }, time.Second, time.Millisecond)

	got, err := c.Geocode(context.Background(), "Rangiora")
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, domain.Coordinates{Latitude: 3, Longitude: 4}, got)
	assert.ErrorIs(t, shortErr, context.DeadlineExceeded)
	assert.EqualValues(t, 1, backend.calls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestCachedLookupHasOwnTimeout(t *testing.T) {
	c := NewCached(&slowGeocoder{delay: time.Second})
	c.timeout = 20 * time.Millisecond

	_, err := c.Geocode(context.Background(), "Oxford")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, c.Len())
}

func TestNewSelectsProvider(t *testing.T) {
	_, err := New(config.GeocodeConfig{Provider: "proxy", ProxyURL: "http://x"})
	assert.NoError(t, err)
	_, err = New(config.GeocodeConfig{Provider: "photon", PhotonURL: "http://x", RateLimit: 1})
	assert.NoError(t, err)
	_, err = New(config.GeocodeConfig{Provider: "nominatim"})
	assert.Error(t, err)
}
