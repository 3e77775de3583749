package geocode

import (
	"context"
	"sync"
	"time"

	"github.com/ashureev/hope-map/internal/domain"
	"golang.org/x/sync/singleflight"
)

const defaultLookupTimeout = 15 * time.Second

// Cached memoizes successful lookups and collapses concurrent lookups of the
// same name into one backend call. Failures are not cached.
//
// The shared backend call runs detached from any single caller, bounded by
// its own timeout, so one caller giving up does not fail the others.
type Cached struct {
	backend Geocoder
	group   singleflight.Group
	timeout time.Duration

	mu    sync.RWMutex
	cache map[string]domain.Coordinates
}

// NewCached wraps backend.
func NewCached(backend Geocoder) *Cached {
	return &Cached{
		backend: backend,
		timeout: defaultLookupTimeout,
		cache:   make(map[string]domain.Coordinates),
	}
}

// Geocode implements Geocoder.
func (c *Cached) Geocode(ctx context.Context, name string) (domain.Coordinates, error) {
	c.mu.RLock()
	coords, ok := c.cache[name]
	c.mu.RUnlock()
	if ok {
		return coords, nil
	}

	lookupCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(name, func() (any, error) {
		runCtx, cancel := context.WithTimeout(lookupCtx, c.timeout)
		defer cancel()

		coords, err := c.backend.Geocode(runCtx, name)
		if err != nil {
			return domain.Coordinates{}, err
		}
		c.mu.Lock()
		c.cache[name] = coords
		c.mu.Unlock()
		return coords, nil
	})

	select {
	case <-ctx.Done():
		return domain.Coordinates{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.Coordinates{}, res.Err
		}
		return res.Val.(domain.Coordinates), nil
	}
}

// Len returns the number of cached names.
func (c *Cached) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
