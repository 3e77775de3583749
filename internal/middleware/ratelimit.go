package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per client key.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   rate.Limit
	burst   int
	idle    time.Duration
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows requests per window for each key, with bursts up to
// requests. A non-positive requests disables limiting.
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{clients: make(map[string]*client), idle: window}
	if requests <= 0 || window <= 0 {
		rl.limit = rate.Inf
		return rl
	}
	rl.limit = rate.Every(window / time.Duration(requests))
	rl.burst = requests
	return rl
}

// Reserve takes a token for key. It returns 0 when the request may proceed,
// otherwise how long the client should wait.
func (rl *RateLimiter) Reserve(key string) time.Duration {
	if rl.limit == rate.Inf {
		return 0
	}

	rl.mu.Lock()
	c, ok := rl.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = time.Now()
	rl.mu.Unlock()

	res := c.limiter.Reserve()
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return delay
	}
	return 0
}

// StartEviction removes keys idle for a full window until ctx is done.
func (rl *RateLimiter) StartEviction(ctx context.Context) {
	if rl.limit == rate.Inf {
		return
	}
	go func() {
		ticker := time.NewTicker(rl.idle)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.evict(time.Now())
			}
		}
	}()
}

func (rl *RateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, c := range rl.clients {
		if now.Sub(c.lastSeen) > rl.idle {
			delete(rl.clients, key)
		}
	}
}

// RateLimit rejects requests over the limit with 429 and a Retry-After
// header. Clients are keyed by remote IP; run it after chi's RealIP.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if wait := rl.Reserve(clientKey(r)); wait > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"Too many requests. Please slow down."}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
