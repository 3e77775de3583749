package locator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/hope-map/internal/corpus"
	"github.com/ashureev/hope-map/internal/domain"
	"github.com/panjf2000/ants/v2"
)

// NoStorySummary is sent when a recognized location has no story in the corpus.
const NoStorySummary = "No specific story found."

// Geocoder resolves a place name to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, name string) (domain.Coordinates, error)
}

// Broadcaster delivers an event to every connected map listener.
type Broadcaster interface {
	Broadcast(ctx context.Context, event string, payload any) error
}

// Trigger turns location mentions into map update broadcasts.
type Trigger struct {
	matcher     *Matcher
	corpus      *corpus.Corpus
	geocoder    Geocoder
	broadcaster Broadcaster
	pool        *ants.Pool
	timeout     time.Duration
	logger      *slog.Logger
}

// TriggerConfig holds the worker pool settings.
type TriggerConfig struct {
	Workers int
	Timeout time.Duration
}

// NewTrigger creates a trigger backed by a bounded, non-blocking worker pool.
func NewTrigger(c *corpus.Corpus, geocoder Geocoder, broadcaster Broadcaster, cfg TriggerConfig, logger *slog.Logger) (*Trigger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = corpus.Empty()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	pool, err := ants.NewPool(cfg.Workers, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create trigger pool: %w", err)
	}

	t := &Trigger{
		matcher:     NewMatcher(c.RecognizedLocations()),
		corpus:      c,
		geocoder:    geocoder,
		broadcaster: broadcaster,
		pool:        pool,
		timeout:     cfg.Timeout,
		logger:      logger,
	}
	logger.Info("Location trigger ready", "locations", t.matcher.Len(), "workers", cfg.Workers)
	return t, nil
}

// Submit schedules Fire on the worker pool and returns immediately. The work is
// detached from ctx cancellation so it outlives the HTTP request that caused it.
func (t *Trigger) Submit(ctx context.Context, utterance string) {
	if _, ok := t.matcher.Detect(utterance); !ok {
		return
	}

	detached := context.WithoutCancel(ctx)
	err := t.pool.Submit(func() {
		runCtx, cancel := context.WithTimeout(detached, t.timeout)
		defer cancel()
		t.Fire(runCtx, utterance)
	})
	if err != nil {
		if errors.Is(err, ants.ErrPoolOverload) {
			t.logger.Warn("Location trigger pool full, dropping event")
			return
		}
		t.logger.Error("Failed to submit location trigger", "error", err)
	}
}

// Fire runs the trigger synchronously. It reports whether an event was
// broadcast; failures are logged and never returned.
func (t *Trigger) Fire(ctx context.Context, utterance string) bool {
	name, ok := t.matcher.Detect(utterance)
	if !ok {
		return false
	}

	event := domain.MapUpdateEvent{Location: name, StorySummary: NoStorySummary}
	if story, found := t.corpus.FindByLocation(name); found {
		sentiment := story.Sentiment
		event.StorySummary = story.Summary
		event.Sentiment = &sentiment
	}

	coords, err := t.geocoder.Geocode(ctx, name)
	if err != nil {
		t.logger.Warn("Geocoding failed, skipping map update", "location", name, "error", err)
		return false
	}
	event.Latitude = coords.Latitude
	event.Longitude = coords.Longitude

	if err := t.broadcaster.Broadcast(ctx, domain.MapUpdateEventName, event); err != nil {
		t.logger.Warn("Map update broadcast failed", "location", name, "error", err)
		return false
	}

	t.logger.Info("Map update sent", "location", name, "latitude", coords.Latitude, "longitude", coords.Longitude)
	return true
}

// Running returns the number of in-flight trigger jobs.
func (t *Trigger) Running() int {
	return t.pool.Running()
}

// Close waits up to timeout for in-flight jobs and releases the pool.
func (t *Trigger) Close(timeout time.Duration) error {
	if err := t.pool.ReleaseTimeout(timeout); err != nil {
		return fmt.Errorf("release trigger pool: %w", err)
	}
	return nil
}
