// Package corpus loads the story corpus and exposes read-only views over it.
package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ashureev/hope-map/internal/domain"
)

// ErrDataLoad is returned when no corpus file could be read or decoded.
var ErrDataLoad = errors.New("story corpus unavailable")

// Corpus is an ordered, immutable collection of stories loaded once at startup.
type Corpus struct {
	stories   []domain.StoryRecord
	topics    []string
	locations []string
}

// New builds a corpus from records in their original order.
func New(stories []domain.StoryRecord) *Corpus {
	c := &Corpus{stories: stories}
	c.topics = distinct(stories, func(r *domain.StoryRecord) []string { return r.Topics })
	c.locations = distinct(stories, func(r *domain.StoryRecord) []string {
		if name := r.LocationName(); name != "" {
			return []string{name}
		}
		return nil
	})
	return c
}

// Empty returns a corpus with no stories.
func Empty() *Corpus {
	return New(nil)
}

// Load reads the first existing file in paths. A missing file is skipped; a
// file that exists but cannot be decoded is an error.
func Load(paths ...string) (*Corpus, error) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Story file not found, trying next", "path", path)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrDataLoad, path, err)
		}

		var stories []domain.StoryRecord
		if err := json.Unmarshal(data, &stories); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrDataLoad, path, err)
		}
		slog.Info("Loaded story corpus", "path", path, "stories", len(stories))
		return New(stories), nil
	}
	return nil, fmt.Errorf("%w: none of %v exist", ErrDataLoad, paths)
}

// Stories returns the records in corpus order. Callers must not modify them.
func (c *Corpus) Stories() []domain.StoryRecord {
	return c.stories
}

// Len returns the number of stories.
func (c *Corpus) Len() int {
	return len(c.stories)
}

// Topics returns every distinct topic in first-appearance order.
func (c *Corpus) Topics() []string {
	return c.topics
}

// RecognizedLocations returns every distinct location name in
// first-appearance order.
func (c *Corpus) RecognizedLocations() []string {
	return c.locations
}

// FindByLocation returns the first story whose location name equals name,
// ignoring case.
func (c *Corpus) FindByLocation(name string) (*domain.StoryRecord, bool) {
	for i := range c.stories {
		if strings.EqualFold(c.stories[i].LocationName(), name) {
			return &c.stories[i], true
		}
	}
	return nil, false
}

func distinct(stories []domain.StoryRecord, values func(*domain.StoryRecord) []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for i := range stories {
		for _, v := range values(&stories[i]) {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
