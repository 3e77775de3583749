package prep

import (
	"context"
	"log/slog"

	"github.com/ashureev/hope-map/internal/domain"
)

// Geocoder resolves a place name to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, name string) (domain.Coordinates, error)
}

// Geocode attaches a location to every story that has an ID. Names that fail
// to resolve keep null coordinates and are not retried within the run.
// Stories without an ID are dropped.
func Geocode(ctx context.Context, geocoder Geocoder, stories []Story, logger *slog.Logger, progress Progress) ([]Story, error) {
	if logger == nil {
		logger = slog.Default()
	}

	failed := make(map[string]struct{})
	out := make([]Story, 0, len(stories))
	for i, story := range stories {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if story.ID == "" {
			continue
		}

		name, ok := LocationName(story.ID)
		if !ok {
			story.Location = &Location{}
		} else {
			story.Location = &Location{Name: &name}
			if _, skip := failed[name]; !skip {
				coords, err := geocoder.Geocode(ctx, name)
				if err != nil {
					logger.Warn("Geocoding failed", "location", name, "error", err)
					failed[name] = struct{}{}
				} else {
					story.Location.Coordinates = &coords
				}
			}
		}

		out = append(out, story)
		if progress != nil {
			progress(i+1, len(stories), story)
		}
	}
	return out, nil
}
