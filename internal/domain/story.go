// Package domain contains core domain types for the Hope chat backend.
package domain

import (
	"fmt"
	"strings"
)

// Sentiment is the emotional tone assigned to a story.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// ParseSentiment normalizes a sentiment label produced by a human or a model.
func ParseSentiment(s string) (Sentiment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive", "pos", "+":
		return SentimentPositive, nil
	case "negative", "neg", "-":
		return SentimentNegative, nil
	case "neutral", "neutrral":
		return SentimentNeutral, nil
	default:
		return "", fmt.Errorf("unknown sentiment %q", s)
	}
}

// Priority ranks sentiments for context selection: negative > neutral > positive.
// Unknown labels rank lowest.
func (s Sentiment) Priority() int {
	switch s {
	case SentimentNegative:
		return 2
	case SentimentNeutral:
		return 1
	default:
		return 0
	}
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// StoryLocation names where a story took place.
type StoryLocation struct {
	Name        string       `json:"name"`
	Coordinates *Coordinates `json:"coordinates"`
}

// StoryRecord is one entry of the story corpus. Records are immutable after load.
type StoryRecord struct {
	ID        string         `json:"story_id"`
	Text      string         `json:"text,omitempty"`
	Method    string         `json:"method,omitempty"`
	Location  *StoryLocation `json:"location,omitempty"`
	Topics    []string       `json:"topics,omitempty"`
	Sentiment Sentiment      `json:"sentiment"`
	Summary   string         `json:"summary"`
}

// LocationName returns the story's location name, or "" if it has none.
func (r *StoryRecord) LocationName() string {
	if r.Location == nil {
		return ""
	}
	return r.Location.Name
}

// HasTopic reports whether the record carries any of the given topics (exact match).
func (r *StoryRecord) HasTopic(topics map[string]struct{}) bool {
	for _, t := range r.Topics {
		if _, ok := topics[t]; ok {
			return true
		}
	}
	return false
}
