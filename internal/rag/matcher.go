// Package rag selects story context for a chat turn and assembles the model prompt.
package rag

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/ashureev/hope-map/internal/corpus"
	"github.com/ashureev/hope-map/internal/domain"
)

// Context is the retrieval result used to seed a response.
// Summary is nil when no relevant story was found.
type Context struct {
	Sentiment domain.Sentiment
	Summary   *string
	Story     *domain.StoryRecord
	Topics    []string
}

// DefaultContext is returned when nothing in the corpus is relevant.
func DefaultContext() Context {
	return Context{Sentiment: domain.SentimentNeutral}
}

// HasStory reports whether a story was selected.
func (c Context) HasStory() bool {
	return c.Summary != nil
}

// Match finds the stories whose topics are mentioned in the utterance and
// picks the highest-priority one (negative > neutral > positive, ties in
// corpus order).
//
// Mentions are case-insensitive substring matches with no tokenization, so a
// topic contained in an unrelated word still counts.
func Match(c *corpus.Corpus, utterance string) Context {
	if c == nil || c.Len() == 0 || utterance == "" {
		return DefaultContext()
	}

	lowered := strings.ToLower(utterance)
	mentioned := make(map[string]struct{})
	var mentionedList []string
	for _, topic := range c.Topics() {
		if strings.Contains(lowered, strings.ToLower(topic)) {
			mentioned[topic] = struct{}{}
			mentionedList = append(mentionedList, topic)
		}
	}
	if len(mentioned) == 0 {
		return DefaultContext()
	}

	stories := c.Stories()
	var candidates []*domain.StoryRecord
	for i := range stories {
		if stories[i].HasTopic(mentioned) {
			candidates = append(candidates, &stories[i])
		}
	}
	if len(candidates) == 0 {
		return DefaultContext()
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Sentiment.Priority() > candidates[j].Sentiment.Priority()
	})
	top := candidates[0]
	summary := top.Summary

	slog.Debug("RAG context selected",
		"topics", mentionedList,
		"candidates", len(candidates),
		"story_id", top.ID,
		"sentiment", top.Sentiment,
	)

	return Context{
		Sentiment: top.Sentiment,
		Summary:   &summary,
		Story:     top,
		Topics:    mentionedList,
	}
}
