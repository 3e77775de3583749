package rag

import (
	"fmt"

	"github.com/ashureev/hope-map/internal/domain"
	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter counts model tokens in a piece of text.
type TokenCounter interface {
	CountTokens(text string) (int, error)
}

type tiktokenCounter struct {
	codec tokenizer.Codec
}

// NewTiktokenCounter returns a counter using the cl100k_base encoding.
func NewTiktokenCounter() (TokenCounter, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("load cl100k_base encoding: %w", err)
	}
	return &tiktokenCounter{codec: codec}, nil
}

func (c *tiktokenCounter) CountTokens(text string) (int, error) {
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// HistoryPolicy limits how much prior history is sent to the model. It never
// changes the stored history. Zero values mean unlimited.
type HistoryPolicy struct {
	MaxTurns  int
	MaxTokens int
	Counter   TokenCounter
}

// Unlimited reports whether the policy keeps the full history.
func (p HistoryPolicy) Unlimited() bool {
	return p.MaxTurns <= 0 && (p.MaxTokens <= 0 || p.Counter == nil)
}

// Apply returns the suffix of prior that satisfies the policy.
func (p HistoryPolicy) Apply(prior domain.History) domain.History {
	if p.Unlimited() {
		return prior
	}

	kept := prior
	if p.MaxTurns > 0 && len(kept) > p.MaxTurns {
		kept = kept[len(kept)-p.MaxTurns:]
	}

	if p.MaxTokens <= 0 || p.Counter == nil {
		return kept
	}

	// Walk backwards so the most recent turns survive.
	total := 0
	start := len(kept)
	for i := len(kept) - 1; i >= 0; i-- {
		n, err := p.Counter.CountTokens(kept[i].Text)
		if err != nil {
			// Uncountable text is treated as unbounded and ends the window.
			break
		}
		if total+n > p.MaxTokens {
			break
		}
		total += n
		start = i
	}
	return kept[start:]
}
