package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/hope-map/internal/domain"
)

// Fallback summaries used when a story cannot be analyzed.
const (
	SummaryAPIError   = "API Error"
	SummaryParseError = "Parse Error"
)

const analysisInstruction = `You are an expert sentiment classifier and summarizer. Your task is to analyze the user's input (a disaster story) and respond ONLY with a raw JSON object containing two keys:
1. "sentiment": must be exactly one word: 'positive', 'negative', or 'neutral'.
2. "summary": A concise, one-sentence summary of the story (max 50 words).

DO NOT add any explanation, code fences, quotation marks around the JSON, or any extra text outside the JSON object itself.

Examples:

Text: "He patched me in" ... (story content) ...
Response: {"sentiment": "positive", "summary": "Despite being separated by distance, a man happily reconnected with his 90-year-old mother via a clear three-way video conversation patched in by his son."}

Text: 41.5 weeks pregnant and on the way to the hospital... (story content) ...
Response: {"sentiment": "negative", "summary": "A woman's attempt to reach the hospital for induction was thwarted by traffic and chaos following the earthquake, forcing her to return home."}

Text: I was the manager of the restaurant... (story content) ...
Response: {"sentiment": "neutral", "summary": "A restaurant manager experienced the earthquake while protecting oven dishes, noting the strange behavior of freezers before finding shelter in a doorway."}`

var errMalformedAnalysis = errors.New("malformed analysis")

// Analysis is the model's classification of one story.
type Analysis struct {
	Sentiment domain.Sentiment
	Summary   string
	Raw       string
}

// Analyzer classifies story text with a Generator.
type Analyzer struct {
	gen        Generator
	maxRetries int
	backoff    func(attempt int) time.Duration
	logger     *slog.Logger
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithMaxRetries sets the number of attempts per story.
func WithMaxRetries(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxRetries = n
		}
	}
}

// WithBackoff replaces the wait between attempts.
func WithBackoff(fn func(attempt int) time.Duration) AnalyzerOption {
	return func(a *Analyzer) { a.backoff = fn }
}

// NewAnalyzer returns an analyzer that tries three times with 2s then 4s
// between attempts.
func NewAnalyzer(gen Generator, logger *slog.Logger, opts ...AnalyzerOption) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Analyzer{
		gen:        gen,
		maxRetries: 3,
		backoff:    func(attempt int) time.Duration { return time.Duration(1<<(attempt+1)) * time.Second },
		logger:     logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze classifies text. It never fails: after the last attempt it falls
// back to a neutral sentiment with SummaryAPIError or SummaryParseError.
func (a *Analyzer) Analyze(ctx context.Context, text string) Analysis {
	prompt := []domain.ChatTurn{{
		Role: domain.RoleUser,
		Text: analysisInstruction + "\n\nText: " + text + "\nResponse:",
	}}

	var lastErr error
	var raw string
	for attempt := 0; attempt < a.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, a.backoff(attempt-1)); err != nil {
				lastErr = err
				break
			}
		}

		out, err := a.gen.Generate(ctx, prompt)
		if err != nil {
			lastErr = err
			a.logger.Warn("Analysis request failed", "attempt", attempt+1, "max", a.maxRetries, "error", err)
			continue
		}
		raw = out

		analysis, err := ParseAnalysis(out)
		if err != nil {
			lastErr = err
			a.logger.Warn("Analysis output rejected", "attempt", attempt+1, "max", a.maxRetries, "raw", truncate(out, 100), "error", err)
			continue
		}
		return analysis
	}

	summary := SummaryAPIError
	if errors.Is(lastErr, errMalformedAnalysis) {
		summary = SummaryParseError
	}
	a.logger.Error("Story analysis gave up", "fallback", summary, "error", lastErr)
	return Analysis{Sentiment: domain.SentimentNeutral, Summary: summary, Raw: raw}
}

// ParseAnalysis extracts the JSON object between the first '{' and the last
// '}' of a model reply and validates it.
func ParseAnalysis(raw string) (Analysis, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return Analysis{}, fmt.Errorf("%w: no JSON object in output", errMalformedAnalysis)
	}

	var body struct {
		Sentiment *string `json:"sentiment"`
		Summary   *string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &body); err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", errMalformedAnalysis, err)
	}

	label := "neutral"
	if body.Sentiment != nil {
		label = *body.Sentiment
	}
	sentiment, err := domain.ParseSentiment(label)
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", errMalformedAnalysis, err)
	}

	summary := "No summary provided"
	if body.Summary != nil {
		summary = strings.TrimSpace(*body.Summary)
	}
	if summary == "" {
		return Analysis{}, fmt.Errorf("%w: empty summary", errMalformedAnalysis)
	}

	return Analysis{Sentiment: sentiment, Summary: summary, Raw: raw}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
