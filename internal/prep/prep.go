// Package prep builds the story corpus files offline: it analyzes raw story
// text with the language model and attaches geocoded locations.
package prep

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ashureev/hope-map/internal/domain"
	"github.com/ashureev/hope-map/internal/llm"
)

// AnalyzeLimit is the number of leading bytes of a story sent for analysis.
const AnalyzeLimit = 1500

// MethodLLM marks records labelled by the language model.
const MethodLLM = "llm"

// Story is one prepared record. It decodes as a domain.StoryRecord.
type Story struct {
	ID        string           `json:"story_id"`
	Text      string           `json:"text"`
	Sentiment domain.Sentiment `json:"sentiment"`
	Summary   string           `json:"summary"`
	Method    string           `json:"method"`
	Topics    []string         `json:"topics,omitempty"`
	Location  *Location        `json:"location,omitempty"`
	// Extra holds fields this package does not manage. They are written back
	// unchanged.
	Extra map[string]json.RawMessage `json:"-"`
}

type storyFields Story

var storyKeys = []string{"story_id", "text", "sentiment", "summary", "method", "topics", "location"}

// UnmarshalJSON decodes the known fields and keeps the rest in Extra.
func (s *Story) UnmarshalJSON(data []byte) error {
	var fields storyFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range storyKeys {
		delete(all, k)
	}

	*s = Story(fields)
	s.Extra = nil
	if len(all) > 0 {
		s.Extra = all
	}
	return nil
}

// MarshalJSON encodes the known fields plus Extra. Known fields win over
// Extra entries with the same key.
func (s Story) MarshalJSON() ([]byte, error) {
	known, err := marshalUnescaped(storyFields(s))
	if err != nil || len(s.Extra) == 0 {
		return known, err
	}

	merged := make(map[string]json.RawMessage, len(s.Extra)+len(storyKeys))
	for k, v := range s.Extra {
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return marshalUnescaped(merged)
}

func marshalUnescaped(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Location is the location attached by the geocode step. Name is nil when
// the story ID carries no place.
type Location struct {
	Name        *string             `json:"name"`
	Coordinates *domain.Coordinates `json:"coordinates"`
}

// TextAnalyzer labels a piece of story text.
type TextAnalyzer interface {
	Analyze(ctx context.Context, text string) llm.Analysis
}

// Progress is called after each story is processed.
type Progress func(done, total int, story Story)

// StoryFiles returns the .txt files in dir, sorted by name.
func StoryFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read story dir %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Analyze labels every story file in dir. The full text is kept; only the
// first AnalyzeLimit bytes are sent to the analyzer.
func Analyze(ctx context.Context, analyzer TextAnalyzer, dir string, progress Progress) ([]Story, error) {
	names, err := StoryFiles(dir)
	if err != nil {
		return nil, err
	}

	stories := make([]Story, 0, len(names))
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return stories, err
		}

		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return stories, fmt.Errorf("read story %s: %w", name, err)
		}
		text := strings.TrimSpace(string(raw))

		a := analyzer.Analyze(ctx, head(text, AnalyzeLimit))
		story := Story{
			ID:        name,
			Text:      text,
			Sentiment: a.Sentiment,
			Summary:   a.Summary,
			Method:    MethodLLM,
		}
		stories = append(stories, story)
		if progress != nil {
			progress(i+1, len(names), story)
		}
	}
	return stories, nil
}

// head returns at most n bytes of s without splitting a UTF-8 sequence.
func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

var bracketGroup = regexp.MustCompile(`\[(.*?)\]`)

// LocationName extracts the place from a story ID such as
// "[2011-02-22] [Christchurch] title.txt": the second bracketed group.
func LocationName(storyID string) (string, bool) {
	groups := bracketGroup.FindAllStringSubmatch(storyID, -1)
	if len(groups) < 2 {
		return "", false
	}
	name := strings.TrimSpace(groups[1][1])
	return name, name != ""
}

// ReadStories loads a prepared story file.
func ReadStories(path string) ([]Story, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var stories []Story
	if err := json.Unmarshal(raw, &stories); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return stories, nil
}

// WriteStories writes stories as indented JSON, leaving non-ASCII text and
// HTML characters unescaped.
func WriteStories(path string, stories []Story) error {
	if stories == nil {
		stories = []Story{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(stories); err != nil {
		return fmt.Errorf("encode stories: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
