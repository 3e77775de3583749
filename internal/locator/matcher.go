// Package locator detects recognized place names in chat turns and pushes map
// updates for them.
package locator

import (
	"regexp"
	"strings"
)

// Matcher finds the first recognized location mentioned in an utterance.
type Matcher struct {
	re    *regexp.Regexp
	names map[string]struct{}
}

// NewMatcher compiles a case-insensitive, whole-word matcher over names. Names
// are escaped literally. An empty set yields a matcher that never matches.
func NewMatcher(names []string) *Matcher {
	m := &Matcher{names: make(map[string]struct{}, len(names))}

	quoted := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		key := strings.ToLower(n)
		if _, dup := m.names[key]; dup {
			continue
		}
		m.names[key] = struct{}{}
		quoted = append(quoted, regexp.QuoteMeta(n))
	}
	if len(quoted) == 0 {
		return m
	}

	m.re = regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
	return m
}

// Detect returns the leftmost recognized location in utterance, spelled as
// the user wrote it. When two names match at the same position the one listed
// first wins.
func (m *Matcher) Detect(utterance string) (string, bool) {
	if m == nil || m.re == nil || utterance == "" {
		return "", false
	}
	hit := m.re.FindString(utterance)
	return hit, hit != ""
}

// Len returns the number of distinct recognized names.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.names)
}
