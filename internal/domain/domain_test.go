package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSentiment(t *testing.T) {
	tests := []struct {
		in      string
		want    Sentiment
		wantErr bool
	}{
		{"positive", SentimentPositive, false},
		{" NEG ", SentimentNegative, false},
		{"+", SentimentPositive, false},
		{"-", SentimentNegative, false},
		{"Neutral", SentimentNeutral, false},
		{"neutrral", SentimentNeutral, false},
		{"angry", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSentiment(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSentimentPriority(t *testing.T) {
	assert.Greater(t, SentimentNegative.Priority(), SentimentNeutral.Priority())
	assert.Greater(t, SentimentNeutral.Priority(), SentimentPositive.Priority())
	assert.Equal(t, SentimentPositive.Priority(), Sentiment("unknown").Priority())
}

func TestHistoryCloneDoesNotShareStorage(t *testing.T) {
	h := History{{Role: RoleUser, Text: "hi"}}
	c := h.Clone()
	c[0].Text = "changed"
	assert.Equal(t, "hi", h[0].Text)

	assert.NotNil(t, History(nil).Clone())
}

func TestSessionIdleFor(t *testing.T) {
	created := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := &Session{CreatedAt: created}
	assert.Equal(t, time.Hour, s.IdleFor(created.Add(time.Hour)))

	s.UpdatedAt = created.Add(30 * time.Minute)
	assert.Equal(t, 30*time.Minute, s.IdleFor(created.Add(time.Hour)))
}

func TestStoryLocationName(t *testing.T) {
	r := &StoryRecord{}
	assert.Empty(t, r.LocationName())

	r.Location = &StoryLocation{Name: "Kaiapoi"}
	assert.Equal(t, "Kaiapoi", r.LocationName())
	assert.True(t, (&StoryRecord{Topics: []string{"fire"}}).HasTopic(map[string]struct{}{"fire": {}}))
}
