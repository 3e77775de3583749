package prep

import (
	"encoding/json"
	"testing"

	"github.com/ashureev/hope-map/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func labelled(id string, s domain.Sentiment) Story {
	return Story{ID: id, Sentiment: s}
}

func TestEvaluateBuildsConfusionMatrix(t *testing.T) {
	manual := []Story{
		labelled("a", "positive"),
		labelled("b", "neg"),
		labelled("c", "negative"),
		labelled("d", "neutral"),
		labelled("e", "whatever"),
		labelled("z", "positive"),
	}
	predicted := []Story{
		labelled("a", domain.SentimentPositive),
		labelled("b", domain.SentimentNegative),
		labelled("c", domain.SentimentNeutral),
		labelled("d", domain.SentimentNeutral),
		labelled("e", domain.SentimentNegative),
	}

	ev := Evaluate(manual, predicted)

	assert.Equal(t, 5, ev.Compared)
	assert.Equal(t, []string{"z"}, ev.Unmatched)
	// Rows are hand labels, columns model labels: positive, neutral, negative.
	assert.Equal(t, [][]int{
		{1, 0, 0},
		{0, 1, 1},
		{0, 1, 1},
	}, ev.Matrix)
	assert.InDelta(t, 0.6, ev.Accuracy, 1e-9)

	pos := ev.Classes[domain.SentimentPositive]
	assert.InDelta(t, 1.0, pos.Precision, 1e-9)
	assert.InDelta(t, 1.0, pos.Recall, 1e-9)
	assert.Equal(t, 1, pos.Support)

	neg := ev.Classes[domain.SentimentNegative]
	assert.InDelta(t, 0.5, neg.Precision, 1e-9)
	assert.InDelta(t, 0.5, neg.Recall, 1e-9)
	assert.InDelta(t, 0.5, neg.F1, 1e-9)
}

func TestEvaluateWithNothingToCompare(t *testing.T) {
	ev := Evaluate([]Story{labelled("a", "positive")}, nil)

	assert.Zero(t, ev.Compared)
	assert.Zero(t, ev.Accuracy)
	assert.Zero(t, ev.Classes[domain.SentimentPositive].Recall)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"confusion_matrix":[[0,0,0],[0,0,0],[0,0,0]]`)
}
