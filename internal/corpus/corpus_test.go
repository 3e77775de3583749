package corpus

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ashureev/hope-map/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStories() []domain.StoryRecord {
	return []domain.StoryRecord{
		{ID: "a", Topics: []string{"flood", "family"}, Location: &domain.StoryLocation{Name: "Christchurch"}, Sentiment: domain.SentimentNegative, Summary: "S1"},
		{ID: "b", Topics: []string{"flood"}, Location: &domain.StoryLocation{Name: "Lyttelton"}, Sentiment: domain.SentimentPositive, Summary: "S2"},
		{ID: "c", Topics: []string{"school"}, Location: &domain.StoryLocation{Name: "christchurch"}, Sentiment: domain.SentimentNeutral, Summary: "S3"},
		{ID: "d", Sentiment: domain.SentimentNeutral, Summary: "no location"},
	}
}

func TestDerivedSetsKeepFirstAppearanceOrder(t *testing.T) {
	c := New(sampleStories())

	assert.Equal(t, []string{"flood", "family", "school"}, c.Topics())
	assert.Equal(t, []string{"Christchurch", "Lyttelton", "christchurch"}, c.RecognizedLocations())
	assert.Equal(t, 4, c.Len())
}

func TestFindByLocationIsCaseInsensitiveAndFirstWins(t *testing.T) {
	c := New(sampleStories())

	got, ok := c.FindByLocation("CHRISTCHURCH")
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)

	_, ok = c.FindByLocation("Kaikoura")
	assert.False(t, ok)
}

func TestLoadFallsBackToSecondPath(t *testing.T) {
	dir := t.TempDir()
	analyzed := filepath.Join(dir, "analyzed_stories.json")
	body := `[{"story_id":"x","sentiment":"negative","summary":"S","topics":["fire"],"location":{"name":"Wellington","coordinates":{"latitude":-41.28,"longitude":174.77}}}]`
	require.NoError(t, os.WriteFile(analyzed, []byte(body), 0o644))

	c, err := Load(filepath.Join(dir, "geocoded_stories.json"), analyzed)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	story := c.Stories()[0]
	assert.Equal(t, "x", story.ID)
	require.NotNil(t, story.Location.Coordinates)
	assert.InDelta(t, -41.28, story.Location.Coordinates.Latitude, 1e-9)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	assert.True(t, errors.Is(err, ErrDataLoad))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, err = Load(bad)
	assert.True(t, errors.Is(err, ErrDataLoad))
}

func TestEmpty(t *testing.T) {
	c := Empty()
	assert.Zero(t, c.Len())
	assert.Empty(t, c.Topics())
	assert.Empty(t, c.RecognizedLocations())
}
