package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/hope-map/internal/domain"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(nil)
	srv := httptest.NewServer(NewHandler(hub, []string{"*"}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func TestBroadcastReachesEveryListener(t *testing.T) {
	hub, url := startHub(t)
	a := dial(t, url)
	b := dial(t, url)
	require.Eventually(t, func() bool { return hub.Count() == 2 }, 2*time.Second, 5*time.Millisecond)

	sentiment := domain.SentimentNegative
	event := domain.MapUpdateEvent{
		Location:     "Lyttelton",
		Latitude:     -43.6,
		Longitude:    172.72,
		StorySummary: "S",
		Sentiment:    &sentiment,
	}
	require.NoError(t, hub.Broadcast(context.Background(), domain.MapUpdateEventName, event))

	for _, conn := range []*websocket.Conn{a, b} {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, data, err := conn.Read(ctx)
		cancel()
		require.NoError(t, err)

		var got struct {
			Event string                `json:"event"`
			Data  domain.MapUpdateEvent `json:"data"`
		}
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, "mapUpdate", got.Event)
		assert.Equal(t, "Lyttelton", got.Data.Location)
		require.NotNil(t, got.Data.Sentiment)
		assert.Equal(t, domain.SentimentNegative, *got.Data.Sentiment)
	}
}

func TestBroadcastEncodesNullSentiment(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Broadcast(context.Background(), domain.MapUpdateEventName,
		domain.MapUpdateEvent{Location: "Sumner", StorySummary: "No specific story found."}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sentiment":null`)
	assert.Contains(t, string(data), `"storySummary":"No specific story found."`)
}

func TestBroadcastWithoutListeners(t *testing.T) {
	hub := NewHub(nil)
	assert.NoError(t, hub.Broadcast(context.Background(), "mapUpdate", map[string]string{"a": "b"}))
}

func TestListenerRemovedOnDisconnect(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t, []string{"localhost:5173", "example.org"},
		OriginPatterns([]string{"http://localhost:5173", "example.org"}))
	assert.Equal(t, []string{"*"}, OriginPatterns([]string{"http://a", "*"}))
}
