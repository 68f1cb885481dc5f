package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketdataplane/internal/errkind"
)

func TestNewsHeadlineAdapter_AveragesSentimentAcrossHeadlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"headlines":[
			{"sentiment":0.4,"published_at":"2025-11-25T14:00:00Z"},
			{"sentiment":0.2,"published_at":"2025-11-25T15:00:00Z"}
		]}`))
	}))
	defer srv.Close()

	a := NewNewsHeadlineAdapter(testGuard(), srv.URL, "dummy-key")
	candidates, err := a.Fetch(context.Background(), "NEWS_SENTIMENT_SPY", FetchHint{})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.InDelta(t, 0.3, *candidates[0].Value, 1e-9)
}

func TestNewsHeadlineAdapter_IgnoresHeadlinesWithoutSentiment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"headlines":[{"published_at":"2025-11-25T14:00:00Z"}]}`))
	}))
	defer srv.Close()

	a := NewNewsHeadlineAdapter(testGuard(), srv.URL, "dummy-key")
	_, err := a.Fetch(context.Background(), "NEWS_SENTIMENT_SPY", FetchHint{})
	require.Error(t, err)
	kind, ok := errkind.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errkind.UpstreamMalformed, kind)
}

func TestNewsHeadlineAdapter_NoHeadlinesIsUpstreamEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"headlines":[]}`))
	}))
	defer srv.Close()

	a := NewNewsHeadlineAdapter(testGuard(), srv.URL, "dummy-key")
	_, err := a.Fetch(context.Background(), "NEWS_SENTIMENT_SPY", FetchHint{})
	require.Error(t, err)
	kind, ok := errkind.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errkind.UpstreamEmpty, kind)
}
