package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketdataplane/internal/adapterutil"
	"github.com/sawpanic/marketdataplane/internal/errkind"
)

func testGuard() *adapterutil.Guard {
	return adapterutil.NewGuard(adapterutil.GuardConfig{
		SourceID: "retail_quote", RatePerSecond: 100, Burst: 10, Concurrency: 5,
	})
}

func TestRetailQuoteAdapter_FetchNormalizesCandidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"SPY","timestamp":"2025-11-25T15:00:00Z","close":668.81,"change_pct":1.48}`))
	}))
	defer srv.Close()

	a := NewRetailQuoteAdapter(testGuard(), srv.URL)
	candidates, err := a.Fetch(context.Background(), "SPY", FetchHint{})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, 668.81, *candidates[0].Value)
	assert.Equal(t, "retail_quote", candidates[0].SourceID)
	assert.Equal(t, time.Date(2025, 11, 25, 15, 0, 0, 0, time.UTC), candidates[0].Timestamp)
}

func TestRetailQuoteAdapter_MissingCloseIsUpstreamEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"SPY","timestamp":"2025-11-25T15:00:00Z"}`))
	}))
	defer srv.Close()

	a := NewRetailQuoteAdapter(testGuard(), srv.URL)
	_, err := a.Fetch(context.Background(), "SPY", FetchHint{})
	require.Error(t, err)
	kind, ok := errkind.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errkind.UpstreamEmpty, kind)
}

func TestRetailQuoteAdapter_RateLimitedStatusClassifiesAsRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := NewRetailQuoteAdapter(testGuard(), srv.URL)
	_, err := a.Fetch(context.Background(), "SPY", FetchHint{})
	require.Error(t, err)
	kind, ok := errkind.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errkind.RateLimited, kind)
	assert.True(t, kind.RetryableSkip())
}

func TestRetailQuoteAdapter_MalformedJSONClassifiesAsUpstreamMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	a := NewRetailQuoteAdapter(testGuard(), srv.URL)
	_, err := a.Fetch(context.Background(), "SPY", FetchHint{})
	require.Error(t, err)
	kind, ok := errkind.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errkind.UpstreamMalformed, kind)
}
