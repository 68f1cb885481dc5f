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

func TestForexRateAdapter_FetchNormalizesRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rate":1.0543,"time":"2025-11-25T15:00:00Z"}`))
	}))
	defer srv.Close()

	a := NewForexRateAdapter(testGuard(), srv.URL)
	candidates, err := a.Fetch(context.Background(), "EUR-USD", FetchHint{})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, 1.0543, *candidates[0].Value)
}

func TestForexRateAdapter_MalformedSeriesKeyIsNotSupported(t *testing.T) {
	a := NewForexRateAdapter(testGuard(), "http://unused")
	_, err := a.Fetch(context.Background(), "EURUSD", FetchHint{})
	require.Error(t, err)
	kind, ok := errkind.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errkind.NotSupported, kind)
}

func TestForexRateAdapter_MissingRateIsUpstreamEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"time":"2025-11-25T15:00:00Z"}`))
	}))
	defer srv.Close()

	a := NewForexRateAdapter(testGuard(), srv.URL)
	_, err := a.Fetch(context.Background(), "EUR-USD", FetchHint{})
	require.Error(t, err)
	kind, ok := errkind.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errkind.UpstreamEmpty, kind)
}
