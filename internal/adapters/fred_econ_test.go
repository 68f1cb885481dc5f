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

func TestFREDEconAdapter_FetchTakesNewestObservation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"observations":[{"date":"2025-11-20","value":"4.06"}]}`))
	}))
	defer srv.Close()

	a := NewFREDEconAdapter(testGuard(), srv.URL, "dummy-key")
	candidates, err := a.Fetch(context.Background(), "DGS10", FetchHint{})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, 4.06, *candidates[0].Value)
}

// FRED encodes a missing reading as the literal string "." — this must
// never be parsed as a zero value.
func TestFREDEconAdapter_PlaceholderDotIsUpstreamEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"observations":[{"date":"2025-11-20","value":"."}]}`))
	}))
	defer srv.Close()

	a := NewFREDEconAdapter(testGuard(), srv.URL, "dummy-key")
	_, err := a.Fetch(context.Background(), "DGS10", FetchHint{})
	require.Error(t, err)
	kind, ok := errkind.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errkind.UpstreamEmpty, kind)
}

func TestFREDEconAdapter_NoObservationsIsUpstreamEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"observations":[]}`))
	}))
	defer srv.Close()

	a := NewFREDEconAdapter(testGuard(), srv.URL, "dummy-key")
	_, err := a.Fetch(context.Background(), "DGS10", FetchHint{})
	require.Error(t, err)
	kind, ok := errkind.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errkind.UpstreamEmpty, kind)
}
