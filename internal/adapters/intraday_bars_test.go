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

func TestIntradayBarsAdapter_FetchNormalizesBarsAndChangePct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bars":[
			{"t":"2025-11-25T15:00:00Z","o":100,"h":102,"l":99,"c":101,"v":5000}
		]}`))
	}))
	defer srv.Close()

	a := NewIntradayBarsAdapter(testGuard(), srv.URL, "dummy-key")
	candidates, err := a.Fetch(context.Background(), "SPY", FetchHint{LastN: 1})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, 101.0, *candidates[0].Value)
	assert.InDelta(t, 1.0, *candidates[0].ChangePct, 1e-9)
}

func TestIntradayBarsAdapter_SkipsIncompleteBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bars":[
			{"t":"2025-11-25T15:00:00Z","o":100,"h":102,"l":99},
			{"t":"2025-11-25T15:01:00Z","o":101,"h":103,"l":100,"c":102,"v":4000}
		]}`))
	}))
	defer srv.Close()

	a := NewIntradayBarsAdapter(testGuard(), srv.URL, "dummy-key")
	candidates, err := a.Fetch(context.Background(), "SPY", FetchHint{LastN: 2})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, 102.0, *candidates[0].Value)
}

func TestIntradayBarsAdapter_AllBarsIncompleteIsUpstreamMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bars":[{"t":"2025-11-25T15:00:00Z","o":100}]}`))
	}))
	defer srv.Close()

	a := NewIntradayBarsAdapter(testGuard(), srv.URL, "dummy-key")
	_, err := a.Fetch(context.Background(), "SPY", FetchHint{LastN: 1})
	require.Error(t, err)
	kind, ok := errkind.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errkind.UpstreamMalformed, kind)
}
