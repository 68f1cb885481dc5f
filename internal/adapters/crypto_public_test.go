package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketdataplane/internal/errkind"
)

func TestCryptoPublicAdapter_FetchNormalizesTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"BTCUSD","price":68123.45,"volume_24h":12345.6,"timestamp_ms":1764086400000}`))
	}))
	defer srv.Close()

	a := NewCryptoPublicAdapter(testGuard(), srv.URL)
	candidates, err := a.Fetch(context.Background(), "BTCUSD", FetchHint{})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, 68123.45, *candidates[0].Value)
	assert.Equal(t, 12345.6, *candidates[0].Volume)
	assert.Equal(t, time.UnixMilli(1764086400000).UTC(), candidates[0].Timestamp)
}

func TestCryptoPublicAdapter_ZeroTimestampIsUpstreamEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"BTCUSD","price":68123.45,"timestamp_ms":0}`))
	}))
	defer srv.Close()

	a := NewCryptoPublicAdapter(testGuard(), srv.URL)
	_, err := a.Fetch(context.Background(), "BTCUSD", FetchHint{})
	require.Error(t, err)
	kind, ok := errkind.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errkind.UpstreamEmpty, kind)
}

func TestCryptoPublicAdapter_ServerErrorClassifiesAsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewCryptoPublicAdapter(testGuard(), srv.URL)
	_, err := a.Fetch(context.Background(), "BTCUSD", FetchHint{})
	require.Error(t, err)
	kind, ok := errkind.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errkind.Network, kind)
}
