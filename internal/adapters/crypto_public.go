package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sawpanic/marketdataplane/internal/adapterutil"
	"github.com/sawpanic/marketdataplane/internal/domain"
	"github.com/sawpanic/marketdataplane/internal/errkind"
)

// CryptoPublicAdapter speaks a public, no-key crypto market-data endpoint.
// Grounded on the teacher's public-ticker adapters (binance.go,
// coinbase.go): one guard, one base URL, one ticker shape.
type CryptoPublicAdapter struct {
	guard   *adapterutil.Guard
	baseURL string
	client  *http.Client
}

func NewCryptoPublicAdapter(guard *adapterutil.Guard, baseURL string) *CryptoPublicAdapter {
	return &CryptoPublicAdapter{guard: guard, baseURL: baseURL, client: newHTTPClient()}
}

func (a *CryptoPublicAdapter) SourceID() string { return "crypto_public" }

// CircuitState implements adapters.CircuitStater.
func (a *CryptoPublicAdapter) CircuitState() int { return a.guard.CircuitState() }

type cryptoTickerPayload struct {
	Symbol    string   `json:"symbol"`
	Price     *float64 `json:"price"`
	Volume24h *float64 `json:"volume_24h"`
	Timestamp int64    `json:"timestamp_ms"`
}

func (a *CryptoPublicAdapter) Fetch(ctx context.Context, seriesKey string, hint FetchHint) ([]domain.Candidate, error) {
	url := fmt.Sprintf("%s/ticker?symbol=%s", a.baseURL, seriesKey)
	key := a.guard.CacheKey("GET", url)

	body, err := a.guard.Execute(ctx, key, func(ctx context.Context) ([]byte, error) {
		return doGET(ctx, a.client, a.SourceID(), url, map[string]string{"Accept": "application/json"})
	})
	if err != nil {
		return nil, err
	}

	var payload cryptoTickerPayload
	if jsonErr := json.Unmarshal(body, &payload); jsonErr != nil {
		return nil, errkind.Wrap(errkind.UpstreamMalformed, a.SourceID(), "decode ticker", jsonErr)
	}
	if payload.Price == nil || payload.Timestamp == 0 {
		return nil, errkind.New(errkind.UpstreamEmpty, a.SourceID(), "missing price or timestamp")
	}

	return []domain.Candidate{{
		SeriesKey: seriesKey,
		Timestamp: time.UnixMilli(payload.Timestamp).UTC(),
		Value:     payload.Price,
		Close:     payload.Price,
		Volume:    payload.Volume24h,
		SourceID:  a.SourceID(),
		FetchTime: time.Now().UTC(),
	}}, nil
}
