package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sawpanic/marketdataplane/internal/adapterutil"
	"github.com/sawpanic/marketdataplane/internal/domain"
	"github.com/sawpanic/marketdataplane/internal/errkind"
)

// ForexRateAdapter speaks a generic forex-rate endpoint. seriesKey is
// expected in "BASE-QUOTE" form (e.g. "EUR-USD").
type ForexRateAdapter struct {
	guard   *adapterutil.Guard
	baseURL string
	client  *http.Client
}

func NewForexRateAdapter(guard *adapterutil.Guard, baseURL string) *ForexRateAdapter {
	return &ForexRateAdapter{guard: guard, baseURL: baseURL, client: newHTTPClient()}
}

func (a *ForexRateAdapter) SourceID() string { return "forex_rate" }

// CircuitState implements adapters.CircuitStater.
func (a *ForexRateAdapter) CircuitState() int { return a.guard.CircuitState() }

type forexPayload struct {
	Rate *float64 `json:"rate"`
	Time string   `json:"time"`
}

func (a *ForexRateAdapter) Fetch(ctx context.Context, seriesKey string, hint FetchHint) ([]domain.Candidate, error) {
	parts := strings.SplitN(seriesKey, "-", 2)
	if len(parts) != 2 {
		return nil, errkind.New(errkind.NotSupported, a.SourceID(), "series_key is not a BASE-QUOTE pair")
	}
	base, quote := parts[0], parts[1]

	url := fmt.Sprintf("%s/fx/rate?base=%s&quote=%s", a.baseURL, base, quote)
	key := a.guard.CacheKey("GET", url)

	body, err := a.guard.Execute(ctx, key, func(ctx context.Context) ([]byte, error) {
		return doGET(ctx, a.client, a.SourceID(), url, nil)
	})
	if err != nil {
		return nil, err
	}

	var payload forexPayload
	if jsonErr := json.Unmarshal(body, &payload); jsonErr != nil {
		return nil, errkind.Wrap(errkind.UpstreamMalformed, a.SourceID(), "decode fx rate", jsonErr)
	}
	if payload.Rate == nil {
		return nil, errkind.New(errkind.UpstreamEmpty, a.SourceID(), "missing rate")
	}

	ts, tsErr := time.Parse(time.RFC3339, payload.Time)
	if tsErr != nil {
		ts = time.Now().UTC()
	}

	return []domain.Candidate{{
		SeriesKey: seriesKey,
		Timestamp: ts,
		Value:     payload.Rate,
		SourceID:  a.SourceID(),
		FetchTime: time.Now().UTC(),
	}}, nil
}
