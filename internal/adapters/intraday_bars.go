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

// IntradayBarsAdapter speaks a generic intraday-bars endpoint, key in the
// query string, that returns OHLCV bars and doubles as the fallback for
// RetailQuoteAdapter.
type IntradayBarsAdapter struct {
	guard   *adapterutil.Guard
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewIntradayBarsAdapter(guard *adapterutil.Guard, baseURL, apiKey string) *IntradayBarsAdapter {
	return &IntradayBarsAdapter{guard: guard, baseURL: baseURL, apiKey: apiKey, client: newHTTPClient()}
}

func (a *IntradayBarsAdapter) SourceID() string { return "intraday_bars" }

// CircuitState implements adapters.CircuitStater.
func (a *IntradayBarsAdapter) CircuitState() int { return a.guard.CircuitState() }

type intradayBar struct {
	Timestamp string   `json:"t"`
	Open      *float64 `json:"o"`
	High      *float64 `json:"h"`
	Low       *float64 `json:"l"`
	Close     *float64 `json:"c"`
	Volume    *float64 `json:"v"`
}

type intradayBarsPayload struct {
	Bars []intradayBar `json:"bars"`
}

func (a *IntradayBarsAdapter) Fetch(ctx context.Context, seriesKey string, hint FetchHint) ([]domain.Candidate, error) {
	n := hint.LastN
	if n <= 0 {
		n = 1
	}
	url := fmt.Sprintf("%s/bars/intraday?symbol=%s&interval=1min&limit=%d&apikey=%s", a.baseURL, seriesKey, n, a.apiKey)
	key := a.guard.CacheKey("GET", url)

	body, err := a.guard.Execute(ctx, key, func(ctx context.Context) ([]byte, error) {
		return doGET(ctx, a.client, a.SourceID(), url, nil)
	})
	if err != nil {
		return nil, err
	}

	var payload intradayBarsPayload
	if jsonErr := json.Unmarshal(body, &payload); jsonErr != nil {
		return nil, errkind.Wrap(errkind.UpstreamMalformed, a.SourceID(), "decode bars", jsonErr)
	}
	if len(payload.Bars) == 0 {
		return nil, errkind.New(errkind.UpstreamEmpty, a.SourceID(), "no bars")
	}

	out := make([]domain.Candidate, 0, len(payload.Bars))
	now := time.Now().UTC()
	for _, bar := range payload.Bars {
		ts, tsErr := time.Parse(time.RFC3339, bar.Timestamp)
		if tsErr != nil || bar.Close == nil {
			continue // partial bar: skip rather than invent
		}
		var changePct *float64
		if bar.Open != nil && *bar.Open != 0 {
			pct := (*bar.Close - *bar.Open) / *bar.Open * 100
			changePct = &pct
		}
		out = append(out, domain.Candidate{
			SeriesKey: seriesKey,
			Timestamp: ts,
			Value:     bar.Close,
			Open:      bar.Open,
			High:      bar.High,
			Low:       bar.Low,
			Close:     bar.Close,
			Volume:    bar.Volume,
			ChangePct: changePct,
			SourceID:  a.SourceID(),
			FetchTime: now,
		})
	}

	if len(out) == 0 {
		return nil, errkind.New(errkind.UpstreamMalformed, a.SourceID(), "all bars incomplete")
	}
	return out, nil
}
