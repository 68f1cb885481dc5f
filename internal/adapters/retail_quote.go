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

// RetailQuoteAdapter speaks a public, no-key retail-quote endpoint for
// equities, ETFs, and indices. Grounded on the teacher's BinanceAdapter
// shape: one Guard, one base URL, one JSON decode per call.
type RetailQuoteAdapter struct {
	guard   *adapterutil.Guard
	baseURL string
	client  *http.Client
}

func NewRetailQuoteAdapter(guard *adapterutil.Guard, baseURL string) *RetailQuoteAdapter {
	return &RetailQuoteAdapter{guard: guard, baseURL: baseURL, client: newHTTPClient()}
}

func (a *RetailQuoteAdapter) SourceID() string { return "retail_quote" }

// CircuitState implements adapters.CircuitStater.
func (a *RetailQuoteAdapter) CircuitState() int { return a.guard.CircuitState() }

type retailQuotePayload struct {
	Symbol     string  `json:"symbol"`
	Timestamp  string  `json:"timestamp"`
	Close      *float64 `json:"close"`
	ChangePct  *float64 `json:"change_pct"`
}

func (a *RetailQuoteAdapter) Fetch(ctx context.Context, seriesKey string, hint FetchHint) ([]domain.Candidate, error) {
	url := fmt.Sprintf("%s/quote?symbol=%s", a.baseURL, seriesKey)
	key := a.guard.CacheKey("GET", url)

	body, err := a.guard.Execute(ctx, key, func(ctx context.Context) ([]byte, error) {
		return doGET(ctx, a.client, a.SourceID(), url, map[string]string{"Accept": "application/json"})
	})
	if err != nil {
		return nil, err
	}

	var payload retailQuotePayload
	if jsonErr := json.Unmarshal(body, &payload); jsonErr != nil {
		return nil, errkind.Wrap(errkind.UpstreamMalformed, a.SourceID(), "decode quote", jsonErr)
	}

	ts, tsErr := time.Parse(time.RFC3339, payload.Timestamp)
	if tsErr != nil || payload.Close == nil {
		return nil, errkind.New(errkind.UpstreamEmpty, a.SourceID(), "missing timestamp or close")
	}

	return []domain.Candidate{{
		SeriesKey: seriesKey,
		Timestamp: ts,
		Value:     payload.Close,
		Close:     payload.Close,
		ChangePct: payload.ChangePct,
		SourceID:  a.SourceID(),
		FetchTime: time.Now().UTC(),
	}}, nil
}
