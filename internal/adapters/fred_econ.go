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

// FREDEconAdapter speaks a FRED-style economic-series endpoint that takes
// its API key as a query-string parameter.
type FREDEconAdapter struct {
	guard   *adapterutil.Guard
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewFREDEconAdapter(guard *adapterutil.Guard, baseURL, apiKey string) *FREDEconAdapter {
	return &FREDEconAdapter{guard: guard, baseURL: baseURL, apiKey: apiKey, client: newHTTPClient()}
}

func (a *FREDEconAdapter) SourceID() string { return "fred_econ" }

// CircuitState implements adapters.CircuitStater.
func (a *FREDEconAdapter) CircuitState() int { return a.guard.CircuitState() }

type fredObservation struct {
	Date  string `json:"date"`
	Value string `json:"value"` // FRED encodes missing data as the literal string "."
}

type fredSeriesPayload struct {
	Observations []fredObservation `json:"observations"`
}

func (a *FREDEconAdapter) Fetch(ctx context.Context, seriesKey string, hint FetchHint) ([]domain.Candidate, error) {
	url := fmt.Sprintf("%s/fred/series/observations?series_id=%s&api_key=%s&file_type=json&sort_order=desc&limit=1",
		a.baseURL, seriesKey, a.apiKey)
	key := a.guard.CacheKey("GET", url)

	body, err := a.guard.Execute(ctx, key, func(ctx context.Context) ([]byte, error) {
		return doGET(ctx, a.client, a.SourceID(), url, nil)
	})
	if err != nil {
		return nil, err
	}

	var payload fredSeriesPayload
	if jsonErr := json.Unmarshal(body, &payload); jsonErr != nil {
		return nil, errkind.Wrap(errkind.UpstreamMalformed, a.SourceID(), "decode fred series", jsonErr)
	}
	if len(payload.Observations) == 0 {
		return nil, errkind.New(errkind.UpstreamEmpty, a.SourceID(), "no observations")
	}

	latest := payload.Observations[0]
	ts, tsErr := time.Parse("2006-01-02", latest.Date)
	if tsErr != nil {
		return nil, errkind.Wrap(errkind.UpstreamMalformed, a.SourceID(), "parse date", tsErr)
	}

	// FRED's own placeholder for a missing reading is the string ".": the
	// adapter must surface that as no value, never as a parsed zero.
	if latest.Value == "." {
		return nil, errkind.New(errkind.UpstreamEmpty, a.SourceID(), "FRED placeholder \".\"")
	}

	var v float64
	if _, scanErr := fmt.Sscanf(latest.Value, "%f", &v); scanErr != nil {
		return nil, errkind.Wrap(errkind.UpstreamMalformed, a.SourceID(), "parse value", scanErr)
	}

	return []domain.Candidate{{
		SeriesKey: seriesKey,
		Timestamp: ts,
		Value:     &v,
		SourceID:  a.SourceID(),
		FetchTime: time.Now().UTC(),
	}}, nil
}
