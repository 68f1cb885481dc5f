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

// NewsHeadlineAdapter speaks a public news-headline endpoint, key passed in
// a request header. It normalizes a batch of headlines into a single
// sentiment-score Candidate per series_key (e.g. "NEWS_SENTIMENT_SPY"),
// the same average-then-normalize pattern the narrative analytics consume.
type NewsHeadlineAdapter struct {
	guard   *adapterutil.Guard
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewNewsHeadlineAdapter(guard *adapterutil.Guard, baseURL, apiKey string) *NewsHeadlineAdapter {
	return &NewsHeadlineAdapter{guard: guard, baseURL: baseURL, apiKey: apiKey, client: newHTTPClient()}
}

func (a *NewsHeadlineAdapter) SourceID() string { return "news_headline" }

// CircuitState implements adapters.CircuitStater.
func (a *NewsHeadlineAdapter) CircuitState() int { return a.guard.CircuitState() }

type newsHeadline struct {
	Sentiment *float64 `json:"sentiment"` // normalized [-1, 1]
	Published string   `json:"published_at"`
}

type newsHeadlinesPayload struct {
	Headlines []newsHeadline `json:"headlines"`
}

func (a *NewsHeadlineAdapter) Fetch(ctx context.Context, seriesKey string, hint FetchHint) ([]domain.Candidate, error) {
	url := fmt.Sprintf("%s/news/headlines?topic=%s", a.baseURL, seriesKey)
	key := a.guard.CacheKey("GET", url)

	body, err := a.guard.Execute(ctx, key, func(ctx context.Context) ([]byte, error) {
		return doGET(ctx, a.client, a.SourceID(), url, map[string]string{"X-Api-Key": a.apiKey})
	})
	if err != nil {
		return nil, err
	}

	var payload newsHeadlinesPayload
	if jsonErr := json.Unmarshal(body, &payload); jsonErr != nil {
		return nil, errkind.Wrap(errkind.UpstreamMalformed, a.SourceID(), "decode headlines", jsonErr)
	}
	if len(payload.Headlines) == 0 {
		return nil, errkind.New(errkind.UpstreamEmpty, a.SourceID(), "no headlines")
	}

	var sum float64
	var n int
	var newest time.Time
	for _, h := range payload.Headlines {
		if h.Sentiment == nil {
			continue
		}
		sum += *h.Sentiment
		n++
		if ts, tsErr := time.Parse(time.RFC3339, h.Published); tsErr == nil && ts.After(newest) {
			newest = ts
		}
	}
	if n == 0 {
		return nil, errkind.New(errkind.UpstreamMalformed, a.SourceID(), "no headline carried a sentiment score")
	}
	if newest.IsZero() {
		newest = time.Now().UTC()
	}

	avg := sum / float64(n)
	return []domain.Candidate{{
		SeriesKey: seriesKey,
		Timestamp: newest,
		Value:     &avg,
		SourceID:  a.SourceID(),
		FetchTime: time.Now().UTC(),
	}}, nil
}
