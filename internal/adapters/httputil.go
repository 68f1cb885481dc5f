package adapters

import (
	"context"
	"io"
	"net/http"

	"github.com/sawpanic/marketdataplane/internal/errkind"
)

// doGET performs a plain GET and classifies transport/HTTP failures into
// the adapter-layer error Kinds (§4.A), never returning a partially-decoded
// body alongside an error.
func doGET(ctx context.Context, client *http.Client, sourceID, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errkind.Wrap(errkind.Network, sourceID, "build request", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errkind.Wrap(errkind.Timeout, sourceID, "deadline exceeded", ctx.Err())
		}
		return nil, errkind.Wrap(errkind.Network, sourceID, "transport error", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errkind.Wrap(errkind.Network, sourceID, "read body", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errkind.New(errkind.RateLimited, sourceID, "HTTP 429")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errkind.New(errkind.AuthFailed, sourceID, "HTTP "+resp.Status)
	case resp.StatusCode == http.StatusNotFound:
		return nil, errkind.New(errkind.NotSupported, sourceID, "HTTP 404")
	case resp.StatusCode >= 500:
		return nil, errkind.New(errkind.Network, sourceID, "HTTP "+resp.Status)
	case resp.StatusCode >= 400:
		return nil, errkind.New(errkind.UpstreamMalformed, sourceID, "HTTP "+resp.Status)
	}

	if len(body) == 0 {
		return nil, errkind.New(errkind.UpstreamEmpty, sourceID, "empty body")
	}

	return body, nil
}

func ptr(v float64) *float64 { return &v }
