// Package adapters implements the uniform Source Adapter contract (§4.A)
// plus one adapter per required provider family. Every adapter wraps a
// *adapterutil.Guard around a plain *http.Client, builds one
// provider-specific request, decodes one provider-specific JSON shape, and
// normalizes into []domain.Candidate — it never invents a value.
package adapters

import (
	"context"
	"net/http"
	"time"

	"github.com/sawpanic/marketdataplane/internal/domain"
)

// FetchHint tells an adapter which window of a series to return.
type FetchHint struct {
	Latest bool
	LastN  int
	From   time.Time
	To     time.Time
}

func LatestHint() FetchHint { return FetchHint{Latest: true} }

// Adapter is the contract every Source Adapter implements.
type Adapter interface {
	// SourceID identifies this adapter for rate-limit accounting, Incident
	// attribution, and Observation.SourceID tagging.
	SourceID() string

	// Fetch returns a finite (possibly empty) sequence of Candidates for
	// seriesKey. On any upstream problem it returns no candidates and a
	// non-nil *errkind.Error carrying one of the adapter-layer Kinds.
	Fetch(ctx context.Context, seriesKey string, hint FetchHint) ([]domain.Candidate, error)
}

// CircuitStater is implemented by every adapter in this package; the
// Scheduler type-asserts to it to feed the circuit_state gauge (§2.1 row I)
// without importing adapterutil itself.
type CircuitStater interface {
	CircuitState() int
}

// newHTTPClient builds the shared *http.Client each adapter uses; timeout
// is set per-call via context deadline instead of a fixed client timeout,
// so the Scheduler's per-attempt deadline (§4.B step c) is authoritative.
func newHTTPClient() *http.Client {
	return &http.Client{}
}
