package scheduler

import (
	"context"
	"time"

	"github.com/sawpanic/marketdataplane/internal/domain"
)

// FetchRequester is the narrow capability the Scheduler publishes and the
// Read Gateway consumes for on-demand fetches. It exists to break the
// cyclic reference the source had between its gateway and scheduler (§9):
// the Scheduler never imports or references the gateway package, and the
// gateway depends only on this interface, not on *Scheduler directly.
type FetchRequester interface {
	FetchNow(ctx context.Context, seriesKey string, deadline time.Duration) (domain.Observation, error)
}

var _ FetchRequester = (*Scheduler)(nil)
