// Package scheduler implements the Fetch Scheduler (§4.B): it drives
// periodic refresh cycles and on-demand fetches, enforcing per-source rate
// limits, concurrency, fallback ordering, and cycle-boundary synchronization.
// Grounded on the teacher's internal/scheduler (YAML-driven job loop) and
// internal/providers/runtime/fallback_chains.go (ordered fallback walk,
// cache-first, stats bookkeeping) — adapted so "success" means "the
// Validator accepted it", not merely "HTTP 200".
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sawpanic/marketdataplane/internal/adapters"
	"github.com/sawpanic/marketdataplane/internal/config"
	"github.com/sawpanic/marketdataplane/internal/domain"
	"github.com/sawpanic/marketdataplane/internal/errkind"
	"github.com/sawpanic/marketdataplane/internal/platform"
	"github.com/sawpanic/marketdataplane/internal/storage"
	"github.com/sawpanic/marketdataplane/internal/validate"
)

const (
	maxShortenedAttempts = 3
	shortenedRetryFloor  = 60 * time.Second
)

// seriesRetryState tracks the per-series consecutive-failure bookkeeping
// behind the CRITICAL-series backoff exception (§4.B Retry policy).
type seriesRetryState struct {
	nextDue            time.Time
	consecutiveFails   int
	shortenedAttempts  int
}

// Scheduler is the single writer to Storage (§5); the gateway only reaches
// it through FetchNow, never by writing directly.
type Scheduler struct {
	ctx      *platform.SystemContext
	catalog  *config.Catalog
	adapters map[string]adapters.Adapter // keyed by source_id
	store    *storage.Store

	mu          sync.Mutex
	retryState  map[string]*seriesRetryState // keyed by series_key

	workQueue chan struct{} // bounded task-queue depth tracker for backpressure
}

func New(sysctx *platform.SystemContext, catalog *config.Catalog, adapterSet map[string]adapters.Adapter, store *storage.Store) *Scheduler {
	highWater := 2 * catalog.Runtime.WorkerPoolSize * len(catalog.SeriesOrder)
	if highWater <= 0 {
		highWater = 1
	}
	return &Scheduler{
		ctx:        sysctx,
		catalog:    catalog,
		adapters:   adapterSet,
		store:      store,
		retryState: make(map[string]*seriesRetryState),
		workQueue:  make(chan struct{}, highWater),
	}
}

func (s *Scheduler) log() *zerolog.Logger { return &s.ctx.Log }

func (s *Scheduler) stateFor(seriesKey string) *seriesRetryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.retryState[seriesKey]
	if !ok {
		st = &seriesRetryState{}
		s.retryState[seriesKey] = st
	}
	return st
}

// isDue reports whether seriesKey's next scheduled attempt has passed.
func (s *Scheduler) isDue(d domain.SeriesDescriptor, now time.Time) bool {
	st := s.stateFor(d.SeriesKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	return st.nextDue.IsZero() || !now.Before(st.nextDue)
}

// scheduleNext applies §4.B's retry policy: normal failures wait a full
// refresh_period; a CRITICAL series with 2+ consecutive fails shortens its
// next attempt to min(refresh_period, 60s) for up to 3 attempts, then backs
// off to the normal period again.
func (s *Scheduler) scheduleNext(d domain.SeriesDescriptor, now time.Time, ok bool) {
	st := s.stateFor(d.SeriesKey)
	s.mu.Lock()
	defer s.mu.Unlock()

	if ok {
		st.consecutiveFails = 0
		st.shortenedAttempts = 0
		st.nextDue = now.Add(d.RefreshPeriod)
		return
	}

	st.consecutiveFails++
	if d.Critical && st.consecutiveFails >= 2 && st.shortenedAttempts < maxShortenedAttempts {
		st.shortenedAttempts++
		period := d.RefreshPeriod
		if shortenedRetryFloor < period {
			period = shortenedRetryFloor
		}
		st.nextDue = now.Add(period)
		return
	}
	st.nextDue = now.Add(d.RefreshPeriod)
}

// RunCycle implements run_cycle(category_filter?) -> CycleReport (§4.B).
// Cycle N's writes are fully visible before cycle N+1 begins because this
// call blocks until every due series either completes or is cancelled by
// the cycle deadline (§5).
func (s *Scheduler) RunCycle(ctx context.Context, categoryFilter *domain.Category) (domain.CycleReport, error) {
	start := time.Now().UTC()
	deadline := start.Add(s.catalog.Runtime.CycleBudget)
	cycleCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	report := domain.CycleReport{
		Start:    start,
		Attempts: make(map[string]domain.SeriesAttemptResult),
		Bypass:   s.catalog.Runtime.SkipValidation,
	}

	type job struct {
		key string
		d   domain.SeriesDescriptor
	}
	var due []job
	now := time.Now().UTC()
	for _, key := range s.catalog.SeriesOrder {
		d := s.catalog.Series[key]
		if categoryFilter != nil && d.Category != *categoryFilter {
			continue
		}
		if !s.isDue(d, now) {
			continue
		}
		due = append(due, job{key: key, d: d})
	}

	poolSize := s.catalog.Runtime.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 1
	}
	jobsCh := make(chan job, len(due))
	for _, j := range due {
		jobsCh <- j
	}
	close(jobsCh)

	var mu sync.Mutex
	var wg sync.WaitGroup
	criticalOK := true

	worker := func() {
		defer wg.Done()
		for j := range jobsCh {
			result, incomplete := s.attemptSeries(cycleCtx, j.d)

			mu.Lock()
			report.Attempts[j.key] = result
			if result == domain.AttemptFail {
				report.FailedSeries = append(report.FailedSeries, j.key)
				if j.d.Critical {
					criticalOK = false
				}
			}
			if incomplete {
				report.Incomplete = append(report.Incomplete, j.key)
			}
			mu.Unlock()

			s.scheduleNext(j.d, time.Now().UTC(), result != domain.AttemptFail)
			s.ctx.Metrics.SeriesAttempts.WithLabelValues(j.key, string(result)).Inc()
		}
	}

	wg.Add(poolSize)
	for i := 0; i < poolSize; i++ {
		go worker()
	}
	wg.Wait()

	report.End = time.Now().UTC()
	report.CriticalOK = criticalOK
	total := len(report.Attempts)
	ok := 0
	for _, r := range report.Attempts {
		if r == domain.AttemptOK || r == domain.AttemptFallbackOK {
			ok++
		}
	}
	if total > 0 {
		report.SuccessRate = float64(ok) / float64(total)
	} else {
		report.SuccessRate = 1.0
	}

	outcome := "ok"
	if report.SuccessRate < s.catalog.Runtime.SuccessThreshold {
		outcome = "degraded"
	}
	s.ctx.Metrics.CyclesTotal.WithLabelValues(outcome).Inc()

	if err := s.store.PutCycleReport(ctx, report); err != nil {
		s.log().Warn().Err(err).Msg("failed to persist cycle report")
	}

	return report, nil
}

// attemptSeries implements the single-series algorithm (§4.B steps 1-3).
func (s *Scheduler) attemptSeries(ctx context.Context, d domain.SeriesDescriptor) (domain.SeriesAttemptResult, bool) {
	sources := s.catalog.SourcesFor(d)

	for i, src := range sources {
		select {
		case <-ctx.Done():
			return domain.AttemptFail, true
		default:
		}

		adapter, ok := s.adapters[src.SourceID]
		if !ok {
			continue
		}

		attemptDeadline := src.Timeout
		if remaining := time.Until(deadlineOf(ctx)); remaining < attemptDeadline {
			attemptDeadline = remaining
		}
		attemptCtx, cancel := context.WithTimeout(ctx, attemptDeadline)
		candidates, err := adapter.Fetch(attemptCtx, d.SeriesKey, adapters.LatestHint())
		cancel()

		if cs, ok := adapter.(adapters.CircuitStater); ok {
			s.ctx.Metrics.CircuitState.WithLabelValues(src.SourceID).Set(float64(cs.CircuitState()))
		}

		if err != nil {
			kind, _ := errkind.KindOf(err)
			if !kind.RetryableSkip() {
				s.recordIncident(ctx, domain.IncidentFetchFail, &d.SeriesKey, &src.SourceID, err.Error())
			}
			continue
		}

		accepted := s.validateAndStore(ctx, d, candidates)
		if accepted {
			if i == 0 {
				return domain.AttemptOK, false
			}
			return domain.AttemptFallbackOK, false
		}
		s.recordIncident(ctx, domain.IncidentValidationFail, &d.SeriesKey, &src.SourceID, "validator rejected all candidates from this adapter")
	}

	return domain.AttemptFail, false
}

// validateAndStore runs every candidate through the Validator and writes
// every accepted one to Storage, in timestamp order (§4.B ordering
// guarantee). Returns true iff at least one candidate was accepted.
func (s *Scheduler) validateAndStore(ctx context.Context, d domain.SeriesDescriptor, candidates []domain.Candidate) bool {
	sourceSet := make(validate.KnownSourceSet, len(s.catalog.Sources))
	for id := range s.catalog.Sources {
		sourceSet[id] = true
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Timestamp.Before(candidates[j].Timestamp)
	})

	accepted := false
	for _, c := range candidates {
		result := validate.Validate(c, d, sourceSet, validate.Options{SkipValidation: s.catalog.Runtime.SkipValidation})
		if !result.Accepted {
			s.ctx.Metrics.ValidatorRejects.WithLabelValues(string(result.RejectKind)).Inc()
			s.recordIncident(ctx, domain.IncidentValidationFail, &d.SeriesKey, &c.SourceID,
				fmt.Sprintf("%s: %s", result.RejectKind, result.Detail))
			continue
		}

		// Storage write failures get one retry before the observation is
		// dropped and an Incident recorded (§7).
		_, writeErr := s.store.Write(ctx, d, result.Observation)
		if writeErr != nil {
			_, writeErr = s.store.Write(ctx, d, result.Observation)
		}
		if writeErr != nil {
			s.recordIncident(ctx, domain.IncidentFetchFail, &d.SeriesKey, &c.SourceID, "storage write failed after retry: "+writeErr.Error())
			continue
		}
		accepted = true
	}
	return accepted
}

func (s *Scheduler) recordIncident(ctx context.Context, kind domain.IncidentKind, seriesKey, sourceID *string, detail string) {
	inc := domain.Incident{
		IncidentID: uuid.NewString(),
		SeriesKey:  seriesKey,
		SourceID:   sourceID,
		Kind:       kind,
		DetectedAt: time.Now().UTC(),
		Detail:     detail,
	}
	if err := s.store.RecordIncident(ctx, inc); err != nil {
		s.log().Warn().Err(err).Msg("failed to record incident")
	}
	s.ctx.Metrics.IncidentsTotal.WithLabelValues(string(kind)).Inc()
}

// FetchNow implements fetch_now(series_key, deadline) -> ObservationOrError
// (§4.B): synchronous, respects rate limits, serves the Read Gateway's
// cache-miss path. Backpressure: if the queue is already at its high-water
// mark, return SERVICE_BUSY immediately rather than queueing (§5).
func (s *Scheduler) FetchNow(ctx context.Context, seriesKey string, deadline time.Duration) (domain.Observation, error) {
	select {
	case s.workQueue <- struct{}{}:
		defer func() { <-s.workQueue }()
	default:
		return domain.Observation{}, errkind.New(errkind.ServiceBusy, "scheduler", "task queue at high-water mark")
	}

	d, ok := s.catalog.Series[seriesKey]
	if !ok {
		return domain.Observation{}, errkind.New(errkind.UnknownSeries, "scheduler", seriesKey)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	if s.attemptSeriesSync(fetchCtx, d) {
		obs, found, err := s.store.GetLatest(ctx, seriesKey)
		if err == nil && found {
			return obs, nil
		}
	}

	if fetchCtx.Err() != nil {
		return domain.Observation{}, errkind.New(errkind.Unavailable, "scheduler", "deadline exceeded")
	}
	return domain.Observation{}, errkind.New(errkind.Unavailable, "scheduler", "no adapter produced an accepted observation")
}

// attemptSeriesSync mirrors attemptSeries but is deadline-bound by the
// caller's fetchCtx rather than the cycle budget, and does not touch the
// scheduler's retry-state bookkeeping (fetch_now is out-of-band, §4.B).
func (s *Scheduler) attemptSeriesSync(ctx context.Context, d domain.SeriesDescriptor) bool {
	result, _ := s.attemptSeries(ctx, d)
	return result == domain.AttemptOK || result == domain.AttemptFallbackOK
}

// deadlineOf returns ctx's deadline, or a far-future time if none is set.
func deadlineOf(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	return time.Now().Add(time.Hour)
}
