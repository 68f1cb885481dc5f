// Package adapterutil provides the rate-limit + circuit-breaker + response
// cache wrapper every Source Adapter shares, grounded on the teacher's
// internal/providers/guards.ProviderGuard — but built on the real
// golang.org/x/time/rate token bucket and github.com/sony/gobreaker circuit
// breaker instead of a hand-rolled state machine, since both are already
// dependencies the teacher ships.
package adapterutil

import (
	"context"
	"crypto/md5"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/sawpanic/marketdataplane/internal/domain"
	"github.com/sawpanic/marketdataplane/internal/errkind"
)

// GuardConfig parameterizes one source's Guard, derived from its
// domain.SourceDescriptor at construction time.
type GuardConfig struct {
	SourceID      string
	RatePerSecond float64
	Burst         int
	Concurrency   int
	CacheTTL      time.Duration
	FailureRatio  float64 // gobreaker trips when this fraction of requests fail
	MinRequests   uint32  // minimum requests in the rolling window before tripping
	OpenTimeout   time.Duration
}

func GuardConfigFrom(src domain.SourceDescriptor, cacheTTL time.Duration) GuardConfig {
	window := src.RateLimitWindow
	if window <= 0 {
		window = time.Second
	}
	perSecond := float64(src.RateLimitPerWindow) / window.Seconds()
	conc := src.Concurrency
	if conc <= 0 {
		conc = 1
	}
	return GuardConfig{
		SourceID:      src.SourceID,
		RatePerSecond: perSecond,
		Burst:         conc,
		Concurrency:   conc,
		CacheTTL:      cacheTTL,
		FailureRatio:  0.5,
		MinRequests:   10,
		OpenTimeout:   30 * time.Second,
	}
}

// cacheEntry is a cached fetch result, keyed by a request fingerprint.
type cacheEntry struct {
	data      []byte
	storedAt  time.Time
}

// Guard wraps one source's rate limiter, concurrency semaphore, circuit
// breaker, and short-TTL response cache. Adapters call Execute around their
// single upstream HTTP call.
type Guard struct {
	sourceID string
	limiter  *rate.Limiter
	sem      chan struct{}
	breaker  *gobreaker.CircuitBreaker
	ttl      time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

func NewGuard(cfg GuardConfig) *Guard {
	st := gobreaker.Settings{
		Name:        cfg.SourceID,
		MaxRequests: 1, // one probe request while half-open
		Interval:    0, // never reset counts except by ReadyToTrip
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
	}
	return &Guard{
		sourceID: cfg.SourceID,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		sem:      make(chan struct{}, cfg.Concurrency),
		breaker:  gobreaker.NewCircuitBreaker(st),
		ttl:      cfg.CacheTTL,
		cache:    make(map[string]cacheEntry),
	}
}

// CacheKey fingerprints a request the same way the teacher's
// Cache.GenerateCacheKey does: method+url+namespacing hashed to a fixed
// length, so adapters can share this across identical fetch_now calls
// inside one cycle.
func (g *Guard) CacheKey(parts ...string) string {
	h := md5.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%s|", p)
	}
	fmt.Fprintf(h, "source:%s", g.sourceID)
	return fmt.Sprintf("%x", h.Sum(nil))
}

func (g *Guard) getCached(key string) ([]byte, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.cache[key]
	if !ok || time.Since(e.storedAt) > g.ttl {
		return nil, false
	}
	return e.data, true
}

func (g *Guard) setCached(key string, data []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache[key] = cacheEntry{data: data, storedAt: time.Now()}
}

// Fetcher performs the actual upstream call and returns raw bytes or an
// *errkind.Error.
type Fetcher func(ctx context.Context) ([]byte, error)

// Execute runs fetch under the full guard stack: cache check, rate-limit
// check, concurrency slot, circuit breaker. An exhausted token bucket is not
// waited on: Execute returns RateLimited at once. It never retries internally —
// retry/fallback ordering across adapters is the Scheduler's job (§4.B).
func (g *Guard) Execute(ctx context.Context, cacheKey string, fetch Fetcher) ([]byte, error) {
	if cached, ok := g.getCached(cacheKey); ok {
		return cached, nil
	}

	if !g.limiter.Allow() {
		return nil, errkind.New(errkind.RateLimited, g.sourceID, "token bucket exhausted")
	}

	select {
	case g.sem <- struct{}{}:
		defer func() { <-g.sem }()
	case <-ctx.Done():
		return nil, errkind.Wrap(errkind.Timeout, g.sourceID, "concurrency slot wait", ctx.Err())
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return fetch(ctx)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, errkind.Wrap(errkind.RateLimited, g.sourceID, "circuit open", err)
		}
		return nil, err
	}

	data := result.([]byte)
	g.setCached(cacheKey, data)
	return data, nil
}

// CircuitState reports the breaker's current state as a small int for the
// Prometheus gauge (0=closed 1=open 2=half-open), matching the teacher's
// CircuitState enum ordering.
func (g *Guard) CircuitState() int {
	switch g.breaker.State() {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateOpen:
		return 1
	default:
		return 2
	}
}
