// Package storage implements the two-tier Storage Layer (§4.D): a hot
// key/value cache in front of a durable time-series store, coordinated
// behind the narrow Store interface every other component depends on.
// Grounded on the teacher's internal/data/facade.Facade, which composes the
// same Cache/Repository seam.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sawpanic/marketdataplane/internal/domain"
)

// HotStore is the narrow key/value seam the hot tier implements — in
// production github.com/redis/go-redis/v9 (redis_hot.go), in unit tests an
// in-memory fake (no live Redis needed).
type HotStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// DurableStore is the narrow seam the relational tier implements — in
// production Postgres via sqlx (postgres_durable.go).
type DurableStore interface {
	// Insert writes one observation to its category table. If
	// (series_key, timestamp) already exists, duplicate=true is returned
	// and the existing row is left untouched (write path's "keep
	// existing" rule).
	Insert(ctx context.Context, category domain.Category, o domain.Observation) (duplicate bool, err error)
	// NewestFor returns the durable store's current newest row for
	// series_key, for hot-miss backfill.
	NewestFor(ctx context.Context, category domain.Category, seriesKey string) (domain.Observation, bool, error)
	// Range returns all rows for series_key with t0 <= timestamp <= t1, in
	// no guaranteed order; Store.GetRange sorts them ascending by timestamp.
	Range(ctx context.Context, category domain.Category, seriesKey string, t0, t1 time.Time) ([]domain.Observation, error)
	InsertIncident(ctx context.Context, inc domain.Incident) error
	ResolveIncident(ctx context.Context, incidentID string, resolvedAt time.Time) error
	OpenIncidentsByKind(ctx context.Context, kind domain.IncidentKind) ([]domain.Incident, error)
	IncidentsSince(ctx context.Context, since time.Time) ([]domain.Incident, error)
}

// Hot-store key conventions (§4.D).
func latestKey(seriesKey string) string       { return fmt.Sprintf("latest:%s", seriesKey) }
func seriesMetaKey(seriesKey string) string   { return fmt.Sprintf("series:meta:%s", seriesKey) }
func cycleLastKey() string                    { return "cycle:last" }
func correlationsKey(window string) string    { return fmt.Sprintf("correlations:%s", window) }

const (
	minLatestTTL    = 15 * time.Minute
	cycleReportTTL  = time.Hour
	correlationsTTL = time.Hour
)

// Store is the single façade every other component (Scheduler, Gateway,
// Monitor) depends on. It owns the per-series write mutex striping and the
// hot/durable consistency rules.
type Store struct {
	hot     HotStore
	durable DurableStore
	codec   Codec

	seriesLocks   sync.Map // series_key -> *sync.Mutex, striped per series per §5
	categoryOf    func(seriesKey string) domain.Category
}

// CategoryResolver maps a series_key to the category table it belongs in.
type CategoryResolver func(seriesKey string) domain.Category

func New(hot HotStore, durable DurableStore, categoryOf CategoryResolver) *Store {
	return &Store{hot: hot, durable: durable, codec: jsonCodec{}, categoryOf: categoryOf}
}

func (s *Store) lockFor(seriesKey string) *sync.Mutex {
	v, _ := s.seriesLocks.LoadOrStore(seriesKey, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Write implements §4.D's write path: durable store first (insert-or-keep),
// then hot store's latest pointer iff strictly newer. Serialized per
// series_key for the duration of the whole operation (§5).
func (s *Store) Write(ctx context.Context, d domain.SeriesDescriptor, o domain.Observation) (duplicate bool, err error) {
	mu := s.lockFor(o.SeriesKey)
	mu.Lock()
	defer mu.Unlock()

	category := s.categoryOf(o.SeriesKey)

	duplicate, err = s.durable.Insert(ctx, category, o)
	if err != nil {
		return false, fmt.Errorf("storage: durable insert: %w", err)
	}

	if o.ValidationFlags.Has(domain.FlagStale) {
		// Stale observations append to the time-series table but never
		// become "latest" (§4.C rule 5).
		return duplicate, nil
	}

	current, hasCurrent, err := s.getLatestRaw(ctx, o.SeriesKey)
	if err != nil {
		return duplicate, fmt.Errorf("storage: read current latest: %w", err)
	}
	if hasCurrent && !o.Timestamp.After(current.Timestamp) {
		return duplicate, nil
	}

	ttl := 2 * d.RefreshPeriod
	if ttl < minLatestTTL {
		ttl = minLatestTTL
	}
	encoded, err := s.codec.EncodeObservation(o)
	if err != nil {
		return duplicate, fmt.Errorf("storage: encode observation: %w", err)
	}
	if err := s.hot.Set(ctx, latestKey(o.SeriesKey), encoded, ttl); err != nil {
		return duplicate, fmt.Errorf("storage: hot set: %w", err)
	}
	return duplicate, nil
}

func (s *Store) getLatestRaw(ctx context.Context, seriesKey string) (domain.Observation, bool, error) {
	raw, ok, err := s.hot.Get(ctx, latestKey(seriesKey))
	if err != nil {
		return domain.Observation{}, false, err
	}
	if ok {
		obs, decodeErr := s.codec.DecodeObservation(raw)
		if decodeErr == nil {
			return obs, true, nil
		}
		// Corrupted cache entry: fall through to durable backfill.
	}

	category := s.categoryOf(seriesKey)
	obs, found, err := s.durable.NewestFor(ctx, category, seriesKey)
	if err != nil || !found {
		return domain.Observation{}, false, err
	}
	if obs.ValidationFlags.Has(domain.FlagStale) {
		// Stale rows never serve as latest: use the newest non-stale row.
		rows, rangeErr := s.durable.Range(ctx, category, seriesKey, time.Time{}, obs.Timestamp)
		if rangeErr != nil {
			return domain.Observation{}, false, rangeErr
		}
		found = false
		for _, r := range rows {
			if !r.ValidationFlags.Has(domain.FlagStale) && (!found || r.Timestamp.After(obs.Timestamp)) {
				obs, found = r, true
			}
		}
		return obs, found, nil
	}
	return obs, true, nil
}

// GetLatest implements the read path (§4.D): prefer hot, backfill from
// durable on miss, and reconcile by timestamp if both are consulted —
// whichever has the greater timestamp wins (§4.D consistency rule).
func (s *Store) GetLatest(ctx context.Context, seriesKey string) (domain.Observation, bool, error) {
	obs, found, err := s.getLatestRaw(ctx, seriesKey)
	if err != nil || !found {
		return domain.Observation{}, false, err
	}

	// Opportunistic backfill of the hot key when it was missing but the
	// durable store had a row, so the next read is O(1) again.
	raw, hit, getErr := s.hot.Get(ctx, latestKey(seriesKey))
	if getErr == nil && !hit {
		if encoded, encErr := s.codec.EncodeObservation(obs); encErr == nil {
			_ = s.hot.Set(ctx, latestKey(seriesKey), encoded, minLatestTTL)
		}
	} else if getErr == nil && hit {
		if hotObs, decErr := s.codec.DecodeObservation(raw); decErr == nil && hotObs.Timestamp.After(obs.Timestamp) {
			obs = hotObs
		}
	}

	return obs, true, nil
}

func (s *Store) GetRange(ctx context.Context, seriesKey string, t0, t1 time.Time) ([]domain.Observation, error) {
	category := s.categoryOf(seriesKey)
	rows, err := s.durable.Range(ctx, category, seriesKey, t0, t1)
	if err != nil {
		return nil, fmt.Errorf("storage: range: %w", err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })
	return rows, nil
}

func (s *Store) PutSeriesMeta(ctx context.Context, d domain.SeriesDescriptor) error {
	encoded, err := s.codec.EncodeSeriesDescriptor(d)
	if err != nil {
		return err
	}
	return s.hot.Set(ctx, seriesMetaKey(d.SeriesKey), encoded, 0)
}

func (s *Store) PutCycleReport(ctx context.Context, r domain.CycleReport) error {
	encoded, err := s.codec.EncodeCycleReport(r)
	if err != nil {
		return err
	}
	return s.hot.Set(ctx, cycleLastKey(), encoded, cycleReportTTL)
}

func (s *Store) GetCycleReport(ctx context.Context) (domain.CycleReport, bool, error) {
	raw, ok, err := s.hot.Get(ctx, cycleLastKey())
	if err != nil || !ok {
		return domain.CycleReport{}, false, err
	}
	r, err := s.codec.DecodeCycleReport(raw)
	return r, err == nil, err
}

func (s *Store) PutCorrelationSnapshot(ctx context.Context, snap domain.CorrelationSnapshot) error {
	encoded, err := s.codec.EncodeCorrelationSnapshot(snap)
	if err != nil {
		return err
	}
	return s.hot.Set(ctx, correlationsKey(snap.Window), encoded, correlationsTTL)
}

func (s *Store) GetCorrelationSnapshot(ctx context.Context, window string) (domain.CorrelationSnapshot, bool, error) {
	raw, ok, err := s.hot.Get(ctx, correlationsKey(window))
	if err != nil || !ok {
		return domain.CorrelationSnapshot{}, false, err
	}
	snap, err := s.codec.DecodeCorrelationSnapshot(raw)
	return snap, err == nil, err
}

func (s *Store) RecordIncident(ctx context.Context, inc domain.Incident) error {
	return s.durable.InsertIncident(ctx, inc)
}

func (s *Store) ResolveIncident(ctx context.Context, incidentID string, at time.Time) error {
	return s.durable.ResolveIncident(ctx, incidentID, at)
}

func (s *Store) OpenIncidentsByKind(ctx context.Context, kind domain.IncidentKind) ([]domain.Incident, error) {
	return s.durable.OpenIncidentsByKind(ctx, kind)
}

func (s *Store) GetIncidentsSince(ctx context.Context, since time.Time) ([]domain.Incident, error) {
	return s.durable.IncidentsSince(ctx, since)
}
