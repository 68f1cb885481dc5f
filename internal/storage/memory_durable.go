package storage

import (
	"context"
	"sync"
	"time"

	"github.com/sawpanic/marketdataplane/internal/domain"
)

// MemoryDurableStore is an in-process DurableStore fake for unit tests,
// enforcing the same (series_key, timestamp) uniqueness and append-only
// semantics as the Postgres implementation without a live database.
type MemoryDurableStore struct {
	mu        sync.Mutex
	rows      map[domain.Category]map[string][]domain.Observation // category -> series_key -> rows
	incidents []domain.Incident
}

func NewMemoryDurableStore() *MemoryDurableStore {
	return &MemoryDurableStore{rows: make(map[domain.Category]map[string][]domain.Observation)}
}

func (m *MemoryDurableStore) Insert(ctx context.Context, category domain.Category, o domain.Observation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bySeries, ok := m.rows[category]
	if !ok {
		bySeries = make(map[string][]domain.Observation)
		m.rows[category] = bySeries
	}
	rows := bySeries[o.SeriesKey]
	for _, existing := range rows {
		if existing.Timestamp.Equal(o.Timestamp) {
			return true, nil // duplicate: keep existing
		}
	}
	bySeries[o.SeriesKey] = append(rows, o)
	return false, nil
}

func (m *MemoryDurableStore) NewestFor(ctx context.Context, category domain.Category, seriesKey string) (domain.Observation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.rows[category][seriesKey]
	if len(rows) == 0 {
		return domain.Observation{}, false, nil
	}
	newest := rows[0]
	for _, r := range rows[1:] {
		if r.Timestamp.After(newest.Timestamp) {
			newest = r
		}
	}
	return newest, true, nil
}

func (m *MemoryDurableStore) Range(ctx context.Context, category domain.Category, seriesKey string, t0, t1 time.Time) ([]domain.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Observation
	for _, r := range m.rows[category][seriesKey] {
		if !r.Timestamp.Before(t0) && !r.Timestamp.After(t1) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryDurableStore) InsertIncident(ctx context.Context, inc domain.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incidents = append(m.incidents, inc)
	return nil
}

func (m *MemoryDurableStore) ResolveIncident(ctx context.Context, incidentID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.incidents {
		if m.incidents[i].IncidentID == incidentID {
			resolved := at
			m.incidents[i].ResolvedAt = &resolved
			return nil
		}
	}
	return nil
}

func (m *MemoryDurableStore) OpenIncidentsByKind(ctx context.Context, kind domain.IncidentKind) ([]domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Incident
	for _, inc := range m.incidents {
		if inc.Kind == kind && inc.ResolvedAt == nil {
			out = append(out, inc)
		}
	}
	return out, nil
}

func (m *MemoryDurableStore) IncidentsSince(ctx context.Context, since time.Time) ([]domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Incident
	for _, inc := range m.incidents {
		if !inc.DetectedAt.Before(since) {
			out = append(out, inc)
		}
	}
	return out, nil
}
