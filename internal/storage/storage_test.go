package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketdataplane/internal/domain"
)

func newTestStore() *Store {
	hot := NewMemoryHotStore()
	durable := NewMemoryDurableStore()
	return New(hot, durable, func(string) domain.Category { return domain.CategoryIndex })
}

func obsAt(ts time.Time, value float64) domain.Observation {
	return domain.Observation{SeriesKey: "SPY", Timestamp: ts, Value: value, SourceID: "retail_quote"}
}

func descriptorFor(key string) domain.SeriesDescriptor {
	return domain.SeriesDescriptor{SeriesKey: key, RefreshPeriod: 15 * time.Minute}
}

func TestStore_Write_NewerObservationBecomesLatest(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	d := descriptorFor("SPY")

	t1 := time.Now().UTC()
	_, err := store.Write(ctx, d, obsAt(t1, 100))
	require.NoError(t, err)

	t2 := t1.Add(time.Minute)
	_, err = store.Write(ctx, d, obsAt(t2, 105))
	require.NoError(t, err)

	latest, found, err := store.GetLatest(ctx, "SPY")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 105.0, latest.Value)
}

// Write path must never let an older reading overwrite a newer "latest".
func TestStore_Write_OlderObservationDoesNotOverwriteLatest(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	d := descriptorFor("SPY")

	t2 := time.Now().UTC()
	t1 := t2.Add(-time.Minute)

	_, err := store.Write(ctx, d, obsAt(t2, 105))
	require.NoError(t, err)
	_, err = store.Write(ctx, d, obsAt(t1, 100))
	require.NoError(t, err)

	latest, found, err := store.GetLatest(ctx, "SPY")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 105.0, latest.Value)
}

func TestStore_Write_StaleObservationNeverBecomesLatest(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	d := descriptorFor("SPY")

	obs := obsAt(time.Now().UTC(), 100)
	obs.ValidationFlags = domain.FlagStale

	_, err := store.Write(ctx, d, obs)
	require.NoError(t, err)

	_, found, err := store.GetLatest(ctx, "SPY")
	require.NoError(t, err)
	assert.False(t, found, "a stale-flagged write must not populate latest")
}

func TestStore_GetLatest_BackfillsFromDurableOnHotMiss(t *testing.T) {
	hot := NewMemoryHotStore()
	durable := NewMemoryDurableStore()
	store := New(hot, durable, func(string) domain.Category { return domain.CategoryIndex })
	ctx := context.Background()

	_, err := durable.Insert(ctx, domain.CategoryIndex, obsAt(time.Now().UTC(), 100))
	require.NoError(t, err)

	latest, found, err := store.GetLatest(ctx, "SPY")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 100.0, latest.Value)

	// Opportunistic backfill populated the hot key.
	raw, hit, err := hot.Get(ctx, latestKey("SPY"))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.NotEmpty(t, raw)
}

func TestStore_GetRange_ReturnsAscendingByTimestamp(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	d := descriptorFor("SPY")

	base := time.Now().UTC()
	_, err := store.Write(ctx, d, obsAt(base.Add(2*time.Minute), 102))
	require.NoError(t, err)
	_, err = store.Write(ctx, d, obsAt(base, 100))
	require.NoError(t, err)
	_, err = store.Write(ctx, d, obsAt(base.Add(time.Minute), 101))
	require.NoError(t, err)

	rows, err := store.GetRange(ctx, "SPY", base.Add(-time.Hour), base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 100.0, rows[0].Value)
	assert.Equal(t, 101.0, rows[1].Value)
	assert.Equal(t, 102.0, rows[2].Value)
}

func TestStore_Write_DuplicateInsertReportedButLatestUnaffected(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	d := descriptorFor("SPY")
	ts := time.Now().UTC()

	dup1, err := store.Write(ctx, d, obsAt(ts, 100))
	require.NoError(t, err)
	assert.False(t, dup1)

	dup2, err := store.Write(ctx, d, obsAt(ts, 999))
	require.NoError(t, err)
	assert.True(t, dup2, "re-inserting the same (series_key, timestamp) must report duplicate")

	latest, found, err := store.GetLatest(ctx, "SPY")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 100.0, latest.Value)
}
