package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketdataplane/internal/domain"
	"github.com/sawpanic/marketdataplane/internal/errkind"
)

func lo(v float64) *float64 { return &v }

func descriptor() domain.SeriesDescriptor {
	return domain.SeriesDescriptor{
		SeriesKey:    "SPY",
		Category:     domain.CategoryIndex,
		AdapterOrder: []string{"retail_quote"},
		MaxStaleness: time.Hour,
		SanityLo:     lo(1),
	}
}

func candidate(now time.Time, value *float64) domain.Candidate {
	return domain.Candidate{
		SeriesKey: "SPY",
		Timestamp: now,
		Value:     value,
		SourceID:  "retail_quote",
		FetchTime: now,
	}
}

// P1 — a null primary value is always rejected, bypass or not.
func TestValidate_NullValueNeverBypassed(t *testing.T) {
	d := descriptor()
	sources := KnownSourceSet{"retail_quote": true}
	now := time.Now().UTC()

	for _, opts := range []Options{{}, {SkipValidation: true}} {
		c := candidate(now, nil)
		result := Validate(c, d, sources, opts)
		require.False(t, result.Accepted)
		assert.Equal(t, errkind.NullValue, result.RejectKind)
	}
}

func TestValidate_UntrustedSourceRejected(t *testing.T) {
	d := descriptor()
	sources := KnownSourceSet{} // retail_quote not declared
	now := time.Now().UTC()
	c := candidate(now, lo(100))

	result := Validate(c, d, sources, Options{})
	require.False(t, result.Accepted)
	assert.Equal(t, errkind.UntrustedSource, result.RejectKind)
}

func TestValidate_OutOfRangeRejected(t *testing.T) {
	d := descriptor()
	sources := KnownSourceSet{"retail_quote": true}
	now := time.Now().UTC()
	c := candidate(now, lo(0)) // sanity_lo=1, zero is out of range

	result := Validate(c, d, sources, Options{})
	require.False(t, result.Accepted)
	assert.Equal(t, errkind.OutOfRange, result.RejectKind)
}

func TestValidate_BypassSkipsRangeButAccepts(t *testing.T) {
	d := descriptor()
	sources := KnownSourceSet{} // would normally fail authenticity too
	now := time.Now().UTC()
	c := candidate(now, lo(0))

	result := Validate(c, d, sources, Options{SkipValidation: true})
	require.True(t, result.Accepted)
	assert.True(t, result.Observation.ValidationFlags.Has(domain.FlagBypass))
}

func TestValidate_StaleAcceptedButFlagged(t *testing.T) {
	d := descriptor()
	sources := KnownSourceSet{"retail_quote": true}
	now := time.Now().UTC()
	old := now.Add(-2 * time.Hour)
	c := candidate(old, lo(100))
	c.FetchTime = now

	result := Validate(c, d, sources, Options{Now: now})
	require.True(t, result.Accepted)
	assert.True(t, result.Observation.ValidationFlags.Has(domain.FlagStale))
}

func TestValidate_AcceptedObservationCarriesInputFields(t *testing.T) {
	d := descriptor()
	sources := KnownSourceSet{"retail_quote": true}
	now := time.Now().UTC()
	c := candidate(now, lo(668.81))
	changePct := 1.48
	c.ChangePct = &changePct

	result := Validate(c, d, sources, Options{Now: now})
	require.True(t, result.Accepted)
	assert.Equal(t, 668.81, result.Observation.Value)
	assert.Equal(t, &changePct, result.Observation.ChangePct)
	assert.Equal(t, "retail_quote", result.Observation.SourceID)
}
