package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyNarrative_RiskOnWhenBasketRises(t *testing.T) {
	result := ClassifyNarrative([]NarrativeInput{
		{SeriesKey: "SPY", ChangePct: 2.0},
		{SeriesKey: "GLD", ChangePct: 1.5},
	})
	assert.Equal(t, RegimeRiskOn, result.Regime)
	assert.Contains(t, result.Inputs, "SPY")
}

func TestClassifyNarrative_RiskOffWhenBasketFalls(t *testing.T) {
	result := ClassifyNarrative([]NarrativeInput{
		{SeriesKey: "SPY", ChangePct: -3.0},
		{SeriesKey: "GLD", ChangePct: -2.0},
	})
	assert.Equal(t, RegimeRiskOff, result.Regime)
}

func TestClassifyNarrative_EmptyInputsIsTransition(t *testing.T) {
	result := ClassifyNarrative(nil)
	assert.Equal(t, RegimeTransition, result.Regime)
	assert.Equal(t, 0.0, result.Confidence)
}

func TestClassifyNarrative_ConfidenceAlwaysInUnitRange(t *testing.T) {
	result := ClassifyNarrative([]NarrativeInput{{SeriesKey: "SPY", ChangePct: 50}})
	assert.LessOrEqual(t, result.Confidence, 1.0)
	assert.GreaterOrEqual(t, result.Confidence, 0.0)
}
