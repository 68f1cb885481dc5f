package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// S5 — the recession composite's literal end-to-end scenario.
func TestComposeRecessionProbability_S5LiteralScenario(t *testing.T) {
	result := ComposeRecessionProbability(4.06, 3.75)

	assert.InDelta(t, 0.31, result.Spread10Y3M, 0.005)
	assert.InDelta(t, 0.35, result.Probability, 0.01)
	assert.Equal(t, RiskElevated, result.RiskLevel)
}

func TestComposeRecessionProbability_InvertedCurveRaisesProbability(t *testing.T) {
	inverted := ComposeRecessionProbability(3.0, 4.0) // negative spread
	normal := ComposeRecessionProbability(4.06, 3.75)

	assert.Greater(t, inverted.Probability, normal.Probability)
}

func TestComposeRecessionProbability_ProbabilityAlwaysClamped(t *testing.T) {
	extreme := ComposeRecessionProbability(0, 10)
	assert.LessOrEqual(t, extreme.Probability, 1.0)
	assert.GreaterOrEqual(t, extreme.Probability, 0.0)

	other := ComposeRecessionProbability(10, 0)
	assert.LessOrEqual(t, other.Probability, 1.0)
	assert.GreaterOrEqual(t, other.Probability, 0.0)
}

func TestRound2_HandlesNegativeValues(t *testing.T) {
	assert.Equal(t, -0.31, round2(-0.314))
	assert.Equal(t, 0.31, round2(0.314))
}
