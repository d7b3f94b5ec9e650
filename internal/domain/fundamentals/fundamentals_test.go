package fundamentals

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestScore_Neutral(t *testing.T) {
	s := NewScorer(DefaultWeights())
	// 0.5*0.5 + 0.3*0.5 + 0.15*0.5 + 0.05*0.5
	assert.InDelta(t, 0.5, s.Score(Neutral()), 1e-12)
}

func TestScore_Extremes(t *testing.T) {
	s := NewScorer(DefaultWeights())
	best := Snapshot{EPSBeatRate: 1, AvgEPSSurprisePct: 100, RevenueTrend: 1, AnalystScore: 1}
	worst := Snapshot{EPSBeatRate: 0, AvgEPSSurprisePct: -100, RevenueTrend: 0, AnalystScore: 0}
	assert.InDelta(t, 1.0, s.Score(best), 1e-12)
	assert.Equal(t, 0.0, s.Score(worst))
}

func TestScore_Bounded(t *testing.T) {
	s := NewScorer(DefaultWeights())
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		snap := Snapshot{
			EPSBeatRate:       rng.Float64(),
			AvgEPSSurprisePct: rng.Float64()*400 - 200,
			RevenueTrend:      rng.Float64(),
			AnalystScore:      rng.Float64(),
		}
		v := s.Score(snap)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestNormalizeSurprise(t *testing.T) {
	assert.Equal(t, 0.5, NormalizeSurprise(0))
	assert.Equal(t, 0.75, NormalizeSurprise(10))
	assert.Equal(t, 1.0, NormalizeSurprise(20))
	assert.Equal(t, 0.0, NormalizeSurprise(-20))
	assert.Equal(t, 0.0, NormalizeSurprise(-80))
}

func TestWeights_Validate(t *testing.T) {
	require.NoError(t, DefaultWeights().Validate())

	bad := DefaultWeights()
	bad.Analyst = 0.2
	assert.Error(t, bad.Validate())

	neg := Weights{BeatRate: 1.1, Surprise: -0.1}
	assert.Error(t, neg.Validate())
}

func TestBeatRateAndSurprise(t *testing.T) {
	history := []EPSReport{
		{Actual: f(1.10), Estimate: f(1.00)}, // beat, +10%
		{Actual: f(0.90), Estimate: f(1.00)}, // miss, -10%
		{Actual: f(2.00), Estimate: f(1.00)}, // beat, +100%
		{Actual: f(1.00), Estimate: nil},     // counts only in the denominator
	}
	rate, surprise, ok := BeatRateAndSurprise(history)
	require.True(t, ok)
	assert.InDelta(t, 0.5, rate, 1e-12)
	assert.InDelta(t, 100.0/3.0, surprise, 1e-9)

	_, _, ok = BeatRateAndSurprise(nil)
	assert.False(t, ok)
}

func TestBeatRateAndSurprise_NegativeEstimate(t *testing.T) {
	_, surprise, ok := BeatRateAndSurprise([]EPSReport{{Actual: f(-0.5), Estimate: f(-1.0)}})
	require.True(t, ok)
	assert.InDelta(t, 50.0, surprise, 1e-9)
}

func TestRevenueTrend(t *testing.T) {
	series := []PeriodValue{
		{Period: "2023-12-31", Value: 10},
		{Period: "2024-06-30", Value: 12.1},
		{Period: "2024-03-31", Value: 11},
		{Period: "2023-09-30", Value: 5}, // fifth oldest is ignored
		{Period: "2024-09-30", Value: 13.31},
	}
	// 10% growth each quarter -> 0.5 + 0.1*2.5
	v, ok := RevenueTrend(series)
	require.True(t, ok)
	assert.InDelta(t, 0.75, v, 1e-9)

	shrinking := []PeriodValue{{Period: "2024-03-31", Value: 5}, {Period: "2023-12-31", Value: 10}}
	v, ok = RevenueTrend(shrinking)
	require.True(t, ok)
	assert.Equal(t, 0.0, v)

	_, ok = RevenueTrend([]PeriodValue{{Period: "2024-03-31", Value: 5}})
	assert.False(t, ok)
}

func TestAnalystScore(t *testing.T) {
	v, ok := AnalystScore(Recommendation{StrongBuy: 2, Buy: 4, Hold: 2, Sell: 0, StrongSell: 0})
	require.True(t, ok)
	// (2*1 + 4*0.75 + 2*0.5) / 8
	assert.InDelta(t, 0.75, v, 1e-12)

	_, ok = AnalystScore(Recommendation{})
	assert.False(t, ok)
}

type failingSource struct{}

func (failingSource) Snapshot(context.Context, string) (Snapshot, error) {
	return Snapshot{}, errors.New("provider down")
}

func TestWithDefault(t *testing.T) {
	snap, err := WithDefault(failingSource{}).Snapshot(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, Neutral(), snap)

	snap, err = NeutralSource{}.Snapshot(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, Neutral(), snap)
}
