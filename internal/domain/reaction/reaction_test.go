package reaction

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/earnrun/internal/domain/bars"
	"github.com/sawpanic/earnrun/internal/domain/earnings"
)

// flatSeries returns n consecutive weekday bars starting at start, all at 100
func flatSeries(t *testing.T, start time.Time, n int) []bars.Bar {
	t.Helper()
	var out []bars.Bar
	for d := start; len(out) < n; d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		out = append(out, bars.Bar{Date: d, Open: 100, High: 100, Low: 100, Close: 100, Volume: 1e6})
	}
	return out
}

func TestAggregate_Scenario(t *testing.T) {
	samples := []Sample{
		{GainPct: 0.05, DrawdownPct: -0.02},
		{GainPct: -0.02, DrawdownPct: -0.06},
		{GainPct: 0.03, DrawdownPct: -0.01},
		{GainPct: 0.015, DrawdownPct: -0.03},
	}

	p := Aggregate(samples, 0.01, -0.05)
	assert.InDelta(t, 0.75, p.Frequency, 1e-12)
	assert.InDelta(t, 0.031667, p.AvgGain, 1e-6)
	assert.InDelta(t, 0.02375, p.PriceScore, 1e-6)
	assert.InDelta(t, -0.03, p.AvgDrawdown, 1e-12)
}

func TestAggregate_Defaults(t *testing.T) {
	samples := []Sample{{GainPct: 0.005, DrawdownPct: 0}, {GainPct: 0.01, DrawdownPct: 0.02}}
	p := Aggregate(samples, 0.01, -0.05)
	assert.Equal(t, 0.0, p.Frequency)
	assert.Equal(t, 0.0, p.AvgGain)
	assert.Equal(t, -0.05, p.AvgDrawdown)
	assert.Equal(t, 0.0, p.PriceScore)
}

func TestAggregate_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		n := 1 + rng.Intn(12)
		samples := make([]Sample, n)
		for j := range samples {
			samples[j] = Sample{GainPct: rng.Float64()*0.4 - 0.2, DrawdownPct: rng.Float64()*0.4 - 0.3}
		}
		p := Aggregate(samples, 0.01, -0.05)
		assert.GreaterOrEqual(t, p.Frequency, 0.0)
		assert.LessOrEqual(t, p.Frequency, 1.0)
		assert.GreaterOrEqual(t, p.PriceScore, 0.0)
	}
}

func TestAnalyze_ComputesPattern(t *testing.T) {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	raw := flatSeries(t, start, 300)

	// Earnings on four dates; bump the next bar's high after each
	var events []earnings.Event
	for k, idx := range []int{20, 80, 140, 200} {
		events = append(events, earnings.Event{Ticker: "X", Date: raw[idx].Date})
		raw[idx+2].High = 100 + float64(k+2) // 2%, 3%, 4%, 5%
		raw[idx+3].Low = 97
	}
	series, err := bars.NewSeries("X", raw)
	require.NoError(t, err)

	a := NewAnalyzer(DefaultConfig())
	asOf := raw[len(raw)-1].Date
	res := a.Analyze("X", events, series, asOf, 4)
	require.True(t, res.OK())

	p := res.Pattern
	assert.Equal(t, "X", p.Ticker)
	assert.Len(t, p.Samples, 4)
	assert.Equal(t, 4, p.EventsConsidered)
	assert.InDelta(t, 1.0, p.Frequency, 1e-12)
	assert.InDelta(t, 0.035, p.AvgGain, 1e-12)
	assert.InDelta(t, -0.03, p.AvgDrawdown, 1e-12)

	again := a.Analyze("X", events, series, asOf, 4)
	assert.Equal(t, res, again)
}

func TestAnalyze_ForwardFillsWeekendEvent(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := flatSeries(t, start, 30)
	series, err := bars.NewSeries("X", raw)
	require.NoError(t, err)

	a := NewAnalyzer(DefaultConfig())
	sat := time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)
	s, ok := a.Sample(series, sat)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), s.EarningsDate)
}

func TestAnalyze_InsufficientHistory(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := flatSeries(t, start, 60)
	series, err := bars.NewSeries("X", raw)
	require.NoError(t, err)

	events := []earnings.Event{{Date: raw[5].Date}, {Date: raw[25].Date}, {Date: raw[45].Date}}
	res := NewAnalyzer(DefaultConfig()).Analyze("X", events, series, raw[59].Date, 4)
	assert.False(t, res.OK())
	assert.Equal(t, SkipInsufficientHistory, res.Skip)
}

func TestAnalyze_NoPriceData(t *testing.T) {
	asOf := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	var events []earnings.Event
	for i := 1; i <= 4; i++ {
		events = append(events, earnings.Event{Date: asOf.AddDate(0, -3*i, 0)})
	}
	res := NewAnalyzer(DefaultConfig()).Analyze("X", events, nil, asOf, 4)
	assert.Equal(t, SkipNoPriceData, res.Skip)
}

func TestAnalyze_CalendarSkipsEmptyWindows(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := flatSeries(t, start, 40)
	series, err := bars.NewSeries("X", raw)
	require.NoError(t, err)

	last := raw[len(raw)-1].Date
	// all four events on the final bar: no forward window for any of them
	events := []earnings.Event{{Date: last}, {Date: last}, {Date: last}, {Date: last}}
	res := NewAnalyzer(DefaultConfig()).Analyze("X", events, series, last, 1)
	assert.Equal(t, SkipNoSamples, res.Skip)

	// one bar ahead is enough in calendar mode
	s, ok := NewAnalyzer(DefaultConfig()).Sample(series, raw[len(raw)-2].Date)
	require.True(t, ok)
	assert.Equal(t, 0.0, s.GainPct)
}

func TestAnalyze_EstimatedModeNeedsThreeDayWindows(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := flatSeries(t, start, 40)
	series, err := bars.NewSeries("X", raw)
	require.NoError(t, err)

	a := NewAnalyzer(EstimatedConfig())
	_, ok := a.Sample(series, raw[len(raw)-3].Date) // two bars ahead
	assert.False(t, ok)
	_, ok = a.Sample(series, raw[len(raw)-4].Date) // three bars ahead
	assert.True(t, ok)
}

func TestAnalyze_EstimatedModeNeedsThreeSamples(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := flatSeries(t, start, 40)
	series, err := bars.NewSeries("X", raw)
	require.NoError(t, err)

	last := raw[len(raw)-1].Date
	events := []earnings.Event{
		{Date: raw[5].Date, Estimated: true},
		{Date: raw[15].Date, Estimated: true},
		{Date: last, Estimated: true},
		{Date: last, Estimated: true},
	}
	res := NewAnalyzer(EstimatedConfig()).Analyze("X", events, series, last, 1)
	assert.Equal(t, SkipNoSamples, res.Skip)
}
