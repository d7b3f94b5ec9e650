package main

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/earnrun/internal/backtest/daily"
	"github.com/sawpanic/earnrun/internal/config"
)

func TestDateFlag(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("date", "", "")

	d, err := dateFlag(cmd, "date")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	require.NoError(t, cmd.Flags().Set("date", "2024-10-08"))
	d, err = dateFlag(cmd, "date")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 10, 8, 0, 0, 0, 0, time.UTC), d)

	require.NoError(t, cmd.Flags().Set("date", "10/08/2024"))
	_, err = dateFlag(cmd, "date")
	assert.Error(t, err)
}

func TestCapitalFlagsDefaults(t *testing.T) {
	fs := capitalFlags("./artifacts/replay")
	out, err := fs.GetString("output")
	require.NoError(t, err)
	assert.Equal(t, "./artifacts/replay", out)
	frac, err := fs.GetFloat64("position-fraction")
	require.NoError(t, err)
	assert.Equal(t, 0.85, frac)
}

func TestPricesRequireAlpacaOrBarsDir(t *testing.T) {
	a := &app{cfg: config.Default()}

	_, err := a.prices("")
	assert.ErrorIs(t, err, config.ErrInvalid)

	p, err := a.prices(t.TempDir())
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestCalendarFallsBackToSample(t *testing.T) {
	a := &app{cfg: config.Default()}
	assert.Nil(t, a.finnhub())

	tickers, err := a.calendar(nil).TickersReporting(context.Background(), time.Date(2024, 10, 8, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []string{"PEP"}, tickers)
}

func TestRankerModes(t *testing.T) {
	a := &app{cfg: config.Default(), weights: config.DefaultWeights()}

	r, err := a.backtestRanker(nil, daily.DefaultConfig().HistoryYears)
	require.NoError(t, err)
	assert.NotNil(t, r)

	r, err = a.liveRanker(nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestBacktestRankerLooksBackEightQuarters(t *testing.T) {
	a := &app{cfg: config.Default(), weights: config.DefaultWeights()}
	require.Equal(t, 4, a.cfg.Analysis.HistoryYears)

	p := a.backtestPatterns(nil, daily.DefaultConfig().HistoryYears)
	assert.Equal(t, 2, p.YearsBack)

	upcoming := time.Date(2024, 10, 23, 0, 0, 0, 0, time.UTC)
	events, err := p.Events.Events(context.Background(), "KO", upcoming, p.YearsBack)
	require.NoError(t, err)
	require.Len(t, events, 8)
	assert.Equal(t, time.Date(2022, 11, 3, 0, 0, 0, 0, time.UTC), events[0].Date)
	assert.True(t, events[0].Estimated)
}
