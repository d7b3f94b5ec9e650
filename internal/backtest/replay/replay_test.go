package replay

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/earnrun/internal/domain/bars"
	"github.com/sawpanic/earnrun/internal/exits"
)

func date(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

type mapPrices map[string]*bars.Series

func (m mapPrices) DailyBars(_ context.Context, ticker string, start, end time.Time) (*bars.Series, error) {
	s, ok := m[ticker]
	if !ok {
		return nil, errors.New("unknown ticker")
	}
	return s.Slice(start, end)
}

func series(t *testing.T, ticker string, closes ...[3]float64) *bars.Series {
	t.Helper()
	var bs []bars.Bar
	d := date("2024-10-07")
	for _, c := range closes {
		bs = append(bs, bars.Bar{Date: d, Open: c[2], High: c[0], Low: c[1], Close: c[2]})
		d = d.AddDate(0, 0, 1)
	}
	s, err := bars.NewSeries(ticker, bs)
	require.NoError(t, err)
	return s
}

func TestRunCompoundsAndMeasuresDrawdownPerTrade(t *testing.T) {
	prices := mapPrices{
		// entry 100, next day high 111 hits the 10% target
		"WIN": series(t, "WIN", [3]float64{100, 100, 100}, [3]float64{111, 100, 105}),
		// entry 100, next day low 90 hits the -8.8% stop
		"LOSE": series(t, "LOSE", [3]float64{100, 100, 100}, [3]float64{100, 90, 95}),
	}
	cfg := DefaultConfig()
	cfg.OutputDir = ""
	r := NewRunner(cfg, prices)

	s, err := r.Run(context.Background(), []Entry{
		{Ticker: "WIN", EntryDate: date("2024-10-07"), AvgGain: DefaultAvgGain, AvgDrawdown: DefaultAvgDrawdown},
		{Ticker: "LOSE", EntryDate: date("2024-10-07"), AvgGain: DefaultAvgGain, AvgDrawdown: DefaultAvgDrawdown},
		{Ticker: "MISSING", EntryDate: date("2024-10-07"), AvgGain: DefaultAvgGain, AvgDrawdown: DefaultAvgDrawdown},
	})
	require.NoError(t, err)
	require.Len(t, s.Trades, 2)

	win, lose := s.Trades[0], s.Trades[1]
	assert.Equal(t, exits.TakeProfit, win.ExitReason)
	assert.InDelta(t, 850.0, win.TradePnL, 1e-6)
	assert.InDelta(t, 10850.0, win.CapitalAfter, 1e-6)

	assert.Equal(t, exits.StopLoss, lose.ExitReason)
	assert.InDelta(t, 91.2, lose.ExitPrice, 1e-9)
	wantLoss := 10850.0 * 0.85 / 100 * (91.2 - 100)
	assert.InDelta(t, wantLoss, lose.TradePnL, 1e-6)

	assert.InDelta(t, 10850.0+wantLoss, s.FinalCapital, 1e-6)
	assert.InDelta(t, -wantLoss/10850.0*100, s.MaxDrawdownPct, 1e-6)
	assert.Equal(t, 1, s.SkipReasons["no_price_data"])
	assert.Equal(t, 50.0, s.WinRate)
}

func TestRunWithoutTradesFails(t *testing.T) {
	r := NewRunner(Config{OutputDir: ""}, mapPrices{})
	_, err := r.Run(context.Background(), []Entry{{Ticker: "X", EntryDate: date("2024-10-07")}})
	assert.ErrorIs(t, err, ErrNoTrades)
}

func TestLoadEntriesAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.csv")
	require.NoError(t, os.WriteFile(path, []byte("ticker,entry_date,avg_gain,avg_drawdown\naapl,2024-10-07,0.05,-0.03\nMSFT,2024-10-08,,\n"), 0644))

	entries, err := LoadEntries(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, Entry{Ticker: "AAPL", EntryDate: date("2024-10-07"), AvgGain: 0.05, AvgDrawdown: -0.03}, entries[0])
	assert.Equal(t, DefaultAvgGain, entries[1].AvgGain)
	assert.Equal(t, DefaultAvgDrawdown, entries[1].AvgDrawdown)
}

func TestLoadEntriesRejectsBadDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.csv")
	require.NoError(t, os.WriteFile(path, []byte("ticker,entry_date,avg_gain,avg_drawdown\nAAPL,10/07/2024,,\n"), 0644))

	_, err := LoadEntries(path)
	assert.Error(t, err)
}
