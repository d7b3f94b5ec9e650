package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/sawpanic/earnrun/internal/exits"
	"github.com/sawpanic/earnrun/internal/ports"
)

// Observer receives run progress. The metrics registry implements it.
type Observer interface {
	ObserveDay(kind, outcome string)
	ObserveTrade(kind string, t TradeResult)
}

type noopObserver struct{}

func (noopObserver) ObserveDay(string, string)        {}
func (noopObserver) ObserveTrade(string, TradeResult) {}

// OrNoop returns o, or an observer that discards everything when o is nil
func OrNoop(o Observer) Observer {
	if o == nil {
		return noopObserver{}
	}
	return o
}

// SimulateFromSource loads bars around entry and plays the bracket forward.
// The fetch window runs from five days before entry to hold+10 days after so
// that holidays and weekends never starve the hold window.
func SimulateFromSource(ctx context.Context, prices ports.PriceSource, ticker string, entry time.Time, bracket exits.Bracket) (*exits.Trade, error) {
	hold := bracket.HoldDays
	if hold <= 0 {
		hold = exits.DefaultHoldDays
	}
	series, err := prices.DailyBars(ctx, ticker, entry.AddDate(0, 0, -5), entry.AddDate(0, 0, hold+10))
	if err != nil {
		return nil, fmt.Errorf("bars for %s around %s: %w", ticker, entry.Format("2006-01-02"), err)
	}
	return exits.Simulate(series, entry, bracket), nil
}

// Fill sizes a simulated trade as a fixed fraction of capital and returns
// the result with the capital it leaves behind.
func Fill(t *exits.Trade, capital, fraction float64) TradeResult {
	position := capital * fraction
	shares := 0.0
	if t.EntryPrice > 0 {
		shares = position / t.EntryPrice
	}
	pnl := shares * t.PnL
	return TradeResult{
		Trade:         *t,
		Shares:        shares,
		PositionSize:  position,
		TradePnL:      pnl,
		CapitalBefore: capital,
		CapitalAfter:  capital + pnl,
	}
}
