package exits

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/sawpanic/earnrun/internal/domain/bars"
)

var entryDay = time.Date(2024, 10, 23, 0, 0, 0, 0, time.UTC)

// buildSeries places an entry bar closing at 100 followed by the given bars
func buildSeries(t *testing.T, forward ...bars.Bar) *bars.Series {
	t.Helper()
	in := []bars.Bar{{Date: entryDay, Open: 100, High: 100, Low: 100, Close: 100}}
	for i, b := range forward {
		b.Date = entryDay.AddDate(0, 0, i+1)
		in = append(in, b)
	}
	s, err := bars.NewSeries("TEST", in)
	if err != nil {
		t.Fatalf("Failed to build series: %v", err)
	}
	return s
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestSimulate_TakeProfitOnDayTwo(t *testing.T) {
	series := buildSeries(t,
		bars.Bar{High: 105, Low: 97, Close: 101},
		bars.Bar{High: 112, Low: 98, Close: 108},
	)

	trade := Simulate(series, entryDay, Bracket{TakeProfitPct: 0.10, StopLossPct: -0.08, HoldDays: 5})
	if trade == nil {
		t.Fatal("Expected a trade")
	}

	if trade.ExitReason != TakeProfit {
		t.Errorf("Expected TAKE_PROFIT, got %s", trade.ExitReason)
	}
	if !approx(trade.ExitPrice, 110) {
		t.Errorf("Expected exit at 110, got %.4f", trade.ExitPrice)
	}
	if !approx(trade.PnL, 10) || !approx(trade.PnLPct, 10.0) {
		t.Errorf("Expected pnl 10 / 10%%, got %.4f / %.4f%%", trade.PnL, trade.PnLPct)
	}
	if trade.DaysHeld != 2 {
		t.Errorf("Expected 2 days held, got %d", trade.DaysHeld)
	}
	if !trade.ExitDate.Equal(entryDay.AddDate(0, 0, 2)) {
		t.Errorf("Expected exit on day 2, got %s", trade.ExitDate)
	}
}

func TestSimulate_TimeExpiryAtLastClose(t *testing.T) {
	series := buildSeries(t,
		bars.Bar{High: 101, Low: 99, Close: 100},
		bars.Bar{High: 102, Low: 99, Close: 101},
		bars.Bar{High: 103, Low: 98, Close: 102},
		bars.Bar{High: 104, Low: 99, Close: 102},
		bars.Bar{High: 104, Low: 100, Close: 103},
		bars.Bar{High: 150, Low: 50, Close: 140}, // outside the hold window
	)

	trade := Simulate(series, entryDay, Bracket{TakeProfitPct: 0.10, StopLossPct: -0.08, HoldDays: 5})
	if trade == nil {
		t.Fatal("Expected a trade")
	}
	if trade.ExitReason != TimeExpiry {
		t.Errorf("Expected TIME_EXPIRY, got %s", trade.ExitReason)
	}
	if !approx(trade.ExitPrice, 103) {
		t.Errorf("Expected exit at final close 103, got %.4f", trade.ExitPrice)
	}
	if trade.DaysHeld != 5 {
		t.Errorf("Expected 5 days held, got %d", trade.DaysHeld)
	}
}

func TestSimulate_StopLoss(t *testing.T) {
	series := buildSeries(t,
		bars.Bar{High: 101, Low: 95, Close: 96},
		bars.Bar{High: 97, Low: 90, Close: 91},
	)

	trade := Simulate(series, entryDay, Bracket{TakeProfitPct: 0.10, StopLossPct: -0.08, HoldDays: 5})
	if trade == nil {
		t.Fatal("Expected a trade")
	}
	if trade.ExitReason != StopLoss {
		t.Errorf("Expected STOP_LOSS, got %s", trade.ExitReason)
	}
	if !approx(trade.ExitPrice, 92) {
		t.Errorf("Expected exit at 92, got %.4f", trade.ExitPrice)
	}
	if !approx(trade.PnLPct, -8.0) {
		t.Errorf("Expected -8%%, got %.4f%%", trade.PnLPct)
	}
}

func TestSimulate_TakeProfitWinsSameBarTie(t *testing.T) {
	series := buildSeries(t, bars.Bar{High: 120, Low: 80, Close: 100})

	trade := Simulate(series, entryDay, Bracket{TakeProfitPct: 0.10, StopLossPct: -0.08, HoldDays: 5})
	if trade == nil {
		t.Fatal("Expected a trade")
	}
	if trade.ExitReason != TakeProfit {
		t.Errorf("Expected TAKE_PROFIT to win the tie, got %s", trade.ExitReason)
	}
}

func TestSimulate_ForwardFillsEntry(t *testing.T) {
	series := buildSeries(t, bars.Bar{High: 101, Low: 99, Close: 100}, bars.Bar{High: 101, Low: 99, Close: 100})

	trade := Simulate(series, entryDay.AddDate(0, 0, -3), Bracket{TakeProfitPct: 0.1, StopLossPct: -0.1})
	if trade == nil {
		t.Fatal("Expected a trade")
	}
	if !trade.EntryDate.Equal(entryDay) {
		t.Errorf("Expected entry forward-filled to %s, got %s", entryDay, trade.EntryDate)
	}
	if trade.DaysHeld != 2 {
		t.Errorf("Expected default hold to cover both bars, got %d", trade.DaysHeld)
	}
}

func TestSimulate_NoTrade(t *testing.T) {
	series := buildSeries(t)

	if trade := Simulate(series, entryDay, Bracket{TakeProfitPct: 0.1, StopLossPct: -0.1, HoldDays: 5}); trade != nil {
		t.Errorf("Expected nil with no future bar, got %+v", trade)
	}
	if trade := Simulate(series, entryDay.AddDate(0, 0, 1), Bracket{TakeProfitPct: 0.1}); trade != nil {
		t.Errorf("Expected nil with no entry bar, got %+v", trade)
	}
	if trade := Simulate(nil, entryDay, Bracket{}); trade != nil {
		t.Errorf("Expected nil for nil series, got %+v", trade)
	}
}

func TestSimulate_Idempotent(t *testing.T) {
	series := buildSeries(t,
		bars.Bar{High: 105, Low: 97, Close: 101},
		bars.Bar{High: 112, Low: 98, Close: 108},
	)
	bracket := Bracket{TakeProfitPct: 0.10, StopLossPct: -0.08, HoldDays: 5}

	first := Simulate(series, entryDay, bracket)
	second := Simulate(series, entryDay, bracket)
	if *first != *second {
		t.Errorf("Expected identical trades, got %+v and %+v", first, second)
	}
}

func TestExitReason_Strings(t *testing.T) {
	for _, r := range []ExitReason{NoExit, TakeProfit, StopLoss, TimeExpiry} {
		parsed, err := ParseExitReason(r.String())
		if err != nil || parsed != r {
			t.Errorf("Round trip failed for %s: %v", r, err)
		}
	}
	if _, err := ParseExitReason("profit_target"); err == nil {
		t.Error("Expected error for unknown reason")
	}

	data, err := json.Marshal(struct {
		Reason ExitReason `json:"reason"`
	}{StopLoss})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"reason":"STOP_LOSS"}` {
		t.Errorf("Unexpected JSON %s", data)
	}
}
