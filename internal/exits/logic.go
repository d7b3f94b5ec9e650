package exits

import (
	"fmt"
	"time"

	"github.com/sawpanic/earnrun/internal/domain/bars"
)

// ExitReason represents the reason a bracket closed, in precedence order
type ExitReason int

const (
	NoExit     ExitReason = iota
	TakeProfit            // Highest precedence: wins same-bar ties with the stop
	StopLoss              // Stop touched and take-profit not reached on the same bar
	TimeExpiry            // Hold window exhausted without a trigger
)

func (er ExitReason) String() string {
	switch er {
	case NoExit:
		return "NO_EXIT"
	case TakeProfit:
		return "TAKE_PROFIT"
	case StopLoss:
		return "STOP_LOSS"
	case TimeExpiry:
		return "TIME_EXPIRY"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the reason by name in JSON and CSV output
func (er ExitReason) MarshalText() ([]byte, error) {
	return []byte(er.String()), nil
}

// ParseExitReason is the inverse of String
func ParseExitReason(s string) (ExitReason, error) {
	switch s {
	case "NO_EXIT":
		return NoExit, nil
	case "TAKE_PROFIT":
		return TakeProfit, nil
	case "STOP_LOSS":
		return StopLoss, nil
	case "TIME_EXPIRY":
		return TimeExpiry, nil
	default:
		return NoExit, fmt.Errorf("unknown exit reason %q", s)
	}
}

// Bracket describes take-profit and stop-loss offsets relative to entry
type Bracket struct {
	TakeProfitPct float64 `yaml:"take_profit_pct" json:"take_profit_pct"` // e.g. 0.10 for +10%
	StopLossPct   float64 `yaml:"stop_loss_pct" json:"stop_loss_pct"`     // e.g. -0.08 for -8%
	HoldDays      int     `yaml:"hold_days" json:"hold_days"`             // trading days after entry
}

// DefaultHoldDays is the maximum number of trading days a position is held
const DefaultHoldDays = 5

// Trade is the outcome of one simulated bracket
type Trade struct {
	Ticker          string     `json:"ticker"`
	EntryDate       time.Time  `json:"entry_date"`
	EntryPrice      float64    `json:"entry_price"`
	ExitDate        time.Time  `json:"exit_date"`
	ExitPrice       float64    `json:"exit_price"`
	ExitReason      ExitReason `json:"exit_reason"`
	TakeProfitPrice float64    `json:"take_profit_price"`
	StopLossPrice   float64    `json:"stop_loss_price"`
	DaysHeld        int        `json:"days_held"`
	PnL             float64    `json:"pnl"`     // per share
	PnLPct          float64    `json:"pnl_pct"` // percent of entry
}

// Summary returns a one-line description of the trade
func (t *Trade) Summary() string {
	return fmt.Sprintf("%s %s: entry %.2f on %s, exit %.2f on %s after %dd (%+.2f%%)",
		t.Ticker, t.ExitReason, t.EntryPrice, t.EntryDate.Format("2006-01-02"),
		t.ExitPrice, t.ExitDate.Format("2006-01-02"), t.DaysHeld, t.PnLPct)
}

// EvaluateBar checks one bar against bracket prices with take-profit first
func EvaluateBar(b bars.Bar, takeProfit, stopLoss float64) (ExitReason, float64) {
	if b.High >= takeProfit {
		return TakeProfit, takeProfit
	}
	if b.Low <= stopLoss {
		return StopLoss, stopLoss
	}
	return NoExit, 0
}

// Simulate plays a bracket forward from entryDate. The entry date is
// forward-filled to the next trading day and the entry fills at that close.
// Returns nil when there is no entry bar or no trading day after it.
func Simulate(series *bars.Series, entryDate time.Time, bracket Bracket) *Trade {
	if series == nil || series.Len() == 0 {
		return nil
	}
	hold := bracket.HoldDays
	if hold <= 0 {
		hold = DefaultHoldDays
	}

	idx, ok := series.IndexOnOrAfter(entryDate)
	if !ok {
		return nil
	}
	window := series.Forward(idx, hold)
	if len(window) == 0 {
		return nil
	}

	entry := series.At(idx)
	trade := &Trade{
		Ticker:          series.Ticker(),
		EntryDate:       entry.Date,
		EntryPrice:      entry.Close,
		TakeProfitPrice: entry.Close * (1 + bracket.TakeProfitPct),
		StopLossPrice:   entry.Close * (1 + bracket.StopLossPct),
	}

	for i, b := range window {
		reason, price := EvaluateBar(b, trade.TakeProfitPrice, trade.StopLossPrice)
		if reason == NoExit {
			continue
		}
		return trade.close(b.Date, price, reason, i+1)
	}

	last := window[len(window)-1]
	return trade.close(last.Date, last.Close, TimeExpiry, len(window))
}

func (t *Trade) close(date time.Time, price float64, reason ExitReason, days int) *Trade {
	t.ExitDate = date
	t.ExitPrice = price
	t.ExitReason = reason
	t.DaysHeld = days
	t.PnL = price - t.EntryPrice
	if t.EntryPrice != 0 {
		t.PnLPct = t.PnL / t.EntryPrice * 100
	}
	return t
}
