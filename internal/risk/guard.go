package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/earnrun/internal/domain/bars"
)

// State tracks the daily start balance and high-water mark. The
// high-water mark never decreases.
type State struct {
	Day               time.Time `json:"day"`
	DailyStartBalance float64   `json:"daily_start_balance"`
	HighWaterMark     float64   `json:"high_water_mark"`
	started           bool
}

// Started reports whether StartDay has been called at least once
func (s State) Started() bool { return s.started }

// Summary is the risk status reported to operators
type Summary struct {
	DailyPnL               float64 `json:"daily_pnl"`
	DailyPnLPct            float64 `json:"daily_pnl_percent"`
	DailyLimitRemaining    float64 `json:"daily_limit_remaining"`
	CurrentDrawdownPct     float64 `json:"current_drawdown_percent"`
	DrawdownLimitRemaining float64 `json:"drawdown_limit_remaining"`
	MaxPositionPct         float64 `json:"max_position_size_percent"`
	CanTrade               bool    `json:"can_trade"`
	Reason                 string  `json:"can_trade_reason"`
}

// Guard applies risk limits against the current balance
type Guard struct {
	mu     sync.RWMutex
	config Config
	state  State
}

// NewGuard creates a guard with no day started
func NewGuard(config Config) *Guard {
	return &Guard{config: config}
}

// Config returns the risk configuration
func (g *Guard) Config() Config { return g.config }

// StartDay records the opening balance for day. Only the first call for a
// given day has effect; the high-water mark is raised, never lowered.
func (g *Guard) StartDay(day time.Time, balance float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	day = bars.Day(day)
	if g.state.started && g.state.Day.Equal(day) {
		log.Debug().Time("day", day).Msg("Risk state already initialized for day")
		return false
	}

	g.state.Day = day
	g.state.DailyStartBalance = balance
	if !g.state.started || balance > g.state.HighWaterMark {
		g.state.HighWaterMark = balance
	}
	g.state.started = true

	log.Info().Time("day", day).Float64("start_balance", balance).
		Float64("high_water_mark", g.state.HighWaterMark).Msg("Daily start balance set")
	return true
}

// State returns a copy of the current state
func (g *Guard) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Restore loads previously persisted state
func (g *Guard) Restore(s State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s.started = s.DailyStartBalance > 0 || s.HighWaterMark > 0
	g.state = s
}

// CanTrade fails when the daily loss or drawdown from the high-water mark
// reaches its limit. Before any day is started all trading is allowed.
func (g *Guard) CanTrade(balance float64) (bool, string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.canTrade(balance)
}

func (g *Guard) canTrade(balance float64) (bool, string) {
	if !g.state.started {
		return true, "risk state not initialized"
	}

	if g.state.DailyStartBalance > 0 {
		loss := (g.state.DailyStartBalance - balance) / g.state.DailyStartBalance * 100
		if loss >= g.config.MaxDailyLossPct {
			log.Warn().Float64("loss_pct", loss).Float64("limit", g.config.MaxDailyLossPct).Msg("Daily loss limit hit")
			return false, fmt.Sprintf("daily loss limit exceeded: %.2f%%", loss)
		}
	}

	if g.state.HighWaterMark > 0 {
		dd := (g.state.HighWaterMark - balance) / g.state.HighWaterMark * 100
		if dd >= g.config.MaxDrawdownPct {
			log.Warn().Float64("drawdown_pct", dd).Float64("limit", g.config.MaxDrawdownPct).Msg("Max drawdown limit hit")
			return false, fmt.Sprintf("max drawdown limit exceeded: %.2f%%", dd)
		}
	}

	return true, "all risk checks passed"
}

// ValidateStock checks price bounds and, when known, daily volume
func (g *Guard) ValidateStock(price float64, volume *float64) (bool, string) {
	c := g.config
	if price < c.MinStockPrice {
		return false, fmt.Sprintf("price $%.2f below minimum $%.2f", price, c.MinStockPrice)
	}
	if price > c.MaxStockPrice {
		return false, fmt.Sprintf("price $%.2f above maximum $%.2f", price, c.MaxStockPrice)
	}
	if volume != nil && *volume < c.MinDailyVolume {
		return false, fmt.Sprintf("volume %.0f below minimum %.0f", *volume, c.MinDailyVolume)
	}
	return true, "stock validation passed"
}

// Summary reports daily P&L and headroom against both limits
func (g *Guard) Summary(balance float64) Summary {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Summary{MaxPositionPct: g.config.MaxPositionPct}
	if g.state.DailyStartBalance > 0 {
		s.DailyPnL = balance - g.state.DailyStartBalance
		s.DailyPnLPct = s.DailyPnL / g.state.DailyStartBalance * 100
		s.DailyLimitRemaining = g.config.MaxDailyLossPct + s.DailyPnLPct
	}
	if g.state.HighWaterMark > 0 {
		s.CurrentDrawdownPct = (g.state.HighWaterMark - balance) / g.state.HighWaterMark * 100
		s.DrawdownLimitRemaining = g.config.MaxDrawdownPct - s.CurrentDrawdownPct
	}
	s.CanTrade, s.Reason = g.canTrade(balance)
	return s
}
