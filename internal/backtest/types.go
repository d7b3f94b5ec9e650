// Package backtest holds the result types, statistics and artifact writer
// shared by the daily and replay backtests.
package backtest

import (
	"time"

	"github.com/sawpanic/earnrun/internal/exits"
)

// TradeResult is one simulated trade with its sizing and capital effect
type TradeResult struct {
	exits.Trade

	AnalysisDate     time.Time `json:"analysis_date"`
	Shares           float64   `json:"shares"`
	PositionSize     float64   `json:"position_size"`
	TradePnL         float64   `json:"trade_pnl"`
	CapitalBefore    float64   `json:"capital_before"`
	CapitalAfter     float64   `json:"capital_after"`
	FinalScore       float64   `json:"final_score"`
	PriceScore       float64   `json:"price_score"`
	FundamentalScore float64   `json:"fundamental_score"`
	Frequency        float64   `json:"frequency"`
	EPSBeatRate      float64   `json:"eps_beat_rate"`
	AvgEPSSurprise   float64   `json:"avg_eps_surprise"`
	AnalystScore     float64   `json:"analyst_rating"`
}

// EquityPoint is one entry in the append-only capital ledger
type EquityPoint struct {
	Date    time.Time `json:"date"`
	Capital float64   `json:"capital"`
}

// Summary is the final backtest report
type Summary struct {
	RunID          string         `json:"run_id"`
	Kind           string         `json:"kind"`
	StartDate      time.Time      `json:"start_date"`
	EndDate        time.Time      `json:"end_date"`
	InitialCapital float64        `json:"initial_capital"`
	FinalCapital   float64        `json:"final_capital"`
	TotalPnL       float64        `json:"total_pnl"`
	TotalPnLPct    float64        `json:"total_pnl_pct"`
	NumTrades      int            `json:"num_trades"`
	NumWins        int            `json:"num_wins"`
	NumLosses      int            `json:"num_losses"`
	WinRate        float64        `json:"win_rate"`
	AvgWin         float64        `json:"avg_win"`
	AvgLoss        float64        `json:"avg_loss"`
	ProfitFactor   float64        `json:"profit_factor"`
	MaxDrawdownPct float64        `json:"max_drawdown_pct"`
	Trades         []TradeResult  `json:"trades"`
	Equity         []EquityPoint  `json:"equity_points"`
	DaysSimulated  int            `json:"days_simulated"`
	DaysSkipped    int            `json:"days_skipped"`
	SkipReasons    map[string]int `json:"skip_reasons"`
}

// Clock is injectable for tests
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using wall time
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant
type FixedClock struct{ T time.Time }

func (c FixedClock) Now() time.Time { return c.T }
