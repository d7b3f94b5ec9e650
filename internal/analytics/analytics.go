// Package analytics summarizes persisted live trading performance.
package analytics

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sawpanic/earnrun/internal/domain/bars"
	"github.com/sawpanic/earnrun/internal/persistence"
)

// PerformanceSummary describes closed trades over a trailing period
type PerformanceSummary struct {
	PeriodDays    int     `json:"period_days"`
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"` // percent
	TotalPnL      float64 `json:"total_pnl"`
	AvgPnL        float64 `json:"avg_pnl"`
	AvgPnLPct     float64 `json:"avg_pnl_percent"`
	MaxWin        float64 `json:"max_win"`
	MaxLoss       float64 `json:"max_loss"`
	ProfitFactor  float64 `json:"profit_factor"`
}

// DaySummary describes trades closed on one date
type DaySummary struct {
	Date      string  `json:"date"`
	TotalPnL  float64 `json:"total_pnl"`
	NumTrades int     `json:"num_trades"`
	Wins      int     `json:"wins"`
	Losses    int     `json:"losses"`
	WinRate   float64 `json:"win_rate"` // percent
}

// TickerPerformance adds a win rate to the per-ticker aggregate
type TickerPerformance struct {
	persistence.TickerStats
	WinRate float64 `json:"win_rate"` // percent
}

// BestWorst holds the top and bottom closed trades by P&L
type BestWorst struct {
	Best  []persistence.Trade `json:"best"`
	Worst []persistence.Trade `json:"worst"`
}

// Service reads trade and ledger repositories
type Service struct {
	trades persistence.TradesRepo
	perf   persistence.PerformanceRepo
	now    func() time.Time
}

// NewService creates an analytics service over the repository
func NewService(repo *persistence.Repository) *Service {
	return &Service{trades: repo.Trades, perf: repo.Performance, now: time.Now}
}

// Summarize converts raw statistics into a summary. The profit factor is the
// largest win over the largest loss and is only set when the period has both
// wins and losses.
func Summarize(stats persistence.TradeStats, days int) PerformanceSummary {
	s := PerformanceSummary{
		PeriodDays:    days,
		TotalTrades:   stats.TotalTrades,
		WinningTrades: stats.WinningTrades,
		LosingTrades:  stats.LosingTrades,
		TotalPnL:      stats.TotalPnL,
		AvgPnL:        stats.AvgPnL,
		AvgPnLPct:     stats.AvgPnLPct,
		MaxWin:        stats.MaxWin,
		MaxLoss:       stats.MaxLoss,
	}
	if stats.TotalTrades > 0 {
		s.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades) * 100
	}
	if stats.WinningTrades > 0 && stats.LosingTrades > 0 && stats.MaxLoss != 0 {
		s.ProfitFactor = stats.MaxWin / math.Abs(stats.MaxLoss)
	}
	return s
}

// Summary covers trades closed in the last days days
func (s *Service) Summary(ctx context.Context, days int) (PerformanceSummary, error) {
	to := s.now()
	stats, err := s.trades.Stats(ctx, persistence.TimeRange{From: to.AddDate(0, 0, -days), To: to})
	if err != nil {
		return PerformanceSummary{}, fmt.Errorf("performance summary: %w", err)
	}
	return Summarize(stats, days), nil
}

// Monthly covers trades closed since the first of the current month
func (s *Service) Monthly(ctx context.Context) (PerformanceSummary, error) {
	to := s.now().UTC()
	from := time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC)
	stats, err := s.trades.Stats(ctx, persistence.TimeRange{From: from, To: to})
	if err != nil {
		return PerformanceSummary{}, fmt.Errorf("monthly summary: %w", err)
	}
	return Summarize(stats, to.Day()), nil
}

// Daily covers trades closed on day
func (s *Service) Daily(ctx context.Context, day time.Time) (DaySummary, error) {
	from := bars.Day(day)
	to := from.AddDate(0, 0, 1).Add(-time.Nanosecond)
	stats, err := s.trades.Stats(ctx, persistence.TimeRange{From: from, To: to})
	if err != nil {
		return DaySummary{}, fmt.Errorf("daily summary: %w", err)
	}

	d := DaySummary{
		Date:      from.Format("2006-01-02"),
		TotalPnL:  stats.TotalPnL,
		NumTrades: stats.TotalTrades,
		Wins:      stats.WinningTrades,
		Losses:    stats.TotalTrades - stats.WinningTrades,
	}
	if d.NumTrades > 0 {
		d.WinRate = float64(d.Wins) / float64(d.NumTrades) * 100
	}
	return d, nil
}

// EquityCurve returns ledger rows for the last days days, oldest first
func (s *Service) EquityCurve(ctx context.Context, days int) ([]persistence.DailyPerformance, error) {
	to := s.now()
	rows, err := s.perf.Range(ctx, persistence.TimeRange{From: to.AddDate(0, 0, -days), To: to})
	if err != nil {
		return nil, fmt.Errorf("equity curve: %w", err)
	}
	return rows, nil
}

// BestAndWorst returns up to limit trades from each end
func (s *Service) BestAndWorst(ctx context.Context, limit int) (BestWorst, error) {
	best, err := s.trades.ListClosed(ctx, true, limit)
	if err != nil {
		return BestWorst{}, fmt.Errorf("best trades: %w", err)
	}
	worst, err := s.trades.ListClosed(ctx, false, limit)
	if err != nil {
		return BestWorst{}, fmt.Errorf("worst trades: %w", err)
	}
	return BestWorst{Best: best, Worst: worst}, nil
}

// ByTicker returns per-ticker performance, highest total P&L first
func (s *Service) ByTicker(ctx context.Context) ([]TickerPerformance, error) {
	stats, err := s.trades.ByTicker(ctx)
	if err != nil {
		return nil, fmt.Errorf("ticker performance: %w", err)
	}
	out := make([]TickerPerformance, len(stats))
	for i, st := range stats {
		out[i] = TickerPerformance{TickerStats: st}
		if st.NumTrades > 0 {
			out[i].WinRate = float64(st.Wins) / float64(st.NumTrades) * 100
		}
	}
	return out, nil
}

// FormatSummary renders a summary as a plain-text report
func FormatSummary(s PerformanceSummary) string {
	if s.TotalTrades == 0 {
		return fmt.Sprintf("No trades in the last %d days.", s.PeriodDays)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== PERFORMANCE SUMMARY (%d days) ===\n\n", s.PeriodDays)
	fmt.Fprintf(&b, "Total Trades: %d\n", s.TotalTrades)
	fmt.Fprintf(&b, "Wins: %d | Losses: %d\n", s.WinningTrades, s.LosingTrades)
	fmt.Fprintf(&b, "Win Rate: %.1f%%\n\n", s.WinRate)
	fmt.Fprintf(&b, "Total P&L: $%.2f\n", s.TotalPnL)
	fmt.Fprintf(&b, "Average P&L: $%.2f (%.2f%%)\n\n", s.AvgPnL, s.AvgPnLPct)
	fmt.Fprintf(&b, "Best Trade: $%.2f\n", s.MaxWin)
	fmt.Fprintf(&b, "Worst Trade: $%.2f\n", s.MaxLoss)
	fmt.Fprintf(&b, "Profit Factor: %.2f\n\n", s.ProfitFactor)
	b.WriteString("=====================================")
	return b.String()
}

// FormatTickers renders per-ticker performance as an aligned table
func FormatTickers(rows []TickerPerformance) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-8s %6s %6s %8s %12s %10s\n", "TICKER", "TRADES", "WINS", "WIN%", "TOTAL P&L", "AVG %")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-8s %6d %6d %7.1f%% %12.2f %9.2f%%\n",
			r.Ticker, r.NumTrades, r.Wins, r.WinRate, r.TotalPnL, r.AvgPnLPct)
	}
	return b.String()
}
