package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Summarize fills the statistics of s from its trades. Wins are trades
// with positive per-share P&L; everything else is a loss. Profit factor is
// |avg win / avg loss| over per-trade dollar P&L, and 0 when there are no
// losses. Max drawdown is measured over capitals, starting the peak at the
// initial capital.
func Summarize(s *Summary, capitals []float64) {
	s.TotalPnL = s.FinalCapital - s.InitialCapital
	if s.InitialCapital != 0 {
		s.TotalPnLPct = s.TotalPnL / s.InitialCapital * 100
	}
	s.NumTrades = len(s.Trades)
	s.NumWins, s.NumLosses = 0, 0
	s.WinRate, s.AvgWin, s.AvgLoss, s.ProfitFactor = 0, 0, 0, 0

	var wins, losses []float64
	for _, t := range s.Trades {
		if t.PnL > 0 {
			wins = append(wins, t.TradePnL)
		} else {
			losses = append(losses, t.TradePnL)
		}
	}
	s.NumWins, s.NumLosses = len(wins), len(losses)

	if s.NumTrades > 0 {
		s.WinRate = float64(s.NumWins) / float64(s.NumTrades) * 100
	}
	if len(wins) > 0 {
		s.AvgWin = stat.Mean(wins, nil)
	}
	if len(losses) > 0 {
		s.AvgLoss = stat.Mean(losses, nil)
	}
	if s.AvgLoss != 0 {
		s.ProfitFactor = math.Abs(s.AvgWin / s.AvgLoss)
	}

	s.MaxDrawdownPct = MaxDrawdownPct(s.InitialCapital, capitals)
}

// MaxDrawdownPct returns the largest peak-to-trough decline in percent
func MaxDrawdownPct(initial float64, capitals []float64) float64 {
	peak := initial
	maxDD := 0.0
	for _, c := range capitals {
		peak = math.Max(peak, c)
		if peak <= 0 {
			continue
		}
		maxDD = math.Max(maxDD, (peak-c)/peak)
	}
	return maxDD * 100
}

// Capitals extracts the capital column of an equity ledger
func Capitals(points []EquityPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Capital
	}
	return out
}
