package daily

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/earnrun/internal/backtest"
	"github.com/sawpanic/earnrun/internal/domain/bars"
	"github.com/sawpanic/earnrun/internal/domain/ranking"
	"github.com/sawpanic/earnrun/internal/exits"
	"github.com/sawpanic/earnrun/internal/ports"
	"github.com/sawpanic/earnrun/internal/risk"
	"github.com/sawpanic/earnrun/internal/universe"
)

const kind = "daily"

// Day outcomes recorded in Summary.SkipReasons and metrics
const (
	OutcomeWeekend      = "weekend"
	OutcomeNoEarnings   = "no_earnings"
	OutcomeNotTradable  = "not_tradable"
	OutcomeNoCandidates = "no_candidates"
	OutcomeGateRejected = "gate_rejected"
	OutcomeNoTrade      = "no_trade"
	OutcomeCalendarErr  = "calendar_error"
	OutcomeTraded       = "traded"
)

// Config represents daily backtest configuration
type Config struct {
	InitialCapital   float64
	Weeks            int
	PositionFraction float64
	HoldDays         int
	MaxTickers       int
	HistoryYears     int // estimated-earnings lookback for ranking
	Gate             ranking.Gate
	Stop             risk.StopPolicy
	Target           risk.TargetPolicy
	Pacing           time.Duration // pause between simulated days
	OutputDir        string
}

// DefaultConfig returns the three-week, 85%-sizing defaults
func DefaultConfig() Config {
	return Config{
		InitialCapital:   10000,
		Weeks:            3,
		PositionFraction: 0.85,
		HoldDays:         exits.DefaultHoldDays,
		MaxTickers:       100,
		HistoryYears:     2,
		Gate:             ranking.DefaultBacktestGate(),
		Stop:             risk.BacktestStop(),
		Target:           risk.BacktestTarget(),
		OutputDir:        "./artifacts/backtest",
	}
}

// Selector picks the best candidate among tickers as of a date
type Selector interface {
	SelectBest(ctx context.Context, tickers []string, asOf time.Time) (*ranking.CandidateScore, *ranking.Report)
}

// Runner walks calendar days, trading at most once per day
type Runner struct {
	config   Config
	calendar ports.EarningsCalendar
	selector Selector
	prices   ports.PriceSource
	universe *universe.Universe
	clock    backtest.Clock
	observer backtest.Observer
}

// NewRunner creates a daily backtest runner
func NewRunner(config Config, calendar ports.EarningsCalendar, selector Selector, prices ports.PriceSource) *Runner {
	if config.Gate == nil {
		config.Gate = ranking.DefaultBacktestGate()
	}
	if config.PositionFraction <= 0 {
		config.PositionFraction = 0.85
	}
	if config.Stop.Multiplier == 0 {
		config.Stop = risk.BacktestStop()
	}
	if config.Target.Fraction == 0 {
		config.Target = risk.BacktestTarget()
	}
	return &Runner{
		config:   config,
		calendar: calendar,
		selector: selector,
		prices:   prices,
		clock:    backtest.RealClock{},
		observer: backtest.OrNoop(nil),
	}
}

// SetClock sets the clock implementation (for testing)
func (r *Runner) SetClock(clock backtest.Clock) {
	r.clock = clock
}

// SetUniverse restricts calendar tickers to the tradable whitelist before
// they are capped. A nil universe disables filtering.
func (r *Runner) SetUniverse(u *universe.Universe) {
	r.universe = u
}

// SetObserver attaches a progress observer
func (r *Runner) SetObserver(o backtest.Observer) {
	r.observer = backtest.OrNoop(o)
}

// Run simulates every calendar day from today minus Weeks up to today.
// The equity point for a day is recorded before that day is processed.
func (r *Runner) Run(ctx context.Context) (*backtest.Summary, error) {
	end := bars.Day(r.clock.Now())
	start := end.AddDate(0, 0, -7*r.config.Weeks)
	return r.RunRange(ctx, start, end)
}

// RunRange simulates [start, end] inclusive
func (r *Runner) RunRange(ctx context.Context, start, end time.Time) (*backtest.Summary, error) {
	start, end = bars.Day(start), bars.Day(end)
	if end.Before(start) {
		return nil, fmt.Errorf("backtest end %s before start %s", end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	summary := &backtest.Summary{
		RunID:          uuid.New().String(),
		Kind:           kind,
		StartDate:      start,
		EndDate:        end,
		InitialCapital: r.config.InitialCapital,
		SkipReasons:    make(map[string]int),
	}
	capital := r.config.InitialCapital
	totalDays := int(end.Sub(start).Hours()/24) + 1

	log.Info().Str("run_id", summary.RunID).Time("start", start).Time("end", end).
		Float64("initial_capital", capital).Int("days", totalDays).Msg("Starting daily backtest")

	day := 0
	for current := start; !current.After(end); current = current.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("backtest cancelled: %w", err)
		}
		day++

		summary.Equity = append(summary.Equity, backtest.EquityPoint{Date: current, Capital: capital})

		result, outcome := r.simulateDay(ctx, current, capital)
		r.observer.ObserveDay(kind, outcome)
		summary.DaysSimulated++
		if result == nil {
			summary.DaysSkipped++
			summary.SkipReasons[outcome]++
			log.Debug().Int("day", day).Int("total", totalDays).Time("date", current).Str("outcome", outcome).Msg("Day skipped")
		} else {
			capital = result.CapitalAfter
			summary.Trades = append(summary.Trades, *result)
			r.observer.ObserveTrade(kind, *result)
			log.Info().Int("day", day).Str("ticker", result.Ticker).Str("exit_reason", result.ExitReason.String()).
				Float64("trade_pnl", result.TradePnL).Float64("capital", capital).Msg("Trade simulated")
		}

		if r.config.Pacing > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("backtest cancelled: %w", ctx.Err())
			case <-time.After(r.config.Pacing):
			}
		}
	}

	summary.FinalCapital = capital
	backtest.Summarize(summary, backtest.Capitals(summary.Equity))

	if r.config.OutputDir != "" {
		writer := backtest.NewWriter(r.config.OutputDir, summary.RunID)
		if err := writer.WriteAll(summary); err != nil {
			return nil, fmt.Errorf("failed to write artifacts: %w", err)
		}
		log.Info().Str("dir", writer.OutputDir()).Msg("Backtest artifacts written")
	}

	log.Info().Str("run_id", summary.RunID).Int("trades", summary.NumTrades).
		Float64("final_capital", summary.FinalCapital).Float64("win_rate", summary.WinRate).
		Float64("max_drawdown_pct", summary.MaxDrawdownPct).Msg("Daily backtest completed")
	return summary, nil
}

// simulateDay processes one calendar day. A nil result means no trade and
// outcome says why.
func (r *Runner) simulateDay(ctx context.Context, current time.Time, capital float64) (*backtest.TradeResult, string) {
	if wd := current.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return nil, OutcomeWeekend
	}

	next := current.AddDate(0, 0, 1)
	tickers, err := r.calendar.TickersReporting(ctx, next)
	if err != nil {
		log.Warn().Err(err).Time("date", next).Msg("Earnings calendar unavailable")
		return nil, OutcomeCalendarErr
	}
	if len(tickers) == 0 {
		return nil, OutcomeNoEarnings
	}
	if r.universe != nil {
		if tickers = r.universe.Filter(tickers); len(tickers) == 0 {
			return nil, OutcomeNotTradable
		}
	}
	tickers = universe.Cap(tickers, r.config.MaxTickers)

	best, report := r.selector.SelectBest(ctx, tickers, next)
	if best == nil {
		if report != nil && report.GateReason != "" {
			return nil, OutcomeGateRejected
		}
		return nil, OutcomeNoCandidates
	}
	if ok, why := r.config.Gate.Admit(*best); !ok {
		log.Info().Str("ticker", best.Ticker).Str("reason", why).Msg("Candidate does not meet backtest criteria")
		return nil, OutcomeGateRejected
	}

	bracket := exits.Bracket{
		TakeProfitPct: r.config.Target.Pct(best.AvgGain),
		StopLossPct:   r.config.Stop.Pct(best.AvgDrawdown),
		HoldDays:      r.config.HoldDays,
	}
	trade, err := backtest.SimulateFromSource(ctx, r.prices, best.Ticker, next, bracket)
	if err != nil {
		log.Warn().Err(err).Str("ticker", best.Ticker).Msg("Trade simulation failed")
		return nil, OutcomeNoTrade
	}
	if trade == nil {
		return nil, OutcomeNoTrade
	}

	result := backtest.Fill(trade, capital, r.config.PositionFraction)
	result.AnalysisDate = current
	result.FinalScore = best.FinalScore
	result.PriceScore = best.PriceScore
	result.FundamentalScore = best.FundamentalScore
	result.Frequency = best.Frequency
	result.EPSBeatRate = best.Fundamentals.EPSBeatRate
	result.AvgEPSSurprise = best.Fundamentals.AvgEPSSurprisePct
	result.AnalystScore = best.Fundamentals.AnalystScore
	return &result, OutcomeTraded
}
