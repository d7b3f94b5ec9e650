package live

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/earnrun/internal/domain/bars"
	"github.com/sawpanic/earnrun/internal/notify"
	"github.com/sawpanic/earnrun/internal/persistence"
	"github.com/sawpanic/earnrun/internal/ports"
)

// ExitReason is reported when a bracket leg closes the position
const ExitReason = "Bracket order executed"

// Run drives the engine until ctx is cancelled. Open positions are watched
// until flat; otherwise a cycle runs once per day at the analysis hour.
func (e *Engine) Run(ctx context.Context) error {
	log.Info().Str("mode", e.config.Mode).Int("analysis_hour", e.config.AnalysisHour).Msg("Trading engine started")
	e.notify(ctx, notify.Startup(e.config.Mode))

	for {
		wait, err := e.step(ctx)
		if ctx.Err() != nil {
			log.Info().Msg("Trading engine stopping")
			return ctx.Err()
		}
		if err != nil {
			log.Error().Err(err).Dur("retry_in", e.config.ErrorBackoff).Msg("Engine step failed")
			e.notify(ctx, notify.Failure(err.Error(), false))
			wait = e.config.ErrorBackoff
		}
		if err := sleep(ctx, wait); err != nil {
			log.Info().Msg("Trading engine stopping")
			return err
		}
	}
}

func (e *Engine) step(ctx context.Context) (time.Duration, error) {
	positions, err := e.deps.Broker.Positions(ctx)
	if err != nil {
		return 0, fmt.Errorf("positions: %w", err)
	}
	if len(positions) > 0 {
		for _, p := range positions {
			log.Info().Str("ticker", p.Ticker).Float64("qty", p.Qty).
				Float64("entry_price", p.AvgEntryPrice).Msg("Found open position")
			if _, err := e.Monitor(ctx, p); err != nil {
				return 0, err
			}
		}
		return 0, nil
	}

	now := e.now()
	today := bars.Day(now)
	if !e.analysisDue(now, today) {
		log.Debug().Int("analysis_hour", e.config.AnalysisHour).Dur("sleep", e.config.LoopSleep).
			Msg("Waiting for analysis time")
		return e.config.LoopSleep, nil
	}

	res, err := e.RunCycle(ctx)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	e.lastAnalysis = today
	e.mu.Unlock()

	if res.Outcome == OutcomeTraded {
		return e.config.PollInterval, nil
	}
	return e.config.LoopSleep, nil
}

func (e *Engine) analysisDue(now, today time.Time) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return now.Hour() == e.config.AnalysisHour && !today.Equal(e.lastAnalysis)
}

// Monitor polls until the position for open.Ticker is flat, then records
// the exit from the last observed state and closes the day's ledger row.
func (e *Engine) Monitor(ctx context.Context, open ports.Position) (*persistence.TradeExit, error) {
	ticker := open.Ticker
	last := open
	var lastUpdate time.Time
	log.Info().Str("ticker", ticker).Dur("poll", e.config.PollInterval).Msg("Monitoring position")

	for {
		if err := sleep(ctx, e.config.PollInterval); err != nil {
			return nil, err
		}

		positions, err := e.deps.Broker.Positions(ctx)
		if err != nil {
			log.Warn().Err(err).Str("ticker", ticker).Msg("Position poll failed")
			continue
		}

		pos, held := find(positions, ticker)
		if !held {
			break
		}
		last = pos
		log.Info().Str("ticker", ticker).Float64("price", pos.CurrentPrice).
			Float64("unrealized_pl", pos.UnrealizedPL).Float64("unrealized_pct", pos.UnrealizedPLPct*100).
			Msg("Position open")

		if now := e.now(); lastUpdate.IsZero() || now.Sub(lastUpdate) >= e.config.UpdateInterval {
			e.notify(ctx, notify.PositionUpdate(pos))
			lastUpdate = now
		}
	}

	exit := persistence.TradeExit{
		Ticker:    ticker,
		ExitTime:  e.now(),
		ExitPrice: last.CurrentPrice,
		PnL:       last.UnrealizedPL,
		PnLPct:    persistence.PnLPct(last.UnrealizedPL, last.AvgEntryPrice, last.Qty),
	}
	log.Info().Str("ticker", ticker).Float64("exit_price", exit.ExitPrice).Float64("pnl", exit.PnL).
		Float64("pnl_pct", exit.PnLPct).Msg("Position closed")

	n, err := e.deps.Repo.Trades.RecordExit(ctx, exit)
	switch {
	case err != nil:
		log.Error().Err(err).Str("ticker", ticker).Msg("Failed to record trade exit")
	case n == 0:
		log.Warn().Str("ticker", ticker).Msg("No open trade recorded for closed position")
	}

	e.deps.Observer.ObserveExit(ticker, exit.PnL)
	e.notify(ctx, notify.TradeExit(ticker, notify.Exit{
		ExitPrice: exit.ExitPrice,
		PnL:       exit.PnL,
		PnLPct:    exit.PnLPct,
		Reason:    ExitReason,
	}))
	e.closeDay(ctx, exit.ExitTime)
	return &exit, nil
}

// closeDay writes the ledger row for day and sends the daily recap
func (e *Engine) closeDay(ctx context.Context, day time.Time) {
	account, err := e.deps.Broker.Account(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Account unavailable for daily summary")
		return
	}
	start := e.deps.Guard.State().DailyStartBalance
	if start <= 0 {
		start = account.Equity
	}

	perf, err := e.deps.Repo.Performance.Upsert(ctx, day, start, account.Equity)
	if err != nil {
		log.Error().Err(err).Msg("Failed to record daily performance")
		return
	}

	summary := notify.DailySummary{
		Date:      bars.Day(day).Format("2006-01-02"),
		TotalPnL:  perf.PnL,
		NumTrades: perf.NumTrades,
		Equity:    account.Equity,
	}
	if perf.NumTrades > 0 {
		summary.WinRate = float64(perf.NumWins) / float64(perf.NumTrades) * 100
	}
	e.notify(ctx, notify.Daily(summary))
}

func find(positions []ports.Position, ticker string) (ports.Position, bool) {
	for _, p := range positions {
		if p.Ticker == ticker {
			return p, true
		}
	}
	return ports.Position{}, false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
