// Package live runs the daily decision cycle against a brokerage account and
// watches the resulting position until it is flat.
package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/earnrun/internal/domain/bars"
	"github.com/sawpanic/earnrun/internal/domain/ranking"
	"github.com/sawpanic/earnrun/internal/notify"
	"github.com/sawpanic/earnrun/internal/persistence"
	"github.com/sawpanic/earnrun/internal/ports"
	"github.com/sawpanic/earnrun/internal/risk"
	"github.com/sawpanic/earnrun/internal/universe"
)

// Upcoming finds the next day with scheduled earnings
type Upcoming interface {
	NextEarningsTickers(ctx context.Context, today time.Time, lookahead int) (time.Time, []string, error)
}

// Selector picks the best candidate from a ticker list
type Selector interface {
	SelectBest(ctx context.Context, tickers []string, asOf time.Time) (*ranking.CandidateScore, *ranking.Report)
}

// Observer receives cycle outcomes and trade events
type Observer interface {
	ObserveSelection(report *ranking.Report)
	ObserveCycle(outcome string)
	ObserveEntry(ticker string, capital float64)
	ObserveExit(ticker string, pnl float64)
}

type noopObserver struct{}

func (noopObserver) ObserveSelection(*ranking.Report) {}
func (noopObserver) ObserveCycle(string)              {}
func (noopObserver) ObserveEntry(string, float64)     {}
func (noopObserver) ObserveExit(string, float64)      {}

// Outcome classifies how a decision cycle ended
type Outcome string

const (
	OutcomeTraded      Outcome = "traded"
	OutcomeRiskHalted  Outcome = "risk_halted"
	OutcomeNoEarnings  Outcome = "no_earnings"
	OutcomeNoTradable  Outcome = "no_tradable"
	OutcomeNoCandidate Outcome = "no_candidate"
	OutcomeRejected    Outcome = "rejected"
)

// Config controls the live engine
type Config struct {
	Mode               string
	LookaheadDays      int
	MaxStocksToAnalyze int
	AnalysisHour       int
	PollInterval       time.Duration
	LoopSleep          time.Duration
	UpdateInterval     time.Duration
	ErrorBackoff       time.Duration
	Stop               risk.StopPolicy
	Target             risk.TargetPolicy
}

// DefaultConfig returns the paper-trading defaults
func DefaultConfig() Config {
	return Config{
		Mode:               "Paper Trading",
		LookaheadDays:      7,
		MaxStocksToAnalyze: 100,
		AnalysisHour:       8,
		PollInterval:       5 * time.Minute,
		LoopSleep:          time.Hour,
		UpdateInterval:     time.Hour,
		ErrorBackoff:       5 * time.Minute,
		Stop:               risk.LiveStop(),
		Target:             risk.LiveTarget(),
	}
}

// Deps are the engine collaborators. Universe and Observer are optional.
type Deps struct {
	Broker   ports.Broker
	Quotes   ports.QuoteSource
	Earnings Upcoming
	Universe *universe.Universe
	Selector Selector
	Guard    *risk.Guard
	Repo     *persistence.Repository
	Notifier notify.Notifier
	Observer Observer
}

// CycleResult describes one decision cycle
type CycleResult struct {
	Time        time.Time               `json:"time"`
	Outcome     Outcome                 `json:"outcome"`
	Reason      string                  `json:"reason,omitempty"`
	Equity      float64                 `json:"equity"`
	EarningsDay time.Time               `json:"earnings_day,omitempty"`
	Analyzed    int                     `json:"analyzed"`
	Candidate   *ranking.CandidateScore `json:"candidate,omitempty"`
	Report      *ranking.Report         `json:"report,omitempty"`
	Order       *ports.Order            `json:"order,omitempty"`
	TradeID     int64                   `json:"trade_id,omitempty"`
	Qty         float64                 `json:"qty,omitempty"`
	EntryPrice  float64                 `json:"entry_price,omitempty"`
	CapitalUsed float64                 `json:"capital_used,omitempty"`
	TakeProfit  float64                 `json:"take_profit,omitempty"`
	StopLoss    float64                 `json:"stop_loss,omitempty"`
}

// Engine owns the risk guard for the lifetime of the process
type Engine struct {
	config Config
	deps   Deps
	now    func() time.Time

	mu           sync.RWMutex
	last         *CycleResult
	lastAnalysis time.Time
}

// New creates an engine
func New(config Config, deps Deps) *Engine {
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Observer == nil {
		deps.Observer = noopObserver{}
	}
	if deps.Guard == nil {
		deps.Guard = risk.NewGuard(risk.DefaultConfig())
	}
	if deps.Quotes == nil {
		if q, ok := deps.Broker.(ports.QuoteSource); ok {
			deps.Quotes = q
		}
	}
	return &Engine{config: config, deps: deps, now: time.Now}
}

// LastCycle returns the most recent cycle result, or nil before the first run
func (e *Engine) LastCycle() *CycleResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

// RiskSummary reports the guard status at balance
func (e *Engine) RiskSummary(balance float64) risk.Summary {
	return e.deps.Guard.Summary(balance)
}

// RunCycle runs one decision cycle. No-trade outcomes are results; errors
// are returned only for account, quote and order failures.
func (e *Engine) RunCycle(ctx context.Context) (*CycleResult, error) {
	now := e.now()
	res := &CycleResult{Time: now}
	defer func() {
		e.mu.Lock()
		e.last = res
		e.mu.Unlock()
		outcome := string(res.Outcome)
		if outcome == "" {
			outcome = "error"
		}
		e.deps.Observer.ObserveCycle(outcome)
	}()

	log.Info().Time("as_of", now).Msg("Starting daily analysis")

	account, err := e.deps.Broker.Account(ctx)
	if err != nil {
		return res, fmt.Errorf("account: %w", err)
	}
	res.Equity = account.Equity
	log.Info().Float64("equity", account.Equity).Float64("buying_power", account.BuyingPower).Msg("Account loaded")

	e.deps.Guard.StartDay(now, account.Equity)
	e.snapshot(ctx, now, account)

	if ok, reason := e.deps.Guard.CanTrade(account.Equity); !ok {
		summary := e.deps.Guard.Summary(account.Equity)
		log.Warn().Str("reason", reason).Msg("Cannot trade")
		e.notify(ctx, notify.RiskLimit(reason, summary.CurrentDrawdownPct))
		return e.finish(res, OutcomeRiskHalted, reason), nil
	}

	day, tickers, err := e.deps.Earnings.NextEarningsTickers(ctx, now, e.config.LookaheadDays)
	if err != nil {
		log.Warn().Err(err).Msg("Earnings calendar unavailable")
		e.notify(ctx, notify.NoOpportunity("earnings calendar unavailable"))
		return e.finish(res, OutcomeNoEarnings, err.Error()), nil
	}
	if len(tickers) == 0 {
		e.notify(ctx, notify.NoOpportunity("no stocks with upcoming earnings"))
		return e.finish(res, OutcomeNoEarnings, "no upcoming earnings"), nil
	}
	res.EarningsDay = day

	if e.deps.Universe != nil {
		tickers = e.deps.Universe.Filter(tickers)
	}
	tickers = universe.Cap(tickers, e.config.MaxStocksToAnalyze)
	if len(tickers) == 0 {
		e.notify(ctx, notify.NoOpportunity("no tradable stocks reporting"))
		return e.finish(res, OutcomeNoTradable, "no tradable tickers"), nil
	}
	res.Analyzed = len(tickers)

	e.notify(ctx, notify.AnalysisStart(len(tickers)))
	best, report := e.deps.Selector.SelectBest(ctx, tickers, now)
	res.Report = report
	e.deps.Observer.ObserveSelection(report)
	e.recordAnalysis(ctx, now, day, report, best)

	if best == nil {
		reason := "no stocks met analysis criteria"
		if report != nil && report.GateReason != "" {
			reason = report.GateReason
		}
		log.Info().Str("reason", reason).Msg("No suitable trading opportunities found")
		e.notify(ctx, notify.NoOpportunity(reason))
		return e.finish(res, OutcomeNoCandidate, reason), nil
	}
	res.Candidate = best

	log.Info().Str("ticker", best.Ticker).Float64("final_score", best.FinalScore).
		Float64("price_score", best.PriceScore).Float64("fundamental_score", best.FundamentalScore).
		Float64("frequency", best.Frequency).Float64("avg_gain", best.AvgGain).
		Float64("avg_drawdown", best.AvgDrawdown).Msg("Analysis complete")
	e.notify(ctx, notify.AnalysisComplete(*best))

	return e.enter(ctx, res, account, *best)
}

func (e *Engine) enter(ctx context.Context, res *CycleResult, account ports.AccountState, best ranking.CandidateScore) (*CycleResult, error) {
	price, err := e.deps.Quotes.LatestPrice(ctx, best.Ticker)
	if err != nil {
		return res, fmt.Errorf("latest price %s: %w", best.Ticker, err)
	}
	res.EntryPrice = price

	if ok, reason := e.deps.Guard.ValidateStock(price, nil); !ok {
		log.Warn().Str("ticker", best.Ticker).Str("reason", reason).Msg("Stock validation failed")
		return e.finish(res, OutcomeRejected, reason), nil
	}

	qty, capital := e.deps.Guard.Config().PositionSize(account.Equity, account.BuyingPower, price)
	if qty <= 0 {
		log.Warn().Str("ticker", best.Ticker).Float64("price", price).Msg("Position size calculated as 0")
		return e.finish(res, OutcomeRejected, "position size is zero"), nil
	}

	order := ports.BracketOrder{
		Ticker:          best.Ticker,
		Qty:             qty,
		TakeProfitPrice: e.config.Target.Price(price, best.AvgGain),
		StopLossPrice:   e.config.Stop.Price(price, best.AvgDrawdown),
	}
	res.Qty, res.CapitalUsed = qty, capital
	res.TakeProfit, res.StopLoss = order.TakeProfitPrice, order.StopLossPrice

	log.Info().Str("ticker", best.Ticker).Float64("qty", qty).Float64("entry", price).
		Float64("capital", capital).Float64("take_profit", order.TakeProfitPrice).
		Float64("stop_loss", order.StopLossPrice).Msg("Submitting bracket order")

	placed, err := e.deps.Broker.SubmitBracket(ctx, order)
	if err != nil {
		return res, fmt.Errorf("submit bracket %s: %w", best.Ticker, err)
	}
	res.Order = placed
	log.Info().Str("ticker", best.Ticker).Str("order_id", placed.ID).Msg("Bracket order submitted")

	orderID := placed.ID
	id, err := e.deps.Repo.Trades.InsertEntry(ctx, persistence.Trade{
		Ticker:          best.Ticker,
		EntryTime:       res.Time,
		EntryPrice:      price,
		Quantity:        qty,
		Side:            "buy",
		Score:           best.FinalScore,
		AvgGain:         best.AvgGain,
		AvgDrawdown:     best.AvgDrawdown,
		Frequency:       best.Frequency,
		TakeProfitPrice: order.TakeProfitPrice,
		StopLossPrice:   order.StopLossPrice,
		Status:          persistence.StatusOpen,
		OrderID:         &orderID,
	})
	if err != nil {
		log.Error().Err(err).Str("ticker", best.Ticker).Msg("Failed to record trade entry")
	}
	res.TradeID = id

	e.deps.Observer.ObserveEntry(best.Ticker, capital)
	e.notify(ctx, notify.TradeEntry(best.Ticker, notify.Entry{
		Qty:         qty,
		EntryPrice:  price,
		TakeProfit:  order.TakeProfitPrice,
		StopLoss:    order.StopLossPrice,
		CapitalUsed: capital,
		OrderID:     placed.ID,
	}))
	return e.finish(res, OutcomeTraded, ""), nil
}

func (e *Engine) finish(res *CycleResult, outcome Outcome, reason string) *CycleResult {
	res.Outcome, res.Reason = outcome, reason
	log.Info().Str("outcome", string(outcome)).Str("reason", reason).Msg("Daily analysis finished")
	return res
}

func (e *Engine) snapshot(ctx context.Context, now time.Time, a ports.AccountState) {
	err := e.deps.Repo.Snapshots.Insert(ctx, persistence.AccountSnapshot{
		Timestamp:      now,
		Equity:         a.Equity,
		Cash:           a.Cash,
		BuyingPower:    a.BuyingPower,
		PortfolioValue: a.Equity,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to record account snapshot")
	}
}

func (e *Engine) recordAnalysis(ctx context.Context, now, day time.Time, report *ranking.Report, best *ranking.CandidateScore) {
	if report == nil || len(report.Candidates) == 0 {
		return
	}
	earningsDay := bars.Day(day)
	results := make([]persistence.AnalysisResult, 0, len(report.Candidates))
	for _, c := range report.Candidates {
		results = append(results, persistence.AnalysisResult{
			Ticker:       c.Ticker,
			AnalysisDate: now,
			EarningsDate: &earningsDay,
			Score:        c.FinalScore,
			AvgGain:      c.AvgGain,
			AvgDrawdown:  c.AvgDrawdown,
			Frequency:    c.Frequency,
			Selected:     best != nil && best.Ticker == c.Ticker,
		})
	}
	if err := e.deps.Repo.Analysis.InsertBatch(ctx, results); err != nil {
		log.Error().Err(err).Int("results", len(results)).Msg("Failed to record analysis results")
	}
}

func (e *Engine) notify(ctx context.Context, ev notify.Event) {
	if err := e.deps.Notifier.Notify(ctx, ev); err != nil {
		log.Error().Err(err).Str("kind", string(ev.Kind)).Msg("Notification failed")
	}
}
