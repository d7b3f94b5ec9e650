package replay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/earnrun/internal/backtest"
	"github.com/sawpanic/earnrun/internal/domain/bars"
	"github.com/sawpanic/earnrun/internal/exits"
	"github.com/sawpanic/earnrun/internal/ports"
	"github.com/sawpanic/earnrun/internal/risk"
)

const kind = "replay"

// Defaults applied to entries that omit their pattern statistics
const (
	DefaultAvgGain     = 0.10
	DefaultAvgDrawdown = -0.08
)

// Entry is one planned trade
type Entry struct {
	Ticker      string
	EntryDate   time.Time
	AvgGain     float64
	AvgDrawdown float64
}

type entryRow struct {
	Ticker      string `csv:"ticker"`
	EntryDate   string `csv:"entry_date"`
	AvgGain     string `csv:"avg_gain"`
	AvgDrawdown string `csv:"avg_drawdown"`
}

// LoadEntries reads a CSV plan with columns ticker, entry_date and the
// optional avg_gain and avg_drawdown.
func LoadEntries(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open replay plan: %w", err)
	}
	defer file.Close()

	var rows []*entryRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse replay plan: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for i, row := range rows {
		e, err := row.entry()
		if err != nil {
			return nil, fmt.Errorf("replay plan row %d: %w", i+1, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *entryRow) entry() (Entry, error) {
	ticker := strings.ToUpper(strings.TrimSpace(r.Ticker))
	if ticker == "" {
		return Entry{}, errors.New("missing ticker")
	}
	d, err := time.Parse("2006-01-02", strings.TrimSpace(r.EntryDate))
	if err != nil {
		return Entry{}, fmt.Errorf("invalid entry_date %q: %w", r.EntryDate, err)
	}
	gain, err := parseOr(r.AvgGain, DefaultAvgGain)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid avg_gain: %w", err)
	}
	dd, err := parseOr(r.AvgDrawdown, DefaultAvgDrawdown)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid avg_drawdown: %w", err)
	}
	return Entry{Ticker: ticker, EntryDate: d, AvgGain: gain, AvgDrawdown: dd}, nil
}

func parseOr(s string, def float64) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	return strconv.ParseFloat(s, 64)
}

// Config represents replay configuration
type Config struct {
	InitialCapital   float64
	PositionFraction float64
	HoldDays         int
	Stop             risk.StopPolicy
	Target           risk.TargetPolicy
	OutputDir        string
}

// DefaultConfig returns the replay defaults
func DefaultConfig() Config {
	return Config{
		InitialCapital:   10000,
		PositionFraction: 0.85,
		HoldDays:         exits.DefaultHoldDays,
		Stop:             risk.ReplayStop(),
		Target:           risk.BacktestTarget(),
		OutputDir:        "./artifacts/replay",
	}
}

// ErrNoTrades is returned when no entry produced a trade
var ErrNoTrades = errors.New("no trades executed")

// Runner replays a fixed list of entries in order
type Runner struct {
	config   Config
	prices   ports.PriceSource
	observer backtest.Observer
}

// NewRunner creates a replay runner
func NewRunner(config Config, prices ports.PriceSource) *Runner {
	if config.PositionFraction <= 0 {
		config.PositionFraction = 0.85
	}
	if config.Stop.Multiplier == 0 {
		config.Stop = risk.ReplayStop()
	}
	if config.Target.Fraction == 0 {
		config.Target = risk.BacktestTarget()
	}
	return &Runner{config: config, prices: prices, observer: backtest.OrNoop(nil)}
}

// SetObserver attaches a progress observer
func (r *Runner) SetObserver(o backtest.Observer) {
	r.observer = backtest.OrNoop(o)
}

// Run simulates every entry, compounding capital trade by trade. Entries
// whose bars are unavailable or that have no future trading day are skipped.
// Max drawdown is measured over the capital after each trade.
func (r *Runner) Run(ctx context.Context, entries []Entry) (*backtest.Summary, error) {
	summary := &backtest.Summary{
		RunID:          uuid.New().String(),
		Kind:           kind,
		InitialCapital: r.config.InitialCapital,
		SkipReasons:    make(map[string]int),
	}
	capital := r.config.InitialCapital

	log.Info().Str("run_id", summary.RunID).Float64("initial_capital", capital).
		Int("entries", len(entries)).Msg("Starting replay backtest")

	var capitals []float64
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("replay cancelled: %w", err)
		}
		if summary.StartDate.IsZero() || e.EntryDate.Before(summary.StartDate) {
			summary.StartDate = bars.Day(e.EntryDate)
		}
		if e.EntryDate.After(summary.EndDate) {
			summary.EndDate = bars.Day(e.EntryDate)
		}

		bracket := exits.Bracket{
			TakeProfitPct: r.config.Target.Pct(e.AvgGain),
			StopLossPct:   r.config.Stop.Pct(e.AvgDrawdown),
			HoldDays:      r.config.HoldDays,
		}
		trade, err := backtest.SimulateFromSource(ctx, r.prices, e.Ticker, e.EntryDate, bracket)
		if err != nil {
			log.Warn().Err(err).Str("ticker", e.Ticker).Msg("Replay entry skipped")
			summary.SkipReasons["no_price_data"]++
			r.observer.ObserveDay(kind, "no_price_data")
			continue
		}
		if trade == nil {
			summary.SkipReasons["no_trade"]++
			r.observer.ObserveDay(kind, "no_trade")
			continue
		}

		result := backtest.Fill(trade, capital, r.config.PositionFraction)
		capital = result.CapitalAfter
		capitals = append(capitals, capital)
		summary.Trades = append(summary.Trades, result)
		summary.Equity = append(summary.Equity, backtest.EquityPoint{Date: result.ExitDate, Capital: capital})
		r.observer.ObserveDay(kind, "traded")
		r.observer.ObserveTrade(kind, result)

		log.Info().Str("ticker", e.Ticker).Float64("pnl_pct", result.PnLPct).
			Float64("trade_pnl", result.TradePnL).Float64("capital", capital).Msg("Replay trade")
	}
	summary.DaysSimulated = len(entries)
	summary.DaysSkipped = len(entries) - len(summary.Trades)

	if len(summary.Trades) == 0 {
		log.Warn().Msg("No successful trades in replay")
		return nil, ErrNoTrades
	}

	summary.FinalCapital = capital
	backtest.Summarize(summary, capitals)

	if r.config.OutputDir != "" {
		writer := backtest.NewWriter(r.config.OutputDir, summary.RunID)
		if err := writer.WriteAll(summary); err != nil {
			return nil, fmt.Errorf("failed to write artifacts: %w", err)
		}
	}

	log.Info().Str("run_id", summary.RunID).Int("trades", summary.NumTrades).
		Float64("final_capital", summary.FinalCapital).Float64("max_drawdown_pct", summary.MaxDrawdownPct).
		Msg("Replay backtest completed")
	return summary, nil
}
