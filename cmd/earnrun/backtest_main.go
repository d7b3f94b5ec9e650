package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/earnrun/internal/backtest"
	"github.com/sawpanic/earnrun/internal/backtest/daily"
	"github.com/sawpanic/earnrun/internal/backtest/replay"
	"github.com/sawpanic/earnrun/internal/universe"
)

func newBacktestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Walk calendar days and trade the best earnings candidate",
		Long: `Simulates every calendar day in the window: finds tickers reporting the next
day, ranks them on history before that day, gates the best one and plays a
bracket trade forward. At most one trade per day; capital compounds.`,
		RunE: runBacktest,
	}
	cmd.Flags().AddFlagSet(capitalFlags("./artifacts/backtest"))
	cmd.Flags().Int("weeks", 3, "Window length ending today, in weeks")
	cmd.Flags().String("start", "", "Window start (YYYY-MM-DD), overrides --weeks")
	cmd.Flags().String("end", "", "Window end (YYYY-MM-DD), defaults to today")
	cmd.Flags().Duration("pacing", 0, "Pause between simulated days")
	cmd.Flags().Int("history-years", daily.DefaultConfig().HistoryYears, "Years of estimated earnings history behind each candidate")
	return cmd
}

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay PLAN.csv",
		Short: "Replay a fixed list of planned trades",
		Long: `Simulates each row of a CSV plan (ticker, entry_date, avg_gain, avg_drawdown)
in order with take-profit at avg_gain and stop-loss at 1.1x avg_drawdown.`,
		Args: cobra.ExactArgs(1),
		RunE: runReplay,
	}
	cmd.Flags().AddFlagSet(capitalFlags("./artifacts/replay"))
	return cmd
}

func runBacktest(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	config := daily.DefaultConfig()
	config.InitialCapital, _ = cmd.Flags().GetFloat64("capital")
	config.PositionFraction, _ = cmd.Flags().GetFloat64("position-fraction")
	config.HoldDays, _ = cmd.Flags().GetInt("hold-days")
	config.OutputDir, _ = cmd.Flags().GetString("output")
	config.Weeks, _ = cmd.Flags().GetInt("weeks")
	config.Pacing, _ = cmd.Flags().GetDuration("pacing")
	config.HistoryYears, _ = cmd.Flags().GetInt("history-years")
	config.MaxTickers = cfg.Analysis.MaxStocksToAnalyze
	if config.InitialCapital <= 0 || config.Weeks <= 0 || config.HistoryYears <= 0 {
		return errors.New("--capital, --weeks and --history-years must be positive")
	}

	start, err := dateFlag(cmd, "start")
	if err != nil {
		return err
	}
	end, err := dateFlag(cmd, "end")
	if err != nil {
		return err
	}

	barsDir, _ := cmd.Flags().GetString("bars-dir")
	prices, err := a.prices(barsDir)
	if err != nil {
		return err
	}
	ranker, err := a.backtestRanker(prices, config.HistoryYears)
	if err != nil {
		return err
	}

	fh := a.finnhub()
	runner := daily.NewRunner(config, a.calendar(fh), ranker, prices)
	runner.SetObserver(a.metrics)
	if fh != nil {
		stocks, err := universe.Load(cfg.Universe.StocksFile)
		if err != nil {
			return err
		}
		runner.SetUniverse(stocks)
	}

	timer := a.metrics.StartStepTimer("backtest")
	var summary *backtest.Summary
	switch {
	case start.IsZero() && end.IsZero():
		summary, err = runner.Run(ctx)
	default:
		if end.IsZero() {
			end = time.Now()
		}
		if start.IsZero() {
			start = end.AddDate(0, 0, -7*config.Weeks)
		}
		summary, err = runner.RunRange(ctx, start, end)
	}
	if err != nil {
		timer.Stop("error")
		return err
	}
	timer.Stop("success")

	fmt.Print(backtest.Report(summary))
	return nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	entries, err := replay.LoadEntries(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	config := replay.DefaultConfig()
	config.InitialCapital, _ = cmd.Flags().GetFloat64("capital")
	config.PositionFraction, _ = cmd.Flags().GetFloat64("position-fraction")
	config.HoldDays, _ = cmd.Flags().GetInt("hold-days")
	config.OutputDir, _ = cmd.Flags().GetString("output")

	barsDir, _ := cmd.Flags().GetString("bars-dir")
	prices, err := a.prices(barsDir)
	if err != nil {
		return err
	}

	runner := replay.NewRunner(config, prices)
	runner.SetObserver(a.metrics)

	timer := a.metrics.StartStepTimer("replay")
	summary, err := runner.Run(ctx, entries)
	if errors.Is(err, replay.ErrNoTrades) {
		timer.Stop("empty")
		log.Warn().Int("entries", len(entries)).Msg("Replay produced no trades")
		return nil
	}
	if err != nil {
		timer.Stop("error")
		return err
	}
	timer.Stop("success")

	fmt.Print(backtest.Report(summary))
	return nil
}
