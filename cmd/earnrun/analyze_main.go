package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/earnrun/internal/domain/bars"
	"github.com/sawpanic/earnrun/internal/domain/ranking"
	"github.com/sawpanic/earnrun/internal/universe"
)

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [TICKER...]",
		Short: "Rank earnings candidates",
		Long: `Scores tickers by historical post-earnings reaction and fundamentals and
prints the best candidate. Without arguments the tickers reporting on the next
earnings day (within the look-ahead window) are analyzed.`,
		RunE: runAnalyze,
	}
	cmd.Flags().String("date", "", "Analysis date (YYYY-MM-DD), defaults to today")
	cmd.Flags().Bool("json", false, "Print the selection report as JSON")
	cmd.Flags().Bool("no-universe", false, "Do not restrict tickers to the stock file")
	cmd.Flags().String("bars-dir", "", "Read daily bars from <dir>/<TICKER>.csv instead of Alpaca")
	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	asOf, err := dateFlag(cmd, "date")
	if err != nil {
		return err
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}
	barsDir, _ := cmd.Flags().GetString("bars-dir")
	asJSON, _ := cmd.Flags().GetBool("json")
	noUniverse, _ := cmd.Flags().GetBool("no-universe")

	prices, err := a.prices(barsDir)
	if err != nil {
		return err
	}
	fh := a.finnhub()

	tickers := make([]string, 0, len(args))
	for _, t := range args {
		tickers = append(tickers, strings.ToUpper(t))
	}
	if len(tickers) == 0 {
		day := bars.Day(asOf)
		if fh != nil {
			day, tickers, err = fh.NextEarningsTickers(ctx, asOf, cfg.Analysis.LookaheadDays)
			if err != nil {
				return fmt.Errorf("earnings calendar: %w", err)
			}
		} else if tickers, err = a.calendar(nil).TickersReporting(ctx, day); err != nil {
			return err
		}
		if len(tickers) == 0 {
			log.Info().Time("date", day).Msg("No earnings scheduled")
			return nil
		}
		asOf = day
		log.Info().Time("earnings_day", day).Int("tickers", len(tickers)).Msg("Found earnings")

		if !noUniverse {
			u, err := universe.Load(cfg.Universe.StocksFile)
			if err != nil {
				return err
			}
			tickers = u.Filter(tickers)
		}
		tickers = universe.Cap(tickers, cfg.Analysis.MaxStocksToAnalyze)
	}

	ranker, err := a.liveRanker(prices, fh)
	if err != nil {
		return err
	}

	timer := a.metrics.StartStepTimer("analyze")
	best, report := ranker.SelectBest(ctx, tickers, asOf)
	timer.Stop(outcome(best != nil))
	a.metrics.ObserveSelection(report)

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(report)
	return nil
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "empty"
}

func printReport(r *ranking.Report) {
	fmt.Printf("Analysis as of %s: %d evaluated, %d scored, %d skipped, %d filtered\n\n",
		r.AsOf.Format("2006-01-02"), r.Evaluated, len(r.Candidates), len(r.Skipped), len(r.Filtered))

	if len(r.Candidates) > 0 {
		fmt.Printf("%-8s %8s %8s %8s %9s %9s %6s\n", "TICKER", "FINAL", "PRICE", "FUND", "AVG GAIN", "AVG DD", "FREQ")
		for _, c := range r.Candidates {
			fmt.Printf("%-8s %8.3f %8.3f %8.3f %8.2f%% %8.2f%% %5.0f%%\n",
				c.Ticker, c.FinalScore, c.PriceScore, c.FundamentalScore,
				c.AvgGain*100, c.AvgDrawdown*100, c.Frequency*100)
		}
		fmt.Println()
	}
	for _, s := range r.Skipped {
		fmt.Printf("  skipped  %-8s %s\n", s.Ticker, s.Reason)
	}
	for _, s := range r.Filtered {
		fmt.Printf("  filtered %-8s %s\n", s.Ticker, s.Reason)
	}

	switch {
	case r.Best != nil:
		fmt.Printf("\nBest candidate: %s (score %.3f)\n", r.Best.Ticker, r.Best.FinalScore)
	case r.GateReason != "":
		fmt.Printf("\nNo candidate: %s\n", r.GateReason)
	default:
		fmt.Println("\nNo candidate met the analysis criteria")
	}
}
