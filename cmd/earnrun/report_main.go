package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sawpanic/earnrun/internal/analytics"
	"github.com/sawpanic/earnrun/internal/persistence"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize live trading performance from the database",
		RunE:  runReport,
	}
	cmd.Flags().Int("days", 30, "Trailing window in days")
	cmd.Flags().String("date", "", "Print the summary of trades closed on this date (YYYY-MM-DD)")
	cmd.Flags().Bool("monthly", false, "Summarize the current month")
	cmd.Flags().Int("top", 5, "Number of best and worst trades to list")
	cmd.Flags().Bool("tickers", false, "Include per-ticker performance")
	cmd.Flags().Bool("equity", false, "Include the daily equity ledger")
	cmd.Flags().Bool("json", false, "Print as JSON")
	return cmd
}

type reportOutput struct {
	Summary analytics.PerformanceSummary   `json:"summary"`
	Day     *analytics.DaySummary          `json:"day,omitempty"`
	Trades  analytics.BestWorst            `json:"trades"`
	Tickers []analytics.TickerPerformance  `json:"tickers,omitempty"`
	Equity  []persistence.DailyPerformance `json:"equity,omitempty"`
}

func runReport(cmd *cobra.Command, _ []string) error {
	if !cfg.Database.Enabled {
		return errors.New("report reads persisted trades; enable the database (PG_DSN) first")
	}
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	repo, _, err := a.repository(ctx)
	if err != nil {
		return err
	}
	svc := analytics.NewService(repo)

	days, _ := cmd.Flags().GetInt("days")
	monthly, _ := cmd.Flags().GetBool("monthly")
	top, _ := cmd.Flags().GetInt("top")
	withTickers, _ := cmd.Flags().GetBool("tickers")
	withEquity, _ := cmd.Flags().GetBool("equity")
	asJSON, _ := cmd.Flags().GetBool("json")
	day, err := dateFlag(cmd, "date")
	if err != nil {
		return err
	}

	var out reportOutput
	if monthly {
		out.Summary, err = svc.Monthly(ctx)
	} else {
		out.Summary, err = svc.Summary(ctx, days)
	}
	if err != nil {
		return err
	}
	if !day.IsZero() {
		d, err := svc.Daily(ctx, day)
		if err != nil {
			return err
		}
		out.Day = &d
	}
	if out.Trades, err = svc.BestAndWorst(ctx, top); err != nil {
		return err
	}
	if withTickers {
		if out.Tickers, err = svc.ByTicker(ctx); err != nil {
			return err
		}
	}
	if withEquity {
		if out.Equity, err = svc.EquityCurve(ctx, days); err != nil {
			return err
		}
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Println(analytics.FormatSummary(out.Summary))
	if out.Day != nil {
		fmt.Printf("\n%s: %d trades, P&L $%.2f, win rate %.1f%%\n",
			out.Day.Date, out.Day.NumTrades, out.Day.TotalPnL, out.Day.WinRate)
	}
	printTrades("Best trades", out.Trades.Best)
	printTrades("Worst trades", out.Trades.Worst)
	if len(out.Tickers) > 0 {
		fmt.Println()
		fmt.Print(analytics.FormatTickers(out.Tickers))
	}
	if len(out.Equity) > 0 {
		fmt.Printf("\n%-10s %12s %12s %10s %6s\n", "DATE", "START", "END", "P&L", "TRADES")
		for _, p := range out.Equity {
			fmt.Printf("%-10s %12.2f %12.2f %10.2f %6d\n",
				p.Date.Format("2006-01-02"), p.StartingBalance, p.EndingBalance, p.PnL, p.NumTrades)
		}
	}
	return nil
}

func printTrades(title string, trades []persistence.Trade) {
	if len(trades) == 0 {
		return
	}
	fmt.Printf("\n%s:\n", title)
	for _, t := range trades {
		var pnl, pct float64
		if t.PnL != nil {
			pnl = *t.PnL
		}
		if t.PnLPct != nil {
			pct = *t.PnLPct
		}
		exit := "-"
		if t.ExitTime != nil {
			exit = t.ExitTime.Format(time.DateOnly)
		}
		fmt.Printf("  %-8s %s  $%9.2f  %+6.2f%%\n", t.Ticker, exit, pnl, pct)
	}
}
