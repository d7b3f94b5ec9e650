package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sawpanic/earnrun/internal/backtest"
	"github.com/sawpanic/earnrun/internal/exits"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate TICKER",
		Short: "Simulate one bracket trade over historical bars",
		Long: `Enters TICKER at the close of --entry (or the next trading day) and walks
the bracket forward: take-profit wins same-bar ties with the stop, and the
position is closed at the close of the last hold day otherwise.`,
		Args: cobra.ExactArgs(1),
		RunE: runSimulate,
	}
	cmd.Flags().String("entry", "", "Entry date (YYYY-MM-DD, required)")
	cmd.Flags().Float64("take-profit", 0.10, "Take-profit as a fraction of entry (0.10 = +10%)")
	cmd.Flags().Float64("stop-loss", -0.08, "Stop-loss as a negative fraction of entry (-0.08 = -8%)")
	cmd.Flags().Int("hold-days", exits.DefaultHoldDays, "Maximum trading days held")
	cmd.Flags().String("bars-dir", "", "Read daily bars from <dir>/<TICKER>.csv instead of Alpaca")
	cmd.Flags().Bool("json", false, "Print the trade as JSON")
	_ = cmd.MarkFlagRequired("entry")
	return cmd
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	entry, err := dateFlag(cmd, "entry")
	if err != nil {
		return err
	}
	tp, _ := cmd.Flags().GetFloat64("take-profit")
	sl, _ := cmd.Flags().GetFloat64("stop-loss")
	hold, _ := cmd.Flags().GetInt("hold-days")
	barsDir, _ := cmd.Flags().GetString("bars-dir")
	asJSON, _ := cmd.Flags().GetBool("json")

	if tp <= 0 || sl >= 0 {
		return errors.New("--take-profit must be positive and --stop-loss negative")
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	prices, err := a.prices(barsDir)
	if err != nil {
		return err
	}

	ticker := strings.ToUpper(args[0])
	trade, err := backtest.SimulateFromSource(ctx, prices, ticker, entry, exits.Bracket{TakeProfitPct: tp, StopLossPct: sl, HoldDays: hold})
	if err != nil {
		return err
	}
	if trade == nil {
		return fmt.Errorf("no entry bar for %s on or after %s", ticker, entry.Format("2006-01-02"))
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(trade)
	}
	fmt.Println(trade.Summary())
	fmt.Printf("  take-profit %.2f, stop-loss %.2f\n", trade.TakeProfitPrice, trade.StopLossPrice)
	return nil
}
