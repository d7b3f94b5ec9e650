package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sawpanic/earnrun/internal/universe"
)

func newUniverseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "universe",
		Short: "Tradable stock whitelist commands",
	}

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Rebuild the stock file from the broker's tradable assets",
		Long:  "Lists active, tradable US equities on the major exchanges and atomically replaces the stock file",
		RunE:  runUniverseSync,
	}
	syncCmd.Flags().String("file", "", "Stock file to write (defaults to universe.stocks_file)")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the symbols in the stock file",
		RunE:  runUniverseShow,
	}

	cmd.AddCommand(syncCmd, showCmd)
	return cmd
}

func runUniverseSync(cmd *cobra.Command, _ []string) error {
	if !cfg.Alpaca.Configured() {
		return fmt.Errorf("ALPACA_API_KEY and ALPACA_SECRET_KEY are required to list assets")
	}
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		path = cfg.Universe.StocksFile
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := universe.Sync(ctx, a.alpaca(), path, time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %d symbols to %s\n", n, path)
	return nil
}

func runUniverseShow(_ *cobra.Command, _ []string) error {
	u, err := universe.Load(cfg.Universe.StocksFile)
	if err != nil {
		return err
	}
	for _, s := range u.Symbols() {
		fmt.Println(s)
	}
	return nil
}
