package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/sawpanic/earnrun/internal/config"
)

const (
	appName = "EarnRun"
	version = "v0.4.0"
)

var (
	configPath string
	logLevel   string
	cfg        *config.Config
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	setupLogging(zerolog.InfoLevel)

	rootCmd := &cobra.Command{
		Use:     "earnrun",
		Short:   "Post-earnings reaction trading engine",
		Version: version,
		Long: `EarnRun ranks stocks reporting earnings by their historical post-earnings
price reaction blended with fundamentals, then trades the best candidate with a
bracket order (take-profit, stop-loss, five-day time exit).

Backtests run offline against a sample calendar when no Finnhub key is set.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/earnrun.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug|info|warn|error)")

	rootCmd.AddCommand(
		newAnalyzeCmd(),
		newSimulateCmd(),
		newBacktestCmd(),
		newReplayCmd(),
		newLiveCmd(),
		newMonitorCmd(),
		newReportCmd(),
		newUniverseCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads configuration and applies the log level before any command runs
func loadConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
	}
	cfg = loaded
	setupLogging(cfg.LogLevel())

	log.Debug().Str("command", cmd.Name()).Str("config", configPath).Msg(appName + " configuration loaded")
	return nil
}

// setupLogging writes human-readable logs to a terminal and JSON otherwise
func setupLogging(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// capitalFlags are shared by the backtest commands
func capitalFlags(output string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("capital", pflag.ContinueOnError)
	fs.Float64("capital", 10000, "Initial capital")
	fs.Float64("position-fraction", 0.85, "Fraction of capital committed per trade")
	fs.Int("hold-days", 5, "Maximum trading days a position is held")
	fs.String("output", output, "Artifact output directory (empty disables artifacts)")
	fs.String("bars-dir", "", "Read daily bars from <dir>/<TICKER>.csv instead of Alpaca")
	return fs
}

// dateFlag parses a YYYY-MM-DD flag, returning zero time when unset
func dateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q: %w", name, v, err)
	}
	return t, nil
}
