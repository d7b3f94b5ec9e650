package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/earnrun/internal/analytics"
	httpapi "github.com/sawpanic/earnrun/internal/interfaces/http"
	"github.com/sawpanic/earnrun/internal/live"
	"github.com/sawpanic/earnrun/internal/risk"
	"github.com/sawpanic/earnrun/internal/universe"
)

func newLiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Run the paper-trading loop",
		Long: `Runs the daily decision cycle at the configured analysis hour: snapshot the
account, check risk limits, rank tomorrow's earnings candidates, size the
position and submit a bracket order. While a position is open it is monitored
until flat. The monitor server runs alongside unless --monitor-addr is empty.`,
		RunE: runLive,
	}
	cmd.Flags().Bool("once", false, "Run a single decision cycle now and exit")
	cmd.Flags().String("monitor-addr", "", "Monitor server address (defaults to monitor.addr)")
	cmd.Flags().Bool("no-monitor", false, "Do not start the monitor server")
	return cmd
}

func runLive(cmd *cobra.Command, _ []string) error {
	if err := cfg.RequireLive(); err != nil {
		return err
	}
	once, _ := cmd.Flags().GetBool("once")
	noMonitor, _ := cmd.Flags().GetBool("no-monitor")
	addr, _ := cmd.Flags().GetString("monitor-addr")
	if addr == "" {
		addr = cfg.Monitor.Addr
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	broker := a.alpaca()
	fh := a.finnhub()
	prices, err := a.prices("")
	if err != nil {
		return err
	}
	ranker, err := a.liveRanker(prices, fh)
	if err != nil {
		return err
	}
	repo, health, err := a.repository(ctx)
	if err != nil {
		return err
	}
	stocks, err := universe.Load(cfg.Universe.StocksFile)
	if err != nil {
		return err
	}

	hub := httpapi.NewHub()
	config := live.DefaultConfig()
	config.LookaheadDays = cfg.Analysis.LookaheadDays
	config.MaxStocksToAnalyze = cfg.Analysis.MaxStocksToAnalyze
	config.AnalysisHour = cfg.Schedule.AnalysisHour
	config.PollInterval = cfg.Schedule.PollInterval
	config.LoopSleep = cfg.Schedule.LoopSleep

	engine := live.New(config, live.Deps{
		Broker:   broker,
		Earnings: fh,
		Universe: stocks,
		Selector: ranker,
		Guard:    risk.NewGuard(cfg.Risk),
		Repo:     repo,
		Notifier: a.notifier(ctx, hub),
		Observer: a.metrics,
	})

	if once {
		result, err := engine.RunCycle(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if !noMonitor && addr != "" {
		srvConfig := httpapi.DefaultServerConfig()
		srvConfig.Addr = addr
		srvConfig.Version = version
		server := httpapi.NewServer(srvConfig, httpapi.Deps{
			Metrics:   a.metrics.Handler(),
			Cycles:    engine,
			DB:        health,
			Analytics: analytics.NewService(repo),
			Hub:       hub,
		})
		go func() {
			if err := server.Start(); err != nil {
				log.Error().Err(err).Msg("Monitor server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	log.Info().Str("mode", config.Mode).Int("analysis_hour", config.AnalysisHour).
		Int("universe", stocks.Len()).Msg("Starting " + appName + " live loop")

	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("Live loop stopped")
	return nil
}
