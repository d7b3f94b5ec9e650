package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/earnrun/internal/analytics"
	httpapi "github.com/sawpanic/earnrun/internal/interfaces/http"
)

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Start the monitoring HTTP server",
		Long: `Serves /health, /metrics and /performance over the configured database
without running the trading loop. /candidate and /risk need a live engine and
report 503 here; run 'earnrun live' to serve them.`,
		RunE: runMonitor,
	}
	cmd.Flags().String("addr", "", "Listen address (defaults to monitor.addr)")
	return cmd
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("addr")
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

	deps := httpapi.Deps{Metrics: a.metrics.Handler()}
	if cfg.Database.Enabled {
		repo, health, err := a.repository(ctx)
		if err != nil {
			return err
		}
		deps.DB = health
		deps.Analytics = analytics.NewService(repo)
	}

	srvConfig := httpapi.DefaultServerConfig()
	srvConfig.Addr = addr
	srvConfig.Version = version
	server := httpapi.NewServer(srvConfig, deps)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutdown signal received")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	return server.Shutdown(shutdownCtx)
}
