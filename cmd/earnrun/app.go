package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/earnrun/internal/cache"
	"github.com/sawpanic/earnrun/internal/config"
	"github.com/sawpanic/earnrun/internal/domain/earnings"
	"github.com/sawpanic/earnrun/internal/domain/fundamentals"
	"github.com/sawpanic/earnrun/internal/domain/ranking"
	"github.com/sawpanic/earnrun/internal/domain/reaction"
	"github.com/sawpanic/earnrun/internal/infrastructure/db"
	httpapi "github.com/sawpanic/earnrun/internal/interfaces/http"
	"github.com/sawpanic/earnrun/internal/metrics"
	"github.com/sawpanic/earnrun/internal/net/guard"
	"github.com/sawpanic/earnrun/internal/notify"
	"github.com/sawpanic/earnrun/internal/persistence"
	"github.com/sawpanic/earnrun/internal/persistence/memory"
	"github.com/sawpanic/earnrun/internal/ports"
	"github.com/sawpanic/earnrun/internal/providers/alpaca"
	"github.com/sawpanic/earnrun/internal/providers/finnhub"
	"github.com/sawpanic/earnrun/internal/providers/sample"
)

// app holds the collaborators shared by every command
type app struct {
	cfg     *config.Config
	weights *config.WeightsConfig
	metrics *metrics.Registry
	cache   cache.Cache
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	weights := config.DefaultWeights()
	if cfg.WeightsFile != "" {
		loaded, err := config.LoadWeights(cfg.WeightsFile)
		if err != nil {
			return nil, err
		}
		weights = loaded
	}
	return &app{
		cfg:     cfg,
		weights: weights,
		metrics: metrics.NewRegistry(),
		cache:   cache.New(ctx, cfg.Cache),
	}, nil
}

// Close releases connections opened by the builders
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Shutdown cleanup failed")
		}
	}
}

func (a *app) alpaca() *alpaca.Client {
	return alpaca.New(a.cfg.Alpaca, guard.New(a.cfg.Guard("alpaca")))
}

// finnhub returns nil when no key is configured
func (a *app) finnhub() *finnhub.Client {
	if !a.cfg.Finnhub.Configured() {
		return nil
	}
	return finnhub.New(a.cfg.Finnhub, guard.New(a.cfg.Guard("finnhub")))
}

// prices prefers CSV bars from barsDir, then cached Alpaca bars
func (a *app) prices(barsDir string) (ports.PriceSource, error) {
	if barsDir != "" {
		log.Info().Str("dir", barsDir).Msg("Using CSV price bars")
		return sample.NewCSVPrices(barsDir), nil
	}
	if !a.cfg.Alpaca.Configured() {
		return nil, fmt.Errorf("%w: ALPACA_API_KEY and ALPACA_SECRET_KEY are required for price data (or pass --bars-dir)", config.ErrInvalid)
	}
	return cache.NewPrices(a.alpaca(), a.metrics.InstrumentCache("bars", a.cache), a.cfg.Cache.BarsTTL), nil
}

// calendar returns the Finnhub calendar or the built-in sample
func (a *app) calendar(fh *finnhub.Client) ports.EarningsCalendar {
	if fh == nil {
		log.Warn().Msg("FINNHUB_API_KEY not set, using the sample earnings calendar")
		return sample.October2024()
	}
	return fh
}

// liveRanker scores against published earnings dates and real fundamentals
// when Finnhub is available and falls back to estimated dates otherwise.
func (a *app) liveRanker(prices ports.PriceSource, fh *finnhub.Client) (*ranking.Ranker, error) {
	var (
		fetcher earnings.HistoryFetcher
		fund    fundamentals.Source
	)
	if fh != nil {
		fetcher = fh
		fund = cache.NewFundamentals(fh, a.metrics.InstrumentCache("fundamentals", a.cache), a.cfg.Cache.FundTTL)
	}
	events, estimated := earnings.Select(fetcher)
	rc := reaction.DefaultConfig()
	if estimated {
		rc = reaction.EstimatedConfig()
	}

	patterns := &ranking.HistoryPatterns{
		Events:    events,
		Prices:    prices,
		Analyzer:  reaction.NewAnalyzer(rc),
		YearsBack: a.cfg.Analysis.HistoryYears,
	}
	gate := ranking.LiveGate{MinScore: a.cfg.Analysis.MinScoreThreshold, MinAvgGainPercent: a.cfg.Analysis.MinAvgGainPercent}
	return a.ranker(patterns, fund, gate)
}

// backtestRanker uses estimated quarterly dates and neutral fundamentals so
// that a run never depends on point-in-time provider history. The runner
// applies its own gate.
func (a *app) backtestRanker(prices ports.PriceSource, yearsBack int) (*ranking.Ranker, error) {
	return a.ranker(a.backtestPatterns(prices, yearsBack), fundamentals.NeutralSource{}, nil)
}

func (a *app) backtestPatterns(prices ports.PriceSource, yearsBack int) *ranking.HistoryPatterns {
	return &ranking.HistoryPatterns{
		Events:    earnings.NewQuarterlyEstimator(),
		Prices:    prices,
		Analyzer:  reaction.NewAnalyzer(reaction.EstimatedConfig()),
		YearsBack: yearsBack,
	}
}

func (a *app) ranker(patterns *ranking.HistoryPatterns, fund fundamentals.Source, gate ranking.Gate) (*ranking.Ranker, error) {
	profile, err := a.weights.ActiveProfile()
	if err != nil {
		return nil, err
	}
	log.Debug().Str("profile", a.weights.Active).Str("mode", patterns.Analyzer.Config().Mode.String()).
		Int("years_back", patterns.YearsBack).Msg("Ranker configured")

	rcfg := ranking.Config{
		Blend:          profile.Blend,
		MinEPSBeatRate: a.cfg.Analysis.MinEPSBeatRate,
		Gate:           gate,
		TickerTimeout:  a.cfg.Analysis.TickerTimeout,
	}
	return ranking.NewRanker(patterns, fund, fundamentals.NewScorer(profile.Fundamentals), rcfg), nil
}

// repository opens Postgres when enabled and an in-memory store otherwise.
// health is nil for the in-memory store.
func (a *app) repository(ctx context.Context) (*persistence.Repository, persistence.RepositoryHealth, error) {
	if !a.cfg.Database.Enabled {
		log.Info().Msg("Database disabled, keeping trades in memory")
		return memory.New().Repository(), nil, nil
	}
	m, err := db.NewManager(ctx, a.cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, m.Close)
	return m.Repository(), m.Health(), nil
}

// notifier fans events out to every configured sink plus hub
func (a *app) notifier(ctx context.Context, hub *httpapi.Hub) *notify.Fanout {
	fan := notify.NewFanout()
	if a.cfg.Telegram.Configured() {
		tg := notify.NewTelegram(a.cfg.Telegram, guard.New(a.cfg.Guard("telegram")), nil)
		if err := tg.Check(ctx); err != nil {
			log.Warn().Err(err).Msg("Telegram bot check failed, notifications may not arrive")
		}
		fan.Add(tg)
	}
	if a.cfg.Kafka.Configured() {
		k := notify.NewKafka(a.cfg.Kafka)
		a.closers = append(a.closers, k.Close)
		fan.Add(k)
	}
	if hub != nil {
		fan.Add(hub)
	}
	log.Info().Int("sinks", fan.Len()).Msg("Notifications configured")
	return fan
}

