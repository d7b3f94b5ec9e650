// Package metrics exposes Prometheus instruments for selection runs,
// backtests and the live engine.
package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/earnrun/internal/backtest"
	"github.com/sawpanic/earnrun/internal/cache"
	"github.com/sawpanic/earnrun/internal/domain/ranking"
	"github.com/sawpanic/earnrun/internal/live"
)

const namespace = "earnrun"

// Registry holds all EarnRun metrics on a private Prometheus registry
type Registry struct {
	reg *prometheus.Registry

	// Step duration metrics
	StepDuration *prometheus.HistogramVec

	// Selection metrics
	TickersEvaluated prometheus.Counter
	TickerSkips      *prometheus.CounterVec
	CandidateScore   prometheus.Gauge

	// Backtest metrics
	BacktestDays   *prometheus.CounterVec
	BacktestTrades *prometheus.CounterVec
	TradePnLPct    *prometheus.HistogramVec

	// Live engine metrics
	Cycles      *prometheus.CounterVec
	LiveEntries prometheus.Counter
	LiveExits   *prometheus.CounterVec
	CapitalUsed prometheus.Gauge
	RealizedPnL prometheus.Gauge

	// Cache performance metrics
	CacheHitRatio prometheus.Gauge
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec
}

var (
	_ backtest.Observer = (*Registry)(nil)
	_ live.Observer     = (*Registry)(nil)
)

// NewRegistry creates a registry with Go and process collectors attached
func NewRegistry() *Registry {
	m := &Registry{
		reg: prometheus.NewRegistry(),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of each run step in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
			},
			[]string{"step", "result"},
		),

		TickersEvaluated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tickers_evaluated_total",
				Help:      "Tickers scored by the candidate ranker",
			},
		),

		TickerSkips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ticker_skips_total",
				Help:      "Tickers that produced no candidate, by reason",
			},
			[]string{"reason"},
		),

		CandidateScore: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "best_candidate_score",
				Help:      "Final score of the most recently selected candidate",
			},
		),

		BacktestDays: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backtest_days_total",
				Help:      "Simulated days by backtest kind and outcome",
			},
			[]string{"kind", "outcome"},
		),

		BacktestTrades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backtest_trades_total",
				Help:      "Simulated trades by backtest kind and exit reason",
			},
			[]string{"kind", "exit_reason"},
		),

		TradePnLPct: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "trade_pnl_percent",
				Help:      "Per-trade P&L in percent of entry",
				Buckets:   []float64{-20, -10, -8, -5, -2, 0, 2, 5, 8, 10, 20},
			},
			[]string{"kind"},
		),

		Cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "live_cycles_total",
				Help:      "Live decision cycles by outcome",
			},
			[]string{"outcome"},
		),

		LiveEntries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "live_entries_total",
				Help:      "Bracket orders submitted",
			},
		),

		LiveExits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "live_exits_total",
				Help:      "Closed live positions by result",
			},
			[]string{"result"},
		),

		CapitalUsed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "live_capital_used",
				Help:      "Capital committed to the open position",
			},
		),

		RealizedPnL: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "live_realized_pnl",
				Help:      "Cumulative realized P&L of closed positions since start",
			},
		),

		CacheHitRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_hit_ratio",
				Help:      "Current cache hit ratio (0.0 to 1.0)",
			},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits by cache type",
			},
			[]string{"cache_type"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses by cache type",
			},
			[]string{"cache_type"},
		),
	}

	m.reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.StepDuration,
		m.TickersEvaluated,
		m.TickerSkips,
		m.CandidateScore,
		m.BacktestDays,
		m.BacktestTrades,
		m.TradePnLPct,
		m.Cycles,
		m.LiveEntries,
		m.LiveExits,
		m.CapitalUsed,
		m.RealizedPnL,
		m.CacheHitRatio,
		m.CacheHits,
		m.CacheMisses,
	)
	return m
}

// Gatherer exposes the underlying registry
func (m *Registry) Gatherer() prometheus.Gatherer { return m.reg }

// Handler returns an HTTP handler for the Prometheus exposition format
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// StepTimer tracks execution time for a run step
type StepTimer struct {
	metrics *Registry
	step    string
	start   time.Time
}

// StartStepTimer begins timing a step
func (m *Registry) StartStepTimer(step string) *StepTimer {
	return &StepTimer{metrics: m, step: step, start: time.Now()}
}

// Stop records the step duration under result
func (st *StepTimer) Stop(result string) time.Duration {
	d := time.Since(st.start)
	st.metrics.StepDuration.WithLabelValues(st.step, result).Observe(d.Seconds())
	log.Debug().Str("step", st.step).Str("result", result).Dur("duration", d).Msg("Step completed")
	return d
}

// ObserveSelection records a ranker report
func (m *Registry) ObserveSelection(report *ranking.Report) {
	if report == nil {
		return
	}
	m.TickersEvaluated.Add(float64(report.Evaluated))
	for _, s := range report.Skipped {
		reason := s.Reason
		if strings.HasPrefix(reason, "panic") {
			reason = "panic"
		}
		m.TickerSkips.WithLabelValues(reason).Inc()
	}
	if len(report.Filtered) > 0 {
		m.TickerSkips.WithLabelValues("eps_beat_rate").Add(float64(len(report.Filtered)))
	}
	if report.GateReason != "" {
		m.TickerSkips.WithLabelValues("threshold_gate").Inc()
	}
	if report.Best != nil {
		m.CandidateScore.Set(report.Best.FinalScore)
	}
}

// ObserveDay implements backtest.Observer
func (m *Registry) ObserveDay(kind, outcome string) {
	m.BacktestDays.WithLabelValues(kind, outcome).Inc()
}

// ObserveTrade implements backtest.Observer
func (m *Registry) ObserveTrade(kind string, t backtest.TradeResult) {
	m.BacktestTrades.WithLabelValues(kind, t.ExitReason.String()).Inc()
	m.TradePnLPct.WithLabelValues(kind).Observe(t.PnLPct)
}

// ObserveCycle counts a live decision cycle
func (m *Registry) ObserveCycle(outcome string) {
	m.Cycles.WithLabelValues(outcome).Inc()
}

// ObserveEntry records a submitted bracket order
func (m *Registry) ObserveEntry(_ string, capital float64) {
	m.LiveEntries.Inc()
	m.CapitalUsed.Set(capital)
}

// ObserveExit records a closed live position
func (m *Registry) ObserveExit(_ string, pnl float64) {
	result := "flat"
	switch {
	case pnl > 0:
		result = "win"
	case pnl < 0:
		result = "loss"
	}
	m.LiveExits.WithLabelValues(result).Inc()
	m.CapitalUsed.Set(0)
	m.RealizedPnL.Add(pnl)
}

// RecordCacheHit records a cache hit for the specified cache type
func (m *Registry) RecordCacheHit(cacheType string) {
	m.CacheHits.WithLabelValues(cacheType).Inc()
	m.updateCacheHitRatio()
}

// RecordCacheMiss records a cache miss for the specified cache type
func (m *Registry) RecordCacheMiss(cacheType string) {
	m.CacheMisses.WithLabelValues(cacheType).Inc()
	m.updateCacheHitRatio()
}

// updateCacheHitRatio recomputes the ratio across every cache type
func (m *Registry) updateCacheHitRatio() {
	hits := sumCounters(m.CacheHits)
	misses := sumCounters(m.CacheMisses)
	if total := hits + misses; total > 0 {
		m.CacheHitRatio.Set(hits / total)
	}
}

func sumCounters(vec *prometheus.CounterVec) float64 {
	ch := make(chan prometheus.Metric, 16)
	go func() {
		vec.Collect(ch)
		close(ch)
	}()

	total := 0.0
	for metric := range ch {
		var pb io_prometheus_client.Metric
		if err := metric.Write(&pb); err == nil {
			total += pb.GetCounter().GetValue()
		}
	}
	return total
}

// InstrumentCache counts hits and misses of c under cacheType
func (m *Registry) InstrumentCache(cacheType string, c cache.Cache) cache.Cache {
	return &instrumentedCache{Cache: c, metrics: m, cacheType: cacheType}
}

type instrumentedCache struct {
	cache.Cache
	metrics   *Registry
	cacheType string
}

func (c *instrumentedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, ok, err := c.Cache.Get(ctx, key)
	if err == nil {
		if ok {
			c.metrics.RecordCacheHit(c.cacheType)
		} else {
			c.metrics.RecordCacheMiss(c.cacheType)
		}
	}
	return val, ok, err
}
