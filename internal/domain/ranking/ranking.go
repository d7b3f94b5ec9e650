package ranking

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/earnrun/internal/domain/bars"
	"github.com/sawpanic/earnrun/internal/domain/earnings"
	"github.com/sawpanic/earnrun/internal/domain/fundamentals"
	"github.com/sawpanic/earnrun/internal/domain/reaction"
	"github.com/sawpanic/earnrun/internal/ports"
)

// Blend mixes the price pattern score with the fundamental score
type Blend struct {
	Price       float64 `yaml:"price" json:"price"`
	Fundamental float64 `yaml:"fundamental" json:"fundamental"`
}

// DefaultBlend returns the 70/30 price/fundamental blend
func DefaultBlend() Blend {
	return Blend{Price: 0.7, Fundamental: 0.3}
}

// Validate checks that the blend is non-negative and sums to 1
func (b Blend) Validate() error {
	if b.Price < 0 || b.Fundamental < 0 {
		return fmt.Errorf("blend weights must be non-negative: price=%f fundamental=%f", b.Price, b.Fundamental)
	}
	if sum := b.Price + b.Fundamental; math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("blend weights sum to %f, want 1.0", sum)
	}
	return nil
}

// CandidateScore is a fully scored ticker
type CandidateScore struct {
	Ticker           string                `json:"ticker"`
	PriceScore       float64               `json:"price_score"`
	FundamentalScore float64               `json:"fundamental_score"`
	FinalScore       float64               `json:"final_score"`
	AvgGain          float64               `json:"avg_gain"`
	AvgDrawdown      float64               `json:"avg_drawdown"`
	Frequency        float64               `json:"frequency"`
	Fundamentals     fundamentals.Snapshot `json:"fundamentals"`
}

// Gate is the final threshold check applied to the best candidate
type Gate interface {
	Admit(c CandidateScore) (bool, string)
}

// LiveGate rejects when the final score or average gain is too low.
// MinAvgGainPercent is expressed in percent (1.0 means 1%).
type LiveGate struct {
	MinScore          float64
	MinAvgGainPercent float64
}

// Admit implements Gate
func (g LiveGate) Admit(c CandidateScore) (bool, string) {
	if c.FinalScore < g.MinScore {
		return false, fmt.Sprintf("final score %.4f below minimum %.4f", c.FinalScore, g.MinScore)
	}
	if c.AvgGain < g.MinAvgGainPercent/100 {
		return false, fmt.Sprintf("avg gain %.2f%% below minimum %.2f%%", c.AvgGain*100, g.MinAvgGainPercent)
	}
	return true, ""
}

// BacktestGate requires a minimum hit frequency and average gain
type BacktestGate struct {
	MinFrequency float64
	MinAvgGain   float64
}

// DefaultBacktestGate returns frequency >= 0.4 and avg gain >= 1%
func DefaultBacktestGate() BacktestGate {
	return BacktestGate{MinFrequency: 0.4, MinAvgGain: 0.01}
}

// Admit implements Gate
func (g BacktestGate) Admit(c CandidateScore) (bool, string) {
	if c.Frequency < g.MinFrequency {
		return false, fmt.Sprintf("frequency %.2f below %.2f", c.Frequency, g.MinFrequency)
	}
	if c.AvgGain < g.MinAvgGain {
		return false, fmt.Sprintf("avg gain %.4f below %.4f", c.AvgGain, g.MinAvgGain)
	}
	return true, ""
}

// PatternSource produces the price part of a candidate
type PatternSource interface {
	PricePattern(ctx context.Context, ticker string, asOf time.Time) (reaction.Result, error)
}

// HistoryPatterns fetches events and bars then runs the analyzer
type HistoryPatterns struct {
	Events    earnings.Source
	Prices    ports.PriceSource
	Analyzer  *reaction.Analyzer
	YearsBack int
}

// PricePattern loads history ending the day before asOf and analyzes it.
// Provider failures are returned as errors so the ranker can skip the ticker.
func (h *HistoryPatterns) PricePattern(ctx context.Context, ticker string, asOf time.Time) (reaction.Result, error) {
	asOf = bars.Day(asOf)
	events, err := h.Events.Events(ctx, ticker, asOf, h.YearsBack)
	if err != nil {
		return reaction.Result{}, fmt.Errorf("earnings events: %w", err)
	}
	if len(events) < h.Analyzer.Config().MinEvents {
		return reaction.Result{Skip: reaction.SkipInsufficientHistory}, nil
	}

	cutoff := asOf.AddDate(-h.YearsBack, 0, 0)
	if h.Analyzer.Config().Mode == reaction.Estimated {
		cutoff = earnings.Cutoff(asOf, h.YearsBack)
	}
	series, err := h.Prices.DailyBars(ctx, ticker, cutoff.AddDate(0, 0, -10), asOf.AddDate(0, 0, -1))
	if err != nil {
		return reaction.Result{}, fmt.Errorf("price history: %w", err)
	}

	return h.Analyzer.Analyze(ticker, events, series, asOf, h.YearsBack), nil
}

// Config controls candidate selection
type Config struct {
	Blend          Blend
	MinEPSBeatRate float64
	Gate           Gate
	TickerTimeout  time.Duration
}

// DefaultConfig returns the live defaults
func DefaultConfig() Config {
	return Config{
		Blend:          DefaultBlend(),
		MinEPSBeatRate: 0.3,
		Gate:           LiveGate{MinScore: 0.0, MinAvgGainPercent: 1.0},
		TickerTimeout:  30 * time.Second,
	}
}

// Skip records why a ticker did not produce a candidate
type Skip struct {
	Ticker string `json:"ticker"`
	Reason string `json:"reason"`
}

// Report describes a single selection run
type Report struct {
	AsOf       time.Time        `json:"as_of"`
	Evaluated  int              `json:"evaluated"`
	Candidates []CandidateScore `json:"candidates"`
	Skipped    []Skip           `json:"skipped"`
	Filtered   []Skip           `json:"filtered"`
	Best       *CandidateScore  `json:"best,omitempty"`
	GateReason string           `json:"gate_reason,omitempty"`
}

// Ranker scores tickers and picks the best one
type Ranker struct {
	patterns     PatternSource
	fundamentals fundamentals.Source
	scorer       *fundamentals.Scorer
	config       Config
}

// NewRanker wires the ranker collaborators
func NewRanker(patterns PatternSource, fund fundamentals.Source, scorer *fundamentals.Scorer, config Config) *Ranker {
	if fund == nil {
		fund = fundamentals.NeutralSource{}
	}
	return &Ranker{
		patterns:     patterns,
		fundamentals: fundamentals.WithDefault(fund),
		scorer:       scorer,
		config:       config,
	}
}

// Combine blends a price pattern and a fundamental snapshot into a CandidateScore
func (r *Ranker) Combine(p *reaction.PricePattern, snap fundamentals.Snapshot) CandidateScore {
	fundScore := r.scorer.Score(snap)
	return CandidateScore{
		Ticker:           p.Ticker,
		PriceScore:       p.PriceScore,
		FundamentalScore: fundScore,
		FinalScore:       r.config.Blend.Price*p.PriceScore + r.config.Blend.Fundamental*fundScore,
		AvgGain:          p.AvgGain,
		AvgDrawdown:      p.AvgDrawdown,
		Frequency:        p.Frequency,
		Fundamentals:     snap,
	}
}

// SelectBest evaluates tickers in order and returns the best admitted
// candidate, or nil when none survives. Faults are isolated per ticker.
func (r *Ranker) SelectBest(ctx context.Context, tickers []string, asOf time.Time) (*CandidateScore, *Report) {
	report := &Report{AsOf: bars.Day(asOf)}

	for _, ticker := range tickers {
		if ctx.Err() != nil {
			report.Skipped = append(report.Skipped, Skip{Ticker: ticker, Reason: "cancelled"})
			continue
		}
		report.Evaluated++

		candidate, reason := r.evaluate(ctx, ticker, asOf)
		if candidate == nil {
			report.Skipped = append(report.Skipped, Skip{Ticker: ticker, Reason: reason})
			continue
		}

		if candidate.Fundamentals.EPSBeatRate < r.config.MinEPSBeatRate {
			log.Debug().Str("ticker", ticker).Float64("eps_beat_rate", candidate.Fundamentals.EPSBeatRate).
				Msg("Filtered by EPS beat rate")
			report.Filtered = append(report.Filtered, Skip{
				Ticker: ticker,
				Reason: fmt.Sprintf("eps beat rate %.2f below %.2f", candidate.Fundamentals.EPSBeatRate, r.config.MinEPSBeatRate),
			})
			continue
		}

		log.Debug().Str("ticker", ticker).Float64("final_score", candidate.FinalScore).
			Float64("price_score", candidate.PriceScore).Float64("fundamental_score", candidate.FundamentalScore).
			Msg("Candidate scored")
		report.Candidates = append(report.Candidates, *candidate)
	}

	if len(report.Candidates) == 0 {
		return nil, report
	}

	sort.SliceStable(report.Candidates, func(i, j int) bool {
		return report.Candidates[i].FinalScore > report.Candidates[j].FinalScore
	})

	best := report.Candidates[0]
	if r.config.Gate != nil {
		if ok, why := r.config.Gate.Admit(best); !ok {
			report.GateReason = why
			log.Info().Str("ticker", best.Ticker).Str("reason", why).Msg("Best candidate rejected by threshold gate")
			return nil, report
		}
	}

	report.Best = &best
	return &best, report
}

// evaluate scores one ticker. It never panics and never returns an error;
// failures become skip reasons.
func (r *Ranker) evaluate(ctx context.Context, ticker string, asOf time.Time) (c *CandidateScore, reason string) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("ticker", ticker).Interface("panic", p).Msg("Ticker evaluation panicked")
			c, reason = nil, fmt.Sprintf("panic: %v", p)
		}
	}()

	if r.config.TickerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.TickerTimeout)
		defer cancel()
	}

	res, err := r.patterns.PricePattern(ctx, ticker, asOf)
	if err != nil {
		log.Warn().Err(err).Str("ticker", ticker).Msg("Price pattern unavailable")
		return nil, "provider_failure"
	}
	if !res.OK() {
		return nil, string(res.Skip)
	}
	res.Pattern.Ticker = ticker

	snap, _ := r.fundamentals.Snapshot(ctx, ticker)
	candidate := r.Combine(res.Pattern, snap)
	return &candidate, ""
}
