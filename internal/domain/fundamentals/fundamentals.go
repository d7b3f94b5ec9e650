package fundamentals

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"
)

// Snapshot holds the fundamental signals for one ticker
type Snapshot struct {
	EPSBeatRate       float64 `json:"eps_beat_rate" db:"eps_beat_rate"`
	AvgEPSSurprisePct float64 `json:"avg_eps_surprise_pct" db:"avg_eps_surprise_pct"`
	RevenueTrend      float64 `json:"revenue_growth_trend" db:"revenue_growth_trend"`
	AnalystScore      float64 `json:"analyst_score" db:"analyst_score"`
}

// Neutral is the snapshot used whenever fundamentals are unavailable
func Neutral() Snapshot {
	return Snapshot{
		EPSBeatRate:       0.5,
		AvgEPSSurprisePct: 0.0,
		RevenueTrend:      0.5,
		AnalystScore:      0.5,
	}
}

// Weights blends the four signals into one score
type Weights struct {
	BeatRate     float64 `yaml:"eps_beat_rate" json:"eps_beat_rate"`
	Surprise     float64 `yaml:"eps_surprise" json:"eps_surprise"`
	Analyst      float64 `yaml:"analyst" json:"analyst"`
	RevenueTrend float64 `yaml:"revenue_trend" json:"revenue_trend"`
}

// DefaultWeights returns the 0.5/0.3/0.15/0.05 profile
func DefaultWeights() Weights {
	return Weights{
		BeatRate:     0.50,
		Surprise:     0.30,
		Analyst:      0.15,
		RevenueTrend: 0.05,
	}
}

// Validate checks that weights are non-negative and sum to 1
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"eps_beat_rate": w.BeatRate,
		"eps_surprise":  w.Surprise,
		"analyst":       w.Analyst,
		"revenue_trend": w.RevenueTrend,
	} {
		if v < 0 {
			return fmt.Errorf("fundamental weight %s is negative: %f", name, v)
		}
	}
	sum := w.BeatRate + w.Surprise + w.Analyst + w.RevenueTrend
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("fundamental weights sum to %f, want 1.0", sum)
	}
	return nil
}

// Scorer turns a snapshot into a score in [0,1]
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with explicit weights
func NewScorer(weights Weights) *Scorer {
	return &Scorer{weights: weights}
}

// Weights returns the configured weights
func (s *Scorer) Weights() Weights { return s.weights }

// NormalizeSurprise maps a surprise percentage onto [0,1]: -20% is 0,
// 0% is 0.5 and +20% or more is 1.
func NormalizeSurprise(pct float64) float64 {
	return clamp01(pct/40.0 + 0.5)
}

// Score computes the weighted fundamental score
func (s *Scorer) Score(snap Snapshot) float64 {
	score := s.weights.BeatRate*snap.EPSBeatRate +
		s.weights.Surprise*NormalizeSurprise(snap.AvgEPSSurprisePct) +
		s.weights.Analyst*snap.AnalystScore +
		s.weights.RevenueTrend*snap.RevenueTrend
	return clamp01(score)
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0.0), 1.0)
}

// EPSReport is one quarter of reported vs estimated EPS. Nil pointers mean
// the provider did not publish the value.
type EPSReport struct {
	Period   string   `json:"period"`
	Actual   *float64 `json:"actual"`
	Estimate *float64 `json:"estimate"`
}

// BeatRateAndSurprise derives the beat rate and average surprise from EPS
// history. Quarters missing an estimate still count in the beat-rate
// denominator. ok is false when history is empty.
func BeatRateAndSurprise(history []EPSReport) (beatRate, avgSurprise float64, ok bool) {
	if len(history) == 0 {
		return 0, 0, false
	}

	beats := 0
	var surprises []float64
	for _, r := range history {
		if r.Actual == nil || r.Estimate == nil || *r.Estimate == 0 {
			continue
		}
		if *r.Actual > *r.Estimate {
			beats++
		}
		surprises = append(surprises, (*r.Actual-*r.Estimate)/math.Abs(*r.Estimate)*100)
	}

	beatRate = float64(beats) / float64(len(history))
	if len(surprises) > 0 {
		var sum float64
		for _, s := range surprises {
			sum += s
		}
		avgSurprise = sum / float64(len(surprises))
	}
	return beatRate, avgSurprise, true
}

// PeriodValue is a single point of a quarterly financial series
type PeriodValue struct {
	Period string  `json:"period"`
	Value  float64 `json:"v"`
}

// RevenueTrend scores the average sequential growth of the four most recent
// quarters: 0% maps to 0.5 and each +10% adds 0.25, clamped to [0,1].
func RevenueTrend(series []PeriodValue) (float64, bool) {
	if len(series) < 2 {
		return 0, false
	}

	sorted := make([]PeriodValue, len(series))
	copy(sorted, series)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Period > sorted[j].Period })
	if len(sorted) > 4 {
		sorted = sorted[:4]
	}

	var growth []float64
	for i := 0; i < len(sorted)-1; i++ {
		prev := sorted[i+1].Value
		if prev == 0 {
			continue
		}
		growth = append(growth, (sorted[i].Value-prev)/math.Abs(prev))
	}
	if len(growth) == 0 {
		return 0, false
	}

	var sum float64
	for _, g := range growth {
		sum += g
	}
	return clamp01(0.5 + sum/float64(len(growth))*2.5), true
}

// Recommendation is one month of analyst recommendation counts
type Recommendation struct {
	Period     string `json:"period"`
	StrongBuy  int    `json:"strongBuy"`
	Buy        int    `json:"buy"`
	Hold       int    `json:"hold"`
	Sell       int    `json:"sell"`
	StrongSell int    `json:"strongSell"`
}

// AnalystScore weights strong buy 1.0, buy 0.75, hold 0.5, sell 0.25 and
// strong sell 0.
func AnalystScore(r Recommendation) (float64, bool) {
	total := r.StrongBuy + r.Buy + r.Hold + r.Sell + r.StrongSell
	if total <= 0 {
		return 0, false
	}
	weighted := float64(r.StrongBuy)*1.0 + float64(r.Buy)*0.75 + float64(r.Hold)*0.5 + float64(r.Sell)*0.25
	return weighted / float64(total), true
}

// Source fetches a fundamental snapshot for a ticker
type Source interface {
	Snapshot(ctx context.Context, ticker string) (Snapshot, error)
}

// NeutralSource always returns the neutral snapshot. Backtests use it so
// that current fundamentals never leak into historical decisions.
type NeutralSource struct{}

// Snapshot returns the neutral snapshot
func (NeutralSource) Snapshot(context.Context, string) (Snapshot, error) {
	return Neutral(), nil
}

// WithDefault wraps a source so that any failure yields the neutral snapshot
func WithDefault(src Source) Source {
	return &defaultingSource{src: src}
}

type defaultingSource struct {
	src Source
}

func (d *defaultingSource) Snapshot(ctx context.Context, ticker string) (Snapshot, error) {
	snap, err := d.src.Snapshot(ctx, ticker)
	if err != nil {
		log.Debug().Err(err).Str("ticker", ticker).Msg("Fundamentals unavailable, using neutral defaults")
		return Neutral(), nil
	}
	return snap, nil
}
