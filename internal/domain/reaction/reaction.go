package reaction

import (
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"github.com/sawpanic/earnrun/internal/domain/bars"
	"github.com/sawpanic/earnrun/internal/domain/earnings"
)

// Mode selects how strictly forward windows are judged
type Mode int

const (
	// Calendar mode uses published report dates; any non-empty window counts.
	Calendar Mode = iota
	// Estimated mode uses synthetic dates; short windows and thin samples are rejected.
	Estimated
)

func (m Mode) String() string {
	switch m {
	case Calendar:
		return "calendar"
	case Estimated:
		return "estimated"
	default:
		return "unknown"
	}
}

// SkipReason explains why no price pattern was produced
type SkipReason string

const (
	SkipNone                SkipReason = ""
	SkipInsufficientHistory SkipReason = "insufficient_history"
	SkipNoPriceData         SkipReason = "no_price_data"
	SkipNoSamples           SkipReason = "no_samples"
)

// Config controls sampling and aggregation
type Config struct {
	MinEvents       int     `yaml:"min_events"`
	WindowDays      int     `yaml:"window_days"`
	GainThreshold   float64 `yaml:"gain_threshold"`
	DefaultDrawdown float64 `yaml:"default_drawdown"`
	Mode            Mode    `yaml:"-"`
}

// DefaultConfig returns the calendar-mode defaults
func DefaultConfig() Config {
	return Config{
		MinEvents:       4,
		WindowDays:      5,
		GainThreshold:   0.01,
		DefaultDrawdown: -0.05,
		Mode:            Calendar,
	}
}

// EstimatedConfig returns defaults for synthetic quarterly dates
func EstimatedConfig() Config {
	c := DefaultConfig()
	c.Mode = Estimated
	return c
}

func (c Config) minWindow() int {
	if c.Mode == Estimated {
		return 3
	}
	return 1
}

func (c Config) minSamples() int {
	if c.Mode == Estimated {
		return 3
	}
	return 1
}

// Sample is the forward-window reaction to one earnings date
type Sample struct {
	EarningsDate time.Time `json:"earnings_date"`
	EntryClose   float64   `json:"entry_close"`
	GainPct      float64   `json:"gain_pct"`
	DrawdownPct  float64   `json:"drawdown_pct"`
}

// PricePattern aggregates samples across all usable earnings dates
type PricePattern struct {
	Ticker           string   `json:"ticker"`
	Samples          []Sample `json:"samples"`
	Frequency        float64  `json:"frequency"`
	AvgGain          float64  `json:"avg_gain"`
	AvgDrawdown      float64  `json:"avg_drawdown"`
	PriceScore       float64  `json:"price_score"`
	EventsConsidered int      `json:"events_considered"`
}

// Result is either a pattern or the reason there is none
type Result struct {
	Pattern *PricePattern
	Skip    SkipReason
}

// OK reports whether a pattern was produced
func (r Result) OK() bool { return r.Pattern != nil }

func skip(reason SkipReason) Result { return Result{Skip: reason} }

// Analyzer turns earnings events plus a price series into a PricePattern
type Analyzer struct {
	config Config
}

// NewAnalyzer creates an analyzer with the given configuration
func NewAnalyzer(config Config) *Analyzer {
	if config.WindowDays <= 0 {
		config.WindowDays = 5
	}
	return &Analyzer{config: config}
}

// Config returns the analyzer configuration
func (a *Analyzer) Config() Config { return a.config }

// Analyze requires at least MinEvents events in [asOf-minYears, asOf]. It
// has no side effects and returns the same result for the same inputs.
func (a *Analyzer) Analyze(ticker string, events []earnings.Event, series *bars.Series, asOf time.Time, minYears int) Result {
	asOf = bars.Day(asOf)
	cutoff := asOf.AddDate(-minYears, 0, 0)
	if a.config.Mode == Estimated {
		cutoff = earnings.Cutoff(asOf, minYears)
	}

	relevant := make([]earnings.Event, 0, len(events))
	for _, e := range events {
		d := bars.Day(e.Date)
		if d.Before(cutoff) || d.After(asOf) {
			continue
		}
		relevant = append(relevant, e)
	}

	if len(relevant) < a.config.MinEvents {
		log.Debug().Str("ticker", ticker).Int("events", len(relevant)).
			Int("required", a.config.MinEvents).Msg("Insufficient earnings history")
		return skip(SkipInsufficientHistory)
	}

	if series == nil || series.Len() == 0 {
		return skip(SkipNoPriceData)
	}

	samples := make([]Sample, 0, len(relevant))
	for _, e := range relevant {
		s, ok := a.Sample(series, e.Date)
		if !ok {
			continue
		}
		samples = append(samples, s)
	}

	if len(samples) < a.config.minSamples() {
		log.Debug().Str("ticker", ticker).Int("samples", len(samples)).Msg("No usable reaction windows")
		return skip(SkipNoSamples)
	}

	p := Aggregate(samples, a.config.GainThreshold, a.config.DefaultDrawdown)
	p.Ticker = ticker
	p.EventsConsidered = len(relevant)
	return Result{Pattern: p}
}

// Sample measures the reaction to a single earnings date. The date is
// forward-filled to the next trading day and the window is the following
// WindowDays bars.
func (a *Analyzer) Sample(series *bars.Series, earningsDate time.Time) (Sample, bool) {
	idx, ok := series.IndexOnOrAfter(earningsDate)
	if !ok {
		return Sample{}, false
	}
	window := series.Forward(idx, a.config.WindowDays)
	if len(window) < a.config.minWindow() {
		return Sample{}, false
	}

	entry := series.At(idx)
	if entry.Close <= 0 {
		return Sample{}, false
	}

	high, low := window[0].High, window[0].Low
	for _, b := range window[1:] {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}

	return Sample{
		EarningsDate: entry.Date,
		EntryClose:   entry.Close,
		GainPct:      (high - entry.Close) / entry.Close,
		DrawdownPct:  (low - entry.Close) / entry.Close,
	}, true
}

// Aggregate computes frequency, average gain and average drawdown.
// Frequency counts gains strictly above threshold. Average gain is the mean
// of those gains (0 if none). Average drawdown is the mean of negative
// drawdowns (defaultDrawdown if none).
func Aggregate(samples []Sample, threshold, defaultDrawdown float64) *PricePattern {
	p := &PricePattern{Samples: samples, AvgDrawdown: defaultDrawdown}
	if len(samples) == 0 {
		return p
	}

	var gains, drawdowns []float64
	for _, s := range samples {
		if s.GainPct > threshold {
			gains = append(gains, s.GainPct)
		}
		if s.DrawdownPct < 0 {
			drawdowns = append(drawdowns, s.DrawdownPct)
		}
	}

	p.Frequency = float64(len(gains)) / float64(len(samples))
	if len(gains) > 0 {
		p.AvgGain = stat.Mean(gains, nil)
	}
	if len(drawdowns) > 0 {
		p.AvgDrawdown = stat.Mean(drawdowns, nil)
	}
	p.PriceScore = p.Frequency * p.AvgGain
	return p
}
