// Package finnhub reads the earnings calendar and company fundamentals
// from the Finnhub REST API.
package finnhub

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/earnrun/internal/domain/bars"
	"github.com/sawpanic/earnrun/internal/domain/earnings"
	"github.com/sawpanic/earnrun/internal/domain/fundamentals"
	"github.com/sawpanic/earnrun/internal/net/guard"
	"github.com/sawpanic/earnrun/internal/ports"
)

// BaseURL is the public API root
const BaseURL = "https://finnhub.io/api/v1"

// Config represents Finnhub credentials
type Config struct {
	APIKey     string       `yaml:"api_key"`
	BaseURL    string       `yaml:"base_url"`
	EPSLimit   int          `yaml:"eps_limit"`
	HTTPClient *http.Client `yaml:"-"`
}

// Configured reports whether a usable key is present
func (c Config) Configured() bool {
	return c.APIKey != "" && c.APIKey != "your_finnhub_api_key_here"
}

// Client implements the earnings calendar, earnings history and
// fundamentals collaborators.
type Client struct {
	config Config
	http   *guard.Client
}

var (
	_ ports.EarningsCalendar  = (*Client)(nil)
	_ earnings.HistoryFetcher = (*Client)(nil)
	_ fundamentals.Source     = (*Client)(nil)
)

// New creates a Finnhub client guarded by g. The free tier allows 60 calls
// per minute.
func New(config Config, g *guard.Guard) *Client {
	if config.BaseURL == "" {
		config.BaseURL = BaseURL
	}
	if config.EPSLimit <= 0 {
		config.EPSLimit = 8
	}
	if g == nil {
		g = guard.New(guard.DefaultConfig("finnhub"))
	}
	header := http.Header{}
	header.Set("X-Finnhub-Token", config.APIKey)
	return &Client{config: config, http: guard.NewClient(g, config.HTTPClient, header)}
}

type calendarEntry struct {
	Symbol string `json:"symbol"`
	Date   string `json:"date"`
	Hour   string `json:"hour"`
}

type calendarResponse struct {
	EarningsCalendar []calendarEntry `json:"earningsCalendar"`
}

func (c *Client) calendar(ctx context.Context, from, to time.Time, symbol string) ([]calendarEntry, error) {
	q := url.Values{}
	q.Set("from", from.Format("2006-01-02"))
	q.Set("to", to.Format("2006-01-02"))
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	var resp calendarResponse
	if err := c.http.GetJSON(ctx, c.config.BaseURL+"/calendar/earnings?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("finnhub earnings calendar: %w", err)
	}
	return resp.EarningsCalendar, nil
}

// TickersReporting returns the symbols reporting on day in calendar order
func (c *Client) TickersReporting(ctx context.Context, day time.Time) ([]string, error) {
	day = bars.Day(day)
	entries, err := c.calendar(ctx, day, day, "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(entries))
	tickers := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Symbol == "" || seen[e.Symbol] {
			continue
		}
		seen[e.Symbol] = true
		tickers = append(tickers, e.Symbol)
	}
	log.Debug().Time("date", day).Int("tickers", len(tickers)).Msg("Earnings calendar fetched")
	return tickers, nil
}

// NextEarningsTickers scans up to lookahead days after today and returns
// the first day with any reports. A failed day is logged and skipped.
func (c *Client) NextEarningsTickers(ctx context.Context, today time.Time, lookahead int) (time.Time, []string, error) {
	today = bars.Day(today)
	for i := 1; i <= lookahead; i++ {
		day := today.AddDate(0, 0, i)
		tickers, err := c.TickersReporting(ctx, day)
		if err != nil {
			if ctx.Err() != nil {
				return time.Time{}, nil, ctx.Err()
			}
			log.Warn().Err(err).Time("date", day).Msg("Finnhub calendar lookup failed")
			continue
		}
		if len(tickers) > 0 {
			log.Info().Time("date", day).Int("tickers", len(tickers)).Msg("Found upcoming earnings")
			return day, tickers, nil
		}
	}
	log.Info().Int("days", lookahead).Msg("No earnings found in lookahead window")
	return time.Time{}, nil, nil
}

// EarningsDates returns the published report dates of ticker in [from, to]
func (c *Client) EarningsDates(ctx context.Context, ticker string, from, to time.Time) ([]time.Time, error) {
	entries, err := c.calendar(ctx, from, to, ticker)
	if err != nil {
		return nil, err
	}
	dates := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		if e.Symbol != "" && e.Symbol != ticker {
			continue
		}
		d, err := time.Parse("2006-01-02", e.Date)
		if err != nil {
			log.Debug().Str("ticker", ticker).Str("date", e.Date).Msg("Skipping unparseable earnings date")
			continue
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// EPSHistory returns the most recent reported quarters
func (c *Client) EPSHistory(ctx context.Context, ticker string) ([]fundamentals.EPSReport, error) {
	q := url.Values{}
	q.Set("symbol", ticker)
	q.Set("limit", fmt.Sprint(c.config.EPSLimit))
	var resp []fundamentals.EPSReport
	if err := c.http.GetJSON(ctx, c.config.BaseURL+"/stock/earnings?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("finnhub company earnings %s: %w", ticker, err)
	}
	return resp, nil
}

type metricResponse struct {
	Series struct {
		Quarterly map[string][]fundamentals.PeriodValue `json:"quarterly"`
	} `json:"series"`
}

// RevenuePerShare returns the quarterly revenue-per-share series
func (c *Client) RevenuePerShare(ctx context.Context, ticker string) ([]fundamentals.PeriodValue, error) {
	q := url.Values{}
	q.Set("symbol", ticker)
	q.Set("metric", "all")
	var resp metricResponse
	if err := c.http.GetJSON(ctx, c.config.BaseURL+"/stock/metric?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("finnhub basic financials %s: %w", ticker, err)
	}
	return resp.Series.Quarterly["revenuePerShare"], nil
}

// Recommendations returns monthly analyst recommendation trends, newest first
func (c *Client) Recommendations(ctx context.Context, ticker string) ([]fundamentals.Recommendation, error) {
	var resp []fundamentals.Recommendation
	if err := c.http.GetJSON(ctx, c.config.BaseURL+"/stock/recommendation?symbol="+url.QueryEscape(ticker), &resp); err != nil {
		return nil, fmt.Errorf("finnhub recommendation trends %s: %w", ticker, err)
	}
	return resp, nil
}

// Snapshot derives the fundamental snapshot. Each part that cannot be
// fetched or derived keeps its neutral value. An error is returned only
// when every part failed.
func (c *Client) Snapshot(ctx context.Context, ticker string) (fundamentals.Snapshot, error) {
	snap := fundamentals.Neutral()
	failures := 0

	if history, err := c.EPSHistory(ctx, ticker); err != nil {
		failures++
		log.Debug().Err(err).Str("ticker", ticker).Msg("Could not fetch EPS history")
	} else if rate, surprise, ok := fundamentals.BeatRateAndSurprise(history); ok {
		snap.EPSBeatRate = rate
		snap.AvgEPSSurprisePct = surprise
	}

	if revenue, err := c.RevenuePerShare(ctx, ticker); err != nil {
		failures++
		log.Debug().Err(err).Str("ticker", ticker).Msg("Could not fetch financials")
	} else if trend, ok := fundamentals.RevenueTrend(revenue); ok {
		snap.RevenueTrend = trend
	}

	if recs, err := c.Recommendations(ctx, ticker); err != nil {
		failures++
		log.Debug().Err(err).Str("ticker", ticker).Msg("Could not fetch recommendations")
	} else if len(recs) > 0 {
		if score, ok := fundamentals.AnalystScore(recs[0]); ok {
			snap.AnalystScore = score
		}
	}

	if failures == 3 {
		return snap, fmt.Errorf("finnhub fundamentals %s: all requests failed", ticker)
	}
	return snap, nil
}
