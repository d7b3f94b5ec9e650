// Package sample provides offline collaborators for runs without API keys.
package sample

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/sawpanic/earnrun/internal/domain/bars"
	"github.com/sawpanic/earnrun/internal/ports"
)

// Calendar is a fixed earnings calendar keyed by report date
type Calendar struct {
	days map[time.Time][]string
}

var _ ports.EarningsCalendar = (*Calendar)(nil)

// NewCalendar builds a calendar from "2006-01-02" keys
func NewCalendar(days map[string][]string) (*Calendar, error) {
	c := &Calendar{days: make(map[time.Time][]string, len(days))}
	for k, tickers := range days {
		d, err := time.Parse("2006-01-02", k)
		if err != nil {
			return nil, fmt.Errorf("invalid calendar date %q: %w", k, err)
		}
		c.days[d] = append([]string(nil), tickers...)
	}
	return c, nil
}

// October2024 is the built-in calendar used when no Finnhub key is set
func October2024() *Calendar {
	c, _ := NewCalendar(map[string][]string{
		"2024-10-08": {"PEP"},
		"2024-10-11": {"JPM", "WFC"},
		"2024-10-17": {"NFLX"},
		"2024-10-22": {"VZ"},
		"2024-10-23": {"TSLA", "T", "IBM", "KO"},
	})
	return c
}

// TickersReporting implements ports.EarningsCalendar
func (c *Calendar) TickersReporting(_ context.Context, day time.Time) ([]string, error) {
	return append([]string(nil), c.days[bars.Day(day)]...), nil
}

type barRow struct {
	Date   string  `csv:"date"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume float64 `csv:"volume"`
}

// CSVPrices serves daily bars from <dir>/<TICKER>.csv files with columns
// date,open,high,low,close,volume. Files are read once and kept in memory.
type CSVPrices struct {
	dir string

	mu     sync.Mutex
	series map[string]*bars.Series
}

var _ ports.PriceSource = (*CSVPrices)(nil)

// NewCSVPrices creates a price source reading from dir
func NewCSVPrices(dir string) *CSVPrices {
	return &CSVPrices{dir: dir, series: make(map[string]*bars.Series)}
}

// DailyBars implements ports.PriceSource
func (p *CSVPrices) DailyBars(_ context.Context, ticker string, start, end time.Time) (*bars.Series, error) {
	s, err := p.load(ticker)
	if err != nil {
		return nil, err
	}
	return s.Slice(start, end)
}

func (p *CSVPrices) load(ticker string) (*bars.Series, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.series[ticker]; ok {
		return s, nil
	}

	path := filepath.Join(p.dir, strings.ToUpper(ticker)+".csv")
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sample bars for %s: %w", ticker, err)
	}
	defer file.Close()

	var rows []*barRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	out := make([]bars.Bar, 0, len(rows))
	for _, r := range rows {
		d, err := time.Parse("2006-01-02", r.Date)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid date %q: %w", filepath.Base(path), r.Date, err)
		}
		out = append(out, bars.Bar{Date: d, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume})
	}
	bars.SortByDate(out)

	s, err := bars.NewSeries(ticker, out)
	if err != nil {
		return nil, err
	}
	p.series[ticker] = s
	return s, nil
}
