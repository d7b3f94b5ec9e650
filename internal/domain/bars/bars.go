package bars

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrEmptySeries is returned when a series is built from no bars
	ErrEmptySeries = errors.New("price series is empty")
	// ErrNonMonotonic is returned when bar dates are not strictly increasing
	ErrNonMonotonic = errors.New("price series dates are not strictly increasing")
)

// Bar is one daily OHLCV bar. Dates are normalized to UTC midnight.
type Bar struct {
	Date   time.Time `json:"date" csv:"date"`
	Open   float64   `json:"open" csv:"open"`
	High   float64   `json:"high" csv:"high"`
	Low    float64   `json:"low" csv:"low"`
	Close  float64   `json:"close" csv:"close"`
	Volume float64   `json:"volume" csv:"volume"`
}

// Series holds chronologically ordered bars for a single ticker.
// It is read-only once constructed.
type Series struct {
	ticker string
	bars   []Bar
}

// Day truncates t to a UTC calendar date
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewSeries validates ordering and returns an immutable series.
// Dates must be strictly increasing after normalization.
func NewSeries(ticker string, in []Bar) (*Series, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%s: %w", ticker, ErrEmptySeries)
	}

	out := make([]Bar, len(in))
	for i, b := range in {
		b.Date = Day(b.Date)
		if i > 0 && !b.Date.After(out[i-1].Date) {
			return nil, fmt.Errorf("%s: bar %d (%s) after %s: %w",
				ticker, i, b.Date.Format("2006-01-02"), out[i-1].Date.Format("2006-01-02"), ErrNonMonotonic)
		}
		out[i] = b
	}

	return &Series{ticker: ticker, bars: out}, nil
}

// SortByDate orders bars in place by date. Providers call it before NewSeries
// since upstream APIs do not always guarantee ordering.
func SortByDate(in []Bar) {
	sort.SliceStable(in, func(i, j int) bool { return in[i].Date.Before(in[j].Date) })
}

// Ticker returns the symbol the series belongs to
func (s *Series) Ticker() string { return s.ticker }

// Len returns the number of bars
func (s *Series) Len() int { return len(s.bars) }

// At returns the bar at index i
func (s *Series) At(i int) Bar { return s.bars[i] }

// First returns the earliest bar
func (s *Series) First() Bar { return s.bars[0] }

// Last returns the most recent bar
func (s *Series) Last() Bar { return s.bars[len(s.bars)-1] }

// Bars returns a copy of the underlying bars
func (s *Series) Bars() []Bar {
	out := make([]Bar, len(s.bars))
	copy(out, s.bars)
	return out
}

// IndexOnOrAfter returns the index of the first trading day on or after d.
// This is the forward-fill used for event and entry dates that fall on
// non-trading days.
func (s *Series) IndexOnOrAfter(d time.Time) (int, bool) {
	d = Day(d)
	i := sort.Search(len(s.bars), func(i int) bool { return !s.bars[i].Date.Before(d) })
	if i >= len(s.bars) {
		return 0, false
	}
	return i, true
}

// Forward returns up to n bars strictly after index i
func (s *Series) Forward(i, n int) []Bar {
	if i < 0 || n <= 0 {
		return nil
	}
	start := i + 1
	if start >= len(s.bars) {
		return nil
	}
	end := start + n
	if end > len(s.bars) {
		end = len(s.bars)
	}
	return s.bars[start:end]
}

// Slice returns a sub-series covering [from, to] inclusive. The returned
// series shares no state with the receiver.
func (s *Series) Slice(from, to time.Time) (*Series, error) {
	from, to = Day(from), Day(to)
	var out []Bar
	for _, b := range s.bars {
		if b.Date.Before(from) || b.Date.After(to) {
			continue
		}
		out = append(out, b)
	}
	return NewSeries(s.ticker, out)
}
