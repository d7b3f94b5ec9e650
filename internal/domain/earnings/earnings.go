package earnings

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sawpanic/earnrun/internal/domain/bars"
)

// Event is a single earnings announcement. Estimated events are synthetic
// dates derived from quarterly spacing rather than a published calendar.
type Event struct {
	Ticker    string    `json:"ticker"`
	Date      time.Time `json:"date"`
	Estimated bool      `json:"estimated"`
}

// Source produces the past earnings events for a ticker as seen on asOf
type Source interface {
	Events(ctx context.Context, ticker string, asOf time.Time, yearsBack int) ([]Event, error)
}

// HistoryFetcher is the calendar collaborator a CalendarSource wraps
type HistoryFetcher interface {
	EarningsDates(ctx context.Context, ticker string, from, to time.Time) ([]time.Time, error)
}

// CalendarSource returns published earnings dates from a calendar provider
type CalendarSource struct {
	fetcher HistoryFetcher
}

// NewCalendarSource wraps a provider that knows historical report dates
func NewCalendarSource(fetcher HistoryFetcher) *CalendarSource {
	return &CalendarSource{fetcher: fetcher}
}

// Events returns published events in [asOf-yearsBack, asOf], oldest first
func (c *CalendarSource) Events(ctx context.Context, ticker string, asOf time.Time, yearsBack int) ([]Event, error) {
	to := bars.Day(asOf)
	from := to.AddDate(-yearsBack, 0, 0)

	dates, err := c.fetcher.EarningsDates(ctx, ticker, from, to)
	if err != nil {
		return nil, fmt.Errorf("earnings history for %s: %w", ticker, err)
	}

	seen := make(map[time.Time]bool, len(dates))
	events := make([]Event, 0, len(dates))
	for _, d := range dates {
		d = bars.Day(d)
		if seen[d] || d.Before(from) || d.After(to) {
			continue
		}
		seen[d] = true
		events = append(events, Event{Ticker: ticker, Date: d})
	}
	sortEvents(events)
	return events, nil
}

// QuarterlyEstimator synthesizes past events at fixed spacing back from a
// known upcoming report date.
type QuarterlyEstimator struct {
	Spacing time.Duration
}

// NewQuarterlyEstimator returns an estimator with 90-day spacing
func NewQuarterlyEstimator() *QuarterlyEstimator {
	return &QuarterlyEstimator{Spacing: 90 * 24 * time.Hour}
}

// Events treats asOf as the upcoming report date. The first estimate is one
// spacing before it and estimates continue back while they are on or after
// asOf minus yearsBack*365 days.
func (q *QuarterlyEstimator) Events(_ context.Context, ticker string, asOf time.Time, yearsBack int) ([]Event, error) {
	upcoming := bars.Day(asOf)
	cutoff := Cutoff(upcoming, yearsBack)
	spacingDays := int(q.Spacing.Hours() / 24)
	if spacingDays <= 0 {
		return nil, fmt.Errorf("estimator spacing must be at least one day, got %v", q.Spacing)
	}

	var events []Event
	for d := upcoming.AddDate(0, 0, -spacingDays); !d.Before(cutoff); d = d.AddDate(0, 0, -spacingDays) {
		events = append(events, Event{Ticker: ticker, Date: d, Estimated: true})
	}
	sortEvents(events)
	return events, nil
}

// Cutoff is the oldest date an estimated history reaches back to
func Cutoff(upcoming time.Time, yearsBack int) time.Time {
	return bars.Day(upcoming).AddDate(0, 0, -365*yearsBack)
}

// Select picks the published calendar when a fetcher is available and the
// quarterly estimator otherwise. estimated reports which one was chosen.
func Select(fetcher HistoryFetcher) (src Source, estimated bool) {
	if fetcher == nil {
		return NewQuarterlyEstimator(), true
	}
	return NewCalendarSource(fetcher), false
}

func sortEvents(events []Event) {
	sort.Slice(events, func(i, j int) bool { return events[i].Date.Before(events[j].Date) })
}
