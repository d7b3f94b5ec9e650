// Package notify delivers engine events to operators and downstream
// consumers. Sinks never block a trading decision: failures are logged and
// returned, and callers treat them as non-fatal.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/earnrun/internal/domain/ranking"
	"github.com/sawpanic/earnrun/internal/ports"
)

// Kind identifies an event
type Kind string

const (
	KindStartup          Kind = "startup"
	KindAnalysisStart    Kind = "analysis_start"
	KindAnalysisComplete Kind = "analysis_complete"
	KindTradeEntry       Kind = "trade_entry"
	KindTradeExit        Kind = "trade_exit"
	KindPositionUpdate   Kind = "position_update"
	KindDailySummary     Kind = "daily_summary"
	KindRiskLimit        Kind = "risk_limit"
	KindNoOpportunity    Kind = "no_opportunity"
	KindError            Kind = "error"
)

// Entry describes an opened position
type Entry struct {
	Qty         float64 `json:"qty"`
	EntryPrice  float64 `json:"entry_price"`
	TakeProfit  float64 `json:"take_profit"`
	StopLoss    float64 `json:"stop_loss"`
	CapitalUsed float64 `json:"capital_used"`
	OrderID     string  `json:"order_id,omitempty"`
}

// Exit describes a closed position
type Exit struct {
	ExitPrice float64 `json:"exit_price"`
	PnL       float64 `json:"pnl"`
	PnLPct    float64 `json:"pnl_percent"`
	Reason    string  `json:"reason"`
}

// DailySummary is the end-of-day account recap
type DailySummary struct {
	Date      string  `json:"date"`
	TotalPnL  float64 `json:"total_pnl"`
	NumTrades int     `json:"num_trades"`
	WinRate   float64 `json:"win_rate"`
	Equity    float64 `json:"equity"`
}

// Event is a single notification. Only the payload matching Kind is set.
type Event struct {
	ID        string                  `json:"id"`
	Kind      Kind                    `json:"kind"`
	Time      time.Time               `json:"time"`
	Ticker    string                  `json:"ticker,omitempty"`
	Message   string                  `json:"message,omitempty"`
	Count     int                     `json:"count,omitempty"`
	Value     float64                 `json:"value,omitempty"`
	Critical  bool                    `json:"critical,omitempty"`
	Candidate *ranking.CandidateScore `json:"candidate,omitempty"`
	Entry     *Entry                  `json:"entry,omitempty"`
	Exit      *Exit                   `json:"exit,omitempty"`
	Position  *ports.Position         `json:"position,omitempty"`
	Summary   *DailySummary           `json:"summary,omitempty"`
}

var now = time.Now

func newEvent(kind Kind) Event {
	return Event{ID: uuid.NewString(), Kind: kind, Time: now().UTC()}
}

// Startup announces the engine is running in the given mode
func Startup(mode string) Event {
	e := newEvent(KindStartup)
	e.Message = mode
	return e
}

// AnalysisStart announces a selection run over n tickers
func AnalysisStart(n int) Event {
	e := newEvent(KindAnalysisStart)
	e.Count = n
	return e
}

// AnalysisComplete announces the selected candidate
func AnalysisComplete(c ranking.CandidateScore) Event {
	e := newEvent(KindAnalysisComplete)
	e.Ticker = c.Ticker
	e.Candidate = &c
	return e
}

// TradeEntry announces a submitted bracket order
func TradeEntry(ticker string, entry Entry) Event {
	e := newEvent(KindTradeEntry)
	e.Ticker = ticker
	e.Entry = &entry
	return e
}

// TradeExit announces a closed position
func TradeExit(ticker string, exit Exit) Event {
	e := newEvent(KindTradeExit)
	e.Ticker = ticker
	e.Exit = &exit
	return e
}

// PositionUpdate reports an open position's unrealized P&L
func PositionUpdate(p ports.Position) Event {
	e := newEvent(KindPositionUpdate)
	e.Ticker = p.Ticker
	e.Position = &p
	return e
}

// Daily reports the end-of-day recap
func Daily(s DailySummary) Event {
	e := newEvent(KindDailySummary)
	e.Summary = &s
	return e
}

// RiskLimit reports a tripped risk limit; value is in percent
func RiskLimit(limit string, value float64) Event {
	e := newEvent(KindRiskLimit)
	e.Message = limit
	e.Value = value
	return e
}

// NoOpportunity reports a run that ended without a trade
func NoOpportunity(reason string) Event {
	e := newEvent(KindNoOpportunity)
	e.Message = reason
	return e
}

// Failure reports an operational error
func Failure(msg string, critical bool) Event {
	e := newEvent(KindError)
	e.Message = msg
	e.Critical = critical
	return e
}

// Notifier delivers events
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Nop discards events
type Nop struct{}

// Notify implements Notifier
func (Nop) Notify(context.Context, Event) error { return nil }

// Fanout delivers each event to every sink. One failing sink does not stop
// the others; all errors are joined.
type Fanout struct {
	sinks []Notifier
}

// NewFanout builds a fan-out over the non-nil sinks
func NewFanout(sinks ...Notifier) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Add appends a sink
func (f *Fanout) Add(s Notifier) {
	if s != nil {
		f.sinks = append(f.sinks, s)
	}
}

// Len returns the number of sinks
func (f *Fanout) Len() int { return len(f.sinks) }

// Notify implements Notifier
func (f *Fanout) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Notify(ctx, e); err != nil {
			log.Error().Err(err).Str("kind", string(e.Kind)).Msg("Notification failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
