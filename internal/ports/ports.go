// Package ports declares the collaborators the engine consumes. Providers
// implement them; the core only sees these interfaces.
package ports

import (
	"context"
	"time"

	"github.com/sawpanic/earnrun/internal/domain/bars"
)

// PriceSource returns daily bars for [start, end] inclusive
type PriceSource interface {
	DailyBars(ctx context.Context, ticker string, start, end time.Time) (*bars.Series, error)
}

// QuoteSource returns the latest traded price
type QuoteSource interface {
	LatestPrice(ctx context.Context, ticker string) (float64, error)
}

// EarningsCalendar lists tickers reporting on a given day
type EarningsCalendar interface {
	TickersReporting(ctx context.Context, day time.Time) ([]string, error)
}

// AccountState is a point-in-time view of the brokerage account
type AccountState struct {
	Equity      float64 `json:"equity" db:"equity"`
	Cash        float64 `json:"cash" db:"cash"`
	BuyingPower float64 `json:"buying_power" db:"buying_power"`
}

// AccountSource returns the current account state
type AccountSource interface {
	Account(ctx context.Context) (AccountState, error)
}

// BracketOrder is a market entry with attached take-profit and stop-loss legs
type BracketOrder struct {
	Ticker          string  `json:"ticker"`
	Qty             float64 `json:"qty"`
	TakeProfitPrice float64 `json:"take_profit_price"`
	StopLossPrice   float64 `json:"stop_loss_price"`
}

// Order is the broker's acknowledgement of a submitted order
type Order struct {
	ID          string    `json:"id"`
	Ticker      string    `json:"symbol"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Position is an open holding
type Position struct {
	Ticker          string  `json:"symbol"`
	Qty             float64 `json:"qty"`
	AvgEntryPrice   float64 `json:"avg_entry_price"`
	CurrentPrice    float64 `json:"current_price"`
	MarketValue     float64 `json:"market_value"`
	UnrealizedPL    float64 `json:"unrealized_pl"`
	UnrealizedPLPct float64 `json:"unrealized_plpc"`
}

// Broker places and inspects orders
type Broker interface {
	AccountSource
	SubmitBracket(ctx context.Context, order BracketOrder) (*Order, error)
	Positions(ctx context.Context) ([]Position, error)
	ClosePosition(ctx context.Context, ticker string) error
	MarketOpen(ctx context.Context) (bool, error)
}
