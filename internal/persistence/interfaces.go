package persistence

import (
	"context"
	"time"
)

// TimeRange represents a query window, both ends inclusive
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Trade status values
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Trade is a live position from entry to exit. Exit fields stay nil while
// the trade is open.
type Trade struct {
	ID              int64      `json:"id" db:"id"`
	Ticker          string     `json:"ticker" db:"ticker"`
	EntryTime       time.Time  `json:"entry_time" db:"entry_time"`
	ExitTime        *time.Time `json:"exit_time,omitempty" db:"exit_time"`
	EntryPrice      float64    `json:"entry_price" db:"entry_price"`
	ExitPrice       *float64   `json:"exit_price,omitempty" db:"exit_price"`
	Quantity        float64    `json:"quantity" db:"quantity"`
	Side            string     `json:"side" db:"side"`
	Score           float64    `json:"score" db:"score"`
	AvgGain         float64    `json:"avg_gain" db:"avg_gain"`
	AvgDrawdown     float64    `json:"avg_drawdown" db:"avg_drawdown"`
	Frequency       float64    `json:"frequency" db:"frequency"`
	TakeProfitPrice float64    `json:"take_profit_price" db:"take_profit_price"`
	StopLossPrice   float64    `json:"stop_loss_price" db:"stop_loss_price"`
	PnL             *float64   `json:"pnl,omitempty" db:"pnl"`
	PnLPct          *float64   `json:"pnl_percent,omitempty" db:"pnl_percent"`
	Status          string     `json:"status" db:"status"`
	OrderID         *string    `json:"order_id,omitempty" db:"order_id"`
	Notes           *string    `json:"notes,omitempty" db:"notes"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}

// TradeExit closes the open trade for a ticker
type TradeExit struct {
	Ticker    string    `json:"ticker"`
	ExitTime  time.Time `json:"exit_time"`
	ExitPrice float64   `json:"exit_price"`
	PnL       float64   `json:"pnl"`
	PnLPct    float64   `json:"pnl_percent"`
}

// AnalysisResult records how one ticker scored in a selection run
type AnalysisResult struct {
	ID           int64      `json:"id" db:"id"`
	Ticker       string     `json:"ticker" db:"ticker"`
	AnalysisDate time.Time  `json:"analysis_date" db:"analysis_date"`
	EarningsDate *time.Time `json:"earnings_date,omitempty" db:"earnings_date"`
	Score        float64    `json:"score" db:"score"`
	AvgGain      float64    `json:"avg_gain" db:"avg_gain"`
	AvgDrawdown  float64    `json:"avg_drawdown" db:"avg_drawdown"`
	Frequency    float64    `json:"frequency" db:"frequency"`
	Selected     bool       `json:"selected" db:"selected"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// AccountSnapshot is a point-in-time copy of the brokerage account
type AccountSnapshot struct {
	ID             int64     `json:"id" db:"id"`
	Timestamp      time.Time `json:"ts" db:"ts"`
	Equity         float64   `json:"equity" db:"equity"`
	Cash           float64   `json:"cash" db:"cash"`
	BuyingPower    float64   `json:"buying_power" db:"buying_power"`
	PortfolioValue float64   `json:"portfolio_value" db:"portfolio_value"`
}

// DailyPerformance is one row of the daily equity ledger
type DailyPerformance struct {
	Date            time.Time `json:"date" db:"date"`
	StartingBalance float64   `json:"starting_balance" db:"starting_balance"`
	EndingBalance   float64   `json:"ending_balance" db:"ending_balance"`
	PnL             float64   `json:"pnl" db:"pnl"`
	PnLPct          float64   `json:"pnl_percent" db:"pnl_percent"`
	NumTrades       int       `json:"num_trades" db:"num_trades"`
	NumWins         int       `json:"num_wins" db:"num_wins"`
	NumLosses       int       `json:"num_losses" db:"num_losses"`
}

// TradeStats aggregates closed trades
type TradeStats struct {
	TotalTrades   int     `json:"total_trades" db:"total_trades"`
	WinningTrades int     `json:"winning_trades" db:"winning_trades"`
	LosingTrades  int     `json:"losing_trades" db:"losing_trades"`
	TotalPnL      float64 `json:"total_pnl" db:"total_pnl"`
	AvgPnL        float64 `json:"avg_pnl" db:"avg_pnl"`
	MaxWin        float64 `json:"max_win" db:"max_win"`
	MaxLoss       float64 `json:"max_loss" db:"max_loss"`
	AvgPnLPct     float64 `json:"avg_pnl_percent" db:"avg_pnl_percent"`
}

// TickerStats aggregates closed trades for one ticker
type TickerStats struct {
	Ticker    string  `json:"ticker" db:"ticker"`
	NumTrades int     `json:"num_trades" db:"num_trades"`
	Wins      int     `json:"wins" db:"wins"`
	TotalPnL  float64 `json:"total_pnl" db:"total_pnl"`
	AvgPnL    float64 `json:"avg_pnl" db:"avg_pnl"`
	AvgPnLPct float64 `json:"avg_pnl_percent" db:"avg_pnl_percent"`
}

// TradesRepo persists live trades
type TradesRepo interface {
	// InsertEntry records a newly opened trade and returns its ID
	InsertEntry(ctx context.Context, trade Trade) (int64, error)

	// RecordExit closes every open trade for the ticker and returns how many were closed
	RecordExit(ctx context.Context, exit TradeExit) (int64, error)

	// ListOpen returns trades still open
	ListOpen(ctx context.Context) ([]Trade, error)

	// ListRecent returns the latest trades by creation time
	ListRecent(ctx context.Context, limit int) ([]Trade, error)

	// ListClosed returns closed trades ordered by P&L, best first when best is true
	ListClosed(ctx context.Context, best bool, limit int) ([]Trade, error)

	// Stats aggregates trades closed within the range
	Stats(ctx context.Context, tr TimeRange) (TradeStats, error)

	// ByTicker aggregates closed trades per ticker, highest total P&L first
	ByTicker(ctx context.Context) ([]TickerStats, error)
}

// AnalysisRepo persists per-ticker selection results
type AnalysisRepo interface {
	// InsertBatch records a selection run atomically
	InsertBatch(ctx context.Context, results []AnalysisResult) error

	// ListByDate returns the results of one analysis day, best score first
	ListByDate(ctx context.Context, day time.Time) ([]AnalysisResult, error)
}

// SnapshotsRepo persists account snapshots
type SnapshotsRepo interface {
	Insert(ctx context.Context, snap AccountSnapshot) error
	Latest(ctx context.Context) (*AccountSnapshot, error)
}

// PerformanceRepo persists the daily equity ledger
type PerformanceRepo interface {
	// Upsert writes the row for a day, counting that day's closed trades
	Upsert(ctx context.Context, day time.Time, startingBalance, endingBalance float64) (*DailyPerformance, error)

	// Range returns ledger rows in the range, oldest first
	Range(ctx context.Context, tr TimeRange) ([]DailyPerformance, error)
}

// Repository aggregates all persistence interfaces
type Repository struct {
	Trades      TradesRepo
	Analysis    AnalysisRepo
	Snapshots   SnapshotsRepo
	Performance PerformanceRepo
}

// HealthCheck represents repository health status
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for persistence layer
type RepositoryHealth interface {
	// Health returns current repository health status
	Health(ctx context.Context) HealthCheck

	// Ping tests basic connectivity to database
	Ping(ctx context.Context) error

	// Stats returns connection pool and query statistics
	Stats(ctx context.Context) map[string]interface{}
}

// PnLPct returns pnl as a percentage of cost basis, or 0 without a basis
func PnLPct(pnl, entryPrice, qty float64) float64 {
	basis := entryPrice * qty
	if basis == 0 {
		return 0
	}
	return pnl / basis * 100
}
