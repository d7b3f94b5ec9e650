package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/earnrun/internal/persistence"
)

const tradeColumns = `id, ticker, entry_time, exit_time, entry_price, exit_price, quantity, side,
	score, avg_gain, avg_drawdown, frequency, take_profit_price, stop_loss_price,
	pnl, pnl_percent, status, order_id, notes, created_at`

// ErrDuplicateOrder is returned when an order ID is recorded twice
var ErrDuplicateOrder = errors.New("duplicate order id")

// tradesRepo implements TradesRepo interface for PostgreSQL
type tradesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTradesRepo creates a new PostgreSQL trades repository
func NewTradesRepo(db *sqlx.DB, timeout time.Duration) persistence.TradesRepo {
	return &tradesRepo{
		db:      db,
		timeout: timeout,
	}
}

// InsertEntry records a newly opened trade
func (r *tradesRepo) InsertEntry(ctx context.Context, trade persistence.Trade) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if trade.Side == "" {
		trade.Side = "buy"
	}
	if trade.Status == "" {
		trade.Status = persistence.StatusOpen
	}

	query := `
		INSERT INTO trades (ticker, entry_time, entry_price, quantity, side, score, avg_gain,
			avg_drawdown, frequency, take_profit_price, stop_loss_price, status, order_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`

	var id int64
	err := r.db.QueryRowxContext(ctx, query,
		trade.Ticker, trade.EntryTime, trade.EntryPrice, trade.Quantity, trade.Side,
		trade.Score, trade.AvgGain, trade.AvgDrawdown, trade.Frequency,
		trade.TakeProfitPrice, trade.StopLossPrice, trade.Status, trade.OrderID).
		Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return 0, fmt.Errorf("%w: %v", ErrDuplicateOrder, err)
		}
		return 0, fmt.Errorf("failed to insert trade: %w", err)
	}

	return id, nil
}

// RecordExit closes the open trades for a ticker
func (r *tradesRepo) RecordExit(ctx context.Context, exit persistence.TradeExit) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		UPDATE trades
		SET exit_time = $1, exit_price = $2, pnl = $3, pnl_percent = $4, status = 'closed'
		WHERE ticker = $5 AND status = 'open'`

	res, err := r.db.ExecContext(ctx, query, exit.ExitTime, exit.ExitPrice, exit.PnL, exit.PnLPct, exit.Ticker)
	if err != nil {
		return 0, fmt.Errorf("failed to record trade exit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// ListOpen returns trades still open
func (r *tradesRepo) ListOpen(ctx context.Context) ([]persistence.Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var trades []persistence.Trade
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE status = 'open' ORDER BY entry_time`
	if err := r.db.SelectContext(ctx, &trades, query); err != nil {
		return nil, fmt.Errorf("failed to query open trades: %w", err)
	}
	return trades, nil
}

// ListRecent returns the latest trades
func (r *tradesRepo) ListRecent(ctx context.Context, limit int) ([]persistence.Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var trades []persistence.Trade
	query := `SELECT ` + tradeColumns + ` FROM trades ORDER BY created_at DESC LIMIT $1`
	if err := r.db.SelectContext(ctx, &trades, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query recent trades: %w", err)
	}
	return trades, nil
}

// ListClosed returns closed trades ordered by P&L
func (r *tradesRepo) ListClosed(ctx context.Context, best bool, limit int) ([]persistence.Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	order := "ASC"
	if best {
		order = "DESC"
	}
	var trades []persistence.Trade
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE status = 'closed' ORDER BY pnl ` + order + ` LIMIT $1`
	if err := r.db.SelectContext(ctx, &trades, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query closed trades: %w", err)
	}
	return trades, nil
}

// Stats aggregates trades closed within the range
func (r *tradesRepo) Stats(ctx context.Context, tr persistence.TimeRange) (persistence.TradeStats, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT
			COUNT(*) AS total_trades,
			COALESCE(SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), 0) AS winning_trades,
			COALESCE(SUM(CASE WHEN pnl < 0 THEN 1 ELSE 0 END), 0) AS losing_trades,
			COALESCE(SUM(pnl), 0) AS total_pnl,
			COALESCE(AVG(pnl), 0) AS avg_pnl,
			COALESCE(MAX(pnl), 0) AS max_win,
			COALESCE(MIN(pnl), 0) AS max_loss,
			COALESCE(AVG(pnl_percent), 0) AS avg_pnl_percent
		FROM trades
		WHERE status = 'closed' AND exit_time >= $1 AND exit_time <= $2`

	var stats persistence.TradeStats
	if err := r.db.GetContext(ctx, &stats, query, tr.From, tr.To); err != nil {
		return persistence.TradeStats{}, fmt.Errorf("failed to query trade statistics: %w", err)
	}
	return stats, nil
}

// ByTicker aggregates closed trades per ticker
func (r *tradesRepo) ByTicker(ctx context.Context) ([]persistence.TickerStats, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT
			ticker,
			COUNT(*) AS num_trades,
			COALESCE(SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), 0) AS wins,
			COALESCE(SUM(pnl), 0) AS total_pnl,
			COALESCE(AVG(pnl), 0) AS avg_pnl,
			COALESCE(AVG(pnl_percent), 0) AS avg_pnl_percent
		FROM trades
		WHERE status = 'closed'
		GROUP BY ticker
		ORDER BY total_pnl DESC`

	var out []persistence.TickerStats
	if err := r.db.SelectContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("failed to query ticker performance: %w", err)
	}
	return out, nil
}
