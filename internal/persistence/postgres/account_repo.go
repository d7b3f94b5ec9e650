package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/earnrun/internal/domain/bars"
	"github.com/sawpanic/earnrun/internal/persistence"
)

type snapshotsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSnapshotsRepo creates a PostgreSQL account snapshot repository
func NewSnapshotsRepo(db *sqlx.DB, timeout time.Duration) persistence.SnapshotsRepo {
	return &snapshotsRepo{db: db, timeout: timeout}
}

func (r *snapshotsRepo) Insert(ctx context.Context, snap persistence.AccountSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO account_snapshots (ts, equity, cash, buying_power, portfolio_value)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query, snap.Timestamp, snap.Equity, snap.Cash, snap.BuyingPower, snap.PortfolioValue); err != nil {
		return fmt.Errorf("failed to insert account snapshot: %w", err)
	}
	return nil
}

// Latest returns nil when no snapshot exists
func (r *snapshotsRepo) Latest(ctx context.Context) (*persistence.AccountSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var snap persistence.AccountSnapshot
	query := `SELECT id, ts, equity, cash, buying_power, portfolio_value FROM account_snapshots ORDER BY ts DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &snap, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest snapshot: %w", err)
	}
	return &snap, nil
}

type performanceRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPerformanceRepo creates a PostgreSQL daily performance repository
func NewPerformanceRepo(db *sqlx.DB, timeout time.Duration) persistence.PerformanceRepo {
	return &performanceRepo{db: db, timeout: timeout}
}

type dayCounts struct {
	NumTrades int `db:"num_trades"`
	NumWins   int `db:"num_wins"`
	NumLosses int `db:"num_losses"`
}

// Upsert counts the trades closed on day and writes the ledger row
func (r *performanceRepo) Upsert(ctx context.Context, day time.Time, startingBalance, endingBalance float64) (*persistence.DailyPerformance, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	day = bars.Day(day)
	var counts dayCounts
	countQuery := `
		SELECT
			COUNT(*) AS num_trades,
			COALESCE(SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), 0) AS num_wins,
			COALESCE(SUM(CASE WHEN pnl < 0 THEN 1 ELSE 0 END), 0) AS num_losses
		FROM trades
		WHERE status = 'closed' AND exit_time >= $1 AND exit_time < $2`
	if err := r.db.GetContext(ctx, &counts, countQuery, day, day.AddDate(0, 0, 1)); err != nil {
		return nil, fmt.Errorf("failed to count trades for %s: %w", day.Format("2006-01-02"), err)
	}

	perf := persistence.DailyPerformance{
		Date:            day,
		StartingBalance: startingBalance,
		EndingBalance:   endingBalance,
		PnL:             endingBalance - startingBalance,
		NumTrades:       counts.NumTrades,
		NumWins:         counts.NumWins,
		NumLosses:       counts.NumLosses,
	}
	if startingBalance > 0 {
		perf.PnLPct = perf.PnL / startingBalance * 100
	}

	query := `
		INSERT INTO daily_performance (date, starting_balance, ending_balance, pnl, pnl_percent, num_trades, num_wins, num_losses)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (date) DO UPDATE SET
			starting_balance = EXCLUDED.starting_balance,
			ending_balance = EXCLUDED.ending_balance,
			pnl = EXCLUDED.pnl,
			pnl_percent = EXCLUDED.pnl_percent,
			num_trades = EXCLUDED.num_trades,
			num_wins = EXCLUDED.num_wins,
			num_losses = EXCLUDED.num_losses`
	_, err := r.db.ExecContext(ctx, query, perf.Date, perf.StartingBalance, perf.EndingBalance,
		perf.PnL, perf.PnLPct, perf.NumTrades, perf.NumWins, perf.NumLosses)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert daily performance: %w", err)
	}
	return &perf, nil
}

// Range returns ledger rows oldest first
func (r *performanceRepo) Range(ctx context.Context, tr persistence.TimeRange) ([]persistence.DailyPerformance, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT date, starting_balance, ending_balance, pnl, pnl_percent, num_trades, num_wins, num_losses
		FROM daily_performance
		WHERE date >= $1 AND date <= $2
		ORDER BY date ASC`

	var out []persistence.DailyPerformance
	if err := r.db.SelectContext(ctx, &out, query, bars.Day(tr.From), bars.Day(tr.To)); err != nil {
		return nil, fmt.Errorf("failed to query daily performance: %w", err)
	}
	return out, nil
}
