package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS trades (
		id                BIGSERIAL PRIMARY KEY,
		ticker            TEXT NOT NULL,
		entry_time        TIMESTAMPTZ NOT NULL,
		exit_time         TIMESTAMPTZ,
		entry_price       DOUBLE PRECISION NOT NULL,
		exit_price        DOUBLE PRECISION,
		quantity          DOUBLE PRECISION NOT NULL,
		side              TEXT NOT NULL,
		score             DOUBLE PRECISION,
		avg_gain          DOUBLE PRECISION,
		avg_drawdown      DOUBLE PRECISION,
		frequency         DOUBLE PRECISION,
		take_profit_price DOUBLE PRECISION,
		stop_loss_price   DOUBLE PRECISION,
		pnl               DOUBLE PRECISION,
		pnl_percent       DOUBLE PRECISION,
		status            TEXT NOT NULL,
		order_id          TEXT UNIQUE,
		notes             TEXT,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS trades_status_idx ON trades (status, ticker)`,
	`CREATE TABLE IF NOT EXISTS analysis_results (
		id            BIGSERIAL PRIMARY KEY,
		ticker        TEXT NOT NULL,
		analysis_date DATE NOT NULL,
		earnings_date DATE,
		score         DOUBLE PRECISION NOT NULL,
		avg_gain      DOUBLE PRECISION NOT NULL,
		avg_drawdown  DOUBLE PRECISION NOT NULL,
		frequency     DOUBLE PRECISION NOT NULL,
		selected      BOOLEAN NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS analysis_results_date_idx ON analysis_results (analysis_date)`,
	`CREATE TABLE IF NOT EXISTS daily_performance (
		date             DATE PRIMARY KEY,
		starting_balance DOUBLE PRECISION NOT NULL,
		ending_balance   DOUBLE PRECISION NOT NULL,
		pnl              DOUBLE PRECISION NOT NULL,
		pnl_percent      DOUBLE PRECISION NOT NULL,
		num_trades       INTEGER NOT NULL,
		num_wins         INTEGER NOT NULL,
		num_losses       INTEGER NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS account_snapshots (
		id              BIGSERIAL PRIMARY KEY,
		ts              TIMESTAMPTZ NOT NULL,
		equity          DOUBLE PRECISION NOT NULL,
		cash            DOUBLE PRECISION NOT NULL,
		buying_power    DOUBLE PRECISION NOT NULL,
		portfolio_value DOUBLE PRECISION NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema creates the tables and indexes when missing
func EnsureSchema(ctx context.Context, db *sqlx.DB, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
