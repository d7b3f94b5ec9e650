package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/earnrun/internal/domain/bars"
	"github.com/sawpanic/earnrun/internal/persistence"
)

type analysisRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewAnalysisRepo creates a PostgreSQL analysis results repository
func NewAnalysisRepo(db *sqlx.DB, timeout time.Duration) persistence.AnalysisRepo {
	return &analysisRepo{db: db, timeout: timeout}
}

// InsertBatch records a selection run in one transaction
func (r *analysisRepo) InsertBatch(ctx context.Context, results []persistence.AnalysisResult) error {
	if len(results) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO analysis_results (ticker, analysis_date, earnings_date, score, avg_gain, avg_drawdown, frequency, selected)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, a := range results {
		_, err := stmt.ExecContext(ctx, a.Ticker, bars.Day(a.AnalysisDate), a.EarningsDate,
			a.Score, a.AvgGain, a.AvgDrawdown, a.Frequency, a.Selected)
		if err != nil {
			return fmt.Errorf("failed to insert analysis result for %s: %w", a.Ticker, err)
		}
	}

	return tx.Commit()
}

// ListByDate returns one day's results, best score first
func (r *analysisRepo) ListByDate(ctx context.Context, day time.Time) ([]persistence.AnalysisResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, ticker, analysis_date, earnings_date, score, avg_gain, avg_drawdown, frequency, selected, created_at
		FROM analysis_results
		WHERE analysis_date = $1
		ORDER BY score DESC`

	var out []persistence.AnalysisResult
	if err := r.db.SelectContext(ctx, &out, query, bars.Day(day)); err != nil {
		return nil, fmt.Errorf("failed to query analysis results: %w", err)
	}
	return out, nil
}
