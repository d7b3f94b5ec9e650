package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/earnrun/internal/persistence"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "postgres"), mock
}

func TestTradesRepo_InsertEntry(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTradesRepo(db, 5*time.Second)

	orderID := "ord-1"
	trade := persistence.Trade{
		Ticker:          "PEP",
		EntryTime:       time.Date(2024, 10, 8, 14, 0, 0, 0, time.UTC),
		EntryPrice:      100,
		Quantity:        12,
		Score:           0.42,
		AvgGain:         0.06,
		AvgDrawdown:     -0.03,
		Frequency:       0.75,
		TakeProfitPrice: 104.8,
		StopLossPrice:   96.7,
		OrderID:         &orderID,
	}

	mock.ExpectQuery("INSERT INTO trades").
		WithArgs("PEP", trade.EntryTime, 100.0, 12.0, "buy", 0.42, 0.06, -0.03, 0.75, 104.8, 96.7, "open", &orderID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	id, err := repo.InsertEntry(context.Background(), trade)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTradesRepo_InsertEntryDuplicateOrder(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTradesRepo(db, 5*time.Second)

	mock.ExpectQuery("INSERT INTO trades").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})

	_, err := repo.InsertEntry(context.Background(), persistence.Trade{Ticker: "PEP"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateOrder))
}

func TestTradesRepo_RecordExit(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTradesRepo(db, 5*time.Second)

	exitTime := time.Date(2024, 10, 10, 20, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE trades").
		WithArgs(exitTime, 104.8, 57.6, 4.8, "PEP").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.RecordExit(context.Background(), persistence.TradeExit{
		Ticker:    "PEP",
		ExitTime:  exitTime,
		ExitPrice: 104.8,
		PnL:       57.6,
		PnLPct:    4.8,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTradesRepo_RecordExitNoOpenTrade(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTradesRepo(db, 5*time.Second)

	mock.ExpectExec("UPDATE trades").WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := repo.RecordExit(context.Background(), persistence.TradeExit{Ticker: "KO"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTradesRepo_ListOpen(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTradesRepo(db, 5*time.Second)

	entry := time.Date(2024, 10, 8, 14, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "ticker", "entry_time", "exit_time", "entry_price", "exit_price", "quantity", "side",
		"score", "avg_gain", "avg_drawdown", "frequency", "take_profit_price", "stop_loss_price",
		"pnl", "pnl_percent", "status", "order_id", "notes", "created_at",
	}).AddRow(1, "PEP", entry, nil, 100.0, nil, 12.0, "buy",
		0.42, 0.06, -0.03, 0.75, 104.8, 96.7,
		nil, nil, "open", "ord-1", nil, entry)

	mock.ExpectQuery("SELECT (.+) FROM trades WHERE status = 'open'").WillReturnRows(rows)

	trades, err := repo.ListOpen(context.Background())
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "PEP", trades[0].Ticker)
	assert.Nil(t, trades[0].ExitTime)
	assert.Nil(t, trades[0].PnL)
	require.NotNil(t, trades[0].OrderID)
	assert.Equal(t, "ord-1", *trades[0].OrderID)
}

func TestTradesRepo_Stats(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTradesRepo(db, 5*time.Second)

	tr := persistence.TimeRange{
		From: time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 10, 31, 0, 0, 0, 0, time.UTC),
	}
	rows := sqlmock.NewRows([]string{
		"total_trades", "winning_trades", "losing_trades", "total_pnl",
		"avg_pnl", "max_win", "max_loss", "avg_pnl_percent",
	}).AddRow(4, 3, 1, 120.0, 30.0, 80.0, -40.0, 1.5)

	mock.ExpectQuery("FROM trades").WithArgs(tr.From, tr.To).WillReturnRows(rows)

	stats, err := repo.Stats(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalTrades)
	assert.Equal(t, 3, stats.WinningTrades)
	assert.Equal(t, -40.0, stats.MaxLoss)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalysisRepo_InsertBatch(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAnalysisRepo(db, 5*time.Second)

	day := time.Date(2024, 10, 7, 21, 30, 0, 0, time.UTC)
	earnings := time.Date(2024, 10, 8, 0, 0, 0, 0, time.UTC)
	results := []persistence.AnalysisResult{
		{Ticker: "PEP", AnalysisDate: day, EarningsDate: &earnings, Score: 0.4, AvgGain: 0.06, AvgDrawdown: -0.03, Frequency: 0.75, Selected: true},
		{Ticker: "DAL", AnalysisDate: day, EarningsDate: &earnings, Score: 0.2, AvgGain: 0.04, AvgDrawdown: -0.05, Frequency: 0.5},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO analysis_results")
	prep.ExpectExec().
		WithArgs("PEP", time.Date(2024, 10, 7, 0, 0, 0, 0, time.UTC), &earnings, 0.4, 0.06, -0.03, 0.75, true).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs("DAL", time.Date(2024, 10, 7, 0, 0, 0, 0, time.UTC), &earnings, 0.2, 0.04, -0.05, 0.5, false).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.InsertBatch(context.Background(), results))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalysisRepo_InsertBatchRollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAnalysisRepo(db, 5*time.Second)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO analysis_results")
	prep.ExpectExec().WillReturnError(errors.New("constraint violated"))
	mock.ExpectRollback()

	err := repo.InsertBatch(context.Background(), []persistence.AnalysisResult{{Ticker: "PEP"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PEP")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalysisRepo_InsertBatchEmpty(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAnalysisRepo(db, 5*time.Second)

	require.NoError(t, repo.InsertBatch(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotsRepo_LatestEmpty(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSnapshotsRepo(db, 5*time.Second)

	mock.ExpectQuery("FROM account_snapshots").WillReturnError(sql.ErrNoRows)

	snap, err := repo.Latest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSnapshotsRepo_InsertAndLatest(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSnapshotsRepo(db, 5*time.Second)

	ts := time.Date(2024, 10, 8, 13, 0, 0, 0, time.UTC)
	snap := persistence.AccountSnapshot{Timestamp: ts, Equity: 10000, Cash: 8000, BuyingPower: 16000, PortfolioValue: 10000}

	mock.ExpectExec("INSERT INTO account_snapshots").
		WithArgs(ts, 10000.0, 8000.0, 16000.0, 10000.0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("FROM account_snapshots").
		WillReturnRows(sqlmock.NewRows([]string{"id", "ts", "equity", "cash", "buying_power", "portfolio_value"}).
			AddRow(1, ts, 10000.0, 8000.0, 16000.0, 10000.0))

	require.NoError(t, repo.Insert(context.Background(), snap))
	latest, err := repo.Latest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 16000.0, latest.BuyingPower)
}

func TestPerformanceRepo_Upsert(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPerformanceRepo(db, 5*time.Second)

	day := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM trades").
		WithArgs(day, day.AddDate(0, 0, 1)).
		WillReturnRows(sqlmock.NewRows([]string{"num_trades", "num_wins", "num_losses"}).AddRow(2, 1, 1))
	mock.ExpectExec("INSERT INTO daily_performance").
		WithArgs(day, 10000.0, 10250.0, 250.0, 2.5, 2, 1, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	perf, err := repo.Upsert(context.Background(), day.Add(15*time.Hour), 10000, 10250)
	require.NoError(t, err)
	assert.Equal(t, day, perf.Date)
	assert.InDelta(t, 2.5, perf.PnLPct, 1e-9)
	assert.Equal(t, 2, perf.NumTrades)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceRepo_UpsertZeroStart(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPerformanceRepo(db, 5*time.Second)

	mock.ExpectQuery("SELECT (.+) FROM trades").
		WillReturnRows(sqlmock.NewRows([]string{"num_trades", "num_wins", "num_losses"}).AddRow(0, 0, 0))
	mock.ExpectExec("INSERT INTO daily_performance").WillReturnResult(sqlmock.NewResult(0, 1))

	perf, err := repo.Upsert(context.Background(), time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC), 0, 100)
	require.NoError(t, err)
	assert.Zero(t, perf.PnLPct)
}

func TestEnsureSchema(t *testing.T) {
	db, mock := newMock(t)

	for range schema {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, EnsureSchema(context.Background(), db, 5*time.Second))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema_Error(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("CREATE").WillReturnError(errors.New("permission denied"))

	err := EnsureSchema(context.Background(), db, 5*time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statement 1")
}
