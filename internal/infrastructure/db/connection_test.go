package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 10, config.MaxOpenConns)
	assert.Equal(t, 5, config.MaxIdleConns)
	assert.Equal(t, 30*time.Second, config.QueryTimeout)
	assert.False(t, config.Enabled)
	assert.True(t, config.AutoMigrate)
	assert.NoError(t, config.Validate())
}

func TestConfigValidate(t *testing.T) {
	config := DefaultConfig()
	config.Enabled = true
	assert.Error(t, config.Validate())

	config.DSN = "postgres://localhost/earnrun"
	config.MaxIdleConns = 20
	assert.Error(t, config.Validate())
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PG_DSN", "")
	t.Setenv("DATABASE_URL", "postgres://db/earnrun")
	t.Setenv("PG_QUERY_TIMEOUT", "5s")
	t.Setenv("PG_MAX_OPEN_CONNS", "3")

	config := DefaultConfig()
	ApplyEnv(&config)

	assert.Equal(t, "postgres://db/earnrun", config.DSN)
	assert.True(t, config.Enabled)
	assert.Equal(t, 5*time.Second, config.QueryTimeout)
	assert.Equal(t, 3, config.MaxOpenConns)
}

func TestApplyEnv_ExplicitDisable(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://db/earnrun")
	t.Setenv("PG_ENABLED", "false")

	config := DefaultConfig()
	ApplyEnv(&config)

	assert.Equal(t, "postgres://db/earnrun", config.DSN)
	assert.False(t, config.Enabled)
}

func TestFillDefaults(t *testing.T) {
	config := Config{MaxOpenConns: 4}
	config.FillDefaults()

	assert.Equal(t, 4, config.MaxOpenConns)
	assert.Equal(t, 5, config.MaxIdleConns)
	assert.Equal(t, 30*time.Second, config.QueryTimeout)
}

func TestNewManager_Disabled(t *testing.T) {
	manager, err := NewManager(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, manager.IsEnabled())
	assert.Nil(t, manager.Repository())
	assert.Nil(t, manager.DB())
	assert.NoError(t, manager.Close())

	health := manager.Health().Health(context.Background())
	assert.True(t, health.Healthy)
	assert.Contains(t, health.Errors[0], "disabled")
	assert.NoError(t, manager.Health().Ping(context.Background()))
	assert.Equal(t, "disabled", manager.Health().Stats(context.Background())["status"])
}

func TestNewManager_MissingDSN(t *testing.T) {
	_, err := NewManager(context.Background(), Config{Enabled: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN is required")
}

func TestNewManagerWithDB_AppliesSchema(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockDB.Close()

	for i := 0; i < 6; i++ {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectPing()

	config := DefaultConfig()
	manager, err := NewManagerWithDB(context.Background(), sqlx.NewDb(mockDB, "postgres"), config)
	require.NoError(t, err)

	assert.True(t, manager.IsEnabled())
	repo := manager.Repository()
	require.NotNil(t, repo)
	assert.NotNil(t, repo.Trades)
	assert.NotNil(t, repo.Analysis)
	assert.NotNil(t, repo.Snapshots)
	assert.NotNil(t, repo.Performance)

	health := manager.Health().Health(context.Background())
	assert.True(t, health.Healthy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewManagerWithDB_SchemaFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectExec("CREATE").WillReturnError(errors.New("permission denied"))

	_, err = NewManagerWithDB(context.Background(), sqlx.NewDb(mockDB, "postgres"), DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")
}

func TestHealthChecker_PingFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockDB.Close()

	config := DefaultConfig()
	config.AutoMigrate = false
	manager, err := NewManagerWithDB(context.Background(), sqlx.NewDb(mockDB, "postgres"), config)
	require.NoError(t, err)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	health := manager.Health().Health(context.Background())
	assert.False(t, health.Healthy)
	require.Len(t, health.Errors, 1)
	assert.Contains(t, health.Errors[0], "connection refused")
	assert.Equal(t, true, manager.Health().Stats(context.Background())["enabled"])
}
