package risk

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopLossPrice_FloorAndCap(t *testing.T) {
	// raw -3.3% is tighter than the -8% floor
	assert.Equal(t, 92.00, StopLossPrice(100, -0.03))
	// raw -27.5% is wider than the -20% cap
	assert.Equal(t, 80.00, StopLossPrice(100, -0.25))
	// -11% passes through unchanged
	assert.Equal(t, 89.00, StopLossPrice(100, -0.10))
	// rounded to cents
	assert.Equal(t, 45.70, StopLossPrice(49.67, -0.07))
}

func TestStopPolicies(t *testing.T) {
	assert.InDelta(t, -0.045, BacktestStop().Pct(-0.03), 1e-12)
	assert.InDelta(t, -0.375, BacktestStop().Pct(-0.25), 1e-12)
	assert.InDelta(t, -0.033, ReplayStop().Pct(-0.03), 1e-12)
	assert.InDelta(t, 95.5, BacktestStop().Price(100, -0.03), 1e-9)
	assert.Equal(t, -0.08, LiveStop().Pct(-0.03))
}

func TestTakeProfitPrice(t *testing.T) {
	assert.Equal(t, 104.5, TakeProfitPrice(100, 0.05))
	assert.InDelta(t, 0.05, BacktestTarget().Pct(0.05), 1e-12)
	assert.InDelta(t, 105.0, BacktestTarget().Price(100, 0.05), 1e-9)
}

func TestPositionSize(t *testing.T) {
	c := DefaultConfig()

	// min(10000*0.98, 10000*0.85) = 8500 -> 85 shares
	qty, capital := c.PositionSize(10000, 10000, 100)
	assert.Equal(t, 85.0, qty)
	assert.Equal(t, 8500.0, capital)

	// buying power binds: 5000*0.98 = 4900 -> 49 shares
	qty, capital = c.PositionSize(10000, 5000, 100)
	assert.Equal(t, 49.0, qty)
	assert.Equal(t, 4900.0, capital)

	// fractional shares below one
	qty, capital = c.PositionSize(100, 100, 400)
	assert.Equal(t, 0.2125, qty)
	assert.InDelta(t, 85.0, capital, 1e-9)

	qty, capital = c.PositionSize(10000, 0, 100)
	assert.Zero(t, qty)
	assert.Zero(t, capital)

	qty, capital = c.PositionSize(10000, 10000, 0)
	assert.Zero(t, qty)
	assert.Zero(t, capital)
}

func TestGuard_AllowsBeforeStart(t *testing.T) {
	g := NewGuard(DefaultConfig())
	ok, reason := g.CanTrade(1)
	assert.True(t, ok)
	assert.Contains(t, reason, "not initialized")
}

func TestGuard_DailyLossLimit(t *testing.T) {
	g := NewGuard(DefaultConfig())
	g.StartDay(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), 10000)

	ok, _ := g.CanTrade(9600)
	assert.True(t, ok)

	ok, reason := g.CanTrade(9500)
	assert.False(t, ok)
	assert.Contains(t, reason, "daily loss")
}

func TestGuard_DrawdownLimit(t *testing.T) {
	g := NewGuard(DefaultConfig())
	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	g.StartDay(d, 10000)
	g.StartDay(d.AddDate(0, 0, 1), 9600)
	g.StartDay(d.AddDate(0, 0, 2), 9200)

	ok, reason := g.CanTrade(9000)
	assert.False(t, ok)
	assert.Contains(t, reason, "drawdown")
	assert.Equal(t, 10000.0, g.State().HighWaterMark)
}

func TestGuard_StartDayOncePerDay(t *testing.T) {
	g := NewGuard(DefaultConfig())
	d := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	assert.True(t, g.StartDay(d, 10000))
	assert.False(t, g.StartDay(d.Add(3*time.Hour), 12000))

	s := g.State()
	assert.Equal(t, 10000.0, s.DailyStartBalance)
	assert.Equal(t, 10000.0, s.HighWaterMark)
	assert.True(t, s.Started())
}

func TestGuard_HighWaterMarkNonDecreasing(t *testing.T) {
	g := NewGuard(DefaultConfig())
	rng := rand.New(rand.NewSource(3))
	d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	prev := 0.0
	for i := 0; i < 250; i++ {
		g.StartDay(d.AddDate(0, 0, i), 5000+rng.Float64()*10000)
		hwm := g.State().HighWaterMark
		require.GreaterOrEqual(t, hwm, prev)
		prev = hwm
	}
}

func TestGuard_ValidateStock(t *testing.T) {
	g := NewGuard(DefaultConfig())

	ok, _ := g.ValidateStock(50, nil)
	assert.True(t, ok)

	ok, reason := g.ValidateStock(4.99, nil)
	assert.False(t, ok)
	assert.Contains(t, reason, "below minimum")

	ok, reason = g.ValidateStock(500.01, nil)
	assert.False(t, ok)
	assert.Contains(t, reason, "above maximum")

	low := 999_999.0
	ok, reason = g.ValidateStock(50, &low)
	assert.False(t, ok)
	assert.Contains(t, reason, "volume")

	high := 2_000_000.0
	ok, _ = g.ValidateStock(50, &high)
	assert.True(t, ok)
}

func TestGuard_Summary(t *testing.T) {
	g := NewGuard(DefaultConfig())
	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	g.StartDay(d, 10000)
	g.StartDay(d.AddDate(0, 0, 1), 9800)

	s := g.Summary(9702)
	assert.InDelta(t, -98, s.DailyPnL, 1e-9)
	assert.InDelta(t, -1.0, s.DailyPnLPct, 1e-9)
	assert.InDelta(t, 4.0, s.DailyLimitRemaining, 1e-9)
	assert.InDelta(t, 2.98, s.CurrentDrawdownPct, 1e-9)
	assert.InDelta(t, 7.02, s.DrawdownLimitRemaining, 1e-9)
	assert.True(t, s.CanTrade)
	assert.Equal(t, 85.0, s.MaxPositionPct)
}

func TestGuard_Restore(t *testing.T) {
	g := NewGuard(DefaultConfig())
	g.Restore(State{Day: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), DailyStartBalance: 100, HighWaterMark: 120})
	ok, _ := g.CanTrade(107)
	assert.False(t, ok)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cases := []func(c *Config){
		func(c *Config) { c.MaxPositionPct = 0 },
		func(c *Config) { c.MaxDailyLossPct = 101 },
		func(c *Config) { c.MaxDrawdownPct = -1 },
		func(c *Config) { c.MinStockPrice = 0 },
		func(c *Config) { c.MaxStockPrice = c.MinStockPrice },
		func(c *Config) { c.MinDailyVolume = 0 },
		func(c *Config) { c.BuyingPowerUsage = 1.5 },
	}
	for i, mutate := range cases {
		c := DefaultConfig()
		mutate(&c)
		err := c.Validate()
		assert.Error(t, err, "case %d", i)
		assert.True(t, errors.Is(err, ErrInvalidConfig), "case %d", i)
	}
}
