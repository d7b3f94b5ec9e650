package risk

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by Config.Validate failures
var ErrInvalidConfig = errors.New("invalid risk configuration")

// Config holds risk limits. Percent fields are whole percentages (85 = 85%).
type Config struct {
	MaxPositionPct   float64 `yaml:"max_position_size_percent" json:"max_position_size_percent"`
	MaxDailyLossPct  float64 `yaml:"max_daily_loss_percent" json:"max_daily_loss_percent"`
	MaxDrawdownPct   float64 `yaml:"max_drawdown_percent" json:"max_drawdown_percent"`
	MinStockPrice    float64 `yaml:"min_stock_price" json:"min_stock_price"`
	MaxStockPrice    float64 `yaml:"max_stock_price" json:"max_stock_price"`
	MinDailyVolume   float64 `yaml:"min_daily_volume" json:"min_daily_volume"`
	BuyingPowerUsage float64 `yaml:"buying_power_usage" json:"buying_power_usage"`
}

// DefaultConfig returns production risk limits
func DefaultConfig() Config {
	return Config{
		MaxPositionPct:   85.0,
		MaxDailyLossPct:  5.0,
		MaxDrawdownPct:   10.0,
		MinStockPrice:    5.0,
		MaxStockPrice:    500.0,
		MinDailyVolume:   1_000_000,
		BuyingPowerUsage: 0.98,
	}
}

// Validate checks limits are in range
func (c Config) Validate() error {
	pct := map[string]float64{
		"max_position_size_percent": c.MaxPositionPct,
		"max_daily_loss_percent":    c.MaxDailyLossPct,
		"max_drawdown_percent":      c.MaxDrawdownPct,
	}
	for name, v := range pct {
		if v <= 0 || v > 100 {
			return fmt.Errorf("%w: %s must be in (0, 100], got %v", ErrInvalidConfig, name, v)
		}
	}
	if c.MinStockPrice <= 0 {
		return fmt.Errorf("%w: min_stock_price must be positive", ErrInvalidConfig)
	}
	if c.MaxStockPrice <= c.MinStockPrice {
		return fmt.Errorf("%w: max_stock_price must exceed min_stock_price", ErrInvalidConfig)
	}
	if c.MinDailyVolume <= 0 {
		return fmt.Errorf("%w: min_daily_volume must be positive", ErrInvalidConfig)
	}
	if c.BuyingPowerUsage <= 0 || c.BuyingPowerUsage > 1 {
		return fmt.Errorf("%w: buying_power_usage must be in (0, 1]", ErrInvalidConfig)
	}
	return nil
}
