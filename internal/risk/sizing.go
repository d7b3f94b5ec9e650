package risk

import (
	"math"

	"github.com/rs/zerolog/log"
)

// StopPolicy turns a historical average drawdown into a stop-loss offset
type StopPolicy struct {
	Name       string
	Multiplier float64
	Floor      float64 // tightest allowed stop, e.g. -0.08
	Cap        float64 // widest allowed stop, e.g. -0.20
	Clamp      bool
	Round      bool
}

// LiveStop widens drawdown by 10% and clamps to [-20%, -8%]
func LiveStop() StopPolicy {
	return StopPolicy{Name: "live", Multiplier: 1.1, Floor: -0.08, Cap: -0.20, Clamp: true, Round: true}
}

// BacktestStop widens drawdown by 50% with no clamp
func BacktestStop() StopPolicy {
	return StopPolicy{Name: "backtest", Multiplier: 1.5}
}

// ReplayStop widens drawdown by 10% with no clamp
func ReplayStop() StopPolicy {
	return StopPolicy{Name: "replay", Multiplier: 1.1}
}

// Pct returns the stop offset for an average drawdown
func (p StopPolicy) Pct(avgDrawdown float64) float64 {
	pct := avgDrawdown * p.Multiplier
	if !p.Clamp {
		return pct
	}
	if pct > p.Floor {
		log.Debug().Float64("raw_pct", pct).Float64("floor", p.Floor).Msg("Stop tighter than floor, widening")
		pct = p.Floor
	}
	if pct < p.Cap {
		log.Debug().Float64("raw_pct", pct).Float64("cap", p.Cap).Msg("Stop wider than cap, narrowing")
		pct = p.Cap
	}
	return pct
}

// Price returns the stop-loss price for an entry
func (p StopPolicy) Price(entry, avgDrawdown float64) float64 {
	price := entry * (1 + p.Pct(avgDrawdown))
	if p.Round {
		return round(price, 2)
	}
	return price
}

// TargetPolicy turns a historical average gain into a take-profit offset
type TargetPolicy struct {
	Name     string
	Fraction float64
	Round    bool
}

// LiveTarget aims for 90% of the historical average gain
func LiveTarget() TargetPolicy {
	return TargetPolicy{Name: "live", Fraction: 0.90, Round: true}
}

// BacktestTarget aims for the full historical average gain
func BacktestTarget() TargetPolicy {
	return TargetPolicy{Name: "backtest", Fraction: 1.0}
}

// Pct returns the take-profit offset for an average gain
func (p TargetPolicy) Pct(avgGain float64) float64 {
	return avgGain * p.Fraction
}

// Price returns the take-profit price for an entry
func (p TargetPolicy) Price(entry, avgGain float64) float64 {
	price := entry * (1 + p.Pct(avgGain))
	if p.Round {
		return round(price, 2)
	}
	return price
}

// StopLossPrice is the live stop: 1.1x drawdown clamped to [-20%, -8%], rounded to cents
func StopLossPrice(entry, avgDrawdown float64) float64 {
	return LiveStop().Price(entry, avgDrawdown)
}

// TakeProfitPrice is the live target: 90% of average gain, rounded to cents
func TakeProfitPrice(entry, avgGain float64) float64 {
	return LiveTarget().Price(entry, avgGain)
}

// PositionSize returns quantity and capital used. Capital is the smaller of
// usable buying power and the max position share of the balance. Whole
// shares are used when at least one fits, otherwise fractional to 6 places.
func (c Config) PositionSize(balance, buyingPower, price float64) (qty, capital float64) {
	if price <= 0 {
		return 0, 0
	}
	usage := c.BuyingPowerUsage
	if usage <= 0 {
		usage = 0.98
	}
	available := math.Min(buyingPower*usage, balance*c.MaxPositionPct/100)
	if available <= 0 {
		log.Warn().Float64("buying_power", buyingPower).Float64("balance", balance).Msg("No available capital for trading")
		return 0, 0
	}

	qty = available / price
	if qty >= 1 {
		qty = math.Floor(qty)
	} else {
		qty = round(qty, 6)
	}
	capital = qty * price
	if capital <= 0 {
		return 0, 0
	}

	log.Info().Float64("qty", qty).Float64("price", price).Float64("capital", capital).
		Float64("pct_of_account", capital/balance*100).Msg("Position sized")
	return qty, capital
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
