package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/earnrun/internal/domain/bars"
	"github.com/sawpanic/earnrun/internal/domain/fundamentals"
	"github.com/sawpanic/earnrun/internal/ports"
)

// Prices caches daily bars by ticker and date range. Cache failures fall
// through to the wrapped source.
type Prices struct {
	inner ports.PriceSource
	cache Cache
	ttl   time.Duration
}

var _ ports.PriceSource = (*Prices)(nil)

// NewPrices wraps a price source
func NewPrices(inner ports.PriceSource, cache Cache, ttl time.Duration) *Prices {
	return &Prices{inner: inner, cache: cache, ttl: ttl}
}

func barsKey(ticker string, start, end time.Time) string {
	return fmt.Sprintf("bars:%s:%s:%s", ticker, bars.Day(start).Format("20060102"), bars.Day(end).Format("20060102"))
}

// DailyBars implements ports.PriceSource
func (p *Prices) DailyBars(ctx context.Context, ticker string, start, end time.Time) (*bars.Series, error) {
	key := barsKey(ticker, start, end)
	if data, ok, err := p.cache.Get(ctx, key); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Cache read failed")
	} else if ok {
		var cached []bars.Bar
		if err := json.Unmarshal(data, &cached); err == nil {
			if s, err := bars.NewSeries(ticker, cached); err == nil {
				return s, nil
			}
		}
		log.Debug().Str("key", key).Msg("Discarding unreadable cache entry")
	}

	s, err := p.inner.DailyBars(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(s.Bars()); err == nil {
		if err := p.cache.Set(ctx, key, data, p.ttl); err != nil {
			log.Debug().Err(err).Str("key", key).Msg("Cache write failed")
		}
	}
	return s, nil
}

// Fundamentals caches fundamental snapshots by ticker. Errors from the
// wrapped source are not cached.
type Fundamentals struct {
	inner fundamentals.Source
	cache Cache
	ttl   time.Duration
}

var _ fundamentals.Source = (*Fundamentals)(nil)

// NewFundamentals wraps a fundamentals source
func NewFundamentals(inner fundamentals.Source, cache Cache, ttl time.Duration) *Fundamentals {
	return &Fundamentals{inner: inner, cache: cache, ttl: ttl}
}

// Snapshot implements fundamentals.Source
func (f *Fundamentals) Snapshot(ctx context.Context, ticker string) (fundamentals.Snapshot, error) {
	key := "fund:" + ticker
	if data, ok, err := f.cache.Get(ctx, key); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Cache read failed")
	} else if ok {
		var snap fundamentals.Snapshot
		if err := json.Unmarshal(data, &snap); err == nil {
			return snap, nil
		}
	}

	snap, err := f.inner.Snapshot(ctx, ticker)
	if err != nil {
		return snap, err
	}
	if data, err := json.Marshal(snap); err == nil {
		if err := f.cache.Set(ctx, key, data, f.ttl); err != nil {
			log.Debug().Err(err).Str("key", key).Msg("Cache write failed")
		}
	}
	return snap, nil
}
