package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/earnrun/internal/domain/bars"
	"github.com/sawpanic/earnrun/internal/domain/fundamentals"
)

func TestMemoryExpires(t *testing.T) {
	now := time.Date(2024, 10, 8, 0, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	v, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	now = now.Add(2 * time.Minute)
	_, ok, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestRedisGetSet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := NewRedis(db, "earnrun:")
	ctx := context.Background()

	mock.ExpectGet("earnrun:hit").SetVal("value")
	v, ok, err := r.Get(ctx, "hit")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("value"), v)

	mock.ExpectGet("earnrun:miss").RedisNil()
	v, ok, err = r.Get(ctx, "miss")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)

	mock.ExpectGet("earnrun:err").SetErr(redis.TxFailedErr)
	_, _, err = r.Get(ctx, "err")
	assert.Error(t, err)

	mock.ExpectSet("earnrun:k", []byte("v"), time.Minute).SetVal("OK")
	require.NoError(t, r.Set(ctx, "k", []byte("v"), time.Minute))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithoutAddrIsMemory(t *testing.T) {
	c := New(context.Background(), DefaultConfig())
	_, ok := c.(*Memory)
	assert.True(t, ok)
}

type countingPrices struct {
	calls  int
	series *bars.Series
}

func (c *countingPrices) DailyBars(context.Context, string, time.Time, time.Time) (*bars.Series, error) {
	c.calls++
	return c.series, nil
}

func TestPricesServesFromCache(t *testing.T) {
	d := time.Date(2024, 10, 8, 0, 0, 0, 0, time.UTC)
	s, err := bars.NewSeries("PEP", []bars.Bar{{Date: d, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10}})
	require.NoError(t, err)
	inner := &countingPrices{series: s}
	p := NewPrices(inner, NewMemory(), time.Hour)

	for i := 0; i < 3; i++ {
		got, err := p.DailyBars(context.Background(), "PEP", d, d)
		require.NoError(t, err)
		assert.Equal(t, s.Bars(), got.Bars())
	}
	assert.Equal(t, 1, inner.calls)
}

func TestPricesWritesThroughRedis(t *testing.T) {
	d := time.Date(2024, 10, 8, 0, 0, 0, 0, time.UTC)
	s, err := bars.NewSeries("PEP", []bars.Bar{{Date: d, Close: 1.5}})
	require.NoError(t, err)
	data, err := json.Marshal(s.Bars())
	require.NoError(t, err)

	db, mock := redismock.NewClientMock()
	mock.ExpectGet("x:bars:PEP:20241008:20241008").RedisNil()
	mock.ExpectSet("x:bars:PEP:20241008:20241008", data, time.Hour).SetVal("OK")

	p := NewPrices(&countingPrices{series: s}, NewRedis(db, "x:"), time.Hour)
	_, err = p.DailyBars(context.Background(), "PEP", d, d)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type failingFund struct{ calls int }

func (f *failingFund) Snapshot(context.Context, string) (fundamentals.Snapshot, error) {
	f.calls++
	return fundamentals.Snapshot{}, errors.New("down")
}

type fixedFund struct{ calls int }

func (f *fixedFund) Snapshot(context.Context, string) (fundamentals.Snapshot, error) {
	f.calls++
	return fundamentals.Snapshot{EPSBeatRate: 0.8, AnalystScore: 0.6}, nil
}

func TestFundamentalsCachesOnlySuccess(t *testing.T) {
	failing := &failingFund{}
	f := NewFundamentals(failing, NewMemory(), time.Hour)
	_, err := f.Snapshot(context.Background(), "AAPL")
	assert.Error(t, err)
	_, err = f.Snapshot(context.Background(), "AAPL")
	assert.Error(t, err)
	assert.Equal(t, 2, failing.calls)

	fixed := &fixedFund{}
	f = NewFundamentals(fixed, NewMemory(), time.Hour)
	for i := 0; i < 2; i++ {
		snap, err := f.Snapshot(context.Background(), "AAPL")
		require.NoError(t, err)
		assert.Equal(t, 0.8, snap.EPSBeatRate)
	}
	assert.Equal(t, 1, fixed.calls)
}
