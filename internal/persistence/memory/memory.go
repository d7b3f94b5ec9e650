// Package memory implements the persistence repositories in process. It
// backs runs without a configured database and the tests of packages that
// consume repositories.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sawpanic/earnrun/internal/domain/bars"
	"github.com/sawpanic/earnrun/internal/persistence"
)

// Store holds every table behind one mutex
type Store struct {
	mu        sync.RWMutex
	trades    []persistence.Trade
	analysis  []persistence.AnalysisResult
	snapshots []persistence.AccountSnapshot
	perf      map[time.Time]persistence.DailyPerformance
	nextID    int64
	now       func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{perf: make(map[time.Time]persistence.DailyPerformance), now: time.Now}
}

// Repository exposes the store through the persistence interfaces
func (s *Store) Repository() *persistence.Repository {
	return &persistence.Repository{
		Trades:      (*tradesRepo)(s),
		Analysis:    (*analysisRepo)(s),
		Snapshots:   (*snapshotsRepo)(s),
		Performance: (*performanceRepo)(s),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

type tradesRepo Store

func (r *tradesRepo) InsertEntry(_ context.Context, t persistence.Trade) (int64, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Side == "" {
		t.Side = "buy"
	}
	if t.Status == "" {
		t.Status = persistence.StatusOpen
	}
	t.ID = s.id()
	t.CreatedAt = s.now()
	s.trades = append(s.trades, t)
	return t.ID, nil
}

func (r *tradesRepo) RecordExit(_ context.Context, exit persistence.TradeExit) (int64, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for i := range s.trades {
		t := &s.trades[i]
		if t.Ticker != exit.Ticker || t.Status != persistence.StatusOpen {
			continue
		}
		exitTime, price, pnl, pct := exit.ExitTime, exit.ExitPrice, exit.PnL, exit.PnLPct
		t.ExitTime, t.ExitPrice, t.PnL, t.PnLPct = &exitTime, &price, &pnl, &pct
		t.Status = persistence.StatusClosed
		n++
	}
	return n, nil
}

func (r *tradesRepo) ListOpen(_ context.Context) ([]persistence.Trade, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []persistence.Trade
	for _, t := range s.trades {
		if t.Status == persistence.StatusOpen {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EntryTime.Before(out[j].EntryTime) })
	return out, nil
}

func (r *tradesRepo) ListRecent(_ context.Context, limit int) ([]persistence.Trade, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]persistence.Trade, 0, len(s.trades))
	for i := len(s.trades) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.trades[i])
	}
	return out, nil
}

func (r *tradesRepo) closed() []persistence.Trade {
	var out []persistence.Trade
	for _, t := range r.trades {
		if t.Status == persistence.StatusClosed && t.PnL != nil {
			out = append(out, t)
		}
	}
	return out
}

func (r *tradesRepo) ListClosed(_ context.Context, best bool, limit int) ([]persistence.Trade, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := r.closed()
	sort.SliceStable(out, func(i, j int) bool {
		if best {
			return *out[i].PnL > *out[j].PnL
		}
		return *out[i].PnL < *out[j].PnL
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *tradesRepo) Stats(_ context.Context, tr persistence.TimeRange) (persistence.TradeStats, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st persistence.TradeStats
	var sumPct float64
	for _, t := range r.closed() {
		if t.ExitTime == nil || t.ExitTime.Before(tr.From) || t.ExitTime.After(tr.To) {
			continue
		}
		pnl := *t.PnL
		if st.TotalTrades == 0 || pnl > st.MaxWin {
			st.MaxWin = pnl
		}
		if st.TotalTrades == 0 || pnl < st.MaxLoss {
			st.MaxLoss = pnl
		}
		st.TotalTrades++
		switch {
		case pnl > 0:
			st.WinningTrades++
		case pnl < 0:
			st.LosingTrades++
		}
		st.TotalPnL += pnl
		if t.PnLPct != nil {
			sumPct += *t.PnLPct
		}
	}
	if st.TotalTrades > 0 {
		st.AvgPnL = st.TotalPnL / float64(st.TotalTrades)
		st.AvgPnLPct = sumPct / float64(st.TotalTrades)
	}
	return st, nil
}

func (r *tradesRepo) ByTicker(_ context.Context) ([]persistence.TickerStats, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	byTicker := make(map[string]*persistence.TickerStats)
	sumPct := make(map[string]float64)
	var order []string
	for _, t := range r.closed() {
		st, ok := byTicker[t.Ticker]
		if !ok {
			st = &persistence.TickerStats{Ticker: t.Ticker}
			byTicker[t.Ticker] = st
			order = append(order, t.Ticker)
		}
		st.NumTrades++
		if *t.PnL > 0 {
			st.Wins++
		}
		st.TotalPnL += *t.PnL
		if t.PnLPct != nil {
			sumPct[t.Ticker] += *t.PnLPct
		}
	}

	out := make([]persistence.TickerStats, 0, len(order))
	for _, ticker := range order {
		st := byTicker[ticker]
		st.AvgPnL = st.TotalPnL / float64(st.NumTrades)
		st.AvgPnLPct = sumPct[ticker] / float64(st.NumTrades)
		out = append(out, *st)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalPnL > out[j].TotalPnL })
	return out, nil
}

type analysisRepo Store

func (r *analysisRepo) InsertBatch(_ context.Context, results []persistence.AnalysisResult) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range results {
		a.ID = s.id()
		a.AnalysisDate = bars.Day(a.AnalysisDate)
		a.CreatedAt = s.now()
		s.analysis = append(s.analysis, a)
	}
	return nil
}

func (r *analysisRepo) ListByDate(_ context.Context, day time.Time) ([]persistence.AnalysisResult, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	day = bars.Day(day)
	var out []persistence.AnalysisResult
	for _, a := range s.analysis {
		if a.AnalysisDate.Equal(day) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

type snapshotsRepo Store

func (r *snapshotsRepo) Insert(_ context.Context, snap persistence.AccountSnapshot) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	snap.ID = s.id()
	s.snapshots = append(s.snapshots, snap)
	return nil
}

func (r *snapshotsRepo) Latest(_ context.Context) (*persistence.AccountSnapshot, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.snapshots) == 0 {
		return nil, nil
	}
	latest := s.snapshots[0]
	for _, snap := range s.snapshots[1:] {
		if !snap.Timestamp.Before(latest.Timestamp) {
			latest = snap
		}
	}
	return &latest, nil
}

type performanceRepo Store

func (r *performanceRepo) Upsert(ctx context.Context, day time.Time, startingBalance, endingBalance float64) (*persistence.DailyPerformance, error) {
	day = bars.Day(day)
	stats, err := (*tradesRepo)(r).Stats(ctx, persistence.TimeRange{From: day, To: day.AddDate(0, 0, 1).Add(-time.Nanosecond)})
	if err != nil {
		return nil, err
	}

	perf := persistence.DailyPerformance{
		Date:            day,
		StartingBalance: startingBalance,
		EndingBalance:   endingBalance,
		PnL:             endingBalance - startingBalance,
		NumTrades:       stats.TotalTrades,
		NumWins:         stats.WinningTrades,
		NumLosses:       stats.LosingTrades,
	}
	if startingBalance > 0 {
		perf.PnLPct = perf.PnL / startingBalance * 100
	}

	s := (*Store)(r)
	s.mu.Lock()
	s.perf[day] = perf
	s.mu.Unlock()
	return &perf, nil
}

func (r *performanceRepo) Range(_ context.Context, tr persistence.TimeRange) ([]persistence.DailyPerformance, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to := bars.Day(tr.From), bars.Day(tr.To)
	var out []persistence.DailyPerformance
	for d, p := range s.perf {
		if d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}
