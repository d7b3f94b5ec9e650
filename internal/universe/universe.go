// Package universe holds the whitelist of stocks the engine may trade.
package universe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Universe is an immutable set of tradable symbols
type Universe struct {
	symbols map[string]struct{}
}

// New builds a universe from symbols; blanks are ignored and case is folded
func New(symbols []string) *Universe {
	u := &Universe{symbols: make(map[string]struct{}, len(symbols))}
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			u.symbols[s] = struct{}{}
		}
	}
	return u
}

// Load reads one symbol per line, skipping blank lines and # comments. A
// missing file yields an empty universe, which admits nothing.
func Load(path string) (*Universe, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn().Str("file", path).Msg("Stock file not found, universe is empty; run 'earnrun universe sync'")
			return New(nil), nil
		}
		return nil, fmt.Errorf("failed to open stock file %s: %w", path, err)
	}
	defer f.Close()

	u, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read stock file %s: %w", path, err)
	}
	log.Info().Int("symbols", u.Len()).Str("file", path).Msg("Loaded tradable stocks")
	return u, nil
}

// Read parses the stock-file format from r
func Read(r io.Reader) (*Universe, error) {
	var symbols []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		symbols = append(symbols, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return New(symbols), nil
}

// Len returns the number of symbols
func (u *Universe) Len() int { return len(u.symbols) }

// Contains reports whether the symbol is tradable
func (u *Universe) Contains(symbol string) bool {
	_, ok := u.symbols[strings.ToUpper(symbol)]
	return ok
}

// Symbols returns the symbols sorted
func (u *Universe) Symbols() []string {
	out := make([]string, 0, len(u.symbols))
	for s := range u.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Filter keeps the tickers in the universe, preserving input order
func (u *Universe) Filter(tickers []string) []string {
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if u.Contains(t) {
			out = append(out, t)
		}
	}
	log.Debug().Int("input", len(tickers)).Int("tradable", len(out)).Msg("Filtered tickers to universe")
	return out
}

// Cap truncates tickers to at most max, preserving order
func Cap(tickers []string, max int) []string {
	if max <= 0 || len(tickers) <= max {
		return tickers
	}
	log.Info().Int("from", len(tickers)).Int("to", max).Msg("Limiting analysis")
	return tickers[:max]
}

// Write saves symbols in the stock-file format with a generated header
func Write(w io.Writer, symbols []string, generated time.Time) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# Tradable stocks from Alpaca\n")
	fmt.Fprintf(bw, "# Total: %d stocks\n", len(symbols))
	fmt.Fprintf(bw, "# Generated %s by earnrun universe sync\n", generated.UTC().Format(time.RFC3339))
	fmt.Fprintf(bw, "#\n")
	for _, s := range symbols {
		fmt.Fprintln(bw, s)
	}
	return bw.Flush()
}

// AssetLister returns tradable symbols from the broker
type AssetLister interface {
	ListTradable(ctx context.Context) ([]string, error)
}

// Sync fetches the broker's tradable symbols and atomically replaces path
func Sync(ctx context.Context, lister AssetLister, path string, now time.Time) (int, error) {
	symbols, err := lister.ListTradable(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list tradable assets: %w", err)
	}
	if len(symbols) == 0 {
		return 0, errors.New("broker returned no tradable assets; keeping existing stock file")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".stocks-*.txt")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, symbols, now); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to write stock file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close stock file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("failed to replace %s: %w", path, err)
	}

	log.Info().Int("symbols", len(symbols)).Str("file", path).Msg("Universe synced")
	return len(symbols), nil
}
