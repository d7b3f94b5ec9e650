package backtest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
)

// Writer handles writing backtest artifacts to disk
type Writer struct {
	outputDir string
}

// ArtifactPaths lists the files a run produces
type ArtifactPaths struct {
	SummaryJSON string
	TradesCSV   string
	EquityCSV   string
	ReportTXT   string
}

// NewWriter creates a writer that places artifacts in outputDir/<runID>
func NewWriter(outputDir, runID string) *Writer {
	return &Writer{outputDir: filepath.Join(outputDir, runID)}
}

// OutputDir returns the full output directory path
func (w *Writer) OutputDir() string {
	return w.outputDir
}

// Paths returns the artifact locations
func (w *Writer) Paths() ArtifactPaths {
	return ArtifactPaths{
		SummaryJSON: filepath.Join(w.outputDir, "summary.json"),
		TradesCSV:   filepath.Join(w.outputDir, "trades.csv"),
		EquityCSV:   filepath.Join(w.outputDir, "equity.csv"),
		ReportTXT:   filepath.Join(w.outputDir, "report.txt"),
	}
}

type tradeRow struct {
	Ticker          string  `csv:"ticker"`
	AnalysisDate    string  `csv:"analysis_date"`
	EntryDate       string  `csv:"entry_date"`
	EntryPrice      float64 `csv:"entry_price"`
	ExitDate        string  `csv:"exit_date"`
	ExitPrice       float64 `csv:"exit_price"`
	ExitReason      string  `csv:"exit_reason"`
	DaysHeld        int     `csv:"days_held"`
	TakeProfitPrice float64 `csv:"take_profit_price"`
	StopLossPrice   float64 `csv:"stop_loss_price"`
	Shares          float64 `csv:"shares"`
	PositionSize    float64 `csv:"position_size"`
	PnL             float64 `csv:"pnl"`
	PnLPct          float64 `csv:"pnl_pct"`
	TradePnL        float64 `csv:"trade_pnl"`
	CapitalBefore   float64 `csv:"capital_before"`
	CapitalAfter    float64 `csv:"capital_after"`
	FinalScore      float64 `csv:"final_score"`
	Frequency       float64 `csv:"frequency"`
}

type equityRow struct {
	Date    string  `csv:"date"`
	Capital float64 `csv:"capital"`
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

// WriteAll writes the JSON summary, CSV trades and equity, and the text report
func (w *Writer) WriteAll(s *Summary) error {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := w.WriteSummary(s); err != nil {
		return err
	}
	if err := w.WriteTradesCSV(s.Trades); err != nil {
		return err
	}
	if err := w.WriteEquityCSV(s.Equity); err != nil {
		return err
	}
	return w.WriteReport(s)
}

// WriteSummary writes the full summary as indented JSON
func (w *Writer) WriteSummary(s *Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := os.WriteFile(w.Paths().SummaryJSON, data, 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

// WriteTradesCSV writes one row per trade
func (w *Writer) WriteTradesCSV(trades []TradeResult) error {
	rows := make([]*tradeRow, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, &tradeRow{
			Ticker:          t.Ticker,
			AnalysisDate:    formatDate(t.AnalysisDate),
			EntryDate:       formatDate(t.EntryDate),
			EntryPrice:      t.EntryPrice,
			ExitDate:        formatDate(t.ExitDate),
			ExitPrice:       t.ExitPrice,
			ExitReason:      t.ExitReason.String(),
			DaysHeld:        t.DaysHeld,
			TakeProfitPrice: t.TakeProfitPrice,
			StopLossPrice:   t.StopLossPrice,
			Shares:          t.Shares,
			PositionSize:    t.PositionSize,
			PnL:             t.PnL,
			PnLPct:          t.PnLPct,
			TradePnL:        t.TradePnL,
			CapitalBefore:   t.CapitalBefore,
			CapitalAfter:    t.CapitalAfter,
			FinalScore:      t.FinalScore,
			Frequency:       t.Frequency,
		})
	}
	return writeCSV(w.Paths().TradesCSV, &rows)
}

// WriteEquityCSV writes the capital ledger
func (w *Writer) WriteEquityCSV(points []EquityPoint) error {
	rows := make([]*equityRow, 0, len(points))
	for _, p := range points {
		rows = append(rows, &equityRow{Date: formatDate(p.Date), Capital: p.Capital})
	}
	return writeCSV(w.Paths().EquityCSV, &rows)
}

func writeCSV(path string, rows interface{}) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	defer file.Close()

	if err := gocsv.MarshalFile(rows, file); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// WriteReport writes the human-readable report
func (w *Writer) WriteReport(s *Summary) error {
	if err := os.WriteFile(w.Paths().ReportTXT, []byte(Report(s)), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// Report renders the summary as plain text
func Report(s *Summary) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("%s BACKTEST RESULTS\n", strings.ToUpper(s.Kind)))
	b.WriteString(fmt.Sprintf("Run:     %s\n", s.RunID))
	if !s.StartDate.IsZero() {
		b.WriteString(fmt.Sprintf("Period:  %s to %s\n", formatDate(s.StartDate), formatDate(s.EndDate)))
	}
	b.WriteString("\n")

	if s.NumTrades == 0 {
		b.WriteString("No trades executed\n")
		b.WriteString(fmt.Sprintf("Initial capital: $%.2f\nFinal capital:   $%.2f\n", s.InitialCapital, s.FinalCapital))
		return b.String()
	}

	b.WriteString("CAPITAL\n")
	b.WriteString(fmt.Sprintf("  Initial:        $%12.2f\n", s.InitialCapital))
	b.WriteString(fmt.Sprintf("  Final:          $%12.2f\n", s.FinalCapital))
	b.WriteString(fmt.Sprintf("  Total P&L:      $%+12.2f  (%+.2f%%)\n\n", s.TotalPnL, s.TotalPnLPct))

	b.WriteString("TRADES\n")
	b.WriteString(fmt.Sprintf("  Total:          %12d\n", s.NumTrades))
	b.WriteString(fmt.Sprintf("  Wins:           %12d\n", s.NumWins))
	b.WriteString(fmt.Sprintf("  Losses:         %12d\n", s.NumLosses))
	b.WriteString(fmt.Sprintf("  Win Rate:       %11.1f%%\n\n", s.WinRate))

	b.WriteString("PERFORMANCE\n")
	b.WriteString(fmt.Sprintf("  Avg Win:        $%12.2f\n", s.AvgWin))
	b.WriteString(fmt.Sprintf("  Avg Loss:       $%12.2f\n", s.AvgLoss))
	b.WriteString(fmt.Sprintf("  Profit Factor:  %12.2f  (avg win / avg loss)\n", s.ProfitFactor))
	b.WriteString(fmt.Sprintf("  Max Drawdown:   %11.2f%%\n\n", s.MaxDrawdownPct))

	b.WriteString("TRADE DETAILS\n")
	for i, t := range s.Trades {
		status := "LOSS"
		if t.TradePnL > 0 {
			status = "WIN"
		}
		b.WriteString(fmt.Sprintf("%d. %-5s %s\n", i+1, t.Ticker, status))
		if !t.AnalysisDate.IsZero() {
			b.WriteString(fmt.Sprintf("   Analysis: %s\n", formatDate(t.AnalysisDate)))
		}
		b.WriteString(fmt.Sprintf("   Entry:    %s @ $%.2f\n", formatDate(t.EntryDate), t.EntryPrice))
		b.WriteString(fmt.Sprintf("   Exit:     %s @ $%.2f\n", formatDate(t.ExitDate), t.ExitPrice))
		b.WriteString(fmt.Sprintf("   Reason:   %s\n", t.ExitReason))
		b.WriteString(fmt.Sprintf("   P&L:      $%+.2f (%+.2f%%)\n", t.TradePnL, t.PnLPct))
		b.WriteString(fmt.Sprintf("   Capital:  $%.2f -> $%.2f\n", t.CapitalBefore, t.CapitalAfter))
		if t.FinalScore != 0 {
			b.WriteString(fmt.Sprintf("   Scores:   Price=%.4f, Fund=%.4f\n", t.PriceScore, t.FundamentalScore))
			b.WriteString(fmt.Sprintf("   Metrics:  EPS Beat=%.0f%%, EPS Surprise=%+.1f%%, Analyst=%.2f\n",
				t.EPSBeatRate*100, t.AvgEPSSurprise, t.AnalystScore))
		}
	}
	return b.String()
}
