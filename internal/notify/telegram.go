package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/earnrun/internal/net/guard"
)

const defaultTelegramURL = "https://api.telegram.org"

// TelegramConfig holds bot credentials
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	BaseURL  string `yaml:"base_url"`
}

// Configured reports whether usable credentials are present
func (c TelegramConfig) Configured() bool {
	return c.BotToken != "" && c.BotToken != "your_telegram_bot_token_here" &&
		c.ChatID != "" && c.ChatID != "your_telegram_chat_id_here"
}

// Telegram sends HTML-formatted messages through the Bot API
type Telegram struct {
	config TelegramConfig
	client *guard.Client
}

type sendMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NewTelegram creates a Telegram sink guarded by g
func NewTelegram(config TelegramConfig, g *guard.Guard, httpClient *http.Client) *Telegram {
	if config.BaseURL == "" {
		config.BaseURL = defaultTelegramURL
	}
	return &Telegram{
		config: config,
		client: guard.NewClient(g, httpClient, nil),
	}
}

func (t *Telegram) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(t.config.BaseURL, "/"), t.config.BotToken, method)
}

// Check verifies the bot token with getMe
func (t *Telegram) Check(ctx context.Context) error {
	var resp apiResponse
	if err := t.client.GetJSON(ctx, t.endpoint("getMe"), &resp); err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("telegram getMe rejected: %s", resp.Description)
	}
	return nil
}

// Notify implements Notifier
func (t *Telegram) Notify(ctx context.Context, e Event) error {
	return t.Send(ctx, Format(e))
}

// Send posts a raw HTML message
func (t *Telegram) Send(ctx context.Context, text string) error {
	var resp apiResponse
	body := sendMessage{ChatID: t.config.ChatID, Text: text, ParseMode: "HTML"}
	if err := t.client.DoJSON(ctx, http.MethodPost, t.endpoint("sendMessage"), body, &resp); err != nil {
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("telegram sendMessage rejected: %s", resp.Description)
	}
	log.Debug().Str("chat_id", t.config.ChatID).Msg("Telegram message sent")
	return nil
}

// Format renders an event as Telegram HTML
func Format(e Event) string {
	var b strings.Builder
	ts := e.Time.Format("2006-01-02 15:04:05")

	switch e.Kind {
	case KindStartup:
		fmt.Fprintf(&b, "<b>Trading Bot Started</b>\n\nTime: %s\nMode: %s\nStatus: Running", ts, html.EscapeString(e.Message))
	case KindAnalysisStart:
		fmt.Fprintf(&b, "<b>Daily Analysis Started</b>\n\nDate: %s\nStocks to analyze: %d", e.Time.Format("2006-01-02"), e.Count)
	case KindAnalysisComplete:
		c := e.Candidate
		fmt.Fprintf(&b, "<b>Analysis Complete</b>\n\nBest Candidate: <b>%s</b>\nScore: %.4f\nAvg Gain: %.2f%%\nSuccess Rate: %.2f%%",
			e.Ticker, c.FinalScore, c.AvgGain*100, c.Frequency*100)
	case KindTradeEntry:
		en := e.Entry
		fmt.Fprintf(&b, "<b>TRADE OPENED</b>\n\nSymbol: <b>%s</b>\nQuantity: %.4f\nEntry Price: $%.2f\nCapital Used: $%.2f\n\n",
			e.Ticker, en.Qty, en.EntryPrice, en.CapitalUsed)
		fmt.Fprintf(&b, "Take Profit: $%.2f (%+.2f%%)\nStop Loss: $%.2f (%+.2f%%)",
			en.TakeProfit, pctFrom(en.EntryPrice, en.TakeProfit), en.StopLoss, pctFrom(en.EntryPrice, en.StopLoss))
	case KindTradeExit:
		x := e.Exit
		status := "LOSS"
		if x.PnL > 0 {
			status = "WIN"
		}
		fmt.Fprintf(&b, "<b>TRADE CLOSED - %s</b>\n\nSymbol: <b>%s</b>\nExit Price: $%.2f\nP&amp;L: $%.2f (%+.2f%%)\n\nReason: %s",
			status, e.Ticker, x.ExitPrice, x.PnL, x.PnLPct, html.EscapeString(x.Reason))
	case KindPositionUpdate:
		p := e.Position
		fmt.Fprintf(&b, "<b>Position Update</b>\n\nSymbol: <b>%s</b>\nCurrent Price: $%.2f\nUnrealized P&amp;L: $%.2f (%+.2f%%)",
			e.Ticker, p.CurrentPrice, p.UnrealizedPL, p.UnrealizedPLPct*100)
	case KindDailySummary:
		s := e.Summary
		fmt.Fprintf(&b, "<b>Daily Summary</b>\n\nDate: %s\nTotal P&amp;L: $%.2f\nTrades: %d\nWin Rate: %.1f%%\nAccount Equity: $%.2f",
			s.Date, s.TotalPnL, s.NumTrades, s.WinRate, s.Equity)
	case KindRiskLimit:
		fmt.Fprintf(&b, "<b>RISK LIMIT HIT</b>\n\nType: %s\nValue: %.2f%%\n\nTrading halted for risk management.", html.EscapeString(e.Message), e.Value)
	case KindNoOpportunity:
		fmt.Fprintf(&b, "<b>No Trading Opportunities</b>\n\nReason: %s\nDate: %s", html.EscapeString(e.Message), e.Time.Format("2006-01-02"))
	case KindError:
		level := "Warning"
		if e.Critical {
			level = "CRITICAL ERROR"
		}
		fmt.Fprintf(&b, "<b>%s</b>\n\n%s", level, html.EscapeString(e.Message))
	default:
		fmt.Fprintf(&b, "<b>%s</b>\n\n%s", html.EscapeString(string(e.Kind)), html.EscapeString(e.Message))
	}

	if e.Kind != KindAnalysisStart && e.Kind != KindNoOpportunity && e.Kind != KindDailySummary && e.Kind != KindStartup {
		fmt.Fprintf(&b, "\nTime: %s", ts)
	}
	return b.String()
}

func pctFrom(base, v float64) float64 {
	if base == 0 {
		return 0
	}
	return (v/base - 1) * 100
}
