// Package alpaca talks to the Alpaca trading and market-data REST APIs.
package alpaca

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/earnrun/internal/domain/bars"
	"github.com/sawpanic/earnrun/internal/net/guard"
	"github.com/sawpanic/earnrun/internal/ports"
)

// Default endpoints
const (
	PaperTradingURL = "https://paper-api.alpaca.markets"
	DataURL         = "https://data.alpaca.markets"
)

// Config represents Alpaca credentials and endpoints
type Config struct {
	APIKey     string       `yaml:"api_key"`
	SecretKey  string       `yaml:"secret_key"`
	BaseURL    string       `yaml:"base_url"`
	DataURL    string       `yaml:"data_url"`
	Feed       string       `yaml:"feed"`
	PageLimit  int          `yaml:"page_limit"`
	HTTPClient *http.Client `yaml:"-"`
}

// Configured reports whether usable credentials are present
func (c Config) Configured() bool {
	return c.APIKey != "" && c.APIKey != "your_alpaca_api_key_here" &&
		c.SecretKey != "" && c.SecretKey != "your_alpaca_secret_key_here"
}

// Client implements ports.PriceSource, ports.QuoteSource and ports.Broker
type Client struct {
	config Config
	http   *guard.Client
}

var (
	_ ports.PriceSource = (*Client)(nil)
	_ ports.QuoteSource = (*Client)(nil)
	_ ports.Broker      = (*Client)(nil)
)

// New creates an Alpaca client guarded by g
func New(config Config, g *guard.Guard) *Client {
	if config.BaseURL == "" {
		config.BaseURL = PaperTradingURL
	}
	if config.DataURL == "" {
		config.DataURL = DataURL
	}
	if config.Feed == "" {
		config.Feed = "iex"
	}
	if config.PageLimit <= 0 {
		config.PageLimit = 10000
	}
	if g == nil {
		g = guard.New(guard.Config{Name: "alpaca", RequestsPerMinute: 200, Burst: 10, Timeout: 30 * time.Second, MaxRetries: 2, BackoffBase: time.Second})
	}
	header := http.Header{}
	header.Set("APCA-API-KEY-ID", config.APIKey)
	header.Set("APCA-API-SECRET-KEY", config.SecretKey)
	return &Client{
		config: config,
		http:   guard.NewClient(g, config.HTTPClient, header),
	}
}

type barJSON struct {
	T time.Time `json:"t"`
	O float64   `json:"o"`
	H float64   `json:"h"`
	L float64   `json:"l"`
	C float64   `json:"c"`
	V float64   `json:"v"`
}

type barsResponse struct {
	Bars          []barJSON `json:"bars"`
	NextPageToken *string   `json:"next_page_token"`
}

// DailyBars fetches daily bars for [start, end], following page tokens
func (c *Client) DailyBars(ctx context.Context, ticker string, start, end time.Time) (*bars.Series, error) {
	q := url.Values{}
	q.Set("timeframe", "1Day")
	q.Set("start", bars.Day(start).Format(time.RFC3339))
	q.Set("end", bars.Day(end).Add(24*time.Hour-time.Second).Format(time.RFC3339))
	q.Set("limit", strconv.Itoa(c.config.PageLimit))
	q.Set("adjustment", "raw")
	q.Set("feed", c.config.Feed)

	var out []bars.Bar
	for page := 0; ; page++ {
		var resp barsResponse
		endpoint := fmt.Sprintf("%s/v2/stocks/%s/bars?%s", c.config.DataURL, url.PathEscape(ticker), q.Encode())
		if err := c.http.GetJSON(ctx, endpoint, &resp); err != nil {
			return nil, fmt.Errorf("alpaca bars %s: %w", ticker, err)
		}
		for _, b := range resp.Bars {
			out = append(out, bars.Bar{Date: b.T, Open: b.O, High: b.H, Low: b.L, Close: b.C, Volume: b.V})
		}
		if resp.NextPageToken == nil || *resp.NextPageToken == "" {
			break
		}
		q.Set("page_token", *resp.NextPageToken)
	}

	log.Debug().Str("ticker", ticker).Int("bars", len(out)).Msg("Fetched Alpaca bars")
	bars.SortByDate(out)
	return bars.NewSeries(ticker, out)
}

// LatestPrice returns the last trade price
func (c *Client) LatestPrice(ctx context.Context, ticker string) (float64, error) {
	var resp struct {
		Trade struct {
			P float64 `json:"p"`
		} `json:"trade"`
	}
	endpoint := fmt.Sprintf("%s/v2/stocks/%s/trades/latest?feed=%s", c.config.DataURL, url.PathEscape(ticker), c.config.Feed)
	if err := c.http.GetJSON(ctx, endpoint, &resp); err != nil {
		return 0, fmt.Errorf("alpaca latest trade %s: %w", ticker, err)
	}
	if resp.Trade.P <= 0 {
		return 0, fmt.Errorf("alpaca latest trade %s: no price", ticker)
	}
	return resp.Trade.P, nil
}

// Account returns equity, cash and buying power
func (c *Client) Account(ctx context.Context) (ports.AccountState, error) {
	var resp struct {
		Equity      string `json:"equity"`
		Cash        string `json:"cash"`
		BuyingPower string `json:"buying_power"`
	}
	if err := c.http.GetJSON(ctx, c.config.BaseURL+"/v2/account", &resp); err != nil {
		return ports.AccountState{}, fmt.Errorf("alpaca account: %w", err)
	}
	return ports.AccountState{
		Equity:      parseFloat(resp.Equity),
		Cash:        parseFloat(resp.Cash),
		BuyingPower: parseFloat(resp.BuyingPower),
	}, nil
}

type orderRequest struct {
	Symbol      string     `json:"symbol"`
	Qty         string     `json:"qty"`
	Side        string     `json:"side"`
	Type        string     `json:"type"`
	TimeInForce string     `json:"time_in_force"`
	OrderClass  string     `json:"order_class"`
	TakeProfit  takeProfit `json:"take_profit"`
	StopLoss    stopLoss   `json:"stop_loss"`
}

type takeProfit struct {
	LimitPrice string `json:"limit_price"`
}

type stopLoss struct {
	StopPrice string `json:"stop_price"`
}

// SubmitBracket places a market buy with take-profit and stop-loss legs
func (c *Client) SubmitBracket(ctx context.Context, order ports.BracketOrder) (*ports.Order, error) {
	if order.Qty <= 0 {
		return nil, fmt.Errorf("alpaca order %s: qty must be positive", order.Ticker)
	}
	req := orderRequest{
		Symbol:      order.Ticker,
		Qty:         strconv.FormatFloat(order.Qty, 'f', -1, 64),
		Side:        "buy",
		Type:        "market",
		TimeInForce: "day",
		OrderClass:  "bracket",
		TakeProfit:  takeProfit{LimitPrice: strconv.FormatFloat(order.TakeProfitPrice, 'f', 2, 64)},
		StopLoss:    stopLoss{StopPrice: strconv.FormatFloat(order.StopLossPrice, 'f', 2, 64)},
	}

	var resp struct {
		ID          string    `json:"id"`
		Symbol      string    `json:"symbol"`
		Status      string    `json:"status"`
		SubmittedAt time.Time `json:"submitted_at"`
	}
	if err := c.http.DoJSON(ctx, http.MethodPost, c.config.BaseURL+"/v2/orders", req, &resp); err != nil {
		return nil, fmt.Errorf("alpaca submit order %s: %w", order.Ticker, err)
	}

	log.Info().Str("ticker", order.Ticker).Str("order_id", resp.ID).Str("status", resp.Status).Msg("Bracket order submitted")
	return &ports.Order{ID: resp.ID, Ticker: resp.Symbol, Status: resp.Status, SubmittedAt: resp.SubmittedAt}, nil
}

type positionJSON struct {
	Symbol         string `json:"symbol"`
	Qty            string `json:"qty"`
	AvgEntryPrice  string `json:"avg_entry_price"`
	CurrentPrice   string `json:"current_price"`
	MarketValue    string `json:"market_value"`
	UnrealizedPL   string `json:"unrealized_pl"`
	UnrealizedPLPC string `json:"unrealized_plpc"`
}

// Positions lists open positions
func (c *Client) Positions(ctx context.Context) ([]ports.Position, error) {
	var resp []positionJSON
	if err := c.http.GetJSON(ctx, c.config.BaseURL+"/v2/positions", &resp); err != nil {
		return nil, fmt.Errorf("alpaca positions: %w", err)
	}
	out := make([]ports.Position, 0, len(resp))
	for _, p := range resp {
		out = append(out, ports.Position{
			Ticker:          p.Symbol,
			Qty:             parseFloat(p.Qty),
			AvgEntryPrice:   parseFloat(p.AvgEntryPrice),
			CurrentPrice:    parseFloat(p.CurrentPrice),
			MarketValue:     parseFloat(p.MarketValue),
			UnrealizedPL:    parseFloat(p.UnrealizedPL),
			UnrealizedPLPct: parseFloat(p.UnrealizedPLPC),
		})
	}
	return out, nil
}

// ClosePosition liquidates a position at market
func (c *Client) ClosePosition(ctx context.Context, ticker string) error {
	endpoint := fmt.Sprintf("%s/v2/positions/%s", c.config.BaseURL, url.PathEscape(ticker))
	if err := c.http.DoJSON(ctx, http.MethodDelete, endpoint, nil, nil); err != nil {
		return fmt.Errorf("alpaca close position %s: %w", ticker, err)
	}
	return nil
}

// MarketOpen reports whether the market is currently open
func (c *Client) MarketOpen(ctx context.Context) (bool, error) {
	var resp struct {
		IsOpen bool `json:"is_open"`
	}
	if err := c.http.GetJSON(ctx, c.config.BaseURL+"/v2/clock", &resp); err != nil {
		return false, fmt.Errorf("alpaca clock: %w", err)
	}
	return resp.IsOpen, nil
}

// Asset is a tradable instrument
type Asset struct {
	Symbol    string `json:"symbol"`
	Exchange  string `json:"exchange"`
	Status    string `json:"status"`
	Tradable  bool   `json:"tradable"`
	Shortable bool   `json:"shortable"`
}

// Exchanges accepted by TradableSymbols
var Exchanges = []string{"NASDAQ", "NYSE", "ARCA", "AMEX", "NYSEARCA"}

// Assets lists active US equities
func (c *Client) Assets(ctx context.Context) ([]Asset, error) {
	var resp []Asset
	if err := c.http.GetJSON(ctx, c.config.BaseURL+"/v2/assets?status=active&asset_class=us_equity", &resp); err != nil {
		return nil, fmt.Errorf("alpaca assets: %w", err)
	}
	return resp, nil
}

// TradableSymbols filters assets to active, tradable, shortable listings
// on the major exchanges and returns sorted symbols.
func TradableSymbols(assets []Asset) []string {
	allowed := make(map[string]bool, len(Exchanges))
	for _, e := range Exchanges {
		allowed[e] = true
	}
	var out []string
	for _, a := range assets {
		if a.Status != "active" || !a.Tradable || !a.Shortable {
			continue
		}
		if !allowed[strings.ToUpper(a.Exchange)] {
			continue
		}
		out = append(out, a.Symbol)
	}
	sort.Strings(out)
	return out
}

// ListTradable fetches assets and applies TradableSymbols
func (c *Client) ListTradable(ctx context.Context) ([]string, error) {
	assets, err := c.Assets(ctx)
	if err != nil {
		return nil, err
	}
	return TradableSymbols(assets), nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
