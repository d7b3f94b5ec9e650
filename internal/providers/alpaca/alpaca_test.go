package alpaca

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/earnrun/internal/net/guard"
	"github.com/sawpanic/earnrun/internal/ports"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	g := guard.New(guard.Config{Name: "alpaca-test", Timeout: 5 * time.Second})
	return New(Config{APIKey: "key", SecretKey: "secret", BaseURL: srv.URL, DataURL: srv.URL}, g)
}

func TestDailyBarsFollowsPageTokens(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/stocks/AAPL/bars", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "iex", r.URL.Query().Get("feed"))
		assert.Equal(t, "1Day", r.URL.Query().Get("timeframe"))
		if r.URL.Query().Get("page_token") == "" {
			w.Write([]byte(`{"bars":[{"t":"2024-10-07T04:00:00Z","o":1,"h":2,"l":0.5,"c":1.5,"v":100}],"next_page_token":"p2"}`))
			return
		}
		assert.Equal(t, "p2", r.URL.Query().Get("page_token"))
		w.Write([]byte(`{"bars":[{"t":"2024-10-08T04:00:00Z","o":1.5,"h":3,"l":1,"c":2.5,"v":200}],"next_page_token":null}`))
	})
	c := newTestClient(t, mux)

	s, err := c.DailyBars(context.Background(), "AAPL", time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 10, 9, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	assert.Equal(t, "AAPL", s.Ticker())
	assert.Equal(t, 2.5, s.Last().Close)
	assert.Equal(t, time.Date(2024, 10, 8, 0, 0, 0, 0, time.UTC), s.Last().Date)
}

func TestDailyBarsEmptyIsError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bars":[],"next_page_token":null}`))
	}))
	_, err := c.DailyBars(context.Background(), "ZZZ", time.Now().AddDate(0, 0, -5), time.Now())
	assert.Error(t, err)
}

func TestAccountParsesStringNumbers(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/account", r.URL.Path)
		w.Write([]byte(`{"equity":"10250.50","cash":"5000","buying_power":"20000"}`))
	}))
	acct, err := c.Account(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ports.AccountState{Equity: 10250.50, Cash: 5000, BuyingPower: 20000}, acct)
}

func TestSubmitBracketSendsOrderClass(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "bracket", body["order_class"])
		assert.Equal(t, "12", body["qty"])
		assert.Equal(t, "108.00", body["take_profit"].(map[string]interface{})["limit_price"])
		assert.Equal(t, "92.00", body["stop_loss"].(map[string]interface{})["stop_price"])
		w.Write([]byte(`{"id":"ord-1","symbol":"AAPL","status":"accepted","submitted_at":"2024-10-08T13:30:00Z"}`))
	}))
	order, err := c.SubmitBracket(context.Background(), ports.BracketOrder{Ticker: "AAPL", Qty: 12, TakeProfitPrice: 108, StopLossPrice: 92})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", order.ID)
	assert.Equal(t, "accepted", order.Status)
}

func TestSubmitBracketRejectsZeroQty(t *testing.T) {
	c := New(Config{}, nil)
	_, err := c.SubmitBracket(context.Background(), ports.BracketOrder{Ticker: "AAPL"})
	assert.Error(t, err)
}

func TestPositionsAndClock(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/positions", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol":"AAPL","qty":"10","avg_entry_price":"100","current_price":"104","market_value":"1040","unrealized_pl":"40","unrealized_plpc":"0.04"}]`))
	})
	mux.HandleFunc("/v2/clock", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"is_open":true}`))
	})
	c := newTestClient(t, mux)

	pos, err := c.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.Equal(t, 40.0, pos[0].UnrealizedPL)
	assert.Equal(t, 0.04, pos[0].UnrealizedPLPct)

	open, err := c.MarketOpen(context.Background())
	require.NoError(t, err)
	assert.True(t, open)
}

func TestTradableSymbols(t *testing.T) {
	got := TradableSymbols([]Asset{
		{Symbol: "MSFT", Exchange: "NASDAQ", Status: "active", Tradable: true, Shortable: true},
		{Symbol: "AAPL", Exchange: "NASDAQ", Status: "active", Tradable: true, Shortable: true},
		{Symbol: "OTC1", Exchange: "OTC", Status: "active", Tradable: true, Shortable: true},
		{Symbol: "NOSH", Exchange: "NYSE", Status: "active", Tradable: true, Shortable: false},
		{Symbol: "SPY", Exchange: "ARCA", Status: "active", Tradable: true, Shortable: true},
	})
	assert.Equal(t, []string{"AAPL", "MSFT", "SPY"}, got)
}

func TestConfigured(t *testing.T) {
	assert.False(t, Config{APIKey: "your_alpaca_api_key_here", SecretKey: "x"}.Configured())
	assert.True(t, Config{APIKey: "k", SecretKey: "s"}.Configured())
}
