package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/earnrun/internal/domain/ranking"
	"github.com/sawpanic/earnrun/internal/net/guard"
)

type recorder struct {
	events []Event
	err    error
}

func (r *recorder) Notify(_ context.Context, e Event) error {
	r.events = append(r.events, e)
	return r.err
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func fixedNow(t *testing.T) {
	t.Helper()
	orig := now
	now = func() time.Time { return time.Date(2024, 10, 8, 13, 45, 0, 0, time.UTC) }
	t.Cleanup(func() { now = orig })
}

func TestEventConstructors(t *testing.T) {
	fixedNow(t)

	e := AnalysisComplete(ranking.CandidateScore{Ticker: "PEP", FinalScore: 0.41})
	assert.Equal(t, KindAnalysisComplete, e.Kind)
	assert.Equal(t, "PEP", e.Ticker)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, 2024, e.Time.Year())
	require.NotNil(t, e.Candidate)
	assert.Equal(t, 0.41, e.Candidate.FinalScore)

	other := AnalysisStart(12)
	assert.NotEqual(t, e.ID, other.ID)
	assert.Equal(t, 12, other.Count)
}

func TestFanoutContinuesPastFailures(t *testing.T) {
	bad := &recorder{err: errors.New("sink down")}
	good := &recorder{}
	f := NewFanout(bad, nil, good)
	assert.Equal(t, 2, f.Len())

	err := f.Notify(context.Background(), NoOpportunity("no earnings tomorrow"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink down")
	assert.Len(t, bad.events, 1)
	assert.Len(t, good.events, 1)
}

func TestFormatTradeEntry(t *testing.T) {
	fixedNow(t)
	msg := Format(TradeEntry("PEP", Entry{Qty: 12, EntryPrice: 100, TakeProfit: 104.5, StopLoss: 92, CapitalUsed: 1200}))

	assert.Contains(t, msg, "<b>TRADE OPENED</b>")
	assert.Contains(t, msg, "<b>PEP</b>")
	assert.Contains(t, msg, "Take Profit: $104.50 (+4.50%)")
	assert.Contains(t, msg, "Stop Loss: $92.00 (-8.00%)")
	assert.Contains(t, msg, "Time: 2024-10-08 13:45:00")
}

func TestFormatTradeExitEscapesReason(t *testing.T) {
	msg := Format(TradeExit("KO", Exit{ExitPrice: 60, PnL: -12.5, PnLPct: -2.1, Reason: "stop <hit>"}))

	assert.Contains(t, msg, "TRADE CLOSED - LOSS")
	assert.Contains(t, msg, "P&amp;L: $-12.50 (-2.10%)")
	assert.Contains(t, msg, "stop &lt;hit&gt;")
}

func TestFormatCriticalError(t *testing.T) {
	assert.Contains(t, Format(Failure("broker unreachable", true)), "CRITICAL ERROR")
	assert.Contains(t, Format(Failure("slow quote", false)), "<b>Warning</b>")
}

func TestTelegramSend(t *testing.T) {
	var got sendMessage
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram(TelegramConfig{BotToken: "tok", ChatID: "42", BaseURL: srv.URL},
		guard.New(guard.Config{Name: "telegram-test", Timeout: 5 * time.Second}), srv.Client())

	require.NoError(t, tg.Notify(context.Background(), RiskLimit("daily_loss", 5.2)))
	assert.Equal(t, "/bottok/sendMessage", path)
	assert.Equal(t, "42", got.ChatID)
	assert.Equal(t, "HTML", got.ParseMode)
	assert.True(t, strings.HasPrefix(got.Text, "<b>RISK LIMIT HIT</b>"))
	assert.Contains(t, got.Text, "Value: 5.20%")
}

func TestTelegramRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	tg := NewTelegram(TelegramConfig{BotToken: "tok", ChatID: "42", BaseURL: srv.URL},
		guard.New(guard.Config{Name: "telegram-test", Timeout: 5 * time.Second}), srv.Client())

	err := tg.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramConfigured(t *testing.T) {
	assert.False(t, TelegramConfig{BotToken: "your_telegram_bot_token_here", ChatID: "1"}.Configured())
	assert.False(t, TelegramConfig{BotToken: "tok"}.Configured())
	assert.True(t, TelegramConfig{BotToken: "tok", ChatID: "1"}.Configured())
}

func TestKafkaPublishesJSON(t *testing.T) {
	fixedNow(t)
	w := &fakeWriter{}
	k := NewKafkaWithWriter(w)

	require.NoError(t, k.Notify(context.Background(), TradeExit("PEP", Exit{ExitPrice: 105, PnL: 60, PnLPct: 5, Reason: "take_profit"})))
	require.NoError(t, k.Notify(context.Background(), Startup("paper")))
	require.Len(t, w.msgs, 2)

	assert.Equal(t, "PEP", string(w.msgs[0].Key))
	assert.Equal(t, "startup", string(w.msgs[1].Key))
	assert.Equal(t, "kind", w.msgs[0].Headers[0].Key)

	var decoded Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, KindTradeExit, decoded.Kind)
	require.NotNil(t, decoded.Exit)
	assert.Equal(t, 60.0, decoded.Exit.PnL)

	require.NoError(t, k.Close())
	assert.True(t, w.closed)
}

func TestKafkaWriteError(t *testing.T) {
	k := NewKafkaWithWriter(&fakeWriter{err: errors.New("leader not available")})
	err := k.Notify(context.Background(), Startup("paper"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "startup")
}

func TestKafkaConfigured(t *testing.T) {
	assert.False(t, KafkaConfig{Topic: "earnrun.events"}.Configured())
	assert.True(t, KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "earnrun.events"}.Configured())
}
