package guard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGuard(retries int, failures uint32) *Guard {
	g := New(Config{
		Name:                "test",
		Burst:               100,
		Timeout:             time.Second,
		MaxRetries:          retries,
		ConsecutiveFailures: failures,
		OpenTimeout:         time.Minute,
	})
	g.sleep = func(context.Context, time.Duration) error { return nil }
	return g
}

func TestDoRetriesTransientErrors(t *testing.T) {
	g := testGuard(2, 10)
	calls := 0
	err := g.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	g := testGuard(3, 10)
	calls := 0
	err := g.Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errors.New("bad request"))
	})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsRetries(t *testing.T) {
	g := testGuard(1, 10)
	calls := 0
	err := g.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retries exhausted")
	assert.Equal(t, 2, calls)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	g := testGuard(0, 2)
	fail := func(context.Context) error { return errors.New("down") }

	_ = g.Do(context.Background(), fail)
	_ = g.Do(context.Background(), fail)
	assert.Equal(t, "open", g.State())

	called := false
	err := g.Do(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestAttemptHasTimeout(t *testing.T) {
	g := testGuard(0, 10)
	g.config.Timeout = 10 * time.Millisecond
	err := g.Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientRetriesTooManyRequests(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Key"))
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"value": 42}`))
	}))
	defer srv.Close()

	c := NewClient(testGuard(2, 10), srv.Client(), http.Header{"X-Key": []string{"secret"}})
	var out struct {
		Value int `json:"value"`
	}
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, &out))
	assert.Equal(t, 42, out.Value)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestClientDoesNotRetryNotFound(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(testGuard(3, 10), srv.Client(), nil)
	err := c.GetJSON(context.Background(), srv.URL, nil)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestClientPostsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"id":"abc"}`))
	}))
	defer srv.Close()

	c := NewClient(testGuard(0, 10), srv.Client(), nil)
	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, c.DoJSON(context.Background(), http.MethodPost, srv.URL, map[string]int{"qty": 1}, &out))
	assert.Equal(t, "abc", out.ID)
}
