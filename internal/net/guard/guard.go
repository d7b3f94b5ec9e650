package guard

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrCircuitOpen is returned while a provider's breaker is open
var ErrCircuitOpen = gobreaker.ErrOpenState

// Config represents per-provider call policy
type Config struct {
	Name                string
	RequestsPerMinute   float64
	Burst               int
	Timeout             time.Duration // per attempt
	MaxRetries          int
	BackoffBase         time.Duration
	BackoffMax          time.Duration
	ConsecutiveFailures uint32        // failures that open the breaker
	OpenTimeout         time.Duration // time the breaker stays open before probing
}

// DefaultConfig returns a conservative policy for a named provider
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		RequestsPerMinute:   60,
		Burst:               5,
		Timeout:             30 * time.Second,
		MaxRetries:          2,
		BackoffBase:         500 * time.Millisecond,
		BackoffMax:          10 * time.Second,
		ConsecutiveFailures: 5,
		OpenTimeout:         60 * time.Second,
	}
}

// Guard wraps collaborator calls with rate limiting, a per-attempt timeout,
// retries with backoff and a circuit breaker.
type Guard struct {
	config  Config
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates a guard for one provider
func New(config Config) *Guard {
	limit := rate.Inf
	if config.RequestsPerMinute > 0 {
		limit = rate.Limit(config.RequestsPerMinute / 60)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}
	threshold := config.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	name := config.Name
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			log.Warn().Str("provider", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}

	return &Guard{
		config:  config,
		limiter: rate.NewLimiter(limit, burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
		sleep:   sleepCtx,
	}
}

// Name returns the provider name
func (g *Guard) Name() string { return g.config.Name }

// State returns the breaker state as a string
func (g *Guard) State() string { return g.breaker.State().String() }

// Do runs fn until it succeeds, fails permanently or retries run out.
// Each attempt waits for a rate-limit token and gets its own timeout.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= g.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := g.backoff(attempt, lastErr)
			log.Debug().Str("provider", g.config.Name).Int("attempt", attempt).Dur("backoff", backoff).
				Err(lastErr).Msg("Retrying provider call")
			if err := g.sleep(ctx, backoff); err != nil {
				return err
			}
		}

		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s rate limit wait: %w", g.config.Name, err)
		}

		_, err := g.breaker.Execute(func() (interface{}, error) {
			return nil, g.attempt(ctx, fn)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%s: %w", g.config.Name, ErrCircuitOpen)
		}
		if ctx.Err() != nil || !retryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%s: retries exhausted: %w", g.config.Name, lastErr)
}

func (g *Guard) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if g.config.Timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()
	return fn(ctx)
}

func (g *Guard) backoff(attempt int, lastErr error) time.Duration {
	var se *StatusError
	if errors.As(lastErr, &se) && se.RetryAfter > 0 {
		return se.RetryAfter
	}
	backoff := g.config.BackoffBase * time.Duration(1<<uint(attempt-1))
	if g.config.BackoffMax > 0 && backoff > g.config.BackoffMax {
		backoff = g.config.BackoffMax
	}
	jitter := time.Duration(rand.Float64() * 0.1 * float64(backoff))
	return backoff + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

func retryable(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}
