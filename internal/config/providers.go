package config

import (
	"fmt"
	"time"

	"github.com/sawpanic/earnrun/internal/net/guard"
)

// ProviderConfig is the call policy for one external collaborator
type ProviderConfig struct {
	RequestsPerMinute float64       `yaml:"requests_per_minute"`
	Burst             int           `yaml:"burst"`
	MaxRetries        int           `yaml:"max_retries"`
	BackoffMS         BackoffConfig `yaml:"backoff_ms"`
	Circuit           CircuitConfig `yaml:"circuit"`
}

// BackoffConfig represents exponential backoff configuration
type BackoffConfig struct {
	Base int `yaml:"base"` // milliseconds
	Max  int `yaml:"max"`  // milliseconds
}

// CircuitConfig represents circuit breaker configuration
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold"` // consecutive failures to open circuit
	OpenMS           int `yaml:"open_ms"`           // time open before a probe
	TimeoutMS        int `yaml:"timeout_ms"`        // per-attempt request timeout
}

// DefaultProviders returns the call policies for the known collaborators.
// Finnhub's free tier allows 60 calls per minute.
func DefaultProviders() map[string]ProviderConfig {
	base := ProviderConfig{
		Burst:      5,
		MaxRetries: 2,
		BackoffMS:  BackoffConfig{Base: 500, Max: 10000},
		Circuit:    CircuitConfig{FailureThreshold: 5, OpenMS: 60000, TimeoutMS: 30000},
	}

	finnhub := base
	finnhub.RequestsPerMinute = 60

	alpaca := base
	alpaca.RequestsPerMinute = 200
	alpaca.Burst = 10

	telegram := base
	telegram.RequestsPerMinute = 20
	telegram.Circuit.TimeoutMS = 10000

	return map[string]ProviderConfig{
		"finnhub":  finnhub,
		"alpaca":   alpaca,
		"telegram": telegram,
	}
}

// Validate ensures a provider configuration is valid
func (p *ProviderConfig) Validate(name string) error {
	if p.RequestsPerMinute <= 0 {
		return fmt.Errorf("%s: requests_per_minute must be positive, got %v", name, p.RequestsPerMinute)
	}
	if p.Burst <= 0 {
		return fmt.Errorf("%s: burst must be positive, got %d", name, p.Burst)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("%s: max_retries cannot be negative, got %d", name, p.MaxRetries)
	}
	if err := p.BackoffMS.Validate(); err != nil {
		return fmt.Errorf("%s: backoff_ms: %w", name, err)
	}
	if err := p.Circuit.Validate(); err != nil {
		return fmt.Errorf("%s: circuit: %w", name, err)
	}
	return nil
}

// Validate ensures backoff configuration is valid
func (b *BackoffConfig) Validate() error {
	if b.Base <= 0 {
		return fmt.Errorf("base must be positive, got %d", b.Base)
	}
	if b.Max <= b.Base {
		return fmt.Errorf("max (%d) must be > base (%d)", b.Max, b.Base)
	}
	return nil
}

// Validate ensures circuit breaker configuration is valid
func (c *CircuitConfig) Validate() error {
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("failure_threshold must be positive, got %d", c.FailureThreshold)
	}
	if c.OpenMS <= 0 {
		return fmt.Errorf("open_ms must be positive, got %d", c.OpenMS)
	}
	if c.TimeoutMS <= 0 {
		return fmt.Errorf("timeout_ms must be positive, got %d", c.TimeoutMS)
	}
	return nil
}

// GuardConfig converts the policy into a guard configuration
func (p ProviderConfig) GuardConfig(name string) guard.Config {
	return guard.Config{
		Name:                name,
		RequestsPerMinute:   p.RequestsPerMinute,
		Burst:               p.Burst,
		Timeout:             time.Duration(p.Circuit.TimeoutMS) * time.Millisecond,
		MaxRetries:          p.MaxRetries,
		BackoffBase:         time.Duration(p.BackoffMS.Base) * time.Millisecond,
		BackoffMax:          time.Duration(p.BackoffMS.Max) * time.Millisecond,
		ConsecutiveFailures: uint32(p.Circuit.FailureThreshold),
		OpenTimeout:         time.Duration(p.Circuit.OpenMS) * time.Millisecond,
	}
}

// Guard returns the guard configuration for a named provider, falling back
// to guard defaults for providers without an entry
func (c *Config) Guard(name string) guard.Config {
	if p, ok := c.Providers[name]; ok {
		return p.GuardConfig(name)
	}
	return guard.DefaultConfig(name)
}
