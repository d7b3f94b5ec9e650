// Package cache keeps provider responses in Redis or in process memory.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// Cache stores opaque values with a TTL. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// Memory is an in-process cache
type Memory struct {
	mu  sync.Mutex
	m   map[string]entry
	now func() time.Time
}

type entry struct {
	b   []byte
	exp time.Time
}

// NewMemory creates an empty in-process cache
func NewMemory() *Memory {
	return &Memory{m: make(map[string]entry), now: time.Now}
}

// Get implements Cache
func (c *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && c.now().After(e.exp) {
		delete(c.m, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.b...), true, nil
}

// Set implements Cache. A non-positive ttl never expires.
func (c *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{b: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = c.now().Add(ttl)
	}
	c.m[key] = e
	return nil
}

// Len returns the number of stored entries, expired or not
func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

// Redis stores entries under a key prefix
type Redis struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedis wraps an existing client
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix, timeout: 500 * time.Millisecond}
}

// Get implements Cache
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	v, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

// Set implements Cache
func (r *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.client.Set(ctx, r.prefix+key, val, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Ping checks connectivity
func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

// Config represents cache configuration
type Config struct {
	RedisAddr string        `yaml:"redis_addr"`
	RedisDB   int           `yaml:"redis_db"`
	Prefix    string        `yaml:"prefix"`
	BarsTTL   time.Duration `yaml:"bars_ttl"`
	FundTTL   time.Duration `yaml:"fundamentals_ttl"`
}

// DefaultConfig returns an in-memory configuration
func DefaultConfig() Config {
	return Config{Prefix: "earnrun:", BarsTTL: 24 * time.Hour, FundTTL: 6 * time.Hour}
}

// New returns a Redis cache when an address is configured and reachable,
// otherwise an in-memory cache.
func New(ctx context.Context, config Config) Cache {
	if config.RedisAddr == "" {
		return NewMemory()
	}
	r := NewRedis(redis.NewClient(&redis.Options{Addr: config.RedisAddr, DB: config.RedisDB}), config.Prefix)
	if err := r.Ping(ctx); err != nil {
		log.Warn().Err(err).Str("addr", config.RedisAddr).Msg("Redis unavailable, using in-memory cache")
		return NewMemory()
	}
	log.Info().Str("addr", config.RedisAddr).Msg("Using Redis cache")
	return r
}
