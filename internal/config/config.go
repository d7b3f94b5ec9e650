// Package config loads the engine configuration from YAML with environment
// overrides and validates it once at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/earnrun/internal/cache"
	"github.com/sawpanic/earnrun/internal/infrastructure/db"
	"github.com/sawpanic/earnrun/internal/notify"
	"github.com/sawpanic/earnrun/internal/providers/alpaca"
	"github.com/sawpanic/earnrun/internal/providers/finnhub"
	"github.com/sawpanic/earnrun/internal/risk"
)

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete application configuration
type Config struct {
	Log         LogConfig                 `yaml:"log"`
	Alpaca      alpaca.Config             `yaml:"alpaca"`
	Finnhub     finnhub.Config            `yaml:"finnhub"`
	Telegram    notify.TelegramConfig     `yaml:"telegram"`
	Kafka       notify.KafkaConfig        `yaml:"kafka"`
	Database    db.Config                 `yaml:"database"`
	Cache       cache.Config              `yaml:"cache"`
	Risk        risk.Config               `yaml:"risk"`
	Analysis    AnalysisConfig            `yaml:"analysis"`
	Schedule    ScheduleConfig            `yaml:"schedule"`
	Universe    UniverseConfig            `yaml:"universe"`
	Monitor     MonitorConfig             `yaml:"monitor"`
	Providers   map[string]ProviderConfig `yaml:"providers"`
	WeightsFile string                    `yaml:"weights_file"`
}

// LogConfig selects the zerolog level
type LogConfig struct {
	Level string `yaml:"level"`
}

// AnalysisConfig controls candidate selection
type AnalysisConfig struct {
	HistoryYears       int           `yaml:"history_years"`
	MaxStocksToAnalyze int           `yaml:"max_stocks_to_analyze"`
	MinScoreThreshold  float64       `yaml:"min_score_threshold"`
	MinAvgGainPercent  float64       `yaml:"min_avg_gain_percent"`
	MinEPSBeatRate     float64       `yaml:"min_eps_beat_rate"`
	LookaheadDays      int           `yaml:"lookahead_days"`
	TickerTimeout      time.Duration `yaml:"ticker_timeout"`
}

// ScheduleConfig controls the live loop
type ScheduleConfig struct {
	AnalysisHour int           `yaml:"analysis_hour"`
	PollInterval time.Duration `yaml:"poll_interval"`
	LoopSleep    time.Duration `yaml:"loop_sleep"`
}

// UniverseConfig locates the tradable-stock whitelist
type UniverseConfig struct {
	StocksFile string `yaml:"stocks_file"`
}

// MonitorConfig configures the HTTP monitor server
type MonitorConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Log:      LogConfig{Level: "info"},
		Database: db.DefaultConfig(),
		Cache:    cache.DefaultConfig(),
		Risk:     risk.DefaultConfig(),
		Analysis: AnalysisConfig{
			HistoryYears:       4,
			MaxStocksToAnalyze: 100,
			MinScoreThreshold:  0.0,
			MinAvgGainPercent:  1.0,
			MinEPSBeatRate:     0.3,
			LookaheadDays:      7,
			TickerTimeout:      30 * time.Second,
		},
		Schedule: ScheduleConfig{
			AnalysisHour: 8,
			PollInterval: 300 * time.Second,
			LoopSleep:    3600 * time.Second,
		},
		Universe:  UniverseConfig{StocksFile: "stocks.txt"},
		Monitor:   MonitorConfig{Addr: ":8080"},
		Providers: DefaultProviders(),
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates. A missing file is not an error; the defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	cfg.Database.FillDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type envReader struct {
	errs []error
}

func (r *envReader) str(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func (r *envReader) float(name string, dst *float64) {
	if v := os.Getenv(name); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = f
	}
}

func (r *envReader) int(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = n
	}
}

func (r *envReader) seconds(name string, dst *time.Duration) {
	var n int
	r.int(name, &n)
	if n != 0 {
		*dst = time.Duration(n) * time.Second
	}
}

func applyEnvOverrides(cfg *Config) error {
	r := &envReader{}

	r.str("ALPACA_API_KEY", &cfg.Alpaca.APIKey)
	r.str("ALPACA_SECRET_KEY", &cfg.Alpaca.SecretKey)
	r.str("ALPACA_BASE_URL", &cfg.Alpaca.BaseURL)
	r.str("FINNHUB_API_KEY", &cfg.Finnhub.APIKey)
	r.str("TELEGRAM_BOT_TOKEN", &cfg.Telegram.BotToken)
	r.str("TELEGRAM_CHAT_ID", &cfg.Telegram.ChatID)
	r.str("REDIS_ADDR", &cfg.Cache.RedisAddr)
	r.str("KAFKA_TOPIC", &cfg.Kafka.Topic)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = nil
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, b)
			}
		}
	}

	r.float("MAX_POSITION_SIZE_PERCENT", &cfg.Risk.MaxPositionPct)
	r.float("MAX_DAILY_LOSS_PERCENT", &cfg.Risk.MaxDailyLossPct)
	r.float("MAX_DRAWDOWN_PERCENT", &cfg.Risk.MaxDrawdownPct)
	r.float("MIN_STOCK_PRICE", &cfg.Risk.MinStockPrice)
	r.float("MAX_STOCK_PRICE", &cfg.Risk.MaxStockPrice)
	r.float("MIN_DAILY_VOLUME", &cfg.Risk.MinDailyVolume)

	r.int("HISTORY_YEARS", &cfg.Analysis.HistoryYears)
	r.int("MAX_STOCKS_TO_ANALYZE", &cfg.Analysis.MaxStocksToAnalyze)
	r.float("MIN_SCORE_THRESHOLD", &cfg.Analysis.MinScoreThreshold)
	r.float("MIN_AVG_GAIN_PERCENT", &cfg.Analysis.MinAvgGainPercent)

	r.int("ANALYSIS_HOUR", &cfg.Schedule.AnalysisHour)
	r.seconds("POLL_SLEEP_SECONDS", &cfg.Schedule.PollInterval)
	r.seconds("LOOP_SLEEP_SECONDS", &cfg.Schedule.LoopSleep)

	r.str("LOG_LEVEL", &cfg.Log.Level)
	r.str("STOCKS_FILE", &cfg.Universe.StocksFile)
	r.str("MONITOR_ADDR", &cfg.Monitor.Addr)
	r.str("WEIGHTS_FILE", &cfg.WeightsFile)

	db.ApplyEnv(&cfg.Database)

	if len(r.errs) > 0 {
		return fmt.Errorf("%w: environment: %v", ErrInvalid, errors.Join(r.errs...))
	}
	return nil
}

// Validate checks every section and wraps the first failure in ErrInvalid
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("%w: log.level %q", ErrInvalid, c.Log.Level)
	}
	if err := c.Risk.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Analysis.HistoryYears <= 0 {
		return fmt.Errorf("%w: history_years must be positive", ErrInvalid)
	}
	if c.Analysis.MaxStocksToAnalyze <= 0 {
		return fmt.Errorf("%w: max_stocks_to_analyze must be positive", ErrInvalid)
	}
	if c.Analysis.LookaheadDays < 0 {
		return fmt.Errorf("%w: lookahead_days cannot be negative", ErrInvalid)
	}
	if c.Analysis.TickerTimeout <= 0 {
		return fmt.Errorf("%w: ticker_timeout must be positive", ErrInvalid)
	}
	if c.Schedule.AnalysisHour < 0 || c.Schedule.AnalysisHour > 23 {
		return fmt.Errorf("%w: analysis_hour must be between 0 and 23", ErrInvalid)
	}
	if c.Schedule.PollInterval <= 0 {
		return fmt.Errorf("%w: poll_interval must be positive", ErrInvalid)
	}
	if c.Schedule.LoopSleep <= 0 {
		return fmt.Errorf("%w: loop_sleep must be positive", ErrInvalid)
	}
	for name, p := range c.Providers {
		if err := p.Validate(name); err != nil {
			return fmt.Errorf("%w: providers.%v", ErrInvalid, err)
		}
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("%w: database: %v", ErrInvalid, err)
	}
	return nil
}

// RequireLive checks the credentials the live loop cannot run without
func (c *Config) RequireLive() error {
	if !c.Alpaca.Configured() {
		return fmt.Errorf("%w: ALPACA_API_KEY and ALPACA_SECRET_KEY must be set", ErrInvalid)
	}
	if !c.Finnhub.Configured() {
		return fmt.Errorf("%w: FINNHUB_API_KEY must be set", ErrInvalid)
	}
	return nil
}

// LogLevel returns the parsed zerolog level, info when unset
func (c *Config) LogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level))
	if err != nil || c.Log.Level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
