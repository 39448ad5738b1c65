package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"MarketLedger/internal/model"
)

// DefaultHistoryStart is where a backfill begins when nothing else is configured.
const DefaultHistoryStart = "2005-01-01"

// Config holds all application configuration.
type Config struct {
	Symbols model.Universe `yaml:"symbols"`
	Sources struct {
		AlphaVantage struct {
			APIKey        string  `yaml:"api_key"`
			RatePerSecond float64 `yaml:"rate_per_second"`
		} `yaml:"alphavantage"`
		Yahoo struct {
			RatePerSecond float64 `yaml:"rate_per_second"`
		} `yaml:"yahoo"`
		Binance struct {
			APIKey    string `yaml:"api_key"`
			APISecret string `yaml:"api_secret"`
			BaseURL   string `yaml:"base_url"`
		} `yaml:"binance"`
	} `yaml:"sources"`
	Ingest struct {
		HistoryStart string        `yaml:"history_start"`
		MaxAttempts  int           `yaml:"max_attempts"`
		BaseBackoff  time.Duration `yaml:"base_backoff"`
		Concurrency  int           `yaml:"concurrency"`
	} `yaml:"ingest"`
	Metrics struct {
		RiskFreeRate float64 `yaml:"risk_free_rate"`
		TradingDays  int     `yaml:"trading_days"`
	} `yaml:"metrics"`
	Database struct {
		Backend    string `yaml:"backend"` // sqlite, postgres or memory
		SQLitePath string `yaml:"sqlite_path"`
		URL        string `yaml:"url"`
	} `yaml:"database"`
	Schedule struct {
		DailyCron string `yaml:"daily_cron"`
	} `yaml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	API struct {
		Addr     string        `yaml:"addr"`
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"api"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A missing file is not an error; everything can come from the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ALPHA_VANTAGE_API_KEY"); v != "" {
		c.Sources.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		c.Sources.Binance.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		c.Sources.Binance.APISecret = v
	}
	if v := os.Getenv("DB_BACKEND"); v != "" {
		c.Database.Backend = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	for _, key := range []string{"SUPABASE_DB_URL", "DATABASE_URL"} {
		if v := os.Getenv(key); v != "" {
			c.Database.URL = v
		}
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("CRON_DAILY"); v != "" {
		c.Schedule.DailyCron = v
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		c.API.Addr = v
	}
	if v := os.Getenv("HISTORY_START"); v != "" {
		c.Ingest.HistoryStart = v
	}
	if v := os.Getenv("INGEST_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Ingest.Concurrency = n
		}
	}
	if v := os.Getenv("RISK_FREE_RATE"); v != "" {
		if rf, err := strconv.ParseFloat(v, 64); err == nil {
			c.Metrics.RiskFreeRate = rf
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Database.Backend == "" {
		c.Database.Backend = "sqlite"
		if c.Database.URL != "" {
			c.Database.Backend = "postgres"
		}
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/market_ledger.db"
	}
	if c.Ingest.HistoryStart == "" {
		c.Ingest.HistoryStart = DefaultHistoryStart
	}
	if c.Ingest.MaxAttempts == 0 {
		c.Ingest.MaxAttempts = 3
	}
	if c.Ingest.BaseBackoff == 0 {
		c.Ingest.BaseBackoff = 2 * time.Second
	}
	if c.Ingest.Concurrency == 0 {
		c.Ingest.Concurrency = 1
	}
	if c.Sources.AlphaVantage.RatePerSecond == 0 {
		// free tier: 5 requests per minute
		c.Sources.AlphaVantage.RatePerSecond = 5.0 / 60
	}
	if c.Metrics.RiskFreeRate == 0 {
		c.Metrics.RiskFreeRate = 0.02
	}
	if c.Metrics.TradingDays == 0 {
		c.Metrics.TradingDays = 252
	}
	if c.Schedule.DailyCron == "" {
		c.Schedule.DailyCron = "0 30 22 * * *"
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}
	if c.API.CacheTTL == 0 {
		c.API.CacheTTL = 24 * time.Hour
	}
	for i := range c.Symbols {
		if c.Symbols[i].AssetClass == "" {
			c.Symbols[i].AssetClass = model.AssetEquity
		}
	}
}

// HistoryStartDate parses Ingest.HistoryStart.
func (c *Config) HistoryStartDate() (time.Time, error) {
	d, err := model.ParseDay(c.Ingest.HistoryStart)
	if err != nil {
		return time.Time{}, fmt.Errorf("ingest.history_start: %w", err)
	}
	return d, nil
}

// TelegramEnabled reports whether run notifications can be sent.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols: at least one symbol is required")
	}
	seen := make(map[string]bool, len(c.Symbols))
	for i, s := range c.Symbols {
		if s.Symbol == "" {
			return fmt.Errorf("symbols[%d].symbol is required", i)
		}
		if s.Source == "" {
			return fmt.Errorf("symbols[%d] (%s): source is required", i, s.Symbol)
		}
		if seen[s.Symbol] {
			return fmt.Errorf("symbols[%d]: %s listed twice", i, s.Symbol)
		}
		seen[s.Symbol] = true
		if s.AssetClass != model.AssetEquity && s.AssetClass != model.AssetCrypto {
			return fmt.Errorf("symbols[%d] (%s): unknown asset_class %q", i, s.Symbol, s.AssetClass)
		}
	}
	switch c.Database.Backend {
	case "sqlite", "memory":
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("database.backend %q is not one of sqlite, postgres, memory", c.Database.Backend)
	}
	if _, err := c.HistoryStartDate(); err != nil {
		return err
	}
	if c.Ingest.MaxAttempts < 1 {
		return fmt.Errorf("ingest.max_attempts must be at least 1")
	}
	if c.Ingest.Concurrency < 1 {
		return fmt.Errorf("ingest.concurrency must be at least 1")
	}
	if c.Metrics.TradingDays <= 0 {
		return fmt.Errorf("metrics.trading_days must be positive")
	}
	return nil
}
