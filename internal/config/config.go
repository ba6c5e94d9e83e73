package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider limit on ids per simple/price call.
const maxBatchSize = 10

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Market      MarketConfig      `yaml:"market"`
	Store       StoreConfig       `yaml:"store"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	IntentAgent IntentAgentConfig `yaml:"intent_agent"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type MarketConfig struct {
	BaseURL              string `yaml:"base_url"`
	TimeoutMs            int    `yaml:"timeout_ms"`
	MinRequestIntervalMs int    `yaml:"min_request_interval_ms"`
	CacheTTLMs           int    `yaml:"cache_ttl_ms"`
	MaxRetries           int    `yaml:"max_retries"`
	BatchSize            int    `yaml:"batch_size"`
	BatchDelayMs         int    `yaml:"batch_delay_ms"`
	DescriptionDelayMs   int    `yaml:"description_delay_ms"`
	UserAgent            string `yaml:"user_agent"`
}

func (m MarketConfig) Timeout() time.Duration { return ms(m.TimeoutMs) }

func (m MarketConfig) MinRequestInterval() time.Duration { return ms(m.MinRequestIntervalMs) }

func (m MarketConfig) CacheTTL() time.Duration { return ms(m.CacheTTLMs) }

func (m MarketConfig) BatchDelay() time.Duration { return ms(m.BatchDelayMs) }

func (m MarketConfig) DescriptionDelay() time.Duration { return ms(m.DescriptionDelayMs) }

type StoreConfig struct {
	Sqlite SqliteConfig `yaml:"sqlite"`
}

// SqliteConfig with an empty path disables valuation history.
type SqliteConfig struct {
	Path string `yaml:"path"`
}

type SchedulerConfig struct {
	Enabled     bool   `yaml:"enabled"`
	PurgeCron   string `yaml:"purge_cron"`
	WarmupCron  string `yaml:"warmup_cron"`
	WarmupLimit int    `yaml:"warmup_limit"`
}

type IntentAgentConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	ByAzure    bool   `yaml:"by_azure"`
	APIVersion string `yaml:"api_version"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{Port: 8080},
		Log:    LogConfig{Level: "info"},
		Market: MarketConfig{
			BaseURL:              "https://api.coingecko.com/api/v3",
			TimeoutMs:            15000,
			MinRequestIntervalMs: 1100,
			CacheTTLMs:           60000,
			MaxRetries:           3,
			BatchSize:            10,
			BatchDelayMs:         500,
			DescriptionDelayMs:   200,
			UserAgent:            "CryptoChat/1.0",
		},
		Store: StoreConfig{
			Sqlite: SqliteConfig{Path: "data/app.db"},
		},
		Scheduler: SchedulerConfig{
			Enabled:     true,
			PurgeCron:   "0 * * * * *",
			WarmupCron:  "0 */5 * * * *",
			WarmupLimit: 10,
		},
		IntentAgent: IntentAgentConfig{
			Enabled:   false,
			Model:     "gpt-4.1-mini",
			TimeoutMs: 10000,
		},
	}
}

// Load reads path on top of the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 || p > 65535 {
			return fmt.Errorf("invalid PORT: %q", v)
		}
		cfg.Server.Port = p
	}
	if v := os.Getenv("COINGECKO_API_URL"); v != "" {
		cfg.Market.BaseURL = v
	}
	if v, ok := os.LookupEnv("SQLITE_PATH"); ok {
		cfg.Store.Sqlite.Path = v
	}
	return nil
}

func (c *Config) validate() error {
	m := c.Market
	if m.BaseURL == "" {
		return fmt.Errorf("market.base_url is required")
	}
	if m.BatchSize <= 0 || m.BatchSize > maxBatchSize {
		return fmt.Errorf("market.batch_size must be between 1 and %d, got %d", maxBatchSize, m.BatchSize)
	}
	if m.MaxRetries <= 0 {
		return fmt.Errorf("market.max_retries must be positive, got %d", m.MaxRetries)
	}
	if m.MinRequestIntervalMs < 0 || m.CacheTTLMs < 0 || m.BatchDelayMs < 0 || m.DescriptionDelayMs < 0 {
		return fmt.Errorf("market intervals must not be negative")
	}
	return nil
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
