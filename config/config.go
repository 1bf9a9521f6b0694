// Package config loads application configuration from an optional YAML
// file with environment variable overrides. A missing file is not an
// error; env vars and defaults alone are enough to run.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tickdata/internal/model"
)

// Config holds all application configuration.
type Config struct {
	// Provider selects the quote/candle source: "yahoo" or "smartapi".
	Provider string `yaml:"provider"`

	// Symbols are entries like "NSE:RELIANCE" or "BSE:500325".
	Symbols []string `yaml:"symbols"`

	// Intervals are bar intervals to aggregate, e.g. ["1m","5m","15m"].
	Intervals []string `yaml:"intervals"`

	SmartAPI struct {
		APIKey     string            `yaml:"api_key"`
		ClientCode string            `yaml:"client_code"`
		Password   string            `yaml:"password"`
		TOTPSecret string            `yaml:"totp_secret"`
		// Tokens maps "EXCHANGE:SYMBOL" to the broker instrument token.
		Tokens map[string]string `yaml:"tokens"`
	} `yaml:"smartapi"`

	Feed struct {
		// PollInterval between quote polls, e.g. "2s".
		PollInterval time.Duration `yaml:"poll_interval"`
		// WSURL, when set, replaces the poller with a WebSocket ingest.
		WSURL string `yaml:"ws_url"`
	} `yaml:"feed"`

	Backfill struct {
		// Cron spec for the daily historical backfill (robfig/cron format).
		Cron string `yaml:"cron"`
		// LookbackDays bounds how far back a backfill reaches.
		LookbackDays int `yaml:"lookback_days"`
	} `yaml:"backfill"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`

	// APIAddr is the listen address for the HTTP API and WebSocket
	// gateway. Empty disables the API server.
	APIAddr string `yaml:"api_addr"`

	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`

	// Proxy is an optional HTTPS proxy URL for outbound fetches.
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults.
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

	// Environment variable overrides
	if v := os.Getenv("TICKDATA_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("TICKDATA_SYMBOLS"); v != "" {
		cfg.Symbols = splitList(v)
	}
	if v := os.Getenv("TICKDATA_INTERVALS"); v != "" {
		cfg.Intervals = splitList(v)
	}
	if v := os.Getenv("ANGEL_API_KEY"); v != "" {
		cfg.SmartAPI.APIKey = v
	}
	if v := os.Getenv("ANGEL_CLIENT_CODE"); v != "" {
		cfg.SmartAPI.ClientCode = v
	}
	if v := os.Getenv("ANGEL_PASSWORD"); v != "" {
		cfg.SmartAPI.Password = v
	}
	if v := os.Getenv("ANGEL_TOTP_SECRET"); v != "" {
		cfg.SmartAPI.TOTPSecret = v
	}
	if v := os.Getenv("TICKDATA_WS_URL"); v != "" {
		cfg.Feed.WSURL = v
	}
	if v := os.Getenv("TICKDATA_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse TICKDATA_POLL_INTERVAL: %w", err)
		}
		cfg.Feed.PollInterval = d
	}
	if v := os.Getenv("BACKFILL_CRON"); v != "" {
		cfg.Backfill.Cron = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.APIAddr = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}

	// Defaults
	if cfg.Provider == "" {
		cfg.Provider = "yahoo"
	}
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = []string{"NSE:RELIANCE", "NSE:TCS", "NSE:INFY"}
	}
	if len(cfg.Intervals) == 0 {
		cfg.Intervals = []string{"1m", "5m", "15m"}
	}
	if cfg.Feed.PollInterval == 0 {
		cfg.Feed.PollInterval = 2 * time.Second
	}
	if cfg.Backfill.Cron == "" {
		// Weekdays after close, 16:00 IST.
		cfg.Backfill.Cron = "0 16 * * 1-5"
	}
	if cfg.Backfill.LookbackDays == 0 {
		cfg.Backfill.LookbackDays = 30
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/bars.db"
	}
	if cfg.APIAddr == "" {
		cfg.APIAddr = ":8080"
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = ":9090"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.Provider {
	case "yahoo":
	case "smartapi":
		if c.SmartAPI.APIKey == "" || c.SmartAPI.ClientCode == "" ||
			c.SmartAPI.Password == "" || c.SmartAPI.TOTPSecret == "" {
			return fmt.Errorf("smartapi provider requires api_key, client_code, password and totp_secret")
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if _, err := c.Instruments(); err != nil {
		return err
	}
	if _, err := c.ParseIntervals(); err != nil {
		return err
	}
	return nil
}

// Instrument is a parsed symbols entry.
type Instrument struct {
	Symbol   string
	Exchange model.Exchange
}

// Instruments parses the Symbols entries into exchange/symbol pairs.
func (c *Config) Instruments() ([]Instrument, error) {
	out := make([]Instrument, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		ex, sym, ok := strings.Cut(s, ":")
		if !ok {
			return nil, fmt.Errorf("symbols entry %q: want EXCHANGE:SYMBOL", s)
		}
		var exchange model.Exchange
		switch strings.ToUpper(strings.TrimSpace(ex)) {
		case "NSE":
			exchange = model.NSE
		case "BSE":
			exchange = model.BSE
		default:
			return nil, fmt.Errorf("symbols entry %q: unknown exchange %q", s, ex)
		}
		sym = strings.TrimSpace(sym)
		if sym == "" {
			return nil, fmt.Errorf("symbols entry %q: empty symbol", s)
		}
		out = append(out, Instrument{Symbol: sym, Exchange: exchange})
	}
	return out, nil
}

// ParseIntervals parses the Intervals entries.
func (c *Config) ParseIntervals() ([]model.Interval, error) {
	out := make([]model.Interval, 0, len(c.Intervals))
	for _, s := range c.Intervals {
		iv, err := model.ParseInterval(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("intervals entry %q: %w", s, err)
		}
		out = append(out, iv)
	}
	return out, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
