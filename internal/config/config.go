// Package config loads the CLI's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	tiktok "github.com/RavensCloud/tiktok-scrape"
)

// Environment variables consulted by Load.
const (
	EnvPath     = "TIKTOK_CONFIG"
	EnvProxy    = "TIKTOK_PROXY"
	EnvLogLevel = "TIKTOK_LOG_LEVEL"
)

type Config struct {
	Fetch  Fetch  `yaml:"fetch"`
	Scrape Scrape `yaml:"scrape"`
	Log    Log    `yaml:"log"`
}

// Fetch mirrors tiktok.FetchConfig. Durations are Go duration strings.
type Fetch struct {
	MaxRetries        int           `yaml:"max_retries"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	Timeout           time.Duration `yaml:"timeout"`
	UserAgents        []string      `yaml:"user_agents"`
	Proxy             string        `yaml:"proxy"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
	Browser           bool          `yaml:"browser"`
}

type Scrape struct {
	BaseURL    string        `yaml:"base_url"`
	Deadline   time.Duration `yaml:"deadline"`
	Strategies []string      `yaml:"strategies"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	d := tiktok.DefaultFetchConfig()
	return &Config{
		Fetch: Fetch{
			MaxRetries: d.MaxRetries,
			BaseDelay:  d.BaseDelay,
			Timeout:    d.Timeout,
		},
		Scrape: Scrape{
			BaseURL:  "https://www.tiktok.com",
			Deadline: 2 * time.Minute,
		},
		Log: Log{Level: "info", Format: "text"},
	}
}

// Load reads path, or the file named by TIKTOK_CONFIG when path is empty,
// over the defaults. With neither set the defaults are used. Environment
// overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	if v := os.Getenv(EnvProxy); v != "" {
		cfg.Fetch.Proxy = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the library would silently misinterpret.
func (c *Config) Validate() error {
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must not be negative")
	}
	if c.Fetch.RequestsPerSecond < 0 {
		return fmt.Errorf("fetch.requests_per_second must not be negative")
	}
	if c.Scrape.Deadline < 0 {
		return fmt.Errorf("scrape.deadline must not be negative")
	}
	if _, err := c.Strategies(); err != nil {
		return err
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// FetchConfig converts the fetch section for tiktok.NewHTTPFetcher.
func (c *Config) FetchConfig() tiktok.FetchConfig {
	return tiktok.FetchConfig{
		MaxRetries:        c.Fetch.MaxRetries,
		BaseDelay:         c.Fetch.BaseDelay,
		Timeout:           c.Fetch.Timeout,
		UserAgents:        c.Fetch.UserAgents,
		Proxy:             c.Fetch.Proxy,
		RequestsPerSecond: c.Fetch.RequestsPerSecond,
		MaxBodyBytes:      c.Fetch.MaxBodyBytes,
	}
}

// Strategies parses scrape.strategies. Empty means the library default.
func (c *Config) Strategies() ([]tiktok.Strategy, error) {
	out := make([]tiktok.Strategy, 0, len(c.Scrape.Strategies))
	for _, name := range c.Scrape.Strategies {
		s, err := tiktok.ParseStrategy(strings.TrimSpace(name))
		if err != nil {
			return nil, fmt.Errorf("scrape.strategies: %w", err)
		}
		switch s {
		case tiktok.StrategyByID, tiktok.StrategyByMarker, tiktok.StrategyAlternate:
		default:
			return nil, fmt.Errorf("scrape.strategies: %s is not an embedded-state strategy", s)
		}
		out = append(out, s)
	}
	return out, nil
}

// LogLevel parses log.level ("debug", "info", "warn", "error").
func (c *Config) LogLevel() (slog.Level, error) {
	var lvl slog.Level
	if c.Log.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}
