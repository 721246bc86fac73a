package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete competition configuration.
type Config struct {
	Engine EngineConfig `json:"engine" yaml:"engine"`
	Ledger LedgerConfig `json:"ledger" yaml:"ledger"`
	Score  ScoreConfig  `json:"score" yaml:"score"`
	Redis  RedisConfig  `json:"redis,omitempty" yaml:"redis,omitempty"`
}

// EngineConfig tunes trade execution.
type EngineConfig struct {
	StartingCash float64 `json:"starting_cash" yaml:"starting_cash"`
	Commission   float64 `json:"commission" yaml:"commission"`
	LockTimeout  string  `json:"lock_timeout,omitempty" yaml:"lock_timeout,omitempty"` // e.g. "2s"
}

// LedgerConfig selects and locates the ledger store.
type LedgerConfig struct {
	Driver string `json:"driver" yaml:"driver"` // "sqlite" or "memory"
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
}

// ScoreConfig tunes the scoring engine.
type ScoreConfig struct {
	Milestones      []float64 `json:"milestones,omitempty" yaml:"milestones,omitempty"`
	RefreshInterval string    `json:"refresh_interval,omitempty" yaml:"refresh_interval,omitempty"`
}

// RedisConfig enables the Redis quote cache and leaderboard cache when Addr
// is set; everything stays in-process otherwise.
type RedisConfig struct {
	Addr     string `json:"addr,omitempty" yaml:"addr,omitempty"`
	QuoteTTL string `json:"quote_ttl,omitempty" yaml:"quote_ttl,omitempty"`
}

// Default returns a runnable configuration: in-memory ledger, $100,000
// starting cash, no commission.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			StartingCash: 100_000,
			LockTimeout:  "2s",
		},
		Ledger: LedgerConfig{Driver: "memory"},
		Score: ScoreConfig{
			RefreshInterval: "1m",
		},
	}
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration; the extension picks the format.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Engine.StartingCash < 0 {
		return fmt.Errorf("engine.starting_cash must not be negative, got %v", c.Engine.StartingCash)
	}
	if c.Engine.Commission < 0 {
		return fmt.Errorf("engine.commission must not be negative, got %v", c.Engine.Commission)
	}
	if _, err := c.LockTimeout(); err != nil {
		return fmt.Errorf("engine.lock_timeout: %w", err)
	}

	switch c.Ledger.Driver {
	case "sqlite":
		if c.Ledger.Path == "" {
			return fmt.Errorf("ledger.path is required for the sqlite driver")
		}
	case "memory", "":
	default:
		return fmt.Errorf("ledger.driver must be sqlite or memory, got %q", c.Ledger.Driver)
	}

	for _, m := range c.Score.Milestones {
		if m <= 0 {
			return fmt.Errorf("score.milestones must be positive, got %v", m)
		}
	}
	if _, err := c.RefreshInterval(); err != nil {
		return fmt.Errorf("score.refresh_interval: %w", err)
	}
	if _, err := c.QuoteTTL(); err != nil {
		return fmt.Errorf("redis.quote_ttl: %w", err)
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}

// LockTimeout returns the parsed engine.lock_timeout.
func (c *Config) LockTimeout() (time.Duration, error) {
	return parseDuration(c.Engine.LockTimeout, 2*time.Second)
}

// RefreshInterval returns the parsed score.refresh_interval.
func (c *Config) RefreshInterval() (time.Duration, error) {
	return parseDuration(c.Score.RefreshInterval, time.Minute)
}

// QuoteTTL returns the parsed redis.quote_ttl.
func (c *Config) QuoteTTL() (time.Duration, error) {
	return parseDuration(c.Redis.QuoteTTL, 5*time.Minute)
}
