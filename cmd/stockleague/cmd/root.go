package cmd

import (
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/stockleague/config"
	"github.com/rustyeddy/stockleague/ledger"
	"github.com/rustyeddy/stockleague/market"
	"github.com/rustyeddy/stockleague/score"
)

var rootCmd = &cobra.Command{
	Use:   "stockleague",
	Short: "A simulated multi-user stock-trading competition engine",
	Long: `Stockleague runs simulated trading competitions: users hold portfolios,
trade against live prices, and are ranked on league leaderboards.

It provides tools for:
  - Executing BUY/SELL trades against a durable SQLite ledger
  - Recomputing and printing league leaderboards
  - Querying a portfolio's append-only trade history
  - Running a self-contained demo league session

Complete documentation is available at https://github.com/rustyeddy/stockleague`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

var cfgFile string

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML or JSON)")
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.Default(), nil
	}
	return config.LoadFromFile(cfgFile)
}

func openStore(cfg *config.Config) (ledger.Store, error) {
	switch cfg.Ledger.Driver {
	case "sqlite":
		return ledger.NewSQLite(cfg.Ledger.Path)
	default:
		return ledger.NewMemory(), nil
	}
}

// buildOracle returns a static oracle seeded from --price SYM=VALUE flags,
// wrapped in the Redis quote cache when the config enables one. Holdings
// with no supplied quote are valued at cost basis by the scoring engine.
func buildOracle(cfg *config.Config, prices []string) (market.Oracle, error) {
	static := market.NewStaticOracle()
	for _, kv := range prices {
		sym, val, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("bad --price %q, want SYMBOL=VALUE", kv)
		}
		p, err := decimal.NewFromString(val)
		if err != nil {
			return nil, fmt.Errorf("bad --price %q: %w", kv, err)
		}
		static.Set(sym, p)
	}

	if cfg.Redis.Addr == "" {
		return static, nil
	}
	ttl, err := cfg.QuoteTTL()
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	return market.NewCachedOracle(static, rdb, ttl, nil), nil
}

// buildCache returns the Redis leaderboard cache when the config enables
// Redis; nil selects the in-process cache.
func buildCache(cfg *config.Config) score.Cache {
	if cfg.Redis.Addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	return score.NewRedisCache(rdb)
}
