package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/stockleague/score"
)

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard <league-id>",
	Short: "Recompute and print a league's leaderboard",
	Long: `Recomputes the leaderboard for a league from the ledger.

Quotes come from repeated --price flags; holdings without a supplied quote
are valued at their cost basis.

Examples:
  stockleague leaderboard summer-open --config league.yaml --price AAPL=182.50 --price TSLA=171`,
	Args: cobra.ExactArgs(1),
	RunE: runLeaderboard,
}

var leaderboardPrices []string

func init() {
	rootCmd.AddCommand(leaderboardCmd)
	leaderboardCmd.Flags().StringArrayVar(&leaderboardPrices, "price", nil, "quote as SYMBOL=VALUE (repeatable)")
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	oracle, err := buildOracle(cfg, leaderboardPrices)
	if err != nil {
		return err
	}

	scorer := score.NewRecomputer(store, oracle, buildCache(cfg), nil, nil, nil)
	entries, err := scorer.RecomputeLeaderboard(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("recompute leaderboard: %w", err)
	}

	fmt.Printf("Leaderboard for %s:\n", args[0])
	for _, e := range entries {
		fmt.Printf("  #%d %-12s total $%s (cash $%s, stock $%s)\n",
			e.Rank, e.UserID,
			e.TotalValue.StringFixed(2), e.Cash.StringFixed(2), e.StockValue.StringFixed(2))
	}
	return nil
}
