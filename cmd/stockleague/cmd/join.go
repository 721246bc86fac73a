package cmd

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/stockleague/event"
	"github.com/rustyeddy/stockleague/exchange"
)

var joinCmd = &cobra.Command{
	Use:   "join <user> <league-id>",
	Short: "Join a league and open its portfolio",
	Long: `Registers the user as a member of the league and opens a fresh
portfolio seeded with the configured starting cash. Joining the same
league twice is an error.`,
	Args: cobra.ExactArgs(2),
	RunE: runJoin,
}

var joinAdmin bool

func init() {
	rootCmd.AddCommand(joinCmd)
	joinCmd.Flags().BoolVar(&joinAdmin, "admin", false, "join as a league administrator")
}

func runJoin(cmd *cobra.Command, args []string) error {
	userID, leagueID := args[0], args[1]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	emitter := event.NewEmitter(nil)
	defer emitter.Close()

	lockTimeout, err := cfg.LockTimeout()
	if err != nil {
		return err
	}
	engine := exchange.NewEngine(store, nil, emitter, exchange.Options{
		Commission:  decimal.NewFromFloat(cfg.Engine.Commission),
		LockTimeout: lockTimeout,
	}, nil)

	p, err := engine.JoinLeague(context.Background(), leagueID, userID, joinAdmin,
		decimal.NewFromFloat(cfg.Engine.StartingCash))
	if err != nil {
		return err
	}

	fmt.Printf("%s joined %s with $%s\n", userID, leagueID, p.Cash.StringFixed(2))
	return nil
}
