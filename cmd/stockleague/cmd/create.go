package cmd

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/stockleague/event"
	"github.com/rustyeddy/stockleague/exchange"
	"github.com/rustyeddy/stockleague/ledger"
)

var createCmd = &cobra.Command{
	Use:   "create <owner>",
	Short: "Open a personal portfolio",
	Long: `Opens a personal (league-independent) portfolio for the owner,
seeded with the configured starting cash.`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

func init() {
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	owner := args[0]

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

	p, err := engine.CreatePortfolio(context.Background(), owner, ledger.PersonalContext,
		decimal.NewFromFloat(cfg.Engine.StartingCash))
	if err != nil {
		return err
	}

	fmt.Printf("Opened personal portfolio for %s with $%s\n", owner, p.Cash.StringFixed(2))
	return nil
}
