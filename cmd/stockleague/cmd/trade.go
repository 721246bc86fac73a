package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/stockleague/event"
	"github.com/rustyeddy/stockleague/exchange"
	"github.com/rustyeddy/stockleague/ledger"
	"github.com/rustyeddy/stockleague/score"
)

var tradeCmd = &cobra.Command{
	Use:   "trade <owner> <context> <BUY|SELL> <symbol> <shares>",
	Short: "Execute a trade against the ledger",
	Long: `Executes a BUY or SELL for the portfolio of (owner, context).

The execution price comes from a --price flag for the traded symbol.

Examples:
  stockleague trade alice summer-open BUY AAPL 10 --config league.yaml --price AAPL=150.25
  stockleague trade alice personal SELL AAPL 5 --config league.yaml --price AAPL=182`,
	Args: cobra.ExactArgs(5),
	RunE: runTrade,
}

var (
	tradePrices []string
	tradeNote   string
)

func init() {
	rootCmd.AddCommand(tradeCmd)
	tradeCmd.Flags().StringArrayVar(&tradePrices, "price", nil, "quote as SYMBOL=VALUE (repeatable)")
	tradeCmd.Flags().StringVar(&tradeNote, "note", "", "optional strategy/notes tag for the transaction")
}

func runTrade(cmd *cobra.Command, args []string) error {
	owner, contextID := args[0], args[1]
	side := ledger.Side(strings.ToUpper(args[2]))
	symbol := args[3]

	var shares int64
	if _, err := fmt.Sscanf(args[4], "%d", &shares); err != nil {
		return fmt.Errorf("bad share count %q: %w", args[4], err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	oracle, err := buildOracle(cfg, tradePrices)
	if err != nil {
		return err
	}

	emitter := event.NewEmitter(nil)
	defer emitter.Close()

	lockTimeout, err := cfg.LockTimeout()
	if err != nil {
		return err
	}
	engine := exchange.NewEngine(store, oracle, emitter, exchange.Options{
		Commission:  decimal.NewFromFloat(cfg.Engine.Commission),
		LockTimeout: lockTimeout,
	}, nil)
	engine.SetLeaderboardRefresher(
		score.NewRecomputer(store, oracle, buildCache(cfg), emitter, nil, nil))

	ctx := context.Background()
	p, err := engine.GetPortfolio(ctx, owner, contextID)
	if err != nil {
		return fmt.Errorf("portfolio for %s in %s: %w", owner, contextID, err)
	}

	txn, err := engine.ExecuteTrade(ctx, exchange.TradeRequest{
		PortfolioID: p.ID,
		Symbol:      symbol,
		Side:        side,
		Shares:      shares,
		Note:        tradeNote,
	})
	if err != nil {
		return err
	}

	fmt.Printf("%s %d %s @ $%s (fee $%s)\n",
		txn.Side, txn.Shares, txn.Symbol, txn.Price.StringFixed(2), txn.Fee.StringFixed(2))
	fmt.Printf("Cash after: $%s\n", txn.CashAfter.StringFixed(2))
	return nil
}
