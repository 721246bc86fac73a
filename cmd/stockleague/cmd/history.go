package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/stockleague/ledger"
)

var historyCmd = &cobra.Command{
	Use:   "history <owner> [context]",
	Short: "Print the trade history for a portfolio",
	Long: `Prints every recorded transaction for the portfolio owned by <owner>
in the given context, oldest first. The context defaults to the
personal portfolio when omitted.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	owner := args[0]
	contextID := ledger.PersonalContext
	if len(args) > 1 {
		contextID = args[1]
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

	p, err := store.PortfolioByOwner(owner, contextID)
	if err != nil {
		return fmt.Errorf("portfolio for %s in %s: %w", owner, contextID, err)
	}

	txns, err := store.Transactions(p.ID)
	if err != nil {
		return err
	}
	if len(txns) == 0 {
		fmt.Printf("No transactions for %s in %s\n", owner, contextID)
		return nil
	}

	fmt.Printf("%-20s %-4s %-6s %8s %12s %8s %12s\n",
		"TIME", "SIDE", "SYMBOL", "SHARES", "PRICE", "FEE", "CASH AFTER")
	for _, t := range txns {
		fmt.Printf("%-20s %-4s %-6s %8d %12s %8s %12s\n",
			t.ExecutedAt.Format("2006-01-02 15:04:05"),
			t.Side, t.Symbol, t.Shares,
			t.Price.StringFixed(2), t.Fee.StringFixed(2), t.CashAfter.StringFixed(2))
	}
	return nil
}
