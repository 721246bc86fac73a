package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/stockleague/event"
	"github.com/rustyeddy/stockleague/exchange"
	"github.com/rustyeddy/stockleague/ledger"
	"github.com/rustyeddy/stockleague/market"
	"github.com/rustyeddy/stockleague/score"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a self-contained league session",
	Long: `Runs a scripted league session against the in-memory ledger.

Shows the full workflow:
  1. Three members join a league, each with starting cash
  2. Trades execute against moving prices
  3. The activity feed receives every domain event
  4. The leaderboard reorders as values change`,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store := ledger.NewMemory()
	oracle := market.NewStaticOracle()
	emitter := event.NewEmitter(nil)

	engine := exchange.NewEngine(store, oracle, emitter, exchange.Options{
		Commission: decimal.NewFromInt(1),
	}, nil)
	scorer := score.NewRecomputer(store, oracle, nil, emitter,
		[]decimal.Decimal{decimal.NewFromInt(12_000)}, nil)
	engine.SetLeaderboardRefresher(scorer)

	// Activity feed: print every event as it arrives.
	feed := emitter.Subscribe("activity-feed", 64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range feed {
			switch ev.Kind {
			case event.MemberJoined:
				fmt.Printf("  [feed] %s joined league %s\n", ev.UserID, ev.LeagueID)
			case event.TradeExecuted:
				fmt.Printf("  [feed] %s %s %d %s @ %s\n",
					ev.UserID, ev.Side, ev.Shares, ev.Symbol, ev.Price)
			case event.RankChanged:
				fmt.Printf("  [feed] %s moved #%d -> #%d\n", ev.UserID, ev.PrevRank, ev.Rank)
			case event.MilestoneReached:
				fmt.Printf("  [feed] %s passed $%s!\n", ev.UserID, ev.Milestone)
			}
		}
	}()

	const league = "summer-open"
	fmt.Println("=== League Session Demo ===")
	fmt.Println()

	oracle.SetFloat("AAPL", 150.00)
	oracle.SetFloat("TSLA", 200.00)
	oracle.SetFloat("NVDA", 500.00)

	cash := decimal.NewFromInt(10_000)
	portfolios := map[string]string{}
	for _, user := range []string{"alice", "bob", "carol"} {
		p, err := engine.JoinLeague(ctx, league, user, user == "alice", cash)
		if err != nil {
			return err
		}
		portfolios[user] = p.ID
	}

	trades := []exchange.TradeRequest{
		{PortfolioID: portfolios["alice"], Symbol: "AAPL", Side: ledger.Buy, Shares: 40},
		{PortfolioID: portfolios["bob"], Symbol: "TSLA", Side: ledger.Buy, Shares: 30},
		{PortfolioID: portfolios["carol"], Symbol: "NVDA", Side: ledger.Buy, Shares: 15},
	}
	for _, req := range trades {
		if _, err := engine.ExecuteTrade(ctx, req); err != nil {
			return err
		}
	}

	fmt.Println()
	fmt.Println("Market moves: AAPL 150 -> 180, TSLA 200 -> 170, NVDA 500 -> 560")
	oracle.SetFloat("AAPL", 180.00)
	oracle.SetFloat("TSLA", 170.00)
	oracle.SetFloat("NVDA", 560.00)

	// Alice takes profit; carol doubles down.
	if _, err := engine.ExecuteTrade(ctx, exchange.TradeRequest{
		PortfolioID: portfolios["alice"], Symbol: "AAPL", Side: ledger.Sell, Shares: 20,
	}); err != nil {
		return err
	}
	if _, err := engine.ExecuteTrade(ctx, exchange.TradeRequest{
		PortfolioID: portfolios["carol"], Symbol: "NVDA", Side: ledger.Buy, Shares: 4,
	}); err != nil {
		return err
	}

	entries, err := scorer.Leaderboard(ctx, league)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Final leaderboard:")
	for _, e := range entries {
		fmt.Printf("  #%d %-8s total $%s (cash $%s, stock $%s)\n",
			e.Rank, e.UserID,
			e.TotalValue.StringFixed(2), e.Cash.StringFixed(2), e.StockValue.StringFixed(2))
	}

	emitter.Close()
	wg.Wait()
	return nil
}
