package exchange

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/stockleague/event"
	"github.com/rustyeddy/stockleague/ledger"
	"github.com/rustyeddy/stockleague/market"
)

func seedPortfolio(t *testing.T, e *Engine, cash int64) ledger.Portfolio {
	t.Helper()
	p, err := e.CreatePortfolio(context.Background(), "alice", ledger.PersonalContext, decimal.NewFromInt(cash))
	require.NoError(t, err)
	return p
}

// Scenario: $10,000 cash, BUY 10 AAPL @ $150 -> cash $8,500, 10 shares,
// basis $150.
func TestExecuteTradeBuy(t *testing.T) {
	t.Parallel()

	e, _, oracle, emitter := newTestEngine(t, Options{})
	ctx := context.Background()
	feed := emitter.Subscribe("feed", 8)
	oracle.SetFloat("AAPL", 150)

	p := seedPortfolio(t, e, 10000)

	txn, err := e.ExecuteTrade(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "AAPL", Side: ledger.Buy, Shares: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.Buy, txn.Side)
	assert.True(t, txn.Price.Equal(decimal.NewFromInt(150)))
	assert.True(t, txn.CashAfter.Equal(decimal.NewFromInt(8500)))

	got, err := e.GetPortfolio(ctx, "alice", ledger.PersonalContext)
	require.NoError(t, err)
	assert.True(t, got.Cash.Equal(decimal.NewFromInt(8500)))

	h, err := e.GetHolding(ctx, p.ID, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(10), h.Shares)
	assert.True(t, h.Basis.Equal(decimal.NewFromInt(150)))

	ev := <-feed
	assert.Equal(t, event.TradeExecuted, ev.Kind)
	assert.Equal(t, "AAPL", ev.Symbol)
	assert.Equal(t, int64(10), ev.Shares)
	assert.True(t, ev.CashAfter.Equal(decimal.NewFromInt(8500)))
}

// Scenario: selling 15 of the 10 owned shares fails with owned vs requested
// amounts, and leaves state untouched.
func TestExecuteTradeOversellRejected(t *testing.T) {
	t.Parallel()

	e, _, oracle, _ := newTestEngine(t, Options{})
	ctx := context.Background()
	oracle.SetFloat("AAPL", 150)

	p := seedPortfolio(t, e, 10000)
	_, err := e.ExecuteTrade(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "AAPL", Side: ledger.Buy, Shares: 10,
	})
	require.NoError(t, err)

	_, err = e.ExecuteTrade(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "AAPL", Side: ledger.Sell, Shares: 15,
	})

	var insufficient *InsufficientSharesError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(10), insufficient.Owned)
	assert.Equal(t, int64(15), insufficient.Requested)
	assert.Contains(t, err.Error(), "own 10")
	assert.Contains(t, err.Error(), "requested 15")

	got, err := e.GetPortfolio(ctx, "alice", ledger.PersonalContext)
	require.NoError(t, err)
	assert.True(t, got.Cash.Equal(decimal.NewFromInt(8500)))
	h, err := e.GetHolding(ctx, p.ID, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(10), h.Shares)

	history, err := e.History(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

// Scenario: BUY 10 @ $150 then 5 @ $170 -> basis (10x150+5x170)/15 = 156.67.
func TestExecuteTradeWeightedBasis(t *testing.T) {
	t.Parallel()

	e, _, oracle, _ := newTestEngine(t, Options{})
	ctx := context.Background()
	oracle.SetFloat("AAPL", 150)

	p := seedPortfolio(t, e, 10000)
	_, err := e.ExecuteTrade(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "AAPL", Side: ledger.Buy, Shares: 10,
	})
	require.NoError(t, err)

	oracle.SetFloat("AAPL", 170)
	_, err = e.ExecuteTrade(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "AAPL", Side: ledger.Buy, Shares: 5,
	})
	require.NoError(t, err)

	h, err := e.GetHolding(ctx, p.ID, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(15), h.Shares)
	assert.Equal(t, "156.67", h.Basis.StringFixed(2))

	// SELL must not move the basis.
	_, err = e.ExecuteTrade(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "AAPL", Side: ledger.Sell, Shares: 5,
	})
	require.NoError(t, err)
	h, err = e.GetHolding(ctx, p.ID, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(10), h.Shares)
	assert.Equal(t, "156.67", h.Basis.StringFixed(2))
}

func TestExecuteTradeSellOutRetainsZeroRow(t *testing.T) {
	t.Parallel()

	e, store, oracle, _ := newTestEngine(t, Options{})
	ctx := context.Background()
	oracle.SetFloat("AAPL", 150)

	p := seedPortfolio(t, e, 10000)
	_, err := e.ExecuteTrade(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "AAPL", Side: ledger.Buy, Shares: 10,
	})
	require.NoError(t, err)
	_, err = e.ExecuteTrade(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "AAPL", Side: ledger.Sell, Shares: 10,
	})
	require.NoError(t, err)

	// The row survives with zero shares and a reset basis.
	h, err := store.Holding(p.ID, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(0), h.Shares)
	assert.True(t, h.Basis.IsZero())
}

func TestExecuteTradeInsufficientFunds(t *testing.T) {
	t.Parallel()

	e, _, oracle, _ := newTestEngine(t, Options{})
	ctx := context.Background()
	oracle.SetFloat("AAPL", 150)

	p := seedPortfolio(t, e, 1000)

	_, err := e.ExecuteTrade(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "AAPL", Side: ledger.Buy, Shares: 10,
	})

	var insufficient *InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "1000", insufficient.Available.String())
	assert.Equal(t, "1500", insufficient.Required.String())
	assert.Contains(t, err.Error(), "available 1000.00")
	assert.Contains(t, err.Error(), "required 1500.00")

	got, err := e.GetPortfolio(ctx, "alice", ledger.PersonalContext)
	require.NoError(t, err)
	assert.True(t, got.Cash.Equal(decimal.NewFromInt(1000)))
}

func TestExecuteTradeCommission(t *testing.T) {
	t.Parallel()

	e, _, oracle, _ := newTestEngine(t, Options{Commission: decimal.NewFromInt(5)})
	ctx := context.Background()
	oracle.SetFloat("AAPL", 100)

	p := seedPortfolio(t, e, 1000)

	// 9 x 100 + 5 fee = 905.
	txn, err := e.ExecuteTrade(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "AAPL", Side: ledger.Buy, Shares: 9,
	})
	require.NoError(t, err)
	assert.True(t, txn.Fee.Equal(decimal.NewFromInt(5)))
	assert.True(t, txn.CashAfter.Equal(decimal.NewFromInt(95)))

	// 1 more share would need 105 with only 95 available.
	_, err = e.ExecuteTrade(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "AAPL", Side: ledger.Buy, Shares: 1,
	})
	var insufficient *InsufficientFundsError
	assert.ErrorAs(t, err, &insufficient)

	// SELL proceeds are net of the fee.
	txn, err = e.ExecuteTrade(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "AAPL", Side: ledger.Sell, Shares: 9,
	})
	require.NoError(t, err)
	assert.True(t, txn.CashAfter.Equal(decimal.NewFromInt(95+900-5)))
}

func TestExecuteTradeQuoteUnavailable(t *testing.T) {
	t.Parallel()

	e, _, oracle, _ := newTestEngine(t, Options{})
	ctx := context.Background()

	p := seedPortfolio(t, e, 10000)

	_, err := e.ExecuteTrade(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "NOPE", Side: ledger.Buy, Shares: 1,
	})
	assert.ErrorIs(t, err, market.ErrSymbolNotFound)

	oracle.SetFloat("AAPL", 150)
	oracle.Fail("AAPL")
	_, err = e.ExecuteTrade(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "AAPL", Side: ledger.Buy, Shares: 1,
	})
	assert.ErrorIs(t, err, market.ErrQuoteUnavailable)
}

func TestExecuteTradeRequestValidation(t *testing.T) {
	t.Parallel()

	e, _, oracle, _ := newTestEngine(t, Options{})
	ctx := context.Background()
	oracle.SetFloat("AAPL", 150)
	p := seedPortfolio(t, e, 10000)

	cases := []struct {
		name string
		req  TradeRequest
	}{
		{"zero shares", TradeRequest{PortfolioID: p.ID, Symbol: "AAPL", Side: ledger.Buy, Shares: 0}},
		{"negative shares", TradeRequest{PortfolioID: p.ID, Symbol: "AAPL", Side: ledger.Buy, Shares: -5}},
		{"bad side", TradeRequest{PortfolioID: p.ID, Symbol: "AAPL", Side: "HOLD", Shares: 1}},
		{"no symbol", TradeRequest{PortfolioID: p.ID, Side: ledger.Buy, Shares: 1}},
		{"no portfolio", TradeRequest{Symbol: "AAPL", Side: ledger.Buy, Shares: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.ExecuteTrade(ctx, tc.req)
			assert.Error(t, err)
		})
	}
}

func TestExecuteTradeUnknownPortfolio(t *testing.T) {
	t.Parallel()

	e, _, oracle, _ := newTestEngine(t, Options{})
	oracle.SetFloat("AAPL", 150)

	_, err := e.ExecuteTrade(context.Background(), TradeRequest{
		PortfolioID: "missing", Symbol: "AAPL", Side: ledger.Buy, Shares: 1,
	})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// appendFailStore forces a failure between the balance mutation and the
// transaction append, simulating a crash inside the atomic unit.
type appendFailStore struct {
	ledger.Store
	fail atomic.Bool
}

type appendFailTx struct {
	ledger.Tx
	store *appendFailStore
}

func (s *appendFailStore) ExecTx(portfolioID string, fn func(ledger.Tx) error) error {
	return s.Store.ExecTx(portfolioID, func(tx ledger.Tx) error {
		return fn(&appendFailTx{Tx: tx, store: s})
	})
}

func (t *appendFailTx) AppendTransaction(rec ledger.Transaction) error {
	if t.store.fail.Load() {
		return errors.New("injected append failure")
	}
	return t.Tx.AppendTransaction(rec)
}

func TestExecuteTradeAtomicOnAppendFailure(t *testing.T) {
	t.Parallel()

	store := &appendFailStore{Store: ledger.NewMemory()}
	oracle := market.NewStaticOracle()
	emitter := event.NewEmitter(nil)
	t.Cleanup(emitter.Close)
	e := NewEngine(store, oracle, emitter, Options{}, nil)

	ctx := context.Background()
	oracle.SetFloat("AAPL", 150)
	p, err := e.CreatePortfolio(ctx, "alice", ledger.PersonalContext, decimal.NewFromInt(10000))
	require.NoError(t, err)

	store.fail.Store(true)
	_, err = e.ExecuteTrade(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "AAPL", Side: ledger.Buy, Shares: 10,
	})
	require.Error(t, err)

	// Cash already debited in the unit must have been rolled back.
	got, err := e.GetPortfolio(ctx, "alice", ledger.PersonalContext)
	require.NoError(t, err)
	assert.True(t, got.Cash.Equal(decimal.NewFromInt(10000)))
	h, err := e.GetHolding(ctx, p.ID, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(0), h.Shares)

	// And the same request succeeds once the failure clears.
	store.fail.Store(false)
	_, err = e.ExecuteTrade(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "AAPL", Side: ledger.Buy, Shares: 10,
	})
	assert.NoError(t, err)
}

// N concurrent BUYs with cash for exactly one: one succeeds, the rest fail
// with InsufficientFunds, and the final balance matches one execution.
func TestExecuteTradeConcurrentSingleWinner(t *testing.T) {
	t.Parallel()

	e, _, oracle, _ := newTestEngine(t, Options{LockTimeout: 5 * time.Second})
	ctx := context.Background()
	oracle.SetFloat("AAPL", 150)

	p := seedPortfolio(t, e, 1500) // exactly one 10-share buy at 150

	const n = 8
	var (
		wg        sync.WaitGroup
		successes atomic.Int64
		rejected  atomic.Int64
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ExecuteTrade(ctx, TradeRequest{
				PortfolioID: p.ID, Symbol: "AAPL", Side: ledger.Buy, Shares: 10,
			})
			switch {
			case err == nil:
				successes.Add(1)
			default:
				var insufficient *InsufficientFundsError
				if errors.As(err, &insufficient) {
					rejected.Add(1)
				} else {
					t.Errorf("unexpected error: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), successes.Load())
	assert.Equal(t, int64(n-1), rejected.Load())

	got, err := e.GetPortfolio(ctx, "alice", ledger.PersonalContext)
	require.NoError(t, err)
	assert.True(t, got.Cash.IsZero(), "final cash %s", got.Cash)

	h, err := e.GetHolding(ctx, p.ID, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(10), h.Shares)

	history, err := e.History(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

type recordingRefresher struct {
	mu      sync.Mutex
	leagues []string
}

func (r *recordingRefresher) Recompute(_ context.Context, leagueID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leagues = append(r.leagues, leagueID)
	return nil
}

// A committed league trade triggers a leaderboard recompute for that league;
// personal trades never do.
func TestExecuteTradeTriggersRefresh(t *testing.T) {
	t.Parallel()

	e, _, oracle, _ := newTestEngine(t, Options{})
	ctx := context.Background()
	oracle.SetFloat("AAPL", 150)

	ref := &recordingRefresher{}
	e.SetLeaderboardRefresher(ref)

	leagueP, err := e.JoinLeague(ctx, "L1", "alice", false, decimal.NewFromInt(10000))
	require.NoError(t, err)
	personalP, err := e.CreatePortfolio(ctx, "alice", ledger.PersonalContext, decimal.NewFromInt(10000))
	require.NoError(t, err)

	_, err = e.ExecuteTrade(ctx, TradeRequest{
		PortfolioID: leagueP.ID, Symbol: "AAPL", Side: ledger.Buy, Shares: 1,
	})
	require.NoError(t, err)
	_, err = e.ExecuteTrade(ctx, TradeRequest{
		PortfolioID: personalP.ID, Symbol: "AAPL", Side: ledger.Buy, Shares: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"L1"}, ref.leagues)
}

// blockingStore parks ExecTx until released, to hold a portfolio's
// exclusion open from a test.
type blockingStore struct {
	ledger.Store
	gate    chan struct{}
	entered chan struct{}
	armed   atomic.Bool
}

func (s *blockingStore) ExecTx(portfolioID string, fn func(ledger.Tx) error) error {
	if s.armed.CompareAndSwap(true, false) {
		close(s.entered)
		<-s.gate
	}
	return s.Store.ExecTx(portfolioID, fn)
}

func TestExecuteTradeBusyTimeout(t *testing.T) {
	t.Parallel()

	store := &blockingStore{
		Store:   ledger.NewMemory(),
		gate:    make(chan struct{}),
		entered: make(chan struct{}),
	}
	oracle := market.NewStaticOracle()
	emitter := event.NewEmitter(nil)
	t.Cleanup(emitter.Close)
	e := NewEngine(store, oracle, emitter, Options{LockTimeout: 50 * time.Millisecond}, nil)

	ctx := context.Background()
	oracle.SetFloat("AAPL", 150)
	p, err := e.CreatePortfolio(ctx, "alice", ledger.PersonalContext, decimal.NewFromInt(10000))
	require.NoError(t, err)

	store.armed.Store(true)
	done := make(chan error, 1)
	go func() {
		_, err := e.ExecuteTrade(ctx, TradeRequest{
			PortfolioID: p.ID, Symbol: "AAPL", Side: ledger.Buy, Shares: 1,
		})
		done <- err
	}()

	<-store.entered // first trade now holds the lock

	_, err = e.ExecuteTrade(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "AAPL", Side: ledger.Buy, Shares: 1,
	})
	assert.ErrorIs(t, err, ErrBusy)

	close(store.gate)
	assert.NoError(t, <-done)
}
