// Package exchange implements the trading core: portfolio lifecycle, the
// only mutation primitive for balances and holdings, and atomic trade
// execution. All ledger writes funnel through here so the invariants
// (cash >= 0, shares >= 0, append-only history) hold under any number of
// concurrent callers.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phuslu/log"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/stockleague/event"
	"github.com/rustyeddy/stockleague/ledger"
	"github.com/rustyeddy/stockleague/market"
	"github.com/rustyeddy/stockleague/pkg/id"
)

// DefaultLockTimeout bounds how long a trade waits for its portfolio's
// exclusion before failing with ErrBusy.
const DefaultLockTimeout = 2 * time.Second

// Options tune the engine. The zero value is usable: no commission,
// DefaultLockTimeout.
type Options struct {
	Commission  decimal.Decimal // flat fee charged on every trade
	LockTimeout time.Duration
}

// LeaderboardRefresher is notified after a league trade commits, once the
// portfolio's lock has been released. The scoring engine implements it.
type LeaderboardRefresher interface {
	Recompute(ctx context.Context, leagueID string) error
}

// Engine owns portfolio invariants and trade execution.
type Engine struct {
	store   ledger.Store
	oracle  market.Oracle
	emitter *event.Emitter
	locks   *lockTable
	opts    Options
	log     *log.Logger

	refresher LeaderboardRefresher
}

func NewEngine(store ledger.Store, oracle market.Oracle, emitter *event.Emitter, opts Options, logger *log.Logger) *Engine {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if logger == nil {
		logger = &log.DefaultLogger
	}
	return &Engine{
		store:   store,
		oracle:  oracle,
		emitter: emitter,
		locks:   newLockTable(),
		opts:    opts,
		log:     logger,
	}
}

// SetLeaderboardRefresher wires the scoring engine in. The refresher is
// called after the trade's lock is released, so a slow recompute can never
// extend a portfolio's critical section.
func (e *Engine) SetLeaderboardRefresher(r LeaderboardRefresher) {
	e.refresher = r
}

// CreatePortfolio creates the single portfolio for (owner, context).
// Returns ledger.ErrAlreadyExists if one was created before.
func (e *Engine) CreatePortfolio(ctx context.Context, ownerID, contextID string, startingCash decimal.Decimal) (ledger.Portfolio, error) {
	_ = ctx
	if ownerID == "" || contextID == "" {
		return ledger.Portfolio{}, errors.New("owner and context are required")
	}
	if startingCash.IsNegative() {
		return ledger.Portfolio{}, fmt.Errorf("starting cash must not be negative, got %s", startingCash)
	}

	p := ledger.Portfolio{
		ID:        id.New(),
		OwnerID:   ownerID,
		ContextID: contextID,
		Cash:      startingCash,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.CreatePortfolio(p); err != nil {
		return ledger.Portfolio{}, err
	}

	e.log.Info().
		Str("portfolio", p.ID).
		Str("owner", ownerID).
		Str("context", contextID).
		Str("cash", startingCash.String()).
		Msg("portfolio created")
	return p, nil
}

// GetPortfolio looks a portfolio up by its (owner, context) pair.
func (e *Engine) GetPortfolio(ctx context.Context, ownerID, contextID string) (ledger.Portfolio, error) {
	_ = ctx
	return e.store.PortfolioByOwner(ownerID, contextID)
}

// GetHolding returns the portfolio's position in symbol. Absence is not an
// error: it is a zero-share holding.
func (e *Engine) GetHolding(ctx context.Context, portfolioID, symbol string) (ledger.Holding, error) {
	_ = ctx
	h, err := e.store.Holding(portfolioID, symbol)
	if errors.Is(err, ledger.ErrNotFound) {
		return ledger.Holding{
			PortfolioID: portfolioID,
			Symbol:      symbol,
			Basis:       decimal.Zero,
		}, nil
	}
	return h, err
}

// History returns the portfolio's append-only transaction record, oldest
// first.
func (e *Engine) History(ctx context.Context, portfolioID string) ([]ledger.Transaction, error) {
	_ = ctx
	return e.store.Transactions(portfolioID)
}

// JoinLeague registers the member and creates their league portfolio, then
// announces the join. Joining twice fails with ledger.ErrAlreadyExists.
func (e *Engine) JoinLeague(ctx context.Context, leagueID, userID string, admin bool, startingCash decimal.Decimal) (ledger.Portfolio, error) {
	member := ledger.LeagueMember{
		LeagueID: leagueID,
		UserID:   userID,
		Admin:    admin,
		JoinedAt: time.Now().UTC(),
	}
	if err := e.store.AddMember(member); err != nil {
		return ledger.Portfolio{}, err
	}

	p, err := e.CreatePortfolio(ctx, userID, leagueID, startingCash)
	if err != nil {
		// Undo the membership so a retry can start clean; a member without a
		// portfolio would be invisible on the leaderboard yet unable to rejoin.
		if rmErr := e.store.RemoveMember(leagueID, userID); rmErr != nil {
			e.log.Error().Err(rmErr).
				Str("league", leagueID).
				Str("user", userID).
				Msg("membership rollback failed after portfolio creation failure")
		}
		return ledger.Portfolio{}, err
	}

	e.emitter.Publish(event.MemberJoined, event.Payload{
		LeagueID:    leagueID,
		UserID:      userID,
		PortfolioID: p.ID,
	})
	return p, nil
}

// DeleteLeague removes the league and everything it owns: membership rows,
// league portfolios, their holdings and transaction history.
func (e *Engine) DeleteLeague(ctx context.Context, leagueID string) error {
	_ = ctx
	if err := e.store.DeleteLeague(leagueID); err != nil {
		return err
	}
	e.log.Info().Str("league", leagueID).Msg("league deleted")
	return nil
}
