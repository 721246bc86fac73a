package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/stockleague/event"
	"github.com/rustyeddy/stockleague/ledger"
	"github.com/rustyeddy/stockleague/market"
	"github.com/rustyeddy/stockleague/pkg/id"
)

// TradeRequest is a validated-at-the-boundary trade intent: a closed
// BUY/SELL variant with strictly typed numeric fields.
type TradeRequest struct {
	PortfolioID string
	Symbol      string
	Side        ledger.Side
	Shares      int64
	Note        string
}

func (r TradeRequest) Validate() error {
	if r.PortfolioID == "" {
		return errors.New("portfolio id is required")
	}
	if r.Symbol == "" {
		return errors.New("symbol is required")
	}
	if !r.Side.Valid() {
		return fmt.Errorf("side must be %s or %s, got %q", ledger.Buy, ledger.Sell, r.Side)
	}
	if r.Shares <= 0 {
		return fmt.Errorf("shares must be positive, got %d", r.Shares)
	}
	return nil
}

// ExecuteTrade validates req against live state and the price oracle, then
// applies it atomically: holding delta, cash delta, and the transaction
// append either all commit or none do. The oracle is consulted exactly once;
// the returned price is the execution price.
//
// On success one trade_executed event is published and, for league
// portfolios, the league's leaderboard is recomputed. Both happen outside
// the portfolio's critical section, so neither can stall or fail the trade.
func (e *Engine) ExecuteTrade(ctx context.Context, req TradeRequest) (ledger.Transaction, error) {
	if err := req.Validate(); err != nil {
		return ledger.Transaction{}, err
	}

	q, err := e.oracle.Lookup(ctx, req.Symbol)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("quote %s: %w", req.Symbol, err)
	}
	if !q.Price.IsPositive() {
		return ledger.Transaction{}, fmt.Errorf("quote %s: non-positive price %s: %w",
			req.Symbol, q.Price, market.ErrQuoteUnavailable)
	}

	txn, portfolio, err := e.executeExclusive(ctx, req, q.Price)
	if err != nil {
		return ledger.Transaction{}, err
	}

	e.log.Info().
		Str("portfolio", portfolio.ID).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Int64("shares", req.Shares).
		Str("price", q.Price.String()).
		Str("cash_after", txn.CashAfter.String()).
		Msg("trade executed")

	e.emitter.Publish(event.TradeExecuted, event.Payload{
		LeagueID:    leagueOf(portfolio),
		UserID:      portfolio.OwnerID,
		PortfolioID: portfolio.ID,
		Symbol:      req.Symbol,
		Side:        string(req.Side),
		Shares:      req.Shares,
		Price:       q.Price,
		CashAfter:   txn.CashAfter,
	})

	if portfolio.League() && e.refresher != nil {
		// The trade is already durable; a recompute failure is an
		// operational problem, not a trade failure.
		if rerr := e.refresher.Recompute(ctx, portfolio.ContextID); rerr != nil {
			e.log.Warn().Err(rerr).
				Str("league", portfolio.ContextID).
				Msg("leaderboard recompute failed after trade")
		}
	}

	return txn, nil
}

func leagueOf(p ledger.Portfolio) string {
	if p.League() {
		return p.ContextID
	}
	return ""
}

// executeExclusive holds the portfolio's exclusion for the whole
// read-validate-write unit. Two trades on the same portfolio serialize
// here; trades on other portfolios never touch this slot.
func (e *Engine) executeExclusive(ctx context.Context, req TradeRequest, price decimal.Decimal) (ledger.Transaction, ledger.Portfolio, error) {
	release, err := e.locks.acquire(ctx, req.PortfolioID, e.opts.LockTimeout)
	if err != nil {
		return ledger.Transaction{}, ledger.Portfolio{}, err
	}
	defer release()

	var (
		txn       ledger.Transaction
		portfolio ledger.Portfolio
	)
	err = e.store.ExecTx(req.PortfolioID, func(tx ledger.Tx) error {
		var err error
		portfolio, err = tx.Portfolio(req.PortfolioID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		fee := e.opts.Commission

		var sharesDelta int64
		var cashDelta decimal.Decimal
		gross := price.Mul(decimal.NewFromInt(req.Shares))
		switch req.Side {
		case ledger.Buy:
			sharesDelta = req.Shares
			cashDelta = gross.Add(fee).Neg()
		case ledger.Sell:
			sharesDelta = -req.Shares
			cashDelta = gross.Sub(fee)
		}

		_, newCash, err := e.applyDelta(tx, portfolio, req.Symbol, sharesDelta, price, cashDelta, now)
		if err != nil {
			return err
		}

		txn = ledger.Transaction{
			ID:          id.New(),
			PortfolioID: portfolio.ID,
			Symbol:      req.Symbol,
			Side:        req.Side,
			Shares:      req.Shares,
			Price:       price,
			Fee:         fee,
			CashAfter:   newCash,
			ExecutedAt:  now,
			Note:        req.Note,
		}
		return tx.AppendTransaction(txn)
	})
	if err != nil {
		return ledger.Transaction{}, ledger.Portfolio{}, err
	}
	return txn, portfolio, nil
}

// applyDelta is the only primitive that mutates balances and holdings. It
// re-reads current state inside the transaction, validates the deltas, and
// writes the new holding and cash. BUY moves the average cost basis to the
// share-weighted mean; SELL leaves the basis untouched. A sold-out position
// stays as a zero row with a zero basis.
func (e *Engine) applyDelta(tx ledger.Tx, portfolio ledger.Portfolio, symbol string, sharesDelta int64, price, cashDelta decimal.Decimal, now time.Time) (ledger.Holding, decimal.Decimal, error) {
	holding, err := tx.Holding(portfolio.ID, symbol)
	if errors.Is(err, ledger.ErrNotFound) {
		holding = ledger.Holding{PortfolioID: portfolio.ID, Symbol: symbol, Basis: decimal.Zero}
	} else if err != nil {
		return ledger.Holding{}, decimal.Decimal{}, err
	}

	if sharesDelta < 0 && -sharesDelta > holding.Shares {
		return ledger.Holding{}, decimal.Decimal{}, &InsufficientSharesError{
			Symbol:    symbol,
			Owned:     holding.Shares,
			Requested: -sharesDelta,
		}
	}

	newCash := portfolio.Cash.Add(cashDelta)
	if cashDelta.IsNegative() && newCash.IsNegative() {
		return ledger.Holding{}, decimal.Decimal{}, &InsufficientFundsError{
			Available: portfolio.Cash,
			Required:  cashDelta.Neg(),
		}
	}

	newShares := holding.Shares + sharesDelta
	switch {
	case sharesDelta > 0:
		oldValue := holding.Basis.Mul(decimal.NewFromInt(holding.Shares))
		addValue := price.Mul(decimal.NewFromInt(sharesDelta))
		holding.Basis = oldValue.Add(addValue).Div(decimal.NewFromInt(newShares))
	case newShares == 0:
		holding.Basis = decimal.Zero
	}
	holding.Shares = newShares
	holding.UpdatedAt = now

	// Both were validated above; failing here means the validation logic
	// itself is broken, and the transaction must abort untouched.
	if newCash.IsNegative() || newShares < 0 {
		violation := &InvariantViolationError{
			PortfolioID: portfolio.ID,
			Detail: fmt.Sprintf("post-trade cash=%s shares=%d for %s",
				newCash, newShares, symbol),
		}
		e.log.Error().Err(violation).Msg("INVARIANT VIOLATION: aborting trade")
		return ledger.Holding{}, decimal.Decimal{}, violation
	}

	if err := tx.PutHolding(holding); err != nil {
		return ledger.Holding{}, decimal.Decimal{}, err
	}
	if err := tx.SetCash(portfolio.ID, newCash); err != nil {
		return ledger.Holding{}, decimal.Decimal{}, err
	}
	return holding, newCash, nil
}
