package exchange

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrBusy means the portfolio's exclusion could not be acquired within the
// configured timeout. Transient; callers may retry with backoff.
var ErrBusy = errors.New("portfolio busy, try again")

// InsufficientFundsError is the expected outcome of a BUY the portfolio
// cannot afford. Available and Required let the caller render a precise
// message.
type InsufficientFundsError struct {
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %s, required %s",
		e.Available.StringFixed(2), e.Required.StringFixed(2))
}

// InsufficientSharesError is the expected outcome of a SELL for more shares
// than the portfolio owns.
type InsufficientSharesError struct {
	Symbol    string
	Owned     int64
	Requested int64
}

func (e *InsufficientSharesError) Error() string {
	return fmt.Sprintf("insufficient shares of %s: own %d, requested %d",
		e.Symbol, e.Owned, e.Requested)
}

// InvariantViolationError indicates ledger state that should be unreachable
// (negative cash or shares about to be committed). It aborts the operation
// before anything is written and is always logged loudly; it signals a bug,
// not a user mistake.
type InvariantViolationError struct {
	PortfolioID string
	Detail      string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("ledger invariant violated for portfolio %s: %s", e.PortfolioID, e.Detail)
}
