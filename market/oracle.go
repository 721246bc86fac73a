// Package market defines the price oracle: the external source of current
// market prices for ticker symbols. The ledger core never assumes freshness
// beyond "current at call time" and owns no caching guarantees of its own.
package market

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrSymbolNotFound means the oracle does not know the symbol at all.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrQuoteUnavailable means the symbol exists but no usable price could
	// be produced right now (outage, stale feed, non-positive price).
	ErrQuoteUnavailable = errors.New("quote unavailable")
)

// Quote is a point-in-time price for a symbol.
type Quote struct {
	Symbol string
	Price  decimal.Decimal
	Time   time.Time
}

// Oracle resolves a symbol to its current price.
type Oracle interface {
	Lookup(ctx context.Context, symbol string) (Quote, error)
}
