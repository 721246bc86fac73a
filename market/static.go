package market

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// StaticOracle is an in-memory oracle for simulations and tests. Prices are
// set explicitly; symbols can be marked as failing to simulate a quote
// outage without forgetting the symbol.
type StaticOracle struct {
	mu     sync.RWMutex
	quotes map[string]Quote
	down   map[string]bool
}

func NewStaticOracle() *StaticOracle {
	return &StaticOracle{
		quotes: make(map[string]Quote),
		down:   make(map[string]bool),
	}
}

// Set records the current price for a symbol and clears any outage flag.
func (o *StaticOracle) Set(symbol string, price decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.quotes[symbol] = Quote{Symbol: symbol, Price: price, Time: time.Now().UTC()}
	delete(o.down, symbol)
}

// SetFloat is a convenience for demos and tests.
func (o *StaticOracle) SetFloat(symbol string, price float64) {
	o.Set(symbol, decimal.NewFromFloat(price))
}

// Fail marks a symbol as temporarily unquotable. Lookup returns
// ErrQuoteUnavailable until Set is called again.
func (o *StaticOracle) Fail(symbol string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.down[symbol] = true
}

func (o *StaticOracle) Lookup(_ context.Context, symbol string) (Quote, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.down[symbol] {
		return Quote{}, ErrQuoteUnavailable
	}
	q, ok := o.quotes[symbol]
	if !ok {
		return Quote{}, ErrSymbolNotFound
	}
	return q, nil
}
