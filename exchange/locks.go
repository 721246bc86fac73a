package exchange

import (
	"context"
	"sync"
	"time"
)

// lockTable hands out one exclusive slot per portfolio id. Trades on the
// same portfolio serialize; trades on different portfolios run fully in
// parallel. Acquisition is bounded: a caller that cannot get the slot
// within the timeout gets ErrBusy instead of queuing forever.
type lockTable struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{slots: make(map[string]chan struct{})}
}

func (lt *lockTable) slot(key string) chan struct{} {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	s, ok := lt.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		lt.slots[key] = s
	}
	return s
}

// acquire takes the portfolio's slot, waiting at most timeout. The returned
// release func must be called exactly once.
func (lt *lockTable) acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	s := lt.slot(key)

	select {
	case s <- struct{}{}:
		return func() { <-s }, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s <- struct{}{}:
		return func() { <-s }, nil
	case <-timer.C:
		return nil, ErrBusy
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
