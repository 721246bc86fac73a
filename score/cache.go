package score

import (
	"context"
	"sync"
)

// Cache stores derived leaderboard standings for fast reads. Implementations
// must replace a league's entries atomically: readers see either the old
// list or the new one, never a mix.
type Cache interface {
	Put(ctx context.Context, leagueID string, entries []Entry) error
	Get(ctx context.Context, leagueID string) ([]Entry, bool, error)
	Invalidate(ctx context.Context, leagueID string) error
}

// MemoryCache is the default in-process cache.
type MemoryCache struct {
	mu       sync.RWMutex
	byLeague map[string][]Entry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{byLeague: make(map[string][]Entry)}
}

func (c *MemoryCache) Put(_ context.Context, leagueID string, entries []Entry) error {
	cp := make([]Entry, len(entries))
	copy(cp, entries)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.byLeague[leagueID] = cp
	return nil
}

func (c *MemoryCache) Get(_ context.Context, leagueID string) ([]Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries, ok := c.byLeague[leagueID]
	if !ok {
		return nil, false, nil
	}
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return cp, true, nil
}

func (c *MemoryCache) Invalidate(_ context.Context, leagueID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byLeague, leagueID)
	return nil
}
