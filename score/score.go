// Package score derives league leaderboards from ledger state and live
// prices. The leaderboard is never authoritative: it is recomputed in full
// from portfolios + holdings + quotes, and the rank cache only exists for
// fast reads.
package score

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/stockleague/event"
	"github.com/rustyeddy/stockleague/ledger"
	"github.com/rustyeddy/stockleague/market"
)

// Entry is one member's derived standing. Rank is 1-based.
type Entry struct {
	LeagueID   string
	UserID     string
	Cash       decimal.Decimal
	StockValue decimal.Decimal
	TotalValue decimal.Decimal
	Rank       int
}

// Recomputer is the scoring engine. It is safe for concurrent use; two
// recomputes of the same league serialize against each other, different
// leagues never block one another.
type Recomputer struct {
	store   ledger.Store
	oracle  market.Oracle
	cache   Cache
	emitter *event.Emitter
	log     *log.Logger

	// total-value thresholds that trigger milestone_reached when crossed
	// upward, ascending order
	milestones []decimal.Decimal

	leagueMu sync.Map // leagueID -> *sync.Mutex
}

func NewRecomputer(store ledger.Store, oracle market.Oracle, cache Cache, emitter *event.Emitter, milestones []decimal.Decimal, logger *log.Logger) *Recomputer {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if logger == nil {
		logger = &log.DefaultLogger
	}
	sorted := make([]decimal.Decimal, len(milestones))
	copy(sorted, milestones)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	return &Recomputer{
		store:      store,
		oracle:     oracle,
		cache:      cache,
		emitter:    emitter,
		log:        logger,
		milestones: sorted,
	}
}

func (r *Recomputer) lockLeague(leagueID string) func() {
	v, _ := r.leagueMu.LoadOrStore(leagueID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// RecomputeLeaderboard rebuilds the league's standings from a consistent
// ledger snapshot and live prices, replaces the cached entries wholesale,
// and returns the new ordering.
//
// A symbol the oracle cannot price contributes at its cost basis instead of
// zero; the fallback is logged, never silent. Ordering is deterministic:
// total value descending, ties broken by earliest portfolio creation, then
// by user id.
func (r *Recomputer) RecomputeLeaderboard(ctx context.Context, leagueID string) ([]Entry, error) {
	unlock := r.lockLeague(leagueID)
	defer unlock()
	return r.recomputeLocked(ctx, leagueID)
}

func (r *Recomputer) recomputeLocked(ctx context.Context, leagueID string) ([]Entry, error) {
	states, err := r.store.LeagueSnapshot(leagueID)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(states))
	created := make(map[string]int64, len(states)) // userID -> portfolio creation, for tie-break
	for _, st := range states {
		stock := decimal.Zero
		for _, h := range st.Holdings {
			if h.Shares == 0 {
				continue
			}
			q, err := r.oracle.Lookup(ctx, h.Symbol)
			if err != nil || !q.Price.IsPositive() {
				// Transient quote outage: value at cost basis rather than
				// understating the portfolio to zero.
				r.log.Warn().
					Str("league", leagueID).
					Str("user", st.Member.UserID).
					Str("symbol", h.Symbol).
					Err(err).
					Msg("quote unavailable, valuing holding at cost basis")
				stock = stock.Add(h.CostValue())
				continue
			}
			stock = stock.Add(h.MarketValue(q.Price))
		}

		entries = append(entries, Entry{
			LeagueID:   leagueID,
			UserID:     st.Member.UserID,
			Cash:       st.Portfolio.Cash,
			StockValue: stock,
			TotalValue: st.Portfolio.Cash.Add(stock),
		})
		created[st.Member.UserID] = st.Portfolio.CreatedAt.UnixNano()
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].TotalValue.Equal(entries[j].TotalValue) {
			return entries[i].TotalValue.GreaterThan(entries[j].TotalValue)
		}
		ci, cj := created[entries[i].UserID], created[entries[j].UserID]
		if ci != cj {
			return ci < cj
		}
		return entries[i].UserID < entries[j].UserID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}

	prev, hadPrev, err := r.cache.Get(ctx, leagueID)
	if err != nil {
		r.log.Warn().Err(err).Str("league", leagueID).Msg("leaderboard cache read failed")
		hadPrev = false
	}

	// The cache is replaced whole, never patched entry by entry.
	if err := r.cache.Put(ctx, leagueID, entries); err != nil {
		r.log.Warn().Err(err).Str("league", leagueID).Msg("leaderboard cache write failed")
	}

	if hadPrev {
		r.announceChanges(leagueID, prev, entries)
	}
	return entries, nil
}

// announceChanges publishes rank_changed and milestone_reached events by
// diffing the previous cached standings against the new ones.
func (r *Recomputer) announceChanges(leagueID string, prev, next []Entry) {
	if r.emitter == nil {
		return
	}

	prevByUser := make(map[string]Entry, len(prev))
	for _, p := range prev {
		prevByUser[p.UserID] = p
	}

	for _, e := range next {
		old, ok := prevByUser[e.UserID]
		if !ok {
			continue
		}
		if old.Rank != e.Rank {
			r.emitter.Publish(event.RankChanged, event.Payload{
				LeagueID:   leagueID,
				UserID:     e.UserID,
				Rank:       e.Rank,
				PrevRank:   old.Rank,
				TotalValue: e.TotalValue,
			})
		}
		for _, m := range r.milestones {
			if old.TotalValue.LessThan(m) && e.TotalValue.GreaterThanOrEqual(m) {
				r.emitter.Publish(event.MilestoneReached, event.Payload{
					LeagueID:   leagueID,
					UserID:     e.UserID,
					Rank:       e.Rank,
					TotalValue: e.TotalValue,
					Milestone:  m,
				})
			}
		}
	}
}

// Leaderboard is the fast read: cached entries when present, a full
// recompute on a cache miss.
func (r *Recomputer) Leaderboard(ctx context.Context, leagueID string) ([]Entry, error) {
	entries, ok, err := r.cache.Get(ctx, leagueID)
	if err != nil {
		r.log.Warn().Err(err).Str("league", leagueID).Msg("leaderboard cache read failed")
	} else if ok {
		return entries, nil
	}
	return r.RecomputeLeaderboard(ctx, leagueID)
}

// Recompute satisfies exchange.LeaderboardRefresher.
func (r *Recomputer) Recompute(ctx context.Context, leagueID string) error {
	_, err := r.RecomputeLeaderboard(ctx, leagueID)
	return err
}

// RunPeriodic refreshes the given leagues on a fixed interval until ctx is
// done. This catches price drift in leagues where nobody is trading; the
// per-trade recompute handles the rest.
func (r *Recomputer) RunPeriodic(ctx context.Context, interval time.Duration, leagues func() []string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, leagueID := range leagues() {
				if _, err := r.RecomputeLeaderboard(ctx, leagueID); err != nil {
					r.log.Warn().Err(err).Str("league", leagueID).Msg("periodic leaderboard refresh failed")
				}
			}
		}
	}
}
