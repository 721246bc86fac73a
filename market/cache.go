package market

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/phuslu/log"
	"github.com/shopspring/decimal"
)

// CachedOracle decorates an Oracle with a Redis TTL cache so repeated
// lookups (leaderboard recomputes hit every symbol a league holds) do not
// hammer the upstream quote source.
//
// A cache read or write failure is never an oracle failure: the decorator
// falls through to the upstream oracle and logs the cache error.
type CachedOracle struct {
	next Oracle
	rdb  *redis.Client
	ttl  time.Duration
	log  *log.Logger
}

func NewCachedOracle(next Oracle, rdb *redis.Client, ttl time.Duration, logger *log.Logger) *CachedOracle {
	if logger == nil {
		logger = &log.DefaultLogger
	}
	return &CachedOracle{next: next, rdb: rdb, ttl: ttl, log: logger}
}

func quoteKey(symbol string) string { return "quote:" + symbol }

func (c *CachedOracle) Lookup(ctx context.Context, symbol string) (Quote, error) {
	if s, err := c.rdb.Get(ctx, quoteKey(symbol)).Result(); err == nil {
		if p, perr := decimal.NewFromString(s); perr == nil {
			return Quote{Symbol: symbol, Price: p, Time: time.Now().UTC()}, nil
		}
	} else if err != redis.Nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("quote cache read failed")
	}

	q, err := c.next.Lookup(ctx, symbol)
	if err != nil {
		return Quote{}, err
	}

	if err := c.rdb.Set(ctx, quoteKey(symbol), q.Price.String(), c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("quote cache write failed")
	}
	return q, nil
}
