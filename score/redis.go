package score

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
)

// RedisCache keeps leaderboard standings in Redis: the full entry list as a
// JSON value for reads, plus a sorted set per league so widgets and bots
// outside this process can read ranks directly with ZREVRANGE.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func leaderboardKey(leagueID string) string  { return "leaderboard:" + leagueID }
func leaderboardZKey(leagueID string) string { return "leaderboard:" + leagueID + ":rank" }

func (c *RedisCache) Put(ctx context.Context, leagueID string, entries []Entry) error {
	blob, err := json.Marshal(entries)
	if err != nil {
		return err
	}

	zmembers := make([]*redis.Z, 0, len(entries))
	for _, e := range entries {
		score, _ := e.TotalValue.Float64()
		zmembers = append(zmembers, &redis.Z{Score: score, Member: e.UserID})
	}

	// One pipeline so readers never see the JSON and the sorted set out of
	// step for longer than a round trip.
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, leaderboardKey(leagueID), blob, 0)
	pipe.Del(ctx, leaderboardZKey(leagueID))
	if len(zmembers) > 0 {
		pipe.ZAdd(ctx, leaderboardZKey(leagueID), zmembers...)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisCache) Get(ctx context.Context, leagueID string) ([]Entry, bool, error) {
	blob, err := c.rdb.Get(ctx, leaderboardKey(leagueID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var entries []Entry
	if err := json.Unmarshal(blob, &entries); err != nil {
		return nil, false, err
	}
	return entries, true, nil
}

func (c *RedisCache) Invalidate(ctx context.Context, leagueID string) error {
	return c.rdb.Del(ctx, leaderboardKey(leagueID), leaderboardZKey(leagueID)).Err()
}
