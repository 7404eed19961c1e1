// Package cache keeps a short-lived Redis copy of each screening's
// available-seat counter for the public availability endpoint.  The
// database counter stays authoritative: every commit that moves it calls
// Invalidate, and any Redis failure degrades to a cache miss.
//
// Each screening also carries a version key that Invalidate bumps.  A
// reader that misses gets the current version back from Get and hands it
// to Set, which only stores the value if no invalidation happened in
// between.  A counter read from the database before a concurrent commit
// therefore never lands in Redis after that commit's Invalidate.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/movie-reservation/internal/config"
	"github.com/iliyamo/movie-reservation/internal/logger"
)

// versionTTL bounds how long an idle screening's version key lives.  It
// only has to outlast the gap between a reader's Get and its Set.
const versionTTL = time.Hour

// setIfVersion stores ARGV[1] under KEYS[1] for ARGV[3] ms when the
// version at KEYS[2] (absent means 0) still equals ARGV[2].
var setIfVersion = redis.NewScript(`
local v = redis.call('GET', KEYS[2]) or '0'
if v ~= ARGV[2] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

type Availability struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	log    logger.Logger
}

// NewAvailability returns a cache backed by rdb.  A nil client, a
// disabled config or a non-positive TTL yields a cache that always misses.
func NewAvailability(rdb *redis.Client, cfg config.AvailabilityCacheConfig, log logger.Logger) *Availability {
	if !cfg.Enabled || cfg.TTL <= 0 {
		rdb = nil
	}
	return &Availability{rdb: rdb, ttl: cfg.TTL, prefix: cfg.Prefix, log: log}
}

func (c *Availability) key(screeningID uint64) string {
	return fmt.Sprintf("%s:screening:%d", c.prefix, screeningID)
}

func (c *Availability) versionKey(screeningID uint64) string {
	return c.key(screeningID) + ":v"
}

func (c *Availability) enabled() bool { return c != nil && c.rdb != nil }

// Get returns the cached counter and whether it was present.  On a miss
// version is the token Set expects; -1 means Set will not store anything.
func (c *Availability) Get(ctx context.Context, screeningID uint64) (n int, version int64, ok bool) {
	if !c.enabled() {
		return 0, -1, false
	}
	vals, err := c.rdb.MGet(ctx, c.key(screeningID), c.versionKey(screeningID)).Result()
	if err != nil {
		c.log.Warn("availability cache get failed", "screening_id", screeningID, "error", err)
		return 0, -1, false
	}
	version = 0
	if s, isStr := vals[1].(string); isStr {
		if version, err = strconv.ParseInt(s, 10, 64); err != nil {
			return 0, -1, false
		}
	}
	s, isStr := vals[0].(string)
	if !isStr {
		return 0, version, false
	}
	if n, err = strconv.Atoi(s); err != nil {
		return 0, version, false
	}
	return n, version, true
}

// Set stores n if the screening has not been invalidated since the Get
// that returned version.
func (c *Availability) Set(ctx context.Context, screeningID uint64, n int, version int64) {
	if !c.enabled() || version < 0 {
		return
	}
	keys := []string{c.key(screeningID), c.versionKey(screeningID)}
	err := setIfVersion.Run(ctx, c.rdb, keys, n, strconv.FormatInt(version, 10), c.ttl.Milliseconds()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.log.Warn("availability cache set failed", "screening_id", screeningID, "error", err)
	}
}

// Invalidate drops the cached counter for each screening and bumps its
// version so in-flight readers cannot repopulate it with an older value.
func (c *Availability) Invalidate(ctx context.Context, screeningIDs ...uint64) {
	if !c.enabled() || len(screeningIDs) == 0 {
		return
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range screeningIDs {
			pipe.Incr(ctx, c.versionKey(id))
			pipe.Expire(ctx, c.versionKey(id), versionTTL)
			pipe.Del(ctx, c.key(id))
		}
		return nil
	})
	if err != nil {
		c.log.Warn("availability cache invalidate failed", "screening_ids", screeningIDs, "error", err)
	}
}
