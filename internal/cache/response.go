package cache

import (
	"context"
	"crypto/sha1"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/movie-reservation/internal/config"
	"github.com/iliyamo/movie-reservation/internal/logger"
)

// ResponseKey is the Redis key the response cache stores a request under.
// It keys on the concrete request path (so each screening gets its own
// entry), optionally the method and query.
func ResponseKey(cfg config.CacheConfig, method, path, rawQuery string) string {
	var parts []string
	switch strings.ToLower(cfg.KeyStrategy) {
	case "path":
		parts = []string{"path", path}
	case "method_path_query":
		parts = []string{"method", method, "path", path, "q", rawQuery}
	default: // "route_query"
		parts = []string{"path", path, "q", rawQuery}
	}
	sum := sha1.Sum([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("%s:%x", cfg.Prefix, sum[:])
}

// Responses drops cached responses of a per-screening route.  Only the
// query-less entry is addressable; requests carrying a query string age
// out with the cache TTL.
type Responses struct {
	rdb    *redis.Client
	cfg    config.CacheConfig
	pathOf func(screeningID uint64) string
	log    logger.Logger
}

// NewResponses returns an invalidator for the route whose request path
// for a screening is pathOf(id).  It does nothing when the response cache
// is disabled.
func NewResponses(rdb *redis.Client, cfg config.CacheConfig, pathOf func(uint64) string, log logger.Logger) *Responses {
	if !cfg.Enabled {
		rdb = nil
	}
	return &Responses{rdb: rdb, cfg: cfg, pathOf: pathOf, log: log}
}

func (r *Responses) Invalidate(ctx context.Context, screeningIDs ...uint64) {
	if r == nil || r.rdb == nil || len(screeningIDs) == 0 {
		return
	}
	var keys []string
	for _, id := range screeningIDs {
		path := r.pathOf(id)
		for method := range r.cfg.Methods {
			keys = append(keys, ResponseKey(r.cfg, method, path, ""))
		}
	}
	if len(keys) == 0 {
		return
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		r.log.Warn("response cache invalidate failed", "screening_ids", screeningIDs, "error", err)
	}
}
