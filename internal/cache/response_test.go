package cache

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/movie-reservation/internal/config"
	"github.com/iliyamo/movie-reservation/internal/logger"
)

func seatMapPath(id uint64) string { return fmt.Sprintf("/v1/screenings/%d/seats", id) }

func TestResponseKey_Strategies(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "path"}
	assert.Equal(t,
		ResponseKey(cfg, http.MethodGet, "/a", "x=1"),
		ResponseKey(cfg, http.MethodHead, "/a", ""))

	cfg.KeyStrategy = "route_query"
	assert.NotEqual(t, ResponseKey(cfg, http.MethodGet, "/a", "x=1"), ResponseKey(cfg, http.MethodGet, "/a", ""))
	assert.Equal(t, ResponseKey(cfg, http.MethodGet, "/a", ""), ResponseKey(cfg, http.MethodHead, "/a", ""))

	cfg.KeyStrategy = "method_path_query"
	assert.NotEqual(t, ResponseKey(cfg, http.MethodGet, "/a", ""), ResponseKey(cfg, http.MethodHead, "/a", ""))
	assert.Contains(t, ResponseKey(cfg, http.MethodGet, "/a", ""), "cache:")
}

func TestResponses_Invalidate(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cfg := config.CacheConfig{
		Enabled:     true,
		Methods:     map[string]bool{http.MethodGet: true, http.MethodHead: true},
		TTL:         time.Minute,
		KeyStrategy: "method_path_query",
		Prefix:      "cache",
	}
	for _, m := range []string{http.MethodGet, http.MethodHead} {
		for _, id := range []uint64{1, 2} {
			rdb.Set(ctx, ResponseKey(cfg, m, seatMapPath(id), ""), "payload", time.Minute)
		}
	}

	NewResponses(rdb, cfg, seatMapPath, logger.NewNop()).Invalidate(ctx, 1)

	assert.False(t, mr.Exists(ResponseKey(cfg, http.MethodGet, seatMapPath(1), "")))
	assert.False(t, mr.Exists(ResponseKey(cfg, http.MethodHead, seatMapPath(1), "")))
	assert.True(t, mr.Exists(ResponseKey(cfg, http.MethodGet, seatMapPath(2), "")))
}

func TestResponses_Disabled(t *testing.T) {
	var nilResponses *Responses
	nilResponses.Invalidate(context.Background(), 1)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cfg := config.CacheConfig{Enabled: false, Methods: map[string]bool{http.MethodGet: true}, Prefix: "cache"}
	key := ResponseKey(cfg, http.MethodGet, seatMapPath(1), "")
	rdb.Set(context.Background(), key, "payload", time.Minute)
	NewResponses(rdb, cfg, seatMapPath, logger.NewNop()).Invalidate(context.Background(), 1)
	assert.True(t, mr.Exists(key))
}
