// Package cache keeps recent search pages in Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ria-search/internal/common/logger"
	"ria-search/internal/common/metrics"
	"ria-search/internal/models"
)

const defaultPrefix = "ria-search:"

type SearchCache struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
	logger logger.Logger
}

func New(client *redis.Client, ttl time.Duration, prefix string, log logger.Logger) *SearchCache {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &SearchCache{
		redis:  client,
		ttl:    ttl,
		prefix: prefix,
		logger: log.WithFields(map[string]interface{}{"component": "search-cache"}),
	}
}

// Key derives the cache key of a request. Query case is kept because the
// query is embedded as typed; surrounding whitespace, state case and fund type
// spelling are normalized.
func (c *SearchCache) Key(req models.SearchRequest) string {
	req.Query = strings.TrimSpace(req.Query)
	req.Filters.State = models.NormalizeState(req.Filters.State)
	req.Filters.City = strings.ToLower(strings.TrimSpace(req.Filters.City))
	if ft, ok := models.CanonicalFundType(req.Filters.FundType); ok {
		req.Filters.FundType = ft
	}

	raw, _ := json.Marshal(req)
	sum := sha256.Sum256(raw)
	return c.prefix + "search:" + hex.EncodeToString(sum[:])
}

// Get returns the cached page, or false on a miss. Redis errors count as
// misses.
func (c *SearchCache) Get(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, bool) {
	key := c.Key(req)
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			metrics.CacheLookups.WithLabelValues("error").Inc()
			c.logger.Warn("cache get failed", map[string]interface{}{"key": key, "error": err.Error()})
			return nil, false
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	var resp models.SearchResponse
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("discarding undecodable cache entry", map[string]interface{}{"key": key, "error": err.Error()})
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return &resp, true
}

// Set stores a page. Degraded pages are not cached so a recovered backend is
// visible on the next request.
func (c *SearchCache) Set(ctx context.Context, req models.SearchRequest, resp *models.SearchResponse) {
	if resp == nil || hasFailedPath(resp.Degraded) {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	key := c.Key(req)
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", map[string]interface{}{"key": key, "error": err.Error()})
	}
}

// hasFailedPath ignores paths skipped for lack of input; those are a property
// of the request, not of backend health.
func hasFailedPath(degraded []string) bool {
	for _, d := range degraded {
		if !strings.HasSuffix(d, ":skipped") {
			return true
		}
	}
	return false
}
