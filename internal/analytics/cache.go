package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "analytics:reports:version"

// reportCache stores serialized reports in Redis under a version
// namespace. Invalidation bumps the version counter, which orphans
// every existing entry at once; the orphans expire on their TTL.
type reportCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewReportCache creates a Redis-backed report cache. Returns nil when
// client is nil so callers can wire caching straight from config.
func NewReportCache(client *redis.Client, ttl time.Duration) *reportCache {
	if client == nil {
		return nil
	}
	return &reportCache{client: client, ttl: ttl}
}

func (c *reportCache) key(ctx context.Context, kind string, q Query) (string, error) {
	version, err := c.client.Get(ctx, cacheVersionKey).Result()
	if err == redis.Nil {
		version = "0"
	} else if err != nil {
		return "", err
	}
	return fmt.Sprintf("analytics:reports:%s:%s:%d:%d:%s:%s",
		version, kind, q.From.Unix(), q.To.Unix(), q.FormID, q.ListID), nil
}

// Get loads a cached report into dest. The second return is false on a
// miss.
func (c *reportCache) Get(ctx context.Context, kind string, q Query, dest interface{}) (bool, error) {
	key, err := c.key(ctx, kind, q)
	if err != nil {
		return false, err
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores a report under the current version namespace.
func (c *reportCache) Set(ctx context.Context, kind string, q Query, value interface{}) error {
	key, err := c.key(ctx, kind, q)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Invalidate bumps the version counter, orphaning all cached reports.
func (c *reportCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, cacheVersionKey).Err()
}
