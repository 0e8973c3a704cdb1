package app

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisCacheInvalidator deletes cached pool listings after pool writes.
type RedisCacheInvalidator struct {
	client redis.UniversalClient
	keys   []string
	logger logrus.FieldLogger
}

// NewRedisCacheInvalidator deletes keys exactly as configured; they are shared with
// the readers that populate the listings.
func NewRedisCacheInvalidator(client redis.UniversalClient, keys []string, logger logrus.FieldLogger) *RedisCacheInvalidator {
	cleaned := make([]string, 0, len(keys))
	for _, key := range keys {
		if key = strings.TrimSpace(key); key != "" {
			cleaned = append(cleaned, key)
		}
	}
	return &RedisCacheInvalidator{client: client, keys: cleaned, logger: logger}
}

// Keys returns the keys this invalidator deletes.
func (c *RedisCacheInvalidator) Keys() []string {
	return append([]string(nil), c.keys...)
}

// InvalidatePools is best effort; a failure only leaves stale listings until their TTL.
func (c *RedisCacheInvalidator) InvalidatePools(ctx context.Context) {
	if c == nil || c.client == nil || len(c.keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, c.keys...).Err(); err != nil {
		c.logger.WithFields(logrus.Fields{"component": "pool_cache", "keys": c.keys}).WithError(err).Warn("pool cache invalidation failed")
	}
}
