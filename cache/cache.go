// Package cache provides a Redis-backed cache for query transformations,
// so repeated questions skip the classify and decompose LLM calls.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sweetpotato0/api-universe/pkg/logging"
)

// RedisConfig holds Redis connection settings for the transform cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// TransformCache caches per-query classification and decomposition results.
// All operations are fail-soft: a Redis error is logged and treated as a miss,
// never surfaced to the pipeline.
type TransformCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewTransformCache creates a Redis-backed transform cache.
func NewTransformCache(config *RedisConfig) *TransformCache {
	if config == nil {
		config = &RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "api-universe:transform:",
			TTL:    time.Hour,
		}
	}
	if config.Prefix == "" {
		config.Prefix = "api-universe:transform:"
	}
	if config.TTL <= 0 {
		config.TTL = time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &TransformCache{
		client: client,
		prefix: config.Prefix,
		ttl:    config.TTL,
		logger: logging.WithComponent("cache"),
	}
}

// GetClassification returns the cached query type for a query, if present.
func (c *TransformCache) GetClassification(ctx context.Context, query string) (string, bool) {
	raw, err := c.client.Get(ctx, c.key("classify", query)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("classification cache read failed", "error", err)
		}
		return "", false
	}
	return raw, true
}

// SetClassification stores the query type for a query.
func (c *TransformCache) SetClassification(ctx context.Context, query, queryType string) {
	if err := c.client.Set(ctx, c.key("classify", query), queryType, c.ttl).Err(); err != nil {
		c.logger.Warn("classification cache write failed", "error", err)
	}
}

// GetDecomposition returns the cached sub-queries for a query, if present.
func (c *TransformCache) GetDecomposition(ctx context.Context, query string) ([]string, bool) {
	raw, err := c.client.Get(ctx, c.key("decompose", query)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("decomposition cache read failed", "error", err)
		}
		return nil, false
	}
	var subQueries []string
	if err := json.Unmarshal([]byte(raw), &subQueries); err != nil {
		c.logger.Warn("decomposition cache entry corrupt", "error", err)
		return nil, false
	}
	if len(subQueries) == 0 {
		return nil, false
	}
	return subQueries, true
}

// SetDecomposition stores the sub-queries for a query.
func (c *TransformCache) SetDecomposition(ctx context.Context, query string, subQueries []string) {
	if len(subQueries) == 0 {
		return
	}
	raw, err := json.Marshal(subQueries)
	if err != nil {
		c.logger.Warn("decomposition cache encode failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, c.key("decompose", query), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("decomposition cache write failed", "error", err)
	}
}

// Ping checks the Redis connection.
func (c *TransformCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (c *TransformCache) Close() error {
	return c.client.Close()
}

func (c *TransformCache) key(kind, query string) string {
	sum := sha256.Sum256([]byte(query))
	return fmt.Sprintf("%s%s:%s", c.prefix, kind, hex.EncodeToString(sum[:]))
}
