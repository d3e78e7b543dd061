// Package cache wraps a Redis client used for two things: caching the
// analysis-config snapshot (written by the session task on each
// UPDATE_PARAMS and by the HTTP config handlers, read by GET /config),
// and storing short-lived HTTP session tokens.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config names the Redis connection.
type Config struct {
	Address  string
	Password string
	DB       int
}

// Cache wraps a redis.Client.
type Cache struct {
	rdb *redis.Client
}

// New constructs a Cache. It does not dial eagerly; the first command
// establishes the connection.
func New(cfg Config) *Cache {
	return &Cache{rdb: redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})}
}

// Ping verifies connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// PutConfigSnapshot caches a JSON-serializable config snapshot under a
// session key with a TTL.
func (c *Cache) PutConfigSnapshot(ctx context.Context, sessionID string, snapshot interface{}, ttl time.Duration) error {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal config snapshot: %w", err)
	}
	return c.rdb.Set(ctx, configKey(sessionID), body, ttl).Err()
}

// ConfigSnapshot fetches and decodes a cached config snapshot into out.
// A missing key reports ok=false with no error.
func (c *Cache) ConfigSnapshot(ctx context.Context, sessionID string, out interface{}) (bool, error) {
	body, err := c.rdb.Get(ctx, configKey(sessionID)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fetch config snapshot: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("decode config snapshot: %w", err)
	}
	return true, nil
}

// PutSessionToken caches an HTTP session token with a TTL.
func (c *Cache) PutSessionToken(ctx context.Context, token string, userID string, ttl time.Duration) error {
	return c.rdb.Set(ctx, sessionKey(token), userID, ttl).Err()
}

// SessionUser resolves a session token back to a user id.
func (c *Cache) SessionUser(ctx context.Context, token string) (string, bool, error) {
	userID, err := c.rdb.Get(ctx, sessionKey(token)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("fetch session token: %w", err)
	}
	return userID, true, nil
}

func configKey(sessionID string) string { return "signalengine:config:" + sessionID }
func sessionKey(token string) string    { return "signalengine:session:" + token }
