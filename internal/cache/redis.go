// Package cache wraps the Redis connection shared by the notification bus and
// the reconciler's run lock.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"tipsterarena/backend/internal/config"
)

const (
	KeyReconcileLock = "lock:reconcile:%s"
	KeyNotifyHistory = "notify:history:%s"
	KeyNotifyChannel = "notify:%s"
)

// ErrLockHeld is returned by TryLock when another holder owns the key
var ErrLockHeld = errors.New("lock held by another process")

type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects and pings Redis
func NewRedisCache(ctx context.Context, cfg *config.Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info().
		Str("addr", cfg.RedisAddr()).
		Int("db", cfg.RedisDB).
		Msg("Redis connection established")

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Client exposes the underlying client for pub/sub users
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// Close closes the connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Only the token that acquired the lock may release it
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// TryLock acquires key for ttl with SET NX PX. The returned func releases the
// lock if it is still ours; the TTL bounds a crashed holder.
func (c *RedisCache) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()

	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, c.client, []string{key}, token).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to release lock")
		}
	}
	return release, nil
}
