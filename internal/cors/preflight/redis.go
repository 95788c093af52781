// SPDX-License-Identifier: MIT

package preflight

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	xglog "github.com/Seongyun-Jeong/chromium-etc-sub005/internal/log"
)

// RedisCache shares preflight results between gateway instances. Entries
// expire on the Redis side using the result lifetime, so a restarted
// instance never reads a grant past its Access-Control-Max-Age.
type RedisCache struct {
	client *redis.Client
	logger zerolog.Logger
	now    func() time.Time
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisCache connects and verifies the Redis backend.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger := xglog.WithComponent("preflight-cache")
	logger.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("connected to Redis preflight cache")

	return &RedisCache{client: client, logger: logger, now: time.Now}, nil
}

// NewRedisCacheFromClient wraps an existing client, mainly for tests.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{
		client: client,
		logger: xglog.WithComponent("preflight-cache"),
		now:    time.Now,
	}
}

func (c *RedisCache) Get(key Key) (*Result, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := c.client.Get(ctx, key.String()).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn().Err(err).Msg("redis get failed")
		return nil, false
	}
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		c.logger.Warn().Err(err).Msg("corrupt preflight cache entry")
		return nil, false
	}
	if result.Expired(c.now()) {
		return nil, false
	}
	return &result, true
}

func (c *RedisCache) Put(key Key, result *Result) {
	ttl := time.Until(result.Expiry)
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn().Err(err).Msg("marshal preflight result failed")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.client.Set(ctx, key.String(), raw, ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("redis set failed")
	}
}

func (c *RedisCache) InvalidatePrivateNetwork(key Key) {
	key.PrivateNetwork = true
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.client.Del(ctx, key.String()).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("redis del failed")
	}
}

func (c *RedisCache) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	iter := c.client.Scan(ctx, 0, "preflight:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Warn().Err(err).Msg("redis del failed")
		}
	}
}
