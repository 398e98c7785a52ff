// SPDX-License-Identifier: MIT

package capabilities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const redisKeyPrefix = "loki:caps:"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // Redis server address (host:port)
	Password string // Redis password (optional)
	DB       int    // Redis database number
	TTL      time.Duration
}

// RedisStore keeps capability documents in Redis as JSON, keyed by token.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig, logger zerolog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Dur("ttl", cfg.TTL).
		Msg("connected to Redis capability store")

	return newRedisStoreWithClient(client, cfg.TTL, logger), nil
}

func newRedisStoreWithClient(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, logger: logger}
}

// Load fetches a capability set. A missing key is (zero, false, nil).
func (s *RedisStore) Load(ctx context.Context, token string) (ClientCapabilities, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	val, err := s.client.Get(ctx, redisKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return ClientCapabilities{}, false, nil
	}
	if err != nil {
		return ClientCapabilities{}, false, fmt.Errorf("redis get: %w", err)
	}

	var caps ClientCapabilities
	if err := json.Unmarshal(val, &caps); err != nil {
		return ClientCapabilities{}, false, fmt.Errorf("decode capabilities: %w", err)
	}
	return caps, true, nil
}

// Save stores a capability set, refreshing its TTL.
func (s *RedisStore) Save(ctx context.Context, token string, caps ClientCapabilities) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	data, err := json.Marshal(caps)
	if err != nil {
		return fmt.Errorf("encode capabilities: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+token, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a capability set.
func (s *RedisStore) Delete(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.client.Del(ctx, redisKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// HealthCheck checks if Redis is available.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
