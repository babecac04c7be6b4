package data

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/FlashBlank7/ModelsEvalSystem/internal/core"
)

// ErrEmptyKey is returned for cache operations on an empty key.
var ErrEmptyKey = errors.New("key cannot be empty")

// RedisCacheRepo implements core.CacheRepository on Redis.
type RedisCacheRepo struct {
	client redis.UniversalClient
}

// NewRedisCacheRepo creates a new RedisCacheRepo with the given Redis client.
func NewRedisCacheRepo(client redis.UniversalClient) *RedisCacheRepo {
	return &RedisCacheRepo{client: client}
}

// Set stores a value under key with the given TTL.
func (r *RedisCacheRepo) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Get retrieves a value by key. Missing keys return nil, nil.
func (r *RedisCacheRepo) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	result, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return result, nil
}

// Delete removes a key and reports whether it existed.
func (r *RedisCacheRepo) Delete(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}

	result, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return result > 0, nil
}

// Health pings the Redis deployment.
func (r *RedisCacheRepo) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// RedisConfig holds configuration for a Redis connection.
// Setting SentinelAddrs selects failover mode; ClusterAddrs selects cluster mode.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	SentinelAddrs []string
	MasterName    string
	ClusterAddrs  []string
}

// DefaultRedisConfig returns a RedisConfig pointing at a local instance.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{Addr: "localhost:6379"}
}

// NewRedisClient builds a direct, sentinel or cluster client from cfg.
func NewRedisClient(cfg RedisConfig) (redis.UniversalClient, error) {
	switch {
	case len(cfg.ClusterAddrs) > 0:
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    trimAll(cfg.ClusterAddrs),
			Password: cfg.Password,
		}), nil
	case len(cfg.SentinelAddrs) > 0:
		if strings.TrimSpace(cfg.MasterName) == "" {
			return nil, errors.New("redis sentinel requires a master name")
		}
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.MasterName,
			SentinelAddrs: trimAll(cfg.SentinelAddrs),
			Password:      cfg.Password,
			DB:            cfg.DB,
		}), nil
	default:
		if strings.TrimSpace(cfg.Addr) == "" {
			return nil, errors.New("redis address is required")
		}
		return redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}), nil
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var _ core.CacheRepository = (*RedisCacheRepo)(nil)
