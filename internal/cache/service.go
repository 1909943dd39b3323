package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finsight/finsight/pkg/config"
	appErrors "github.com/finsight/finsight/pkg/errors"
	"github.com/finsight/finsight/pkg/logging"
)

// Service provides a Redis-backed read cache for market data. It is the
// fast-path cache the repositories consult before the guarded fetch; the
// fallback handler keeps its own private last-known-good cache.
type Service struct {
	client *redis.Client
	logger *logging.Logger
}

// CacheKey generates cache keys with consistent prefixes
type CacheKey struct {
	Prefix string
	ID     string
}

// String returns the formatted cache key
func (ck CacheKey) String() string {
	return fmt.Sprintf("%s:%s", ck.Prefix, ck.ID)
}

// Cache key prefixes
const (
	PrefixQuote           = "quote"
	PrefixRecommendations = "recommendations"
	PrefixNews            = "news"
)

// NewService creates a new cache service connected to Redis
func NewService(cfg *config.RedisConfig) (*Service, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	return &Service{
		client: client,
		logger: logging.GetLogger(),
	}, nil
}

// Health pings Redis to verify connectivity
func (s *Service) Health(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return appErrors.NewExternalError("redis", "health check failed").WithCause(err)
	}
	return nil
}

// Close closes the underlying Redis connection
func (s *Service) Close() error {
	return s.client.Close()
}

// Set stores a value in cache with the specified TTL
func (s *Service) Set(ctx context.Context, key CacheKey, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return appErrors.NewInternalError("failed to serialize cache value").WithCause(err)
	}

	if err := s.client.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		return appErrors.NewExternalError("redis", "failed to set cache value").
			WithCause(err).
			WithDetail("key", key.String())
	}

	return nil
}

// Get retrieves a value from cache into dest. Returns false on a miss.
func (s *Service) Get(ctx context.Context, key CacheKey, dest interface{}) (bool, error) {
	data, err := s.client.Get(ctx, key.String()).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, appErrors.NewExternalError("redis", "failed to get cache value").
			WithCause(err).
			WithDetail("key", key.String())
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, appErrors.NewInternalError("failed to deserialize cache value").
			WithCause(err).
			WithDetail("key", key.String())
	}

	return true, nil
}

// Delete removes a key from cache
func (s *Service) Delete(ctx context.Context, key CacheKey) error {
	if err := s.client.Del(ctx, key.String()).Err(); err != nil {
		return appErrors.NewExternalError("redis", "failed to delete cache value").
			WithCause(err).
			WithDetail("key", key.String())
	}
	return nil
}
