package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sunupay/subscription-service/internal/domain"
	"github.com/sunupay/subscription-service/pkg/logger"
)

const (
	statusKeyPrefix = "subscription_status:"

	// Short TTL keeps lazy expiry demotion visible within a minute
	statusCacheTTL = 1 * time.Minute
)

// RedisStatusCache caches per-user subscription status views in Redis
type RedisStatusCache struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisStatusCache creates a new Redis status cache
func NewRedisStatusCache(redisAddr, redisPassword string, redisDB int, log *logger.Logger) (*RedisStatusCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Errorw("Failed to connect to Redis", "error", err)
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", redisAddr)
	return &RedisStatusCache{
		client: client,
		log:    log,
	}, nil
}

// Close closes the Redis connection
func (c *RedisStatusCache) Close() error {
	return c.client.Close()
}

// GetStatus returns the cached status view for a user, nil on a cache miss
func (c *RedisStatusCache) GetStatus(ctx context.Context, userID string) (*domain.SubscriptionStatusView, error) {
	key := statusKeyPrefix + userID

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		c.log.Errorw("Error getting status from Redis", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get status from cache: %w", err)
	}

	var view domain.SubscriptionStatusView
	if err := json.Unmarshal(data, &view); err != nil {
		c.log.Errorw("Failed to unmarshal cached status", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to unmarshal cached status: %w", err)
	}

	return &view, nil
}

// SetStatus caches the status view for a user
func (c *RedisStatusCache) SetStatus(ctx context.Context, userID string, view *domain.SubscriptionStatusView) error {
	key := statusKeyPrefix + userID

	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	if err := c.client.Set(ctx, key, data, statusCacheTTL).Err(); err != nil {
		c.log.Errorw("Failed to cache status in Redis", "error", err, "userID", userID)
		return fmt.Errorf("failed to cache status: %w", err)
	}

	c.log.Debugw("Status cached", "userID", userID)
	return nil
}

// Invalidate drops the cached status view for a user
func (c *RedisStatusCache) Invalidate(ctx context.Context, userID string) error {
	key := statusKeyPrefix + userID

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.log.Errorw("Failed to delete status from cache", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete status from cache: %w", err)
	}

	return nil
}
