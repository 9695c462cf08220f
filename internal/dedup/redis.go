package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists processed-message records in Redis with a rolling
// expiry. One record per (group, topic, partition, offset).
type RedisStore struct {
	client    *redis.Client
	group     string
	retention time.Duration
}

// NewRedisStore connects to Redis and returns a dedup store scoped to the
// given consumer group.
func NewRedisStore(addr, password string, db int, group string, retention time.Duration) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if retention <= 0 {
		retention = DefaultRetention
	}

	return &RedisStore{
		client:    rdb,
		group:     group,
		retention: retention,
	}, nil
}

// HasApplied reports whether the message was already applied by this group.
func (s *RedisStore) HasApplied(ctx context.Context, topic string, partition int32, offset int64) (bool, error) {
	n, err := s.client.Exists(ctx, key(s.group, topic, partition, offset)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check dedup record: %w", err)
	}
	return n > 0, nil
}

// MarkApplied records the message as applied. The record expires after the
// retention window.
func (s *RedisStore) MarkApplied(ctx context.Context, topic string, partition int32, offset int64) error {
	if err := s.client.Set(ctx, key(s.group, topic, partition, offset), 1, s.retention).Err(); err != nil {
		return fmt.Errorf("failed to write dedup record: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
