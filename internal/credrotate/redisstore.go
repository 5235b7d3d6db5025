package credrotate

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs SharedStore with a real Redis deployment, the
// cluster-visible counter the rotator needs when more than one server
// process shares the same credential pool.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an already-configured redis.Client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) GetInt(ctx context.Context, key string) (int64, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, err
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, err
	}

	return n, true, nil
}

func (s *RedisStore) SetInt(ctx context.Context, key string, value int64) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}
