package store

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
)

// RedisKV keeps the tracker snapshots as plain redis string values
type RedisKV struct {
	client *redis.Client
}

func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{
		client: client,
	}
}

func (kv *RedisKV) Get(ctx context.Context, key string) (string, error) {
	cmd := kv.client.Get(ctx, key)
	if err := cmd.Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrKeyNotFound
		}
		return "", err
	}
	return cmd.Val(), nil
}

func (kv *RedisKV) Set(ctx context.Context, key, value string) error {
	return kv.client.Set(ctx, key, value, 0).Err()
}

func (kv *RedisKV) Del(ctx context.Context, key string) error {
	return kv.client.Del(ctx, key).Err()
}
