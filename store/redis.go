package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chihqiang/dbxnotify/pkg/redisx"
)

// RedisConfig is the redis connection of the store.
type RedisConfig struct {
	redisx.Config `yaml:",inline" mapstructure:",squash" envPrefix:"STORE_REDIS_"`
}

// RedisStore keeps keys in redis under the dbxnotify: prefix.
type RedisStore struct {
	client *redis.Client
	ctx    context.Context
}

func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	ctx := context.Background()
	rdb, err := redisx.Open(ctx, cfg.Config)
	if err != nil {
		return nil, err
	}
	return &RedisStore{ctx: ctx, client: rdb}, nil
}

// Has 判断 key 是否存在
func (r *RedisStore) Has(key string) bool {
	exists, err := r.client.Exists(r.ctx, keyPrefix+key).Result()
	if err != nil {
		return false
	}
	return exists > 0
}

func (r *RedisStore) Set(key string, value []byte) error {
	return r.client.Set(r.ctx, keyPrefix+key, value, 0).Err()
}

func (r *RedisStore) SetEX(key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(r.ctx, keyPrefix+key, value, ttl).Err()
}

func (r *RedisStore) SetNX(key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	ok, err := r.client.SetNX(r.ctx, keyPrefix+key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return ok, nil
}

func (r *RedisStore) Get(key string) ([]byte, error) {
	val, err := r.client.Get(r.ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return val, err
}

func (r *RedisStore) Delete(key string) error {
	return r.client.Del(r.ctx, keyPrefix+key).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
