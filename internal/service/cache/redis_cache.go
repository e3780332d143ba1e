package cache

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	cli    redis.Cmdable
	prefix string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

func NewRedisCache(cfg RedisConfig) *RedisCache {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	return NewRedisCacheFromClient(rdb, cfg.Prefix)
}

// NewRedisCacheFromClient wraps an existing client. Close releases it when it
// is closable.
func NewRedisCacheFromClient(cli redis.Cmdable, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "sigtrack"
	}
	return &RedisCache{cli: cli, prefix: prefix}
}

func (r *RedisCache) GetBytes(key string) ([]byte, bool, error) {
	b, err := r.cli.Get(context.Background(), r.wrapKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	if err := r.cli.Set(context.Background(), r.wrapKey(key), value, ttl).Err(); err != nil {
		return err
	}
	return nil
}

// Close releases the underlying client.
func (r *RedisCache) Close() error {
	if c, ok := r.cli.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (r *RedisCache) wrapKey(key string) string {
	return r.prefix + ":" + key
}
