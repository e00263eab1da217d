package database

import (
	"context"
	"time"

	"github.com/go-redis/redis/v9"
	"github.com/pkg/errors"
)

const (
	redisKeyPrefix = "gpt:cache:"
	redisTagPrefix = "gpt:tag:"
)

// RedisCache is a key/value cache whose entries can be dropped by tag.
type RedisCache struct {
	Redis *redis.Client
}

func ConnectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{
		Addr:            addr,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		MaxRetries:      2,
		MinRetryBackoff: 200 * time.Millisecond,
		MaxRetryBackoff: 2 * time.Second,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrapf(err, "error pinging Redis at: %s", addr)
	}
	return c, nil
}

// Get returns ok false on a cache miss.
func (rc RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := rc.Redis.Get(ctx, redisKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "error getting Redis cache with key: %s", key)
	}
	return val, true, nil
}

func (rc RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration, tags ...string) error {
	if ttl <= 0 {
		return nil
	}
	_, err := rc.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisKeyPrefix+key, val, ttl)
		for _, tag := range tags {
			pipe.SAdd(ctx, redisTagPrefix+tag, key)
			pipe.Expire(ctx, redisTagPrefix+tag, ttl)
		}
		return nil
	})
	return errors.Wrapf(err, "error setting Redis cache with key: %s, tags: %v", key, tags)
}

// InvalidateTag drops every entry tagged with tag and returns how many were removed.
func (rc RedisCache) InvalidateTag(ctx context.Context, tag string) (int, error) {
	keys, err := rc.Redis.SMembers(ctx, redisTagPrefix+tag).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "error getting members of Redis tag: %s", tag)
	}
	var deleted int64
	if len(keys) > 0 {
		fullKeys := make([]string, 0, len(keys))
		for _, k := range keys {
			fullKeys = append(fullKeys, redisKeyPrefix+k)
		}
		if deleted, err = rc.Redis.Del(ctx, fullKeys...).Result(); err != nil {
			return 0, errors.Wrapf(err, "error deleting Redis keys of tag: %s", tag)
		}
	}
	if err = rc.Redis.Del(ctx, redisTagPrefix+tag).Err(); err != nil {
		return int(deleted), errors.Wrapf(err, "error deleting Redis tag: %s", tag)
	}
	return int(deleted), nil
}
