// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contactbook Contributors

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/samber/oops"
)

// DefaultRedisPrefix namespaces limiter keys in Redis.
const DefaultRedisPrefix = "contactbook:login"

// takeScript applies one fixed-window attempt atomically.
// KEYS[1] record hash; ARGV: now ms, window ms, max attempts.
// Returns {count, window start ms, limited}.
var takeScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

local start = redis.call('HGET', key, 'start')
if (not start) or (now - tonumber(start) >= window) then
	redis.call('HSET', key, 'start', ARGV[1], 'count', 1)
	redis.call('PEXPIRE', key, ARGV[2])
	return {1, now, 0}
end

start = tonumber(start)
local count = tonumber(redis.call('HGET', key, 'count') or '0')
if count >= max then
	return {count, start, 1}
end

count = redis.call('HINCRBY', key, 'count', 1)
return {count, start, 0}
`)

// RedisStore shares attempt records between processes through Redis.
// Records expire with their window.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a RedisStore. An empty prefix uses DefaultRedisPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(key string) string {
	return fmt.Sprintf("%s:%s", s.prefix, key)
}

// Take implements Store.
func (s *RedisStore) Take(ctx context.Context, key string, now time.Time, cfg Config) (Record, bool, error) {
	res, err := takeScript.Run(ctx, s.client, []string{s.key(key)},
		now.UnixMilli(),
		cfg.WindowDuration.Milliseconds(),
		cfg.MaxAttempts,
	).Slice()
	if err != nil {
		return Record{}, false, oops.With("operation", "redis take").Wrap(err)
	}
	if len(res) != 3 {
		return Record{}, false, oops.Errorf("unexpected limiter script reply of length %d", len(res))
	}

	count, ok1 := res[0].(int64)
	start, ok2 := res[1].(int64)
	limited, ok3 := res[2].(int64)
	if !ok1 || !ok2 || !ok3 {
		return Record{}, false, oops.Errorf("unexpected limiter script reply %v", res)
	}

	return Record{
		Key:         key,
		Count:       int(count),
		WindowStart: time.UnixMilli(start).UTC(),
	}, limited == 1, nil
}

// Reset removes the record for key.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return oops.With("operation", "redis reset", "key", key).Wrap(err)
	}
	return nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return oops.With("operation", "redis ping").Wrap(err)
	}
	return nil
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "parse redis url").Wrap(err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").Wrap(err)
	}
	return client, nil
}
