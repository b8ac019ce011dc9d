// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package dedupe

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix is the default prefix of the Redis keys.
const DefaultRedisPrefix = "csaf_notifier:"

// RedisStore keeps the cache in Redis.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore returns a store using client. The keys
// are prefixed with prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		redis:  client,
		prefix: prefix,
	}
}

// OpenRedisStore connects to the Redis server given by a
// redis:// URL.
func OpenRedisStore(url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return NewRedisStore(redis.NewClient(opts), prefix), nil
}

func (rs *RedisStore) key(name string) string {
	return rs.prefix + name
}

// Load implements [Store].
func (rs *RedisStore) Load(ctx context.Context) (*Cache, error) {
	cache := NewCache()

	ids, err := rs.redis.HGetAll(ctx, rs.key("advisory_ids")).Result()
	if err != nil {
		return nil, fmt.Errorf("loading sent advisories failed: %w", err)
	}
	for k, v := range ids {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp for %q: %w", k, err)
		}
		cache.AdvisoryIDs[k] = ts
	}

	hash, err := rs.redis.Get(ctx, rs.key("last_message_hash")).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return nil, fmt.Errorf("loading message hash failed: %w", err)
	default:
		cache.LastMessageHash = &hash
	}

	version, err := rs.redis.Get(ctx, rs.key("version")).Int()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return nil, fmt.Errorf("loading cache version failed: %w", err)
	default:
		cache.Version = version
	}

	return cache, nil
}

// Save implements [Store].
func (rs *RedisStore) Save(ctx context.Context, cache *Cache) error {
	_, err := rs.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		idsKey := rs.key("advisory_ids")
		pipe.Del(ctx, idsKey)
		if len(cache.AdvisoryIDs) > 0 {
			values := make(map[string]any, len(cache.AdvisoryIDs))
			for k, ts := range cache.AdvisoryIDs {
				values[k] = ts
			}
			pipe.HSet(ctx, idsKey, values)
		}
		if cache.LastMessageHash != nil {
			pipe.Set(ctx, rs.key("last_message_hash"), *cache.LastMessageHash, 0)
		} else {
			pipe.Del(ctx, rs.key("last_message_hash"))
		}
		pipe.Set(ctx, rs.key("version"), cache.Version, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving sent-cache failed: %w", err)
	}
	return nil
}

// Close implements [Store].
func (rs *RedisStore) Close() error {
	return rs.redis.Close()
}
