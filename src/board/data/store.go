package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Collections
const (
	Posts     = "posts"
	Comments  = "comments"
	Votes     = "votes"
	Addresses = "addresses"
)

// Store is the key-value contract the repositories persist through.
// Values are JSON documents; keys are unique within a collection.
type Store interface {
	Get(ctx context.Context, collection, key string, out any) (bool, error)
	Set(ctx context.Context, collection, key string, value any) error
	Delete(ctx context.Context, collection, key string) error
	Keys(ctx context.Context, collection string) ([]string, error)
	Count(ctx context.Context, collection string) (int64, error)
	NewID(ctx context.Context, collection string) (int64, error)
}

// RedisStore keeps each collection in one hash and allocates IDs with INCR,
// so concurrent creators never receive the same ID.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "board"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) hash(collection string) string {
	return s.prefix + ":" + collection
}

func (s *RedisStore) seq(collection string) string {
	return s.prefix + ":" + collection + ":seq"
}

func (s *RedisStore) Get(ctx context.Context, collection, key string, out any) (bool, error) {
	raw, err := s.rdb.HGet(ctx, s.hash(collection), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", collection, key, err)
	}
	return true, nil
}

func (s *RedisStore) Set(ctx context.Context, collection, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}
	if err := s.rdb.HSet(ctx, s.hash(collection), key, raw).Err(); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, key, err)
	}
	return nil
}

// Delete removes key; removing an absent key is not an error.
func (s *RedisStore) Delete(ctx context.Context, collection, key string) error {
	if err := s.rdb.HDel(ctx, s.hash(collection), key).Err(); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *RedisStore) Keys(ctx context.Context, collection string) ([]string, error) {
	keys, err := s.rdb.HKeys(ctx, s.hash(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("keys %s: %w", collection, err)
	}
	return keys, nil
}

func (s *RedisStore) Count(ctx context.Context, collection string) (int64, error) {
	n, err := s.rdb.HLen(ctx, s.hash(collection)).Result()
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

func (s *RedisStore) NewID(ctx context.Context, collection string) (int64, error) {
	id, err := s.rdb.Incr(ctx, s.seq(collection)).Result()
	if err != nil {
		return 0, fmt.Errorf("new id %s: %w", collection, err)
	}
	return id, nil
}
