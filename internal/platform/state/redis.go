package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps state blobs in Redis. This is the default backend: the
// platform's own state manager is Redis-backed, so pointing both at the same
// instance keeps state visible to platform tooling.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(ctx context.Context, addr string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("state.NewRedisStore ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Get returns the blob stored under key, or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key Key) ([]byte, error) {
	val, err := s.client.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("state.RedisStore.Get %s: %w", key, err)
	}
	return val, nil
}

// Set stores value under key. Entries carry no TTL: session tokens live
// until the vendor rejects them and watermarks are never expired.
func (s *RedisStore) Set(ctx context.Context, key Key, value []byte) error {
	if err := s.client.Set(ctx, key.String(), value, 0).Err(); err != nil {
		return fmt.Errorf("state.RedisStore.Set %s: %w", key, err)
	}
	return nil
}

// Delete removes the blob under key.
func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := s.client.Del(ctx, key.String()).Err(); err != nil {
		return fmt.Errorf("state.RedisStore.Delete %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
