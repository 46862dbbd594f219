package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the credential in Redis, for headless clients sharing one login.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL, key string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if key == "" {
		key = TokenKey
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{client: client, key: key}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// credentialKey returns the Redis key holding the credential.
func credentialKey(key string) string {
	return fmt.Sprintf("buddy:credential:%s", key)
}

// Get retrieves the stored credential.
func (s *RedisStore) Get(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, credentialKey(s.key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return token, err
}

// Set stores the credential without expiry; the server decides validity.
func (s *RedisStore) Set(ctx context.Context, token string) error {
	return s.client.Set(ctx, credentialKey(s.key), token, 0).Err()
}

// Delete removes the credential.
func (s *RedisStore) Delete(ctx context.Context) error {
	return s.client.Del(ctx, credentialKey(s.key)).Err()
}
