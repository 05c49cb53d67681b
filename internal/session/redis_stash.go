// Package session keeps stashed editing drafts in Redis so that edits made
// while autosave is disabled survive a crash or a closed editor.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pagedraft/internal/persist"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 7 * 24 * time.Hour

// RedisStash implements editor.Stash on top of Redis string keys.
type RedisStash struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStash connects to redisURL and verifies the connection.
func NewRedisStash(redisURL string, ttl time.Duration) (*RedisStash, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStashWithClient(client, ttl), nil
}

// NewRedisStashWithClient creates a stash from an existing Redis client
func NewRedisStashWithClient(client *redis.Client, ttl time.Duration) *RedisStash {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStash{
		client: client,
		prefix: "draft:",
		ttl:    ttl,
	}
}

func (s *RedisStash) key(draftKey string) string {
	return s.prefix + draftKey
}

// Put stores draft under key, replacing any earlier stash and restarting its TTL.
func (s *RedisStash) Put(ctx context.Context, key string, draft persist.Record) error {
	if draft.UpdatedAt.IsZero() {
		draft.UpdatedAt = time.Now().UTC()
	}
	jsonData, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	if err := s.client.Set(ctx, s.key(key), jsonData, s.ttl).Err(); err != nil {
		return fmt.Errorf("stash draft: %w", err)
	}
	return nil
}

// Get returns the stashed draft. A missing or expired key reports false
// without an error.
func (s *RedisStash) Get(ctx context.Context, key string) (persist.Record, bool, error) {
	jsonData, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return persist.Record{}, false, nil
	}
	if err != nil {
		return persist.Record{}, false, fmt.Errorf("load draft: %w", err)
	}

	var draft persist.Record
	if err := json.Unmarshal(jsonData, &draft); err != nil {
		return persist.Record{}, false, fmt.Errorf("unmarshal draft: %w", err)
	}
	return draft, true, nil
}

// Delete drops the stashed draft. Deleting a missing key is not an error.
func (s *RedisStash) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("drop draft: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStash) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStash) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
