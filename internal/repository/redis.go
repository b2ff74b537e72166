package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("NewRedisClient: parse url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("NewRedisClient: ping: %w", err)
	}
	return client, nil
}

// RedisIdempotencyStore keeps idempotency entries in Redis with a TTL
// matching ExpiresAt.
type RedisIdempotencyStore struct {
	client *redis.Client
	prefix string
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, prefix: "idempotency"}
}

func (s *RedisIdempotencyStore) storageKey(key string, userID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, userID, key)
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string, userID uuid.UUID) (*IdempotencyCacheEntry, error) {
	e, err := s.get(ctx, s.client, s.storageKey(key, userID))
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return e, nil
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisIdempotencyStore) get(ctx context.Context, c stringGetter, k string) (*IdempotencyCacheEntry, error) {
	raw, err := c.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e IdempotencyCacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &e, nil
}

// Reserve writes an in-flight marker with SET NX, so only one request per
// key gets to run.
func (s *RedisIdempotencyStore) Reserve(ctx context.Context, entry *IdempotencyCacheEntry) (bool, error) {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return false, fmt.Errorf("Reserve: entry already expired")
	}
	marker := *entry
	marker.StatusCode = 0
	marker.ResponseBody = nil
	raw, err := json.Marshal(marker)
	if err != nil {
		return false, fmt.Errorf("Reserve: encode: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.storageKey(entry.Key, entry.UserID), raw, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("Reserve: %w", err)
	}
	return ok, nil
}

// Complete replaces the marker with the response. SET XX leaves nothing
// behind if the marker already expired.
func (s *RedisIdempotencyStore) Complete(ctx context.Context, entry *IdempotencyCacheEntry) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("Complete: encode: %w", err)
	}
	if err := s.client.SetXX(ctx, s.storageKey(entry.Key, entry.UserID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("Complete: %w", err)
	}
	return nil
}

// Release deletes the key only while it still holds an in-flight marker.
// WATCH makes the check and the delete atomic.
func (s *RedisIdempotencyStore) Release(ctx context.Context, key string, userID uuid.UUID) error {
	k := s.storageKey(key, userID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		e, err := s.get(ctx, tx, k)
		if err != nil || e == nil || !e.InFlight() {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, k)
			return nil
		})
		return err
	}, k)
	if err != nil {
		return fmt.Errorf("Release: %w", err)
	}
	return nil
}
