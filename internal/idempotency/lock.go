// Package idempotency deduplicates retried checkout requests that carry the
// same Idempotency-Key.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	keyPrefix = "idem:checkout:"
	pending   = "pending"
)

// DefaultTTL is how long a key stays claimed once a checkout finished.
const DefaultTTL = 24 * time.Hour

type Store struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{Client: client, TTL: ttl}
}

func redisKey(userID, key string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, userID, key)
}

// Claim reserves key for userID. When the key is already taken it returns
// false with the transaction id stored by Complete, or "" while the first
// request is still running.
func (s *Store) Claim(ctx context.Context, userID, key string) (bool, string, error) {
	ok, err := s.Client.SetNX(ctx, redisKey(userID, key), pending, s.TTL).Result()
	if err != nil {
		return false, "", err
	}
	if ok {
		return true, "", nil
	}

	val, err := s.Client.Get(ctx, redisKey(userID, key)).Result()
	if err == redis.Nil {
		// expired between SETNX and GET
		return s.Claim(ctx, userID, key)
	}
	if err != nil {
		return false, "", err
	}
	if val == pending {
		return false, "", nil
	}
	return false, val, nil
}

// Complete records the transaction the claimed key produced.
func (s *Store) Complete(ctx context.Context, userID, key, transactionID string) error {
	return s.Client.Set(ctx, redisKey(userID, key), transactionID, s.TTL).Err()
}

// Release frees a claim whose checkout failed so the client can retry. A key
// that already holds a transaction is left alone.
func (s *Store) Release(ctx context.Context, userID, key string) error {
	k := redisKey(userID, key)
	val, err := s.Client.Get(ctx, k).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val == pending {
		return s.Client.Del(ctx, k).Err()
	}
	return nil
}
