package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pilab-dev/shadow-auth/cache"
	"github.com/pilab-dev/shadow-auth/domain"
	"github.com/redis/go-redis/v9"
)

// ChallengeStore implements cache.ChallengeStore on top of Redis.
// Entries are written with SET EX and consumed with GETDEL, so expiry is
// enforced by the server and a take is atomic across processes.
type ChallengeStore struct {
	client     redis.UniversalClient
	prefix     string // Optional prefix for keys
	defaultTTL time.Duration
}

// NewChallengeStore creates a new [ChallengeStore] instance.
func NewChallengeStore(client redis.UniversalClient, prefix string, defaultTTL time.Duration) *ChallengeStore {
	return &ChallengeStore{
		client:     client,
		prefix:     prefix,
		defaultTTL: defaultTTL,
	}
}

// redisKey returns the Redis key for a given challenge id
func (r *ChallengeStore) redisKey(id string) string {
	return fmt.Sprintf("%s:challenge:%s", r.prefix, id)
}

// Put stores the challenge until its expiry.
func (r *ChallengeStore) Put(ctx context.Context, entry *domain.Challenge) error {
	ttl := r.defaultTTL
	if !entry.ExpiresAt.IsZero() {
		ttl = time.Until(entry.ExpiresAt)
		if ttl <= 0 {
			return nil
		}
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}

	if err := r.client.Set(ctx, r.redisKey(entry.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: failed to set challenge in Redis: %w", cache.ErrStoreUnavailable, err)
	}

	return nil
}

// Take atomically fetches and removes the challenge.
func (r *ChallengeStore) Take(ctx context.Context, id string) (*domain.Challenge, bool, error) {
	raw, err := r.client.GetDel(ctx, r.redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: failed to take challenge from Redis: %w", cache.ErrStoreUnavailable, err)
	}

	var entry domain.Challenge
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal challenge: %w", err)
	}

	if entry.Expired(time.Now()) {
		return nil, false, nil
	}

	return &entry, true, nil
}

// Count returns the number of pending challenges under the store prefix.
func (r *ChallengeStore) Count(ctx context.Context) int {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.redisKey("*"), 100).Result()
		if err != nil {
			return total
		}
		total += len(keys)
		if next == 0 {
			return total
		}
		cursor = next
	}
}

// Close is a no-op; the redis client is owned by the caller.
func (r *ChallengeStore) Close() error {
	return nil
}

var _ cache.ChallengeStore = (*ChallengeStore)(nil)
